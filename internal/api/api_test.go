// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/kbchat/internal/credstore"
	"github.com/jeranaias/kbchat/internal/model"
)

// writeEnvelope writes {code, message, data}.
func writeEnvelope(w http.ResponseWriter, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    code,
		"message": message,
		"data":    data,
	})
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *credstore.Session) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	sess := credstore.NewSession()
	return NewClient(sess, &ClientConfig{BaseURL: srv.URL}), sess
}

func signIn(t *testing.T, sess *credstore.Session) {
	t.Helper()
	require.NoError(t, sess.Set(credstore.Credentials{AccessToken: "tok", TokenType: "Bearer"}))
}

func TestLogin_StoresCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.c", body["email"])
		writeEnvelope(w, 200, "ok", map[string]interface{}{
			"access_token": "tok-1",
			"token_type":   "bearer",
			"user":         map[string]interface{}{"id": 5, "email": "a@b.c", "department_id": 2},
		})
	})
	client, sess := newTestClient(t, mux)

	res, err := client.Login(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.AccessToken)
	assert.Equal(t, "tok-1", sess.Token())
	u, _ := sess.User()
	assert.Equal(t, model.FlexID("5"), u.ID)
	assert.Equal(t, model.FlexID("2"), u.DepartmentID)
}

func TestAuthorizationHeaderAttached(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/workspace/list", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeEnvelope(w, 200, "", []map[string]interface{}{
			{"workspace_id": "w1", "workspace_title": "One", "sessions": []map[string]string{{"session_id": "s1"}}},
		})
	})
	client, sess := newTestClient(t, mux)
	signIn(t, sess)

	ws, err := client.ListWorkspaces(context.Background())
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, "s1", ws[0].Sessions[0].SessionID)
}

func TestMissingTokenFailsFast(t *testing.T) {
	called := false
	client, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	cleared := 0
	sess.OnClear(func() { cleared++ })

	_, err := client.ListWorkspaces(context.Background())
	assert.True(t, IsUnauthorized(err))
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.False(t, called)
	assert.Zero(t, cleared, "nothing to clear when never signed in")
}

func TestPublicPathsNeedNoToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/common/department/list", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 200, "", []model.Department{{ID: 1, Name: "R&D"}})
	})
	client, _ := newTestClient(t, mux)

	deps, err := client.Departments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Department{{ID: 1, Name: "R&D"}}, deps)
}

func TestEnvelope401ClearsSession(t *testing.T) {
	client, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 401, "token expired", nil)
	}))
	signIn(t, sess)
	cleared := false
	sess.OnClear(func() { cleared = true })

	_, err := client.ListWorkspaces(context.Background())
	assert.True(t, IsUnauthorized(err))
	assert.False(t, sess.Authenticated())
	assert.True(t, cleared)
}

func TestHTTP401ClearsSession(t *testing.T) {
	client, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	signIn(t, sess)

	err := client.DeleteSession(context.Background(), "s1")
	assert.True(t, IsUnauthorized(err))
	assert.False(t, sess.Authenticated())
}

func TestNon200EnvelopeIsAPIError(t *testing.T) {
	client, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 500, "workspace exists", nil)
	}))
	signIn(t, sess)

	err := client.CreateWorkspace(context.Background(), "dup")
	require.Error(t, err)
	assert.True(t, IsAPI(err))
	assert.Equal(t, 500, Code(err))
	assert.Contains(t, err.Error(), "workspace exists")
	assert.True(t, sess.Authenticated())
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	sess := credstore.NewSession()
	signIn(t, sess)
	client := NewClient(sess, &ClientConfig{BaseURL: srv.URL})

	_, err := client.ListWorkspaces(context.Background())
	assert.True(t, IsTransport(err))
}

func TestCreateSessionAcceptsNumericID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/session/save", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "w1", body["workspaceId"])
		assert.Equal(t, DefaultSessionTitle, body["title"])
		writeEnvelope(w, 200, "", 98765)
	})
	client, sess := newTestClient(t, mux)
	signIn(t, sess)

	id, err := client.CreateSession(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "98765", id)
}

func TestValidationNeverCallsServer(t *testing.T) {
	client, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	signIn(t, sess)
	ctx := context.Background()

	assert.True(t, IsValidation(client.CreateWorkspace(ctx, "  ")))
	assert.True(t, IsValidation(client.RenameSession(ctx, "", "x")))
	_, err := client.OpenStream(ctx, SendRequest{Question: " "})
	assert.True(t, IsValidation(err))
	assert.True(t, IsValidation(client.Register(ctx, RegisterRequest{Email: "bad"})))
}

func TestRegisterRequestValidate(t *testing.T) {
	ok := RegisterRequest{Email: "a@b.c", Password: "secret1", ConfirmPassword: "secret1", VerificationCode: "1234", Name: "A"}
	assert.NoError(t, ok.Validate())

	mismatch := ok
	mismatch.ConfirmPassword = "other"
	assert.Error(t, mismatch.Validate())

	short := ok
	short.Password, short.ConfirmPassword = "abc", "abc"
	assert.Error(t, short.Validate())
}

func TestLogoutClearsEvenOnFailure(t *testing.T) {
	client, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 500, "boom", nil)
	}))
	signIn(t, sess)

	err := client.Logout(context.Background())
	assert.Error(t, err)
	assert.False(t, sess.Authenticated())
}

func TestOpenStreamMultipart(t *testing.T) {
	dir := t.TempDir()
	attachment := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(attachment, []byte("file body"), 0600))

	mux := http.NewServeMux()
	mux.HandleFunc("/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "hello", r.FormValue("question"))
		assert.Equal(t, "0", r.FormValue("session_id"))

		var quoted model.QuotedMessage
		assert.NoError(t, json.Unmarshal([]byte(r.FormValue("quoted_message")), &quoted))
		assert.Equal(t, "m1", quoted.ID)

		f, hdr, err := r.FormFile("file")
		assert.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "notes.txt", hdr.Filename)
		assert.Equal(t, "file body", string(data))

		_, _ = io.WriteString(w, `{"type":"chunk","data":{"content":"hi"}}`+"\n")
	})
	client, sess := newTestClient(t, mux)
	signIn(t, sess)

	body, err := client.OpenStream(context.Background(), SendRequest{
		Question: "hello",
		FilePath: attachment,
		Quoted:   &model.QuotedMessage{ID: "m1", Role: model.RoleAssistant, Content: "prior"},
	})
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `{"type":"chunk"`))
}

func TestOpenStreamNon200IsTransport(t *testing.T) {
	client, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	signIn(t, sess)

	_, err := client.OpenStream(context.Background(), SendRequest{Question: "q", SessionID: "s"})
	assert.True(t, IsTransport(err))
	assert.Equal(t, http.StatusServiceUnavailable, Code(err))
}

func TestUploadFlowEndpoints(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "spec.pdf")
	require.NoError(t, os.WriteFile(doc, []byte("%PDF"), 0600))

	mux := http.NewServeMux()
	mux.HandleFunc("/upload/check", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "spec.pdf", body["file_name"])
		assert.Equal(t, "0", body["department_id"])
		writeEnvelope(w, 200, "", 1)
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "4", r.FormValue("department_id"))
		_, hdr, err := r.FormFile("file")
		assert.NoError(t, err)
		assert.Equal(t, "spec.pdf", hdr.Filename)
		writeEnvelope(w, 200, "uploaded", nil)
	})
	mux.HandleFunc("/file/remove/embed", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FileIDs     []string `json:"file_ids"`
			WorkspaceID string   `json:"workspace_id"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"f1"}, body.FileIDs)
		assert.Equal(t, "w1", body.WorkspaceID)
		writeEnvelope(w, 200, "", nil)
	})
	mux.HandleFunc("/folder/file/list", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "w1", r.URL.Query().Get("workspace_id"))
		writeEnvelope(w, 200, "", []map[string]interface{}{
			{"folder_id": 1, "folder_name": "docs", "files": []map[string]interface{}{{"file_id": 10, "file_name": "a.pdf"}}},
		})
	})
	client, sess := newTestClient(t, mux)
	signIn(t, sess)
	ctx := context.Background()

	status, err := client.UploadCheck(ctx, "spec.pdf", "")
	require.NoError(t, err)
	assert.Equal(t, model.UploadStatusNew, status)
	require.NoError(t, client.Upload(ctx, doc, "4"))
	require.NoError(t, client.RemoveFromWorkspace(ctx, "w1", "f1"))

	tree, err := client.FolderFiles(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, model.FlexID("10"), tree[0].Files[0].FileID)
}

func TestUploadMissingFileIsValidation(t *testing.T) {
	client, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request")
	}))
	signIn(t, sess)

	err := client.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), "1")
	assert.True(t, IsValidation(err))
}
