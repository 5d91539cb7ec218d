// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/credstore"
	"github.com/jeranaias/kbchat/internal/knowledge"
	"github.com/jeranaias/kbchat/internal/logging"
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/stream"
	"github.com/jeranaias/kbchat/internal/workspace"
)

const (
	demoEmail    = "demo@example.com"
	demoPassword = "secret1"
)

func startServer(t *testing.T) (*api.Client, *credstore.Session) {
	t.Helper()
	srv, err := New(Config{SeedEmail: demoEmail, SeedPassword: demoPassword, Logger: logging.Discard()})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	sess := credstore.NewSession()
	client := api.NewClient(sess, &api.ClientConfig{BaseURL: ts.URL})
	return client, sess
}

func login(t *testing.T, client *api.Client) {
	t.Helper()
	_, err := client.Login(context.Background(), demoEmail, demoPassword)
	require.NoError(t, err)
}

// newSession creates a workspace with one session and returns both ids.
func newSession(t *testing.T, client *api.Client) (string, string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, client.CreateWorkspace(ctx, "Research"))
	ws, err := client.ListWorkspaces(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, ws)
	wid := ws[len(ws)-1].WorkspaceID
	sid, err := client.CreateSession(ctx, wid)
	require.NoError(t, err)
	return wid, sid
}

func TestLoginAndMe(t *testing.T) {
	client, sess := startServer(t)
	ctx := context.Background()

	_, err := client.Login(ctx, demoEmail, "wrong")
	require.Error(t, err)
	assert.True(t, api.IsAPI(err))
	assert.False(t, sess.Authenticated())

	login(t, client)
	assert.True(t, sess.Authenticated())

	user, err := client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, demoEmail, user.Email)
	assert.Equal(t, "1", user.DepartmentID.String())
}

func TestUnknownTokenClearsSession(t *testing.T) {
	client, sess := startServer(t)
	require.NoError(t, sess.Set(credstore.Credentials{AccessToken: "forged"}))

	_, err := client.ListWorkspaces(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))
	assert.False(t, sess.Authenticated())
}

func TestRegisterThenLogin(t *testing.T) {
	client, _ := startServer(t)
	ctx := context.Background()

	depts, err := client.Departments(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, depts)

	require.NoError(t, client.SendVerification(ctx, "new@example.com"))
	err = client.Register(ctx, api.RegisterRequest{
		Email: "new@example.com", Name: "New", Password: "abcdef", ConfirmPassword: "abcdef",
		VerificationCode: VerificationCode, DepartmentID: depts[0].ID,
	})
	require.NoError(t, err)

	_, err = client.Login(ctx, "new@example.com", "abcdef")
	require.NoError(t, err)
}

func TestLogoutRevokesToken(t *testing.T) {
	client, sess := startServer(t)
	login(t, client)
	token := sess.Token()

	require.NoError(t, client.Logout(context.Background()))
	assert.False(t, sess.Authenticated())

	require.NoError(t, sess.Set(credstore.Credentials{AccessToken: token}))
	_, err := client.ListWorkspaces(context.Background())
	assert.True(t, api.IsUnauthorized(err))
}

func TestStreamReconcilesThroughView(t *testing.T) {
	client, _ := startServer(t)
	login(t, client)
	_, sid := newSession(t, client)
	ctx := context.Background()

	var renamed []string
	view := chat.NewView(client, chat.ListenerFuncs{
		OnRenamed: func(_ string, title string) { renamed = append(renamed, title) },
	}, chat.Options{})
	require.NoError(t, view.SelectSession(ctx, sid))
	assert.True(t, view.FirstMessage())

	ex, err := view.Send(ctx, "What is our travel policy?")
	require.NoError(t, err)
	assert.Equal(t, chat.StateReconciled, ex.State())

	msgs := view.Messages()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.False(t, model.IsTemporaryID(m.ID), "id %s should be a server id", m.ID)
	}
	assert.Equal(t, "You asked: What is our travel policy?", msgs[1].Content)
	assert.Equal(t, []string{"What is our tra..."}, renamed)

	// The server persisted the same ids the view reconciled to.
	history, err := client.History(ctx, sid)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, msgs[0].ID, history[0].ID)
	assert.Equal(t, msgs[1].ID, history[1].ID)

	ws, err := client.ListWorkspaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, "What is our tra...", ws[0].Sessions[0].SessionTitle)
}

func TestStreamFailureRestoresTranscript(t *testing.T) {
	client, _ := startServer(t)
	login(t, client)
	_, sid := newSession(t, client)
	ctx := context.Background()

	view := chat.NewView(client, nil, chat.Options{})
	require.NoError(t, view.SelectSession(ctx, sid))
	_, err := view.Send(ctx, "first question")
	require.NoError(t, err)
	before := view.Messages()

	ex, err := view.Send(ctx, "please "+FailMarker)
	require.Error(t, err)
	assert.Equal(t, chat.StateFailed, ex.State())
	assert.Equal(t, before, view.Messages())

	history, err := client.History(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestStreamWireFormat(t *testing.T) {
	client, _ := startServer(t)
	login(t, client)
	_, sid := newSession(t, client)

	body, err := client.OpenStream(context.Background(), api.SendRequest{Question: "one two", SessionID: sid})
	require.NoError(t, err)
	defer body.Close()

	dec := stream.NewDecoder(body)
	var types []string
	var text strings.Builder
	for {
		ev, err := dec.Next()
		if err != nil {
			break
		}
		types = append(types, ev.Type())
		if c, ok := ev.(*stream.ChunkEvent); ok {
			text.WriteString(c.Content)
		}
		if c, ok := ev.(*stream.CompleteEvent); ok {
			assert.True(t, c.HasIDs())
		}
	}
	assert.Equal(t, []string{"metadata", "chunk", "chunk", "chunk", "chunk", "complete"}, types)
	assert.Equal(t, "You asked: one two", text.String())
}

func TestStreamUnknownSession(t *testing.T) {
	client, _ := startServer(t)
	login(t, client)

	view := chat.NewView(client, nil, chat.Options{})
	view.OpenEmptySession("404")
	_, err := view.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Empty(t, view.Messages())
}

func TestWorkspaceStoreAgainstServer(t *testing.T) {
	client, _ := startServer(t)
	login(t, client)
	ctx := context.Background()

	store := workspace.NewStore(client, nil)
	require.NoError(t, store.CreateWorkspace(ctx, "Ops"))
	ws := store.Workspaces()
	require.Len(t, ws, 1)

	sid, err := store.CreateSession(ctx, ws[0].WorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, sid, store.Selected())

	require.NoError(t, store.RenameSession(ctx, sid, "Renamed"))
	sess, _, ok := store.FindSession(sid)
	require.True(t, ok)
	assert.Equal(t, "Renamed", sess.SessionTitle)

	require.NoError(t, store.DeleteWorkspace(ctx, ws[0].WorkspaceID))
	assert.Empty(t, store.Workspaces())
	assert.Empty(t, store.Selected())
}

func TestUploadCheckFlowAgainstServer(t *testing.T) {
	client, _ := startServer(t)
	login(t, client)
	ctx := context.Background()
	wid, _ := newSession(t, client)

	path := filepath.Join(t.TempDir(), "manual.pdf")
	require.NoError(t, os.WriteFile(path, []byte("pdf"), 0o644))

	svc := knowledge.NewService(client, "1")
	res := svc.Upload(ctx, []string{path}, knowledge.ScopeDepartment, nil)
	require.Len(t, res, 1)
	assert.Equal(t, knowledge.OutcomeUploaded, res[0].Outcome)

	res = svc.Upload(ctx, []string{path}, knowledge.ScopeDepartment, func(string) bool { return true })
	assert.Equal(t, knowledge.OutcomeOverwritten, res[0].Outcome)

	hist, err := svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 1)

	tree, err := svc.Embed(ctx, []string{hist[0].ID.String()}, wid)
	require.NoError(t, err)
	assert.Equal(t, []string{hist[0].ID.String()}, knowledge.SelectedIDs(tree))

	res = svc.Upload(ctx, []string{path}, knowledge.ScopeDepartment, nil)
	assert.Equal(t, knowledge.OutcomeRejected, res[0].Outcome)

	// Enterprise scope is a different namespace.
	status, err := svc.Check(ctx, "manual.pdf", knowledge.ScopeEnterprise)
	require.NoError(t, err)
	assert.Equal(t, model.UploadStatusNew, status)

	require.NoError(t, svc.Delete(ctx, hist[0].ID.String()))
	tree, err = svc.Tree(ctx, wid)
	require.NoError(t, err)
	assert.Empty(t, knowledge.SelectedIDs(tree))
}

func TestDeleteMessage(t *testing.T) {
	client, _ := startServer(t)
	login(t, client)
	_, sid := newSession(t, client)
	ctx := context.Background()

	view := chat.NewView(client, nil, chat.Options{})
	require.NoError(t, view.SelectSession(ctx, sid))
	_, err := view.Send(ctx, "hello there")
	require.NoError(t, err)

	msgs := view.Messages()
	require.NoError(t, view.DeleteMessage(ctx, msgs[1].ID))

	history, err := client.History(ctx, sid)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msgs[0].ID, history[0].ID)
}

func TestHealth(t *testing.T) {
	srv, err := New(Config{Logger: logging.Discard()})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
