// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/model"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeBackend struct {
	mu        sync.Mutex
	body      func() (io.ReadCloser, error)
	history   map[string][]model.Message
	renames   []string
	deleted   []string
	requests  []api.SendRequest
	deleteErr error
}

func (f *fakeBackend) OpenStream(ctx context.Context, req api.SendRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.body()
}

func (f *fakeBackend) History(ctx context.Context, sessionID string) ([]model.Message, error) {
	return f.history[sessionID], nil
}

func (f *fakeBackend) RenameSession(ctx context.Context, sessionID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renames = append(f.renames, sessionID+":"+title)
	return nil
}

func (f *fakeBackend) DeleteMessage(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return f.deleteErr
}

func lines(ls ...string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(strings.Join(ls, "\n") + "\n")), nil
	}
}

type recorder struct {
	mu       sync.Mutex
	notices  []Notice
	sessions []string
	sending  []bool
	renamed  []string
	last     []model.Message
}

func (r *recorder) listener() Listener {
	return ListenerFuncs{
		OnTranscript: func(sid string, msgs []model.Message) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.sessions = append(r.sessions, sid)
			r.last = msgs
		},
		OnNotice: func(n Notice) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.notices = append(r.notices, n)
		},
		OnSending: func(s bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.sending = append(r.sending, s)
		},
		OnRenamed: func(sid, title string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.renamed = append(r.renamed, title)
		},
	}
}

var history = []model.Message{
	{ID: "1", Role: model.RoleUser, Content: "earlier question"},
	{ID: "2", Role: model.RoleAssistant, Content: "earlier answer"},
}

func newView(t *testing.T, backend *fakeBackend, rec *recorder) *View {
	t.Helper()
	if backend.history == nil {
		backend.history = map[string][]model.Message{"s1": history}
	}
	fixed := time.UnixMilli(1700000000000)
	v := NewView(backend, rec.listener(), Options{Now: func() time.Time { return fixed }})
	require.NoError(t, v.SelectSession(context.Background(), "s1"))
	return v
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func countID(msgs []model.Message, id string) int {
	n := 0
	for _, m := range msgs {
		if m.ID == id {
			n++
		}
	}
	return n
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestSend_CompleteReconcilesIDs(t *testing.T) {
	backend := &fakeBackend{body: lines(
		`{"type":"chunk","data":{"content":"Hi"}}`,
		`{"type":"complete","data":{"user_message_id":"101","assistant_message_id":"102"}}`,
	)}
	v := newView(t, backend, &recorder{})

	ex, err := v.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, StateReconciled, ex.State())

	msgs := v.Messages()
	assert.Equal(t, []string{"1", "2", "101", "102"}, ids(msgs))
	assert.Equal(t, 1, countID(msgs, "101"))
	assert.Equal(t, 1, countID(msgs, "102"))
	for _, m := range msgs {
		assert.False(t, model.IsTemporaryID(m.ID), m.ID)
	}
	assert.Equal(t, "hello", msgs[2].Content)
	assert.Equal(t, "Hi", msgs[3].Content)
}

func TestSend_ChunkMessageIDUpgradesPlaceholder(t *testing.T) {
	backend := &fakeBackend{body: lines(
		`{"type":"chunk","data":{"content":"a","message_id":"77"}}`,
		`{"type":"chunk","data":{"content":"b"}}`,
		`{"type":"complete","data":{"user_message_id":"76","assistant_message_id":"77"}}`,
	)}
	v := newView(t, backend, &recorder{})

	_, err := v.Send(context.Background(), "q")
	require.NoError(t, err)
	msgs := v.Messages()
	assert.Equal(t, []string{"1", "2", "76", "77"}, ids(msgs))
	assert.Equal(t, "ab", msgs[3].Content)
}

func TestSend_CompleteWithoutIDsKeepsPlaceholders(t *testing.T) {
	backend := &fakeBackend{body: lines(
		`{"type":"chunk","data":{"content":"x"}}`,
		`{"type":"complete","data":{"user_message_id":"9"}}`,
	)}
	v := newView(t, backend, &recorder{})

	ex, err := v.Send(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, ex.State())
	assert.Equal(t, []string{"1", "2", "temp-user-1700000000000", "temp-assistant-1700000000000"}, ids(v.Messages()))
}

// =============================================================================
// FAILURE PATHS
// =============================================================================

func TestSend_FailuresRestorePreSendIDs(t *testing.T) {
	cases := map[string]func() (io.ReadCloser, error){
		"error event": lines(
			`{"type":"chunk","data":{"content":"partial","message_id":"55"}}`,
			`{"type":"error","message":"model overloaded"}`,
			`{"type":"complete","data":{"user_message_id":"54","assistant_message_id":"55"}}`,
		),
		"error event data message": lines(`{"type":"error","data":{"message":"quota"}}`),
		"malformed line": lines(
			`{"type":"chunk","data":{"content":"partial"}}`,
			`{"type":"chunk",`,
		),
		"null line": lines(
			`{"type":"chunk","data":{"content":"Hel"}}`,
			`null`,
			`{"type":"chunk","data":{"content":"lo"}}`,
		),
		"chunk without data": lines(`{"type":"chunk"}`),
		"open failure": func() (io.ReadCloser, error) {
			return nil, &api.ClientError{Type: api.ErrTypeTransport, Message: "cannot reach server"}
		},
		"api failure": func() (io.ReadCloser, error) {
			return nil, &api.ClientError{Type: api.ErrTypeAPI, Code: 500, Message: "bad"}
		},
		"read error": func() (io.ReadCloser, error) {
			return io.NopCloser(io.MultiReader(
				strings.NewReader(`{"type":"chunk","data":{"content":"par"}}`+"\n"),
				errReader{},
			)), nil
		},
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			v := newView(t, &fakeBackend{body: body}, rec)
			before := ids(v.Messages())
			v.pendingFile = "keep.txt"

			ex, err := v.Send(context.Background(), "question")
			require.Error(t, err)
			require.NotNil(t, ex)
			assert.Equal(t, StateFailed, ex.State())
			assert.Equal(t, before, ids(v.Messages()))
			assert.Equal(t, before, ids(rec.last))
			assert.False(t, v.Sending())
			assert.Equal(t, "keep.txt", v.PendingFile(), "attachments survive a failed send")

			require.Len(t, rec.notices, 1)
			assert.Equal(t, NoticeError, rec.notices[0].Level)
		})
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSend_ErrorEventMessageSurfaces(t *testing.T) {
	rec := &recorder{}
	v := newView(t, &fakeBackend{body: lines(`{"type":"error","message":"model overloaded"}`)}, rec)

	_, err := v.Send(context.Background(), "q")
	assert.Equal(t, api.ErrTypeStream, api.TypeOf(err))
	require.Len(t, rec.notices, 1)
	assert.Contains(t, rec.notices[0].Detail, "model overloaded")
}

func TestSend_UnknownEventIsSkipped(t *testing.T) {
	v := newView(t, &fakeBackend{body: lines(
		`{"type":"heartbeat","data":{}}`,
		`{"type":"chunk","data":{"content":"ok"}}`,
		`{"type":"complete","data":{"user_message_id":"3","assistant_message_id":"4"}}`,
	)}, &recorder{})

	ex, err := v.Send(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, StateReconciled, ex.State())
}

// =============================================================================
// CONTENT ACCUMULATION
// =============================================================================

func TestSend_ChunksAccumulate(t *testing.T) {
	v := newView(t, &fakeBackend{body: lines(
		`{"type":"chunk","data":{"content":"Hel"}}`,
		`{"type":"chunk","data":{"content":"lo,"}}`,
		`{"type":"chunk","data":{"content":" world"}}`,
	)}, &recorder{})

	ex, err := v.Send(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", ex.Answer())
	last, ok := v.LastAnswer()
	require.True(t, ok)
	assert.Equal(t, "Hello, world", last.Content)
}

func TestSend_MetadataSurvivesLaterChunks(t *testing.T) {
	v := newView(t, &fakeBackend{body: lines(
		`{"type":"metadata","data":{"file_metadata":[{"file_id":1,"file_name":"handbook.pdf"}]}}`,
		`{"type":"chunk","data":{"content":"See "}}`,
		`{"type":"chunk","data":{"content":"the handbook."}}`,
		`{"type":"complete","data":{"user_message_id":"5","assistant_message_id":"6"}}`,
	)}, &recorder{})

	_, err := v.Send(context.Background(), "q")
	require.NoError(t, err)
	last, _ := v.LastAnswer()
	assert.Equal(t, "6", last.ID)
	assert.Equal(t, "See the handbook.", last.Content)
	require.Len(t, last.RelatedFiles, 1)
	assert.Equal(t, model.FlexID("1"), last.RelatedFiles[0].FileID)
}

// =============================================================================
// TITLE DERIVATION
// =============================================================================

func TestSend_FirstMessageRenamesOnce(t *testing.T) {
	backend := &fakeBackend{
		history: map[string][]model.Message{"s1": nil},
		body: lines(
			`{"type":"chunk","data":{"content":"a"}}`,
			`{"type":"chunk","data":{"content":"b"}}`,
			`{"type":"chunk","data":{"content":"c"}}`,
		),
	}
	rec := &recorder{}
	v := newView(t, backend, rec)
	require.True(t, v.FirstMessage())

	_, err := v.Send(context.Background(), "How do I reset my VPN password?")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1:How do I reset ..."}, backend.renames)
	assert.Equal(t, []string{"How do I reset ..."}, rec.renamed)
	assert.False(t, v.FirstMessage())

	_, err = v.Send(context.Background(), "Second question")
	require.NoError(t, err)
	assert.Len(t, backend.renames, 1, "only the first message renames")
}

func TestSend_NoRenameWhenHistoryExists(t *testing.T) {
	backend := &fakeBackend{body: lines(`{"type":"chunk","data":{"content":"a"}}`)}
	v := newView(t, backend, &recorder{})

	_, err := v.Send(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, backend.renames)
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     string
	}{
		{"short", "hello", "hello"},
		{"exactly fifteen", "123456789012345", "123456789012345"},
		{"sixteen", "1234567890123456", "123456789012345..."},
		{"trimmed", "   padded   ", "padded"},
		{"multibyte", "如何重置我的虚拟专用网络密码以及其他问题", "如何重置我的虚拟专用网络密码以..."},
		{"combining marks normalize", "cafe\u0301 au lait and more", "caf\u00e9 au lait an..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveTitle(tt.question, 15)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Len(t, []rune(strings.TrimSuffix(DeriveTitle(strings.Repeat("x", 40), 15), "...")), 15)
}

// =============================================================================
// GATING AND SESSION SWITCHING
// =============================================================================

func TestSend_RejectsWhileSending(t *testing.T) {
	pr, pw := io.Pipe()
	backend := &fakeBackend{body: func() (io.ReadCloser, error) { return pr, nil }}
	v := newView(t, backend, &recorder{})

	done := make(chan error, 1)
	go func() {
		_, err := v.Send(context.Background(), "first")
		done <- err
	}()
	require.Eventually(t, v.Sending, time.Second, 5*time.Millisecond)

	_, err := v.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)

	_, _ = io.WriteString(pw, `{"type":"complete","data":{"user_message_id":"8","assistant_message_id":"9"}}`+"\n")
	require.NoError(t, pw.Close())
	require.NoError(t, <-done)
	assert.False(t, v.Sending())
	assert.Len(t, backend.requests, 1)
}

func TestSend_Rejections(t *testing.T) {
	v := NewView(&fakeBackend{}, nil, Options{})
	_, err := v.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	_, err = v.Send(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSend_SessionSwitchDropsUpdates(t *testing.T) {
	pr, pw := io.Pipe()
	backend := &fakeBackend{
		body:    func() (io.ReadCloser, error) { return pr, nil },
		history: map[string][]model.Message{"s1": history, "s2": {{ID: "20", Role: model.RoleUser}}},
	}
	rec := &recorder{}
	v := newView(t, backend, rec)

	done := make(chan *Exchange, 1)
	go func() {
		ex, _ := v.Send(context.Background(), "slow question")
		done <- ex
	}()
	require.Eventually(t, v.Sending, time.Second, 5*time.Millisecond)

	require.NoError(t, v.SelectSession(context.Background(), "s2"))
	rec.mu.Lock()
	seen := len(rec.sessions)
	rec.mu.Unlock()

	_, _ = io.WriteString(pw, `{"type":"chunk","data":{"content":"late"}}`+"\n")
	_, _ = io.WriteString(pw, `{"type":"complete","data":{"user_message_id":"30","assistant_message_id":"31"}}`+"\n")
	require.NoError(t, pw.Close())
	ex := <-done

	assert.Equal(t, StateReconciled, ex.State(), "the exchange still settles on its own transcript")
	rec.mu.Lock()
	assert.Equal(t, seen, len(rec.sessions), "no updates delivered after the switch")
	rec.mu.Unlock()
	assert.Equal(t, []string{"20"}, ids(v.Messages()))
	assert.Equal(t, "s2", v.SessionID())
}

// =============================================================================
// COMPOSER STATE
// =============================================================================

func TestSend_QuoteAndAttachmentClearedOnSuccess(t *testing.T) {
	backend := &fakeBackend{body: lines(`{"type":"complete","data":{"user_message_id":"3","assistant_message_id":"4"}}`)}
	v := newView(t, backend, &recorder{})

	file := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))
	require.NoError(t, v.AttachFile(file))
	require.NoError(t, v.Quote("2"))
	assert.Error(t, v.AttachFile(t.TempDir()))
	assert.ErrorIs(t, v.Quote("missing"), ErrNotFound)

	_, err := v.Send(context.Background(), "about that")
	require.NoError(t, err)

	require.Len(t, backend.requests, 1)
	assert.Equal(t, file, backend.requests[0].FilePath)
	require.NotNil(t, backend.requests[0].Quoted)
	assert.Equal(t, "earlier answer", backend.requests[0].Quoted.Content)

	sent, ok := func() (model.Message, bool) {
		for _, m := range v.Messages() {
			if m.ID == "3" {
				return m, true
			}
		}
		return model.Message{}, false
	}()
	require.True(t, ok)
	require.NotNil(t, sent.QuotedMessage)
	assert.Equal(t, "2", sent.QuotedMessage.ID)

	assert.Empty(t, v.PendingFile())
	assert.Nil(t, v.PendingQuote())
}

func TestDeleteMessage(t *testing.T) {
	backend := &fakeBackend{}
	rec := &recorder{}
	v := newView(t, backend, rec)

	require.NoError(t, v.DeleteMessage(context.Background(), "1"))
	assert.Equal(t, []string{"2"}, ids(v.Messages()))
	assert.Equal(t, []string{"1"}, backend.deleted)

	assert.ErrorIs(t, v.DeleteMessage(context.Background(), "temp-user-1"), ErrUnsaved)
	assert.ErrorIs(t, v.DeleteMessage(context.Background(), "404"), ErrNotFound)

	backend.deleteErr = errors.New("nope")
	assert.Error(t, v.DeleteMessage(context.Background(), "2"))
	assert.Empty(t, v.Messages(), "local removal is not rolled back")
}

type memCache struct {
	puts map[string][]model.Message
}

func (m *memCache) Put(sid string, msgs []model.Message) error {
	if m.puts == nil {
		m.puts = map[string][]model.Message{}
	}
	m.puts[sid] = msgs
	return nil
}

func TestSend_ReconciledTranscriptIsCached(t *testing.T) {
	cache := &memCache{}
	backend := &fakeBackend{
		history: map[string][]model.Message{"s1": history},
		body:    lines(`{"type":"complete","data":{"user_message_id":"3","assistant_message_id":"4"}}`),
	}
	v := NewView(backend, nil, Options{Cache: cache})
	require.NoError(t, v.SelectSession(context.Background(), "s1"))

	_, err := v.Send(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(cache.puts["s1"]))
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func TestTranscript_SnapshotIsIndependent(t *testing.T) {
	tr := NewTranscript(history)
	snap := tr.Snapshot()

	tr.Replace("2", func(m *model.Message) { m.Content = "changed" })
	tr.Append(model.Message{ID: "3"})

	assert.Equal(t, "earlier answer", snap[1].Content)
	assert.Len(t, snap, 2)
	assert.Equal(t, []string{"1", "2", "3"}, tr.IDs())

	assert.Equal(t, 2, tr.Remove("1", "3", "nope"))
	assert.Equal(t, []string{"2"}, tr.IDs())
	assert.False(t, tr.Replace("nope", func(*model.Message) {}))
}

func TestExchange_TransitionsOnce(t *testing.T) {
	tr := NewTranscript(nil)
	ex := beginExchange(tr, time.UnixMilli(5), "q", nil)
	assert.Equal(t, []string{"temp-user-5", "temp-assistant-5"}, tr.IDs())

	assert.True(t, ex.Fail())
	assert.False(t, ex.Reconcile("1", "2"))
	assert.False(t, ex.Finish())
	assert.False(t, ex.AppendChunk("x", ""))
	assert.Equal(t, StateFailed, ex.State())
	assert.Empty(t, tr.IDs())
}
