// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/config"
	"github.com/jeranaias/kbchat/internal/credstore"
	"github.com/jeranaias/kbchat/internal/devserver"
	"github.com/jeranaias/kbchat/internal/logging"
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/ui/components"
	"github.com/jeranaias/kbchat/internal/ui/styles"
	"github.com/jeranaias/kbchat/internal/workspace"
)

const (
	demoEmail    = "demo@example.com"
	demoPassword = "secret1"
)

// recorder stands in for the program and keeps what the Bridge sends.
type recorder struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recorder) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) take() []tea.Msg {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.msgs
	r.msgs = nil
	return out
}

type harness struct {
	client  *api.Client
	session *credstore.Session
	rec     *recorder
	copied  []string
	m       Model
}

func newHarness(t *testing.T, loggedIn bool) *harness {
	t.Helper()
	srv, err := devserver.New(devserver.Config{SeedEmail: demoEmail, SeedPassword: demoPassword, Logger: logging.Discard()})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	h := &harness{rec: &recorder{}}
	h.session = credstore.NewSession()
	h.client = api.NewClient(h.session, &api.ClientConfig{BaseURL: ts.URL})
	if loggedIn {
		_, err := h.client.Login(context.Background(), demoEmail, demoPassword)
		require.NoError(t, err)
	}

	bridge := &Bridge{}
	bridge.Attach(h.rec)
	h.session.OnClear(bridge.LoggedOut)

	h.m = New(context.Background(), Deps{
		Auth:    h.client,
		Session: h.session,
		View:    chat.NewView(h.client, bridge, chat.Options{}),
		Store:   workspace.NewStore(h.client, bridge),
		Theme:   styles.NewTheme("dark"),
		UI:      config.Default().UI,
		Clipboard: func(s string) error {
			h.copied = append(h.copied, s)
			return nil
		},
		Version: "test",
	})
	h.update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return h
}

// update feeds msg to the model and returns the command it produced.
func (h *harness) update(msg tea.Msg) tea.Cmd {
	next, cmd := h.m.Update(msg)
	h.m = next.(Model)
	return cmd
}

// run executes cmd and everything that follows from it until the model
// settles. Spinner ticks are dropped so nothing sleeps.
func (h *harness) run(cmd tea.Cmd) {
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 || len(h.rec.msgs) > 0 {
		var msgs []tea.Msg
		if len(queue) > 0 {
			c := queue[0]
			queue = queue[1:]
			if c != nil {
				if msg := c(); msg != nil {
					msgs = append(msgs, msg)
				}
			}
		}
		msgs = append(h.rec.take(), msgs...)
		for _, msg := range msgs {
			switch msg := msg.(type) {
			case spinner.TickMsg, components.ToastTickMsg:
				continue
			case tea.BatchMsg:
				queue = append(queue, msg...)
				continue
			}
			if next := h.update(msg); next != nil {
				queue = append(queue, next)
			}
		}
	}
}

func (h *harness) press(k tea.KeyMsg) {
	h.run(h.update(k))
}

func (h *harness) typeText(s string) {
	h.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func keyType(t tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: t}
}

func (h *harness) toastTitles() []string {
	var out []string
	for _, t := range h.m.toasts.Toasts() {
		out = append(out, t.Title)
	}
	return out
}

// openSession creates a workspace and session on the server, refreshes the
// sidebar and opens the session from it.
func (h *harness) openSession(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.client.CreateWorkspace(ctx, "Research"))
	ws, err := h.client.ListWorkspaces(ctx)
	require.NoError(t, err)
	sid, err := h.client.CreateSession(ctx, ws[len(ws)-1].WorkspaceID)
	require.NoError(t, err)

	h.run(refreshCmd(context.Background(), h.m.deps))
	h.m.setFocus(focusSidebar)
	require.True(t, h.m.sidebar.FocusSession(sid))
	h.press(keyType(tea.KeyEnter))
	require.Equal(t, sid, h.m.sessionID)
	require.Equal(t, focusInput, h.m.focus)
	return sid
}

func (h *harness) ask(question string) {
	h.typeText(question)
	h.press(keyType(tea.KeyEnter))
}

// =============================================================================
// LOGIN
// =============================================================================

func TestStartsOnLoginWhenSignedOut(t *testing.T) {
	h := newHarness(t, false)
	assert.Equal(t, screenLogin, h.m.screen)
	assert.Contains(t, h.m.View(), "Email")
}

func TestLoginFlow(t *testing.T) {
	h := newHarness(t, false)

	h.typeText(demoEmail)
	h.press(keyType(tea.KeyEnter))
	assert.Equal(t, loginFieldPassword, h.m.loginField, "enter on email moves to password")

	h.typeText(demoPassword)
	h.press(keyType(tea.KeyEnter))

	assert.Equal(t, screenMain, h.m.screen)
	assert.True(t, h.session.Authenticated())
	assert.Empty(t, h.m.loginErr)
	assert.Empty(t, h.m.password.Value())
}

func TestLoginFailureStaysOnLogin(t *testing.T) {
	h := newHarness(t, false)
	h.m.email.SetValue(demoEmail)
	h.m.password.SetValue("wrong-password")
	h.m.focusLoginField(loginFieldPassword)
	h.press(keyType(tea.KeyEnter))

	assert.Equal(t, screenLogin, h.m.screen)
	assert.NotEmpty(t, h.m.loginErr)
	assert.False(t, h.m.loginBusy)
}

func TestLoginRequiresBothFields(t *testing.T) {
	h := newHarness(t, false)
	h.m.focusLoginField(loginFieldPassword)
	h.typeText("x")
	h.press(keyType(tea.KeyEnter))
	assert.Equal(t, "Email and password are required", h.m.loginErr)
}

func TestLoggedOutReturnsToLogin(t *testing.T) {
	h := newHarness(t, true)
	h.openSession(t)

	h.session.Clear()
	h.run(nil)

	assert.Equal(t, screenLogin, h.m.screen)
	assert.Empty(t, h.m.sessionID)
	assert.Contains(t, h.m.loginErr, "Signed out")
}

// =============================================================================
// CHAT
// =============================================================================

func TestSendStreamsIntoTranscript(t *testing.T) {
	h := newHarness(t, true)
	sid := h.openSession(t)

	h.ask("What is our travel policy?")

	require.Len(t, h.m.messages, 2)
	for _, msg := range h.m.messages {
		assert.False(t, model.IsTemporaryID(msg.ID), "id %s", msg.ID)
	}
	assert.Equal(t, "You asked: What is our travel policy?", h.m.messages[1].Content)
	assert.False(t, h.m.sending)
	assert.Empty(t, h.m.input.Value())

	sess, _, ok := h.m.deps.Store.FindSession(sid)
	require.True(t, ok)
	assert.Equal(t, "What is our tra...", sess.SessionTitle)

	view := h.m.View()
	assert.Contains(t, view, "travel policy")
	assert.Contains(t, view, "What is our tra...")
}

func TestEscDoesNotInterruptSend(t *testing.T) {
	h := newHarness(t, true)
	h.openSession(t)
	h.m.toasts.Add(components.ToastKindStatus, "Earlier", "")

	h.typeText("Is esc an abort?")
	send := h.update(keyType(tea.KeyEnter))
	h.press(keyType(tea.KeyEsc))
	assert.False(t, h.m.toasts.HasToasts(), "esc dismisses toasts")

	h.run(send)
	require.Len(t, h.m.messages, 2)
	for _, msg := range h.m.messages {
		assert.False(t, model.IsTemporaryID(msg.ID), "id %s", msg.ID)
	}
	assert.Equal(t, "You asked: Is esc an abort?", h.m.messages[1].Content)
	assert.Empty(t, h.toastTitles())
	assert.False(t, h.m.sending)
}

func TestRejectedSendRaisesToast(t *testing.T) {
	h := newHarness(t, true)
	h.ask("hello")
	assert.Contains(t, h.toastTitles(), "Not sent")
	assert.Empty(t, h.m.messages)
}

func TestCopyLastAnswer(t *testing.T) {
	h := newHarness(t, true)
	h.press(keyType(tea.KeyCtrlY))
	assert.Contains(t, h.toastTitles(), "Nothing to copy")

	h.openSession(t)
	h.ask("Where is the handbook?")
	h.press(keyType(tea.KeyCtrlY))

	require.Len(t, h.copied, 1)
	assert.Equal(t, "You asked: Where is the handbook?", h.copied[0])
	assert.Contains(t, h.toastTitles(), "Copied last answer")
}

func TestQuoteLastAnswerToggles(t *testing.T) {
	h := newHarness(t, true)
	h.openSession(t)
	h.ask("First question")

	h.press(keyType(tea.KeyCtrlQ))
	q := h.m.deps.View.PendingQuote()
	require.NotNil(t, q)
	assert.Equal(t, model.RoleAssistant, q.Role)
	assert.Contains(t, h.m.View(), "quoting:")

	h.press(keyType(tea.KeyCtrlQ))
	assert.Nil(t, h.m.deps.View.PendingQuote())
}

func TestAttachFilePrompt(t *testing.T) {
	h := newHarness(t, true)
	h.openSession(t)

	dir := t.TempDir()
	h.press(keyType(tea.KeyCtrlO))
	require.NotNil(t, h.m.prompt)
	h.typeText(dir)
	h.press(keyType(tea.KeyEnter))
	assert.Contains(t, h.toastTitles(), "Cannot attach file")
	assert.Empty(t, h.m.deps.View.PendingFile())

	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))
	h.press(keyType(tea.KeyCtrlO))
	h.typeText(path)
	h.press(keyType(tea.KeyEnter))
	assert.Equal(t, path, h.m.deps.View.PendingFile())
	assert.Contains(t, h.m.View(), "attached: notes.txt")

	h.press(keyType(tea.KeyCtrlO))
	assert.Empty(t, h.m.deps.View.PendingFile(), "second ctrl+o removes the attachment")
}

// =============================================================================
// WORKSPACES AND SESSIONS
// =============================================================================

func TestNewWorkspacePrompt(t *testing.T) {
	h := newHarness(t, true)
	h.press(keyType(tea.KeyCtrlW))
	require.NotNil(t, h.m.prompt)
	h.typeText("Docs")
	h.press(keyType(tea.KeyEnter))

	assert.Nil(t, h.m.prompt)
	var titles []string
	for _, e := range h.m.sidebar.Entries() {
		titles = append(titles, e.Title)
	}
	assert.Contains(t, titles, "Docs")
}

func TestNewSessionNeedsWorkspace(t *testing.T) {
	h := newHarness(t, true)
	h.press(keyType(tea.KeyCtrlN))
	assert.Contains(t, h.toastTitles(), "No workspace")
}

func TestNewSessionOpensEmptySession(t *testing.T) {
	h := newHarness(t, true)
	old := h.openSession(t)

	h.press(keyType(tea.KeyCtrlN))

	assert.NotEmpty(t, h.m.sessionID)
	assert.NotEqual(t, old, h.m.sessionID)
	assert.Empty(t, h.m.messages)
	assert.Equal(t, h.m.sessionID, h.m.selected)
	assert.Equal(t, focusInput, h.m.focus)
	assert.True(t, h.m.deps.View.FirstMessage())
}

func TestRenameSessionPrompt(t *testing.T) {
	h := newHarness(t, true)
	sid := h.openSession(t)

	h.press(keyType(tea.KeyCtrlR))
	require.NotNil(t, h.m.prompt)
	assert.Equal(t, promptRenameSession, h.m.prompt.kind)
	h.m.prompt.input.SetValue("Renamed")
	h.press(keyType(tea.KeyEnter))

	sess, _, ok := h.m.deps.Store.FindSession(sid)
	require.True(t, ok)
	assert.Equal(t, "Renamed", sess.SessionTitle)
}

func TestDeleteSessionConfirm(t *testing.T) {
	h := newHarness(t, true)
	sid := h.openSession(t)

	h.press(keyType(tea.KeyCtrlD))
	require.NotNil(t, h.m.prompt)
	assert.True(t, h.m.prompt.confirm)

	h.press(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	assert.Nil(t, h.m.prompt)
	assert.Equal(t, sid, h.m.sessionID)

	h.press(keyType(tea.KeyCtrlD))
	h.press(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})

	assert.Empty(t, h.m.selected)
	assert.Empty(t, h.m.sessionID)
	_, _, ok := h.m.deps.Store.FindSession(sid)
	assert.False(t, ok)
}

func TestTabTogglesFocus(t *testing.T) {
	h := newHarness(t, true)
	assert.Equal(t, focusInput, h.m.focus)
	h.press(keyType(tea.KeyTab))
	assert.Equal(t, focusSidebar, h.m.focus)
	h.press(keyType(tea.KeyTab))
	assert.Equal(t, focusInput, h.m.focus)
}

func TestNoticesBecomeToasts(t *testing.T) {
	h := newHarness(t, true)
	h.update(NoticeMsg{Notice: chat.Notice{Level: chat.NoticeError, Title: "Failed to load chat history"}})
	assert.Contains(t, h.toastTitles(), "Failed to load chat history")

	h.press(keyType(tea.KeyEsc))
	assert.Empty(t, h.toastTitles())
}

func TestHelpToggle(t *testing.T) {
	h := newHarness(t, true)
	h.press(keyType(tea.KeyF1))
	assert.True(t, h.m.showHelp)
	assert.True(t, strings.Contains(h.m.View(), "new workspace"))
	h.press(keyType(tea.KeyF1))
	assert.False(t, h.m.showHelp)
}

// =============================================================================
// BRIDGE
// =============================================================================

func TestBridgeDropsBeforeAttach(t *testing.T) {
	var b Bridge
	b.Notice(chat.Notice{Title: "lost"})

	rec := &recorder{}
	b.Attach(rec)
	b.SessionRenamed("s1", "Title")
	b.SelectionChanged("")

	msgs := rec.take()
	require.Len(t, msgs, 2)
	assert.Equal(t, RenamedMsg{SessionID: "s1", Title: "Title"}, msgs[0])
	assert.Equal(t, SelectionMsg{}, msgs[1])
}
