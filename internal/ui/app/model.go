// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/config"
	"github.com/jeranaias/kbchat/internal/credstore"
	"github.com/jeranaias/kbchat/internal/logging"
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/ui/components"
	"github.com/jeranaias/kbchat/internal/ui/styles"
	"github.com/jeranaias/kbchat/internal/workspace"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Authenticator signs the user in; *api.Client satisfies it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*api.LoginResult, error)
}

// Deps are the collaborators of the model. View and Store must have been
// built with the same Bridge the program is attached to.
type Deps struct {
	Auth    Authenticator
	Session *credstore.Session
	View    *chat.View
	Store   *workspace.Store
	Theme   *styles.Theme
	UI      config.UIConfig
	// Clipboard writes text to the system clipboard.
	Clipboard func(string) error
	Version   string
}

// =============================================================================
// MODEL
// =============================================================================

type screen int

const (
	screenLogin screen = iota
	screenMain
)

type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
)

const (
	loginFieldEmail = iota
	loginFieldPassword
)

// composerHeight is the textarea rows plus border and the status line.
const (
	inputRows      = 3
	composerHeight = inputRows + 3
)

// Model is the root bubbletea model.
type Model struct {
	deps Deps
	ctx  context.Context
	keys KeyMap

	screen screen
	focus  focusArea
	width  int
	height int

	// Login screen
	email      textinput.Model
	password   textinput.Model
	loginField int
	loginBusy  bool
	loginErr   string

	// Main screen
	sidebar  *components.Sidebar
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	help     help.Model
	showHelp bool
	md       *components.Markdown
	toasts   *components.ToastManager
	prompt   *prompt

	sessionID string
	selected  string
	messages  []model.Message
	sending   bool
}

// New creates the model. It opens on the main screen when the session
// already holds credentials.
func New(ctx context.Context, deps Deps) Model {
	if deps.Theme == nil {
		deps.Theme = styles.NewTheme(deps.UI.Theme)
	}
	if deps.Clipboard == nil {
		deps.Clipboard = clipboard.WriteAll
	}

	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.Prompt = ""
	email.CharLimit = 254
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = ""
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.CharLimit = 128

	ta := textarea.New()
	ta.Placeholder = "Ask the knowledge base..."
	ta.ShowLineNumbers = false
	ta.SetHeight(inputRows)
	ta.CharLimit = 8000
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = deps.Theme.Spinner

	md := components.NewMarkdown(deps.Theme.MarkdownStyle(), deps.Theme.CodeStyle())
	md.Disabled = !deps.UI.Markdown

	m := Model{
		deps:     deps,
		ctx:      ctx,
		keys:     DefaultKeyMap(),
		email:    email,
		password: password,
		sidebar:  &components.Sidebar{},
		viewport: viewport.New(80, 20),
		input:    ta,
		spinner:  sp,
		help:     help.New(),
		md:       md,
		toasts:   components.NewToastManager(),
	}
	if deps.Session != nil && deps.Session.Authenticated() {
		m.screen = screenMain
	}
	if u, ok := m.user(); ok {
		m.email.SetValue(u.Email)
	}
	return m
}

func (m Model) user() (model.User, bool) {
	if m.deps.Session == nil {
		return model.User{}, false
	}
	return m.deps.Session.User()
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts cursor blink and the toast ticker, and loads the workspaces
// when already signed in.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, components.ToastTickCmd()}
	if m.screen == screenMain {
		cmds = append(cmds, refreshCmd(m.ctx, m.deps))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case components.ToastTickMsg:
		m.toasts.Tick()
		return m, components.ToastTickCmd()

	case spinner.TickMsg:
		if !m.sending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refreshContent(false)
		return m, cmd

	case TranscriptMsg:
		m.sessionID = msg.SessionID
		m.messages = msg.Messages
		m.refreshContent(true)
		return m, nil

	case NoticeMsg:
		m.toasts.AddNotice(msg.Notice)
		return m, nil

	case SendingMsg:
		m.sending = msg.Sending
		m.refreshContent(false)
		if m.sending {
			return m, m.spinner.Tick
		}
		return m, nil

	case RenamedMsg:
		return m, sessionRenamedCmd(m.ctx, m.deps)

	case WorkspacesMsg:
		m.sidebar.SetWorkspaces(msg.Workspaces)
		return m, nil

	case SelectionMsg:
		m.selected = msg.SessionID
		if msg.SessionID == "" {
			if m.sessionID != "" {
				return m, clearSessionCmd(m.deps)
			}
			return m, nil
		}
		m.sidebar.FocusSession(msg.SessionID)
		return m, nil

	case LoggedOutMsg:
		m.screen = screenLogin
		m.loginBusy = false
		m.loginErr = "Signed out. Sign in again to continue."
		m.prompt = nil
		m.password.Reset()
		m.focusLoginField(loginFieldPassword)
		return m, clearSessionCmd(m.deps)

	case loginResultMsg:
		m.loginBusy = false
		if msg.err != nil {
			m.loginErr = msg.err.Error()
			return m, nil
		}
		m.loginErr = ""
		m.password.Reset()
		m.screen = screenMain
		m.setFocus(focusSidebar)
		return m, refreshCmd(m.ctx, m.deps)

	case sendDoneMsg:
		if msg.rejected {
			m.toasts.Add(components.ToastKindWarning, "Not sent", describeRejection(msg.err))
		}
		return m, nil

	case sessionOpenedMsg:
		if msg.err == nil {
			m.setFocus(focusInput)
		}
		return m, nil

	case opDoneMsg:
		if msg.err != nil {
			slog.DebugContext(m.ctx, logging.EventUI, "op", msg.op, "error", msg.err)
		}
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.toasts.Add(components.ToastKindError, "Clipboard unavailable", msg.err.Error())
		} else {
			m.toasts.Add(components.ToastKindSuccess, "Copied last answer", "")
		}
		return m, nil
	}

	return m.updateInputs(msg)
}

// updateInputs forwards anything else (cursor blink) to the focused input.
func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case m.screen == screenLogin && m.loginField == loginFieldEmail:
		m.email, cmd = m.email.Update(msg)
	case m.screen == screenLogin:
		m.password, cmd = m.password.Update(msg)
	case m.prompt != nil && !m.prompt.confirm:
		m.prompt.input, cmd = m.prompt.input.Update(msg)
	case m.focus == focusInput:
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width, m.height = msg.Width, msg.Height
	m.deps.Theme.SetSize(msg.Width, msg.Height)
	m.help.Width = msg.Width
	m.layout()
	return m, nil
}

func (m *Model) chatWidth() int {
	w := m.width - m.deps.Theme.SidebarWidth()
	if w < 20 {
		w = 20
	}
	return w
}

func (m *Model) layout() {
	w := m.chatWidth()
	h := m.height - 2 - composerHeight
	if h < 3 {
		h = 3
	}
	m.viewport.Width = w
	m.viewport.Height = h
	m.input.SetWidth(w - 4)
	m.refreshContent(false)
}

// refreshContent re-renders the transcript. The view follows the bottom
// when follow is set or it was already there.
func (m *Model) refreshContent(follow bool) {
	atBottom := m.viewport.AtBottom()
	frame := ""
	if m.sending {
		frame = m.spinner.View()
	}
	content := components.RenderTranscript(m.deps.Theme, m.md, m.messages, components.MessageOptions{
		Width:          m.viewport.Width - 1,
		ShowTimestamps: m.deps.UI.ShowTimestamps,
		SpinnerFrame:   frame,
	})
	m.viewport.SetContent(content)
	if follow || atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) setFocus(f focusArea) {
	m.focus = f
	if f == focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *Model) focusLoginField(field int) {
	m.loginField = field
	if field == loginFieldEmail {
		m.email.Focus()
		m.password.Blur()
	} else {
		m.email.Blur()
		m.password.Focus()
	}
}
