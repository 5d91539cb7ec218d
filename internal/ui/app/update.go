// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/ui/components"
)

// =============================================================================
// PROMPTS
// =============================================================================

type promptKind int

const (
	promptNewWorkspace promptKind = iota
	promptRenameWorkspace
	promptRenameSession
	promptAttach
	promptDeleteSession
	promptDeleteWorkspace
)

// prompt is the one-line question shown in place of the composer.
type prompt struct {
	kind    promptKind
	target  string
	label   string
	confirm bool
	input   textinput.Model
}

func newPrompt(kind promptKind, target, label, value string) *prompt {
	p := &prompt{kind: kind, target: target, label: label}
	switch kind {
	case promptDeleteSession, promptDeleteWorkspace:
		p.confirm = true
	default:
		p.input = textinput.New()
		p.input.Prompt = "> "
		p.input.CharLimit = 200
		p.input.SetValue(value)
		p.input.CursorEnd()
		p.input.Focus()
	}
	return p
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.screen == screenLogin {
		return m.handleLoginKey(msg)
	}
	if m.prompt != nil {
		return m.handlePromptKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Dismiss):
		return m.handleDismiss()

	case key.Matches(msg, m.keys.Focus):
		if m.focus == focusInput {
			m.setFocus(focusSidebar)
		} else {
			m.setFocus(focusInput)
		}
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		return m, nil

	case key.Matches(msg, m.keys.NewSession):
		wid := m.targetWorkspace()
		if wid == "" {
			m.toasts.Add(components.ToastKindWarning, "No workspace", "Create a workspace first (ctrl+w)")
			return m, nil
		}
		return m, createSessionCmd(m.ctx, m.deps, wid)

	case key.Matches(msg, m.keys.NewWorkspace):
		m.prompt = newPrompt(promptNewWorkspace, "", "New workspace title", "")
		return m, textinput.Blink

	case key.Matches(msg, m.keys.DeleteSession):
		return m.openDeletePrompt()

	case key.Matches(msg, m.keys.Rename):
		return m.openRenamePrompt()

	case key.Matches(msg, m.keys.CopyAnswer):
		ans, ok := m.deps.View.LastAnswer()
		if !ok || strings.TrimSpace(ans.Content) == "" {
			m.toasts.Add(components.ToastKindStatus, "Nothing to copy", "")
			return m, nil
		}
		return m, copyCmd(m.deps.Clipboard, ans.Content)

	case key.Matches(msg, m.keys.QuoteAnswer):
		return m.toggleQuote()

	case key.Matches(msg, m.keys.AttachFile):
		if m.deps.View.PendingFile() != "" {
			m.deps.View.ClearAttachment()
			m.toasts.Add(components.ToastKindStatus, "Attachment removed", "")
			return m, nil
		}
		m.prompt = newPrompt(promptAttach, "", "File to attach", "")
		return m, textinput.Blink
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(msg)
	}
	return m.handleInputKey(msg)
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.sidebar.Move(-1)
	case key.Matches(msg, m.keys.Down):
		m.sidebar.Move(1)
	case key.Matches(msg, m.keys.Send):
		e, ok := m.sidebar.Current()
		if !ok || e.Kind != components.EntrySession {
			return m, nil
		}
		m.setFocus(focusInput)
		return m, selectSessionCmd(m.ctx, m.deps, e.SessionID)
	}
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Send) {
		question := strings.TrimSpace(m.input.Value())
		if question == "" {
			return m, nil
		}
		if m.sending {
			m.toasts.Add(components.ToastKindWarning, "Not sent", describeRejection(chat.ErrBusy))
			return m, nil
		}
		m.input.Reset()
		return m, sendCmd(m.ctx, m.deps, question)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleDismiss clears toasts first, then the help panel. A send in
// flight is never interrupted.
func (m Model) handleDismiss() (tea.Model, tea.Cmd) {
	switch {
	case m.toasts.HasToasts():
		m.toasts.Clear()
	case m.showHelp:
		m.showHelp = false
	}
	return m, nil
}

func (m Model) toggleQuote() (tea.Model, tea.Cmd) {
	if m.deps.View.PendingQuote() != nil {
		m.deps.View.ClearQuote()
		m.toasts.Add(components.ToastKindStatus, "Quote removed", "")
		return m, nil
	}
	ans, ok := m.deps.View.LastAnswer()
	switch {
	case !ok:
		m.toasts.Add(components.ToastKindStatus, "Nothing to quote", "")
	case ans.IsPending():
		m.toasts.Add(components.ToastKindWarning, "Answer still streaming", "Quote it once it completes")
	default:
		if err := m.deps.View.Quote(ans.ID); err != nil {
			m.toasts.Add(components.ToastKindError, "Cannot quote", err.Error())
		}
	}
	return m, nil
}

// targetWorkspace picks the workspace a new session goes into.
func (m Model) targetWorkspace() string {
	if m.focus == focusSidebar {
		if id := m.sidebar.CurrentWorkspaceID(); id != "" {
			return id
		}
	}
	if m.sessionID != "" {
		if w, ok := m.deps.Store.WorkspaceOf(m.sessionID); ok {
			return w.WorkspaceID
		}
	}
	if id := m.sidebar.CurrentWorkspaceID(); id != "" {
		return id
	}
	if ws := m.deps.Store.Workspaces(); len(ws) > 0 {
		return ws[0].WorkspaceID
	}
	return ""
}

// targetEntry is the sidebar row when the sidebar has focus, otherwise
// the visible session.
func (m Model) targetEntry() (components.Entry, bool) {
	if m.focus == focusSidebar {
		return m.sidebar.Current()
	}
	if m.sessionID == "" {
		return components.Entry{}, false
	}
	sess, w, ok := m.deps.Store.FindSession(m.sessionID)
	if !ok {
		return components.Entry{}, false
	}
	return components.Entry{
		Kind:        components.EntrySession,
		WorkspaceID: w.WorkspaceID,
		SessionID:   sess.SessionID,
		Title:       sess.SessionTitle,
	}, true
}

func (m Model) openDeletePrompt() (tea.Model, tea.Cmd) {
	e, ok := m.targetEntry()
	if !ok {
		m.toasts.Add(components.ToastKindStatus, "Nothing selected", "")
		return m, nil
	}
	if e.Kind == components.EntryWorkspace {
		m.prompt = newPrompt(promptDeleteWorkspace, e.WorkspaceID, "Delete workspace \""+e.Title+"\" and all its sessions? (y/n)", "")
	} else {
		m.prompt = newPrompt(promptDeleteSession, e.SessionID, "Delete session \""+e.Title+"\"? (y/n)", "")
	}
	return m, nil
}

func (m Model) openRenamePrompt() (tea.Model, tea.Cmd) {
	e, ok := m.targetEntry()
	if !ok {
		m.toasts.Add(components.ToastKindStatus, "Nothing selected", "")
		return m, nil
	}
	if e.Kind == components.EntryWorkspace {
		m.prompt = newPrompt(promptRenameWorkspace, e.WorkspaceID, "Rename workspace", e.Title)
	} else {
		m.prompt = newPrompt(promptRenameSession, e.SessionID, "Rename session", e.Title)
	}
	return m, textinput.Blink
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.prompt
	if p.confirm {
		switch strings.ToLower(msg.String()) {
		case "y":
			m.prompt = nil
			if p.kind == promptDeleteWorkspace {
				return m, deleteWorkspaceCmd(m.ctx, m.deps, p.target)
			}
			return m, deleteSessionCmd(m.ctx, m.deps, p.target)
		case "n", "esc":
			m.prompt = nil
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyEsc:
		m.prompt = nil
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(p.input.Value())
		m.prompt = nil
		if value == "" {
			return m, nil
		}
		return m.submitPrompt(p, value)
	}

	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return m, cmd
}

func (m Model) submitPrompt(p *prompt, value string) (tea.Model, tea.Cmd) {
	switch p.kind {
	case promptNewWorkspace:
		return m, createWorkspaceCmd(m.ctx, m.deps, value)
	case promptRenameWorkspace:
		return m, renameWorkspaceCmd(m.ctx, m.deps, p.target, value)
	case promptRenameSession:
		return m, renameSessionCmd(m.ctx, m.deps, p.target, value)
	case promptAttach:
		path := expandHome(value)
		if err := m.deps.View.AttachFile(path); err != nil {
			m.toasts.Add(components.ToastKindError, "Cannot attach file", err.Error())
			return m, nil
		}
		m.toasts.Add(components.ToastKindSuccess, "Attached "+filepath.Base(path), "")
	}
	return m, nil
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
		if m.loginField == loginFieldEmail {
			m.focusLoginField(loginFieldPassword)
		} else {
			m.focusLoginField(loginFieldEmail)
		}
		return m, textinput.Blink

	case tea.KeyEnter:
		if m.loginBusy {
			return m, nil
		}
		email := strings.TrimSpace(m.email.Value())
		if m.loginField == loginFieldEmail && m.password.Value() == "" {
			m.focusLoginField(loginFieldPassword)
			return m, textinput.Blink
		}
		if email == "" || m.password.Value() == "" {
			m.loginErr = "Email and password are required"
			return m, nil
		}
		m.loginBusy = true
		m.loginErr = ""
		return m, loginCmd(m.ctx, m.deps.Auth, email, m.password.Value())
	}

	var cmd tea.Cmd
	if m.loginField == loginFieldEmail {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
