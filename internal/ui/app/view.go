// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/kbchat/internal/ui/components"
	"github.com/jeranaias/kbchat/internal/ui/styles"
	"github.com/jeranaias/kbchat/internal/util"
)

// View renders the current screen.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.screen == screenLogin {
		return m.viewLogin()
	}
	return m.viewMain()
}

// =============================================================================
// LOGIN SCREEN
// =============================================================================

func (m Model) viewLogin() string {
	t := m.deps.Theme
	lines := []string{
		t.LoginTitle.Render("kbchat"),
		t.Label.Render("Email") + m.email.View(),
		t.Label.Render("Password") + m.password.View(),
		"",
	}
	switch {
	case m.loginBusy:
		lines = append(lines, t.Muted.Render("Signing in..."))
	case m.loginErr != "":
		lines = append(lines, styles.RenderError(m.loginErr))
	default:
		lines = append(lines, t.Muted.Render("enter to sign in · tab to switch field · ctrl+c to quit"))
	}
	box := t.LoginBox.Render(strings.Join(lines, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// =============================================================================
// MAIN SCREEN
// =============================================================================

func (m Model) viewMain() string {
	t := m.deps.Theme
	bodyHeight := m.height - 2
	if bodyHeight < 4 {
		bodyHeight = 4
	}

	chat := m.viewChat(bodyHeight)
	body := chat
	if sw := t.SidebarWidth(); sw > 0 {
		side := m.sidebar.Render(t, sw, bodyHeight, m.selected, m.focus == focusSidebar)
		body = lipgloss.JoinHorizontal(lipgloss.Top, side, chat)
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.viewHeader(), body, m.viewStatus())
}

func (m Model) viewHeader() string {
	t := m.deps.Theme
	left := t.HeaderTitle.Render("kbchat")
	if m.sessionID != "" {
		if sess, w, ok := m.deps.Store.FindSession(m.sessionID); ok {
			left += t.HeaderInfo.Render("  " + w.WorkspaceTitle + " / " + sess.SessionTitle)
		}
	}
	right := ""
	if u, ok := m.user(); ok {
		right = t.HeaderInfo.Render(u.Email)
	}
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - t.Header.GetHorizontalFrameSize()
	if gap < 1 {
		gap = 1
	}
	return t.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) viewChat(height int) string {
	width := m.chatWidth()

	toasts := m.toastStack(width)
	vp := m.viewport
	vp.Height = height - composerHeight - lipgloss.Height(toasts)
	if toasts == "" {
		vp.Height = height - composerHeight
	}
	if vp.Height < 1 {
		vp.Height = 1
	}

	var main string
	if m.showHelp {
		h := m.help
		h.ShowAll = true
		main = lipgloss.NewStyle().Width(width).Height(vp.Height).Render(h.View(m.keys))
	} else {
		main = vp.View()
	}

	parts := []string{main}
	if toasts != "" {
		parts = append(parts, lipgloss.PlaceHorizontal(width, lipgloss.Right, toasts))
	}
	parts = append(parts, m.viewComposer(width))
	return lipgloss.NewStyle().Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) toastStack(width int) string {
	toasts := m.toasts.Toasts()
	if len(toasts) == 0 {
		return ""
	}
	return components.RenderToastStack(toasts, width, time.Now())
}

func (m Model) viewComposer(width int) string {
	t := m.deps.Theme
	if m.prompt != nil {
		content := t.WarningStyle.Render(m.prompt.label)
		if !m.prompt.confirm {
			content += "\n" + m.prompt.input.View()
		}
		return t.PromptBox.Width(width - t.PromptBox.GetHorizontalFrameSize()).
			Height(composerHeight - t.PromptBox.GetVerticalFrameSize()).
			Render(content)
	}

	box := t.InputContainer
	if m.focus == focusInput {
		box = t.InputFocused
	}
	input := box.Width(width - box.GetHorizontalFrameSize()).Render(m.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, input, m.composerInfo(width))
}

// composerInfo is the line under the input: spinner, attachment, quote.
func (m Model) composerInfo(width int) string {
	t := m.deps.Theme
	var parts []string
	if m.sending {
		parts = append(parts, m.spinner.View()+t.Muted.Render(" answering..."))
	}
	if f := m.deps.View.PendingFile(); f != "" {
		parts = append(parts, t.Attachment.Render("attached: "+filepath.Base(f)))
	}
	if q := m.deps.View.PendingQuote(); q != nil {
		parts = append(parts, t.Muted.Render("quoting: "+util.TruncateRunes(util.SingleLine(q.Content), 40)))
	}
	if len(parts) == 0 && m.sessionID == "" {
		parts = append(parts, t.Muted.Render("select a session (tab) or create one (ctrl+n)"))
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(strings.Join(parts, t.Muted.Render("  ·  ")))
}

func (m Model) viewStatus() string {
	t := m.deps.Theme
	left := m.help.ShortHelpView(m.keys.ShortHelp())
	right := ""
	if m.deps.Version != "" {
		right = t.Muted.Render("v" + m.deps.Version)
	}
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - t.StatusBar.GetHorizontalFrameSize()
	if gap < 1 {
		gap = 1
	}
	return t.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}
