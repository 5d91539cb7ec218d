// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/ui/styles"
	"github.com/jeranaias/kbchat/internal/util"
)

// =============================================================================
// MESSAGE BUBBLES
// =============================================================================

// quotePreviewLength bounds the quoted text shown above a question.
const quotePreviewLength = 120

// MessageOptions controls how a transcript is drawn.
type MessageOptions struct {
	Width          int
	ShowTimestamps bool
	// SpinnerFrame is shown in an assistant placeholder that has no text yet.
	SpinnerFrame string
}

// RenderMessage draws one message as a bubble. Assistant text goes through
// md; user text is wrapped as typed.
func RenderMessage(theme *styles.Theme, md *Markdown, m model.Message, opts MessageOptions) string {
	width := opts.Width
	if width < 30 {
		width = 30
	}

	bubble := theme.AssistantBubble
	label := theme.AssistantLabel.Render(m.Role.DisplayName())
	if m.Role == model.RoleUser {
		bubble = theme.UserBubble
		label = theme.UserLabel.Render(m.Role.DisplayName())
	}
	inner := width - bubble.GetHorizontalFrameSize()
	if inner < 20 {
		inner = 20
	}

	header := label
	if opts.ShowTimestamps && !m.Time().IsZero() {
		header += " " + theme.Timestamp.Render(m.Time().Format("15:04"))
	}
	if m.IsPending() {
		header += " " + theme.Pending.Render("sending")
	}

	var body []string
	body = append(body, header)

	if q := m.QuotedMessage; q != nil {
		body = append(body, RenderQuote(theme, *q, inner))
	}

	switch {
	case m.Role == model.RoleAssistant && m.Content == "" && m.IsPending():
		body = append(body, theme.Pending.Render(strings.TrimSpace(opts.SpinnerFrame+" Thinking...")))
	case m.Role == model.RoleAssistant && md != nil:
		body = append(body, md.Render(m.Content, inner))
	default:
		body = append(body, lipgloss.NewStyle().Width(inner).Render(m.Content))
	}

	if len(m.RelatedFiles) > 0 {
		body = append(body, RenderSources(theme, m.RelatedFiles, inner))
	}

	return bubble.Width(inner).Render(strings.Join(body, "\n"))
}

// RenderQuote draws a quoted message preview.
func RenderQuote(theme *styles.Theme, q model.QuotedMessage, width int) string {
	text := util.TruncateRunes(util.SingleLine(q.Content), quotePreviewLength)
	who := q.Role.DisplayName()
	return theme.QuoteBlock.Width(width - theme.QuoteBlock.GetHorizontalFrameSize()).
		Render(who + ": " + text)
}

// RenderSources lists the knowledge-base files an answer drew on.
func RenderSources(theme *styles.Theme, files []model.FileMetadata, width int) string {
	lines := []string{theme.SourcesLabel.Render("Sources")}
	for _, f := range files {
		name := util.TruncateWidth(f.FileName, width-2)
		lines = append(lines, theme.SourceItem.Render("• "+name))
	}
	return strings.Join(lines, "\n")
}

// RenderTranscript draws every message separated by a blank line.
func RenderTranscript(theme *styles.Theme, md *Markdown, msgs []model.Message, opts MessageOptions) string {
	if len(msgs) == 0 {
		return theme.Muted.Render("No messages yet. Type a question and press enter.")
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, RenderMessage(theme, md, m, opts))
	}
	return strings.Join(parts, "\n\n")
}
