// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

// Markdown renders answers: prose through glamour, fenced code through
// chroma. Renderers are cached per width since glamour setup is slow.
type Markdown struct {
	// Style is the glamour standard style ("dark", "light", "notty").
	Style string
	// CodeStyle is the chroma style for fenced blocks.
	CodeStyle string
	// Disabled renders prose as wrapped plain text.
	Disabled bool

	mu        sync.Mutex
	renderers map[int]*glamour.TermRenderer
}

// NewMarkdown returns a renderer using the given glamour and chroma styles.
func NewMarkdown(style, codeStyle string) *Markdown {
	return &Markdown{
		Style:     style,
		CodeStyle: codeStyle,
		renderers: make(map[int]*glamour.TermRenderer),
	}
}

// Render formats content for a column of width cells.
func (m *Markdown) Render(content string, width int) string {
	if width < 20 {
		width = 20
	}
	var parts []string
	for _, seg := range SplitFences(content) {
		if seg.Code {
			cb := NewCodeBlock(seg.Language, seg.Text)
			cb.MaxWidth = width
			cb.Style = m.CodeStyle
			parts = append(parts, cb.Render())
			continue
		}
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		parts = append(parts, m.prose(seg.Text, width))
	}
	return strings.Join(parts, "\n")
}

func (m *Markdown) prose(text string, width int) string {
	plain := func() string {
		return lipgloss.NewStyle().Width(width).Render(strings.TrimSpace(text))
	}
	if m.Disabled {
		return plain()
	}
	r, err := m.renderer(width)
	if err != nil {
		slog.Debug("MARKDOWN", "error", err)
		return plain()
	}
	out, err := r.Render(text)
	if err != nil {
		slog.Debug("MARKDOWN", "error", err)
		return plain()
	}
	return strings.Trim(out, "\n")
}

func (m *Markdown) renderer(width int) (*glamour.TermRenderer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.renderers[width]; ok {
		return r, nil
	}
	style := m.Style
	if style == "" {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	if m.renderers == nil {
		m.renderers = make(map[int]*glamour.TermRenderer)
	}
	m.renderers[width] = r
	return r, nil
}
