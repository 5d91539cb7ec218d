// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/kbchat/internal/ui/styles"
)

// =============================================================================
// CODE BLOCK RENDERER
// =============================================================================

// CodeBlock is a fenced block from an answer.
type CodeBlock struct {
	Language string
	Code     string
	MaxWidth int
	// Style is a chroma style name; empty means monokai.
	Style string
	// LineNumbers prefixes each line with its number.
	LineNumbers bool
}

// NewCodeBlock creates a new code block.
func NewCodeBlock(language, code string) CodeBlock {
	return CodeBlock{
		Language:    language,
		Code:        code,
		MaxWidth:    80,
		LineNumbers: true,
	}
}

// Render renders the code block with highlighting and a language badge.
func (c CodeBlock) Render() string {
	code := strings.TrimRight(c.Code, "\n")

	language := c.Language
	if language == "" {
		language = detectLanguage(code)
	}

	lines := strings.Split(highlightCode(code, language, c.Style), "\n")

	lineNumStyle := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Width(4).
		Align(lipgloss.Right).
		MarginRight(1)

	rendered := make([]string, 0, len(lines))
	for i, line := range lines {
		if c.LineNumbers {
			line = lineNumStyle.Render(strconv.Itoa(i+1)) + line
		}
		rendered = append(rendered, line)
	}

	var header string
	if c.Language != "" {
		header = lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Background(styles.Overlay).
			Padding(0, 1).
			Bold(true).
			Render(c.Language) + "\n"
	}

	maxWidth := c.MaxWidth - 4
	if maxWidth < 20 {
		maxWidth = 20
	}

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(styles.Overlay).
		Padding(0, 1).
		MaxWidth(maxWidth).
		Render(header + strings.Join(rendered, "\n"))
}

// =============================================================================
// FENCE SPLITTING
// =============================================================================

// Segment is a run of prose or one fenced code block.
type Segment struct {
	Code     bool
	Language string
	Text     string
}

// SplitFences cuts markdown into prose and fenced code segments. A fence
// left open, as happens while an answer is still streaming, runs to the end
// of the text.
func SplitFences(text string) []Segment {
	var (
		out      []Segment
		buf      []string
		inCode   bool
		language string
	)
	flush := func(code bool) {
		if len(buf) == 0 && !code {
			return
		}
		out = append(out, Segment{Code: code, Language: language, Text: strings.Join(buf, "\n")})
		buf = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inCode {
				flush(true)
				language = ""
				inCode = false
			} else {
				flush(false)
				language = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
				inCode = true
			}
			continue
		}
		buf = append(buf, line)
	}
	if inCode {
		flush(true)
	} else {
		flush(false)
	}
	return out
}

// ParseCodeBlocks replaces fenced blocks in text with rendered ones and
// leaves the prose untouched.
func ParseCodeBlocks(text string, maxWidth int, style string) string {
	var parts []string
	for _, seg := range SplitFences(text) {
		if !seg.Code {
			parts = append(parts, seg.Text)
			continue
		}
		cb := NewCodeBlock(seg.Language, seg.Text)
		cb.MaxWidth = maxWidth
		cb.Style = style
		parts = append(parts, cb.Render())
	}
	return strings.Join(parts, "\n")
}

// =============================================================================
// SYNTAX HIGHLIGHTING (Chroma-based)
// =============================================================================

// highlightCode returns code with ANSI highlighting, or code unchanged when
// chroma cannot tokenise it.
func highlightCode(code, language, styleName string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	if styleName == "" {
		styleName = "monokai"
	}
	style := chromaStyles.Get(styleName)
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

func detectLanguage(code string) string {
	if lexer := lexers.Analyse(code); lexer != nil {
		return lexer.Config().Name
	}
	return ""
}
