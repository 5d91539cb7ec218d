// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Shared helpers: session resolution, markdown and transcript output.

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/ui/styles"
	"github.com/jeranaias/kbchat/internal/util"
)

// =============================================================================
// SESSION RESOLUTION
// =============================================================================

// resolveSession picks the session a chat command talks to: --session if
// given, otherwise a new session in --workspace or in the first workspace.
// The bool reports whether a session was created.
func resolveSession(ctx context.Context, env *Env, args *ArgParser) (string, bool, error) {
	if sid := args.FirstFlag("session", "s"); sid != "" {
		return sid, false, nil
	}

	wid := args.FirstFlag("workspace", "w")
	if wid == "" {
		list, err := env.Client.ListWorkspaces(ctx)
		if err != nil {
			return "", false, err
		}
		if len(list) == 0 {
			return "", false, &ValidationError{
				Field:   "workspace",
				Reason:  "you have no workspaces yet",
				Example: "kbchat workspace create \"My research\"",
			}
		}
		wid = list[0].WorkspaceID
	}

	sid, err := env.Client.CreateSession(ctx, wid)
	if err != nil {
		return "", false, err
	}
	env.info("Started session %s in workspace %s", sid, wid)
	return sid, true, nil
}

// sessionTitle looks a session up in the workspace list. Lookup failures
// are not fatal; the id stands in for the title.
func sessionTitle(ctx context.Context, env *Env, sessionID string) (title, workspace string) {
	list, err := env.Client.ListWorkspaces(ctx)
	if err != nil {
		return sessionID, ""
	}
	for _, w := range list {
		if s, ok := w.FindSession(sessionID); ok {
			return s.SessionTitle, w.WorkspaceTitle
		}
	}
	return sessionID, ""
}

// =============================================================================
// MARKDOWN
// =============================================================================

// markdownRenderer renders answers for a terminal. It is nil when output
// is piped or markdown is disabled, and plain text is printed instead.
type markdownRenderer struct {
	r     *glamour.TermRenderer
	width int
}

func newMarkdownRenderer(env *Env, args *ArgParser) *markdownRenderer {
	width := terminalWidth(env.Out)
	if ww := env.Config.UI.WordWrap; ww > 0 && ww < width {
		width = ww
	}
	m := &markdownRenderer{width: width}
	if !env.Config.UI.Markdown || args.BoolFlag("raw", "no-markdown") || !isTerminal(env.Out) || !ColorsEnabled() {
		return m
	}
	theme := styles.NewTheme(env.Config.UI.Theme)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(theme.MarkdownStyle()),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		m.r = r
	}
	return m
}

// Render returns content formatted for the terminal.
func (m *markdownRenderer) Render(content string) string {
	if m == nil || m.r == nil {
		return strings.TrimRight(content, "\n") + "\n"
	}
	out, err := m.r.Render(content)
	if err != nil {
		return strings.TrimRight(content, "\n") + "\n"
	}
	return out
}

// =============================================================================
// TRANSCRIPT OUTPUT
// =============================================================================

// printMessage writes one message with its label, quote and sources.
func printMessage(w io.Writer, md *markdownRenderer, m model.Message) {
	label := UserStyle.Render(m.Role.DisplayName())
	if m.Role == model.RoleAssistant {
		label = AssistantStyle.Render(m.Role.DisplayName())
	}
	stamp := ""
	if t := m.Time(); !t.IsZero() {
		stamp = " " + DimStyle.Render(t.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "%s%s %s\n", label, stamp, DimStyle.Render("#"+m.ID))

	if q := m.QuotedMessage; q != nil {
		fmt.Fprintln(w, DimStyle.Render("> "+util.TruncateRunes(util.SingleLine(q.Content), 80)))
	}
	if m.Role == model.RoleAssistant {
		fmt.Fprint(w, md.Render(m.Content))
	} else {
		fmt.Fprintln(w, WrapText(m.Content, md.width))
	}
	printSources(w, m.RelatedFiles)
}

// printSources lists the documents an answer drew on.
func printSources(w io.Writer, files []model.FileMetadata) {
	if len(files) == 0 {
		return
	}
	fmt.Fprintln(w, DimStyle.Render("Sources:"))
	for _, f := range files {
		fmt.Fprintf(w, "  %s %s\n", DimStyle.Render("•"), f.FileName)
	}
}

// printTranscript writes every message separated by rules.
func printTranscript(w io.Writer, md *markdownRenderer, msgs []model.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No messages."))
		return
	}
	for i, m := range msgs {
		if i > 0 {
			fmt.Fprintln(w, RenderSeparator(min(md.width, 60)))
		}
		printMessage(w, md, m)
	}
}

// formatAge renders how long ago t was, coarsely.
func formatAge(t time.Time, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
