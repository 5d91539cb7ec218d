// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL.
//
// Answers stream into the terminal as they arrive. Line editing and
// history come from liner when stdin is a terminal; piped stdin is read
// line by line so scripts can drive a conversation.
//
// Commands during chat:
//   /help               Show commands
//   /history            Reprint the session
//   /quote [id]         Quote a message (default: last answer)
//   /unquote            Drop the pending quote
//   /attach <path>      Attach a file to the next question
//   /detach             Drop the pending attachment
//   /delete <id>        Delete a message
//   /new                Start a new session in the same workspace
//   /session            Show the current session
//   /quit, /q           Exit (also Ctrl+D)

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/config"
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/util"
	"github.com/jeranaias/kbchat/internal/workspace"
)

const chatUsage = `Usage:
  kbchat chat [--session ID | --workspace ID]

Without --session a new session is started in --workspace, or in your
first workspace. Type /help inside the chat for commands.`

var slashCommands = []string{
	"/help", "/history", "/quote", "/unquote", "/attach", "/detach",
	"/delete", "/new", "/session", "/quit",
}

// =============================================================================
// INPUT
// =============================================================================

// lineSource is where the REPL reads questions from.
type lineSource interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// linerSource is the interactive source with history and completion.
type linerSource struct {
	state       *liner.State
	historyFile string
}

func newLinerSource() *linerSource {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetCompleter(func(line string) []string {
		if !strings.HasPrefix(line, "/") {
			return nil
		}
		var out []string
		for _, c := range slashCommands {
			if strings.HasPrefix(c, line) {
				out = append(out, c)
			}
		}
		return out
	})

	src := &linerSource{state: state}
	if dir, err := config.ConfigDir(); err == nil {
		src.historyFile = filepath.Join(dir, "chat_history")
		if f, err := os.Open(src.historyFile); err == nil {
			_, _ = state.ReadHistory(f)
			f.Close()
		}
	}
	return src
}

func (s *linerSource) Prompt(prompt string) (string, error) {
	return s.state.Prompt(prompt)
}

func (s *linerSource) AppendHistory(item string) {
	s.state.AppendHistory(item)
}

// Close saves history with owner-only permissions and restores the terminal.
func (s *linerSource) Close() error {
	if s.historyFile != "" && config.EnsureConfigDir() == nil {
		if f, err := os.OpenFile(s.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = s.state.WriteHistory(f)
			f.Close()
		}
	}
	return s.state.Close()
}

// plainSource reads questions from a non-terminal stdin.
type plainSource struct {
	r *lineReader
}

func (s plainSource) Prompt(string) (string, error) { return s.r.ReadLine() }
func (s plainSource) AppendHistory(string)          {}
func (s plainSource) Close() error                  { return nil }

// =============================================================================
// REPL
// =============================================================================

type chatREPL struct {
	env     *Env
	view    *chat.View
	store   *workspace.Store
	printer *streamPrinter
	md      *markdownRenderer
	input   lineSource
}

func runChat(ctx context.Context, env *Env, args *ArgParser) error {
	if err := env.requireLogin(); err != nil {
		return err
	}

	sid, created, err := resolveSession(ctx, env, args)
	if err != nil {
		return err
	}

	printer := newStreamPrinter(env)
	r := &chatREPL{
		env:     env,
		printer: printer,
		store:   newStore(env),
		md:      newMarkdownRenderer(env, args),
		view: chat.NewView(env.Client, printer, chat.Options{
			TitleLength: env.Config.Chat.TitleLength,
			Cache:       env.chatCache(),
		}),
	}
	if created {
		r.view.OpenEmptySession(sid)
	} else if err := r.view.SelectSession(ctx, sid); err != nil {
		return err
	}

	if env.interactive() {
		r.input = newLinerSource()
	} else {
		r.input = plainSource{r: env.input}
	}
	defer r.input.Close()

	r.banner()
	return r.loop(ctx)
}

func (r *chatREPL) banner() {
	if r.env.Quiet {
		return
	}
	msgs := r.view.Messages()
	fmt.Fprintf(r.env.Err, "%s %s\n", TitleStyle.Render("kbchat"), DimStyle.Render("session #"+r.view.SessionID()))
	if n := len(msgs); n > 0 {
		fmt.Fprintln(r.env.Err, DimStyle.Render(fmt.Sprintf("%d earlier messages; /history shows them.", n)))
	}
	fmt.Fprintln(r.env.Err, DimStyle.Render("Type a question, /help for commands, /quit to leave."))
}

func (r *chatREPL) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := r.input.Prompt(r.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.env.Err)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.input.AppendHistory(line)

		if strings.HasPrefix(line, "/") {
			quit, err := r.slash(ctx, line)
			if err != nil {
				fmt.Fprintf(r.env.Err, "%s %v\n", ErrorStyle.Render("[X]"), err)
			}
			if quit {
				return nil
			}
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil
		}

		r.send(ctx, line)
	}
}

// prompt shows pending attachment and quote markers.
func (r *chatREPL) prompt() string {
	var marks []string
	if f := r.view.PendingFile(); f != "" {
		marks = append(marks, "+"+filepath.Base(f))
	}
	if r.view.PendingQuote() != nil {
		marks = append(marks, "quote")
	}
	if len(marks) == 0 {
		return "kbchat> "
	}
	return "kbchat [" + strings.Join(marks, " ") + "]> "
}

// send streams one answer. It returns once the stream completes or fails.
func (r *chatREPL) send(ctx context.Context, question string) {
	fmt.Fprint(r.env.Out, AssistantStyle.Render("Assistant")+" ")
	r.printer.begin(len(r.view.Messages()), true)
	ex, err := r.view.Send(ctx, question)
	printed := r.printer.end()

	if err != nil {
		if ex == nil {
			// Rejected before anything was sent.
			fmt.Fprintln(r.env.Out)
			fmt.Fprintf(r.env.Err, "%s %v\n", ErrorStyle.Render("[X]"), err)
		} else if !printed {
			fmt.Fprintln(r.env.Out)
		}
		return
	}
	if !printed {
		fmt.Fprintln(r.env.Out, DimStyle.Render("(empty answer)"))
	}
	if _, aid := ex.IDs(); aid != "" {
		if m, ok := findMessage(r.view.Messages(), aid); ok {
			printSources(r.env.Out, m.RelatedFiles)
		}
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func (r *chatREPL) slash(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	cmd, rest := strings.ToLower(fields[0]), strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch cmd {
	case "/quit", "/q", "/exit":
		return true, nil

	case "/help", "/h", "/?":
		r.help()

	case "/history":
		printTranscript(r.env.Out, r.md, r.view.Messages())

	case "/session":
		sid := r.view.SessionID()
		title, ws := sessionTitle(ctx, r.env, sid)
		fmt.Fprintln(r.env.Out, RenderKV("Session", sid))
		fmt.Fprintln(r.env.Out, RenderKV("Title", title))
		if ws != "" {
			fmt.Fprintln(r.env.Out, RenderKV("Workspace", ws))
		}

	case "/quote":
		id := rest
		if id == "" {
			last, ok := r.view.LastAnswer()
			if !ok {
				return false, errors.New("no answer to quote yet")
			}
			id = last.ID
		}
		if err := r.view.Quote(id); err != nil {
			return false, err
		}
		q := r.view.PendingQuote()
		fmt.Fprintln(r.env.Err, DimStyle.Render("quoting: "+util.TruncateRunes(util.SingleLine(q.Content), 60)))

	case "/unquote":
		r.view.ClearQuote()

	case "/attach":
		if rest == "" {
			return false, ErrMissingArgument("path", "/attach <path>")
		}
		if err := r.view.AttachFile(expandHome(rest)); err != nil {
			return false, err
		}

	case "/detach":
		r.view.ClearAttachment()

	case "/delete":
		if rest == "" {
			return false, ErrMissingArgument("message-id", "/delete <message-id>")
		}
		if err := r.view.DeleteMessage(ctx, rest); err != nil {
			return false, err
		}

	case "/new":
		if err := r.store.Refresh(ctx); err != nil {
			return false, err
		}
		w, ok := r.store.WorkspaceOf(r.view.SessionID())
		if !ok {
			return false, errors.New("the current session is no longer listed")
		}
		sid, err := r.store.CreateSession(ctx, w.WorkspaceID)
		if err != nil {
			return false, err
		}
		r.view.OpenEmptySession(sid)
		fmt.Fprintln(r.env.Err, DimStyle.Render("new session #"+sid))

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return false, nil
}

func (r *chatREPL) help() {
	rows := [][]string{
		{"/history", "Reprint the session"},
		{"/quote [id]", "Quote a message (default: last answer)"},
		{"/unquote", "Drop the pending quote"},
		{"/attach <path>", "Attach a file to the next question"},
		{"/detach", "Drop the pending attachment"},
		{"/delete <id>", "Delete a message"},
		{"/new", "Start a new session in this workspace"},
		{"/session", "Show the current session"},
		{"/quit", "Exit (also Ctrl+D)"},
	}
	fmt.Fprintln(r.env.Out, RenderTable([]string{"Command", "Description"}, rows))
}

func findMessage(msgs []model.Message, id string) (model.Message, bool) {
	for _, m := range msgs {
		if m.ID == id {
			return m, true
		}
	}
	return model.Message{}, false
}

// expandHome resolves a leading ~/ against the home directory.
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
