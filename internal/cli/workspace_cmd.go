// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// workspace_cmd.go - workspace, session and message commands.

package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/storage"
	"github.com/jeranaias/kbchat/internal/workspace"
)

const workspaceUsage = `Usage:
  kbchat workspace list [--json]
  kbchat workspace create <title...>
  kbchat workspace rename <workspace-id> <title...>
  kbchat workspace delete <workspace-id> [--yes]`

const sessionUsage = `Usage:
  kbchat session create <workspace-id>
  kbchat session rename <session-id> <title...>
  kbchat session delete <session-id> [--yes]
  kbchat session history <session-id> [--cached] [--raw] [--json]
  kbchat session cached [search terms...] [--json]

history fetches from the server and refreshes the local cache;
--cached reads the cache only and works offline.`

const messageUsage = `Usage:
  kbchat message delete <message-id> [--yes]`

// newStore returns a workspace store that reports through return values.
func newStore(env *Env) *workspace.Store {
	return workspace.NewStore(env.Client, workspace.ListenerFuncs{})
}

// =============================================================================
// WORKSPACE
// =============================================================================

func runWorkspace(ctx context.Context, env *Env, args *ArgParser) error {
	if err := env.requireLogin(); err != nil {
		return err
	}
	store := newStore(env)

	switch sub := args.Subcommand(); sub {
	case "list", "ls", "":
		if err := store.Refresh(ctx); err != nil {
			return err
		}
		list := store.Workspaces()
		return env.emit("workspace list", list, func() {
			printWorkspaceTree(env, list)
		})

	case "create", "new":
		title := JoinPositionalArgs(args, 1)
		if strings.TrimSpace(title) == "" {
			return ErrMissingArgument("title", "kbchat workspace create <title...>")
		}
		if err := store.CreateWorkspace(ctx, title); err != nil {
			return err
		}
		list := store.Workspaces()
		var created model.Workspace
		for _, w := range list {
			// The newest workspace with this title is the one just made.
			if w.WorkspaceTitle == title {
				created = w
			}
		}
		return env.emit("workspace create", created, func() {
			env.success("Created workspace %q %s", title, DimStyle.Render("("+created.WorkspaceID+")"))
		})

	case "rename":
		id, err := args.RequirePositional(1, "workspace-id", "kbchat workspace rename <workspace-id> <title...>")
		if err != nil {
			return err
		}
		title := JoinPositionalArgs(args, 2)
		if strings.TrimSpace(title) == "" {
			return ErrMissingArgument("title", "kbchat workspace rename <workspace-id> <title...>")
		}
		if err := store.RenameWorkspace(ctx, id, title); err != nil {
			return err
		}
		return env.emit("workspace rename", map[string]string{"workspace_id": id, "title": title}, func() {
			env.success("Renamed workspace %s to %q", id, title)
		})

	case "delete", "rm":
		id, err := args.RequirePositional(1, "workspace-id", "kbchat workspace delete <workspace-id>")
		if err != nil {
			return err
		}
		if err := store.Refresh(ctx); err != nil {
			return err
		}
		w, ok := store.FindWorkspace(id)
		if !ok {
			return NewNotFoundError("workspace", id)
		}
		action := fmt.Sprintf("delete workspace %q and its %d session(s)", w.WorkspaceTitle, len(w.Sessions))
		if err := env.confirmOrCancel(args, action); err != nil {
			return err
		}
		if err := store.DeleteWorkspace(ctx, id); err != nil {
			return err
		}
		if c := env.Cache(); c != nil {
			for _, s := range w.Sessions {
				_ = c.Delete(s.SessionID)
			}
		}
		return env.emit("workspace delete", map[string]string{"workspace_id": id}, func() {
			env.success("Deleted workspace %q", w.WorkspaceTitle)
		})
	default:
		return ErrUnknownSubcommand("workspace", sub, workspaceUsage)
	}
}

func printWorkspaceTree(env *Env, list []model.Workspace) {
	if len(list) == 0 {
		fmt.Fprintln(env.Out, DimStyle.Render("No workspaces yet. Create one with 'kbchat workspace create <title>'."))
		return
	}
	for _, w := range list {
		title := w.WorkspaceTitle
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(env.Out, "%s %s\n", TitleStyle.Render(title), DimStyle.Render("#"+w.WorkspaceID))
		for i, s := range w.Sessions {
			branch := "├─"
			if i == len(w.Sessions)-1 {
				branch = "└─"
			}
			fmt.Fprintf(env.Out, "  %s %s %s\n", SeparatorStyle.Render(branch), s.SessionTitle, DimStyle.Render("#"+s.SessionID))
		}
	}
}

// =============================================================================
// SESSION
// =============================================================================

func runSession(ctx context.Context, env *Env, args *ArgParser) error {
	sub := args.Subcommand()

	// The cache works signed out.
	switch sub {
	case "cached":
		return sessionCached(env, args)
	case "history", "show":
		if args.BoolFlag("cached") {
			return sessionHistory(ctx, env, args)
		}
	}

	if err := env.requireLogin(); err != nil {
		return err
	}
	store := newStore(env)

	switch sub {
	case "create", "new":
		wid, err := args.RequirePositional(1, "workspace-id", "kbchat session create <workspace-id>")
		if err != nil {
			return err
		}
		sid, err := store.CreateSession(ctx, wid)
		if err != nil {
			return err
		}
		return env.emit("session create", map[string]string{"session_id": sid, "workspace_id": wid}, func() {
			env.success("Created session %s", sid)
		})

	case "rename":
		sid, err := args.RequirePositional(1, "session-id", "kbchat session rename <session-id> <title...>")
		if err != nil {
			return err
		}
		title := JoinPositionalArgs(args, 2)
		if strings.TrimSpace(title) == "" {
			return ErrMissingArgument("title", "kbchat session rename <session-id> <title...>")
		}
		if err := store.RenameSession(ctx, sid, title); err != nil {
			return err
		}
		return env.emit("session rename", map[string]string{"session_id": sid, "title": title}, func() {
			env.success("Renamed session %s to %q", sid, title)
		})

	case "delete", "rm":
		sid, err := args.RequirePositional(1, "session-id", "kbchat session delete <session-id>")
		if err != nil {
			return err
		}
		if err := env.confirmOrCancel(args, "delete session "+sid); err != nil {
			return err
		}
		if err := store.DeleteSession(ctx, sid); err != nil {
			return err
		}
		if c := env.Cache(); c != nil {
			_ = c.Delete(sid)
		}
		return env.emit("session delete", map[string]string{"session_id": sid}, func() {
			env.success("Deleted session %s", sid)
		})

	case "history", "show":
		return sessionHistory(ctx, env, args)

	default:
		return ErrUnknownSubcommand("session", sub, sessionUsage)
	}
}

// sessionHistory prints a transcript from the server, or from the cache
// with --cached.
func sessionHistory(ctx context.Context, env *Env, args *ArgParser) error {
	sid, err := args.RequirePositional(1, "session-id", "kbchat session history <session-id>")
	if err != nil {
		return err
	}

	var msgs []model.Message
	if args.BoolFlag("cached") {
		c := env.Cache()
		if c == nil {
			return &ValidationError{Field: "cached", Reason: "the history cache is disabled (chat.history_cache)"}
		}
		msgs, err = c.Get(sid)
		if err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
			return err
		}
		if len(msgs) == 0 {
			return NewNotFoundError("cached session", sid)
		}
	} else {
		if msgs, err = env.Client.History(ctx, sid); err != nil {
			return err
		}
		if c := env.Cache(); c != nil && len(msgs) > 0 {
			if err := c.Put(sid, msgs); err != nil {
				env.warn("could not update history cache: %v", err)
			}
		}
	}

	return env.emit("session history", msgs, func() {
		printTranscript(env.Out, newMarkdownRenderer(env, args), msgs)
	})
}

// cachedSession is the JSON shape of a cache listing row.
type cachedSession struct {
	SessionID    string    `json:"session_id"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

func sessionCached(env *Env, args *ArgParser) error {
	c := env.Cache()
	if c == nil {
		return &ValidationError{Field: "cached", Reason: "the history cache is disabled (chat.history_cache)"}
	}

	var (
		metas []storage.SessionMeta
		err   error
	)
	if q := JoinPositionalArgs(args, 1); q != "" {
		metas, err = c.Search(q)
	} else {
		metas, err = c.List()
	}
	if err != nil {
		return err
	}

	out := make([]cachedSession, 0, len(metas))
	for _, m := range metas {
		out = append(out, cachedSession{
			SessionID:    m.SessionID,
			UpdatedAt:    m.UpdatedAt,
			MessageCount: m.MessageCount,
			Preview:      m.Preview,
		})
	}
	return env.emit("session cached", out, func() {
		if len(out) == 0 {
			fmt.Fprintln(env.Out, DimStyle.Render("No cached sessions."))
			return
		}
		now := time.Now()
		rows := make([][]string, 0, len(out))
		for _, s := range out {
			rows = append(rows, []string{s.SessionID, formatAge(s.UpdatedAt, now), strconv.Itoa(s.MessageCount), s.Preview})
		}
		fmt.Fprintln(env.Out, RenderTable([]string{"Session", "Updated", "Messages", "First question"}, rows))
	})
}

// =============================================================================
// MESSAGE
// =============================================================================

func runMessage(ctx context.Context, env *Env, args *ArgParser) error {
	switch sub := args.Subcommand(); sub {
	case "delete", "rm":
		if err := env.requireLogin(); err != nil {
			return err
		}
		id, err := args.RequirePositional(1, "message-id", "kbchat message delete <message-id>")
		if err != nil {
			return err
		}
		if model.IsTemporaryID(id) {
			return NewValidationError("message-id", id, "message has not been saved yet")
		}
		if err := env.confirmOrCancel(args, "delete message "+id); err != nil {
			return err
		}
		if err := env.Client.DeleteMessage(ctx, id); err != nil {
			return err
		}
		if c := env.Cache(); c != nil {
			_ = c.DeleteMessage(id)
		}
		return env.emit("message delete", map[string]string{"message_id": id}, func() {
			env.success("Deleted message %s", id)
		})
	default:
		return ErrUnknownSubcommand("message", sub, messageUsage)
	}
}
