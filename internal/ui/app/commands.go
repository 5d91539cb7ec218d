// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/logging"
)

// =============================================================================
// COMMAND CREATORS
// =============================================================================

// Every command below may notify the Bridge, so none of them may run on
// the Update goroutine.

func loginCmd(ctx context.Context, auth Authenticator, email, password string) tea.Cmd {
	return func() tea.Msg {
		_, err := auth.Login(ctx, email, password)
		return loginResultMsg{err: err}
	}
}

func refreshCmd(ctx context.Context, d Deps) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "refresh", err: d.Store.Refresh(ctx)}
	}
}

// selectSessionCmd marks sessionID selected and loads its history.
func selectSessionCmd(ctx context.Context, d Deps, sessionID string) tea.Cmd {
	return func() tea.Msg {
		d.Store.Select(sessionID)
		return opDoneMsg{op: "select", err: d.View.SelectSession(ctx, sessionID)}
	}
}

func clearSessionCmd(d Deps) tea.Cmd {
	return func() tea.Msg {
		d.View.ClearSession()
		return nil
	}
}

func createSessionCmd(ctx context.Context, d Deps, workspaceID string) tea.Cmd {
	return func() tea.Msg {
		id, err := d.Store.CreateSession(ctx, workspaceID)
		if err == nil {
			d.View.OpenEmptySession(id)
		}
		return sessionOpenedMsg{sessionID: id, err: err}
	}
}

func createWorkspaceCmd(ctx context.Context, d Deps, title string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "create workspace", err: d.Store.CreateWorkspace(ctx, title)}
	}
}

func renameWorkspaceCmd(ctx context.Context, d Deps, workspaceID, title string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "rename workspace", err: d.Store.RenameWorkspace(ctx, workspaceID, title)}
	}
}

func renameSessionCmd(ctx context.Context, d Deps, sessionID, title string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "rename session", err: d.Store.RenameSession(ctx, sessionID, title)}
	}
}

func deleteSessionCmd(ctx context.Context, d Deps, sessionID string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "delete session", err: d.Store.DeleteSession(ctx, sessionID)}
	}
}

func deleteWorkspaceCmd(ctx context.Context, d Deps, workspaceID string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "delete workspace", err: d.Store.DeleteWorkspace(ctx, workspaceID)}
	}
}

func sessionRenamedCmd(ctx context.Context, d Deps) tea.Cmd {
	return func() tea.Msg {
		d.Store.SessionRenamed(ctx)
		return nil
	}
}

// sendCmd runs one exchange to completion. Chunks reach the program through
// the Bridge while this command is still running.
func sendCmd(ctx context.Context, d Deps, question string) tea.Cmd {
	return func() tea.Msg {
		ex, err := d.View.Send(ctx, question)
		if err != nil {
			slog.DebugContext(ctx, logging.EventStreamError, "error", err)
		}
		return sendDoneMsg{rejected: ex == nil && err != nil, err: err}
	}
}

func copyCmd(write func(string) error, text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{err: write(text)}
	}
}

// describeRejection words a send the view refused before starting it.
func describeRejection(err error) string {
	switch {
	case errors.Is(err, chat.ErrNoSession):
		return "Select or create a session first (ctrl+n)"
	case errors.Is(err, chat.ErrBusy):
		return "Wait for the current answer to finish"
	case errors.Is(err, chat.ErrEmptyQuestion):
		return "Type a question first"
	default:
		return err.Error()
	}
}
