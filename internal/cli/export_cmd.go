// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export_cmd.go - Session transcript export.

package cli

import (
	"context"
	"errors"

	"github.com/jeranaias/kbchat/internal/export"
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/storage"
)

const exportUsage = `Usage:
  kbchat export <session-id> [--format md|json] [--output DIR] [--cached] [--open]
  kbchat export <session-id> --stdout [--format md|json]

--cached exports from the local history cache and works offline.
--stdout prints the document instead of writing a file.`

// ExportResult is the --json payload of export.
type ExportResult struct {
	SessionID string `json:"session_id"`
	Format    string `json:"format"`
	Path      string `json:"path"`
	Questions int    `json:"questions"`
}

func runExport(ctx context.Context, env *Env, args *ArgParser) error {
	sid, err := args.RequirePositional(0, "session-id", "kbchat export <session-id>")
	if err != nil {
		return err
	}

	opts := export.DefaultOptions()
	opts.OutputDir = expandHome(args.FirstFlag("output", "o"))
	opts.OpenAfterExport = args.BoolFlag("open")
	opts.IncludeTimestamps = env.Config.UI.ShowTimestamps

	format := args.FlagOrDefault("format", "md")
	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return NewValidationError("format", format, "want md or json")
	}

	t := &export.Transcript{SessionID: sid, Title: sid}
	if args.BoolFlag("cached") {
		c := env.Cache()
		if c == nil {
			return &ValidationError{Field: "cached", Reason: "the history cache is disabled (chat.history_cache)"}
		}
		if t.Messages, err = c.Get(sid); err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
			return err
		}
	} else {
		if err := env.requireLogin(); err != nil {
			return err
		}
		if t.Messages, err = env.Client.History(ctx, sid); err != nil {
			return err
		}
		t.Title, t.Workspace = sessionTitle(ctx, env, sid)
	}
	t.Messages = t.Settled()
	if len(t.Messages) == 0 {
		return NewNotFoundError("messages for session", sid)
	}

	if args.BoolFlag("stdout") {
		data, err := exporter.Export(t)
		if err != nil {
			return err
		}
		_, err = env.Out.Write(data)
		return err
	}

	path, err := export.ExportToFile(t, exporter, opts)
	if errors.Is(err, export.ErrEmptyTranscript) {
		return NewNotFoundError("messages for session", sid)
	}
	if err != nil {
		return err
	}

	res := ExportResult{SessionID: sid, Format: exporter.FileExtension()[1:], Path: path, Questions: countQuestions(t.Messages)}
	return env.emit("export", res, func() {
		env.success("Exported %d question(s) to %s", res.Questions, path)
	})
}

func countQuestions(msgs []model.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role == model.RoleUser {
			n++
		}
	}
	return n
}
