// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question.
//
// On a terminal the finished answer is rendered as markdown. When output
// is piped (or --raw) the answer streams as plain text instead, and --json
// prints a single document once the answer is complete.

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/model"
)

const askUsage = `Usage:
  kbchat ask [--session ID | --workspace ID] [--file PATH] [--quote MESSAGE-ID] <question...>
  echo "question" | kbchat ask -

Without --session the question starts a new session in --workspace, or
in your first workspace.`

// AskResult is the --json payload of ask.
type AskResult struct {
	SessionID          string               `json:"session_id"`
	Question           string               `json:"question"`
	Answer             string               `json:"answer"`
	UserMessageID      string               `json:"user_message_id"`
	AssistantMessageID string               `json:"assistant_message_id"`
	Files              []model.FileMetadata `json:"files,omitempty"`
}

func runAsk(ctx context.Context, env *Env, args *ArgParser) error {
	if err := env.requireLogin(); err != nil {
		return err
	}
	question, err := readQuestion(env, args)
	if err != nil {
		return err
	}

	sid, created, err := resolveSession(ctx, env, args)
	if err != nil {
		return err
	}

	printer := newStreamPrinter(env)
	printer.skipErrors = true
	view := chat.NewView(env.Client, printer, chat.Options{
		TitleLength: env.Config.Chat.TitleLength,
		Cache:       env.chatCache(),
	})
	if created {
		view.OpenEmptySession(sid)
	} else if err := view.SelectSession(ctx, sid); err != nil {
		return err
	}

	if path := args.FirstFlag("file", "f"); path != "" {
		if err := view.AttachFile(expandHome(path)); err != nil {
			return err
		}
	}
	if qid := args.Flag("quote"); qid != "" {
		if err := view.Quote(qid); err != nil {
			return NewNotFoundError("message", qid)
		}
	}

	md := newMarkdownRenderer(env, args)
	stream := !env.JSON && md.r == nil

	if !stream && !env.JSON {
		env.info("Thinking...")
	}
	printer.begin(len(view.Messages()), stream)
	ex, err := view.Send(ctx, question)
	printer.end()
	if err != nil {
		return err
	}

	userID, assistantID := ex.IDs()
	answer, _ := findMessage(view.Messages(), assistantID)
	result := AskResult{
		SessionID:          sid,
		Question:           question,
		Answer:             ex.Answer(),
		UserMessageID:      userID,
		AssistantMessageID: assistantID,
		Files:              answer.RelatedFiles,
	}
	return env.emit("ask", result, func() {
		if !stream {
			fmt.Fprint(env.Out, md.Render(result.Answer))
		}
		printSources(env.Out, result.Files)
		if created {
			env.info("Continue with: kbchat chat --session %s", sid)
		}
	})
}

// readQuestion joins the positionals, or reads stdin for "-" or when
// nothing was given and stdin is piped.
func readQuestion(env *Env, args *ArgParser) (string, error) {
	q := strings.TrimSpace(JoinPositionalArgs(args, 0))
	if q == "-" || (q == "" && !env.interactive()) {
		data, err := io.ReadAll(env.input.buf)
		if err != nil {
			return "", fmt.Errorf("read question from stdin: %w", err)
		}
		q = strings.TrimSpace(string(data))
	}
	if q == "" {
		return "", ErrMissingArgument("question", "kbchat ask <question...>")
	}
	return q, nil
}
