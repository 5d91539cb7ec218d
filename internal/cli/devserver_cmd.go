// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// devserver_cmd.go - Run the in-memory development backend.

package cli

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/jeranaias/kbchat/internal/devserver"
	"github.com/jeranaias/kbchat/internal/logging"
)

const devserverUsage = `Usage:
  kbchat devserver [--addr HOST:PORT] [--seed-email EMAIL] [--seed-password PASSWORD]
                   [--delay MS] [--node N]

Serves the chat API from memory for local development. Nothing is
persisted. Registration accepts the verification code ` + devserver.VerificationCode + `.
Point the client at it with: kbchat --api-url http://127.0.0.1:8080`

func runDevServer(ctx context.Context, env *Env, args *ArgParser) error {
	node := args.FlagIntOrDefault("node", 1)
	if node < 0 || node > 1023 {
		return NewValidationError("node", args.Flag("node"), "must be between 0 and 1023")
	}
	delay := args.FlagIntOrDefault("delay", 40)
	if delay < 0 {
		return NewValidationError("delay", args.Flag("delay"), "must not be negative")
	}

	srv, err := devserver.New(devserver.Config{
		Addr:         args.FlagOrDefault("addr", devserver.DefaultAddr),
		NodeID:       int64(node),
		ChunkDelay:   time.Duration(delay) * time.Millisecond,
		SeedEmail:    args.FlagOrDefault("seed-email", "demo@example.com"),
		SeedPassword: args.FlagOrDefault("seed-password", "secret1"),
		Logger:       logging.New(env.Err, logging.ParseLevel(env.Config.Log.Level)),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
