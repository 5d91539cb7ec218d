// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the kbchat command line.
//
// With no command kbchat starts the full-screen terminal UI. Every other
// command runs once and exits, which makes kbchat scriptable.
//
// # Key Types
//
//   - Env: config, credentials, API client and streams shared by commands
//   - ArgParser: flag and positional parsing
//   - CommandError, ValidationError, NotFoundError: errors mapped to exit codes
//   - JSONResponse: the --json envelope
//
// # Usage
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
//	defer stop()
//	os.Exit(cli.Run(ctx, os.Args[1:], cli.StdStreams()))
//
// # Commands Overview
//
// Account:
//   - login, register, logout, whoami, departments
//
// Conversations:
//   - chat: interactive streaming REPL
//   - ask: one question, streamed or rendered
//   - workspace, session, message: manage the sidebar tree
//   - export: write a transcript as Markdown or JSON
//
// Knowledge base:
//   - file: upload, check, embed into workspaces, watch a directory
//
// Tooling:
//   - config, doctor, devserver, version, help
//
// All commands accept --json. Handlers return errors; Run prints them
// once and picks the exit code.
package cli
