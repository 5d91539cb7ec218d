// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package devserver is an in-memory stand-in for the knowledge-base service.
//
// It answers every endpoint the client uses with the {code, message, data}
// envelope, issues bearer tokens, and streams chat answers as NDJSON so the
// TUI and CLI can be exercised without a real backend.
//
// # Endpoints
//
//   - POST /auth/login, /auth/register, /auth/logout, /auth/send-verification
//   - GET  /auth/me, /common/department/list
//   - GET  /workspace/list; POST /workspace/save|rename|delete
//   - POST /session/save|rename|delete
//   - GET  /chat/history/:id; POST /history/delete
//   - POST /chat/stream (multipart, NDJSON response)
//   - GET  /common/file/upload/history, /folder/file/list
//   - POST /upload/check, /upload, /create/folder, /file/to/embed,
//     /file/remove/embed, /file/delete
//
// A question containing "#fail" makes the stream end with an error line
// after the first chunk.
//
// # Usage
//
//	srv, err := devserver.New(devserver.Config{Addr: "127.0.0.1:8080"})
//	go srv.ListenAndServe()
//	defer srv.Shutdown(ctx)
package devserver
