// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a chat session transcript to disk.
//
// # Key Types
//
//   - Transcript: a session's settled messages plus its titles
//   - Exporter: format interface (Markdown, JSON)
//   - Options: export configuration options
//
// # Usage
//
//	t := export.Transcript{SessionID: id, Title: title, Messages: msgs}
//	path, err := export.ExportToFile(&t, export.NewMarkdownExporter(nil), nil)
package export
