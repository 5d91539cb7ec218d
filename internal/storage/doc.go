// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage caches settled chat transcripts in a local SQLite file.
//
// The cache lets `kbchat session history --cached` and the TUI show a
// session while offline. Only messages carrying server ids are written;
// placeholders for an in-flight exchange never reach the disk.
//
// # Key Types
//
//   - HistoryCache: the SQLite-backed store
//   - SessionMeta: lightweight metadata for listing cached sessions
//
// # Usage
//
//	cache, err := storage.OpenHistoryCache(path)
//	defer cache.Close()
//	err = cache.Put(sessionID, messages)
//	msgs, err := cache.Get(sessionID)
//
// # Storage Location
//
// The database lives at ~/.kbchat/history.db unless chat.cache_path says
// otherwise.
package storage
