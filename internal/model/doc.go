// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures exchanged with the knowledge-base
// service: messages, workspaces, sessions, users and knowledge-base files.
//
// Message identifiers are either server-issued or temporary placeholders
// ("temp-user-<ms>", "temp-assistant-<ms>") created while a send is in
// flight. IsTemporaryID distinguishes the two.
package model
