// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app is the kbchat terminal UI: a login screen and a main screen
// with the workspace sidebar, the chat transcript and the composer.
//
// The model never calls the chat View or workspace Store from Update. Every
// call that can notify a listener runs inside a tea.Cmd, and the Bridge
// forwards those notifications back with Program.Send. A streaming answer
// therefore reaches the screen one chunk at a time from the send goroutine.
package app
