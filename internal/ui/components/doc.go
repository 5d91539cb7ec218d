// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components renders the pieces of the kbchat screen: message
// bubbles, the workspace sidebar, markdown answers with highlighted code
// blocks, and toast notifications.
//
// Components are plain values with Render methods. They hold no references
// to the program and never block.
package components
