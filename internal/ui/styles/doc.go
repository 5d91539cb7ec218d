// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles holds the kbchat palette and the Theme used by every
// screen of the terminal UI.
//
// Colors are lipgloss.AdaptiveColor values so they follow the terminal
// background. The configured theme ("auto", "dark", "light") decides which
// side of each pair is used:
//
//	theme := styles.NewTheme("auto")
//	fmt.Println(theme.UserBubble.Render("hello"))
package styles
