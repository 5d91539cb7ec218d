// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultTitleLength is the number of characters kept from the first question.
const DefaultTitleLength = 15

// DeriveTitle builds a session title from the first question: its first n
// characters (NFC-normalized code points) followed by "..." when longer.
func DeriveTitle(question string, n int) string {
	if n <= 0 {
		n = DefaultTitleLength
	}
	q := norm.NFC.String(strings.TrimSpace(question))
	runes := []rune(q)
	if len(runes) <= n {
		return q
	}
	return string(runes[:n]) + "..."
}
