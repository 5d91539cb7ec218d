// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// TEMPORARY IDENTIFIERS
// =============================================================================

const (
	tempUserPrefix      = "temp-user-"
	tempAssistantPrefix = "temp-assistant-"
)

// TempUserID returns the placeholder id for a user message sent at ts.
func TempUserID(ts time.Time) string {
	return tempUserPrefix + strconv.FormatInt(ts.UnixMilli(), 10)
}

// TempAssistantID returns the placeholder id for an assistant reply started at ts.
func TempAssistantID(ts time.Time) string {
	return tempAssistantPrefix + strconv.FormatInt(ts.UnixMilli(), 10)
}

// IsTemporaryID reports whether id is a client placeholder awaiting a server id.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, tempUserPrefix) || strings.HasPrefix(id, tempAssistantPrefix)
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// QuotedMessage is a snapshot of another message taken when it was quoted.
// It is a copy, not a live reference.
type QuotedMessage struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Message is one entry in a session transcript.
type Message struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Role      Role   `json:"role"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds

	QuotedMessage *QuotedMessage `json:"quoted_message,omitempty"`
	RelatedFiles  []FileMetadata `json:"related_files,omitempty"`
}

// Time returns the message timestamp as a time.Time.
func (m Message) Time() time.Time {
	if m.Timestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.Timestamp)
}

// IsPending reports whether the message still carries a temporary id.
func (m Message) IsPending() bool {
	return IsTemporaryID(m.ID)
}

// Quote takes a snapshot of the message for attaching to a new question.
func (m Message) Quote() *QuotedMessage {
	return &QuotedMessage{ID: m.ID, Role: m.Role, Content: m.Content}
}

// Clone returns a deep copy so callers can mutate it without aliasing
// slices held by a transcript.
func (m Message) Clone() Message {
	out := m
	if m.QuotedMessage != nil {
		q := *m.QuotedMessage
		out.QuotedMessage = &q
	}
	if m.RelatedFiles != nil {
		out.RelatedFiles = append([]FileMetadata(nil), m.RelatedFiles...)
	}
	return out
}

// Preview returns a single-line preview of the content limited to maxLen runes.
func (m Message) Preview(maxLen int) string {
	content := strings.ReplaceAll(m.Content, "\n", " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
