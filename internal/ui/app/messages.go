// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/model"
)

// =============================================================================
// LISTENER MESSAGES (sent through the Bridge)
// =============================================================================

// TranscriptMsg carries a snapshot of the visible session.
type TranscriptMsg struct {
	SessionID string
	Messages  []model.Message
}

// NoticeMsg carries a notification for a toast.
type NoticeMsg struct {
	Notice chat.Notice
}

// SendingMsg reports that a send started or ended.
type SendingMsg struct {
	Sending bool
}

// RenamedMsg reports a session renamed after its first question.
type RenamedMsg struct {
	SessionID string
	Title     string
}

// WorkspacesMsg carries the refreshed workspace tree.
type WorkspacesMsg struct {
	Workspaces []model.Workspace
}

// SelectionMsg reports the selected session; "" means none.
type SelectionMsg struct {
	SessionID string
}

// LoggedOutMsg reports that the credentials were cleared.
type LoggedOutMsg struct{}

// =============================================================================
// COMMAND RESULTS
// =============================================================================

type loginResultMsg struct {
	err error
}

type sendDoneMsg struct {
	rejected bool
	err      error
}

type sessionOpenedMsg struct {
	sessionID string
	err       error
}

type opDoneMsg struct {
	op  string
	err error
}

type copiedMsg struct {
	err error
}
