// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "github.com/jeranaias/kbchat/internal/model"

// NoticeLevel grades a user-facing notification.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeSuccess
	NoticeWarning
	NoticeError
)

// Notice is a transient message for the user.
type Notice struct {
	Level  NoticeLevel
	Title  string
	Detail string
}

// Listener receives view updates. Calls come from whichever goroutine is
// running the operation, including the one streaming an answer.
type Listener interface {
	// TranscriptChanged delivers a snapshot of the visible session.
	TranscriptChanged(sessionID string, msgs []model.Message)
	Notice(n Notice)
	SendingChanged(sending bool)
	// SessionRenamed fires after a title derived from the first question
	// was accepted by the service.
	SessionRenamed(sessionID, title string)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnTranscript func(sessionID string, msgs []model.Message)
	OnNotice     func(n Notice)
	OnSending    func(sending bool)
	OnRenamed    func(sessionID, title string)
}

func (l ListenerFuncs) TranscriptChanged(sessionID string, msgs []model.Message) {
	if l.OnTranscript != nil {
		l.OnTranscript(sessionID, msgs)
	}
}

func (l ListenerFuncs) Notice(n Notice) {
	if l.OnNotice != nil {
		l.OnNotice(n)
	}
}

func (l ListenerFuncs) SendingChanged(sending bool) {
	if l.OnSending != nil {
		l.OnSending(sending)
	}
}

func (l ListenerFuncs) SessionRenamed(sessionID, title string) {
	if l.OnRenamed != nil {
		l.OnRenamed(sessionID, title)
	}
}
