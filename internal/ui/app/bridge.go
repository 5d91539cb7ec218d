// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/model"
)

// Sender is what the Bridge forwards to; *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge turns chat.View and workspace.Store notifications into program
// messages. It is created before the program so it can be handed to the
// View and Store, then attached once the program exists. Messages sent
// before Attach are dropped.
type Bridge struct {
	mu     sync.RWMutex
	target Sender
}

// Attach sets the program that receives messages.
func (b *Bridge) Attach(s Sender) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = s
}

func (b *Bridge) send(msg tea.Msg) {
	b.mu.RLock()
	target := b.target
	b.mu.RUnlock()
	if target != nil {
		target.Send(msg)
	}
}

// TranscriptChanged implements chat.Listener.
func (b *Bridge) TranscriptChanged(sessionID string, msgs []model.Message) {
	b.send(TranscriptMsg{SessionID: sessionID, Messages: msgs})
}

// Notice implements chat.Listener and workspace.Listener.
func (b *Bridge) Notice(n chat.Notice) {
	b.send(NoticeMsg{Notice: n})
}

// SendingChanged implements chat.Listener.
func (b *Bridge) SendingChanged(sending bool) {
	b.send(SendingMsg{Sending: sending})
}

// SessionRenamed implements chat.Listener.
func (b *Bridge) SessionRenamed(sessionID, title string) {
	b.send(RenamedMsg{SessionID: sessionID, Title: title})
}

// WorkspacesChanged implements workspace.Listener.
func (b *Bridge) WorkspacesChanged(ws []model.Workspace) {
	b.send(WorkspacesMsg{Workspaces: ws})
}

// SelectionChanged implements workspace.Listener.
func (b *Bridge) SelectionChanged(sessionID string) {
	b.send(SelectionMsg{SessionID: sessionID})
}

// LoggedOut is registered as a credstore.Session OnClear hook.
func (b *Bridge) LoggedOut() {
	b.send(LoggedOutMsg{})
}
