// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/kbchat/internal/model"
)

// ExchangeState is the lifecycle of one send.
type ExchangeState int

const (
	// StatePending: placeholders are in the transcript with temporary ids.
	StatePending ExchangeState = iota
	// StateReconciled: both placeholders carry server ids.
	StateReconciled
	// StateFailed: placeholders were removed.
	StateFailed
	// StateCompleted: the stream ended without server ids; placeholders stay.
	StateCompleted
)

func (s ExchangeState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReconciled:
		return "reconciled"
	case StateFailed:
		return "failed"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Exchange tracks one question/answer pair from send to settlement.
// Transitions leave StatePending at most once.
type Exchange struct {
	mu          sync.Mutex
	transcript  *Transcript
	state       ExchangeState
	userID      string
	assistantID string
	answer      strings.Builder
}

// beginExchange appends the user and assistant placeholders, both stamped
// from the single instant ts.
func beginExchange(t *Transcript, ts time.Time, question string, quote *model.QuotedMessage) *Exchange {
	user := model.Message{
		ID:            model.TempUserID(ts),
		Content:       question,
		Role:          model.RoleUser,
		Timestamp:     ts.UnixMilli(),
		QuotedMessage: quote,
	}
	assistant := model.Message{
		ID:        model.TempAssistantID(ts),
		Role:      model.RoleAssistant,
		Timestamp: ts.UnixMilli(),
	}
	t.Append(user, assistant)
	return &Exchange{
		transcript:  t,
		state:       StatePending,
		userID:      user.ID,
		assistantID: assistant.ID,
	}
}

// State returns the current state.
func (e *Exchange) State() ExchangeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IDs returns the current user and assistant message ids.
func (e *Exchange) IDs() (userID, assistantID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userID, e.assistantID
}

// Answer returns the accumulated assistant text.
func (e *Exchange) Answer() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.answer.String()
}

// AppendChunk adds content to the answer and, when messageID is set, moves
// the assistant placeholder onto the server id.
func (e *Exchange) AppendChunk(content, messageID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePending {
		return false
	}
	e.answer.WriteString(content)
	answer := e.answer.String()
	newID := e.assistantID
	if messageID != "" {
		newID = messageID
	}
	ok := e.transcript.Replace(e.assistantID, func(m *model.Message) {
		m.ID = newID
		m.Content = answer
	})
	e.assistantID = newID
	return ok
}

// AttachFiles sets the related files of the answer. Later chunks only touch
// the content, so the files stay attached.
func (e *Exchange) AttachFiles(files []model.FileMetadata, messageID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePending {
		return false
	}
	newID := e.assistantID
	if messageID != "" {
		newID = messageID
	}
	ok := e.transcript.Replace(e.assistantID, func(m *model.Message) {
		m.ID = newID
		if files != nil {
			m.RelatedFiles = append([]model.FileMetadata(nil), files...)
		}
	})
	e.assistantID = newID
	return ok
}

// Reconcile swaps the placeholder ids for the server ids.
func (e *Exchange) Reconcile(userID, assistantID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePending || userID == "" || assistantID == "" {
		return false
	}
	e.transcript.Replace(e.userID, func(m *model.Message) { m.ID = userID })
	e.transcript.Replace(e.assistantID, func(m *model.Message) { m.ID = assistantID })
	e.userID, e.assistantID = userID, assistantID
	e.state = StateReconciled
	return true
}

// Fail removes both placeholders by their current ids in one step.
func (e *Exchange) Fail() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePending {
		return false
	}
	e.transcript.Remove(e.userID, e.assistantID)
	e.state = StateFailed
	return true
}

// Finish settles a still-pending exchange as completed.
func (e *Exchange) Finish() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePending {
		return false
	}
	e.state = StateCompleted
	return true
}
