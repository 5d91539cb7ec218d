// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	"github.com/jeranaias/kbchat/internal/model"
)

// Transcript is the ordered message list of one session.
//
// Writes never modify the current slice in place; they build a new one and
// swap it in, so a slice handed out by Snapshot is never mutated later.
type Transcript struct {
	mu   sync.RWMutex
	msgs []model.Message
}

// NewTranscript returns a transcript holding a copy of msgs.
func NewTranscript(msgs []model.Message) *Transcript {
	return &Transcript{msgs: cloneMessages(msgs)}
}

func cloneMessages(msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Snapshot returns an independent copy of the messages.
func (t *Transcript) Snapshot() []model.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneMessages(t.msgs)
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}

// IDs returns message ids in order.
func (t *Transcript) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, len(t.msgs))
	for i, m := range t.msgs {
		ids[i] = m.ID
	}
	return ids
}

// Find returns a copy of the message with id.
func (t *Transcript) Find(id string) (model.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, m := range t.msgs {
		if m.ID == id {
			return m.Clone(), true
		}
	}
	return model.Message{}, false
}

// Last returns the last message with the given role.
func (t *Transcript) Last(role model.Role) (model.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.msgs) - 1; i >= 0; i-- {
		if t.msgs[i].Role == role {
			return t.msgs[i].Clone(), true
		}
	}
	return model.Message{}, false
}

// Append adds messages at the end.
func (t *Transcript) Append(msgs ...model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := make([]model.Message, 0, len(t.msgs)+len(msgs))
	next = append(next, t.msgs...)
	for _, m := range msgs {
		next = append(next, m.Clone())
	}
	t.msgs = next
}

// Replace applies fn to a copy of the first message with id and stores the
// result. It reports whether a message was found.
func (t *Transcript) Replace(id string, fn func(*model.Message)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.msgs {
		if t.msgs[i].ID != id {
			continue
		}
		next := make([]model.Message, len(t.msgs))
		copy(next, t.msgs)
		m := next[i].Clone()
		fn(&m)
		next[i] = m
		t.msgs = next
		return true
	}
	return false
}

// Remove deletes every message whose id is in ids, in a single swap.
// It returns how many were removed.
func (t *Transcript) Remove(ids ...string) int {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	next := make([]model.Message, 0, len(t.msgs))
	for _, m := range t.msgs {
		if !drop[m.ID] {
			next = append(next, m)
		}
	}
	removed := len(t.msgs) - len(next)
	if removed > 0 {
		t.msgs = next
	}
	return removed
}
