// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemporaryIDs(t *testing.T) {
	ts := time.UnixMilli(1700000000123)

	assert.Equal(t, "temp-user-1700000000123", TempUserID(ts))
	assert.Equal(t, "temp-assistant-1700000000123", TempAssistantID(ts))
	assert.True(t, IsTemporaryID(TempUserID(ts)))
	assert.True(t, IsTemporaryID(TempAssistantID(ts)))
	assert.False(t, IsTemporaryID("42"))
	assert.False(t, IsTemporaryID("temp"))
}

func TestFlexIDAcceptsNumbersAndStrings(t *testing.T) {
	var files []FileMetadata
	err := json.Unmarshal([]byte(`[{"file_id":1,"file_name":"a.pdf"},{"file_id":"x9","file_name":"b.pdf"},{"file_id":null}]`), &files)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, FlexID("1"), files[0].FileID)
	assert.Equal(t, FlexID("x9"), files[1].FileID)
	assert.Equal(t, FlexID(""), files[2].FileID)
}

func TestFlexIDRejectsObjects(t *testing.T) {
	var id FlexID
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &id))
}

func TestMessageCloneDoesNotAlias(t *testing.T) {
	orig := Message{
		ID:            "1",
		QuotedMessage: &QuotedMessage{ID: "0", Content: "q"},
		RelatedFiles:  []FileMetadata{{FileID: "1"}},
	}
	c := orig.Clone()
	c.QuotedMessage.Content = "changed"
	c.RelatedFiles[0].FileName = "changed"

	assert.Equal(t, "q", orig.QuotedMessage.Content)
	assert.Empty(t, orig.RelatedFiles[0].FileName)
}

func TestMessageQuoteIsSnapshot(t *testing.T) {
	m := Message{ID: "7", Role: RoleAssistant, Content: "answer"}
	q := m.Quote()
	m.Content = "edited"
	assert.Equal(t, "answer", q.Content)
	assert.Equal(t, RoleAssistant, q.Role)
}

func TestMessagePreview(t *testing.T) {
	m := Message{Content: "line one\nline two"}
	assert.Equal(t, "line one line two", m.Preview(50))
	assert.Equal(t, "line...", m.Preview(7))
}

func TestWorkspaceFindSession(t *testing.T) {
	w := Workspace{Sessions: []Session{{SessionID: "a"}, {SessionID: "b", SessionTitle: "B"}}}
	s, ok := w.FindSession("b")
	assert.True(t, ok)
	assert.Equal(t, "B", s.SessionTitle)
	_, ok = w.FindSession("zz")
	assert.False(t, ok)
}

func TestRoleDisplayName(t *testing.T) {
	assert.Equal(t, "You", RoleUser.DisplayName())
	assert.Equal(t, "Assistant", RoleAssistant.DisplayName())
}
