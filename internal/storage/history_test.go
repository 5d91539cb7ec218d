// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/kbchat/internal/model"
)

// =============================================================================
// HISTORY CACHE TESTS
// =============================================================================

func openCache(t *testing.T) *HistoryCache {
	t.Helper()
	cache, err := OpenHistoryCache(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func transcript() []model.Message {
	return []model.Message{
		{ID: "101", Role: model.RoleUser, Content: "What is in the handbook?", Timestamp: 1000},
		{
			ID: "102", Role: model.RoleAssistant, Content: "Chapter one covers leave.", Timestamp: 2000,
			RelatedFiles:  []model.FileMetadata{{FileID: "9", FileName: "handbook.pdf"}},
			QuotedMessage: &model.QuotedMessage{ID: "77", Role: model.RoleAssistant, Content: "earlier"},
		},
	}
}

func TestHistoryCache_PutAndGet(t *testing.T) {
	cache := openCache(t)
	require.NoError(t, cache.Put("s1", transcript()))

	got, err := cache.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, transcript(), got)
}

func TestHistoryCache_PutSkipsTemporaryIDs(t *testing.T) {
	cache := openCache(t)
	ts := time.UnixMilli(1700000000000)
	msgs := append(transcript(),
		model.Message{ID: model.TempUserID(ts), Role: model.RoleUser, Content: "pending"},
		model.Message{ID: model.TempAssistantID(ts), Role: model.RoleAssistant},
	)
	require.NoError(t, cache.Put("s1", msgs))

	got, err := cache.Get("s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, m := range got {
		assert.False(t, model.IsTemporaryID(m.ID))
	}
}

func TestHistoryCache_OnlyTemporaryRemovesSession(t *testing.T) {
	cache := openCache(t)
	require.NoError(t, cache.Put("s1", transcript()))
	require.NoError(t, cache.Put("s1", []model.Message{{ID: "temp-user-1", Role: model.RoleUser}}))

	_, err := cache.Get("s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestHistoryCache_PutReplaces(t *testing.T) {
	cache := openCache(t)
	require.NoError(t, cache.Put("s1", transcript()))
	require.NoError(t, cache.Put("s1", transcript()[:1]))

	got, err := cache.Get("s1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestHistoryCache_GetMissing(t *testing.T) {
	_, err := openCache(t).Get("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestHistoryCache_DeleteAndClear(t *testing.T) {
	cache := openCache(t)
	require.NoError(t, cache.Put("s1", transcript()))
	require.NoError(t, cache.Put("s2", transcript()))

	require.NoError(t, cache.Delete("s1"))
	_, err := cache.Get("s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, cache.DeleteMessage("101"))
	got, err := cache.Get("s2")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, cache.Clear())
	metas, err := cache.List()
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestHistoryCache_ListOrderAndLimit(t *testing.T) {
	cache := openCache(t)
	cache.MaxSessions = 2
	clock := int64(0)
	cache.now = func() time.Time {
		clock += 1000
		return time.UnixMilli(clock)
	}

	require.NoError(t, cache.Put("old", transcript()))
	require.NoError(t, cache.Put("mid", transcript()))
	require.NoError(t, cache.Put("new", transcript()))

	metas, err := cache.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "new", metas[0].SessionID)
	assert.Equal(t, "mid", metas[1].SessionID)
	assert.Equal(t, "What is in the handbook?", metas[0].Preview)
	assert.Equal(t, 2, metas[0].MessageCount)
}

func TestHistoryCache_Search(t *testing.T) {
	cache := openCache(t)
	require.NoError(t, cache.Put("s1", transcript()))
	require.NoError(t, cache.Put("s2", []model.Message{{ID: "5", Role: model.RoleUser, Content: "100% sure"}}))

	hits, err := cache.Search("LEAVE")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "s1", hits[0].SessionID)

	hits, err = cache.Search("100%")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "s2", hits[0].SessionID)
}

func TestHistoryCache_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	cache, err := OpenHistoryCache(path)
	require.NoError(t, err)
	require.NoError(t, cache.Put("s1", transcript()))
	require.NoError(t, cache.Close())

	cache, err = OpenHistoryCache(path)
	require.NoError(t, err)
	defer cache.Close()
	got, err := cache.Get("s1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
