// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credstore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/kbchat/internal/model"
)

func sampleCreds() Credentials {
	return Credentials{
		AccessToken: "tok-123",
		TokenType:   "bearer",
		User:        model.User{ID: "7", Email: "a@b.c", Name: "Ann", DepartmentID: "3"},
	}
}

func TestStore_PlainRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewStore(path, "")

	require.NoError(t, store.Save(sampleCreds()))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sampleCreds(), *got)
}

func TestStore_SealedRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewStore(path, "correct horse").WithIterations(1000)

	require.NoError(t, store.Save(sampleCreds()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "tok-123")
	assert.Contains(t, string(raw), `"sealed":true`)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-123", got.AccessToken)

	_, err = NewStore(path, "wrong").Load()
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = NewStore(path, "").Load()
	assert.Error(t, err)
}

func TestStore_MissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "none.json"), "")
	got, err := store.Load()
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, store.Remove())
}

func TestSession_SetAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	sess, err := OpenSession(NewStore(path, ""))
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())
	assert.Equal(t, "Bearer", sess.TokenType())

	cleared := 0
	sess.OnClear(func() { cleared++ })

	require.NoError(t, sess.Set(sampleCreds()))
	assert.True(t, sess.Authenticated())
	u, ok := sess.User()
	assert.True(t, ok)
	assert.Equal(t, "Ann", u.Name)

	reopened, err := OpenSession(NewStore(path, ""))
	require.NoError(t, err)
	assert.Equal(t, "tok-123", reopened.Token())

	sess.Clear()
	assert.False(t, sess.Authenticated())
	assert.Equal(t, 1, cleared)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	sess.Clear()
	assert.Equal(t, 1, cleared, "hooks run only when credentials were present")
}

func TestSession_SetUserKeepsToken(t *testing.T) {
	sess := NewSession()
	require.NoError(t, sess.SetUser(model.User{Name: "ignored"}))
	_, ok := sess.User()
	assert.False(t, ok)

	require.NoError(t, sess.Set(sampleCreds()))
	require.NoError(t, sess.SetUser(model.User{Name: "Bea"}))
	u, _ := sess.User()
	assert.Equal(t, "Bea", u.Name)
	assert.Equal(t, "tok-123", sess.Token())
}

func TestSession_ConcurrentAccess(t *testing.T) {
	sess := NewSession()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); _ = sess.Set(sampleCreds()) }()
		go func() { defer wg.Done(); _ = sess.Token() }()
		go func() { defer wg.Done(); sess.Clear() }()
	}
	wg.Wait()
}
