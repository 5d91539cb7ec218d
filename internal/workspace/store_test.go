// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workspace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/model"
)

// fakeBackend serves a fixed list and records calls.
type fakeBackend struct {
	list      []model.Workspace
	listCalls int
	calls     []string
	failNext  error
	listErr   error
}

func (f *fakeBackend) ListWorkspaces(context.Context) ([]model.Workspace, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.list, nil
}

func (f *fakeBackend) record(call string) error {
	f.calls = append(f.calls, call)
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeBackend) CreateWorkspace(_ context.Context, title string) error {
	return f.record("create:" + title)
}

func (f *fakeBackend) RenameWorkspace(_ context.Context, id, title string) error {
	return f.record("rename-ws:" + id + ":" + title)
}

func (f *fakeBackend) DeleteWorkspace(_ context.Context, id string) error {
	return f.record("delete-ws:" + id)
}

func (f *fakeBackend) CreateSession(_ context.Context, id string) (string, error) {
	if err := f.record("create-session:" + id); err != nil {
		return "", err
	}
	return "s-new", nil
}

func (f *fakeBackend) RenameSession(_ context.Context, id, title string) error {
	return f.record("rename-session:" + id + ":" + title)
}

func (f *fakeBackend) DeleteSession(_ context.Context, id string) error {
	return f.record("delete-session:" + id)
}

func sampleList() []model.Workspace {
	return []model.Workspace{
		{WorkspaceID: "w1", WorkspaceTitle: "One", Sessions: []model.Session{{SessionID: "s1"}, {SessionID: "s2"}}},
		{WorkspaceID: "w2", WorkspaceTitle: "Two", Sessions: []model.Session{{SessionID: "s3"}}},
	}
}

type events struct {
	lists      [][]model.Workspace
	selections []string
	notices    []chat.Notice
}

func (e *events) listener() Listener {
	return ListenerFuncs{
		OnWorkspaces: func(ws []model.Workspace) { e.lists = append(e.lists, ws) },
		OnSelection:  func(id string) { e.selections = append(e.selections, id) },
		OnNotice:     func(n chat.Notice) { e.notices = append(e.notices, n) },
	}
}

func newStore(t *testing.T) (*Store, *fakeBackend, *events) {
	t.Helper()
	backend := &fakeBackend{list: sampleList()}
	ev := &events{}
	s := NewStore(backend, ev.listener())
	require.NoError(t, s.Refresh(context.Background()))
	return s, backend, ev
}

func TestCreateWorkspaceRefetches(t *testing.T) {
	s, backend, _ := newStore(t)
	require.NoError(t, s.CreateWorkspace(context.Background(), "Three"))
	assert.Equal(t, []string{"create:Three"}, backend.calls)
	assert.Equal(t, 2, backend.listCalls)
}

func TestCreateSessionSelectsNewID(t *testing.T) {
	s, _, ev := newStore(t)
	id, err := s.CreateSession(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "s-new", id)
	assert.Equal(t, "s-new", s.Selected())
	assert.Equal(t, []string{"s-new"}, ev.selections)
}

func TestDeleteSessionOptimisticAndClearsSelection(t *testing.T) {
	s, backend, ev := newStore(t)
	s.Select("s2")
	// The refetch after delete fails; the optimistic removal must remain.
	backend.listErr = errors.New("offline")

	err := s.DeleteSession(context.Background(), "s2")
	assert.Error(t, err)
	assert.Empty(t, s.Selected())
	assert.Equal(t, []string{"s2", ""}, ev.selections)

	w, ok := s.FindWorkspace("w1")
	require.True(t, ok)
	assert.Equal(t, []model.Session{{SessionID: "s1"}}, w.Sessions)
}

func TestDeleteSessionKeepsOtherSelection(t *testing.T) {
	s, _, _ := newStore(t)
	s.Select("s1")
	require.NoError(t, s.DeleteSession(context.Background(), "s3"))
	assert.Equal(t, "s1", s.Selected())
}

func TestDeleteWorkspaceClearsSelectionInside(t *testing.T) {
	s, backend, _ := newStore(t)
	s.Select("s3")
	backend.listErr = errors.New("offline")

	_ = s.DeleteWorkspace(context.Background(), "w2")
	assert.Empty(t, s.Selected())
	_, ok := s.FindWorkspace("w2")
	assert.False(t, ok)
	assert.Len(t, s.Workspaces(), 1)
}

func TestFailureRaisesNoticeWithoutChange(t *testing.T) {
	s, backend, ev := newStore(t)
	s.Select("s1")
	backend.failNext = errors.New("denied")

	err := s.DeleteSession(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, "s1", s.Selected())
	assert.Len(t, s.Workspaces()[0].Sessions, 2)
	require.NotEmpty(t, ev.notices)
	assert.Equal(t, chat.NoticeError, ev.notices[len(ev.notices)-1].Level)
}

func TestLookupHelpers(t *testing.T) {
	s, _, _ := newStore(t)
	w, ok := s.WorkspaceOf("s3")
	require.True(t, ok)
	assert.Equal(t, "w2", w.WorkspaceID)
	_, ok = s.WorkspaceOf("zz")
	assert.False(t, ok)
}

func TestWorkspacesReturnsCopy(t *testing.T) {
	s, _, _ := newStore(t)
	ws := s.Workspaces()
	ws[0].Sessions[0].SessionTitle = "mutated"
	assert.Empty(t, s.Workspaces()[0].Sessions[0].SessionTitle)
}
