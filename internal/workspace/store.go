// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package workspace keeps the client's list of workspaces and sessions in
// step with the service. Every mutation is followed by a full refetch; the
// two deletes also patch local state first so the sidebar reacts at once.
// Failures raise a notice and are not rolled back.
package workspace

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/model"
)

// Backend is the subset of the API client the store needs.
type Backend interface {
	ListWorkspaces(ctx context.Context) ([]model.Workspace, error)
	CreateWorkspace(ctx context.Context, title string) error
	RenameWorkspace(ctx context.Context, workspaceID, title string) error
	DeleteWorkspace(ctx context.Context, workspaceID string) error
	CreateSession(ctx context.Context, workspaceID string) (string, error)
	RenameSession(ctx context.Context, sessionID, title string) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// Listener receives store updates.
type Listener interface {
	WorkspacesChanged(ws []model.Workspace)
	// SelectionChanged reports the selected session; "" means none.
	SelectionChanged(sessionID string)
	Notice(n chat.Notice)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnWorkspaces func(ws []model.Workspace)
	OnSelection  func(sessionID string)
	OnNotice     func(n chat.Notice)
}

func (l ListenerFuncs) WorkspacesChanged(ws []model.Workspace) {
	if l.OnWorkspaces != nil {
		l.OnWorkspaces(ws)
	}
}

func (l ListenerFuncs) SelectionChanged(sessionID string) {
	if l.OnSelection != nil {
		l.OnSelection(sessionID)
	}
}

func (l ListenerFuncs) Notice(n chat.Notice) {
	if l.OnNotice != nil {
		l.OnNotice(n)
	}
}

// Store holds the workspace list and the selected session.
type Store struct {
	backend  Backend
	listener Listener

	mu         sync.RWMutex
	workspaces []model.Workspace
	selected   string
}

// NewStore returns an empty store. Call Refresh to populate it.
func NewStore(backend Backend, listener Listener) *Store {
	if listener == nil {
		listener = ListenerFuncs{}
	}
	return &Store{backend: backend, listener: listener}
}

// =============================================================================
// READS
// =============================================================================

// Workspaces returns a copy of the current list.
func (s *Store) Workspaces() []model.Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneWorkspaces(s.workspaces)
}

// Selected returns the selected session id, or "".
func (s *Store) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// FindSession locates a session and its workspace.
func (s *Store) FindSession(sessionID string) (model.Session, model.Workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.workspaces {
		if sess, ok := w.FindSession(sessionID); ok {
			return sess, cloneWorkspace(w), true
		}
	}
	return model.Session{}, model.Workspace{}, false
}

// WorkspaceOf returns the workspace containing sessionID.
func (s *Store) WorkspaceOf(sessionID string) (model.Workspace, bool) {
	_, w, ok := s.FindSession(sessionID)
	return w, ok
}

// FindWorkspace returns the workspace with the given id.
func (s *Store) FindWorkspace(workspaceID string) (model.Workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.workspaces {
		if w.WorkspaceID == workspaceID {
			return cloneWorkspace(w), true
		}
	}
	return model.Workspace{}, false
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Refresh refetches the whole list.
func (s *Store) Refresh(ctx context.Context) error {
	ws, err := s.backend.ListWorkspaces(ctx)
	if err != nil {
		s.notifyError("Failed to load workspaces", err)
		return err
	}
	s.mu.Lock()
	s.workspaces = cloneWorkspaces(ws)
	s.mu.Unlock()
	s.listener.WorkspacesChanged(cloneWorkspaces(ws))
	return nil
}

// Select marks a session as selected.
func (s *Store) Select(sessionID string) {
	s.mu.Lock()
	s.selected = sessionID
	s.mu.Unlock()
	s.listener.SelectionChanged(sessionID)
}

// CreateWorkspace creates a workspace and refetches.
func (s *Store) CreateWorkspace(ctx context.Context, title string) error {
	if err := s.backend.CreateWorkspace(ctx, title); err != nil {
		s.notifyError("Failed to create workspace", err)
		return err
	}
	s.notify(chat.NoticeSuccess, "Workspace created")
	return s.Refresh(ctx)
}

// RenameWorkspace retitles a workspace and refetches.
func (s *Store) RenameWorkspace(ctx context.Context, workspaceID, title string) error {
	if err := s.backend.RenameWorkspace(ctx, workspaceID, title); err != nil {
		s.notifyError("Failed to rename workspace", err)
		return err
	}
	s.notify(chat.NoticeSuccess, "Workspace renamed")
	return s.Refresh(ctx)
}

// CreateSession opens a session in a workspace, refetches and selects it.
func (s *Store) CreateSession(ctx context.Context, workspaceID string) (string, error) {
	id, err := s.backend.CreateSession(ctx, workspaceID)
	if err != nil {
		s.notifyError("Failed to create session", err)
		return "", err
	}
	s.notify(chat.NoticeSuccess, "Session created")
	refreshErr := s.Refresh(ctx)
	s.Select(id)
	return id, refreshErr
}

// RenameSession retitles a session and refetches.
func (s *Store) RenameSession(ctx context.Context, sessionID, title string) error {
	if err := s.backend.RenameSession(ctx, sessionID, title); err != nil {
		s.notifyError("Failed to rename session", err)
		return err
	}
	return s.Refresh(ctx)
}

// DeleteSession deletes a session, removes it locally, clears the selection
// if it was selected, and refetches.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.backend.DeleteSession(ctx, sessionID); err != nil {
		s.notifyError("Failed to delete session", err)
		return err
	}

	s.mu.Lock()
	next := cloneWorkspaces(s.workspaces)
	for i := range next {
		kept := next[i].Sessions[:0]
		for _, sess := range next[i].Sessions {
			if sess.SessionID != sessionID {
				kept = append(kept, sess)
			}
		}
		next[i].Sessions = kept
	}
	s.workspaces = next
	wasSelected := s.selected == sessionID
	if wasSelected {
		s.selected = ""
	}
	s.mu.Unlock()

	s.listener.WorkspacesChanged(cloneWorkspaces(next))
	if wasSelected {
		s.listener.SelectionChanged("")
	}
	s.notify(chat.NoticeSuccess, "Session deleted")
	return s.Refresh(ctx)
}

// DeleteWorkspace deletes a workspace, removes it locally, clears the
// selection if the selected session belonged to it, and refetches.
func (s *Store) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	if err := s.backend.DeleteWorkspace(ctx, workspaceID); err != nil {
		s.notifyError("Failed to delete workspace", err)
		return err
	}

	s.mu.Lock()
	next := make([]model.Workspace, 0, len(s.workspaces))
	wasSelected := false
	for _, w := range s.workspaces {
		if w.WorkspaceID == workspaceID {
			if _, ok := w.FindSession(s.selected); ok && s.selected != "" {
				wasSelected = true
			}
			continue
		}
		next = append(next, cloneWorkspace(w))
	}
	s.workspaces = next
	if wasSelected {
		s.selected = ""
	}
	s.mu.Unlock()

	s.listener.WorkspacesChanged(cloneWorkspaces(next))
	if wasSelected {
		s.listener.SelectionChanged("")
	}
	s.notify(chat.NoticeSuccess, "Workspace deleted")
	return s.Refresh(ctx)
}

// SessionRenamed adapts the store to chat title updates: it refetches so
// the sidebar shows the new title.
func (s *Store) SessionRenamed(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil {
		slog.WarnContext(ctx, "WORKSPACE_REFRESH", "error", err)
	}
}

func (s *Store) notify(level chat.NoticeLevel, title string) {
	s.listener.Notice(chat.Notice{Level: level, Title: title})
}

func (s *Store) notifyError(title string, err error) {
	s.listener.Notice(chat.Notice{Level: chat.NoticeError, Title: title, Detail: err.Error()})
}

func cloneWorkspace(w model.Workspace) model.Workspace {
	w.Sessions = append([]model.Session(nil), w.Sessions...)
	return w
}

func cloneWorkspaces(ws []model.Workspace) []model.Workspace {
	if ws == nil {
		return nil
	}
	out := make([]model.Workspace, len(ws))
	for i, w := range ws {
		out[i] = cloneWorkspace(w)
	}
	return out
}
