// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package credstore holds the authenticated session: the bearer token and
// user profile established at login and torn down at logout or when the
// service answers 401.
//
// A Session is created once per process and handed to every component that
// calls the service. Nothing else reads credentials.
package credstore

import (
	"log/slog"
	"sync"

	"github.com/jeranaias/kbchat/internal/logging"
	"github.com/jeranaias/kbchat/internal/model"
)

// Session is the process-wide authentication context.
type Session struct {
	mu      sync.RWMutex
	creds   *Credentials
	store   *Store
	onClear []func()
}

// NewSession returns an empty in-memory session.
func NewSession() *Session {
	return &Session{}
}

// OpenSession returns a session backed by store, restoring any saved credentials.
// A load failure still yields a usable, unauthenticated session.
func OpenSession(store *Store) (*Session, error) {
	s := &Session{store: store}
	creds, err := store.Load()
	if err != nil {
		return s, err
	}
	s.creds = creds
	return s, nil
}

// Token returns the bearer token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return ""
	}
	return s.creds.AccessToken
}

// TokenType returns the token scheme, defaulting to Bearer.
func (s *Session) TokenType() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil || s.creds.TokenType == "" {
		return "Bearer"
	}
	return s.creds.TokenType
}

// User returns the signed-in user.
func (s *Session) User() (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return model.User{}, false
	}
	return s.creds.User, true
}

// Authenticated reports whether a token is present.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// Set installs credentials and persists them when a store is attached.
func (s *Session) Set(creds Credentials) error {
	s.mu.Lock()
	c := creds
	s.creds = &c
	store := s.store
	s.mu.Unlock()

	if store != nil {
		return store.Save(creds)
	}
	return nil
}

// SetUser replaces the cached profile, keeping the token.
func (s *Session) SetUser(u model.User) error {
	s.mu.Lock()
	if s.creds == nil {
		s.mu.Unlock()
		return nil
	}
	s.creds.User = u
	c := *s.creds
	store := s.store
	s.mu.Unlock()

	if store != nil {
		return store.Save(c)
	}
	return nil
}

// OnClear registers fn to run after the session is cleared.
func (s *Session) OnClear(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClear = append(s.onClear, fn)
}

// Clear drops the credentials, deletes the persisted copy and runs the
// OnClear hooks. Hooks run only when credentials were actually present.
func (s *Session) Clear() {
	s.mu.Lock()
	had := s.creds != nil
	s.creds = nil
	store := s.store
	hooks := append([]func(){}, s.onClear...)
	s.mu.Unlock()

	if store != nil {
		if err := store.Remove(); err != nil {
			slog.Warn(logging.EventSessionCleared, "error", err)
		}
	}
	if !had {
		return
	}
	slog.Info(logging.EventSessionCleared)
	for _, fn := range hooks {
		fn()
	}
}
