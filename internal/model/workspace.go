// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Session is one conversation thread. It belongs to exactly one workspace.
type Session struct {
	SessionID        string `json:"session_id"`
	SessionTitle     string `json:"session_title"`
	SessionCreatedAt string `json:"session_created_at"`
}

// Workspace groups sessions and knowledge-base files.
type Workspace struct {
	WorkspaceID        string    `json:"workspace_id"`
	WorkspaceTitle     string    `json:"workspace_title"`
	WorkspaceCreatedAt string    `json:"workspace_created_at"`
	Sessions           []Session `json:"sessions"`
}

// FindSession returns the session with the given id, if present.
func (w Workspace) FindSession(sessionID string) (Session, bool) {
	for _, s := range w.Sessions {
		if s.SessionID == sessionID {
			return s, true
		}
	}
	return Session{}, false
}

// User is the authenticated account.
type User struct {
	ID               FlexID `json:"id"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	DepartmentID     FlexID `json:"department_id"`
	IsEnterpriseUser bool   `json:"is_enterprise_user"`
}

// Department is an organizational unit offered at registration.
type Department struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
