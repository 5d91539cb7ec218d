// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/ui/styles"
	"github.com/jeranaias/kbchat/internal/util"
)

// EntryKind distinguishes sidebar rows.
type EntryKind int

const (
	EntryWorkspace EntryKind = iota
	EntrySession
)

// Entry is one sidebar row.
type Entry struct {
	Kind        EntryKind
	WorkspaceID string
	SessionID   string
	Title       string
}

func (e Entry) key() string {
	if e.Kind == EntryWorkspace {
		return "w:" + e.WorkspaceID
	}
	return "s:" + e.SessionID
}

// Sidebar is the workspace tree with a movable cursor.
type Sidebar struct {
	entries []Entry
	cursor  int
	offset  int
}

// SetWorkspaces rebuilds the rows. The cursor stays on the same row when
// it still exists.
func (s *Sidebar) SetWorkspaces(workspaces []model.Workspace) {
	var current string
	if e, ok := s.Current(); ok {
		current = e.key()
	}

	s.entries = s.entries[:0]
	for _, w := range workspaces {
		s.entries = append(s.entries, Entry{
			Kind:        EntryWorkspace,
			WorkspaceID: w.WorkspaceID,
			Title:       orUntitled(w.WorkspaceTitle),
		})
		for _, sess := range w.Sessions {
			s.entries = append(s.entries, Entry{
				Kind:        EntrySession,
				WorkspaceID: w.WorkspaceID,
				SessionID:   sess.SessionID,
				Title:       orUntitled(sess.SessionTitle),
			})
		}
	}

	s.cursor = 0
	for i, e := range s.entries {
		if e.key() == current {
			s.cursor = i
			break
		}
	}
}

// Entries returns the rows in display order.
func (s *Sidebar) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// Move shifts the cursor by delta rows, clamped to the list.
func (s *Sidebar) Move(delta int) {
	if len(s.entries) == 0 {
		s.cursor = 0
		return
	}
	s.cursor += delta
	if s.cursor < 0 {
		s.cursor = 0
	}
	if s.cursor >= len(s.entries) {
		s.cursor = len(s.entries) - 1
	}
}

// Current returns the row under the cursor.
func (s *Sidebar) Current() (Entry, bool) {
	if s.cursor < 0 || s.cursor >= len(s.entries) {
		return Entry{}, false
	}
	return s.entries[s.cursor], true
}

// CurrentWorkspaceID returns the workspace of the row under the cursor.
func (s *Sidebar) CurrentWorkspaceID() string {
	e, ok := s.Current()
	if !ok {
		return ""
	}
	return e.WorkspaceID
}

// FocusSession puts the cursor on sessionID if it is listed.
func (s *Sidebar) FocusSession(sessionID string) bool {
	for i, e := range s.entries {
		if e.Kind == EntrySession && e.SessionID == sessionID {
			s.cursor = i
			return true
		}
	}
	return false
}

// Render draws the rows inside a box of width by height cells. selected is
// the session shown in the chat pane.
func (s *Sidebar) Render(theme *styles.Theme, width, height int, selected string, focused bool) string {
	box := theme.Sidebar
	if focused {
		box = theme.SidebarFocused
	}
	inner := width - box.GetHorizontalFrameSize()
	rows := height - box.GetVerticalFrameSize() - 2
	if inner < 4 {
		inner = 4
	}
	if rows < 1 {
		rows = 1
	}

	lines := []string{theme.SidebarHeading.Render("Workspaces")}
	if len(s.entries) == 0 {
		lines = append(lines, theme.SidebarEmpty.Render("none yet (ctrl+w)"))
	}

	if s.cursor < s.offset {
		s.offset = s.cursor
	}
	if s.cursor >= s.offset+rows {
		s.offset = s.cursor - rows + 1
	}
	end := s.offset + rows
	if end > len(s.entries) {
		end = len(s.entries)
	}

	for i := s.offset; i < end; i++ {
		e := s.entries[i]
		style := theme.SessionItem
		label := e.Title
		if e.Kind == EntryWorkspace {
			style = theme.WorkspaceItem
			label = "▸ " + label
		} else if e.SessionID == selected {
			style = style.Inherit(theme.ItemSelected)
			label = "● " + label
		}
		label = util.TruncateWidth(label, inner-style.GetHorizontalFrameSize())
		if focused && i == s.cursor {
			style = style.Inherit(theme.ItemCursor)
		}
		lines = append(lines, style.Render(label))
	}

	return box.Width(inner).Height(height - box.GetVerticalFrameSize()).
		Render(strings.Join(lines, "\n"))
}

func orUntitled(title string) string {
	if strings.TrimSpace(title) == "" {
		return "Untitled"
	}
	return title
}
