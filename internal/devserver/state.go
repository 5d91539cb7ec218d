// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/jeranaias/kbchat/internal/model"
)

// =============================================================================
// IN-MEMORY STATE
// =============================================================================

type account struct {
	password string
	user     model.User
}

type workspaceRec struct {
	id        string
	title     string
	createdAt time.Time
	sessions  []string // session ids, newest first
	embedded  map[string]bool
}

type sessionRec struct {
	id          string
	workspaceID string
	title       string
	createdAt   time.Time
	messages    []model.Message
}

type fileRec struct {
	id           string
	name         string
	size         int64
	departmentID string
	folderID     string
	uploadedBy   string
	uploadedAt   time.Time
}

type folderRec struct {
	id   string
	name string
}

// state is guarded by mu; every handler takes the lock for its whole body.
type state struct {
	mu   sync.Mutex
	node *snowflake.Node
	now  func() time.Time

	accounts    map[string]*account // by email
	tokens      map[string]string   // token -> email
	departments []model.Department

	workspaces []*workspaceRec
	sessions   map[string]*sessionRec
	files      []*fileRec
	folders    []*folderRec
}

// uploadsFolderID names the folder new uploads land in.
const uploadsFolderID = "1"

func newState(nodeID int64) (*state, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &state{
		node:     node,
		now:      time.Now,
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
		departments: []model.Department{
			{ID: 1, Name: "Engineering"},
			{ID: 2, Name: "Operations"},
			{ID: 3, Name: "Human Resources"},
		},
		sessions: make(map[string]*sessionRec),
		folders:  []*folderRec{{id: uploadsFolderID, name: "Uploads"}},
	}, nil
}

func (s *state) nextID() string {
	return s.node.Generate().String()
}

func (s *state) addAccount(email, password, name string, departmentID int) model.User {
	u := model.User{
		ID:           model.FlexID(s.nextID()),
		Email:        email,
		Name:         name,
		DepartmentID: model.FlexID(strconv.Itoa(departmentID)),
	}
	s.accounts[email] = &account{password: password, user: u}
	return u
}

func (s *state) issueToken(email string) string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	token := hex.EncodeToString(b)
	s.tokens[token] = email
	return token
}

func (s *state) userForToken(token string) (model.User, bool) {
	email, ok := s.tokens[token]
	if !ok {
		return model.User{}, false
	}
	acct, ok := s.accounts[email]
	if !ok {
		return model.User{}, false
	}
	return acct.user, true
}

func (s *state) findWorkspace(id string) *workspaceRec {
	for _, w := range s.workspaces {
		if w.id == id {
			return w
		}
	}
	return nil
}

func (s *state) workspaceList() []model.Workspace {
	out := make([]model.Workspace, 0, len(s.workspaces))
	for _, w := range s.workspaces {
		ws := model.Workspace{
			WorkspaceID:        w.id,
			WorkspaceTitle:     w.title,
			WorkspaceCreatedAt: w.createdAt.Format(time.RFC3339),
			Sessions:           []model.Session{},
		}
		for _, sid := range w.sessions {
			sess := s.sessions[sid]
			ws.Sessions = append(ws.Sessions, model.Session{
				SessionID:        sess.id,
				SessionTitle:     sess.title,
				SessionCreatedAt: sess.createdAt.Format(time.RFC3339),
			})
		}
		out = append(out, ws)
	}
	return out
}

func (s *state) deleteSession(id string) bool {
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	delete(s.sessions, id)
	if w := s.findWorkspace(sess.workspaceID); w != nil {
		kept := w.sessions[:0]
		for _, sid := range w.sessions {
			if sid != id {
				kept = append(kept, sid)
			}
		}
		w.sessions = kept
	}
	return true
}

func (s *state) findFile(id string) (int, *fileRec) {
	for i, f := range s.files {
		if f.id == id {
			return i, f
		}
	}
	return -1, nil
}

func (s *state) fileByName(name, departmentID string) *fileRec {
	for _, f := range s.files {
		if f.name == name && f.departmentID == departmentID {
			return f
		}
	}
	return nil
}

func (s *state) isEmbedded(fileID string) bool {
	for _, w := range s.workspaces {
		if w.embedded[fileID] {
			return true
		}
	}
	return false
}

func (s *state) folderTree(workspaceID string) []model.FolderTree {
	w := s.findWorkspace(workspaceID)
	tree := make([]model.FolderTree, 0, len(s.folders))
	for _, folder := range s.folders {
		ft := model.FolderTree{
			FolderID:   model.FlexID(folder.id),
			FolderName: folder.name,
			Files:      []model.KBFile{},
		}
		for _, f := range s.files {
			if f.folderID != folder.id {
				continue
			}
			ft.Files = append(ft.Files, model.KBFile{
				FileID:         model.FlexID(f.id),
				FileName:       f.name,
				FileType:       fileType(f.name),
				FileSize:       f.size,
				IsSelected:     w != nil && w.embedded[f.id],
				FileUploadTime: f.uploadedAt.Format(time.RFC3339),
				FileUploadMan:  f.uploadedBy,
			})
		}
		tree = append(tree, ft)
	}
	return tree
}

// relatedFiles lists the files embedded in a session's workspace.
func (s *state) relatedFiles(sess *sessionRec) []model.FileMetadata {
	w := s.findWorkspace(sess.workspaceID)
	if w == nil {
		return nil
	}
	var out []model.FileMetadata
	for _, f := range s.files {
		if w.embedded[f.id] {
			out = append(out, model.FileMetadata{
				FileID:         model.FlexID(f.id),
				FileName:       f.name,
				FileUploadTime: f.uploadedAt.Format(time.RFC3339),
				IsSelected:     true,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out
}
