// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"net/http"
	"net/mail"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/kbchat/internal/model"
)

// ============================================================================
// AUTH
// ============================================================================

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()

	acct, found := st.accounts[strings.ToLower(req.Email)]
	if !found || acct.password != req.Password {
		fail(c, http.StatusBadRequest, "incorrect email or password")
		return
	}
	ok(c, gin.H{
		"access_token": st.issueToken(strings.ToLower(req.Email)),
		"token_type":   "bearer",
		"user":         acct.user,
	})
}

func (s *Server) handleRegister(c *gin.Context) {
	var req struct {
		Email            string `json:"email"`
		Password         string `json:"password"`
		ConfirmPassword  string `json:"confirm_password"`
		VerificationCode string `json:"verification_code"`
		DepartmentID     int    `json:"department_id"`
		Name             string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		badRequest(c, "invalid email address")
		return
	}
	if req.Password == "" || req.Password != req.ConfirmPassword {
		badRequest(c, "passwords do not match")
		return
	}
	if req.VerificationCode != VerificationCode {
		badRequest(c, "invalid verification code")
		return
	}

	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()

	email := strings.ToLower(req.Email)
	if _, exists := st.accounts[email]; exists {
		badRequest(c, "email already registered")
		return
	}
	ok(c, st.addAccount(email, req.Password, req.Name, req.DepartmentID))
}

func (s *Server) handleSendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		badRequest(c, "email is required")
		return
	}
	s.log.Info("VERIFICATION_SENT", "email", req.Email, "code", VerificationCode)
	ok(c, nil)
}

func (s *Server) handleDepartments(c *gin.Context) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	ok(c, s.state.departments)
}

func (s *Server) handleLogout(c *gin.Context) {
	token := strings.TrimSpace(c.GetHeader("Authorization")[7:])
	s.state.mu.Lock()
	delete(s.state.tokens, token)
	s.state.mu.Unlock()
	ok(c, nil)
}

func (s *Server) handleMe(c *gin.Context) {
	ok(c, gin.H{"user": currentUser(c)})
}

// ============================================================================
// WORKSPACES AND SESSIONS
// ============================================================================

func (s *Server) handleWorkspaceList(c *gin.Context) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	ok(c, s.state.workspaceList())
}

func (s *Server) handleWorkspaceSave(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		badRequest(c, "title is required")
		return
	}

	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()

	w := &workspaceRec{
		id:        st.nextID(),
		title:     strings.TrimSpace(req.Title),
		createdAt: st.now(),
		embedded:  make(map[string]bool),
	}
	st.workspaces = append(st.workspaces, w)
	ok(c, w.id)
}

func (s *Server) handleWorkspaceRename(c *gin.Context) {
	var req struct {
		WorkspaceID string `json:"workspace_id"`
		Title       string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Title == "" {
		badRequest(c, "workspace_id and title are required")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	w := s.state.findWorkspace(req.WorkspaceID)
	if w == nil {
		notFound(c, "workspace")
		return
	}
	w.title = req.Title
	ok(c, nil)
}

func (s *Server) handleWorkspaceDelete(c *gin.Context) {
	var req struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "workspace_id is required")
		return
	}

	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()
	w := st.findWorkspace(req.WorkspaceID)
	if w == nil {
		notFound(c, "workspace")
		return
	}
	for _, sid := range append([]string(nil), w.sessions...) {
		st.deleteSession(sid)
	}
	kept := st.workspaces[:0]
	for _, other := range st.workspaces {
		if other.id != w.id {
			kept = append(kept, other)
		}
	}
	st.workspaces = kept
	ok(c, nil)
}

func (s *Server) handleSessionSave(c *gin.Context) {
	var req struct {
		WorkspaceID string `json:"workspaceId"`
		Title       string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "workspaceId is required")
		return
	}

	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()
	w := st.findWorkspace(req.WorkspaceID)
	if w == nil {
		notFound(c, "workspace")
		return
	}
	title := req.Title
	if title == "" {
		title = "New Thread"
	}
	sess := &sessionRec{
		id:          st.nextID(),
		workspaceID: w.id,
		title:       title,
		createdAt:   st.now(),
	}
	st.sessions[sess.id] = sess
	w.sessions = append([]string{sess.id}, w.sessions...)
	ok(c, sess.id)
}

func (s *Server) handleSessionRename(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
		Title     string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Title == "" {
		badRequest(c, "session_id and title are required")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	sess, found := s.state.sessions[req.SessionID]
	if !found {
		notFound(c, "session")
		return
	}
	sess.title = req.Title
	ok(c, nil)
}

func (s *Server) handleSessionDelete(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "session_id is required")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if !s.state.deleteSession(req.SessionID) {
		notFound(c, "session")
		return
	}
	ok(c, nil)
}

func (s *Server) handleHistory(c *gin.Context) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	sess, found := s.state.sessions[c.Param("id")]
	if !found {
		notFound(c, "session")
		return
	}
	msgs := make([]model.Message, len(sess.messages))
	for i, m := range sess.messages {
		msgs[i] = m.Clone()
	}
	ok(c, msgs)
}

func (s *Server) handleHistoryDelete(c *gin.Context) {
	var req struct {
		MessageID string `json:"message_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.MessageID == "" {
		badRequest(c, "message_id is required")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	for _, sess := range s.state.sessions {
		for i, m := range sess.messages {
			if m.ID == req.MessageID {
				sess.messages = append(sess.messages[:i], sess.messages[i+1:]...)
				ok(c, nil)
				return
			}
		}
	}
	notFound(c, "message")
}

// ============================================================================
// FILES
// ============================================================================

func (s *Server) handleUploadHistory(c *gin.Context) {
	user := currentUser(c)

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	out := make([]model.FileUploadHistory, 0, len(s.state.files))
	for i := len(s.state.files) - 1; i >= 0; i-- {
		f := s.state.files[i]
		out = append(out, model.FileUploadHistory{
			ID:        model.FlexID(f.id),
			FileName:  f.name,
			FileSize:  f.size,
			FileType:  fileType(f.name),
			CreatedAt: f.uploadedAt.Format(time.RFC3339),
			CanDelete: f.uploadedBy == user.Email,
		})
	}
	ok(c, out)
}

func (s *Server) handleFolderFiles(c *gin.Context) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	ok(c, s.state.folderTree(c.Query("workspace_id")))
}

func (s *Server) handleCreateFolder(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		badRequest(c, "name is required")
		return
	}

	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()
	st.folders = append(st.folders, &folderRec{id: st.nextID(), name: strings.TrimSpace(req.Name)})
	ok(c, nil)
}

// handleUploadCheck answers -1 for a name already embedded somewhere, 0 for
// an existing name, and 1 for a new one.
func (s *Server) handleUploadCheck(c *gin.Context) {
	var req struct {
		FileName     string `json:"file_name"`
		DepartmentID string `json:"department_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.FileName == "" {
		badRequest(c, "file_name is required")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	f := s.state.fileByName(req.FileName, req.DepartmentID)
	switch {
	case f == nil:
		ok(c, model.UploadStatusNew)
	case s.state.isEmbedded(f.id):
		ok(c, model.UploadStatusEmbedded)
	default:
		ok(c, model.UploadStatusExists)
	}
}

func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize)
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	dept := c.PostForm("department_id")
	if dept == "" {
		dept = "0"
	}
	name := filepath.Base(header.Filename)
	user := currentUser(c)

	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if existing := st.fileByName(name, dept); existing != nil {
		existing.size = header.Size
		existing.uploadedAt = st.now()
		existing.uploadedBy = user.Email
		ok(c, existing.id)
		return
	}
	f := &fileRec{
		id:           st.nextID(),
		name:         name,
		size:         header.Size,
		departmentID: dept,
		folderID:     uploadsFolderID,
		uploadedBy:   user.Email,
		uploadedAt:   st.now(),
	}
	st.files = append(st.files, f)
	ok(c, f.id)
}

func (s *Server) handleEmbed(c *gin.Context) {
	var req struct {
		FileIDs     []string `json:"file_ids"`
		WorkspaceID string   `json:"workspace_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.FileIDs) == 0 {
		badRequest(c, "file_ids and workspace_id are required")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	w := s.state.findWorkspace(req.WorkspaceID)
	if w == nil {
		notFound(c, "workspace")
		return
	}
	for _, id := range req.FileIDs {
		if _, f := s.state.findFile(id); f != nil {
			w.embedded[id] = true
		}
	}
	ok(c, nil)
}

func (s *Server) handleRemoveEmbed(c *gin.Context) {
	var req struct {
		FileIDs     []string `json:"file_ids"`
		WorkspaceID string   `json:"workspace_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "file_ids and workspace_id are required")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	w := s.state.findWorkspace(req.WorkspaceID)
	if w == nil {
		notFound(c, "workspace")
		return
	}
	for _, id := range req.FileIDs {
		delete(w.embedded, id)
	}
	ok(c, nil)
}

func (s *Server) handleFileDelete(c *gin.Context) {
	var req struct {
		FileID string `json:"file_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.FileID == "" {
		badRequest(c, "file_id is required")
		return
	}

	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()
	i, f := st.findFile(req.FileID)
	if f == nil {
		notFound(c, "file")
		return
	}
	st.files = append(st.files[:i], st.files[i+1:]...)
	for _, w := range st.workspaces {
		delete(w.embedded, f.id)
	}
	ok(c, nil)
}
