// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package knowledge drives document uploads into the knowledge base and the
// per-workspace file selection.
//
// Every upload is preceded by a check against the service:
//
//	-1  the file is already embedded and is rejected
//	 0  a file with that name exists; the caller decides whether to overwrite
//	 1  the name is free and the file is uploaded directly
//
// Any other answer is reported as a failed check.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jeranaias/kbchat/internal/logging"
	"github.com/jeranaias/kbchat/internal/model"
)

// Backend is the subset of the API client used for file operations.
type Backend interface {
	UploadHistory(ctx context.Context) ([]model.FileUploadHistory, error)
	FolderFiles(ctx context.Context, workspaceID string) ([]model.FolderTree, error)
	CreateFolder(ctx context.Context, name string) error
	UploadCheck(ctx context.Context, fileName, departmentID string) (int, error)
	Upload(ctx context.Context, path, departmentID string) error
	Embed(ctx context.Context, fileIDs []string, workspaceID string) error
	RemoveFromWorkspace(ctx context.Context, workspaceID, fileID string) error
	DeleteFile(ctx context.Context, fileID string) error
}

// Scope selects who can see an uploaded document.
type Scope int

const (
	// ScopeEnterprise shares the document with the whole organization.
	ScopeEnterprise Scope = iota
	// ScopeDepartment restricts it to the uploader's department.
	ScopeDepartment
)

// ParseScope maps "enterprise" and "department" to a Scope.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "", "enterprise":
		return ScopeEnterprise, nil
	case "department", "dept":
		return ScopeDepartment, nil
	}
	return ScopeEnterprise, fmt.Errorf("unknown scope %q (want enterprise or department)", s)
}

func (s Scope) String() string {
	if s == ScopeDepartment {
		return "department"
	}
	return "enterprise"
}

// Confirmer is asked before an existing file is overwritten.
type Confirmer func(fileName string) bool

// DeclineAll never overwrites.
func DeclineAll(string) bool { return false }

// Outcome is what happened to one file.
type Outcome int

const (
	OutcomeUploaded Outcome = iota
	OutcomeOverwritten
	OutcomeRejected
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUploaded:
		return "uploaded"
	case OutcomeOverwritten:
		return "overwritten"
	case OutcomeRejected:
		return "rejected"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// ErrAlreadyEmbedded is the Result error for files the check rejected.
var ErrAlreadyEmbedded = errors.New("file is already embedded")

// Result describes one file of an Upload call.
type Result struct {
	Path    string
	Name    string
	Status  int
	Outcome Outcome
	Err     error
}

// Service wraps a Backend with the upload decision flow.
type Service struct {
	backend      Backend
	departmentID string
}

// NewService returns a service. departmentID is used for ScopeDepartment
// uploads; an empty value falls back to the enterprise scope.
func NewService(backend Backend, departmentID string) *Service {
	return &Service{backend: backend, departmentID: departmentID}
}

// DepartmentFor returns the department id sent for a scope.
func (s *Service) DepartmentFor(scope Scope) string {
	if scope == ScopeDepartment && s.departmentID != "" {
		return s.departmentID
	}
	return "0"
}

// Check runs the upload check for one file name.
func (s *Service) Check(ctx context.Context, name string, scope Scope) (int, error) {
	return s.backend.UploadCheck(ctx, name, s.DepartmentFor(scope))
}

// Upload checks and uploads each path in order. A nil confirm declines
// every overwrite. The returned slice has one entry per path.
func (s *Service) Upload(ctx context.Context, paths []string, scope Scope, confirm Confirmer) []Result {
	if confirm == nil {
		confirm = DeclineAll
	}
	dept := s.DepartmentFor(scope)
	results := make([]Result, 0, len(paths))

	for _, path := range paths {
		res := Result{Path: path, Name: filepath.Base(path)}
		results = append(results, s.uploadOne(ctx, res, dept, confirm))
	}
	return results
}

func (s *Service) uploadOne(ctx context.Context, res Result, dept string, confirm Confirmer) Result {
	info, err := os.Stat(res.Path)
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}
	if !info.Mode().IsRegular() {
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("%s is not a regular file", res.Path)
		return res
	}

	status, err := s.backend.UploadCheck(ctx, res.Name, dept)
	res.Status = status
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("check %s: %w", res.Name, err)
		return res
	}

	switch status {
	case model.UploadStatusEmbedded:
		res.Outcome, res.Err = OutcomeRejected, ErrAlreadyEmbedded
		return res
	case model.UploadStatusExists:
		if !confirm(res.Name) {
			res.Outcome = OutcomeSkipped
			return res
		}
		res.Outcome = OutcomeOverwritten
	case model.UploadStatusNew:
		res.Outcome = OutcomeUploaded
	default:
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("check %s: unexpected status %d", res.Name, status)
		return res
	}

	if err := s.backend.Upload(ctx, res.Path, dept); err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}
	slog.InfoContext(ctx, logging.EventUpload,
		"file", res.Name,
		"department_id", dept,
		"outcome", res.Outcome.String(),
	)
	return res
}

// =============================================================================
// FILE MANAGEMENT
// =============================================================================

// History lists recent uploads.
func (s *Service) History(ctx context.Context) ([]model.FileUploadHistory, error) {
	return s.backend.UploadHistory(ctx)
}

// Delete removes an uploaded file.
func (s *Service) Delete(ctx context.Context, fileID string) error {
	return s.backend.DeleteFile(ctx, fileID)
}

// Tree returns the folder tree for a workspace with selection flags.
func (s *Service) Tree(ctx context.Context, workspaceID string) ([]model.FolderTree, error) {
	return s.backend.FolderFiles(ctx, workspaceID)
}

// Embed selects files into a workspace and returns the refreshed tree.
func (s *Service) Embed(ctx context.Context, fileIDs []string, workspaceID string) ([]model.FolderTree, error) {
	if err := s.backend.Embed(ctx, fileIDs, workspaceID); err != nil {
		return nil, err
	}
	return s.backend.FolderFiles(ctx, workspaceID)
}

// Unembed removes one file from a workspace and returns the refreshed tree.
func (s *Service) Unembed(ctx context.Context, workspaceID, fileID string) ([]model.FolderTree, error) {
	if err := s.backend.RemoveFromWorkspace(ctx, workspaceID, fileID); err != nil {
		return nil, err
	}
	return s.backend.FolderFiles(ctx, workspaceID)
}

// CreateFolder creates a knowledge-base folder.
func (s *Service) CreateFolder(ctx context.Context, name string) error {
	return s.backend.CreateFolder(ctx, name)
}

// SelectedIDs returns the ids of files marked selected in a tree.
func SelectedIDs(tree []model.FolderTree) []string {
	var ids []string
	for _, folder := range tree {
		for _, f := range folder.Files {
			if f.IsSelected {
				ids = append(ids, f.FileID.String())
			}
		}
	}
	return ids
}
