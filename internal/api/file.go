// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/url"

	"github.com/jeranaias/kbchat/internal/model"
)

// UploadHistory lists recently uploaded files.
func (c *Client) UploadHistory(ctx context.Context) ([]model.FileUploadHistory, error) {
	var out []model.FileUploadHistory
	if err := c.getJSON(ctx, "/common/file/upload/history", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FolderFiles returns the folder tree visible from a workspace.
func (c *Client) FolderFiles(ctx context.Context, workspaceID string) ([]model.FolderTree, error) {
	var out []model.FolderTree
	q := url.Values{"workspace_id": {workspaceID}}
	if err := c.getJSON(ctx, "/folder/file/list", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateFolder creates a knowledge-base folder.
func (c *Client) CreateFolder(ctx context.Context, name string) error {
	if name == "" {
		return validationError("folder name is required")
	}
	return c.postJSON(ctx, "/create/folder", map[string]string{"name": name}, nil)
}

// UploadCheck asks whether fileName may be uploaded into a department.
// The result is one of model.UploadStatusEmbedded, UploadStatusExists or
// UploadStatusNew; other values are passed through unchanged.
func (c *Client) UploadCheck(ctx context.Context, fileName, departmentID string) (int, error) {
	if fileName == "" {
		return 0, validationError("file name is required")
	}
	if departmentID == "" {
		departmentID = "0"
	}
	var status int
	err := c.postJSON(ctx, "/upload/check", map[string]string{
		"file_name":     fileName,
		"department_id": departmentID,
	}, &status)
	return status, err
}

// Upload sends a file from disk into the knowledge base.
func (c *Client) Upload(ctx context.Context, path, departmentID string) error {
	if path == "" {
		return validationError("file path is required")
	}
	if departmentID == "" {
		departmentID = "0"
	}
	return c.postMultipart(ctx, "/upload",
		[][2]string{{"department_id", departmentID}},
		&formFile{field: "file", path: path},
		nil,
	)
}

// Embed vectorizes files into a workspace.
func (c *Client) Embed(ctx context.Context, fileIDs []string, workspaceID string) error {
	if len(fileIDs) == 0 || workspaceID == "" {
		return validationError("file ids and workspace id are required")
	}
	return c.postJSON(ctx, "/file/to/embed", map[string]interface{}{
		"file_ids":     fileIDs,
		"workspace_id": workspaceID,
	}, nil)
}

// RemoveFromWorkspace detaches one file from a workspace.
func (c *Client) RemoveFromWorkspace(ctx context.Context, workspaceID, fileID string) error {
	if workspaceID == "" || fileID == "" {
		return validationError("workspace id and file id are required")
	}
	return c.postJSON(ctx, "/file/remove/embed", map[string]interface{}{
		"file_ids":     []string{fileID},
		"workspace_id": workspaceID,
	}, nil)
}

// DeleteFile removes an uploaded file.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	if fileID == "" {
		return validationError("file id is required")
	}
	return c.postJSON(ctx, "/file/delete", map[string]string{"file_id": fileID}, nil)
}
