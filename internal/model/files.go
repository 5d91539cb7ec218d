// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlexID is an identifier the service sends either as a JSON number or as a
// JSON string. It is always held as a string.
type FlexID string

// UnmarshalJSON accepts "12", 12 and null.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

// String returns the id as a plain string.
func (f FlexID) String() string {
	return string(f)
}

// FileMetadata describes a knowledge-base file referenced by an answer.
type FileMetadata struct {
	FileID         FlexID `json:"file_id"`
	FileName       string `json:"file_name"`
	FileUploadTime string `json:"file_upload_time,omitempty"`
	IsSelected     bool   `json:"is_selected,omitempty"`
}

// FileUploadHistory is one entry of the recent-uploads list.
type FileUploadHistory struct {
	ID        FlexID `json:"id"`
	FileName  string `json:"file_name"`
	FileSize  int64  `json:"file_size"`
	FileType  string `json:"file_type"`
	CreatedAt string `json:"created_at"`
	CanDelete bool   `json:"can_delete"`
}

// KBFile is a file inside a workspace folder tree.
type KBFile struct {
	FileID         FlexID `json:"file_id"`
	FileName       string `json:"file_name"`
	FileType       string `json:"file_type"`
	FileSize       int64  `json:"file_size"`
	IsCached       bool   `json:"is_cached"`
	IsSelected     bool   `json:"is_selected"`
	FileUploadTime string `json:"file_upload_time"`
	FileUploadMan  string `json:"file_upload_man"`
}

// FolderTree groups the files of one folder.
type FolderTree struct {
	FolderID   FlexID   `json:"folder_id"`
	FolderName string   `json:"folder_name"`
	Files      []KBFile `json:"files"`
}

// Upload check results returned by the service before an upload.
const (
	UploadStatusEmbedded = -1 // exists and is already vectorized
	UploadStatusExists   = 0  // exists but not vectorized; overwrite allowed
	UploadStatusNew      = 1  // does not exist
)
