// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/kbchat/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports transcripts to JSON. Messages keep the wire shape the
// service uses, so an export can be fed back through the same decoders.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type jsonDocument struct {
	SessionID  string          `json:"session_id"`
	Title      string          `json:"title"`
	Workspace  string          `json:"workspace,omitempty"`
	ExportedAt string          `json:"exported_at,omitempty"`
	Messages   []model.Message `json:"messages"`
}

// Export converts a transcript to indented JSON.
func (e *JSONExporter) Export(t *Transcript) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("transcript is nil")
	}
	doc := jsonDocument{
		SessionID: t.SessionID,
		Title:     t.Title,
		Workspace: t.Workspace,
		Messages:  t.Settled(),
	}
	if e.options.IncludeMetadata {
		doc.ExportedAt = e.options.now().UTC().Format(time.RFC3339)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
