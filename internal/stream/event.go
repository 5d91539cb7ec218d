// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the chat answer stream.
//
// The response body is newline-delimited JSON. Each line is one object
// tagged by "type":
//
//	{"type":"chunk","data":{"content":"partial text","message_id":"..."}}
//	{"type":"metadata","data":{"file_metadata":[...],"message_id":"..."}}
//	{"type":"complete","data":{"user_message_id":"...","assistant_message_id":"..."}}
//	{"type":"error","message":"...","data":{"message":"..."}}
//
// Lines decode into the Event variants below. A tag outside this set is
// rejected with *UnknownEventError so new protocol additions have to be
// handled deliberately.
package stream

import (
	"fmt"

	"github.com/jeranaias/kbchat/internal/model"
)

// Event type tags as they appear on the wire.
const (
	TypeChunk    = "chunk"
	TypeMetadata = "metadata"
	TypeComplete = "complete"
	TypeError    = "error"
)

// Event is one decoded stream record. The set of implementations is closed:
// *ChunkEvent, *MetadataEvent, *CompleteEvent and *ErrorEvent.
type Event interface {
	Type() string
	isEvent()
}

// ChunkEvent carries the next piece of the assistant's answer.
type ChunkEvent struct {
	Content string
	// MessageID is the server id of the assistant message, when known.
	MessageID string
}

// MetadataEvent carries the files the answer draws on.
type MetadataEvent struct {
	Files     []model.FileMetadata
	MessageID string
}

// CompleteEvent ends a successful exchange with the persisted ids.
type CompleteEvent struct {
	UserMessageID      string
	AssistantMessageID string
	Message            string
}

// ErrorEvent reports a server-side failure for this exchange.
type ErrorEvent struct {
	Message string
}

func (*ChunkEvent) Type() string    { return TypeChunk }
func (*MetadataEvent) Type() string { return TypeMetadata }
func (*CompleteEvent) Type() string { return TypeComplete }
func (*ErrorEvent) Type() string    { return TypeError }

func (*ChunkEvent) isEvent()    {}
func (*MetadataEvent) isEvent() {}
func (*CompleteEvent) isEvent() {}
func (*ErrorEvent) isEvent()    {}

// HasIDs reports whether both server ids are present.
func (e *CompleteEvent) HasIDs() bool {
	return e.UserMessageID != "" && e.AssistantMessageID != ""
}

// =============================================================================
// DECODE ERRORS
// =============================================================================

// MalformedLineError is returned for a line that is not a JSON object.
type MalformedLineError struct {
	Line string
	Err  error
}

func (e *MalformedLineError) Error() string {
	line := e.Line
	if len(line) > 80 {
		line = line[:80] + "..."
	}
	return fmt.Sprintf("malformed stream line %q: %v", line, e.Err)
}

func (e *MalformedLineError) Unwrap() error {
	return e.Err
}

// UnknownEventError is returned for a well-formed line with an unrecognized tag.
type UnknownEventError struct {
	Type string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown stream event type %q", e.Type)
}
