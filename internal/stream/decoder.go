// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/kbchat/internal/model"
)

// MaxLineSize is the longest line accepted; longer lines are malformed.
const MaxLineSize = 1 << 20

var (
	errLineTooLong = errors.New("line exceeds 1 MiB")
	errNotObject   = errors.New("line is not a JSON object")
	errMissingData = errors.New("event has no data object")
)

// wireEvent is the untyped shape of a stream line.
type wireEvent struct {
	Type    *string         `json:"type"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type chunkData struct {
	Content   string       `json:"content"`
	MessageID model.FlexID `json:"message_id,omitempty"`
}

type metadataData struct {
	FileMetadata []model.FileMetadata `json:"file_metadata"`
	MessageID    model.FlexID         `json:"message_id,omitempty"`
}

type completeData struct {
	UserMessageID      model.FlexID `json:"user_message_id"`
	AssistantMessageID model.FlexID `json:"assistant_message_id"`
	Message            string       `json:"message,omitempty"`
}

type errorData struct {
	Message string `json:"message"`
}

// Parse decodes a single line (without its newline).
func Parse(line []byte) (Event, error) {
	if trimmed := bytes.TrimSpace(line); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &MalformedLineError{Line: string(line), Err: errNotObject}
	}
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, &MalformedLineError{Line: string(line), Err: err}
	}
	if w.Type == nil {
		return nil, &UnknownEventError{}
	}

	// Only error events may omit data; the rest carry their payload there.
	data := w.Data
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		if *w.Type == TypeChunk || *w.Type == TypeMetadata || *w.Type == TypeComplete {
			return nil, &MalformedLineError{Line: string(line), Err: errMissingData}
		}
		data = []byte("{}")
	}

	switch *w.Type {
	case TypeChunk:
		var d chunkData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, &MalformedLineError{Line: string(line), Err: err}
		}
		return &ChunkEvent{Content: d.Content, MessageID: d.MessageID.String()}, nil

	case TypeMetadata:
		var d metadataData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, &MalformedLineError{Line: string(line), Err: err}
		}
		return &MetadataEvent{Files: d.FileMetadata, MessageID: d.MessageID.String()}, nil

	case TypeComplete:
		var d completeData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, &MalformedLineError{Line: string(line), Err: err}
		}
		return &CompleteEvent{
			UserMessageID:      d.UserMessageID.String(),
			AssistantMessageID: d.AssistantMessageID.String(),
			Message:            d.Message,
		}, nil

	case TypeError:
		msg := w.Message
		if msg == "" {
			var d errorData
			// An undecodable data block still leaves a usable error event.
			if json.Unmarshal(data, &d) == nil {
				msg = d.Message
			}
		}
		return &ErrorEvent{Message: msg}, nil

	default:
		return nil, &UnknownEventError{Type: *w.Type}
	}
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder reads events from a stream body. Lines may span any number of
// underlying reads. It is not safe for concurrent use.
type Decoder struct {
	reader *bufio.Reader
	line   []byte
	lines  int
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next event. Blank lines are skipped. A final line with
// no trailing newline is still decoded. Parse errors (*MalformedLineError,
// *UnknownEventError) describe only the current line and the decoder can
// continue past them. io.EOF marks the clean end of the body; any other
// error comes from the underlying reader.
func (d *Decoder) Next() (Event, error) {
	for {
		line, err := d.readLine()
		if errors.Is(err, errLineTooLong) {
			d.lines++
			return nil, &MalformedLineError{Line: string(line), Err: err}
		}
		if err != nil {
			return nil, err
		}
		d.lines++
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return Parse(line)
	}
}

// Lines returns the number of lines consumed so far.
func (d *Decoder) Lines() int {
	return d.lines
}

// readLine returns one line without its terminator. An over-long line is
// consumed in full and reported with errLineTooLong and its prefix.
func (d *Decoder) readLine() ([]byte, error) {
	d.line = d.line[:0]
	tooLong := false
	for {
		frag, err := d.reader.ReadSlice('\n')
		if !tooLong {
			if len(d.line)+len(frag) > MaxLineSize+1 {
				tooLong = true
				room := MaxLineSize - len(d.line)
				if room > 0 {
					d.line = append(d.line, frag[:room]...)
				}
			} else {
				d.line = append(d.line, frag...)
			}
		}

		switch {
		case err == nil:
			if tooLong {
				return d.line, errLineTooLong
			}
			return bytes.TrimSuffix(d.line, []byte("\n")), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if tooLong {
				return d.line, errLineTooLong
			}
			if len(d.line) > 0 {
				return d.line, nil
			}
			return nil, io.EOF
		default:
			return nil, fmt.Errorf("read stream: %w", err)
		}
	}
}
