// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
	"fmt"

	"github.com/jeranaias/kbchat/internal/model"
)

// Marshal encodes ev as one wire line including the trailing newline.
func Marshal(ev Event) ([]byte, error) {
	var w struct {
		Type    string      `json:"type"`
		Message string      `json:"message,omitempty"`
		Data    interface{} `json:"data"`
	}
	w.Type = ev.Type()

	switch e := ev.(type) {
	case *ChunkEvent:
		w.Data = chunkData{Content: e.Content, MessageID: model.FlexID(e.MessageID)}
	case *MetadataEvent:
		files := e.Files
		if files == nil {
			files = []model.FileMetadata{}
		}
		w.Data = metadataData{FileMetadata: files, MessageID: model.FlexID(e.MessageID)}
	case *CompleteEvent:
		w.Data = completeData{
			UserMessageID:      model.FlexID(e.UserMessageID),
			AssistantMessageID: model.FlexID(e.AssistantMessageID),
			Message:            e.Message,
		}
	case *ErrorEvent:
		w.Message = e.Message
		w.Data = errorData{Message: e.Message}
	default:
		return nil, fmt.Errorf("cannot marshal event %T", ev)
	}

	line, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}
