// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/stream"
)

// handleChatStream answers a question as NDJSON: metadata, then the answer
// in word-sized chunks, then complete with the persisted ids. Messages are
// stored only when the exchange completes.
func (s *Server) handleChatStream(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize)
	question := c.PostForm("question")
	sessionID := c.PostForm("session_id")

	var quoted *model.QuotedMessage
	if raw := c.PostForm("quoted_message"); raw != "" {
		var q model.QuotedMessage
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, envelope{Code: http.StatusBadRequest, Message: "invalid quoted_message"})
			return
		}
		quoted = &q
	}
	attachment := ""
	if header, err := c.FormFile("file"); err == nil {
		attachment = header.Filename
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	st := s.state
	st.mu.Lock()
	sess, found := st.sessions[sessionID]
	var files []model.FileMetadata
	if found {
		files = st.relatedFiles(sess)
	}
	userID, assistantID := st.nextID(), st.nextID()
	st.mu.Unlock()

	if strings.TrimSpace(question) == "" {
		s.writeEvent(c, &stream.ErrorEvent{Message: "question is required"})
		return
	}
	if !found {
		s.writeEvent(c, &stream.ErrorEvent{Message: "session not found"})
		return
	}

	s.writeEvent(c, &stream.MetadataEvent{Files: files, MessageID: assistantID})

	answer := composeAnswer(question, attachment, files)
	fails := strings.Contains(question, FailMarker)
	for i, piece := range splitChunks(answer) {
		if fails && i == 1 {
			s.writeEvent(c, &stream.ErrorEvent{Message: "generation failed"})
			return
		}
		if !s.writeEvent(c, &stream.ChunkEvent{Content: piece, MessageID: assistantID}) {
			return
		}
		if s.cfg.ChunkDelay > 0 {
			select {
			case <-c.Request.Context().Done():
				return
			case <-time.After(s.cfg.ChunkDelay):
			}
		}
	}
	if fails {
		s.writeEvent(c, &stream.ErrorEvent{Message: "generation failed"})
		return
	}

	st.mu.Lock()
	now := st.now().UnixMilli()
	if sess, found = st.sessions[sessionID]; found {
		sess.messages = append(sess.messages,
			model.Message{ID: userID, Role: model.RoleUser, Content: question, Timestamp: now, QuotedMessage: quoted},
			model.Message{ID: assistantID, Role: model.RoleAssistant, Content: answer, Timestamp: now, RelatedFiles: files},
		)
	}
	st.mu.Unlock()

	s.writeEvent(c, &stream.CompleteEvent{UserMessageID: userID, AssistantMessageID: assistantID})
}

// writeEvent writes and flushes one line. It reports false once the client
// has gone away.
func (s *Server) writeEvent(c *gin.Context, ev stream.Event) bool {
	line, err := stream.Marshal(ev)
	if err != nil {
		s.log.Error("STREAM_ENCODE", "error", err)
		return false
	}
	if _, err := c.Writer.Write(line); err != nil {
		return false
	}
	c.Writer.Flush()
	return c.Request.Context().Err() == nil
}

func composeAnswer(question, attachment string, files []model.FileMetadata) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You asked: %s", strings.TrimSpace(question))
	if attachment != "" {
		fmt.Fprintf(&sb, "\n\nI read the attached file `%s`.", attachment)
	}
	if len(files) > 0 {
		sb.WriteString("\n\nRelevant documents:\n")
		for _, f := range files {
			fmt.Fprintf(&sb, "- %s\n", f.FileName)
		}
	}
	return sb.String()
}

// splitChunks cuts s after each space, so joining the pieces restores s.
func splitChunks(s string) []string {
	var out []string
	for len(s) > 0 {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i+1])
		s = s[i+1:]
	}
	return out
}
