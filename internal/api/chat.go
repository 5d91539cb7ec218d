// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/jeranaias/kbchat/internal/logging"
	"github.com/jeranaias/kbchat/internal/model"
)

// DefaultSessionTitle is the title given to freshly created sessions.
const DefaultSessionTitle = "New Thread"

// =============================================================================
// WORKSPACES AND SESSIONS
// =============================================================================

// ListWorkspaces returns every workspace with its sessions.
func (c *Client) ListWorkspaces(ctx context.Context) ([]model.Workspace, error) {
	var out []model.Workspace
	if err := c.getJSON(ctx, "/workspace/list", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History returns the stored transcript of a session.
func (c *Client) History(ctx context.Context, sessionID string) ([]model.Message, error) {
	if sessionID == "" {
		return nil, validationError("session id is required")
	}
	var out []model.Message
	if err := c.getJSON(ctx, "/chat/history/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateWorkspace creates a workspace titled title.
func (c *Client) CreateWorkspace(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return validationError("workspace title is required")
	}
	return c.postJSON(ctx, "/workspace/save", map[string]string{"title": title}, nil)
}

// RenameWorkspace retitles a workspace.
func (c *Client) RenameWorkspace(ctx context.Context, workspaceID, title string) error {
	title = strings.TrimSpace(title)
	if workspaceID == "" || title == "" {
		return validationError("workspace id and title are required")
	}
	return c.postJSON(ctx, "/workspace/rename", map[string]string{
		"workspace_id": workspaceID,
		"title":        title,
	}, nil)
}

// DeleteWorkspace removes a workspace and its sessions.
func (c *Client) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	if workspaceID == "" {
		return validationError("workspace id is required")
	}
	return c.postJSON(ctx, "/workspace/delete", map[string]string{"workspace_id": workspaceID}, nil)
}

// CreateSession opens a new session in a workspace and returns its id.
func (c *Client) CreateSession(ctx context.Context, workspaceID string) (string, error) {
	if workspaceID == "" {
		return "", validationError("workspace id is required")
	}
	var id model.FlexID
	err := c.postJSON(ctx, "/session/save", map[string]string{
		"workspaceId": workspaceID,
		"title":       DefaultSessionTitle,
	}, &id)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", &ClientError{Type: ErrTypeDecode, Message: "session create returned no id"}
	}
	return id.String(), nil
}

// RenameSession retitles a session.
func (c *Client) RenameSession(ctx context.Context, sessionID, title string) error {
	if sessionID == "" || strings.TrimSpace(title) == "" {
		return validationError("session id and title are required")
	}
	return c.postJSON(ctx, "/session/rename", map[string]string{
		"session_id": sessionID,
		"title":      title,
	}, nil)
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return validationError("session id is required")
	}
	return c.postJSON(ctx, "/session/delete", map[string]string{"session_id": sessionID}, nil)
}

// DeleteMessage removes one stored message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	if messageID == "" {
		return validationError("message id is required")
	}
	return c.postJSON(ctx, "/history/delete", map[string]string{"message_id": messageID}, nil)
}

// =============================================================================
// CHAT STREAM
// =============================================================================

// SendRequest is one question sent to the chat stream.
type SendRequest struct {
	Question  string
	SessionID string
	// FilePath is an optional attachment read from disk.
	FilePath string
	Quoted   *model.QuotedMessage
}

// OpenStream posts a question and returns the NDJSON response body.
// The caller must close it. A non-200 status is a transport failure.
func (c *Client) OpenStream(ctx context.Context, req SendRequest) (io.ReadCloser, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, validationError("question is required")
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "0"
	}

	fields := [][2]string{
		{"question", req.Question},
		{"session_id", sessionID},
	}
	if req.Quoted != nil {
		quoted, err := json.Marshal(req.Quoted)
		if err != nil {
			return nil, &ClientError{Type: ErrTypeDecode, Message: "failed to encode quoted message", Cause: err}
		}
		fields = append(fields, [2]string{"quoted_message", string(quoted)})
	}
	var file *formFile
	if req.FilePath != "" {
		file = &formFile{field: "file", path: req.FilePath}
	}
	body, contentType, err := buildMultipart(fields, file)
	if err != nil {
		if IsValidation(err) {
			return nil, err
		}
		return nil, &ClientError{Type: ErrTypeTransport, Message: "failed to build request", Cause: err}
	}

	cancel := context.CancelFunc(func() {})
	if c.config.StreamTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.config.StreamTimeout)
	}

	resp, err := c.send(ctx, request{
		method:      http.MethodPost,
		path:        "/chat/stream",
		body:        body,
		contentType: contentType,
		stream:      true,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drainAndClose(resp.Body)
		cancel()
		c.session.Clear()
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		drainAndClose(resp.Body)
		cancel()
		return nil, &ClientError{
			Type:    ErrTypeTransport,
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("stream request failed: %s", resp.Status),
		}
	}
	if resp.Body == nil {
		cancel()
		return nil, &ClientError{Type: ErrTypeTransport, Message: "no reader available"}
	}

	slog.DebugContext(ctx, logging.EventStreamOpen, "session_id", sessionID)
	return &streamBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

// streamBody releases the stream deadline when closed.
type streamBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *streamBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
