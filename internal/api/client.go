// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the knowledge-base chat service.
//
// Every REST endpoint answers with an envelope {code, message, data}. The
// client unwraps it, turning code 401 into a cleared session and any other
// non-200 code into an *ClientError of type ErrTypeAPI. The chat stream
// endpoint is the exception: its body is returned raw for the stream package.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/kbchat/internal/credstore"
	"github.com/jeranaias/kbchat/internal/logging"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the API client.
type ClientConfig struct {
	// BaseURL is prefixed to every endpoint path (default: http://localhost:8080)
	BaseURL string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// StreamTimeout bounds a whole chat stream; zero leaves it to the context.
	StreamTimeout time.Duration

	// RateLimit is requests per second; zero or less disables limiting.
	RateLimit float64
	RateBurst int

	UserAgent string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:   "http://localhost:8080",
		Timeout:   30 * time.Second,
		UserAgent: "kbchat",
	}
}

// publicPaths are reachable without a token.
var publicPaths = []string{
	"/auth/login",
	"/auth/register",
	"/auth/send-verification",
	"/common/department/list",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// maxResponseSize caps envelope bodies.
const maxResponseSize = 16 << 20

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the service on behalf of one credstore.Session.
// It is safe for concurrent use.
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	session      *credstore.Session
	limiter      *rate.Limiter
}

// NewClient creates a client bound to session.
func NewClient(session *credstore.Session, config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "kbchat"
	}
	if session == nil {
		session = credstore.NewSession()
	}

	limit := rate.Inf
	burst := config.RateBurst
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
		if burst < 1 {
			burst = 1
		}
	}

	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
		session:      session,
		limiter:      rate.NewLimiter(limit, burst),
	}
}

// Session returns the session the client authenticates with.
func (c *Client) Session() *credstore.Session {
	return c.session
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// envelope is the standard REST response wrapper.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// request describes one outgoing call.
type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	stream      bool
}

// send authorizes, rate limits and performs req. The caller owns the body.
func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	token := c.session.Token()
	if token == "" && !isPublicPath(req.path) {
		c.session.Clear()
		return nil, ErrUnauthorized
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &ClientError{Type: ErrTypeTransport, Message: "request cancelled", Cause: err}
	}

	u := c.config.BaseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, req.body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeTransport, Message: "failed to create request", Cause: err}
	}

	requestID := logging.RequestID(ctx)
	if requestID == "" {
		requestID = logging.NewRequestID()
		ctx = logging.WithRequestID(ctx, requestID)
	}
	httpReq.Header.Set("X-Request-ID", requestID)
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", c.session.TokenType()+" "+token)
	}

	client := c.httpClient
	if req.stream {
		client = c.streamClient
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		slog.WarnContext(ctx, logging.EventAPIError, "method", req.method, "path", req.path, "error", err)
		return nil, &ClientError{Type: ErrTypeTransport, Message: "cannot reach server", Cause: err}
	}
	slog.InfoContext(ctx, logging.EventAPIRequest,
		"method", req.method,
		"path", req.path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

// do performs req and decodes the envelope's data into out (may be nil).
func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &ClientError{Type: ErrTypeTransport, Message: "failed to read response", Cause: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode == http.StatusUnauthorized || (decodeErr == nil && env.Code == http.StatusUnauthorized) {
		c.session.Clear()
		if decodeErr == nil && env.Message != "" {
			return &ClientError{Type: ErrTypeUnauthorized, Message: env.Message}
		}
		return ErrUnauthorized
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := "server error"
		if decodeErr == nil && env.Message != "" {
			msg = env.Message
		}
		return &ClientError{Type: ErrTypeAPI, Code: resp.StatusCode, Message: msg}
	}

	if decodeErr != nil {
		return &ClientError{Type: ErrTypeDecode, Message: "failed to decode response", Cause: decodeErr}
	}
	if env.Code != http.StatusOK {
		return &ClientError{Type: ErrTypeAPI, Code: env.Code, Message: env.Message}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &ClientError{Type: ErrTypeDecode, Message: "failed to decode response data", Cause: err}
	}
	return nil
}

// getJSON issues a GET and decodes the envelope data.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, request{method: http.MethodGet, path: path, query: query}, out)
}

// postJSON issues a POST with a JSON body (nil sends no body).
func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	req := request{method: http.MethodPost, path: path}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &ClientError{Type: ErrTypeDecode, Message: "failed to marshal request", Cause: err}
		}
		req.body = bytes.NewReader(data)
		req.contentType = "application/json"
	}
	return c.do(ctx, req, out)
}

// =============================================================================
// MULTIPART BODIES
// =============================================================================

// formFile is a file part of a multipart body.
type formFile struct {
	field string
	path  string
}

// buildMultipart encodes fields (in order) and an optional file.
func buildMultipart(fields [][2]string, file *formFile) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if file != nil {
		src, err := os.Open(file.path)
		if err != nil {
			return nil, "", validationError(fmt.Sprintf("cannot open %s: %v", file.path, err))
		}
		defer src.Close()
		part, err := w.CreateFormFile(file.field, filepath.Base(file.path))
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, src); err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", file.path, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// postMultipart issues a multipart POST and decodes the envelope data.
func (c *Client) postMultipart(ctx context.Context, path string, fields [][2]string, file *formFile, out interface{}) error {
	body, contentType, err := buildMultipart(fields, file)
	if err != nil {
		if IsValidation(err) {
			return err
		}
		return &ClientError{Type: ErrTypeTransport, Message: "failed to build upload", Cause: err}
	}
	return c.do(ctx, request{method: http.MethodPost, path: path, body: body, contentType: contentType}, out)
}

func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, maxResponseSize))
	r.Close()
}
