// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/kbchat/internal/model"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is where the dev server listens by default.
	DefaultAddr = "127.0.0.1:8080"

	// VerificationCode is accepted by /auth/register for every address.
	VerificationCode = "000000"

	// FailMarker in a question makes the stream end with an error line.
	FailMarker = "#fail"

	// MaxUploadSize caps multipart bodies.
	MaxUploadSize = 32 << 20

	userKey = "devserver.user"
)

// ============================================================================
// SERVER
// ============================================================================

// Config configures a Server.
type Config struct {
	Addr string
	// NodeID seeds the snowflake generator (0-1023).
	NodeID int64
	// ChunkDelay pauses between streamed chunks so the TUI visibly streams.
	ChunkDelay time.Duration
	// SeedEmail and SeedPassword, when set, create an account at start.
	SeedEmail    string
	SeedPassword string
	Logger       *slog.Logger
}

// Server is the in-memory backend.
type Server struct {
	cfg    Config
	state  *state
	engine *gin.Engine
	http   *http.Server
	log    *slog.Logger
}

// New builds a server and its routes. It does not listen.
func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	st, err := newState(cfg.NodeID)
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, state: st, log: cfg.Logger}
	if cfg.SeedEmail != "" {
		st.addAccount(strings.ToLower(cfg.SeedEmail), cfg.SeedPassword, "Demo User", 1)
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	s.http = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Handler exposes the router, for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	r := s.engine

	r.GET("/health", func(c *gin.Context) { ok(c, gin.H{"status": "ok"}) })

	r.POST("/auth/login", s.handleLogin)
	r.POST("/auth/register", s.handleRegister)
	r.POST("/auth/send-verification", s.handleSendVerification)
	r.GET("/common/department/list", s.handleDepartments)

	authed := r.Group("/", s.requireAuth)
	authed.POST("/auth/logout", s.handleLogout)
	authed.GET("/auth/me", s.handleMe)

	authed.GET("/workspace/list", s.handleWorkspaceList)
	authed.POST("/workspace/save", s.handleWorkspaceSave)
	authed.POST("/workspace/rename", s.handleWorkspaceRename)
	authed.POST("/workspace/delete", s.handleWorkspaceDelete)

	authed.POST("/session/save", s.handleSessionSave)
	authed.POST("/session/rename", s.handleSessionRename)
	authed.POST("/session/delete", s.handleSessionDelete)

	authed.GET("/chat/history/:id", s.handleHistory)
	authed.POST("/history/delete", s.handleHistoryDelete)
	authed.POST("/chat/stream", s.handleChatStream)

	authed.GET("/common/file/upload/history", s.handleUploadHistory)
	authed.GET("/folder/file/list", s.handleFolderFiles)
	authed.POST("/create/folder", s.handleCreateFolder)
	authed.POST("/upload/check", s.handleUploadCheck)
	authed.POST("/upload", s.handleUpload)
	authed.POST("/file/to/embed", s.handleEmbed)
	authed.POST("/file/remove/embed", s.handleRemoveEmbed)
	authed.POST("/file/delete", s.handleFileDelete)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe blocks serving on cfg.Addr until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("SERVER_START", "addr", ln.Addr().String())
	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server. A later Serve returns at once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("SERVER_SHUTDOWN")
	return s.http.Shutdown(ctx)
}

// ============================================================================
// MIDDLEWARE
// ============================================================================

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("HTTP_REQUEST",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetHeader("X-Request-ID"),
		)
	}
}

// requireAuth resolves the bearer token. Unknown tokens get HTTP 401.
func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token := ""
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		token = strings.TrimSpace(header[7:])
	}

	s.state.mu.Lock()
	user, found := s.state.userForToken(token)
	s.state.mu.Unlock()

	if !found {
		c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{
			Code:    http.StatusUnauthorized,
			Message: "not authenticated",
		})
		return
	}
	c.Set(userKey, user)
	c.Next()
}

func currentUser(c *gin.Context) model.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(model.User); ok {
			return u
		}
	}
	return model.User{}
}

// ============================================================================
// HELPERS
// ============================================================================

type envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, envelope{Code: http.StatusOK, Message: "success", Data: data})
}

// fail reports an application error inside a 200 response, as the service does.
func fail(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, envelope{Code: code, Message: message})
}

func badRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, message)
}

func notFound(c *gin.Context, what string) {
	fail(c, http.StatusNotFound, what+" not found")
}

func fileType(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 && i < len(name)-1 {
		return strings.ToLower(name[i+1:])
	}
	return ""
}
