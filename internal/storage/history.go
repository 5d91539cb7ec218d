// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/util"
)

// ErrSessionNotFound is returned by Get for sessions never cached.
var ErrSessionNotFound = errors.New("session not cached")

// DefaultMaxSessions bounds the cache; the least recently updated sessions
// are evicted first.
const DefaultMaxSessions = 200

// SessionMeta describes a cached session.
type SessionMeta struct {
	SessionID    string
	UpdatedAt    time.Time
	MessageCount int
	Preview      string // First user message, single line
}

// =============================================================================
// HISTORY CACHE
// =============================================================================

// HistoryCache is a SQLite-backed transcript cache. It is safe for
// concurrent use.
type HistoryCache struct {
	db   *sql.DB
	path string

	// MaxSessions limits cached sessions (0 = unlimited).
	MaxSessions int

	mu  sync.Mutex
	now func() time.Time
}

// OpenHistoryCache opens or creates the cache at path.
func OpenHistoryCache(path string) (*HistoryCache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history cache: %w", err)
	}
	// A single connection keeps :memory: databases and WAL writes coherent.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO metadata(key, value) VALUES ('schema_version', ?)`,
		strconv.Itoa(SchemaVersion),
	); err != nil {
		db.Close()
		return nil, err
	}

	return &HistoryCache{
		db:          db,
		path:        path,
		MaxSessions: DefaultMaxSessions,
		now:         time.Now,
	}, nil
}

// Path returns the database location.
func (c *HistoryCache) Path() string { return c.path }

// Close releases the database.
func (c *HistoryCache) Close() error {
	return c.db.Close()
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// Put replaces the cached transcript of a session. Messages whose id is
// temporary are dropped; if none remain the session is removed instead.
func (c *HistoryCache) Put(sessionID string, msgs []model.Message) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}

	settled := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != "" && !model.IsTemporaryID(m.ID) {
			settled = append(settled, m)
		}
	}
	if len(settled) == 0 {
		return c.Delete(sessionID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO sessions(session_id, updated_at, message_count) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET updated_at = excluded.updated_at, message_count = excluded.message_count
	`, sessionID, c.now().UnixMilli(), len(settled)); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO messages(session_id, id, seq, role, content, timestamp, quoted, related_files)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, m := range settled {
		quoted, files, err := encodeExtras(m)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(sessionID, m.ID, i, string(m.Role), m.Content, m.Timestamp, quoted, files); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if c.MaxSessions > 0 {
		c.enforceLimit()
	}
	return nil
}

func encodeExtras(m model.Message) (quoted, files sql.NullString, err error) {
	if m.QuotedMessage != nil {
		b, err := json.Marshal(m.QuotedMessage)
		if err != nil {
			return quoted, files, err
		}
		quoted = sql.NullString{String: string(b), Valid: true}
	}
	if len(m.RelatedFiles) > 0 {
		b, err := json.Marshal(m.RelatedFiles)
		if err != nil {
			return quoted, files, err
		}
		files = sql.NullString{String: string(b), Valid: true}
	}
	return quoted, files, nil
}

// enforceLimit evicts the oldest sessions over MaxSessions. Caller holds mu.
func (c *HistoryCache) enforceLimit() {
	_, _ = c.db.Exec(`
		DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY updated_at DESC LIMIT -1 OFFSET ?
		)
	`, c.MaxSessions)
}

// Delete removes a session from the cache. Unknown ids are not an error.
func (c *HistoryCache) Delete(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}

// DeleteMessage removes one message from every cached session holding it.
func (c *HistoryCache) DeleteMessage(messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec(`DELETE FROM messages WHERE id = ?`, messageID)
	return err
}

// Clear drops every cached session.
func (c *HistoryCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec(`DELETE FROM sessions`)
	return err
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Get returns the cached transcript in order.
func (c *HistoryCache) Get(sessionID string) ([]model.Message, error) {
	var count int
	err := c.db.QueryRow(`SELECT message_count FROM sessions WHERE session_id = ?`, sessionID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := c.db.Query(`
		SELECT id, role, content, timestamp, quoted, related_files
		FROM messages WHERE session_id = ? ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := make([]model.Message, 0, count)
	for rows.Next() {
		var (
			m      model.Message
			role   string
			quoted sql.NullString
			files  sql.NullString
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.Timestamp, &quoted, &files); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		if quoted.Valid {
			var q model.QuotedMessage
			if err := json.Unmarshal([]byte(quoted.String), &q); err == nil {
				m.QuotedMessage = &q
			}
		}
		if files.Valid {
			_ = json.Unmarshal([]byte(files.String), &m.RelatedFiles)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// List returns cached sessions, most recently updated first.
func (c *HistoryCache) List() ([]SessionMeta, error) {
	rows, err := c.db.Query(`
		SELECT s.session_id, s.updated_at, s.message_count,
		       COALESCE((SELECT content FROM messages m
		                 WHERE m.session_id = s.session_id AND m.role = 'user'
		                 ORDER BY seq LIMIT 1), '')
		FROM sessions s ORDER BY s.updated_at DESC, s.session_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metas []SessionMeta
	for rows.Next() {
		var (
			meta    SessionMeta
			updated int64
		)
		if err := rows.Scan(&meta.SessionID, &updated, &meta.MessageCount, &meta.Preview); err != nil {
			return nil, err
		}
		meta.UpdatedAt = time.UnixMilli(updated)
		meta.Preview = util.TruncateRunes(util.SingleLine(meta.Preview), 80)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// Search finds cached sessions with a message containing query,
// case-insensitively.
func (c *HistoryCache) Search(query string) ([]SessionMeta, error) {
	all, err := c.List()
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return all, nil
	}

	rows, err := c.db.Query(`
		SELECT DISTINCT session_id FROM messages WHERE content LIKE ? ESCAPE '\'
	`, "%"+escapeLike(query)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		hits[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []SessionMeta
	for _, meta := range all {
		if hits[meta.SessionID] {
			results = append(results, meta)
		}
	}
	return results, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
