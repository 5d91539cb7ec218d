// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs chat exchanges against the streaming endpoint and keeps
// the visible transcript consistent while answers arrive.
//
// Each send appends two placeholders with temporary ids, fills the
// assistant placeholder from chunk events, and either swaps both ids for the
// server's on completion or removes both on failure. Transport errors, API
// errors, error events and malformed lines all end the same way: the
// transcript returns to its pre-send set of ids and a notice is raised.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/logging"
	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/stream"
)

// Sentinel errors for rejected operations.
var (
	ErrBusy          = errors.New("a message is already being sent")
	ErrNoSession     = errors.New("no session selected")
	ErrEmptyQuestion = errors.New("question is empty")
	ErrNotFound      = errors.New("message not found")
	ErrUnsaved       = errors.New("message has not been saved yet")
)

// Backend is the subset of the API client the view needs.
type Backend interface {
	OpenStream(ctx context.Context, req api.SendRequest) (io.ReadCloser, error)
	History(ctx context.Context, sessionID string) ([]model.Message, error)
	RenameSession(ctx context.Context, sessionID, title string) error
	DeleteMessage(ctx context.Context, messageID string) error
}

// Cache stores settled transcripts. Implementations must skip messages
// with temporary ids.
type Cache interface {
	Put(sessionID string, msgs []model.Message) error
}

// Options configures a View.
type Options struct {
	// TitleLength is the number of characters used for derived titles.
	TitleLength int
	// Cache, when set, receives every reconciled transcript.
	Cache Cache
	// Now is the clock used to stamp placeholders.
	Now func() time.Time
}

// View is the state behind one chat screen.
type View struct {
	backend  Backend
	listener Listener
	opts     Options

	mu           sync.Mutex
	sessionID    string
	transcript   *Transcript
	sending      bool
	firstMessage bool
	pendingFile  string
	pendingQuote *model.QuotedMessage
}

// NewView returns a view with no session selected.
func NewView(backend Backend, listener Listener, opts Options) *View {
	if listener == nil {
		listener = ListenerFuncs{}
	}
	if opts.TitleLength <= 0 {
		opts.TitleLength = DefaultTitleLength
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &View{
		backend:    backend,
		listener:   listener,
		opts:       opts,
		transcript: NewTranscript(nil),
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// SessionID returns the selected session, or "".
func (v *View) SessionID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sessionID
}

// Messages returns a snapshot of the visible transcript.
func (v *View) Messages() []model.Message {
	v.mu.Lock()
	t := v.transcript
	v.mu.Unlock()
	return t.Snapshot()
}

// Sending reports whether a send is in flight.
func (v *View) Sending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sending
}

// FirstMessage reports whether the next send is the session's first.
func (v *View) FirstMessage() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.firstMessage
}

// PendingFile returns the attachment for the next send.
func (v *View) PendingFile() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pendingFile
}

// PendingQuote returns the quote for the next send.
func (v *View) PendingQuote() *model.QuotedMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pendingQuote == nil {
		return nil
	}
	q := *v.pendingQuote
	return &q
}

// LastAnswer returns the most recent assistant message.
func (v *View) LastAnswer() (model.Message, bool) {
	v.mu.Lock()
	t := v.transcript
	v.mu.Unlock()
	return t.Last(model.RoleAssistant)
}

// =============================================================================
// SESSION SELECTION
// =============================================================================

// SelectSession loads the history of sessionID and makes it visible.
// An exchange still streaming into the previous session keeps writing to
// its own transcript; none of its updates reach the listener afterwards.
func (v *View) SelectSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNoSession
	}
	history, err := v.backend.History(logging.WithSessionID(ctx, sessionID), sessionID)
	if err != nil {
		v.listener.Notice(Notice{Level: NoticeError, Title: "Failed to load chat history", Detail: describe(err)})
		return err
	}
	v.install(sessionID, NewTranscript(history), len(history) == 0)
	if v.opts.Cache != nil && len(history) > 0 {
		if err := v.opts.Cache.Put(sessionID, history); err != nil {
			slog.WarnContext(ctx, "HISTORY_CACHE", "session_id", sessionID, "error", err)
		}
	}
	return nil
}

// OpenEmptySession shows a freshly created session without fetching history.
func (v *View) OpenEmptySession(sessionID string) {
	v.install(sessionID, NewTranscript(nil), true)
}

// ClearSession deselects the current session.
func (v *View) ClearSession() {
	v.install("", NewTranscript(nil), false)
}

func (v *View) install(sessionID string, t *Transcript, first bool) {
	v.mu.Lock()
	v.sessionID = sessionID
	v.transcript = t
	v.firstMessage = first
	v.pendingQuote = nil
	v.mu.Unlock()
	v.listener.TranscriptChanged(sessionID, t.Snapshot())
}

// =============================================================================
// COMPOSER STATE
// =============================================================================

// Quote snapshots a message as the quote for the next send.
func (v *View) Quote(messageID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.transcript.Find(messageID)
	if !ok {
		return ErrNotFound
	}
	v.pendingQuote = m.Quote()
	return nil
}

// ClearQuote drops the pending quote.
func (v *View) ClearQuote() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pendingQuote = nil
}

// AttachFile sets a regular file as the attachment for the next send.
func (v *View) AttachFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot attach %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("cannot attach %s: not a regular file", path)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pendingFile = path
	return nil
}

// ClearAttachment drops the pending attachment.
func (v *View) ClearAttachment() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pendingFile = ""
}

// DeleteMessage removes a saved message locally, then on the server.
func (v *View) DeleteMessage(ctx context.Context, messageID string) error {
	if model.IsTemporaryID(messageID) {
		return ErrUnsaved
	}
	v.mu.Lock()
	t, sid := v.transcript, v.sessionID
	v.mu.Unlock()

	if t.Remove(messageID) == 0 {
		return ErrNotFound
	}
	v.emit(t, sid)

	if err := v.backend.DeleteMessage(ctx, messageID); err != nil {
		v.listener.Notice(Notice{Level: NoticeError, Title: "Failed to delete message", Detail: describe(err)})
		return err
	}
	v.listener.Notice(Notice{Level: NoticeSuccess, Title: "Message deleted"})
	return nil
}

// =============================================================================
// SEND
// =============================================================================

// Send posts question to the selected session and consumes the answer
// stream until it ends. It blocks; callers that must stay responsive run it
// on their own goroutine. The returned exchange is nil only when the send
// was rejected before any placeholder was added.
func (v *View) Send(ctx context.Context, question string) (*Exchange, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	v.mu.Lock()
	if v.sending {
		v.mu.Unlock()
		return nil, ErrBusy
	}
	if v.sessionID == "" {
		v.mu.Unlock()
		return nil, ErrNoSession
	}
	v.sending = true
	t := v.transcript
	sid := v.sessionID
	first := v.firstMessage
	req := api.SendRequest{
		Question:  question,
		SessionID: sid,
		FilePath:  v.pendingFile,
		Quoted:    v.pendingQuote,
	}
	ex := beginExchange(t, v.opts.Now(), question, v.pendingQuote)
	v.mu.Unlock()

	ctx = logging.WithSessionID(ctx, sid)
	v.listener.SendingChanged(true)
	defer func() {
		v.mu.Lock()
		v.sending = false
		v.mu.Unlock()
		v.listener.SendingChanged(false)
	}()
	v.emit(t, sid)

	body, err := v.backend.OpenStream(ctx, req)
	if err != nil {
		v.fail(ctx, ex, t, sid, err)
		return ex, err
	}
	defer body.Close()

	runErr := v.consume(ctx, ex, t, sid, body, question, first)

	if ex.State() != StateFailed {
		ex.Finish()
		v.mu.Lock()
		if v.transcript == t {
			v.pendingFile = ""
			v.pendingQuote = nil
			v.firstMessage = false
		}
		v.mu.Unlock()
	}
	return ex, runErr
}

// consume reads the stream and applies each event to ex.
func (v *View) consume(ctx context.Context, ex *Exchange, t *Transcript, sid string, body io.Reader, question string, first bool) error {
	dec := stream.NewDecoder(body)
	lastTitle := ""
	var result error

	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return result
		}
		if err != nil {
			var unknown *stream.UnknownEventError
			var malformed *stream.MalformedLineError
			switch {
			case errors.As(err, &unknown):
				slog.WarnContext(ctx, logging.EventStreamEvent, "skipped", unknown.Type)
				continue
			case errors.As(err, &malformed):
				if ex.State() == StatePending {
					result = &api.ClientError{Type: api.ErrTypeMalformed, Message: "unreadable server response", Cause: malformed}
					v.fail(ctx, ex, t, sid, result)
				}
				continue
			default:
				if ex.State() == StatePending {
					result = &api.ClientError{Type: api.ErrTypeTransport, Message: "connection lost while receiving answer", Cause: err}
					v.fail(ctx, ex, t, sid, result)
				}
				return result
			}
		}

		if ex.State() != StatePending {
			continue
		}
		slog.DebugContext(ctx, logging.EventStreamEvent, "type", ev.Type())

		switch e := ev.(type) {
		case *stream.ErrorEvent:
			msg := e.Message
			if msg == "" {
				msg = "the server reported an error"
			}
			result = &api.ClientError{Type: api.ErrTypeStream, Message: msg}
			v.fail(ctx, ex, t, sid, result)

		case *stream.MetadataEvent:
			if ex.AttachFiles(e.Files, e.MessageID) {
				v.emit(t, sid)
			}

		case *stream.ChunkEvent:
			if e.Content == "" && e.MessageID == "" {
				continue
			}
			if ex.AppendChunk(e.Content, e.MessageID) {
				v.emit(t, sid)
			}
			if first && e.Content != "" {
				title := DeriveTitle(question, v.opts.TitleLength)
				if title != lastTitle {
					lastTitle = title
					v.rename(ctx, sid, title)
				}
			}

		case *stream.CompleteEvent:
			if !e.HasIDs() {
				tempUser, tempAssistant := ex.IDs()
				slog.WarnContext(ctx, logging.EventReconcileAnomaly,
					"user_message_id", e.UserMessageID,
					"assistant_message_id", e.AssistantMessageID,
					"kept_user_id", tempUser,
					"kept_assistant_id", tempAssistant,
				)
				continue
			}
			if ex.Reconcile(e.UserMessageID, e.AssistantMessageID) {
				slog.InfoContext(ctx, logging.EventReconcile,
					"user_message_id", e.UserMessageID,
					"assistant_message_id", e.AssistantMessageID,
				)
				v.emit(t, sid)
				v.store(ctx, sid, t)
			}
		}
	}
}

func (v *View) rename(ctx context.Context, sid, title string) {
	if err := v.backend.RenameSession(ctx, sid, title); err != nil {
		v.listener.Notice(Notice{Level: NoticeWarning, Title: "Failed to rename session", Detail: describe(err)})
		return
	}
	v.listener.SessionRenamed(sid, title)
}

func (v *View) fail(ctx context.Context, ex *Exchange, t *Transcript, sid string, err error) {
	if !ex.Fail() {
		return
	}
	slog.WarnContext(ctx, logging.EventStreamError, "error", err)
	v.emit(t, sid)
	v.listener.Notice(Notice{Level: NoticeError, Title: "Failed to send message", Detail: describe(err)})
}

func (v *View) store(ctx context.Context, sid string, t *Transcript) {
	if v.opts.Cache == nil {
		return
	}
	if err := v.opts.Cache.Put(sid, t.Snapshot()); err != nil {
		slog.WarnContext(ctx, "HISTORY_CACHE", "error", err)
	}
}

// emit delivers t to the listener if it is still the visible transcript.
func (v *View) emit(t *Transcript, sid string) {
	v.mu.Lock()
	visible := v.transcript == t
	v.mu.Unlock()
	if !visible {
		return
	}
	v.listener.TranscriptChanged(sid, t.Snapshot())
}

// describe renders an error for a notice.
func describe(err error) string {
	switch {
	case api.IsUnauthorized(err):
		return "Your login has expired. Please sign in again."
	case api.IsTransport(err):
		return "Cannot reach the server. " + err.Error()
	default:
		return err.Error()
	}
}
