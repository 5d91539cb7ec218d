// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package knowledge

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// FOLDER WATCHER
// =============================================================================

// DefaultDebounce is how long a file must stay quiet before it is uploaded.
const DefaultDebounce = 500 * time.Millisecond

// WatchOptions configures a Watcher.
type WatchOptions struct {
	Scope    Scope
	Debounce time.Duration
	// OnResult is called from the watcher goroutine after each upload attempt.
	OnResult func(Result)
}

// Watcher uploads files that appear in a directory. Files are debounced so a
// copy in progress is uploaded once, after the last write. Overwrites are
// always declined.
type Watcher struct {
	svc     *Service
	dir     string
	opts    WatchOptions
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher prepares a watcher on dir. Call Start to begin.
func NewWatcher(svc *Service, dir string, opts WatchOptions) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &os.PathError{Op: "watch", Path: dir, Err: os.ErrInvalid}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Watcher{
		svc:     svc,
		dir:     dir,
		opts:    opts,
		watcher: fw,
		pending: make(map[string]time.Time),
		done:    make(chan struct{}),
	}, nil
}

// Start watches the directory until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	w.ctx, w.cancel = context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.processEvents()
	}()
	go func() {
		defer wg.Done()
		w.processPending()
	}()
	go func() {
		wg.Wait()
		close(w.done)
	}()
	return nil
}

// Done is closed once both watcher goroutines have exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// A rename into the directory arrives as Create on the new name.
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.touch(event.Name)
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.forget(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.WarnContext(w.ctx, "WATCH_ERROR", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) touch(path string) {
	if ignored(filepath.Base(path)) {
		return
	}
	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()
}

func (w *Watcher) processPending() {
	tick := w.opts.Debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			for _, path := range w.due(time.Now()) {
				w.upload(path)
			}
		}
	}
}

// due pops every path that has been quiet for the debounce window.
func (w *Watcher) due(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var ready []string
	for path, changed := range w.pending {
		if now.Sub(changed) >= w.opts.Debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}

func (w *Watcher) upload(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	for _, res := range w.svc.Upload(w.ctx, []string{path}, w.opts.Scope, DeclineAll) {
		if w.opts.OnResult != nil {
			w.opts.OnResult(res)
		}
	}
}

// Close stops watching and waits for the goroutines to exit.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	if w.cancel != nil {
		<-w.done
	}
	return err
}

// ignored skips editor swap files and dotfiles.
func ignored(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") ||
		strings.HasSuffix(name, ".tmp") ||
		strings.HasSuffix(name, ".part")
}
