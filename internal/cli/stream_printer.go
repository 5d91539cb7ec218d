// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/model"
)

// streamPrinter is the chat.Listener for terminal commands. While an
// exchange is live it writes each new piece of the answer as it arrives;
// notices go to stderr, held back until the answer is finished.
type streamPrinter struct {
	out   io.Writer
	errw  io.Writer
	quiet bool

	// skipErrors drops error notices for callers that report the
	// returned error themselves.
	skipErrors bool

	mu       sync.Mutex
	live     bool
	echo     bool
	base     int
	printed  int
	deferred []string
}

func newStreamPrinter(env *Env) *streamPrinter {
	return &streamPrinter{out: env.Out, errw: env.Err, quiet: env.Quiet}
}

// begin arms the printer for an exchange appended after base messages.
// With echo false the answer is only collected, not printed.
func (p *streamPrinter) begin(base int, echo bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live = true
	p.echo = echo
	p.base = base
	p.printed = 0
}

// end disarms the printer, terminates the answer line and flushes held
// notices. It reports whether any answer text was printed.
func (p *streamPrinter) end() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live = false
	if p.printed > 0 {
		fmt.Fprintln(p.out)
	}
	for _, line := range p.deferred {
		fmt.Fprintln(p.errw, line)
	}
	p.deferred = nil
	return p.printed > 0
}

// say prints line to stderr now, or after the answer while one is live.
func (p *streamPrinter) say(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.live {
		p.deferred = append(p.deferred, line)
		return
	}
	fmt.Fprintln(p.errw, line)
}

func (p *streamPrinter) TranscriptChanged(_ string, msgs []model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.live || !p.echo {
		return
	}
	// The placeholder pair sits right after the pre-send transcript.
	idx := p.base + 1
	if idx >= len(msgs) || msgs[idx].Role != model.RoleAssistant {
		return
	}
	content := msgs[idx].Content
	if len(content) <= p.printed {
		return
	}
	fmt.Fprint(p.out, content[p.printed:])
	p.printed = len(content)
}

func (p *streamPrinter) Notice(n chat.Notice) {
	var label string
	switch n.Level {
	case chat.NoticeError:
		if p.skipErrors {
			return
		}
		label = ErrorStyle.Render("[X] " + n.Title)
	case chat.NoticeWarning:
		label = WarningStyle.Render("[!] " + n.Title)
	case chat.NoticeSuccess:
		if p.quiet {
			return
		}
		label = SuccessStyle.Render("[OK] " + n.Title)
	default:
		if p.quiet {
			return
		}
		label = DimStyle.Render("[i] " + n.Title)
	}
	if n.Detail != "" {
		label += " " + n.Detail
	}
	p.say(label)
}

func (p *streamPrinter) SendingChanged(bool) {}

func (p *streamPrinter) SessionRenamed(_ string, title string) {
	if p.quiet {
		return
	}
	p.say(DimStyle.Render(fmt.Sprintf("(session titled %q)", title)))
}
