// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/chat"
	"github.com/jeranaias/kbchat/internal/config"
	"github.com/jeranaias/kbchat/internal/credstore"
	"github.com/jeranaias/kbchat/internal/ui/styles"
	"github.com/jeranaias/kbchat/internal/workspace"
)

// Options configures Run.
type Options struct {
	Config  *config.Config
	Client  *api.Client
	Session *credstore.Session
	// Cache receives settled transcripts; nil disables caching.
	Cache   chat.Cache
	Version string
}

// Run starts the TUI and blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	bridge := &Bridge{}
	view := chat.NewView(opts.Client, bridge, chat.Options{
		TitleLength: cfg.Chat.TitleLength,
		Cache:       opts.Cache,
	})
	store := workspace.NewStore(opts.Client, bridge)
	opts.Session.OnClear(bridge.LoggedOut)

	m := New(ctx, Deps{
		Auth:    opts.Client,
		Session: opts.Session,
		View:    view,
		Store:   store,
		Theme:   styles.NewTheme(cfg.UI.Theme),
		UI:      cfg.UI,
		Version: opts.Version,
	})

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	bridge.Attach(p)
	defer bridge.Attach(nil)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}
