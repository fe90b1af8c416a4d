// parley - streaming terminal chat client.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/jeranaias/parley-tui/internal/config"
	"github.com/jeranaias/parley-tui/internal/local"
	"github.com/jeranaias/parley-tui/internal/service"
	"github.com/jeranaias/parley-tui/internal/session"
	"github.com/jeranaias/parley-tui/internal/telemetry"
	"github.com/jeranaias/parley-tui/internal/transport/ws"
	"github.com/jeranaias/parley-tui/internal/ui/chat"
	"github.com/jeranaias/parley-tui/internal/ui/render"
	"github.com/jeranaias/parley-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("parley %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return nil
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("parley requires an interactive terminal")
	}

	if os.Getenv("PARLEY_DEBUG") != "" {
		f, err := tea.LogToFile("parley-debug.log", "parley")
		if err != nil {
			return err
		}
		defer f.Close()
	}

	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()

	// The optional positional argument selects a conversation by id.
	chatID := ""
	if len(os.Args) > 1 {
		chatID = os.Args[1]
	}

	store, events, idx, cleanup, err := openBackend(ctx, cfg, chatID)
	if err != nil {
		return err
	}
	defer cleanup()

	tracker, err := telemetry.NewTracker("")
	if err != nil {
		return err
	}

	sess := session.New(idx, store, events, session.Config{
		FlushInterval:       cfg.Chat.FlushInterval(),
		PlaceholderInterval: cfg.Chat.PlaceholderInterval(),
		StopGrace:           cfg.Chat.StopGrace(),
		PageSize:            cfg.Chat.PageSize,
	})
	defer sess.Close()
	sess.SetCostSink(tracker)

	// Pull in the most recent page so the transcript is not empty on start.
	if _, err := sess.LoadPrevLogs(ctx); err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	theme := styles.NewTheme(cfg.UI.Theme)
	renderer := render.New(render.Options{
		Markdown:  cfg.UI.Markdown,
		CodeStyle: cfg.UI.CodeStyle,
		Dark:      theme.IsDark,
	})

	m := chat.New(sess, theme, renderer, tracker.Summary)
	p := tea.NewProgram(m, tea.WithAltScreen())

	sess.SetNotifier(func(c session.Change) {
		p.Send(chat.SessionChangedMsg{Change: c})
	})

	// Hot reload: rendering preferences apply without a restart. Backend and
	// engine timing changes need one.
	if path, err := config.ConfigPath(); err == nil {
		w, werr := config.NewWatcher(path, func(next *config.Config) {
			renderer.SetOptions(next.UI.Markdown, next.UI.CodeStyle)
			p.Send(chat.SessionChangedMsg{Change: session.Change{Kind: session.ChangeContent}})
		})
		if werr == nil {
			defer w.Close()
		}
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

// openBackend wires the configured backend and resolves the conversation to
// open. An empty chatID means "most recent, or a fresh one" in local mode and
// is an error in ws mode, where the server owns conversation lifecycle.
func openBackend(ctx context.Context, cfg *config.Config, chatID string) (service.ChatService, service.EventChannel, service.ChatIndex, func(), error) {
	switch cfg.Backend.Mode {
	case config.ModeWS:
		if chatID == "" {
			return nil, nil, service.ChatIndex{}, nil, errors.New("ws mode needs a chat id argument")
		}
		client, err := ws.Dial(ctx, ws.Config{
			URL:       cfg.Backend.WSURL,
			Token:     cfg.Backend.WSToken,
			RateLimit: cfg.Backend.WSRateLimit,
		})
		if err != nil {
			return nil, nil, service.ChatIndex{}, nil, fmt.Errorf("connecting to %s: %w", cfg.Backend.WSURL, err)
		}
		idx, err := client.GetIndex(ctx, chatID)
		if err != nil {
			client.Close()
			return nil, nil, service.ChatIndex{}, nil, err
		}
		return client, client, idx, func() { client.Close() }, nil

	default: // config.ModeLocal, enforced by Validate
		dbPath := cfg.Backend.DBPath
		if dbPath == "" {
			dir, err := config.ConfigDir()
			if err != nil {
				return nil, nil, service.ChatIndex{}, nil, err
			}
			dbPath = filepath.Join(dir, "parley.db")
		}
		store, err := local.OpenStore(dbPath)
		if err != nil {
			return nil, nil, service.ChatIndex{}, nil, fmt.Errorf("opening %s: %w", dbPath, err)
		}

		gen := local.NewGenerator(local.GeneratorConfig{
			BaseURL: cfg.Backend.OllamaURL,
			Model:   cfg.Backend.Model,
		})
		backend := local.NewBackend(store, gen, local.BackendConfig{
			CostCentsPer1K: cfg.Backend.CostCentsPer1K,
			Prompts:        cfg.Prompts,
		})
		cleanup := func() {
			backend.Close()
			store.Close()
		}

		idx, err := resolveLocalChat(ctx, store, backend, cfg, chatID)
		if err != nil {
			cleanup()
			return nil, nil, service.ChatIndex{}, nil, err
		}
		return backend, backend, idx, cleanup, nil
	}
}

// resolveLocalChat opens the requested conversation, falling back to the most
// recent one, or creating the first.
func resolveLocalChat(ctx context.Context, store *local.Store, backend *local.Backend, cfg *config.Config, chatID string) (service.ChatIndex, error) {
	if chatID != "" {
		return store.GetIndex(ctx, chatID)
	}
	idx, err := store.LatestChat(ctx)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, service.ErrChatNotFound) {
		return service.ChatIndex{}, err
	}
	return backend.NewChat(ctx, "New chat", cfg.Backend.Backtrack)
}
