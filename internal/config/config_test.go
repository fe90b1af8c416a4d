// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for parley.
package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, cfg.Backend.Mode)
	assert.Equal(t, 200, cfg.Chat.FlushIntervalMs)
	assert.Equal(t, 500, cfg.Chat.PlaceholderIntervalMs)
	assert.Equal(t, 1000, cfg.Chat.StopGraceMs)
	assert.Equal(t, 20, cfg.Chat.PageSize)
	assert.Equal(t, "dark", cfg.UI.Theme)
	assert.True(t, cfg.UI.Markdown)
}

func TestLoadFromTOML(t *testing.T) {
	path := writeConfig(t, `
version = "1"

[backend]
mode = "ws"
ws_url = "wss://chat.example.com/rpc"
ws_token = "secret"

[chat]
flush_interval_ms = 100
page_size = 50

[ui]
theme = "light"

[prompts]
concise = "Answer briefly."
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, ModeWS, cfg.Backend.Mode)
	assert.Equal(t, "wss://chat.example.com/rpc", cfg.Backend.WSURL)
	assert.Equal(t, "secret", cfg.Backend.WSToken)
	assert.Equal(t, 100, cfg.Chat.FlushIntervalMs)
	assert.Equal(t, 50, cfg.Chat.PageSize)
	assert.Equal(t, 1000, cfg.Chat.StopGraceMs, "unset fields fall back to defaults")
	assert.Equal(t, "light", cfg.UI.Theme)
	assert.Equal(t, "Answer briefly.", cfg.Prompts["concise"])
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PARLEY_MODE", "ws")
	t.Setenv("PARLEY_WS_URL", "ws://127.0.0.1:9000/rpc")
	t.Setenv("PARLEY_PAGE_SIZE", "7")
	t.Setenv("PARLEY_MARKDOWN", "false")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, ModeWS, cfg.Backend.Mode)
	assert.Equal(t, "ws://127.0.0.1:9000/rpc", cfg.Backend.WSURL)
	assert.Equal(t, 7, cfg.Chat.PageSize)
	assert.False(t, cfg.UI.Markdown)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad mode", func(c *Config) { c.Backend.Mode = "carrier-pigeon" }, "backend.mode"},
		{"ws mode without url", func(c *Config) { c.Backend.Mode = ModeWS; c.Backend.WSURL = "" }, "backend.ws_url"},
		{"ws url wrong scheme", func(c *Config) { c.Backend.Mode = ModeWS; c.Backend.WSURL = "http://x" }, "backend.ws_url"},
		{"bad ollama url", func(c *Config) { c.Backend.OllamaURL = "not a url at all://" }, "backend.ollama_url"},
		{"negative rate limit", func(c *Config) { c.Backend.WSRateLimit = -1 }, "backend.ws_rate_limit"},
		{"negative backtrack", func(c *Config) { c.Backend.Backtrack = -5 }, "backend.backtrack"},
		{"bad theme", func(c *Config) { c.UI.Theme = "solarized" }, "ui.theme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Backend.Model = "llama3:8b"
	cfg.Prompts["pirate"] = "Answer as a pirate."

	require.NoError(t, SaveTo(cfg, path))

	reloaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "llama3:8b", reloaded.Backend.Model)
	assert.Equal(t, "Answer as a pirate.", reloaded.Prompts["pirate"])
}

func TestChatDurations(t *testing.T) {
	c := ChatConfig{FlushIntervalMs: 200, PlaceholderIntervalMs: 500, StopGraceMs: 1000}
	assert.Equal(t, 200*time.Millisecond, c.FlushInterval())
	assert.Equal(t, 500*time.Millisecond, c.PlaceholderInterval())
	assert.Equal(t, time.Second, c.StopGrace())
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := writeConfig(t, `
[backend]
model = "first"
`)

	var mu sync.Mutex
	var got *Config
	w, err := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		defer mu.Unlock()
		got = cfg
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`
[backend]
model = "second"
`), 0600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil && got.Backend.Model == "second"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherSkipsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
[backend]
model = "first"
`)

	var mu sync.Mutex
	calls := 0
	w, err := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})
	require.NoError(t, err)
	defer w.Close()

	// A broken intermediate write must not reach the callback.
	require.NoError(t, os.WriteFile(path, []byte(`[backend`), 0600))
	time.Sleep(500 * time.Millisecond)

	mu.Lock()
	assert.Zero(t, calls)
	mu.Unlock()
}
