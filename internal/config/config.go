// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for parley.
//
// Configuration lives in TOML with sensible defaults, environment variable
// overrides, and validation.
//
// Configuration file location (in order of precedence):
//   - ~/.parley/config.toml
//   - Built-in defaults
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/parley-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete parley configuration.
type Config struct {
	Version string `toml:"version"`

	// Backend selects and configures the chat backend.
	Backend BackendConfig `toml:"backend"`

	// Chat tunes the session engine.
	Chat ChatConfig `toml:"chat"`

	// UI configures rendering.
	UI UIConfig `toml:"ui"`

	// Prompts maps prompt preset ids to system prompt text.
	Prompts map[string]string `toml:"prompts"`
}

// Backend modes.
const (
	ModeLocal = "local"
	ModeWS    = "ws"
)

// BackendConfig selects the chat backend.
type BackendConfig struct {
	// Mode is "local" (embedded SQLite + local model server) or "ws"
	// (remote backend over websocket).
	Mode string `toml:"mode"`

	// WSURL is the websocket endpoint for mode "ws".
	WSURL string `toml:"ws_url"`
	// WSToken authenticates the websocket upgrade.
	WSToken string `toml:"ws_token"`
	// WSRateLimit caps outgoing calls per second (0 = unlimited).
	WSRateLimit float64 `toml:"ws_rate_limit"`

	// OllamaURL is the local model server for mode "local".
	// Explicit IPv4 avoids IPv6 resolution issues on some platforms.
	OllamaURL string `toml:"ollama_url"`
	// Model is the local model to generate with.
	Model string `toml:"model"`
	// DBPath is the SQLite database path (empty = ~/.parley/parley.db).
	DBPath string `toml:"db_path"`
	// CostCentsPer1K prices local generation for the cost display.
	CostCentsPer1K float64 `toml:"cost_cents_per_1k"`
	// Backtrack is how many recent logs feed new-chat generation context
	// (0 = all).
	Backtrack int `toml:"backtrack"`
}

// ChatConfig tunes the session engine.
type ChatConfig struct {
	// FlushIntervalMs is the streamed-content flush cadence.
	FlushIntervalMs int `toml:"flush_interval_ms"`
	// PlaceholderIntervalMs is the pending animation cadence.
	PlaceholderIntervalMs int `toml:"placeholder_interval_ms"`
	// StopGraceMs delays client-side teardown after a manual stop.
	StopGraceMs int `toml:"stop_grace_ms"`
	// PageSize is the history page size.
	PageSize int `toml:"page_size"`
}

// FlushInterval returns the flush cadence as a duration.
func (c ChatConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

// PlaceholderInterval returns the animation cadence as a duration.
func (c ChatConfig) PlaceholderInterval() time.Duration {
	return time.Duration(c.PlaceholderIntervalMs) * time.Millisecond
}

// StopGrace returns the stop teardown delay as a duration.
func (c ChatConfig) StopGrace() time.Duration {
	return time.Duration(c.StopGraceMs) * time.Millisecond
}

// UIConfig configures rendering.
type UIConfig struct {
	// Theme is "dark" or "light".
	Theme string `toml:"theme"`
	// Markdown renders assistant replies through glamour when true.
	Markdown bool `toml:"markdown"`
	// CodeStyle is the chroma style for fenced code blocks.
	CodeStyle string `toml:"code_style"`
	// Timestamps shows per-message timestamps.
	Timestamps bool `toml:"timestamps"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: "1",
		Backend: BackendConfig{
			Mode:           ModeLocal,
			OllamaURL:      "http://127.0.0.1:11434",
			Model:          "qwen2.5:7b",
			CostCentsPer1K: 0,
			Backtrack:      0,
		},
		Chat: ChatConfig{
			FlushIntervalMs:       200,
			PlaceholderIntervalMs: 500,
			StopGraceMs:           1000,
			PageSize:              20,
		},
		UI: UIConfig{
			Theme:     "dark",
			Markdown:  true,
			CodeStyle: "monokai",
		},
		Prompts: map[string]string{},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the parley configuration directory (~/.parley).
func ConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".parley"), nil
}

// ConfigPath returns the TOML config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir creates the configuration directory if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the config file, applies environment overrides, fills defaults
// and validates. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath is Load for an explicit file path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the config atomically to its canonical path.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config atomically to an explicit path.
func SaveTo(cfg *Config, path string) error {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, []byte(sb.String()), 0600)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies PARLEY_* environment variables on top of the
// loaded values.
func (c *Config) ApplyEnvOverrides() {
	if mode := os.Getenv("PARLEY_MODE"); mode != "" {
		c.Backend.Mode = mode
	}
	if wsURL := os.Getenv("PARLEY_WS_URL"); wsURL != "" {
		c.Backend.WSURL = wsURL
	}
	if token := os.Getenv("PARLEY_WS_TOKEN"); token != "" {
		c.Backend.WSToken = token
	}
	if ollama := os.Getenv("PARLEY_OLLAMA_URL"); ollama != "" {
		c.Backend.OllamaURL = ollama
	}
	if model := os.Getenv("PARLEY_MODEL"); model != "" {
		c.Backend.Model = model
	}
	if db := os.Getenv("PARLEY_DB"); db != "" {
		c.Backend.DBPath = db
	}
	if theme := os.Getenv("PARLEY_THEME"); theme != "" {
		c.UI.Theme = theme
	}
	if md := os.Getenv("PARLEY_MARKDOWN"); md != "" {
		c.UI.Markdown = md == "1" || strings.ToLower(md) == "true"
	}
	if size := os.Getenv("PARLEY_PAGE_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			c.Chat.PageSize = n
		}
	}
}

// =============================================================================
// DEFAULT FILL AND VALIDATION
// =============================================================================

// SetDefaults fills zero values with the built-in defaults.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Backend.Mode == "" {
		c.Backend.Mode = d.Backend.Mode
	}
	if c.Backend.OllamaURL == "" {
		c.Backend.OllamaURL = d.Backend.OllamaURL
	}
	if c.Backend.Model == "" {
		c.Backend.Model = d.Backend.Model
	}
	if c.Chat.FlushIntervalMs <= 0 {
		c.Chat.FlushIntervalMs = d.Chat.FlushIntervalMs
	}
	if c.Chat.PlaceholderIntervalMs <= 0 {
		c.Chat.PlaceholderIntervalMs = d.Chat.PlaceholderIntervalMs
	}
	if c.Chat.StopGraceMs <= 0 {
		c.Chat.StopGraceMs = d.Chat.StopGraceMs
	}
	if c.Chat.PageSize <= 0 {
		c.Chat.PageSize = d.Chat.PageSize
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.CodeStyle == "" {
		c.UI.CodeStyle = d.UI.CodeStyle
	}
	if c.Prompts == nil {
		c.Prompts = map[string]string{}
	}
}

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend.Mode {
	case ModeLocal, ModeWS:
	default:
		errs = append(errs, ValidationError{
			Field:   "backend.mode",
			Message: fmt.Sprintf("must be %q or %q, got %q", ModeLocal, ModeWS, c.Backend.Mode),
		})
	}

	if c.Backend.Mode == ModeWS {
		if c.Backend.WSURL == "" {
			errs = append(errs, ValidationError{Field: "backend.ws_url", Message: "required for ws mode"})
		} else if u, err := url.Parse(c.Backend.WSURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, ValidationError{Field: "backend.ws_url", Message: "must be a ws:// or wss:// URL"})
		}
	}

	if c.Backend.Mode == ModeLocal {
		if u, err := url.Parse(c.Backend.OllamaURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, ValidationError{Field: "backend.ollama_url", Message: "must be an http:// or https:// URL"})
		}
	}

	if c.Backend.WSRateLimit < 0 {
		errs = append(errs, ValidationError{Field: "backend.ws_rate_limit", Message: "must not be negative"})
	}
	if c.Backend.Backtrack < 0 {
		errs = append(errs, ValidationError{Field: "backend.backtrack", Message: "must not be negative"})
	}

	switch c.UI.Theme {
	case "dark", "light":
	default:
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("must be \"dark\" or \"light\", got %q", c.UI.Theme),
		})
	}

	return errors.Join(errs...)
}
