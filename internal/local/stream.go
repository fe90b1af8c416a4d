// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package local is the offline chat backend.
package local

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// GENERATOR ERRORS
// =============================================================================

// GeneratorError represents a failure talking to the local model server.
type GeneratorError struct {
	Message string
	Cause   error
}

func (e *GeneratorError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *GeneratorError) Unwrap() error {
	return e.Cause
}

// ErrServerDown is returned when the model server is unreachable.
var ErrServerDown = &GeneratorError{Message: "model server is not running"}

// =============================================================================
// GENERATOR
// =============================================================================

// Turn is one context message for generation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenStats summarizes one completed generation.
type GenStats struct {
	TokenCount int
	Duration   time.Duration
}

// ReplyGenerator streams model output token by token. Implemented by
// Generator for production and faked in tests.
type ReplyGenerator interface {
	Stream(ctx context.Context, turns []Turn, onToken func(string)) (GenStats, error)
}

// GeneratorConfig holds configuration for the local model client.
type GeneratorConfig struct {
	// BaseURL of the Ollama-compatible server (default: http://127.0.0.1:11434).
	// Explicit IPv4 avoids IPv6 resolution issues on some platforms.
	BaseURL string

	// Model to generate with.
	Model string

	// ConnectTimeout bounds the initial connection (default: 5s). Generation
	// itself is bounded only by the caller's context.
	ConnectTimeout time.Duration
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.BaseURL == "" {
		c.BaseURL = "http://127.0.0.1:11434"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	return c
}

// Generator is a streaming client for an Ollama-compatible /api/chat
// endpoint. Responses arrive as NDJSON, one chunk per line.
type Generator struct {
	cfg    GeneratorConfig
	client *http.Client
}

// NewGenerator creates a generator with the given configuration.
func NewGenerator(cfg GeneratorConfig) *Generator {
	return &Generator{
		cfg: cfg.withDefaults(),
		// No client timeout: streams run until done or the context ends.
		client: &http.Client{},
	}
}

// chatRequest is the wire request for /api/chat.
type chatRequest struct {
	Model    string `json:"model"`
	Messages []Turn `json:"messages"`
	Stream   bool   `json:"stream"`
}

// chatLine is one NDJSON line of the streamed response.
type chatLine struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// Stream sends the context turns and invokes onToken for every content
// fragment, in arrival order, until the server reports done.
func (g *Generator) Stream(ctx context.Context, turns []Turn, onToken func(string)) (GenStats, error) {
	start := time.Now()

	body, err := json.Marshal(chatRequest{
		Model:    g.cfg.Model,
		Messages: turns,
		Stream:   true,
	})
	if err != nil {
		return GenStats{}, &GeneratorError{Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return GenStats{}, &GeneratorError{Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return GenStats{}, ctx.Err()
		}
		return GenStats{}, ErrServerDown
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return GenStats{}, &GeneratorError{Message: apiErr.Error}
		}
		return GenStats{}, &GeneratorError{Message: "generation failed: " + resp.Status}
	}

	stats := GenStats{}
	reader := bufio.NewReader(resp.Body)
	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			var chunk chatLine
			if jerr := json.Unmarshal(line, &chunk); jerr == nil {
				if chunk.Error != "" {
					return stats, &GeneratorError{Message: chunk.Error}
				}
				if chunk.Message.Content != "" {
					stats.TokenCount++
					onToken(chunk.Message.Content)
				}
				if chunk.Done {
					stats.Duration = time.Since(start)
					return stats, nil
				}
			}
			// Malformed lines are skipped.
		}
		if err != nil {
			if err == io.EOF {
				stats.Duration = time.Since(start)
				return stats, nil
			}
			return stats, &GeneratorError{Message: "stream read failed", Cause: err}
		}
	}
}
