// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry tracks parley's running generation cost.
package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jeranaias/parley-tui/internal/util"
)

// =============================================================================
// COST TRACKER
// =============================================================================

// Tracker accumulates generation cost in cents, per chat and per day, and
// persists every update so a crash never loses more than the in-flight delta.
//
// Safe for concurrent use.
type Tracker struct {
	mu   sync.Mutex
	path string
	data trackerData
}

type trackerData struct {
	TotalCents float64            `json:"total_cents"`
	Chats      map[string]float64 `json:"chats"`
	Days       map[string]float64 `json:"days"` // keyed YYYY-MM-DD
}

// NewTracker opens (or creates) the cost ledger at path. An empty path
// defaults to ~/.parley/costs.json.
func NewTracker(path string) (*Tracker, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(homeDir, ".parley", "costs.json")
	}

	t := &Tracker{
		path: path,
		data: trackerData{
			Chats: make(map[string]float64),
			Days:  make(map[string]float64),
		},
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &t.data); err != nil {
		// A corrupt ledger starts over rather than blocking startup.
		return t, nil
	}
	if t.data.Chats == nil {
		t.data.Chats = make(map[string]float64)
	}
	if t.data.Days == nil {
		t.data.Days = make(map[string]float64)
	}
	return t, nil
}

// RecordCost adds a cost delta for the chat. Implements the session engine's
// cost sink.
func (t *Tracker) RecordCost(chatID string, cents float64) {
	if cents <= 0 {
		return
	}

	t.mu.Lock()
	t.data.TotalCents += cents
	t.data.Chats[chatID] += cents
	t.data.Days[dayKey(time.Now())] += cents
	raw, err := json.MarshalIndent(t.data, "", "  ")
	t.mu.Unlock()

	if err == nil {
		// Best effort; a failed write costs one delta, not the ledger.
		util.AtomicWriteFile(t.path, raw, 0644) //nolint:errcheck
	}
}

// TotalCents returns the all-time accumulated cost.
func (t *Tracker) TotalCents() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.TotalCents
}

// ChatCents returns the accumulated cost of one chat.
func (t *Tracker) ChatCents(chatID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.Chats[chatID]
}

// TodayCents returns the cost accumulated today.
func (t *Tracker) TodayCents() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.Days[dayKey(time.Now())]
}

// Summary formats today's and the all-time cost for the status bar.
func (t *Tracker) Summary() string {
	t.mu.Lock()
	today := t.data.Days[dayKey(time.Now())]
	total := t.data.TotalCents
	t.mu.Unlock()
	return "today " + util.FloatToString(today) + "¢ · total " + util.FloatToString(total) + "¢"
}

func dayKey(ts time.Time) string {
	return ts.Format("2006-01-02")
}
