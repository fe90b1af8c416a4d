// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry tracks parley's running generation cost.
package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerAccumulates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costs.json")
	tr, err := NewTracker(path)
	require.NoError(t, err)

	tr.RecordCost("chat1", 1.5)
	tr.RecordCost("chat1", 0.5)
	tr.RecordCost("chat2", 3)

	assert.InDelta(t, 5, tr.TotalCents(), 1e-9)
	assert.InDelta(t, 2, tr.ChatCents("chat1"), 1e-9)
	assert.InDelta(t, 3, tr.ChatCents("chat2"), 1e-9)
	assert.InDelta(t, 5, tr.TodayCents(), 1e-9)
	assert.Zero(t, tr.ChatCents("unknown"))
}

func TestTrackerIgnoresNonPositiveDeltas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costs.json")
	tr, err := NewTracker(path)
	require.NoError(t, err)

	tr.RecordCost("chat1", 0)
	tr.RecordCost("chat1", -2)
	assert.Zero(t, tr.TotalCents())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "nothing to persist, nothing written")
}

func TestTrackerPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costs.json")
	tr, err := NewTracker(path)
	require.NoError(t, err)
	tr.RecordCost("chat1", 4.25)

	reopened, err := NewTracker(path)
	require.NoError(t, err)
	assert.InDelta(t, 4.25, reopened.TotalCents(), 1e-9)
	assert.InDelta(t, 4.25, reopened.ChatCents("chat1"), 1e-9)
}

func TestTrackerSurvivesCorruptLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	tr, err := NewTracker(path)
	require.NoError(t, err)
	assert.Zero(t, tr.TotalCents())

	tr.RecordCost("chat1", 1)
	assert.InDelta(t, 1, tr.TotalCents(), 1e-9)
}

func TestTrackerSummary(t *testing.T) {
	tr, err := NewTracker(filepath.Join(t.TempDir(), "costs.json"))
	require.NoError(t, err)
	tr.RecordCost("chat1", 2.5)

	s := tr.Summary()
	assert.Contains(t, s, "2.50")
}
