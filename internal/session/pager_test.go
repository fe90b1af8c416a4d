// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session implements the streaming chat session engine.
package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/parley-tui/internal/service"
)

func strptr(s string) *string { return &s }

// newestFirstPage builds a page the way the store returns it: latest record
// first.
func newestFirstPage(cursor *string, logs ...service.ChatLog) service.LogPage {
	return service.LogPage{Records: logs, NextCursor: cursor}
}

func TestLoadPrevLogsPrependsChronologically(t *testing.T) {
	s, store, _, rec := newTestSession(t, inertConfig())
	store.pages = []service.LogPage{
		newestFirstPage(strptr("c1"),
			service.ChatLog{ID: "a2", Role: service.RoleAssistant, Message: "reply two", Finished: true},
			service.ChatLog{ID: "u2", Role: service.RoleUser, Message: "prompt two", Finished: true},
			service.ChatLog{ID: "a1", Role: service.RoleAssistant, Message: "reply one", Finished: true},
			service.ChatLog{ID: "u1", Role: service.RoleUser, Message: "prompt one", Finished: true},
		),
	}

	assert.True(t, s.HasMoreHistory(), "unloaded cursor means history may exist")

	n, err := s.LoadPrevLogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	views := s.MessageViews()
	require.Len(t, views, 4)
	assert.Equal(t, []string{"u1", "a1", "u2", "a2"}, []string{
		views[0].LogID, views[1].LogID, views[2].LogID, views[3].LogID,
	}, "newest-first page is reversed before prepending")
	assert.Equal(t, KindUser, views[0].Kind)
	assert.Equal(t, KindAssistant, views[1].Kind)
	assert.True(t, views[1].Done, "restored replies bypass the streaming states")
	require.NotNil(t, views[0].Finished)
	assert.True(t, *views[0].Finished)

	change, ok := rec.last(ChangePrepend)
	require.True(t, ok)
	assert.Equal(t, 4, change.Prepended)

	// First call starts from the latest, i.e. a nil cursor.
	require.Len(t, store.loadCalls, 1)
	assert.Nil(t, store.loadCalls[0])
	assert.True(t, s.HasMoreHistory(), "non-nil next cursor means more pages remain")
}

func TestLoadPrevLogsWalksCursorUntilExhausted(t *testing.T) {
	s, store, _, _ := newTestSession(t, inertConfig())
	store.pages = []service.LogPage{
		newestFirstPage(strptr("c1"),
			service.ChatLog{ID: "u2", Role: service.RoleUser, Message: "newer", Finished: true},
		),
		newestFirstPage(nil,
			service.ChatLog{ID: "u1", Role: service.RoleUser, Message: "older", Finished: true},
		),
	}

	_, err := s.LoadPrevLogs(context.Background())
	require.NoError(t, err)
	n, err := s.LoadPrevLogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	views := s.MessageViews()
	require.Len(t, views, 2)
	assert.Equal(t, "u1", views[0].LogID, "older page lands before the newer one")
	assert.Equal(t, "u2", views[1].LogID)

	// Second call passes the cursor from the first page.
	require.Len(t, store.loadCalls, 2)
	require.NotNil(t, store.loadCalls[1])
	assert.Equal(t, "c1", *store.loadCalls[1])

	assert.False(t, s.HasMoreHistory(), "nil next cursor means the history is exhausted")
}

func TestLoadPrevLogsAfterExhaustionIsNoop(t *testing.T) {
	s, store, _, _ := newTestSession(t, inertConfig())
	store.pages = []service.LogPage{
		newestFirstPage(nil,
			service.ChatLog{ID: "u1", Role: service.RoleUser, Message: "only", Finished: true},
		),
	}

	_, err := s.LoadPrevLogs(context.Background())
	require.NoError(t, err)

	// Scroll-event storms keep calling; none of them may hit the store.
	for i := 0; i < 5; i++ {
		n, err := s.LoadPrevLogs(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	assert.Len(t, store.loadCalls, 1)
	assert.Equal(t, 1, s.MessageCount())
}

func TestLoadPrevLogsErrorLeavesCursorRetryable(t *testing.T) {
	s, store, _, _ := newTestSession(t, inertConfig())
	store.pageErr = errors.New("network flake")
	store.pages = []service.LogPage{
		newestFirstPage(nil,
			service.ChatLog{ID: "u1", Role: service.RoleUser, Message: "recovered", Finished: true},
		),
	}

	_, err := s.LoadPrevLogs(context.Background())
	require.Error(t, err)
	assert.True(t, s.HasMoreHistory(), "a failed load must not mark history exhausted")
	assert.Zero(t, s.MessageCount())

	// Retry succeeds once the store recovers.
	n, err := s.LoadPrevLogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLoadPrevLogsEmptyPage(t *testing.T) {
	s, _, _, _ := newTestSession(t, inertConfig())
	// Store yields an empty page with no cursor: a fresh, empty chat.
	n, err := s.LoadPrevLogs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, s.HasMoreHistory())
}

func TestLoadPrevLogsOnClosedSession(t *testing.T) {
	s, _, _, _ := newTestSession(t, inertConfig())
	s.Close()

	_, err := s.LoadPrevLogs(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestLoadPrevLogsKeepsStreamedMessagesAfterHistory(t *testing.T) {
	s, store, events, _ := newTestSession(t, inertConfig())
	completeExchange(t, s, events, "live prompt", "live reply")

	store.pages = []service.LogPage{
		newestFirstPage(nil,
			service.ChatLog{ID: "h1", Role: service.RoleUser, Message: "historic", Finished: true},
		),
	}

	n, err := s.LoadPrevLogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	views := s.MessageViews()
	require.Len(t, views, 3)
	assert.Equal(t, "h1", views[0].LogID, "history lands before the live exchange")
	assert.Equal(t, "live prompt", views[1].Text)
}
