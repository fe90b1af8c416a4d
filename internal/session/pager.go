// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session implements the streaming chat session engine.
package session

import (
	"context"

	"github.com/jeranaias/parley-tui/internal/model"
	"github.com/jeranaias/parley-tui/internal/service"
)

// =============================================================================
// HISTORY PAGER
// =============================================================================

// HasMoreHistory reports whether earlier pages may exist. True until the
// store returns a nil cursor.
func (s *Session) HasMoreHistory() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.prevLoaded || s.prevCursor != nil
}

// LoadPrevLogs fetches the next-older history page and prepends it in
// chronological order. Returns the number of prepended messages.
//
// Safe against scroll-event storms: overlapping calls are single-flight, and
// once the cursor is exhausted further calls are empty no-ops.
func (s *Session) LoadPrevLogs(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSessionClosed
	}
	if s.loadingPrev || (s.prevLoaded && s.prevCursor == nil) {
		s.mu.Unlock()
		return 0, nil
	}
	s.loadingPrev = true
	chatID := s.index.ID
	cursor := s.prevCursor
	size := s.cfg.PageSize
	s.mu.Unlock()

	page, err := s.store.LoadLogPage(ctx, chatID, cursor, size)

	s.mu.Lock()
	s.loadingPrev = false
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.prevLoaded = true
	s.prevCursor = page.NextCursor

	// The store returns newest-first; reverse into chronological order
	// before prepending.
	converted := make([]model.Message, 0, len(page.Records))
	for i := len(page.Records) - 1; i >= 0; i-- {
		rec := page.Records[i]
		switch rec.Role {
		case service.RoleUser:
			converted = append(converted, model.NewHistoryUserMessage(rec.ID, rec.Message, rec.Finished))
		case service.RoleAssistant:
			converted = append(converted, model.NewHistoryAssistantMessage(rec.ID, rec.Message))
		}
	}
	n := len(converted)
	if n > 0 {
		s.messages = append(converted, s.messages...)
	}
	s.mu.Unlock()

	if n > 0 {
		s.emit(Change{Kind: ChangePrepend, Prepended: n})
	}
	return n, nil
}
