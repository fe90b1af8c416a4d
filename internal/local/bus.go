// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package local is the offline chat backend.
package local

import (
	"sync"

	"github.com/jeranaias/parley-tui/internal/service"
)

// =============================================================================
// IN-PROCESS EVENT BUS
// =============================================================================

// bus delivers reply chunks to the subscriber of a channel id. Chunks for
// channels without a subscriber are dropped; the generated text still
// persists, so a late reader loads it as history.
type bus struct {
	mu   sync.Mutex
	subs map[string]func(service.Chunk)
}

func newBus() *bus {
	return &bus{subs: make(map[string]func(service.Chunk))}
}

// Subscribe registers the callback. The returned unsubscribe is idempotent.
func (b *bus) Subscribe(channelID string, fn func(service.Chunk)) func() {
	b.mu.Lock()
	b.subs[channelID] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, channelID)
			b.mu.Unlock()
		})
	}
}

// publish delivers one chunk synchronously to the current subscriber.
func (b *bus) publish(channelID string, c service.Chunk) {
	b.mu.Lock()
	fn := b.subs[channelID]
	b.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}
