// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session implements the streaming chat session engine.
package session

import (
	"sync"
	"time"

	"github.com/jeranaias/parley-tui/internal/model"
	"github.com/jeranaias/parley-tui/internal/service"
)

// =============================================================================
// REPLY RECEPTION STATE MACHINE
// =============================================================================

// replyState tracks one reply through
// pending -> streaming -> done | errored | stopped.
type replyState int

const (
	replyPending replyState = iota
	replyStreaming
	replyDone
	replyErrored
	replyStopped
)

// reply receives one assistant reply stream. Exactly one terminal transition
// occurs; whichever fires first wins and later chunks are dropped.
type reply struct {
	s *Session

	user *model.UserMessage
	asst *model.AssistantMessage
	acc  *Accumulator

	channelID string
	state     replyState
	frame     int

	// unsub and unsubbed are guarded by s.mu so the subscription is
	// released exactly once even when a terminal chunk lands while
	// Subscribe is still returning.
	unsub    func()
	unsubbed bool

	tickStop chan struct{}
	stopOnce sync.Once
}

// beginReply appends the pending assistant message, marks the session busy,
// and subscribes to the reply channel.
func (s *Session) beginReply(user *model.UserMessage, channelID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	asst := model.NewAssistantMessage()
	asst.ID = channelID
	r := &reply{
		s:         s,
		user:      user,
		asst:      asst,
		acc:       NewAccumulator(asst),
		channelID: channelID,
		tickStop:  make(chan struct{}),
	}
	// Callers gate on Busy, but if a reply is still in flight its ticker
	// and subscription must not outlive being displaced.
	old := s.current
	if old != nil && old.state < replyDone {
		old.state = replyStopped
	}
	s.messages = append(s.messages, asst)
	s.busy = true
	s.current = r
	s.stopHandler = r.teardownStopped
	placeholder := s.cfg.PlaceholderInterval
	flush := s.cfg.FlushInterval
	s.mu.Unlock()

	if old != nil {
		old.shutdown()
	}

	unsub := s.events.Subscribe(channelID, r.onChunk)
	s.mu.Lock()
	r.unsub = unsub
	terminated := r.state >= replyDone
	s.mu.Unlock()
	if terminated {
		// The stream ended before Subscribe returned; release now.
		r.shutdown()
	}
	go r.runTickers(placeholder, flush)

	s.emit(Change{Kind: ChangeMessages})
	s.emit(Change{Kind: ChangeBusy})
}

// liveLocked reports whether this reply still owns the stream.
func (r *reply) liveLocked() bool {
	return r.s.current == r && r.state < replyDone
}

// =============================================================================
// CHUNK HANDLING
// =============================================================================

// onChunk is the EventChannel callback. Chunks arriving after a terminal
// transition are dropped.
func (r *reply) onChunk(c service.Chunk) {
	s := r.s
	var changes []Change
	refresh := false
	terminal := false

	s.mu.Lock()
	if s.closed || !r.liveLocked() {
		s.mu.Unlock()
		return
	}

	switch c.Kind {
	case service.ChunkData:
		if !r.user.Delivered {
			r.user.Delivered = true
		}
		if r.acc.Push(c.Data) {
			// First token: placeholder replaced, stream active.
			r.state = replyStreaming
			changes = append(changes, Change{Kind: ChangeContent})
		}

	case service.ChunkDone:
		r.state = replyDone
		r.acc.Finish()
		r.asst.Done = true
		r.user.Delivered = true
		r.user.MarkFinished(true)
		s.busy = false
		s.current = nil
		s.stopHandler = nil
		changes = append(changes, Change{Kind: ChangeContent}, Change{Kind: ChangeBusy})
		refresh = true
		terminal = true

	case service.ChunkError:
		// The partial reply is discarded and replaced by an error entry;
		// the user message becomes resendable.
		r.state = replyErrored
		s.removeLocked(r.asst)
		var payload service.ErrorPayload
		if c.Err != nil {
			payload = *c.Err
		} else {
			payload = service.NetworkErrorPayload(service.NetworkUnknown, "stream error")
		}
		s.messages = append(s.messages, model.NewErrorMessage(payload))
		r.user.MarkFinished(false)
		s.busy = false
		s.current = nil
		s.stopHandler = nil
		changes = append(changes, Change{Kind: ChangeMessages}, Change{Kind: ChangeBusy})
		terminal = true
	}
	s.mu.Unlock()

	if terminal {
		r.shutdown()
	}
	for _, ch := range changes {
		s.emit(ch)
	}
	if refresh {
		go s.refreshIndex()
	}
}

// =============================================================================
// MANUAL STOP TEARDOWN
// =============================================================================

// teardownStopped is the stopReply handler, run after the grace delay.
// Idempotent: if the backend's own terminal chunk landed first, this is a
// no-op. A reply that produced content keeps it; an untouched placeholder is
// removed entirely.
func (r *reply) teardownStopped() {
	s := r.s
	var changes []Change

	s.mu.Lock()
	if r.state >= replyDone {
		s.mu.Unlock()
		return
	}
	r.state = replyStopped
	if r.acc.Started() {
		r.acc.Finish()
		r.asst.Done = true
		changes = append(changes, Change{Kind: ChangeContent})
	} else {
		s.removeLocked(r.asst)
		changes = append(changes, Change{Kind: ChangeMessages})
	}
	if s.current == r {
		s.current = nil
		s.stopHandler = nil
	}
	s.mu.Unlock()

	r.shutdown()
	for _, ch := range changes {
		s.emit(ch)
	}
}

// =============================================================================
// TICKERS
// =============================================================================

// runTickers drives the placeholder animation and the periodic content
// flush until the reply terminates.
func (r *reply) runTickers(placeholder, flush time.Duration) {
	pt := time.NewTicker(placeholder)
	ft := time.NewTicker(flush)
	defer pt.Stop()
	defer ft.Stop()

	for {
		select {
		case <-r.tickStop:
			return
		case <-pt.C:
			r.placeholderTick()
		case <-ft.C:
			r.flushTick()
		}
	}
}

// placeholderTick advances the pending animation frame.
func (r *reply) placeholderTick() {
	s := r.s
	s.mu.Lock()
	if r.state != replyPending || s.closed {
		s.mu.Unlock()
		return
	}
	r.frame++
	r.asst.Content = model.PlaceholderFrame(r.frame)
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeContent})
}

// flushTick drains buffered tokens on the throttle cadence.
func (r *reply) flushTick() {
	s := r.s
	s.mu.Lock()
	if r.state != replyStreaming || s.closed {
		s.mu.Unlock()
		return
	}
	changed := r.acc.Flush()
	s.mu.Unlock()
	if changed {
		s.emit(Change{Kind: ChangeContent})
	}
}

// =============================================================================
// SHUTDOWN
// =============================================================================

// shutdown stops the ticker goroutine and releases the subscription.
// Safe to call any number of times, from any terminal path.
func (r *reply) shutdown() {
	r.stopOnce.Do(func() {
		close(r.tickStop)
	})

	s := r.s
	s.mu.Lock()
	fn := r.unsub
	if r.unsubbed || fn == nil {
		s.mu.Unlock()
		return
	}
	r.unsubbed = true
	s.mu.Unlock()
	fn()
}

// removeLocked deletes a message by pointer identity. Caller holds s.mu.
func (s *Session) removeLocked(target model.Message) {
	for i, m := range s.messages {
		if m == target {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}
