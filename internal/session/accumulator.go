// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session implements the streaming chat session engine.
package session

import "github.com/jeranaias/parley-tui/internal/model"

// =============================================================================
// THROTTLED CONTENT ACCUMULATOR
// =============================================================================

// Accumulator batches streamed tokens into an AssistantMessage so the
// observable content field is not mutated on every token.
//
// Policy:
//
//  1. The first token is assigned to Content directly, minimizing perceived
//     latency to first byte.
//  2. Later tokens go to the message's cached buffer.
//  3. Flush drains the buffer on the periodic cadence; an empty buffer is a
//     no-op so idle ticks cause no spurious notifications.
//  4. Finish drains synchronously on stream completion or forced stop, so no
//     token is lost between flush ticks.
//
// Regardless of flush timing, the final Content equals the concatenation of
// all pushed tokens in arrival order.
//
// The Accumulator is not self-locking: the owning Session serializes all
// calls under its mutex.
type Accumulator struct {
	msg     *model.AssistantMessage
	started bool
}

// NewAccumulator creates an accumulator feeding the given reply message.
func NewAccumulator(msg *model.AssistantMessage) *Accumulator {
	return &Accumulator{msg: msg}
}

// Push adds one token. Returns true when this was the first token, which is
// written through to Content immediately (replacing the placeholder).
func (a *Accumulator) Push(token string) bool {
	if !a.started {
		a.started = true
		a.msg.Pending = false
		a.msg.Content = token
		return true
	}
	a.msg.AppendCached(token)
	return false
}

// Flush drains buffered tokens into Content. Returns true if Content
// changed.
func (a *Accumulator) Flush() bool {
	return a.msg.FlushCached()
}

// Finish performs the final synchronous drain. Returns true if Content
// changed.
func (a *Accumulator) Finish() bool {
	return a.msg.FlushCached()
}

// Started reports whether any real content has arrived.
func (a *Accumulator) Started() bool {
	return a.started
}
