// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session implements the streaming chat session engine.
//
// A Session is the single source of truth for one conversation: it owns the
// ordered message list, orchestrates send/resend/stop/delete operations
// against the backend ChatService, and wires the per-message EventChannel
// stream into the message model.
//
// # Key Types
//
//   - Session: the conversation aggregate (send, resend, stop, edits,
//     input-history recall)
//   - Accumulator: throttled content batching for a streaming reply
//   - Change: coarse-grained notification emitted to the UI adapter
//
// # Concurrency
//
// All state is guarded by one mutex. Mutation arrives from three directions:
// UI calls, EventChannel callbacks, and the per-reply ticker goroutine that
// drives the placeholder animation and the periodic content flush. At most
// one reply is in flight per Session; chunks for any channel other than the
// current reply's are dropped, so a terminated stream can never resurrect a
// message or clear the busy flag twice.
//
// Notifications are emitted outside the lock. A Session must be Closed when
// the conversation is navigated away from; Close tears down the event
// subscription and the ticker goroutine.
package session
