// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package service defines the contracts between the chat session engine and
// the backend it talks to.
//
// Two collaborators are abstracted here:
//
//   - ChatService: request/response operations against the chat log store
//     (send, resend, stop, pagination, log edits, prompt metadata).
//   - EventChannel: a per-message stream of reply chunks, subscribed by
//     channel id and delivered in producer order until unsubscribed.
//
// Concrete implementations live in internal/transport/ws (remote backend over
// a WebSocket RPC connection) and internal/local (sqlite log store plus a
// streaming completion client for offline use).
package service
