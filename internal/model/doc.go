// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the in-memory message types for one conversation.
//
// Message is a closed sum over three variants:
//
//   - UserMessage: a prompt the user sent, with delivery/completion state
//   - AssistantMessage: a streamed reply, with pending/done state and an
//     unflushed content buffer
//   - ErrorMessage: a failed turn carrying a structured error payload
//
// The set is closed by an unexported marker method; handling code switches
// exhaustively over the three pointer types.
//
// Every message carries two identities: the server-assigned log id (empty
// until the store binds it) and a client-local transient id assigned at
// creation and never reused. The transient id exists so optimistically
// inserted messages have a stable key before the server round trip resolves.
package model
