// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package local is the offline chat backend: conversations persist in an
// embedded SQLite database and replies are generated by a local
// Ollama-compatible model server.
//
// The Backend wires three pieces together:
//
//   - Store: SQLite persistence for chats and their logs, with rowid-based
//     history paging.
//   - Generator: a streaming NDJSON client for the local model server.
//   - bus: an in-process event channel republishing generated tokens as
//     reply chunks.
//
// Backend implements both service.ChatService and service.EventChannel, so a
// session works identically against the local backend and the websocket
// transport.
package local
