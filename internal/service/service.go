// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package service defines the contracts between the chat session engine and
// the backend it talks to.
package service

import "context"

// =============================================================================
// ROLES
// =============================================================================

// Role identifies the author of a stored chat log record.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// =============================================================================
// RECORDS
// =============================================================================

// SendResult carries the identifiers assigned by the store for one turn.
// AssistantMessageID doubles as the event channel id for the reply stream.
type SendResult struct {
	UserMessageID      string `json:"user_message_id"`
	AssistantMessageID string `json:"assistant_message_id"`
}

// ChatLog is one persisted message as returned by LoadLogPage.
type ChatLog struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	Message  string `json:"message"`
	Finished bool   `json:"finished"`
}

// LogPage is one page of history. Records are newest-first; NextCursor is nil
// once no earlier history remains.
type LogPage struct {
	Records    []ChatLog `json:"records"`
	NextCursor *string   `json:"next_cursor"`
}

// ChatIndex is the conversation metadata held by the backend.
type ChatIndex struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	PromptID  string  `json:"prompt_id,omitempty"`
	Backtrack int     `json:"backtrack"`
	CostCents float64 `json:"cost_cents"`
}

// =============================================================================
// CHAT SERVICE
// =============================================================================

// ChatService is the request/response surface of the chat backend.
//
// Every call may fail with a transport error; callers own the recovery
// policy. Identifier-based operations on unknown ids are backend no-ops.
type ChatService interface {
	// Send persists a new user prompt and starts a reply. The returned
	// assistant message id is the channel id for the reply stream.
	Send(ctx context.Context, chatID, text string) (SendResult, error)

	// Resend discards everything after the given user message and starts a
	// fresh reply for it, under a newly assigned user message id.
	Resend(ctx context.Context, userMessageID string) (SendResult, error)

	// StopReply asks the backend to stop producing the reply to the given
	// user message. Cooperative; the stream may still emit a terminal chunk.
	StopReply(ctx context.Context, userMessageID string) error

	// LoadLogPage returns up to size records ending before cursor
	// (newest-first). A nil cursor means "from the latest".
	LoadLogPage(ctx context.Context, chatID string, cursor *string, size int) (LogPage, error)

	// UpdateLog overwrites the content of a stored message.
	UpdateLog(ctx context.Context, id, content string) error

	// DeleteLog removes a stored message.
	DeleteLog(ctx context.Context, id string) error

	// ChangePrompt binds a prompt preset to the chat.
	ChangePrompt(ctx context.Context, chatID, promptID string) error

	// RemovePrompt clears the chat's prompt preset.
	RemovePrompt(ctx context.Context, chatID string) error

	// GetIndex fetches current conversation metadata (title, running cost).
	GetIndex(ctx context.Context, chatID string) (ChatIndex, error)
}

// =============================================================================
// EVENT CHANNEL
// =============================================================================

// EventChannel delivers reply chunks for a message id.
//
// Chunks for one channel id arrive in producer order. The returned
// unsubscribe function must be safe to call more than once; after it returns
// the callback will not be invoked again.
type EventChannel interface {
	Subscribe(channelID string, fn func(Chunk)) (unsubscribe func())
}
