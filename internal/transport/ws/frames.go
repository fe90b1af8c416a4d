// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ws implements the websocket transport to a parley chat backend.
package ws

import (
	"encoding/json"

	"github.com/jeranaias/parley-tui/internal/service"
)

// =============================================================================
// WIRE FRAMES
// =============================================================================

// Frame types on the wire. Calls flow client -> server; replies and events
// flow back. A reply's id matches its call; events carry a channel id instead.
const (
	frameCall  = "call"
	frameReply = "reply"
	frameEvent = "event"
)

// frame is the single envelope for all wire traffic. Which fields are
// meaningful depends on Type.
type frame struct {
	Type string `json:"type"`

	// Call / reply correlation.
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`

	// Event delivery.
	Channel string          `json:"channel,omitempty"`
	Chunk   json.RawMessage `json:"chunk,omitempty"`
}

// wireError is a failed reply's payload.
type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes the backend uses for identifier misses.
const (
	codeChatNotFound = "chat_not_found"
	codeLogNotFound  = "log_not_found"
)

// toError maps a wire error onto the service sentinels where possible.
func (e *wireError) toError() error {
	switch e.Code {
	case codeChatNotFound:
		return service.ErrChatNotFound
	case codeLogNotFound:
		return service.ErrLogNotFound
	}
	if e.Message != "" {
		return &service.ServiceError{Message: e.Message}
	}
	return &service.ServiceError{Message: "backend error: " + e.Code}
}

// =============================================================================
// CALL METHODS
// =============================================================================

const (
	methodSend         = "chat.send"
	methodResend       = "chat.resend"
	methodStop         = "chat.stop"
	methodLogs         = "chat.logs"
	methodUpdateLog    = "chat.updateLog"
	methodDeleteLog    = "chat.deleteLog"
	methodChangePrompt = "chat.changePrompt"
	methodRemovePrompt = "chat.removePrompt"
	methodIndex        = "chat.index"
)

type sendParams struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type resendParams struct {
	UserMessageID string `json:"user_message_id"`
}

type stopParams struct {
	UserMessageID string `json:"user_message_id"`
}

type logsParams struct {
	ChatID string  `json:"chat_id"`
	Cursor *string `json:"cursor,omitempty"`
	Size   int     `json:"size"`
}

type updateLogParams struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type deleteLogParams struct {
	ID string `json:"id"`
}

type promptParams struct {
	ChatID   string `json:"chat_id"`
	PromptID string `json:"prompt_id,omitempty"`
}

type indexParams struct {
	ChatID string `json:"chat_id"`
}
