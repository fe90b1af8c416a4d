// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the in-memory message types for one conversation.
package model

import (
	"strings"

	"github.com/google/uuid"

	"github.com/jeranaias/parley-tui/internal/service"
)

// =============================================================================
// MESSAGE SUM TYPE
// =============================================================================

// Message is one conversation turn. The variant set is closed: UserMessage,
// AssistantMessage, ErrorMessage.
type Message interface {
	// LogID is the server-assigned id, empty until the store binds it.
	LogID() string
	// TransientID is the client-local identity, stable for the message's
	// whole lifetime.
	TransientID() string
	// Text is the current observable content.
	Text() string

	isMessage()
}

// =============================================================================
// USER MESSAGE
// =============================================================================

// UserMessage is a prompt sent by the user.
type UserMessage struct {
	ID        string
	Transient string
	Content   string

	// Delivered is true once the server has begun producing a reply.
	Delivered bool
	// Finished is nil while the reply is pending, then true (completed) or
	// false (failed). Within one reply it never reverses; a resend resets it.
	Finished *bool
}

// NewUserMessage creates a user message with a fresh transient identity and
// no server id yet.
func NewUserMessage(content string) *UserMessage {
	return &UserMessage{
		Transient: newTransientID(),
		Content:   content,
	}
}

// NewHistoryUserMessage restores a user message from a stored log record.
func NewHistoryUserMessage(id, content string, finished bool) *UserMessage {
	f := finished
	return &UserMessage{
		ID:        id,
		Transient: newTransientID(),
		Content:   content,
		Delivered: true,
		Finished:  &f,
	}
}

func (m *UserMessage) LogID() string       { return m.ID }
func (m *UserMessage) TransientID() string { return m.Transient }
func (m *UserMessage) Text() string        { return m.Content }
func (m *UserMessage) isMessage()          {}

// MarkFinished sets the terminal completion state. The nil -> true/false
// transition happens once per reply; ResetForResend starts a new reply.
func (m *UserMessage) MarkFinished(ok bool) {
	if m.Finished != nil {
		return
	}
	v := ok
	m.Finished = &v
}

// ResetForResend returns the message to the not-yet-replied state.
func (m *UserMessage) ResetForResend() {
	m.Delivered = false
	m.Finished = nil
}

// =============================================================================
// ASSISTANT MESSAGE
// =============================================================================

// AssistantMessage is a streamed reply.
type AssistantMessage struct {
	ID        string
	Transient string
	Content   string

	// Pending is true while waiting for the first token; Content then holds
	// a placeholder animation frame.
	Pending bool
	// Done is true once the terminal chunk has been processed. After that
	// the cached buffer is empty and no further mutation occurs.
	Done bool

	// cached holds streamed text not yet flushed to Content.
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	cached strings.Builder
}

// NewAssistantMessage creates a pending reply showing the first placeholder
// frame.
func NewAssistantMessage() *AssistantMessage {
	return &AssistantMessage{
		Transient: newTransientID(),
		Content:   PlaceholderFrame(0),
		Pending:   true,
	}
}

// NewHistoryAssistantMessage restores a completed reply from a stored log
// record, bypassing the streaming state machine.
func NewHistoryAssistantMessage(id, content string) *AssistantMessage {
	return &AssistantMessage{
		ID:        id,
		Transient: newTransientID(),
		Content:   content,
		Done:      true,
	}
}

func (m *AssistantMessage) LogID() string       { return m.ID }
func (m *AssistantMessage) TransientID() string { return m.Transient }
func (m *AssistantMessage) Text() string        { return m.Content }
func (m *AssistantMessage) isMessage()          {}

// AppendCached buffers streamed text without touching Content.
func (m *AssistantMessage) AppendCached(text string) {
	if m.Done {
		return
	}
	m.cached.WriteString(text)
}

// FlushCached drains the buffer into Content. Returns true if Content
// changed.
func (m *AssistantMessage) FlushCached() bool {
	if m.cached.Len() == 0 {
		return false
	}
	m.Content += m.cached.String()
	m.cached.Reset()
	return true
}

// CachedLen reports how much streamed text is waiting to be flushed.
func (m *AssistantMessage) CachedLen() int {
	return m.cached.Len()
}

// HasStreamedContent is true once real reply text has arrived, i.e. the
// message left the placeholder state.
func (m *AssistantMessage) HasStreamedContent() bool {
	return !m.Pending || m.cached.Len() > 0
}

// =============================================================================
// ERROR MESSAGE
// =============================================================================

// ErrorMessage replaces a reply that terminated with an error chunk.
type ErrorMessage struct {
	ID        string
	Transient string
	Payload   service.ErrorPayload
}

// NewErrorMessage creates an error message for the given payload.
func NewErrorMessage(p service.ErrorPayload) *ErrorMessage {
	return &ErrorMessage{
		Transient: newTransientID(),
		Payload:   p,
	}
}

func (m *ErrorMessage) LogID() string       { return m.ID }
func (m *ErrorMessage) TransientID() string { return m.Transient }
func (m *ErrorMessage) Text() string        { return m.Payload.Summary() }
func (m *ErrorMessage) isMessage()          {}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// newTransientID creates a client-local message identity.
func newTransientID() string {
	return "tmp_" + uuid.NewString()
}
