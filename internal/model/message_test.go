// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/parley-tui/internal/service"
)

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("hello")

	assert.Empty(t, msg.LogID())
	assert.NotEmpty(t, msg.TransientID())
	assert.Equal(t, "hello", msg.Text())
	assert.False(t, msg.Delivered)
	assert.Nil(t, msg.Finished)
}

func TestTransientIDsNeverReused(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewUserMessage("x").TransientID()
		require.False(t, seen[id], "transient id reused: %s", id)
		seen[id] = true
	}
}

func TestUserMessageMarkFinishedNeverReverses(t *testing.T) {
	msg := NewUserMessage("hi")

	msg.MarkFinished(true)
	require.NotNil(t, msg.Finished)
	assert.True(t, *msg.Finished)

	// A second terminal transition within the same reply is ignored.
	msg.MarkFinished(false)
	assert.True(t, *msg.Finished)
}

func TestUserMessageResetForResend(t *testing.T) {
	msg := NewUserMessage("hi")
	msg.Delivered = true
	msg.MarkFinished(false)

	msg.ResetForResend()

	assert.False(t, msg.Delivered)
	assert.Nil(t, msg.Finished)

	// The new reply may reach a different terminal state.
	msg.MarkFinished(true)
	assert.True(t, *msg.Finished)
}

func TestAssistantMessageStartsPending(t *testing.T) {
	msg := NewAssistantMessage()

	assert.True(t, msg.Pending)
	assert.False(t, msg.Done)
	assert.True(t, IsPlaceholder(msg.Text()))
	assert.False(t, msg.HasStreamedContent())
}

func TestAssistantMessageCachedFlush(t *testing.T) {
	msg := NewAssistantMessage()
	msg.Pending = false
	msg.Content = "Hel"

	msg.AppendCached("lo")
	msg.AppendCached(", world")
	assert.Equal(t, "Hel", msg.Content, "cached text must not leak before flush")

	changed := msg.FlushCached()
	assert.True(t, changed)
	assert.Equal(t, "Hello, world", msg.Content)
	assert.Zero(t, msg.CachedLen())

	// Flushing an empty buffer is a no-op.
	assert.False(t, msg.FlushCached())
}

func TestAssistantMessageDoneBlocksAppend(t *testing.T) {
	msg := NewHistoryAssistantMessage("a1", "final")

	msg.AppendCached("extra")
	assert.Zero(t, msg.CachedLen())
	assert.Equal(t, "final", msg.Content)
}

func TestHistoryConstructors(t *testing.T) {
	u := NewHistoryUserMessage("u1", "question", true)
	require.NotNil(t, u.Finished)
	assert.True(t, *u.Finished)
	assert.True(t, u.Delivered)
	assert.Equal(t, "u1", u.LogID())

	a := NewHistoryAssistantMessage("a1", "answer")
	assert.True(t, a.Done)
	assert.False(t, a.Pending)
	assert.Equal(t, "answer", a.Text())
}

func TestErrorMessageText(t *testing.T) {
	msg := NewErrorMessage(service.NetworkErrorPayload(service.NetworkTimeout, "Timeout"))
	assert.Equal(t, "Timeout", msg.Text())
	assert.NotEmpty(t, msg.TransientID())
}

func TestPlaceholderFrames(t *testing.T) {
	require.Equal(t, 3, PlaceholderFrameCount())
	assert.Equal(t, PlaceholderFrame(0), PlaceholderFrame(3))
	assert.NotEqual(t, PlaceholderFrame(0), PlaceholderFrame(1))
	assert.False(t, IsPlaceholder("hello"))
}

// Exhaustiveness check: the compiler keeps this switch in sync with the
// variant set.
func TestMessageVariants(t *testing.T) {
	msgs := []Message{
		NewUserMessage("u"),
		NewAssistantMessage(),
		NewErrorMessage(service.APIErrorPayload("quota", "")),
	}

	for _, m := range msgs {
		switch m.(type) {
		case *UserMessage, *AssistantMessage, *ErrorMessage:
		default:
			t.Fatalf("unexpected message variant %T", m)
		}
	}
}
