// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session implements the streaming chat session engine.
package session

import (
	"github.com/jeranaias/parley-tui/internal/model"
	"github.com/jeranaias/parley-tui/internal/service"
)

// =============================================================================
// MESSAGE SNAPSHOTS
// =============================================================================

// MessageKind identifies the variant behind a MessageView.
type MessageKind int

const (
	KindUser MessageKind = iota
	KindAssistant
	KindError
)

// MessageView is an immutable snapshot of one message, safe to render from
// any goroutine while streaming mutates the live model under the session
// lock.
type MessageView struct {
	Kind        MessageKind
	LogID       string
	TransientID string
	Text        string

	// User fields
	Delivered bool
	Finished  *bool

	// Assistant fields
	Pending bool
	Done    bool

	// Error field
	Err *service.ErrorPayload
}

// MessageViews snapshots the current message list, oldest first.
func (s *Session) MessageViews() []MessageView {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]MessageView, 0, len(s.messages))
	for _, m := range s.messages {
		views = append(views, snapshot(m))
	}
	return views
}

// snapshot copies one message into a view. Caller holds s.mu.
func snapshot(m model.Message) MessageView {
	v := MessageView{
		LogID:       m.LogID(),
		TransientID: m.TransientID(),
		Text:        m.Text(),
	}
	switch msg := m.(type) {
	case *model.UserMessage:
		v.Kind = KindUser
		v.Delivered = msg.Delivered
		if msg.Finished != nil {
			f := *msg.Finished
			v.Finished = &f
		}
	case *model.AssistantMessage:
		v.Kind = KindAssistant
		v.Pending = msg.Pending
		v.Done = msg.Done
	case *model.ErrorMessage:
		v.Kind = KindError
		p := msg.Payload
		v.Err = &p
	}
	return v
}
