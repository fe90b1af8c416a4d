// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session implements the streaming chat session engine.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/jeranaias/parley-tui/internal/model"
	"github.com/jeranaias/parley-tui/internal/service"
	"github.com/jeranaias/parley-tui/internal/util"
)

// =============================================================================
// CHANGE NOTIFICATIONS
// =============================================================================

// ChangeKind classifies a session notification.
type ChangeKind int

const (
	// ChangeMessages: list membership changed (append, remove, truncate).
	ChangeMessages ChangeKind = iota
	// ChangeContent: content of an existing message changed.
	ChangeContent
	// ChangeBusy: the busy flag flipped.
	ChangeBusy
	// ChangeIndex: conversation metadata was refreshed.
	ChangeIndex
	// ChangePrepend: history records were prepended; Prepended carries the
	// count so the view can preserve its scroll position.
	ChangePrepend
)

// Change is a coarse-grained notification to the UI adapter.
type Change struct {
	Kind      ChangeKind
	Prepended int
}

// Notifier receives session changes. Called outside the session lock; may be
// invoked from ticker or event-channel goroutines.
type Notifier func(Change)

// CostSink receives running-cost deltas when metadata is refreshed after a
// completed reply.
type CostSink interface {
	RecordCost(chatID string, cents float64)
}

// =============================================================================
// CONFIG
// =============================================================================

// Config holds the session engine's tuning knobs.
type Config struct {
	// FlushInterval is the cadence of the throttled content flush.
	FlushInterval time.Duration
	// PlaceholderInterval is the cadence of the pending animation.
	PlaceholderInterval time.Duration
	// StopGrace is the delay between a manual stop and client-side teardown.
	StopGrace time.Duration
	// PageSize is the history page size.
	PageSize int
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		FlushInterval:       200 * time.Millisecond,
		PlaceholderInterval: 500 * time.Millisecond,
		StopGrace:           time.Second,
		PageSize:            20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.PlaceholderInterval <= 0 {
		c.PlaceholderInterval = d.PlaceholderInterval
	}
	if c.StopGrace <= 0 {
		c.StopGrace = d.StopGrace
	}
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	return c
}

// =============================================================================
// SESSION
// =============================================================================

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = &service.ServiceError{Message: "session closed"}

// Session is the aggregate for one open conversation.
type Session struct {
	mu sync.Mutex

	store  service.ChatService
	events service.EventChannel
	cfg    Config

	notify   Notifier
	costSink CostSink

	index    service.ChatIndex
	messages []model.Message
	busy     bool

	// History cursor. prevLoaded false = never loaded; prevLoaded true with
	// nil cursor = no earlier history remains.
	prevLoaded  bool
	prevCursor  *string
	loadingPrev bool

	// In-flight reply, nil otherwise. stopHandler is set exactly while a
	// reply is in flight.
	current     *reply
	stopHandler func()

	closed bool
}

// New creates a session for an opened conversation.
func New(index service.ChatIndex, store service.ChatService, events service.EventChannel, cfg Config) *Session {
	return &Session{
		store:  store,
		events: events,
		cfg:    cfg.withDefaults(),
		index:  index,
	}
}

// SetNotifier installs the change notifier. Must be called before the first
// operation.
func (s *Session) SetNotifier(fn Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// SetCostSink installs the running-cost recorder.
func (s *Session) SetCostSink(sink CostSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.costSink = sink
}

// emit delivers a change notification. Never call while holding s.mu.
func (s *Session) emit(c Change) {
	s.mu.Lock()
	fn := s.notify
	s.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Busy reports whether a reply is outstanding.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Index returns the conversation metadata.
func (s *Session) Index() service.ChatIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// MessageCount returns the number of loaded messages.
func (s *Session) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// =============================================================================
// SEND / RESEND
// =============================================================================

// SendMessage appends the user's prompt optimistically, persists it, and
// begins receiving the reply. Returns the server-assigned user message id.
//
// Callers gate on Busy; the session itself does not reject a call while a
// reply is outstanding.
func (s *Session) SendMessage(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}
	user := model.NewUserMessage(text)
	s.messages = append(s.messages, user)
	chatID := s.index.ID
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeMessages})

	res, err := s.store.Send(ctx, chatID, text)
	if err != nil {
		// The optimistic message stays in the list with no id. Whether to
		// surface or roll back here is an unresolved product decision.
		return "", err
	}

	s.mu.Lock()
	user.ID = res.UserMessageID
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeMessages})

	s.beginReply(user, res.AssistantMessageID)
	return res.UserMessageID, nil
}

// ResendMessage retries the reply to an already-sent user message. The list
// is truncated to end at that message; everything after it, including any
// error message, is discarded. Unknown ids are a silent no-op.
func (s *Session) ResendMessage(ctx context.Context, userMessageID string) error {
	if userMessageID == "" {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	pos := -1
	var user *model.UserMessage
	for i, m := range s.messages {
		if u, ok := m.(*model.UserMessage); ok && u.ID == userMessageID {
			pos = i
			user = u
			break
		}
	}
	if pos < 0 {
		s.mu.Unlock()
		return nil
	}
	// Discard any reply still in flight; its message was just truncated away.
	old := s.current
	s.current = nil
	s.stopHandler = nil
	s.busy = false
	s.messages = s.messages[:pos+1]
	user.ResetForResend()
	s.mu.Unlock()
	if old != nil {
		old.shutdown()
	}
	s.emit(Change{Kind: ChangeMessages})

	res, err := s.store.Resend(ctx, userMessageID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	user.ID = res.UserMessageID
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeMessages})

	s.beginReply(user, res.AssistantMessageID)
	return nil
}

// =============================================================================
// STOP
// =============================================================================

// StopReply cancels the in-flight reply. The busy flag clears immediately so
// the input unblocks; client-side teardown runs after the grace delay.
//
// The delay is a deliberate ordering guard: the backend's own terminal chunk
// may arrive concurrently with the manual stop, and whichever lands first
// must be the only terminal transition. Do not remove it.
func (s *Session) StopReply(ctx context.Context) {
	s.mu.Lock()
	if !s.busy || s.current == nil {
		s.mu.Unlock()
		return
	}
	s.busy = false
	handler := s.stopHandler
	grace := s.cfg.StopGrace
	var userID string
	for i := len(s.messages) - 1; i >= 0; i-- {
		if u, ok := s.messages[i].(*model.UserMessage); ok {
			userID = u.ID
			break
		}
	}
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeBusy})

	if userID != "" {
		// Cooperative: the backend may keep streaming until it honors the
		// stop. Teardown does not wait for this call.
		go s.store.StopReply(ctx, userID) //nolint:errcheck
	}
	if handler != nil {
		time.AfterFunc(grace, handler)
	}
}

// =============================================================================
// LOG EDITS
// =============================================================================

// DeleteLog removes a message from the store and the in-memory list.
// A missing in-memory message is a silent no-op.
func (s *Session) DeleteLog(ctx context.Context, id string) error {
	if err := s.store.DeleteLog(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	removed := false
	for i, m := range s.messages {
		if m.LogID() == id && id != "" {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()
	if removed {
		s.emit(Change{Kind: ChangeMessages})
	}
	return nil
}

// UpdateLog overwrites a message's content in the store and the in-memory
// list. A missing in-memory message is a silent no-op.
func (s *Session) UpdateLog(ctx context.Context, id, content string) error {
	if err := s.store.UpdateLog(ctx, id, content); err != nil {
		return err
	}

	s.mu.Lock()
	changed := false
	for _, m := range s.messages {
		if m.LogID() != id || id == "" {
			continue
		}
		switch msg := m.(type) {
		case *model.UserMessage:
			msg.Content = content
			changed = true
		case *model.AssistantMessage:
			msg.Content = content
			changed = true
		case *model.ErrorMessage:
			// Error messages carry a structured payload, not free text.
		}
		break
	}
	s.mu.Unlock()
	if changed {
		s.emit(Change{Kind: ChangeContent})
	}
	return nil
}

// =============================================================================
// PROMPT METADATA
// =============================================================================

// ChangePrompt binds a prompt preset to the conversation.
func (s *Session) ChangePrompt(ctx context.Context, promptID string) error {
	s.mu.Lock()
	chatID := s.index.ID
	s.mu.Unlock()

	if err := s.store.ChangePrompt(ctx, chatID, promptID); err != nil {
		return err
	}

	s.mu.Lock()
	s.index.PromptID = promptID
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeIndex})
	return nil
}

// RemovePrompt clears the conversation's prompt preset.
func (s *Session) RemovePrompt(ctx context.Context) error {
	s.mu.Lock()
	chatID := s.index.ID
	s.mu.Unlock()

	if err := s.store.RemovePrompt(ctx, chatID); err != nil {
		return err
	}

	s.mu.Lock()
	s.index.PromptID = ""
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeIndex})
	return nil
}

// =============================================================================
// INPUT-HISTORY RECALL
// =============================================================================

// PrevUserLog walks backward from the message with the given id (or from the
// end when empty/unknown) to the nearest user message. Only already-loaded
// messages are searched; unfetched history pages are not consulted.
func (s *Session) PrevUserLog(fromID string) (id, content string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := len(s.messages)
	if i := s.positionLocked(fromID); i >= 0 {
		start = i
	}
	for i := start - 1; i >= 0; i-- {
		if u, uok := s.messages[i].(*model.UserMessage); uok {
			return u.ID, u.Content, true
		}
	}
	return "", "", false
}

// NextUserLog walks forward from the message with the given id to the
// nearest user message. With an empty or unknown id there is nothing after
// the end of the list, so it reports no match.
func (s *Session) NextUserLog(fromID string) (id, content string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.positionLocked(fromID)
	if start < 0 {
		return "", "", false
	}
	for i := start + 1; i < len(s.messages); i++ {
		if u, uok := s.messages[i].(*model.UserMessage); uok {
			return u.ID, u.Content, true
		}
	}
	return "", "", false
}

// SearchLogs returns the transient ids of loaded messages whose content
// contains the query, case-folded.
func (s *Session) SearchLogs(query string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if query == "" {
		return nil
	}
	var hits []string
	for _, m := range s.messages {
		if util.FoldContains(m.Text(), query) {
			hits = append(hits, m.TransientID())
		}
	}
	return hits
}

// positionLocked returns the index of the message with the given log id, or
// -1 when empty or not loaded.
func (s *Session) positionLocked(logID string) int {
	if logID == "" {
		return -1
	}
	for i, m := range s.messages {
		if m.LogID() == logID {
			return i
		}
	}
	return -1
}

// =============================================================================
// METADATA REFRESH
// =============================================================================

// refreshIndex re-fetches conversation metadata after a completed reply and
// feeds the cost delta to the sink. Runs on its own goroutine.
func (s *Session) refreshIndex() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.Lock()
	chatID := s.index.ID
	s.mu.Unlock()

	idx, err := s.store.GetIndex(ctx, chatID)
	if err != nil {
		return
	}

	s.mu.Lock()
	prevCost := s.index.CostCents
	s.index = idx
	sink := s.costSink
	s.mu.Unlock()

	if sink != nil && idx.CostCents > prevCost {
		sink.RecordCost(idx.ID, idx.CostCents-prevCost)
	}
	s.emit(Change{Kind: ChangeIndex})
}

// =============================================================================
// TEARDOWN
// =============================================================================

// Close tears the session down: the event subscription is released and the
// ticker goroutine stopped. No background work survives. Safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	old := s.current
	s.current = nil
	s.stopHandler = nil
	s.busy = false
	s.mu.Unlock()

	if old != nil {
		old.shutdown()
	}
}
