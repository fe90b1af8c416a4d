// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package local is the offline chat backend.
package local

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jeranaias/parley-tui/internal/service"
)

// =============================================================================
// BACKEND CONFIGURATION
// =============================================================================

// BackendConfig holds the local backend's tuning knobs.
type BackendConfig struct {
	// CostCentsPer1K prices generated tokens for the running-cost display.
	// Zero disables cost accounting.
	CostCentsPer1K float64

	// Prompts maps prompt preset ids to system prompt text. A chat bound to
	// an unknown preset generates without a system turn.
	Prompts map[string]string
}

// =============================================================================
// BACKEND
// =============================================================================

// Backend is the local implementation of service.ChatService and
// service.EventChannel: logs persist in SQLite and replies stream from a
// local model server through the in-process bus.
type Backend struct {
	store *Store
	gen   ReplyGenerator
	bus   *bus
	cfg   BackendConfig

	mu      sync.Mutex
	running map[string]context.CancelFunc // user message id -> generation cancel
	closed  bool
}

// NewBackend wires a store and generator into a chat backend.
func NewBackend(store *Store, gen ReplyGenerator, cfg BackendConfig) *Backend {
	return &Backend{
		store:   store,
		gen:     gen,
		bus:     newBus(),
		cfg:     cfg,
		running: make(map[string]context.CancelFunc),
	}
}

// Close cancels all running generations.
func (b *Backend) Close() {
	b.mu.Lock()
	b.closed = true
	cancels := make([]context.CancelFunc, 0, len(b.running))
	for _, cancel := range b.running {
		cancels = append(cancels, cancel)
	}
	b.running = make(map[string]context.CancelFunc)
	b.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// NewChat creates a fresh conversation.
func (b *Backend) NewChat(ctx context.Context, title string, backtrack int) (service.ChatIndex, error) {
	return b.store.CreateChat(ctx, title, backtrack)
}

// Subscribe implements service.EventChannel.
func (b *Backend) Subscribe(channelID string, fn func(service.Chunk)) func() {
	return b.bus.Subscribe(channelID, fn)
}

// =============================================================================
// SEND / RESEND / STOP
// =============================================================================

// Send persists the prompt, creates the reply record, and starts generating.
// The returned assistant message id is the chunk channel for the reply.
func (b *Backend) Send(ctx context.Context, chatID, text string) (service.SendResult, error) {
	idx, err := b.store.GetIndex(ctx, chatID)
	if err != nil {
		return service.SendResult{}, err
	}

	userID, err := b.store.InsertLog(ctx, chatID, service.RoleUser, text, false)
	if err != nil {
		return service.SendResult{}, err
	}
	asstID, err := b.store.InsertLog(ctx, chatID, service.RoleAssistant, "", false)
	if err != nil {
		return service.SendResult{}, err
	}

	b.startGeneration(idx, userID, asstID)
	return service.SendResult{UserMessageID: userID, AssistantMessageID: asstID}, nil
}

// Resend discards everything after the given user message and generates a
// fresh reply under new ids.
func (b *Backend) Resend(ctx context.Context, userMessageID string) (service.SendResult, error) {
	log, chatID, err := b.store.GetLog(ctx, userMessageID)
	if err != nil {
		return service.SendResult{}, err
	}
	if log.Role != service.RoleUser {
		return service.SendResult{}, service.ErrLogNotFound
	}

	b.cancelGeneration(userMessageID)

	idx, err := b.store.GetIndex(ctx, chatID)
	if err != nil {
		return service.SendResult{}, err
	}

	// Replace the old record so the retry gets a fresh id, then rebuild the
	// tail: prompt followed by a new reply placeholder.
	if err := b.store.DeleteLogsAfter(ctx, userMessageID); err != nil {
		return service.SendResult{}, err
	}
	if err := b.store.DeleteLog(ctx, userMessageID); err != nil {
		return service.SendResult{}, err
	}
	userID, err := b.store.InsertLog(ctx, chatID, service.RoleUser, log.Message, false)
	if err != nil {
		return service.SendResult{}, err
	}
	asstID, err := b.store.InsertLog(ctx, chatID, service.RoleAssistant, "", false)
	if err != nil {
		return service.SendResult{}, err
	}

	b.startGeneration(idx, userID, asstID)
	return service.SendResult{UserMessageID: userID, AssistantMessageID: asstID}, nil
}

// StopReply cancels the generation for the given user message. Unknown ids
// are a no-op.
func (b *Backend) StopReply(ctx context.Context, userMessageID string) error {
	b.cancelGeneration(userMessageID)
	return nil
}

func (b *Backend) cancelGeneration(userMessageID string) {
	b.mu.Lock()
	cancel := b.running[userMessageID]
	delete(b.running, userMessageID)
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// =============================================================================
// GENERATION
// =============================================================================

// startGeneration launches the reply producer. Generation outlives the Send
// call, so it runs under its own cancellable context.
func (b *Backend) startGeneration(idx service.ChatIndex, userID, asstID string) {
	ctx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		return
	}
	b.running[userID] = cancel
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.running, userID)
			b.mu.Unlock()
			cancel()
		}()
		b.generate(ctx, idx, userID, asstID)
	}()
}

func (b *Backend) generate(ctx context.Context, idx service.ChatIndex, userID, asstID string) {
	turns, err := b.contextTurns(ctx, idx, asstID)
	if err != nil {
		b.failReply(userID, asstID, err)
		return
	}

	var text strings.Builder
	stats, err := b.gen.Stream(ctx, turns, func(token string) {
		text.WriteString(token)
		b.bus.publish(asstID, service.DataChunk(token))
	})

	// The generation context is detached from callers; persistence uses a
	// fresh background context so a stop still saves the partial reply.
	bg := context.Background()

	switch {
	case err == nil:
		b.store.FinishLog(bg, asstID, text.String(), true)            //nolint:errcheck
		b.store.FinishLog(bg, userID, b.logContent(bg, userID), true) //nolint:errcheck
		if b.cfg.CostCentsPer1K > 0 && stats.TokenCount > 0 {
			b.store.AddCost(bg, idx.ID, float64(stats.TokenCount)/1000*b.cfg.CostCentsPer1K) //nolint:errcheck
		}
		b.bus.publish(asstID, service.DoneChunk())

	case errors.Is(err, context.Canceled):
		// Manual stop. Keep whatever streamed; an untouched placeholder is
		// dropped. The client handles its own teardown, so no chunk is sent.
		if text.Len() > 0 {
			b.store.FinishLog(bg, asstID, text.String(), true) //nolint:errcheck
		} else {
			b.store.DeleteLog(bg, asstID) //nolint:errcheck
		}

	default:
		b.failReply(userID, asstID, err)
	}
}

// failReply drops the reply placeholder, marks the prompt failed, and
// publishes the error chunk.
func (b *Backend) failReply(userID, asstID string, err error) {
	bg := context.Background()
	b.store.DeleteLog(bg, asstID)                                  //nolint:errcheck
	b.store.FinishLog(bg, userID, b.logContent(bg, userID), false) //nolint:errcheck

	var payload service.ErrorPayload
	if errors.Is(err, ErrServerDown) {
		payload = service.NetworkErrorPayload(service.NetworkUnknown, err.Error())
	} else if errors.Is(err, context.DeadlineExceeded) {
		payload = service.NetworkErrorPayload(service.NetworkTimeout, "generation timed out")
	} else {
		payload = service.APIErrorPayload("generation_failed", err.Error())
	}
	b.bus.publish(asstID, service.ErrorChunk(payload))
}

// contextTurns assembles the generation context: the chat's prompt preset
// followed by its recent logs. The reply placeholder itself is skipped.
func (b *Backend) contextTurns(ctx context.Context, idx service.ChatIndex, asstID string) ([]Turn, error) {
	limit := 0
	if idx.Backtrack > 0 {
		limit = idx.Backtrack
	}
	logs, err := b.store.RecentLogs(ctx, idx.ID, limit)
	if err != nil {
		return nil, err
	}

	var turns []Turn
	if idx.PromptID != "" {
		if system, ok := b.cfg.Prompts[idx.PromptID]; ok {
			turns = append(turns, Turn{Role: "system", Content: system})
		}
	}
	for _, log := range logs {
		if log.ID == asstID {
			continue
		}
		turns = append(turns, Turn{Role: string(log.Role), Content: log.Message})
	}
	return turns, nil
}

// logContent reads a record's current content, empty on miss.
func (b *Backend) logContent(ctx context.Context, id string) string {
	log, _, err := b.store.GetLog(ctx, id)
	if err != nil {
		return ""
	}
	return log.Message
}

// =============================================================================
// PASSTHROUGH OPERATIONS
// =============================================================================

// LoadLogPage implements service.ChatService.
func (b *Backend) LoadLogPage(ctx context.Context, chatID string, cursor *string, size int) (service.LogPage, error) {
	return b.store.LoadLogPage(ctx, chatID, cursor, size)
}

// UpdateLog implements service.ChatService.
func (b *Backend) UpdateLog(ctx context.Context, id, content string) error {
	return b.store.UpdateLog(ctx, id, content)
}

// DeleteLog implements service.ChatService.
func (b *Backend) DeleteLog(ctx context.Context, id string) error {
	return b.store.DeleteLog(ctx, id)
}

// ChangePrompt implements service.ChatService.
func (b *Backend) ChangePrompt(ctx context.Context, chatID, promptID string) error {
	return b.store.SetPrompt(ctx, chatID, promptID)
}

// RemovePrompt implements service.ChatService.
func (b *Backend) RemovePrompt(ctx context.Context, chatID string) error {
	return b.store.SetPrompt(ctx, chatID, "")
}

// GetIndex implements service.ChatService.
func (b *Backend) GetIndex(ctx context.Context, chatID string) (service.ChatIndex, error) {
	return b.store.GetIndex(ctx, chatID)
}

// Interface conformance.
var (
	_ service.ChatService  = (*Backend)(nil)
	_ service.EventChannel = (*Backend)(nil)
)
