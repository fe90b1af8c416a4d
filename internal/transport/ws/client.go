// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ws implements the websocket transport to a parley chat backend.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/jeranaias/parley-tui/internal/service"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds configuration options for the websocket client.
type Config struct {
	// URL is the backend websocket endpoint (ws:// or wss://).
	URL string

	// Token is sent as a bearer token on the upgrade request.
	Token string

	// DialTimeout bounds the initial handshake (default: 10s).
	DialTimeout time.Duration

	// CallTimeout bounds a single request/reply round trip (default: 30s).
	CallTimeout time.Duration

	// PingInterval is the keepalive cadence (default: 30s). The read side
	// allows twice this before declaring the connection dead.
	PingInterval time.Duration

	// RateLimit caps outgoing calls per second; zero means unlimited.
	RateLimit float64

	// RateBurst is the limiter burst size (default: 4 when RateLimit is set).
	RateBurst int
}

func (c Config) withDefaults() Config {
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.RateLimit > 0 && c.RateBurst == 0 {
		c.RateBurst = 4
	}
	return c
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a websocket RPC client implementing both service.ChatService and
// service.EventChannel over one connection.
//
// A single reader goroutine owns all inbound traffic: replies are matched to
// pending calls by id, event frames are dispatched to the channel subscriber.
// Writes are serialized by a mutex because gorilla/websocket allows only one
// concurrent writer.
type Client struct {
	cfg     Config
	conn    *websocket.Conn
	limiter *rate.Limiter

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[string]chan frame
	subs    map[string]func(service.Chunk)
	closed  bool

	done chan struct{}
}

// Dial connects to the backend and starts the reader.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, &service.ServiceError{Message: "connect failed: " + err.Error()}
	}
	if resp != nil {
		resp.Body.Close()
	}

	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = cfg.RateBurst
	}

	c := &Client{
		cfg:     cfg,
		conn:    conn,
		limiter: rate.NewLimiter(limit, burst),
		pending: make(map[string]chan frame),
		subs:    make(map[string]func(service.Chunk)),
		done:    make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(2 * cfg.PingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * cfg.PingInterval))
	})

	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// Close shuts the connection down. Pending calls fail with ErrClosed; the
// event subscriber is not invoked again.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.writeMu.Lock()
	// Best-effort close handshake; the peer may already be gone.
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second)) //nolint:errcheck
	c.writeMu.Unlock()

	err := c.conn.Close()
	c.failPending()
	return err
}

// =============================================================================
// READ SIDE
// =============================================================================

func (c *Client) readLoop() {
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.teardown()
			return
		}
		switch f.Type {
		case frameReply:
			c.deliverReply(f)
		case frameEvent:
			c.dispatchEvent(f)
		}
	}
}

func (c *Client) deliverReply(f frame) {
	c.mu.Lock()
	ch := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.mu.Unlock()
	if ch != nil {
		ch <- f
	}
}

func (c *Client) dispatchEvent(f frame) {
	c.mu.Lock()
	fn := c.subs[f.Channel]
	c.mu.Unlock()
	if fn == nil {
		return
	}
	var chunk service.Chunk
	if err := json.Unmarshal(f.Chunk, &chunk); err != nil {
		// A chunk the client cannot decode terminates the stream visibly
		// rather than silently stalling it.
		chunk = service.ErrorChunk(service.NetworkErrorPayload(
			service.NetworkUnknown, "malformed stream chunk"))
	}
	fn(chunk)
}

// teardown runs when the reader dies: the connection is unusable, so every
// pending call fails and the client is marked closed.
func (c *Client) teardown() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	c.mu.Unlock()
	c.conn.Close()
	c.failPending()
}

func (c *Client) failPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan frame)
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

// =============================================================================
// KEEPALIVE
// =============================================================================

func (c *Client) pingLoop() {
	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				c.teardown()
				return
			}
		}
	}
}

// =============================================================================
// CALLS
// =============================================================================

// call performs one request/reply round trip. result may be nil for calls
// with no payload.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	raw, err := json.Marshal(params)
	if err != nil {
		return &service.ServiceError{Message: "encode params: " + err.Error()}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return service.ErrClosed
	}
	c.nextID++
	id := "c" + strconv.FormatUint(c.nextID, 10)
	ch := make(chan frame, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	f := frame{Type: frameCall, ID: id, Method: method, Params: raw}
	c.writeMu.Lock()
	err = c.conn.WriteJSON(f)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return &service.ServiceError{Message: "write failed: " + err.Error()}
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-c.done:
		return service.ErrClosed
	case reply, ok := <-ch:
		if !ok {
			return service.ErrClosed
		}
		if reply.Error != nil {
			return reply.Error.toError()
		}
		if result != nil && len(reply.Result) > 0 {
			if err := json.Unmarshal(reply.Result, result); err != nil {
				return &service.ServiceError{Message: "decode result: " + err.Error()}
			}
		}
		return nil
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// =============================================================================
// EVENT CHANNEL
// =============================================================================

// Subscribe registers the callback for a reply channel. The backend pushes
// chunk events for every reply it is producing; frames for channels without a
// subscriber are dropped.
//
// The returned unsubscribe is idempotent.
func (c *Client) Subscribe(channelID string, fn func(service.Chunk)) func() {
	c.mu.Lock()
	c.subs[channelID] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, channelID)
			c.mu.Unlock()
		})
	}
}

// =============================================================================
// CHAT SERVICE
// =============================================================================

// Send persists a user prompt and starts a reply stream.
func (c *Client) Send(ctx context.Context, chatID, text string) (service.SendResult, error) {
	var res service.SendResult
	err := c.call(ctx, methodSend, sendParams{ChatID: chatID, Text: text}, &res)
	return res, err
}

// Resend retries the reply to an existing user message.
func (c *Client) Resend(ctx context.Context, userMessageID string) (service.SendResult, error) {
	var res service.SendResult
	err := c.call(ctx, methodResend, resendParams{UserMessageID: userMessageID}, &res)
	return res, err
}

// StopReply asks the backend to stop producing a reply.
func (c *Client) StopReply(ctx context.Context, userMessageID string) error {
	return c.call(ctx, methodStop, stopParams{UserMessageID: userMessageID}, nil)
}

// LoadLogPage fetches one page of chat history, newest first.
func (c *Client) LoadLogPage(ctx context.Context, chatID string, cursor *string, size int) (service.LogPage, error) {
	var page service.LogPage
	err := c.call(ctx, methodLogs, logsParams{ChatID: chatID, Cursor: cursor, Size: size}, &page)
	return page, err
}

// UpdateLog overwrites a stored message's content.
func (c *Client) UpdateLog(ctx context.Context, id, content string) error {
	return c.call(ctx, methodUpdateLog, updateLogParams{ID: id, Content: content}, nil)
}

// DeleteLog removes a stored message.
func (c *Client) DeleteLog(ctx context.Context, id string) error {
	return c.call(ctx, methodDeleteLog, deleteLogParams{ID: id}, nil)
}

// ChangePrompt binds a prompt preset to the chat.
func (c *Client) ChangePrompt(ctx context.Context, chatID, promptID string) error {
	return c.call(ctx, methodChangePrompt, promptParams{ChatID: chatID, PromptID: promptID}, nil)
}

// RemovePrompt clears the chat's prompt preset.
func (c *Client) RemovePrompt(ctx context.Context, chatID string) error {
	return c.call(ctx, methodRemovePrompt, promptParams{ChatID: chatID}, nil)
}

// GetIndex fetches conversation metadata.
func (c *Client) GetIndex(ctx context.Context, chatID string) (service.ChatIndex, error) {
	var idx service.ChatIndex
	err := c.call(ctx, methodIndex, indexParams{ChatID: chatID}, &idx)
	return idx, err
}

// Interface conformance.
var (
	_ service.ChatService  = (*Client)(nil)
	_ service.EventChannel = (*Client)(nil)
)
