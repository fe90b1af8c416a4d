// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ws implements the websocket transport to a parley chat backend.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/parley-tui/internal/service"
)

// =============================================================================
// TEST BACKEND
// =============================================================================

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// testBackend serves one websocket connection and feeds every call frame to
// handle. handle writes its own replies and events through the conn.
type testBackend struct {
	t      *testing.T
	srv    *httptest.Server
	handle func(conn *websocket.Conn, f frame)
}

func newTestBackend(t *testing.T, handle func(conn *websocket.Conn, f frame)) *testBackend {
	t.Helper()
	b := &testBackend{t: t, handle: handle}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Type == frameCall && b.handle != nil {
				b.handle(conn, f)
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *testBackend) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *testBackend) dial(t *testing.T, cfg Config) *Client {
	t.Helper()
	cfg.URL = b.url()
	c, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func replyResult(t *testing.T, conn *websocket.Conn, id string, result any) {
	t.Helper()
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(frame{Type: frameReply, ID: id, Result: raw}))
}

func replyError(t *testing.T, conn *websocket.Conn, id, code, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame{
		Type: frameReply, ID: id, Error: &wireError{Code: code, Message: msg},
	}))
}

func pushChunk(t *testing.T, conn *websocket.Conn, channel string, chunk service.Chunk) {
	t.Helper()
	raw, err := json.Marshal(chunk)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(frame{Type: frameEvent, Channel: channel, Chunk: raw}))
}

// chunkCollector is a concurrency-safe Chunk sink.
type chunkCollector struct {
	mu     sync.Mutex
	chunks []service.Chunk
}

func (c *chunkCollector) add(ch service.Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, ch)
}

func (c *chunkCollector) snapshot() []service.Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]service.Chunk(nil), c.chunks...)
}

// =============================================================================
// CALLS
// =============================================================================

func TestSendRoundTrip(t *testing.T) {
	var gotMethod string
	var gotParams sendParams
	backend := newTestBackend(t, func(conn *websocket.Conn, f frame) {
		gotMethod = f.Method
		require.NoError(t, json.Unmarshal(f.Params, &gotParams))
		replyResult(t, conn, f.ID, service.SendResult{
			UserMessageID:      "u7",
			AssistantMessageID: "a7",
		})
	})
	c := backend.dial(t, Config{})

	res, err := c.Send(context.Background(), "chat1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "u7", res.UserMessageID)
	assert.Equal(t, "a7", res.AssistantMessageID)
	assert.Equal(t, methodSend, gotMethod)
	assert.Equal(t, sendParams{ChatID: "chat1", Text: "hello"}, gotParams)
}

func TestLoadLogPageCursor(t *testing.T) {
	var gotParams logsParams
	next := "cursor-2"
	backend := newTestBackend(t, func(conn *websocket.Conn, f frame) {
		require.NoError(t, json.Unmarshal(f.Params, &gotParams))
		replyResult(t, conn, f.ID, service.LogPage{
			Records: []service.ChatLog{
				{ID: "a1", Role: service.RoleAssistant, Message: "hi", Finished: true},
			},
			NextCursor: &next,
		})
	})
	c := backend.dial(t, Config{})

	cursor := "cursor-1"
	page, err := c.LoadLogPage(context.Background(), "chat1", &cursor, 20)
	require.NoError(t, err)
	require.NotNil(t, gotParams.Cursor)
	assert.Equal(t, "cursor-1", *gotParams.Cursor)
	assert.Equal(t, 20, gotParams.Size)
	require.Len(t, page.Records, 1)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, "cursor-2", *page.NextCursor)
}

func TestErrorCodeMapping(t *testing.T) {
	var callN int
	backend := newTestBackend(t, func(conn *websocket.Conn, f frame) {
		callN++
		switch callN {
		case 1:
			replyError(t, conn, f.ID, codeChatNotFound, "no such chat")
		case 2:
			replyError(t, conn, f.ID, codeLogNotFound, "no such log")
		default:
			replyError(t, conn, f.ID, "teapot", "backend exploded")
		}
	})
	c := backend.dial(t, Config{})

	_, err := c.Send(context.Background(), "nope", "x")
	assert.ErrorIs(t, err, service.ErrChatNotFound)

	err = c.DeleteLog(context.Background(), "nope")
	assert.ErrorIs(t, err, service.ErrLogNotFound)

	err = c.StopReply(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend exploded")
}

func TestConcurrentCallsCorrelate(t *testing.T) {
	backend := newTestBackend(t, func(conn *websocket.Conn, f frame) {
		var p indexParams
		require.NoError(t, json.Unmarshal(f.Params, &p))
		replyResult(t, conn, f.ID, service.ChatIndex{ID: p.ChatID, Title: "t-" + p.ChatID})
	})
	c := backend.dial(t, Config{})

	var wg sync.WaitGroup
	for _, id := range []string{"one", "two", "three", "four"} {
		wg.Add(1)
		go func(chatID string) {
			defer wg.Done()
			idx, err := c.GetIndex(context.Background(), chatID)
			assert.NoError(t, err)
			assert.Equal(t, chatID, idx.ID)
			assert.Equal(t, "t-"+chatID, idx.Title)
		}(id)
	}
	wg.Wait()
}

func TestCallTimeout(t *testing.T) {
	backend := newTestBackend(t, func(conn *websocket.Conn, f frame) {
		// Never reply.
	})
	c := backend.dial(t, Config{CallTimeout: 50 * time.Millisecond})

	_, err := c.Send(context.Background(), "chat1", "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseFailsPendingCalls(t *testing.T) {
	backend := newTestBackend(t, func(conn *websocket.Conn, f frame) {
		// Never reply.
	})
	c := backend.dial(t, Config{})

	errc := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "chat1", "x")
		errc <- err
	}()

	time.Sleep(50 * time.Millisecond)
	c.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, service.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("pending call did not fail on close")
	}

	// Calls after close fail immediately.
	_, err := c.Send(context.Background(), "chat1", "y")
	assert.ErrorIs(t, err, service.ErrClosed)
}

// =============================================================================
// EVENTS
// =============================================================================

func TestEventDeliveryInOrder(t *testing.T) {
	backend := newTestBackend(t, func(conn *websocket.Conn, f frame) {
		replyResult(t, conn, f.ID, service.SendResult{UserMessageID: "u1", AssistantMessageID: "a1"})
		pushChunk(t, conn, "a1", service.DataChunk("Hel"))
		pushChunk(t, conn, "a1", service.DataChunk("lo"))
		pushChunk(t, conn, "a1", service.DoneChunk())
	})
	c := backend.dial(t, Config{})

	var got chunkCollector
	unsub := c.Subscribe("a1", got.add)
	defer unsub()

	_, err := c.Send(context.Background(), "chat1", "hi")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(got.snapshot()) == 3
	}, time.Second, 5*time.Millisecond)

	chunks := got.snapshot()
	assert.Equal(t, service.ChunkData, chunks[0].Kind)
	assert.Equal(t, "Hel", chunks[0].Data)
	assert.Equal(t, "lo", chunks[1].Data)
	assert.Equal(t, service.ChunkDone, chunks[2].Kind)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	backend := newTestBackend(t, func(conn *websocket.Conn, f frame) {
		replyResult(t, conn, f.ID, struct{}{})
		pushChunk(t, conn, "a1", service.DataChunk("late"))
	})
	c := backend.dial(t, Config{})

	var got chunkCollector
	unsub := c.Subscribe("a1", got.add)
	unsub()
	unsub() // idempotent

	require.NoError(t, c.StopReply(context.Background(), "u1"))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, got.snapshot(), "unsubscribed channel receives nothing")
}

func TestEventsForOtherChannelsDropped(t *testing.T) {
	backend := newTestBackend(t, func(conn *websocket.Conn, f frame) {
		replyResult(t, conn, f.ID, struct{}{})
		pushChunk(t, conn, "other", service.DataChunk("not yours"))
		pushChunk(t, conn, "a1", service.DataChunk("yours"))
	})
	c := backend.dial(t, Config{})

	var got chunkCollector
	defer c.Subscribe("a1", got.add)()

	require.NoError(t, c.StopReply(context.Background(), "u1"))
	require.Eventually(t, func() bool {
		return len(got.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "yours", got.snapshot()[0].Data)
}

func TestMalformedChunkBecomesErrorChunk(t *testing.T) {
	backend := newTestBackend(t, func(conn *websocket.Conn, f frame) {
		replyResult(t, conn, f.ID, struct{}{})
		require.NoError(t, conn.WriteJSON(frame{
			Type: frameEvent, Channel: "a1",
			Chunk: json.RawMessage(`{"type":42}`),
		}))
	})
	c := backend.dial(t, Config{})

	var got chunkCollector
	defer c.Subscribe("a1", got.add)()

	require.NoError(t, c.StopReply(context.Background(), "u1"))
	require.Eventually(t, func() bool {
		return len(got.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	chunk := got.snapshot()[0]
	assert.Equal(t, service.ChunkError, chunk.Kind)
	require.NotNil(t, chunk.Err)
	assert.Equal(t, service.ErrorKindNetwork, chunk.Err.Kind)
}

// =============================================================================
// CONNECTION LIFECYCLE
// =============================================================================

func TestDialFailure(t *testing.T) {
	_, err := Dial(context.Background(), Config{
		URL:         "ws://127.0.0.1:1/nope",
		DialTimeout: 200 * time.Millisecond,
	})
	require.Error(t, err)
}

func TestServerDisconnectFailsPendingCalls(t *testing.T) {
	backend := newTestBackend(t, func(conn *websocket.Conn, f frame) {
		conn.Close()
	})
	c := backend.dial(t, Config{})

	_, err := c.Send(context.Background(), "chat1", "x")
	assert.ErrorIs(t, err, service.ErrClosed)
}
