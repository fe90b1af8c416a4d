// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ws implements the websocket transport to a parley chat backend.
//
// One connection carries both directions of the protocol: request/reply
// calls (chat.send, chat.logs, ...) correlated by id, and server-pushed
// event frames that stream reply chunks per channel. The Client therefore
// implements both service.ChatService and service.EventChannel.
//
// # Wire Format
//
// Every frame is one JSON text message:
//
//	{"type":"call","id":"c1","method":"chat.send","params":{...}}
//	{"type":"reply","id":"c1","result":{...}}
//	{"type":"reply","id":"c1","error":{"code":"chat_not_found","message":"..."}}
//	{"type":"event","channel":"a42","chunk":{"type":"data","data":"Hel"}}
//
// # Concurrency
//
// A single reader goroutine owns inbound traffic; outbound writes are
// serialized by a mutex. Calls may be issued from any goroutine and are
// optionally paced by a rate limiter.
package ws
