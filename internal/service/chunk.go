// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package service defines the contracts between the chat session engine and
// the backend it talks to.
package service

import (
	"encoding/json"
	"errors"
)

// =============================================================================
// CHUNK TYPE
// =============================================================================

// ChunkKind discriminates the reply chunk union.
type ChunkKind int

const (
	// ChunkData carries an incremental slice of reply text.
	ChunkData ChunkKind = iota
	// ChunkDone terminates the stream successfully.
	ChunkDone
	// ChunkError terminates the stream with a structured error.
	ChunkError
)

// Chunk is one unit of a streamed reply. Exactly one of Data/Err is
// meaningful, selected by Kind.
type Chunk struct {
	Kind ChunkKind
	Data string
	Err  *ErrorPayload
}

// DataChunk builds a data chunk.
func DataChunk(text string) Chunk {
	return Chunk{Kind: ChunkData, Data: text}
}

// DoneChunk builds the terminal success chunk.
func DoneChunk() Chunk {
	return Chunk{Kind: ChunkDone}
}

// ErrorChunk builds the terminal error chunk.
func ErrorChunk(p ErrorPayload) Chunk {
	return Chunk{Kind: ChunkError, Err: &p}
}

// =============================================================================
// ERROR PAYLOAD
// =============================================================================

// ErrorPayloadKind discriminates the error payload union.
type ErrorPayloadKind string

const (
	ErrorKindNetwork ErrorPayloadKind = "network"
	ErrorKindAPI     ErrorPayloadKind = "api"
)

// NetworkErrorType sub-discriminates network failures.
type NetworkErrorType string

const (
	NetworkTimeout NetworkErrorType = "timeout"
	NetworkUnknown NetworkErrorType = "unknown"
)

// ErrorPayload is the structured error carried by an error chunk. Exactly one
// of Network/API is set, selected by Kind.
type ErrorPayload struct {
	Kind    ErrorPayloadKind
	Network *NetworkError
	API     *APIError
}

// NetworkError describes a transport-level failure of the reply stream.
type NetworkError struct {
	Type    NetworkErrorType `json:"type"`
	Message string           `json:"message"`
}

// APIError describes a backend-reported failure of the reply.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// NetworkErrorPayload builds a network-kind payload.
func NetworkErrorPayload(t NetworkErrorType, message string) ErrorPayload {
	return ErrorPayload{
		Kind:    ErrorKindNetwork,
		Network: &NetworkError{Type: t, Message: message},
	}
}

// APIErrorPayload builds an api-kind payload.
func APIErrorPayload(t, message string) ErrorPayload {
	return ErrorPayload{
		Kind: ErrorKindAPI,
		API:  &APIError{Type: t, Message: message},
	}
}

// Summary returns a one-line human-readable description for display.
func (p ErrorPayload) Summary() string {
	switch p.Kind {
	case ErrorKindNetwork:
		if p.Network == nil {
			return "network error"
		}
		if p.Network.Message != "" {
			return p.Network.Message
		}
		return "network " + string(p.Network.Type)
	case ErrorKindAPI:
		if p.API == nil {
			return "api error"
		}
		if p.API.Message != "" {
			return p.API.Message
		}
		return "api error: " + p.API.Type
	}
	return "unknown error"
}

// =============================================================================
// WIRE CODEC
// =============================================================================

// Wire shapes:
//
//	{"type":"data","data":"..."}
//	{"type":"done"}
//	{"type":"error","data":{"type":"network","error":{"type":"timeout","message":"..."}}}
//	{"type":"error","data":{"type":"api","error":{"type":"quota","message":"..."}}}

type chunkWire struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type errorPayloadWire struct {
	Type  ErrorPayloadKind `json:"type"`
	Error json.RawMessage  `json:"error"`
}

// MarshalJSON implements json.Marshaler.
func (c Chunk) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case ChunkData:
		data, err := json.Marshal(c.Data)
		if err != nil {
			return nil, err
		}
		return json.Marshal(chunkWire{Type: "data", Data: data})
	case ChunkDone:
		return json.Marshal(chunkWire{Type: "done"})
	case ChunkError:
		if c.Err == nil {
			return nil, errors.New("service: error chunk without payload")
		}
		data, err := json.Marshal(*c.Err)
		if err != nil {
			return nil, err
		}
		return json.Marshal(chunkWire{Type: "error", Data: data})
	}
	return nil, errors.New("service: unknown chunk kind")
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Chunk) UnmarshalJSON(b []byte) error {
	var w chunkWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch w.Type {
	case "data":
		var text string
		if err := json.Unmarshal(w.Data, &text); err != nil {
			return err
		}
		*c = DataChunk(text)
		return nil
	case "done":
		*c = DoneChunk()
		return nil
	case "error":
		var p ErrorPayload
		if err := json.Unmarshal(w.Data, &p); err != nil {
			return err
		}
		*c = Chunk{Kind: ChunkError, Err: &p}
		return nil
	}
	return errors.New("service: unknown chunk type " + w.Type)
}

// MarshalJSON implements json.Marshaler.
func (p ErrorPayload) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case ErrorKindNetwork:
		if p.Network == nil {
			return nil, errors.New("service: network payload without error")
		}
		inner, err := json.Marshal(*p.Network)
		if err != nil {
			return nil, err
		}
		return json.Marshal(errorPayloadWire{Type: ErrorKindNetwork, Error: inner})
	case ErrorKindAPI:
		if p.API == nil {
			return nil, errors.New("service: api payload without error")
		}
		inner, err := json.Marshal(*p.API)
		if err != nil {
			return nil, err
		}
		return json.Marshal(errorPayloadWire{Type: ErrorKindAPI, Error: inner})
	}
	return nil, errors.New("service: unknown error payload kind")
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *ErrorPayload) UnmarshalJSON(b []byte) error {
	var w errorPayloadWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch w.Type {
	case ErrorKindNetwork:
		var ne NetworkError
		if err := json.Unmarshal(w.Error, &ne); err != nil {
			return err
		}
		*p = ErrorPayload{Kind: ErrorKindNetwork, Network: &ne}
		return nil
	case ErrorKindAPI:
		var ae APIError
		if err := json.Unmarshal(w.Error, &ae); err != nil {
			return err
		}
		*p = ErrorPayload{Kind: ErrorKindAPI, API: &ae}
		return nil
	}
	return errors.New("service: unknown error payload type " + string(w.Type))
}
