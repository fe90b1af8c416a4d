// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkWireFormat(t *testing.T) {
	data, err := json.Marshal(DataChunk("Hel"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"data","data":"Hel"}`, string(data))

	data, err = json.Marshal(DoneChunk())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"done"}`, string(data))

	data, err = json.Marshal(ErrorChunk(NetworkErrorPayload(NetworkTimeout, "Timeout")))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"error","data":{"type":"network","error":{"type":"timeout","message":"Timeout"}}}`,
		string(data))
}

func TestChunkDecode(t *testing.T) {
	var c Chunk
	require.NoError(t, json.Unmarshal([]byte(`{"type":"data","data":"lo"}`), &c))
	assert.Equal(t, ChunkData, c.Kind)
	assert.Equal(t, "lo", c.Data)

	require.NoError(t, json.Unmarshal([]byte(`{"type":"done"}`), &c))
	assert.Equal(t, ChunkDone, c.Kind)

	raw := `{"type":"error","data":{"type":"api","error":{"type":"quota","message":"limit reached"}}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	require.Equal(t, ChunkError, c.Kind)
	require.NotNil(t, c.Err)
	assert.Equal(t, ErrorKindAPI, c.Err.Kind)
	require.NotNil(t, c.Err.API)
	assert.Equal(t, "quota", c.Err.API.Type)

	assert.Error(t, json.Unmarshal([]byte(`{"type":"bogus"}`), &c))
}

func TestErrorPayloadSummary(t *testing.T) {
	assert.Equal(t, "Timeout", NetworkErrorPayload(NetworkTimeout, "Timeout").Summary())
	assert.Equal(t, "network timeout", NetworkErrorPayload(NetworkTimeout, "").Summary())
	assert.Equal(t, "limit", APIErrorPayload("quota", "limit").Summary())
	assert.Equal(t, "api error: quota", APIErrorPayload("quota", "").Summary())
}

func TestServiceErrorIs(t *testing.T) {
	err := &ServiceError{Message: "log not found"}
	assert.ErrorIs(t, err, ErrLogNotFound)
	assert.NotErrorIs(t, err, ErrChatNotFound)
}
