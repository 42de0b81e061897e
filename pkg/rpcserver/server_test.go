package rpcserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() *Server {
	return New(context.Background(), nil, nil, 4242, true)
}

func TestHandleLineInitialize(t *testing.T) {
	s := newTestServer()
	resp, has := s.HandleLine([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.True(t, has)
	assert.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "2024-11-05", result["protocolVersion"])
}

func TestHandleLineInitializedNotification(t *testing.T) {
	s := newTestServer()
	_, has := s.HandleLine([]byte(`{"jsonrpc":"2.0","method":"initialized"}`))
	assert.False(t, has)
}

func TestHandleLineParseErrorIsSkippedSilently(t *testing.T) {
	s := newTestServer()
	_, has := s.HandleLine([]byte(`not json`))
	assert.False(t, has)
}

func TestHandleLineMissingMethodIsSkippedSilently(t *testing.T) {
	s := newTestServer()
	_, has := s.HandleLine([]byte(`{"jsonrpc":"2.0","id":1}`))
	assert.False(t, has)
}

func TestHandleLineMethodNotFound(t *testing.T) {
	s := newTestServer()
	resp, has := s.HandleLine([]byte(`{"jsonrpc":"2.0","id":2,"method":"nonexistent"}`))
	require.True(t, has)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestHandleLineToolsListIncludesAllElevenTools(t *testing.T) {
	s := newTestServer()
	resp, has := s.HandleLine([]byte(`{"jsonrpc":"2.0","id":3,"method":"tools/list"}`))
	require.True(t, has)

	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	tools, ok := result["tools"].([]toolListEntry)
	require.True(t, ok)
	assert.Len(t, tools, 11)
}

func TestHandleLineToolsCallUnknownTool(t *testing.T) {
	s := newTestServer()
	resp, has := s.HandleLine([]byte(`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"bogus"}}`))
	require.True(t, has)
	result, ok := resp.Result.(toolResult)
	require.True(t, ok)
	assert.True(t, result.IsError)
}

func TestHandleLineToolsCallAgentToolsWithoutPool(t *testing.T) {
	s := newTestServer()
	resp, has := s.HandleLine([]byte(`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"agent_list"}}`))
	require.True(t, has)
	result, ok := resp.Result.(toolResult)
	require.True(t, ok)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "not available")
}

func TestHandleLinePing(t *testing.T) {
	s := newTestServer()
	resp, has := s.HandleLine([]byte(`{"jsonrpc":"2.0","id":6,"method":"ping"}`))
	require.True(t, has)
	assert.Nil(t, resp.Error)
}

func TestHandleLineServerStatusReportsControlServerPID(t *testing.T) {
	s := newTestServer()
	resp, has := s.HandleLine([]byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"server_status"}}`))
	require.True(t, has)
	result, ok := resp.Result.(toolResult)
	require.True(t, ok)
	require.Len(t, result.Content, 1)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &status))
	assert.EqualValues(t, 4242, status["control_server_pid"])
}
