// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package mcp

import "encoding/json"

const jsonrpcVersion = "2.0"

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

type rpcRequest struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newResult(id json.RawMessage, result interface{}) *rpcResponse {
	return &rpcResponse{Jsonrpc: jsonrpcVersion, ID: id, Result: result}
}

func newError(id json.RawMessage, code int, message string) *rpcResponse {
	return &rpcResponse{Jsonrpc: jsonrpcVersion, ID: id, Error: &rpcError{Code: code, Message: message}}
}

// toolResult is the MCP tools/call result shape. Tool-level failures are
// reported inside the result with isError, not as JSON-RPC errors.
type toolResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textResult(text string) *toolResult {
	return &toolResult{Content: []toolContent{{Type: "text", Text: text}}}
}

func errorResult(text string) *toolResult {
	return &toolResult{Content: []toolContent{{Type: "text", Text: text}}, IsError: true}
}
