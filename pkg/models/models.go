// Package models defines the wire types shared across the relay gateway:
// tool responses, provider tool calls, and think-tool log entries.
package models

import "encoding/json"

// ContentBlock is a single element of a tool response content list.
// Text blocks carry {"type": "text", "text": ...}. Provider output items
// the gateway does not understand pass through as opaque blocks so
// callers never lose information.
type ContentBlock map[string]any

// TextBlock builds a plain text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{"type": "text", "text": text}
}

// Type returns the block's "type" field, or "" when absent.
func (b ContentBlock) Type() string {
	t, _ := b["type"].(string)
	return t
}

// Text returns the block's "text" field, or "" when absent.
func (b ContentBlock) Text() string {
	t, _ := b["text"].(string)
	return t
}

// ToolCall is a provider-issued function call surfaced to the MCP client.
type ToolCall struct {
	ID        string `json:"id"`
	ToolName  string `json:"toolName"`
	Arguments any    `json:"arguments,omitempty"`
}

// ParseArguments decodes a raw argument string into a JSON value.
// Strings that are not valid JSON are wrapped as {"raw": s} so the
// original payload survives.
func ParseArguments(raw string) any {
	if raw == "" {
		return map[string]any{}
	}
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return map[string]any{"raw": raw}
	}
	return payload
}

// ThinkLogEntry records one think-tool invocation made during a chat turn.
type ThinkLogEntry struct {
	CallID   string         `json:"callId"`
	Status   string         `json:"status"` // "ok" or "error"
	Content  []ContentBlock `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToolResponse is the result payload of a tools/call invocation.
// Handler failures are reported here with IsError set, never as
// JSON-RPC protocol errors.
type ToolResponse struct {
	Content   []ContentBlock `json:"content"`
	ToolCalls []ToolCall     `json:"toolCalls,omitempty"`
	IsError   bool           `json:"isError"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewTextResponse builds a successful response with a single text block.
func NewTextResponse(text string) *ToolResponse {
	return &ToolResponse{Content: []ContentBlock{TextBlock(text)}}
}

// NewErrorResponse builds a failed response with a single text block.
func NewErrorResponse(text string) *ToolResponse {
	return &ToolResponse{Content: []ContentBlock{TextBlock(text)}, IsError: true}
}

// EnsureMetadata returns the response metadata map, allocating it on
// first use.
func (r *ToolResponse) EnsureMetadata() map[string]any {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	return r.Metadata
}
