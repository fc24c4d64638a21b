// Package chat implements the chat tool: request validation, provider
// payload construction, response normalization, and the bounded
// orchestration loop that drives think calls and follow-ups.
package chat

import (
	"fmt"
)

// validRoles are the message roles the provider accepts.
var validRoles = map[string]bool{
	"user":      true,
	"developer": true,
	"assistant": true,
	"system":    true,
	"tool":      true,
}

// Request is a validated chat invocation.
type Request struct {
	Model    string
	Messages []map[string]any
	Tools    []map[string]any
	Metadata map[string]any

	Temperature       *float64
	TopP              *float64
	MaxTokens         *int
	ToolChoice        any
	ParallelToolCalls *bool
}

// ParseRequest validates raw tool arguments into a Request. The
// defaultModel fills in a missing model; an empty model after that is
// an error, as is an empty or malformed messages array.
func ParseRequest(args map[string]any, defaultModel string) (*Request, error) {
	req := &Request{}

	model, _ := args["model"].(string)
	if model == "" {
		model = defaultModel
	}
	if model == "" {
		return nil, fmt.Errorf("model must be a non-empty string")
	}
	req.Model = model

	rawMessages, ok := args["messages"].([]any)
	if !ok || len(rawMessages) == 0 {
		return nil, fmt.Errorf("messages must be a non-empty array")
	}
	for i, raw := range rawMessages {
		message, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("messages[%d] must be an object", i)
		}
		role, _ := message["role"].(string)
		if !validRoles[role] {
			return nil, fmt.Errorf("messages[%d] has unsupported role %q", i, role)
		}
		if _, ok := message["content"]; !ok {
			return nil, fmt.Errorf("messages[%d] is missing content", i)
		}
		req.Messages = append(req.Messages, normalizeMessage(message))
	}

	if rawTools, ok := args["tools"].([]any); ok {
		for _, raw := range rawTools {
			if tool, ok := raw.(map[string]any); ok {
				req.Tools = append(req.Tools, tool)
			}
		}
	}

	if metadata, ok := args["metadata"].(map[string]any); ok {
		req.Metadata = metadata
	}

	if temp, ok := numberValue(args["temperature"]); ok {
		req.Temperature = &temp
	}
	if topP, ok := numberValue(args["top_p"]); ok {
		req.TopP = &topP
	}
	if max, ok := numberValue(args["max_tokens"]); ok {
		maxInt := int(max)
		req.MaxTokens = &maxInt
	}
	if choice, ok := args["tool_choice"]; ok {
		req.ToolChoice = choice
	} else if choice, ok := args["toolChoice"]; ok {
		req.ToolChoice = choice
	}
	if parallel, ok := args["parallelToolCalls"].(bool); ok {
		req.ParallelToolCalls = &parallel
	} else if parallel, ok := args["parallel_tool_calls"].(bool); ok {
		req.ParallelToolCalls = &parallel
	}

	return req, nil
}

// normalizeMessage keeps only object items of list-shaped content;
// string content passes through unchanged.
func normalizeMessage(message map[string]any) map[string]any {
	content, ok := message["content"].([]any)
	if !ok {
		return message
	}

	filtered := make([]any, 0, len(content))
	for _, item := range content {
		if block, ok := item.(map[string]any); ok {
			filtered = append(filtered, block)
		}
	}

	out := make(map[string]any, len(message))
	for key, value := range message {
		out[key] = value
	}
	out["content"] = filtered
	return out
}

func numberValue(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	}
	return 0, false
}
