package chat

import (
	"github.com/haasonsaas/relay/internal/think"
	"github.com/haasonsaas/relay/internal/trace"
)

// defaultTemperature applies when the caller does not set one.
const defaultTemperature = 0.7

// BuildPayload constructs the first provider submission from a
// validated request. When the think tool is enabled and the caller did
// not supply it, its function schema is injected so the provider can
// issue think calls.
func BuildPayload(req *Request, thinkEnabled bool) map[string]any {
	payload := map[string]any{
		"model": req.Model,
		"input": messagesInput(req.Messages),
	}

	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	} else {
		payload["temperature"] = defaultTemperature
	}

	tools := append([]map[string]any{}, req.Tools...)
	if thinkEnabled && !hasThinkTool(tools) {
		tools = append(tools, ThinkFunctionSchema())
	}
	if len(tools) > 0 {
		payload["tools"] = toolsInput(tools)
	}

	if req.ToolChoice != nil {
		payload["tool_choice"] = req.ToolChoice
	}
	if req.TopP != nil {
		payload["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		payload["max_output_tokens"] = *req.MaxTokens
	}
	if req.ParallelToolCalls != nil {
		payload["parallel_tool_calls"] = *req.ParallelToolCalls
	}
	if len(req.Metadata) > 0 {
		payload["metadata"] = trace.SerializeMetadata(req.Metadata)
	}

	return payload
}

// FollowUpPayload constructs the continuation submission carrying the
// function_call_output items for the previous response.
func FollowUpPayload(model, previousResponseID string, followUps []map[string]any, metadata map[string]any) map[string]any {
	input := make([]any, 0, len(followUps))
	for _, item := range followUps {
		input = append(input, item)
	}

	payload := map[string]any{
		"model":                model,
		"previous_response_id": previousResponseID,
		"input":                input,
	}
	if len(metadata) > 0 {
		payload["metadata"] = trace.SerializeMetadata(metadata)
	}
	return payload
}

// ThinkFunctionSchema is the function tool definition advertised to
// the provider for the think tool.
func ThinkFunctionSchema() map[string]any {
	spec := think.ToolSpec()
	return map[string]any{
		"type":        "function",
		"name":        spec.Name,
		"description": spec.Description,
		"parameters":  spec.InputSchema,
	}
}

func hasThinkTool(tools []map[string]any) bool {
	for _, tool := range tools {
		if tool["name"] == think.ToolName {
			return true
		}
		if fn, ok := tool["function"].(map[string]any); ok && fn["name"] == think.ToolName {
			return true
		}
	}
	return false
}

func messagesInput(messages []map[string]any) []any {
	input := make([]any, 0, len(messages))
	for _, message := range messages {
		input = append(input, message)
	}
	return input
}

func toolsInput(tools []map[string]any) []any {
	input := make([]any, 0, len(tools))
	for _, tool := range tools {
		input = append(input, tool)
	}
	return input
}
