package chat

import (
	"encoding/json"

	"github.com/haasonsaas/relay/internal/trace"
	"github.com/haasonsaas/relay/pkg/models"
)

// Normalize folds a raw provider payload into content blocks, tool
// calls, and response metadata. It is a total function: whatever the
// payload looks like, content is never empty when no tool calls were
// extracted.
//
// Extraction runs in three stages. Responses-style output items are
// preferred; chat-completions choices are the fallback; as a last
// resort the canonical JSON of the payload becomes a single text block.
func Normalize(payload map[string]any) ([]models.ContentBlock, []models.ToolCall, map[string]any) {
	content, calls := extractResponsesStyle(payload)

	if len(content) == 0 && len(calls) == 0 {
		content, calls = extractChatCompletionsStyle(payload)
	}

	if len(content) == 0 && len(calls) == 0 {
		raw, err := json.Marshal(payload)
		if err != nil {
			raw = []byte("{}")
		}
		content = []models.ContentBlock{models.TextBlock(string(raw))}
	}

	return content, calls, extractMeta(payload)
}

// extractResponsesStyle walks output (or outputs) items. Unknown item
// types pass through as opaque blocks so hosted-tool results survive.
func extractResponsesStyle(payload map[string]any) ([]models.ContentBlock, []models.ToolCall) {
	items, ok := payload["output"].([]any)
	if !ok {
		items, ok = payload["outputs"].([]any)
	}
	if !ok {
		return nil, nil
	}

	var content []models.ContentBlock
	var calls []models.ToolCall

	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		switch item["type"] {
		case "message":
			blocks, nested := messageContent(item)
			content = append(content, blocks...)
			calls = append(calls, nested...)
		case "function_call", "tool_call":
			if call, ok := toolCallFromItem(item); ok {
				calls = append(calls, call)
			}
		case "output_text", "text":
			if text, ok := item["text"].(string); ok {
				content = append(content, models.TextBlock(text))
			}
		default:
			content = append(content, models.ContentBlock(item))
		}
	}

	return content, calls
}

// messageContent extracts a message item's blocks, lifting any nested
// tool calls out of the content list.
func messageContent(item map[string]any) ([]models.ContentBlock, []models.ToolCall) {
	blocks, ok := item["content"].([]any)
	if !ok {
		return nil, nil
	}

	var content []models.ContentBlock
	var calls []models.ToolCall
	for _, raw := range blocks {
		block, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch block["type"] {
		case "function_call", "tool_call":
			if call, ok := toolCallFromItem(block); ok {
				calls = append(calls, call)
			}
		case "output_text", "text":
			if text, ok := block["text"].(string); ok {
				content = append(content, models.TextBlock(text))
			} else {
				content = append(content, models.ContentBlock(block))
			}
		default:
			content = append(content, models.ContentBlock(block))
		}
	}
	return content, calls
}

// toolCallFromItem builds a ToolCall from a function_call-shaped item.
// call_id is preferred, then id, then tool_call_id; string arguments
// are parsed as JSON with a raw-text fallback.
func toolCallFromItem(item map[string]any) (models.ToolCall, bool) {
	name, _ := item["name"].(string)
	arguments := item["arguments"]
	if fn, ok := item["function"].(map[string]any); ok {
		if name == "" {
			name, _ = fn["name"].(string)
		}
		if arguments == nil {
			arguments = fn["arguments"]
		}
	}
	if name == "" {
		return models.ToolCall{}, false
	}

	id, _ := item["call_id"].(string)
	if id == "" {
		id, _ = item["id"].(string)
	}
	if id == "" {
		id, _ = item["tool_call_id"].(string)
	}

	call := models.ToolCall{ID: id, ToolName: name}
	switch args := arguments.(type) {
	case string:
		call.Arguments = models.ParseArguments(args)
	case map[string]any:
		call.Arguments = args
	default:
		call.Arguments = map[string]any{}
	}
	return call, true
}

// extractChatCompletionsStyle reads the first choice of a
// chat-completions payload.
func extractChatCompletionsStyle(payload map[string]any) ([]models.ContentBlock, []models.ToolCall) {
	choices, ok := payload["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil, nil
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return nil, nil
	}
	message, ok := choice["message"].(map[string]any)
	if !ok {
		return nil, nil
	}

	var content []models.ContentBlock
	if text, ok := message["content"].(string); ok && text != "" {
		content = append(content, models.TextBlock(text))
	}

	var calls []models.ToolCall
	if rawCalls, ok := message["tool_calls"].([]any); ok {
		for _, raw := range rawCalls {
			if item, ok := raw.(map[string]any); ok {
				if call, ok := toolCallFromItem(item); ok {
					calls = append(calls, call)
				}
			}
		}
	}
	return content, calls
}

// extractMeta pulls response-level fields: id, usage, finish reason
// (status, or finish_reason when absent), model, and the deserialized
// metadata echo.
func extractMeta(payload map[string]any) map[string]any {
	meta := map[string]any{}

	if id, ok := payload["id"].(string); ok && id != "" {
		meta["responseId"] = id
	}
	if usage, ok := payload["usage"]; ok && usage != nil {
		meta["usage"] = usage
	}
	if status, ok := payload["status"].(string); ok && status != "" {
		meta["finishReason"] = status
	} else if reason, ok := payload["finish_reason"].(string); ok && reason != "" {
		meta["finishReason"] = reason
	}
	if model, ok := payload["model"].(string); ok && model != "" {
		meta["model"] = model
	}
	if metadata, ok := payload["metadata"].(map[string]any); ok && len(metadata) > 0 {
		meta["metadata"] = trace.DeserializeMetadata(metadata)
	}

	return meta
}
