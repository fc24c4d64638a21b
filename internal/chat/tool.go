package chat

import (
	"context"

	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/pkg/models"
)

// ToolSpec describes the chat tool as registered in the catalog.
func ToolSpec() tools.Spec {
	return tools.Spec{
		Name:        "chat",
		Description: "Run a model conversation with bounded tool iteration against the configured provider.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"model": map[string]any{
					"type":        "string",
					"description": "Model identifier; the server default applies when omitted.",
				},
				"messages": map[string]any{
					"type":     "array",
					"minItems": 1,
					"items": map[string]any{
						"type":     "object",
						"required": []any{"role", "content"},
					},
				},
				"tools": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "object"},
				},
				"tool_choice": map[string]any{
					"type": []any{"string", "object"},
				},
				"toolChoice": map[string]any{
					"type": []any{"string", "object"},
				},
				"metadata": map[string]any{
					"type": "object",
				},
				"temperature": map[string]any{
					"type": "number",
				},
				"top_p": map[string]any{
					"type": "number",
				},
				"max_tokens": map[string]any{
					"type":    "integer",
					"minimum": 1,
				},
				"parallel_tool_calls": map[string]any{
					"type": "boolean",
				},
				"parallelToolCalls": map[string]any{
					"type": "boolean",
				},
			},
			"required":             []any{"messages"},
			"additionalProperties": false,
		},
	}
}

// NewToolHandler adapts the orchestrator to the tool registry.
func NewToolHandler(orchestrator *Orchestrator) tools.Handler {
	return func(ctx context.Context, args map[string]any) *models.ToolResponse {
		return orchestrator.Run(ctx, args)
	}
}
