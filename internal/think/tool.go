package think

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/pkg/models"
)

// ToolSpec describes the locally exposed think tool. It is only
// registered when the upstream client is configured.
func ToolSpec() tools.Spec {
	return tools.Spec{
		Name:        ToolName,
		Description: "Capture intermediate reasoning using the external think-tool.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"thought": map[string]any{
					"type":        "string",
					"description": "The thought to record.",
				},
				"parent_trace_id": map[string]any{
					"type":        "string",
					"description": "Optional trace id to correlate with an existing run.",
				},
			},
			"required":             []any{"thought"},
			"additionalProperties": false,
		},
	}
}

// NewToolHandler exposes the upstream think tool as a local MCP tool.
func NewToolHandler(client Caller) tools.Handler {
	return func(ctx context.Context, args map[string]any) *models.ToolResponse {
		thought, _ := args["thought"].(string)
		if strings.TrimSpace(thought) == "" {
			return models.NewErrorResponse("thought must be a non-empty string")
		}

		forwarded := map[string]any{"thought": thought}
		if parent, ok := args["parent_trace_id"].(string); ok && parent != "" {
			forwarded["parent_trace_id"] = parent
		}

		result, err := client.CallThink(ctx, forwarded, nil)
		if err != nil {
			return models.NewErrorResponse(fmt.Sprintf("think tool unavailable: %v", err))
		}
		if result.IsError {
			return models.NewErrorResponse(result.ErrorText())
		}

		response := &models.ToolResponse{Content: result.Content}
		if len(response.Content) == 0 {
			response.Content = []models.ContentBlock{models.TextBlock("ok")}
		}
		meta := response.EnsureMetadata()
		meta["via"] = "think-tool"
		if len(result.Metadata) > 0 {
			meta["remoteResult"] = result.Metadata
		}
		return response
	}
}
