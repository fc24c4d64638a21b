package think

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/pkg/models"
)

// ToolName is the reserved tool name dispatched to the upstream server.
const ToolName = "think"

// IsThinkCall reports whether a provider tool call targets the think tool.
func IsThinkCall(call models.ToolCall) bool {
	return call.ToolName == ToolName
}

// Outcome is the result of processing one turn's tool calls.
type Outcome struct {
	// FollowUps holds function_call_output items to resubmit to the
	// provider, in original call order.
	FollowUps []map[string]any

	// Logs records every think invocation attempted this turn.
	Logs []models.ThinkLogEntry

	// Remaining are the non-think calls, deferred to the MCP client.
	Remaining []models.ToolCall
}

// Processor dispatches think calls sequentially and accumulates logs.
type Processor struct {
	client Caller
	logger *observability.Logger
}

// NewProcessor creates a think-call processor. client may be nil when
// the think tool is disabled; calls then fall through to Remaining.
func NewProcessor(client Caller, logger *observability.Logger) *Processor {
	return &Processor{client: client, logger: logger}
}

// Process partitions the turn's tool calls and invokes the upstream
// think tool for each think call. The returned error aborts the chat
// turn; the Outcome is valid either way so accumulated logs survive.
func (p *Processor) Process(ctx context.Context, calls []models.ToolCall, metadata map[string]any) (*Outcome, error) {
	outcome := &Outcome{}

	for _, call := range calls {
		if !IsThinkCall(call) || p.client == nil {
			outcome.Remaining = append(outcome.Remaining, call)
			continue
		}

		if strings.TrimSpace(call.ID) == "" {
			return outcome, fmt.Errorf("think call is missing a call_id")
		}

		args, _ := call.Arguments.(map[string]any)
		if args == nil {
			args = map[string]any{}
		}

		result, err := p.client.CallThink(ctx, args, metadata)
		if err != nil {
			outcome.Logs = append(outcome.Logs, models.ThinkLogEntry{
				CallID:  call.ID,
				Status:  "error",
				Content: []models.ContentBlock{models.TextBlock(err.Error())},
			})
			return outcome, fmt.Errorf("think call %s: %w", call.ID, err)
		}

		status := "ok"
		if result.IsError {
			status = "error"
		}
		outcome.Logs = append(outcome.Logs, models.ThinkLogEntry{
			CallID:   call.ID,
			Status:   status,
			Content:  result.Content,
			Metadata: result.Metadata,
		})

		if result.IsError {
			return outcome, fmt.Errorf("think call %s: %s", call.ID, result.ErrorText())
		}

		outcome.FollowUps = append(outcome.FollowUps, functionCallOutput(call.ID, result))

		if p.logger != nil {
			p.logger.Debug(ctx, "think call completed", "call_id", call.ID)
		}
	}

	return outcome, nil
}

// functionCallOutput builds the follow-up input item for one completed
// think call. Empty results degrade to the literal "ok" so the provider
// always receives non-empty output.
func functionCallOutput(callID string, result *Result) map[string]any {
	parts := make([]string, 0, len(result.Content))
	for _, block := range result.Content {
		if text := strings.TrimSpace(block.Text()); text != "" {
			parts = append(parts, text)
		}
	}
	text := strings.Join(parts, "\n\n")
	if text == "" {
		text = "ok"
	}

	return map[string]any{
		"type":    "function_call_output",
		"call_id": callID,
		"output": []any{
			map[string]any{"type": "input_text", "text": text},
		},
	}
}
