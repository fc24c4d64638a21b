package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/provider"
	"github.com/haasonsaas/relay/internal/think"
	"github.com/haasonsaas/relay/internal/trace"
	"github.com/haasonsaas/relay/pkg/models"
)

// cancelledText is the stable message for cancelled chat requests.
const cancelledText = "chat request cancelled"

// maxTurnsText is the stable message when the loop guardrail fires.
const maxTurnsText = "Reached maximum tool iterations without completion."

// pollExhaustedText reports a response that never reached a terminal
// status within the poll budget.
const pollExhaustedText = "provider response did not reach a terminal status within the poll budget"

// ErrMaxTurns is the loop guardrail sentinel.
var ErrMaxTurns = errors.New("maximum tool iterations reached")

// Provider is the orchestrator's view of the Responses API client.
type Provider interface {
	Create(ctx context.Context, payload map[string]any) (map[string]any, error)
	Retrieve(ctx context.Context, responseID string) (map[string]any, error)
	CanRetrieve() bool
}

// ThinkRunner processes a turn's tool calls; *think.Processor
// implements it.
type ThinkRunner interface {
	Process(ctx context.Context, calls []models.ToolCall, metadata map[string]any) (*think.Outcome, error)
}

// OrchestratorConfig wires the chat loop's collaborators.
type OrchestratorConfig struct {
	Provider Provider
	Poller   *provider.Poller
	Think    ThinkRunner
	Trace    *trace.Adapter

	// DefaultModel fills requests that omit a model.
	DefaultModel string

	// MaxTurns caps provider submissions per invocation.
	MaxTurns int

	// ThinkEnabled controls think schema injection into payloads.
	ThinkEnabled bool

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Orchestrator drives the chat loop: submit, resolve, normalize,
// dispatch think calls, follow up with their outputs, repeat. It is
// the only component that mutates conversation state in flight.
type Orchestrator struct {
	provider     Provider
	poller       *provider.Poller
	think        ThinkRunner
	trace        *trace.Adapter
	defaultModel string
	maxTurns     int
	thinkEnabled bool
	logger       *observability.Logger
	metrics      *observability.Metrics
}

// NewOrchestrator creates a chat orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	maxTurns := cfg.MaxTurns
	if maxTurns < 1 {
		maxTurns = 1
	}
	return &Orchestrator{
		provider:     cfg.Provider,
		poller:       cfg.Poller,
		think:        cfg.Think,
		trace:        cfg.Trace,
		defaultModel: cfg.DefaultModel,
		maxTurns:     maxTurns,
		thinkEnabled: cfg.ThinkEnabled,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

// Run executes one chat invocation. All failures surface as
// isError:true tool responses; accumulated think logs are preserved in
// metadata regardless of outcome.
func (o *Orchestrator) Run(ctx context.Context, args map[string]any) *models.ToolResponse {
	req, err := ParseRequest(args, o.defaultModel)
	if err != nil {
		return models.NewErrorResponse(err.Error())
	}

	tctx := trace.ExtractContext(req.Metadata)
	run := o.trace.Start(ctx, tctx, map[string]any{"model": req.Model})

	response := o.loop(ctx, req)

	if run != nil {
		response.EnsureMetadata()[trace.MetadataKey] = run.MetadataPayload()
		outputs := map[string]any{"isError": response.IsError}
		if response.IsError {
			o.trace.FinalizeError(ctx, run, outputs, firstText(response.Content))
		} else {
			o.trace.FinalizeSuccess(ctx, run, outputs)
		}
	}
	return response
}

func (o *Orchestrator) loop(ctx context.Context, req *Request) *models.ToolResponse {
	payload := BuildPayload(req, o.thinkEnabled)

	var logs []models.ThinkLogEntry
	turns := 0

	defer func() {
		if o.metrics != nil {
			o.metrics.ChatTurns.Observe(float64(turns))
		}
	}()

	for turns < o.maxTurns {
		if ctx.Err() != nil {
			return o.failure(cancelledText, logs, nil)
		}
		turns++

		raw, err := o.provider.Create(ctx, payload)
		if err != nil {
			if ctx.Err() != nil {
				return o.failure(cancelledText, logs, nil)
			}
			return o.failure(o.providerErrorText(ctx, err), logs, nil)
		}

		raw = o.resolve(ctx, raw)
		if ctx.Err() != nil {
			return o.failure(cancelledText, logs, nil)
		}
		if !provider.IsTerminal(provider.Status(raw)) {
			meta := map[string]any{}
			if id := provider.ResponseID(raw); id != "" {
				meta["responseId"] = id
			}
			return o.failure(pollExhaustedText, logs, meta)
		}

		content, calls, meta := Normalize(raw)

		if len(calls) == 0 {
			return o.success(content, nil, meta, logs)
		}

		outcome, err := o.think.Process(ctx, calls, req.Metadata)
		if outcome != nil {
			logs = append(logs, outcome.Logs...)
		}
		if err != nil {
			if ctx.Err() != nil {
				return o.failure(cancelledText, logs, meta)
			}
			return o.failure(err.Error(), logs, meta)
		}

		if len(outcome.FollowUps) == 0 {
			return o.success(content, outcome.Remaining, meta, logs)
		}

		responseID, _ := meta["responseId"].(string)
		payload = FollowUpPayload(req.Model, responseID, outcome.FollowUps, req.Metadata)

		if o.logger != nil {
			o.logger.Debug(ctx, "chat follow-up submitted",
				"turn", turns, "response_id", responseID, "follow_ups", len(outcome.FollowUps))
		}
	}

	if o.logger != nil {
		o.logger.Warn(ctx, "chat loop guardrail reached", "max_turns", o.maxTurns, "error", ErrMaxTurns)
	}
	return o.failure(maxTurnsText, logs, nil)
}

// resolve polls the response to a terminal status when it has an id
// and retrieval is available. The caller decides what a still
// non-terminal result means.
func (o *Orchestrator) resolve(ctx context.Context, raw map[string]any) map[string]any {
	status := provider.Status(raw)
	id := provider.ResponseID(raw)
	if provider.IsTerminal(status) || id == "" || o.poller == nil || !o.provider.CanRetrieve() {
		return raw
	}
	return o.poller.Await(ctx, o.provider, raw, id)
}

func (o *Orchestrator) providerErrorText(ctx context.Context, err error) string {
	if o.logger != nil {
		o.logger.Error(ctx, "provider call failed", "error", err)
	}
	if rejected, ok := provider.IsRejected(err); ok {
		return fmt.Sprintf("provider rejected the request (HTTP %d): %s", rejected.StatusCode, rejected.Body)
	}
	return fmt.Sprintf("provider request failed: %v", err)
}

func (o *Orchestrator) success(content []models.ContentBlock, remaining []models.ToolCall, meta map[string]any, logs []models.ThinkLogEntry) *models.ToolResponse {
	response := &models.ToolResponse{
		Content:   content,
		ToolCalls: remaining,
		Metadata:  responseMetadata(meta, logs),
	}
	if response.Content == nil {
		response.Content = []models.ContentBlock{}
	}
	return response
}

func (o *Orchestrator) failure(text string, logs []models.ThinkLogEntry, meta map[string]any) *models.ToolResponse {
	response := models.NewErrorResponse(text)
	response.Metadata = responseMetadata(meta, logs)
	return response
}

func responseMetadata(meta map[string]any, logs []models.ThinkLogEntry) map[string]any {
	out := map[string]any{}
	for key, value := range meta {
		out[key] = value
	}
	if len(logs) > 0 {
		out["thinkTool"] = logs
	}
	return out
}

func firstText(content []models.ContentBlock) string {
	for _, block := range content {
		if text := block.Text(); text != "" {
			return text
		}
	}
	return ""
}
