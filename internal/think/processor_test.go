package think

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/relay/pkg/models"
)

type fakeCaller struct {
	results []*Result
	err     error
	calls   []map[string]any
}

func (f *fakeCaller) CallThink(_ context.Context, args map[string]any, _ map[string]any) (*Result, error) {
	f.calls = append(f.calls, args)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return &Result{}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

func TestProcessBuildsFollowUp(t *testing.T) {
	caller := &fakeCaller{results: []*Result{
		{Content: []models.ContentBlock{models.TextBlock("noted"), models.TextBlock("  "), models.TextBlock("and remembered")}},
	}}
	p := NewProcessor(caller, nil)

	calls := []models.ToolCall{
		{ID: "c1", ToolName: "think", Arguments: map[string]any{"thought": "step one"}},
	}
	outcome, err := p.Process(context.Background(), calls, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(outcome.FollowUps) != 1 {
		t.Fatalf("follow-ups = %d, want 1", len(outcome.FollowUps))
	}
	item := outcome.FollowUps[0]
	if item["type"] != "function_call_output" || item["call_id"] != "c1" {
		t.Errorf("item = %v", item)
	}
	output := item["output"].([]any)
	block := output[0].(map[string]any)
	if block["type"] != "input_text" {
		t.Errorf("output type = %v", block["type"])
	}
	if block["text"] != "noted\n\nand remembered" {
		t.Errorf("output text = %q", block["text"])
	}

	if len(outcome.Logs) != 1 || outcome.Logs[0].CallID != "c1" || outcome.Logs[0].Status != "ok" {
		t.Errorf("logs = %v", outcome.Logs)
	}
	if caller.calls[0]["thought"] != "step one" {
		t.Errorf("forwarded args = %v", caller.calls[0])
	}
}

func TestProcessEmptyResultYieldsOK(t *testing.T) {
	caller := &fakeCaller{results: []*Result{{}}}
	p := NewProcessor(caller, nil)

	outcome, err := p.Process(context.Background(), []models.ToolCall{
		{ID: "c1", ToolName: "think"},
	}, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	output := outcome.FollowUps[0]["output"].([]any)
	block := output[0].(map[string]any)
	if block["text"] != "ok" {
		t.Errorf("output text = %q, want ok", block["text"])
	}
}

func TestProcessMissingCallIDAborts(t *testing.T) {
	caller := &fakeCaller{}
	p := NewProcessor(caller, nil)

	_, err := p.Process(context.Background(), []models.ToolCall{
		{ID: "  ", ToolName: "think"},
	}, nil)
	if err == nil {
		t.Fatal("expected abort for missing call_id")
	}
	if len(caller.calls) != 0 {
		t.Error("client should not be called for invalid call")
	}
}

func TestProcessErrorResultAbortsWithLogs(t *testing.T) {
	caller := &fakeCaller{results: []*Result{
		{Content: []models.ContentBlock{models.TextBlock("fine")}},
		{IsError: true, Content: []models.ContentBlock{models.TextBlock("upstream exploded")}},
	}}
	p := NewProcessor(caller, nil)

	calls := []models.ToolCall{
		{ID: "c1", ToolName: "think"},
		{ID: "c2", ToolName: "think"},
	}
	outcome, err := p.Process(context.Background(), calls, nil)
	if err == nil {
		t.Fatal("expected abort for error result")
	}
	if len(outcome.Logs) != 2 {
		t.Fatalf("logs = %d, want 2 (both attempts recorded)", len(outcome.Logs))
	}
	if outcome.Logs[1].Status != "error" {
		t.Errorf("second log status = %q", outcome.Logs[1].Status)
	}
}

func TestProcessTransportErrorAborts(t *testing.T) {
	caller := &fakeCaller{err: errors.New("connection refused")}
	p := NewProcessor(caller, nil)

	outcome, err := p.Process(context.Background(), []models.ToolCall{
		{ID: "c1", ToolName: "think"},
	}, nil)
	if err == nil {
		t.Fatal("expected abort for transport error")
	}
	if len(outcome.Logs) != 1 || outcome.Logs[0].Status != "error" {
		t.Errorf("logs = %v", outcome.Logs)
	}
}

func TestProcessDefersNonThinkCalls(t *testing.T) {
	caller := &fakeCaller{}
	p := NewProcessor(caller, nil)

	calls := []models.ToolCall{
		{ID: "w1", ToolName: "web_search", Arguments: map[string]any{"query": "weather"}},
	}
	outcome, err := p.Process(context.Background(), calls, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(outcome.FollowUps) != 0 {
		t.Errorf("follow-ups = %v, want none", outcome.FollowUps)
	}
	if len(outcome.Remaining) != 1 || outcome.Remaining[0].ID != "w1" {
		t.Errorf("remaining = %v", outcome.Remaining)
	}
	if len(caller.calls) != 0 {
		t.Error("client should not be called for non-think tools")
	}
}

func TestProcessNilClientDefersThinkCalls(t *testing.T) {
	p := NewProcessor(nil, nil)

	outcome, err := p.Process(context.Background(), []models.ToolCall{
		{ID: "c1", ToolName: "think"},
	}, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(outcome.Remaining) != 1 {
		t.Errorf("remaining = %v", outcome.Remaining)
	}
}
