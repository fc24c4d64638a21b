package chat

import (
	"reflect"
	"testing"
)

func TestParseRequestValid(t *testing.T) {
	args := map[string]any{
		"model": "gpt-4.1-mini",
		"messages": []any{
			map[string]any{"role": "user", "content": "hi"},
		},
		"temperature":       0.2,
		"max_tokens":        float64(256),
		"parallelToolCalls": true,
		"tool_choice":       "auto",
		"metadata":          map[string]any{"tenant": "acme"},
	}

	req, err := ParseRequest(args, "")
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if req.Model != "gpt-4.1-mini" || len(req.Messages) != 1 {
		t.Errorf("request = %+v", req)
	}
	if req.Temperature == nil || *req.Temperature != 0.2 {
		t.Errorf("temperature = %v", req.Temperature)
	}
	if req.MaxTokens == nil || *req.MaxTokens != 256 {
		t.Errorf("max tokens = %v", req.MaxTokens)
	}
	if req.ParallelToolCalls == nil || !*req.ParallelToolCalls {
		t.Errorf("parallel = %v", req.ParallelToolCalls)
	}
	if req.ToolChoice != "auto" {
		t.Errorf("tool choice = %v", req.ToolChoice)
	}
}

func TestParseRequestDefaultModel(t *testing.T) {
	args := map[string]any{
		"messages": []any{map[string]any{"role": "user", "content": "hi"}},
	}

	req, err := ParseRequest(args, "fallback-model")
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if req.Model != "fallback-model" {
		t.Errorf("model = %q", req.Model)
	}

	if _, err := ParseRequest(args, ""); err == nil {
		t.Error("expected error without model or default")
	}
}

func TestParseRequestRejections(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing messages", map[string]any{"model": "m"}},
		{"empty messages", map[string]any{"model": "m", "messages": []any{}}},
		{"non-object message", map[string]any{"model": "m", "messages": []any{"hi"}}},
		{"bad role", map[string]any{"model": "m", "messages": []any{
			map[string]any{"role": "robot", "content": "hi"},
		}}},
		{"missing content", map[string]any{"model": "m", "messages": []any{
			map[string]any{"role": "user"},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRequest(tt.args, ""); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseRequestFiltersListContent(t *testing.T) {
	args := map[string]any{
		"model": "m",
		"messages": []any{
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "input_text", "text": "keep"},
					"drop this string",
					float64(42),
				},
			},
		},
	}

	req, err := ParseRequest(args, "")
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	content := req.Messages[0]["content"].([]any)
	want := []any{map[string]any{"type": "input_text", "text": "keep"}}
	if !reflect.DeepEqual(content, want) {
		t.Errorf("content = %v, want %v", content, want)
	}
}

func TestParseRequestToolsKeepObjectsOnly(t *testing.T) {
	args := map[string]any{
		"model":    "m",
		"messages": []any{map[string]any{"role": "user", "content": "hi"}},
		"tools": []any{
			map[string]any{"type": "function", "name": "lookup"},
			"not a tool",
		},
	}

	req, err := ParseRequest(args, "")
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if len(req.Tools) != 1 || req.Tools[0]["name"] != "lookup" {
		t.Errorf("tools = %v", req.Tools)
	}
}
