// Package trace provides best-effort LangSmith run tracking around
// chat invocations, plus the metadata serialization boundary that lets
// structured trace context survive the provider round trip.
package trace

import (
	"encoding/json"
)

// MetadataKey is the metadata key carrying trace context on requests
// and responses.
const MetadataKey = "langsmith"

const (
	// DefaultRunName labels runs started by the chat orchestrator.
	DefaultRunName = "relay.chat"

	// DefaultRunType is the LangSmith run type for gateway runs.
	DefaultRunType = "tool"
)

// Context is the trace context extracted from request metadata. Zero
// value means "nothing requested"; activation then falls back to the
// environment flag.
type Context struct {
	ParentRunID string
	TraceID     string
	RunID       string
	Project     string
	Name        string
	RunType     string
	Tags        []string
	Metadata    map[string]any
	Enabled     bool
}

// ExtractContext reads trace context from chat request metadata. Both
// the nested form (metadata.langsmith as an object or JSON string) and
// flat langsmith_* keys are honored; the nested form wins per field.
func ExtractContext(metadata map[string]any) Context {
	var tc Context
	if metadata == nil {
		return tc
	}

	tc.ParentRunID = stringValue(metadata["langsmith_parent_run_id"])
	tc.TraceID = stringValue(metadata["langsmith_trace_id"])
	tc.RunID = stringValue(metadata["langsmith_run_id"])
	tc.Project = stringValue(metadata["langsmith_project"])
	tc.Name = stringValue(metadata["langsmith_name"])
	tc.RunType = stringValue(metadata["langsmith_run_type"])
	tc.Enabled = boolValue(metadata["langsmith_enabled"])

	nested := nestedObject(metadata[MetadataKey])
	if nested != nil {
		if v := stringValue(nested["parent_run_id"]); v != "" {
			tc.ParentRunID = v
		}
		if v := stringValue(nested["trace_id"]); v != "" {
			tc.TraceID = v
		}
		if v := stringValue(nested["run_id"]); v != "" {
			tc.RunID = v
		}
		if v := stringValue(nested["project"]); v != "" {
			tc.Project = v
		}
		if v := stringValue(nested["name"]); v != "" {
			tc.Name = v
		}
		if v := stringValue(nested["run_type"]); v != "" {
			tc.RunType = v
		}
		if tags := stringSlice(nested["tags"]); len(tags) > 0 {
			tc.Tags = tags
		}
		if meta, ok := nested["metadata"].(map[string]any); ok {
			tc.Metadata = meta
		}
		if boolValue(nested["enabled"]) {
			tc.Enabled = true
		}
	}

	return tc
}

// Requested reports whether the context itself asks for a trace,
// independent of the environment flag.
func (c Context) Requested() bool {
	return c.Enabled || c.ParentRunID != "" || c.TraceID != "" || c.RunID != ""
}

// nestedObject accepts both a decoded object and the serialized string
// form the provider echoes back.
func nestedObject(v any) map[string]any {
	switch value := v.(type) {
	case map[string]any:
		return value
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			return decoded
		}
	}
	return nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func boolValue(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		return value == "true" || value == "1" || value == "yes" || value == "on"
	}
	return false
}

func stringSlice(v any) []string {
	switch value := v.(type) {
	case []string:
		return value
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// SerializeMetadata returns a copy of metadata with the langsmith entry
// replaced by its JSON string form, the only shape the provider
// preserves. Other keys pass through untouched.
func SerializeMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		out[key] = value
	}
	if nested, ok := out[MetadataKey].(map[string]any); ok {
		if encoded, err := json.Marshal(nested); err == nil {
			out[MetadataKey] = string(encoded)
		}
	}
	return out
}

// DeserializeMetadata reverses SerializeMetadata: a langsmith string
// entry holding valid JSON becomes a map again; anything else is left
// as-is.
func DeserializeMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		out[key] = value
	}
	if encoded, ok := out[MetadataKey].(string); ok {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(encoded), &decoded); err == nil {
			out[MetadataKey] = decoded
		}
	}
	return out
}
