package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/internal/observability"
)

// DefaultEndpoint is the hosted LangSmith API.
const DefaultEndpoint = "https://api.smith.langchain.com"

// AdapterConfig configures the LangSmith run adapter.
type AdapterConfig struct {
	// Enabled activates tracing for every request; requests can also
	// opt in per call via metadata.
	Enabled bool

	// Project is the default session name for new runs.
	Project string

	APIKey   string
	Endpoint string

	HTTPClient *http.Client
	Logger     *observability.Logger
}

// Adapter creates and finalizes LangSmith runs. All network work is
// best effort: a failed create or patch logs a warning and the chat
// request proceeds.
type Adapter struct {
	enabled  bool
	project  string
	apiKey   string
	endpoint string
	http     *http.Client
	logger   *observability.Logger
}

// NewAdapter builds an Adapter. A nil adapter is usable; every method
// is a no-op on nil receivers so callers need no enablement checks.
func NewAdapter(cfg AdapterConfig) *Adapter {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{
		enabled:  cfg.Enabled,
		project:  cfg.Project,
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		http:     httpClient,
		logger:   cfg.Logger,
	}
}

// Run is an in-flight LangSmith run.
type Run struct {
	ID          string
	TraceID     string
	ParentRunID string
	Project     string
	Name        string
	RunType     string
	Tags        []string
}

// Active reports whether a run should be created for the given request
// context: the environment flag enables every request, and a request
// that names a parent, trace, or run id (or sets enabled) opts itself
// in.
func (a *Adapter) Active(tc Context) bool {
	if a == nil {
		return false
	}
	return a.enabled || tc.Requested()
}

// Start creates a run. Missing ids are generated; without a parent the
// run starts a fresh trace. Returns nil when tracing is not active for
// this request.
func (a *Adapter) Start(ctx context.Context, tc Context, inputs map[string]any) *Run {
	if !a.Active(tc) {
		return nil
	}

	run := &Run{
		ID:          tc.RunID,
		TraceID:     tc.TraceID,
		ParentRunID: tc.ParentRunID,
		Project:     tc.Project,
		Name:        tc.Name,
		RunType:     tc.RunType,
		Tags:        tc.Tags,
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.TraceID == "" {
		if run.ParentRunID != "" {
			run.TraceID = run.ParentRunID
		} else {
			run.TraceID = run.ID
		}
	}
	if run.Project == "" {
		run.Project = a.project
	}
	if run.Name == "" {
		run.Name = DefaultRunName
	}
	if run.RunType == "" {
		run.RunType = DefaultRunType
	}

	body := map[string]any{
		"id":         run.ID,
		"trace_id":   run.TraceID,
		"name":       run.Name,
		"run_type":   run.RunType,
		"start_time": time.Now().UTC().Format(time.RFC3339Nano),
		"inputs":     inputs,
	}
	if run.ParentRunID != "" {
		body["parent_run_id"] = run.ParentRunID
	}
	if run.Project != "" {
		body["session_name"] = run.Project
	}
	if len(run.Tags) > 0 {
		body["tags"] = run.Tags
	}
	if len(tc.Metadata) > 0 {
		body["extra"] = map[string]any{"metadata": tc.Metadata}
	}

	if err := a.post(ctx, "/runs", body); err != nil {
		a.warn(ctx, "langsmith run create failed", err, run.ID)
	}
	return run
}

// FinalizeSuccess patches the run with outputs and an end time.
func (a *Adapter) FinalizeSuccess(ctx context.Context, run *Run, outputs map[string]any) {
	if a == nil || run == nil {
		return
	}
	a.finalize(ctx, run, map[string]any{
		"outputs":  outputs,
		"end_time": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// FinalizeError patches the run with the error message alongside any
// partial outputs.
func (a *Adapter) FinalizeError(ctx context.Context, run *Run, outputs map[string]any, message string) {
	if a == nil || run == nil {
		return
	}
	body := map[string]any{
		"error":    message,
		"end_time": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if outputs != nil {
		body["outputs"] = outputs
	}
	a.finalize(ctx, run, body)
}

func (a *Adapter) finalize(ctx context.Context, run *Run, body map[string]any) {
	if err := a.patch(ctx, "/runs/"+run.ID, body); err != nil {
		a.warn(ctx, "langsmith run finalize failed", err, run.ID)
	}
}

// MetadataPayload is the trace context attached to the chat response
// under metadata.langsmith.
func (r *Run) MetadataPayload() map[string]any {
	if r == nil {
		return nil
	}
	payload := map[string]any{
		"runId":   r.ID,
		"traceId": r.TraceID,
		"runName": r.Name,
		"runType": r.RunType,
	}
	if r.Project != "" {
		payload["project"] = r.Project
	}
	if r.ParentRunID != "" {
		payload["parentRunId"] = r.ParentRunID
	}
	if len(r.Tags) > 0 {
		payload["tags"] = r.Tags
	}
	return payload
}

func (a *Adapter) post(ctx context.Context, path string, body map[string]any) error {
	return a.send(ctx, http.MethodPost, path, body)
}

func (a *Adapter) patch(ctx context.Context, path string, body map[string]any) error {
	return a.send(ctx, http.MethodPatch, path, body)
}

func (a *Adapter) send(ctx context.Context, method, path string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal run payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("x-api-key", a.apiKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	return nil
}

func (a *Adapter) warn(ctx context.Context, msg string, err error, runID string) {
	if a.logger != nil {
		a.logger.Warn(ctx, msg, "error", err, "run_id", runID)
	}
}
