// Package think delegates the provider-issued think tool to an
// upstream MCP server over JSON-RPC/HTTP and folds the results back
// into the chat loop as function_call_output items.
package think

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/internal/backoff"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/jsonrpc"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/pkg/models"
)

// sessionHeader carries the MCP session id on HTTP requests and
// responses.
const sessionHeader = "mcp-session-id"

// Result is the outcome of one upstream think call.
type Result struct {
	Content  []models.ContentBlock
	Metadata map[string]any
	IsError  bool
}

// ErrorText joins the text of all content blocks, used to surface
// upstream failures in the chat response.
func (r *Result) ErrorText() string {
	parts := make([]string, 0, len(r.Content))
	for _, block := range r.Content {
		if text := strings.TrimSpace(block.Text()); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "think tool call failed"
	}
	return strings.Join(parts, "\n")
}

// Caller invokes the upstream think tool. The concrete client performs
// the MCP handshake lazily on first use.
type Caller interface {
	CallThink(ctx context.Context, arguments map[string]any, metadata map[string]any) (*Result, error)
}

// ClientConfig configures the upstream MCP client.
type ClientConfig struct {
	// URL is the upstream MCP endpoint (required).
	URL string

	// Timeout bounds each HTTP round trip.
	Timeout time.Duration

	// RetryLimit is the number of retries after the first attempt for
	// transport-level failures.
	RetryLimit int

	// HTTPClient overrides the default client (mainly for tests).
	HTTPClient *http.Client

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Client is an MCP JSON-RPC client over HTTP. The handshake (ping,
// initialize, notifications/initialized) runs once per client; a
// session id offered by the server via result or response header is
// echoed on subsequent requests.
type Client struct {
	url        string
	timeout    time.Duration
	retryLimit int
	http       *http.Client
	logger     *observability.Logger
	metrics    *observability.Metrics
	policy     backoff.Policy

	mu        sync.Mutex
	ready     bool
	sessionID string
}

// NewClient creates an upstream MCP client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		url:        cfg.URL,
		timeout:    timeout,
		retryLimit: cfg.RetryLimit,
		http:       httpClient,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		policy:     backoff.DefaultPolicy(),
	}
}

// CallThink performs the handshake when needed, then issues tools/call
// for the think tool. JSON-RPC error objects come back as error
// Results, not Go errors; a Go error means transport failure after all
// retries.
func (c *Client) CallThink(ctx context.Context, arguments map[string]any, metadata map[string]any) (*Result, error) {
	if err := c.ensureSession(ctx); err != nil {
		c.recordCall("error")
		return nil, err
	}

	params := map[string]any{
		"name":      "think",
		"arguments": arguments,
		"stream":    false,
	}
	if len(metadata) > 0 {
		params["metadata"] = metadata
	}

	resp, err := c.call(ctx, "tools/call", params)
	if err != nil {
		c.recordCall("error")
		return nil, err
	}
	if resp.Error != nil {
		c.recordCall("error")
		return &Result{
			Content: []models.ContentBlock{models.TextBlock(resp.Error.Message)},
			IsError: true,
		}, nil
	}

	result := parseToolResult(resp.Result)
	if result.IsError {
		c.recordCall("error")
	} else {
		c.recordCall("ok")
	}
	return result, nil
}

func (c *Client) recordCall(status string) {
	if c.metrics != nil {
		c.metrics.RecordThinkCall(status)
	}
}

// ensureSession runs the MCP handshake once: ping for a session id,
// initialize, then the initialized notification.
func (c *Client) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready {
		return nil
	}

	pingResp, err := c.callLocked(ctx, "ping", map[string]any{})
	if err != nil {
		return fmt.Errorf("think handshake ping: %w", err)
	}
	if pingResp.Error == nil && pingResp.Result != nil {
		var result struct {
			SessionID string `json:"sessionId"`
		}
		if json.Unmarshal(pingResp.Result, &result) == nil && result.SessionID != "" {
			c.sessionID = result.SessionID
		}
	}

	initParams := map[string]any{
		"protocolVersion": config.ProtocolVersion,
		"clientInfo": map[string]any{
			"name":    config.ServerName,
			"version": config.ServerVersion,
		},
		"capabilities": map[string]any{},
	}
	initResp, err := c.callLocked(ctx, "initialize", initParams)
	if err != nil {
		return fmt.Errorf("think handshake initialize: %w", err)
	}
	if initResp.Error != nil {
		return fmt.Errorf("think handshake initialize: %s", initResp.Error.Message)
	}

	if err := c.notifyLocked(ctx, "notifications/initialized"); err != nil {
		return fmt.Errorf("think handshake notify: %w", err)
	}

	c.ready = true
	if c.logger != nil {
		c.logger.Debug(ctx, "think tool session established", "session_id", c.sessionID)
	}
	return nil
}

// call issues a JSON-RPC request with retry. The session mutex is not
// held; used for tools/call after the handshake.
func (c *Client) call(ctx context.Context, method string, params any) (*jsonrpc.Response, error) {
	c.mu.Lock()
	session := c.sessionID
	c.mu.Unlock()

	resp, newSession, err := c.roundTrip(ctx, method, params, session, true)
	if err != nil {
		return nil, err
	}
	if newSession != "" && newSession != session {
		c.mu.Lock()
		c.sessionID = newSession
		c.mu.Unlock()
	}
	return resp, nil
}

// callLocked is call for use while holding c.mu (handshake only).
func (c *Client) callLocked(ctx context.Context, method string, params any) (*jsonrpc.Response, error) {
	resp, newSession, err := c.roundTrip(ctx, method, params, c.sessionID, true)
	if err != nil {
		return nil, err
	}
	if newSession != "" {
		c.sessionID = newSession
	}
	return resp, nil
}

func (c *Client) notifyLocked(ctx context.Context, method string) error {
	_, _, err := c.roundTrip(ctx, method, map[string]any{}, c.sessionID, false)
	return err
}

// roundTrip posts one JSON-RPC envelope, retrying transport failures up
// to retryLimit extra attempts. Returns the parsed response (nil for
// notifications) and any session id the server offered.
func (c *Client) roundTrip(ctx context.Context, method string, params any, session string, expectReply bool) (*jsonrpc.Response, string, error) {
	var payload []byte
	var err error
	if expectReply {
		req := jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: uuid.NewString(), Method: method}
		if params != nil {
			if req.Params, err = json.Marshal(params); err != nil {
				return nil, "", fmt.Errorf("marshal params: %w", err)
			}
		}
		payload, err = json.Marshal(req)
	} else {
		notif := jsonrpc.Notification{JSONRPC: jsonrpc.Version, Method: method}
		if params != nil {
			if notif.Params, err = json.Marshal(params); err != nil {
				return nil, "", fmt.Errorf("marshal params: %w", err)
			}
		}
		payload, err = json.Marshal(notif)
	}
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}

	attempts := c.retryLimit + 1

	type reply struct {
		resp    *jsonrpc.Response
		session string
	}
	result, err := backoff.Retry(ctx, c.policy, attempts, func(int) (reply, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return reply{}, fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json, text/event-stream")
		if session != "" {
			httpReq.Header.Set(sessionHeader, session)
		}

		httpResp, err := c.http.Do(httpReq)
		if err != nil {
			return reply{}, fmt.Errorf("think tool request: %w", err)
		}
		defer httpResp.Body.Close()

		offered := httpResp.Header.Get(sessionHeader)

		if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
			return reply{}, fmt.Errorf("think tool HTTP %d", httpResp.StatusCode)
		}

		if !expectReply {
			return reply{session: offered}, nil
		}

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(httpResp.Body); err != nil {
			return reply{}, fmt.Errorf("read response: %w", err)
		}

		body := decodeBody(buf.Bytes(), httpResp.Header.Get("Content-Type"))
		var resp jsonrpc.Response
		if err := json.Unmarshal(body, &resp); err != nil {
			return reply{}, fmt.Errorf("decode response: %w", err)
		}
		return reply{resp: &resp, session: offered}, nil
	})
	if err != nil {
		return nil, "", err
	}
	return result.resp, result.session, nil
}

// decodeBody unwraps text/event-stream payloads: the last data: event
// wins, and non-JSON data lines are wrapped as {"raw": line}.
func decodeBody(body []byte, contentType string) []byte {
	isSSE := strings.Contains(contentType, "text/event-stream") ||
		bytes.Contains(body, []byte("data:"))
	if !isSSE {
		return body
	}

	var last string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data:") {
			last = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	if last == "" {
		return body
	}
	if json.Valid([]byte(last)) {
		return []byte(last)
	}
	wrapped, _ := json.Marshal(map[string]any{"raw": last})
	return wrapped
}

// parseToolResult converts a tools/call result payload into a Result.
// Only object entries of the content list are kept, mirroring how the
// upstream result is forwarded to the provider.
func parseToolResult(raw json.RawMessage) *Result {
	result := &Result{Metadata: map[string]any{}}
	if len(raw) == 0 {
		return result
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		result.Content = []models.ContentBlock{models.TextBlock(string(raw))}
		return result
	}

	if isError, ok := decoded["isError"].(bool); ok {
		result.IsError = isError
	}
	if meta, ok := decoded["metadata"].(map[string]any); ok {
		result.Metadata = meta
	}
	if content, ok := decoded["content"].([]any); ok {
		for _, item := range content {
			if block, ok := item.(map[string]any); ok {
				result.Content = append(result.Content, models.ContentBlock(block))
			}
		}
	}
	return result
}
