// Package provider is a thin client for an OpenAI Responses-style API:
// create a response, retrieve it by id, and poll non-terminal responses
// under a process-wide concurrency bound.
//
// Payloads stay raw (map[string]any) on both sides; the chat package
// owns building requests and normalizing results. The client performs
// no automatic retry of create calls.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Config holds provider client configuration.
type Config struct {
	// APIKey authenticates against the provider (required for use).
	APIKey string

	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	// HTTPClient overrides the default client (mainly for tests).
	HTTPClient *http.Client
}

// Client talks to the Responses API. Readiness is checked lazily on
// first use so an unconfigured gateway still serves its other tools.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	ready bool
}

// NewClient creates a Responses API client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    httpClient,
	}
}

// ensureReady verifies the client is usable, once.
func (c *Client) ensureReady() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready {
		return nil
	}
	if c.apiKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrUnavailable)
	}
	if c.baseURL == "" {
		return fmt.Errorf("%w: base URL is empty", ErrUnavailable)
	}
	c.ready = true
	return nil
}

// CanRetrieve reports whether response retrieval is available.
func (c *Client) CanRetrieve() bool {
	return c.ensureReady() == nil
}

// Create submits a response request and returns the raw provider
// payload. Non-2xx statuses come back as *RejectedError; network
// failures as *TransportError.
func (c *Client) Create(ctx context.Context, payload map[string]any) (map[string]any, error) {
	if err := c.ensureReady(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode create payload: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body), "create")
}

// Retrieve fetches the current state of a response by id.
func (c *Client) Retrieve(ctx context.Context, responseID string) (map[string]any, error) {
	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	if responseID == "" {
		return nil, fmt.Errorf("response id is required")
	}
	endpoint := c.baseURL + "/responses/" + url.PathEscape(responseID)
	return c.do(ctx, http.MethodGet, endpoint, nil, "retrieve")
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, op string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RejectedError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return decoded, nil
}

// Status extracts the status field from a raw response payload.
func Status(payload map[string]any) string {
	s, _ := payload["status"].(string)
	return s
}

// ResponseID extracts the id field from a raw response payload.
func ResponseID(payload map[string]any) string {
	id, _ := payload["id"].(string)
	return id
}

// IsTerminal reports whether a status needs no further polling.
// Anything outside the pending set (queued, in_progress) is terminal,
// including an absent status.
func IsTerminal(status string) bool {
	switch status {
	case "queued", "in_progress":
		return false
	default:
		return true
	}
}
