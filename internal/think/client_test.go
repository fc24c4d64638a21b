package think

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/relay/internal/jsonrpc"
)

// mcpStub is a minimal upstream MCP server recording the handshake and
// serving scripted tools/call results.
type mcpStub struct {
	mu         sync.Mutex
	methods    []string
	sessions   []string
	callParams map[string]any

	sessionID  string
	useSSE     bool
	callResult map[string]any
	callError  *jsonrpc.Error
	failFirst  int
}

func (s *mcpStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jsonrpc.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		s.methods = append(s.methods, req.Method)
		s.sessions = append(s.sessions, r.Header.Get("mcp-session-id"))
		if s.failFirst > 0 {
			s.failFirst--
			s.mu.Unlock()
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		s.mu.Unlock()

		if req.ID == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}

		var result any
		var rpcErr *jsonrpc.Error
		switch req.Method {
		case "ping":
			result = map[string]any{"sessionId": s.sessionID}
		case "initialize":
			result = map[string]any{"protocolVersion": "1.0"}
		case "tools/call":
			var params map[string]any
			_ = json.Unmarshal(req.Params, &params)
			s.mu.Lock()
			s.callParams = params
			s.mu.Unlock()
			if s.callError != nil {
				rpcErr = s.callError
			} else {
				result = s.callResult
			}
		default:
			rpcErr = &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: "method not found"}
		}

		var resp *jsonrpc.Response
		if rpcErr != nil {
			resp = jsonrpc.NewErrorResponse(req.ID, rpcErr.Code, rpcErr.Message, nil)
		} else {
			resp = jsonrpc.NewResponse(req.ID, result)
		}
		payload, _ := json.Marshal(resp)

		if s.useSSE {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = w.Write([]byte("event: message\ndata: " + string(payload) + "\n\n"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}
}

func (s *mcpStub) recordedMethods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.methods...)
}

func newTestClient(url string) *Client {
	return NewClient(ClientConfig{URL: url, Timeout: 2 * time.Second})
}

func TestCallThinkHandshakeAndCall(t *testing.T) {
	stub := &mcpStub{
		sessionID:  "sess-7",
		callResult: map[string]any{"content": []any{map[string]any{"type": "text", "text": "recorded"}}},
	}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(server.URL)

	result, err := client.CallThink(context.Background(), map[string]any{"thought": "t1"}, nil)
	if err != nil {
		t.Fatalf("CallThink() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %v", result.Content)
	}
	if len(result.Content) != 1 || result.Content[0].Text() != "recorded" {
		t.Errorf("content = %v", result.Content)
	}

	want := []string{"ping", "initialize", "notifications/initialized", "tools/call"}
	got := stub.recordedMethods()
	if len(got) != len(want) {
		t.Fatalf("methods = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("method[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// The session id from ping must be echoed on later requests.
	stub.mu.Lock()
	lastSession := stub.sessions[len(stub.sessions)-1]
	params := stub.callParams
	stub.mu.Unlock()
	if lastSession != "sess-7" {
		t.Errorf("session header = %q, want sess-7", lastSession)
	}
	if params["name"] != "think" {
		t.Errorf("tools/call name = %v", params["name"])
	}
	if params["stream"] != false {
		t.Errorf("tools/call stream = %v", params["stream"])
	}

	// Second call reuses the handshake.
	if _, err := client.CallThink(context.Background(), map[string]any{"thought": "t2"}, nil); err != nil {
		t.Fatalf("second CallThink() error = %v", err)
	}
	got = stub.recordedMethods()
	if len(got) != len(want)+1 || got[len(got)-1] != "tools/call" {
		t.Errorf("methods after second call = %v", got)
	}
}

func TestCallThinkSSEResponse(t *testing.T) {
	stub := &mcpStub{
		useSSE:     true,
		callResult: map[string]any{"content": []any{map[string]any{"type": "text", "text": "from stream"}}},
	}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(server.URL)

	result, err := client.CallThink(context.Background(), map[string]any{"thought": "t"}, nil)
	if err != nil {
		t.Fatalf("CallThink() error = %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Text() != "from stream" {
		t.Errorf("content = %v", result.Content)
	}
}

func TestCallThinkRPCErrorBecomesErrorResult(t *testing.T) {
	stub := &mcpStub{
		callError: &jsonrpc.Error{Code: jsonrpc.CodeInternalError, Message: "thought rejected"},
	}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(server.URL)

	result, err := client.CallThink(context.Background(), map[string]any{"thought": "t"}, nil)
	if err != nil {
		t.Fatalf("CallThink() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if result.ErrorText() != "thought rejected" {
		t.Errorf("ErrorText() = %q", result.ErrorText())
	}
}

func TestCallThinkRetriesTransportFailures(t *testing.T) {
	stub := &mcpStub{
		failFirst:  1,
		callResult: map[string]any{"content": []any{}},
	}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := NewClient(ClientConfig{URL: server.URL, Timeout: 2 * time.Second, RetryLimit: 2})

	if _, err := client.CallThink(context.Background(), map[string]any{"thought": "t"}, nil); err != nil {
		t.Fatalf("CallThink() error = %v", err)
	}
}

func TestCallThinkNoRetriesFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{URL: server.URL, Timeout: 2 * time.Second, RetryLimit: 0})

	if _, err := client.CallThink(context.Background(), map[string]any{"thought": "t"}, nil); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestDecodeBodySSELastEventWins(t *testing.T) {
	body := []byte("data: {\"first\": true}\n\ndata: {\"second\": true}\n")
	decoded := decodeBody(body, "text/event-stream")

	var parsed map[string]any
	if err := json.Unmarshal(decoded, &parsed); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if parsed["second"] != true {
		t.Errorf("decoded = %v, want last event", parsed)
	}
}

func TestDecodeBodyWrapsNonJSONData(t *testing.T) {
	decoded := decodeBody([]byte("data: not json at all\n"), "text/event-stream")

	var parsed map[string]any
	if err := json.Unmarshal(decoded, &parsed); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if parsed["raw"] != "not json at all" {
		t.Errorf("decoded = %v", parsed)
	}
}
