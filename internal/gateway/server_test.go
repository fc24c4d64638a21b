package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haasonsaas/relay/internal/sessions"
	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/pkg/models"
)

func newTestServer(t *testing.T, strict bool) *Server {
	t.Helper()

	registry := tools.NewRegistry(nil)
	registry.MustRegister(tools.EchoSpec(), tools.EchoHandler)
	registry.MustRegister(tools.Spec{
		Name:        "explode",
		Description: "always fails",
		InputSchema: map[string]any{"type": "object"},
	}, func(_ context.Context, _ map[string]any) *models.ToolResponse {
		return models.NewErrorResponse("boom")
	})

	return NewServer(ServerConfig{
		Sessions:      sessions.NewRegistry(strict),
		Tools:         registry,
		ProviderReady: func() bool { return false },
	})
}

// rpc posts a JSON-RPC request and decodes the response envelope.
func rpc(t *testing.T, handler http.Handler, body string, session string) map[string]any {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded
}

func errorCode(t *testing.T, resp map[string]any) float64 {
	t.Helper()
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error, got %v", resp)
	}
	code, _ := errObj["code"].(float64)
	return code
}

func initializeSession(t *testing.T, handler http.Handler) string {
	t.Helper()
	resp := rpc(t, handler, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, "")
	result := resp["result"].(map[string]any)
	session, _ := result["sessionId"].(string)
	if session == "" {
		t.Fatalf("no session id in %v", result)
	}
	return session
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(t, true).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != `{"status":"ok"}` {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandshakeInfo(t *testing.T) {
	handler := newTestServer(t, true).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))

	var info map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info["protocolVersion"] != "1.0" || info["transport"] != "http" {
		t.Errorf("info = %v", info)
	}
	serverInfo := info["serverInfo"].(map[string]any)
	if serverInfo["name"] != "relay" {
		t.Errorf("serverInfo = %v", serverInfo)
	}
	caps := info["capabilities"].(map[string]any)
	if caps["tools"].(map[string]any)["parallelCalls"] != true {
		t.Errorf("capabilities = %v", caps)
	}
}

func TestDiagnostics(t *testing.T) {
	handler := newTestServer(t, true).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))

	var diag map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &diag); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diag["status"] != "ok" {
		t.Errorf("diag = %v", diag)
	}
	if diag["provider"].(map[string]any)["configured"] != false {
		t.Errorf("provider = %v", diag["provider"])
	}
}

func TestParseError(t *testing.T) {
	handler := newTestServer(t, true).Handler()
	resp := rpc(t, handler, `{not json`, "")
	if code := errorCode(t, resp); code != -32700 {
		t.Errorf("code = %v, want -32700", code)
	}
}

func TestInvalidRequest(t *testing.T) {
	handler := newTestServer(t, true).Handler()
	resp := rpc(t, handler, `{"id":1,"method":"ping"}`, "")
	if code := errorCode(t, resp); code != -32600 {
		t.Errorf("code = %v, want -32600", code)
	}
}

func TestUnknownMethod(t *testing.T) {
	handler := newTestServer(t, true).Handler()

	for _, method := range []string{"nope", "tools.list", "session.initialize"} {
		resp := rpc(t, handler, `{"jsonrpc":"2.0","id":1,"method":"`+method+`"}`, "")
		if code := errorCode(t, resp); code != -32601 {
			t.Errorf("method %q: code = %v, want -32601", method, code)
		}
		data := resp["error"].(map[string]any)["data"].(map[string]any)
		if data["method"] != method {
			t.Errorf("data = %v", data)
		}
	}
}

func TestPing(t *testing.T) {
	handler := newTestServer(t, true).Handler()
	resp := rpc(t, handler, `{"jsonrpc":"2.0","id":7,"method":"ping"}`, "")
	result, ok := resp["result"].(map[string]any)
	if !ok || len(result) != 0 {
		t.Errorf("result = %v, want {}", resp["result"])
	}
}

func TestInitializeCreatesFreshSessions(t *testing.T) {
	handler := newTestServer(t, true).Handler()

	first := initializeSession(t, handler)
	second := initializeSession(t, handler)
	if first == second {
		t.Error("initialize must create a fresh session per call")
	}
}

func TestToolsList(t *testing.T) {
	handler := newTestServer(t, true).Handler()

	resp := rpc(t, handler, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, "")
	result := resp["result"].(map[string]any)
	toolList := result["tools"].([]any)
	if len(toolList) != 2 {
		t.Fatalf("tools = %v", toolList)
	}
	if toolList[0].(map[string]any)["name"] != "echo" {
		t.Errorf("tools = %v", toolList)
	}
	if cursor, ok := result["nextCursor"]; !ok || cursor != nil {
		t.Errorf("nextCursor = %v", cursor)
	}
}

func TestEchoRoundTrip(t *testing.T) {
	handler := newTestServer(t, true).Handler()
	session := initializeSession(t, handler)

	resp := rpc(t, handler,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"},"sessionId":"`+session+`"}}`, "")
	result := resp["result"].(map[string]any)
	if result["isError"] != false {
		t.Errorf("result = %v", result)
	}
	content := result["content"].([]any)
	block := content[0].(map[string]any)
	if block["type"] != "text" || block["text"] != "hi" {
		t.Errorf("content = %v", content)
	}
}

func TestStrictSessionEnforcement(t *testing.T) {
	handler := newTestServer(t, true).Handler()

	missing := rpc(t, handler,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"text":"x"}}}`, "")
	if code := errorCode(t, missing); code != -32001 {
		t.Errorf("missing session code = %v, want -32001", code)
	}

	unknown := rpc(t, handler,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"text":"x"},"sessionId":"bogus"}}`, "")
	if code := errorCode(t, unknown); code != -32001 {
		t.Errorf("unknown session code = %v, want -32001", code)
	}
}

func TestLenientSessionAutoCreate(t *testing.T) {
	handler := newTestServer(t, false).Handler()

	resp := rpc(t, handler,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"text":"x"}}}`, "")
	if _, ok := resp["result"].(map[string]any); !ok {
		t.Errorf("lenient mode must serve without a session, got %v", resp)
	}
}

func TestSessionHeaderFallback(t *testing.T) {
	handler := newTestServer(t, true).Handler()
	session := initializeSession(t, handler)

	resp := rpc(t, handler,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"text":"x"}}}`, session)
	if _, ok := resp["result"].(map[string]any); !ok {
		t.Errorf("session header must satisfy strict mode, got %v", resp)
	}
}

func TestUnknownTool(t *testing.T) {
	handler := newTestServer(t, true).Handler()
	session := initializeSession(t, handler)

	resp := rpc(t, handler,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"missing","arguments":{},"sessionId":"`+session+`"}}`, "")
	if code := errorCode(t, resp); code != -32601 {
		t.Errorf("code = %v, want -32601", code)
	}
	data := resp["error"].(map[string]any)["data"].(map[string]any)
	available := data["available"].([]any)
	if len(available) != 2 || available[0] != "echo" {
		t.Errorf("available = %v", available)
	}
}

func TestInvalidToolCallParams(t *testing.T) {
	handler := newTestServer(t, true).Handler()

	resp := rpc(t, handler, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"arguments":{}}}`, "")
	if code := errorCode(t, resp); code != -32602 {
		t.Errorf("code = %v, want -32602", code)
	}
}

func TestToolFailureIsResultNotError(t *testing.T) {
	handler := newTestServer(t, true).Handler()
	session := initializeSession(t, handler)

	resp := rpc(t, handler,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"explode","arguments":{},"sessionId":"`+session+`"}}`, "")
	if _, hasError := resp["error"]; hasError {
		t.Fatalf("tool failures must not be JSON-RPC errors: %v", resp)
	}
	result := resp["result"].(map[string]any)
	if result["isError"] != true {
		t.Errorf("result = %v", result)
	}
}

func TestShutdownEvictsSession(t *testing.T) {
	handler := newTestServer(t, true).Handler()
	session := initializeSession(t, handler)

	resp := rpc(t, handler,
		`{"jsonrpc":"2.0","id":1,"method":"shutdown","params":{"sessionId":"`+session+`"}}`, "")
	if _, ok := resp["result"].(map[string]any); !ok {
		t.Fatalf("shutdown response = %v", resp)
	}

	after := rpc(t, handler,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"text":"x"},"sessionId":"`+session+`"}}`, "")
	if code := errorCode(t, after); code != -32001 {
		t.Errorf("code after shutdown = %v, want -32001", code)
	}
}
