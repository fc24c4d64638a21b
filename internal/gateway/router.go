// Package gateway exposes the MCP surface over HTTP: JSON-RPC dispatch
// on POST /mcp plus health, diagnostics, and metrics endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/jsonrpc"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/sessions"
	"github.com/haasonsaas/relay/internal/tools"
)

// sessionHeader carries the MCP session id on HTTP requests and
// responses.
const sessionHeader = "mcp-session-id"

// router dispatches JSON-RPC requests to method handlers.
type router struct {
	sessions *sessions.Registry
	tools    *tools.Registry
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// serverCapabilities is the capability set advertised on initialize
// and on the GET /mcp handshake.
func serverCapabilities() map[string]any {
	return map[string]any{
		"tools": map[string]any{
			"parallelCalls": true,
		},
		"sampling": map[string]any{
			"supportsHostedTools": true,
		},
	}
}

func serverInfo() map[string]any {
	return map[string]any{
		"name":    config.ServerName,
		"version": config.ServerVersion,
	}
}

// handleRPC is the POST /mcp entry point.
func (rt *router) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		rt.writeResponse(w, jsonrpc.NewErrorResponse(nil, jsonrpc.CodeParseError, "failed to read request body", nil))
		return
	}

	var req jsonrpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		rt.writeResponse(w, jsonrpc.NewErrorResponse(nil, jsonrpc.CodeParseError, "parse error", nil))
		return
	}
	if req.JSONRPC != jsonrpc.Version || req.Method == "" {
		rt.writeResponse(w, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidRequest, "invalid request", nil))
		return
	}

	start := time.Now()
	resp := rt.dispatch(r.Context(), &req, r.Header.Get(sessionHeader), w)
	rt.record(req.Method, resp, time.Since(start))

	rt.writeResponse(w, resp)
}

// dispatch routes one request. Panics degrade to internal errors so a
// misbehaving handler cannot take down the transport.
func (rt *router) dispatch(ctx context.Context, req *jsonrpc.Request, headerSession string, w http.ResponseWriter) (resp *jsonrpc.Response) {
	defer func() {
		if recovered := recover(); recovered != nil {
			if rt.logger != nil {
				rt.logger.Error(ctx, "rpc handler panicked", "method", req.Method, "panic", recovered)
			}
			resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, "internal error", nil)
		}
	}()

	if rt.tracer != nil {
		spanCtx, span := rt.tracer.Start(ctx, "mcp.dispatch", "rpc.method", req.Method)
		ctx = spanCtx
		defer func() {
			if resp != nil && resp.Error != nil {
				rt.tracer.RecordError(span, resp.Error)
			}
			span.End()
		}()
	}

	switch req.Method {
	case "initialize":
		return rt.handleInitialize(ctx, req, w)
	case "tools/list":
		return rt.handleToolsList(req)
	case "tools/call":
		return rt.handleToolsCall(ctx, req, headerSession)
	case "ping":
		return jsonrpc.NewResponse(req.ID, map[string]any{})
	case "shutdown":
		return rt.handleShutdown(ctx, req, headerSession)
	default:
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeMethodNotFound, "method not found",
			map[string]any{"method": req.Method})
	}
}

func (rt *router) handleInitialize(ctx context.Context, req *jsonrpc.Request, w http.ResponseWriter) *jsonrpc.Response {
	var params struct {
		ClientInfo   map[string]any `json:"clientInfo"`
		Capabilities map[string]any `json:"capabilities"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "invalid initialize params", nil)
		}
	}

	session := rt.sessions.Create(params.ClientInfo, params.Capabilities)
	if rt.metrics != nil {
		rt.metrics.ActiveSessions.Set(float64(rt.sessions.Count()))
	}
	if rt.logger != nil {
		rt.logger.Info(ctx, "session initialized", "session_id", session.ID)
	}
	w.Header().Set(sessionHeader, session.ID)

	return jsonrpc.NewResponse(req.ID, map[string]any{
		"protocolVersion": config.ProtocolVersion,
		"serverInfo":      serverInfo(),
		"capabilities":    serverCapabilities(),
		"sessionId":       session.ID,
	})
}

func (rt *router) handleToolsList(req *jsonrpc.Request) *jsonrpc.Response {
	return jsonrpc.NewResponse(req.ID, map[string]any{
		"tools":      rt.tools.Descriptors(),
		"nextCursor": nil,
	})
}

func (rt *router) handleToolsCall(ctx context.Context, req *jsonrpc.Request, headerSession string) *jsonrpc.Response {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
		SessionID string         `json:"sessionId"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidParams, "tools/call requires a name", nil)
	}

	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = headerSession
	}
	session, err := rt.sessions.Resolve(sessionID)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeSessionError, err.Error(), nil)
	}
	ctx = observability.AddSessionID(ctx, session.ID)

	result, err := rt.tools.Execute(ctx, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, tools.ErrToolNotFound) {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeMethodNotFound, "tool not found",
				map[string]any{"available": rt.tools.Names()})
		}
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, err.Error(), nil)
	}

	return jsonrpc.NewResponse(req.ID, result)
}

func (rt *router) handleShutdown(ctx context.Context, req *jsonrpc.Request, headerSession string) *jsonrpc.Response {
	var params struct {
		SessionID string `json:"sessionId"`
	}
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &params)
	}
	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = headerSession
	}
	if sessionID != "" {
		rt.sessions.Evict(sessionID)
		if rt.metrics != nil {
			rt.metrics.ActiveSessions.Set(float64(rt.sessions.Count()))
		}
		if rt.logger != nil {
			rt.logger.Info(ctx, "session shut down", "session_id", sessionID)
		}
	}
	return jsonrpc.NewResponse(req.ID, map[string]any{})
}

func (rt *router) record(method string, resp *jsonrpc.Response, elapsed time.Duration) {
	if rt.metrics == nil {
		return
	}
	status := "ok"
	if resp != nil && resp.Error != nil {
		status = "error"
	}
	rt.metrics.RecordRPCRequest(method, status, elapsed.Seconds())
}

func (rt *router) writeResponse(w http.ResponseWriter, resp *jsonrpc.Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil && rt.logger != nil {
		rt.logger.Error(context.Background(), "failed to write rpc response", "error", err)
	}
}
