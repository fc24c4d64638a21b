package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/sessions"
	"github.com/haasonsaas/relay/internal/tools"
)

// ServerConfig wires the gateway's collaborators.
type ServerConfig struct {
	Host string
	Port int

	Sessions *sessions.Registry
	Tools    *tools.Registry

	// ProviderReady reports whether the chat provider is configured;
	// surfaced on /diagnostics.
	ProviderReady func() bool

	// ThinkEnabled reports whether the think client is wired in.
	ThinkEnabled bool

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Server is the HTTP front of the gateway.
type Server struct {
	config ServerConfig
	router *router

	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates the gateway server.
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		config: cfg,
		router: &router{
			sessions: cfg.Sessions,
			tools:    cfg.Tools,
			logger:   cfg.Logger,
			metrics:  cfg.Metrics,
			tracer:   cfg.Tracer,
		},
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			s.router.handleRPC(w, r)
		case http.MethodGet:
			s.handleHandshakeInfo(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/diagnostics", s.handleDiagnostics)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// Start binds the listener and serves in the background. A bind
// failure is returned synchronously so startup can abort.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.config.Logger != nil {
				s.config.Logger.Error(ctx, "http server error", "error", err)
			}
		}
	}()

	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "gateway listening", "addr", addr)
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil && s.config.Logger != nil {
		s.config.Logger.Warn(ctx, "http server shutdown error", "error", err)
	}
	s.httpServer = nil
	s.listener = nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleHandshakeInfo answers GET /mcp with the server identity so
// clients can discover the transport without starting a session.
func (s *Server) handleHandshakeInfo(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{
		"protocolVersion": config.ProtocolVersion,
		"serverInfo":      serverInfo(),
		"capabilities":    serverCapabilities(),
		"transport":       "http",
	})
}

// handleDiagnostics reports component status without leaking secrets.
func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	providerConfigured := false
	if s.config.ProviderReady != nil {
		providerConfigured = s.config.ProviderReady()
	}

	s.writeJSON(w, map[string]any{
		"status":  "ok",
		"version": config.ServerVersion,
		"tools":   s.config.Tools.Names(),
		"provider": map[string]any{
			"configured": providerConfigured,
		},
		"think": map[string]any{
			"enabled": s.config.ThinkEnabled,
		},
		"sessions": map[string]any{
			"count":  s.config.Sessions.Count(),
			"strict": s.config.Sessions.Strict(),
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil && s.config.Logger != nil {
		s.config.Logger.Error(context.Background(), "failed to write response", "error", err)
	}
}
