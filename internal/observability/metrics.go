package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks gateway activity: JSON-RPC traffic, tool executions,
// chat orchestration turns, response polling, and think-tool calls.
// All metrics register with the default Prometheus registry and are
// served at /metrics.
type Metrics struct {
	// RPCRequestCounter counts JSON-RPC requests.
	// Labels: method, status (ok|error)
	RPCRequestCounter *prometheus.CounterVec

	// RPCRequestDuration measures JSON-RPC dispatch latency in seconds.
	// Labels: method
	RPCRequestDuration *prometheus.HistogramVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ChatTurns measures orchestrator turns consumed per chat request.
	ChatTurns prometheus.Histogram

	// PollsInFlight is a gauge of provider retrieve calls currently
	// holding the poll semaphore.
	PollsInFlight prometheus.Gauge

	// ThinkCallCounter counts upstream think-tool calls.
	// Labels: status (ok|error)
	ThinkCallCounter *prometheus.CounterVec

	// ActiveSessions is a gauge of registered MCP sessions.
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates and registers all gateway metrics. Call once at
// startup.
func NewMetrics() *Metrics {
	return &Metrics{
		RPCRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_rpc_requests_total",
				Help: "Total number of JSON-RPC requests by method and status",
			},
			[]string{"method", "status"},
		),

		RPCRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_rpc_request_duration_seconds",
				Help:    "Duration of JSON-RPC request dispatch in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"method"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"tool_name"},
		),

		ChatTurns: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_chat_turns",
				Help:    "Orchestrator turns consumed per chat request",
				Buckets: []float64{1, 2, 3, 5, 8, 10, 15},
			},
		),

		PollsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_polls_in_flight",
				Help: "Provider retrieve calls currently holding the poll semaphore",
			},
		),

		ThinkCallCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_think_calls_total",
				Help: "Total number of upstream think-tool calls by status",
			},
			[]string{"status"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_active_sessions",
				Help: "Current number of registered MCP sessions",
			},
		),
	}
}

// RecordRPCRequest records one JSON-RPC dispatch.
func (m *Metrics) RecordRPCRequest(method, status string, durationSeconds float64) {
	m.RPCRequestCounter.WithLabelValues(method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordToolExecution records one tool invocation.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordThinkCall records one upstream think-tool call.
func (m *Metrics) RecordThinkCall(status string) {
	m.ThinkCallCounter.WithLabelValues(status).Inc()
}
