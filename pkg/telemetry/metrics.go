// Package telemetry exposes Prometheus instrumentation for the tool server.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tool call outcomes recorded on ToolCalls.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeInvalid     = "invalid_input"
	OutcomeUnknownTool = "unknown_tool"
)

var (
	// ToolCalls counts dispatched tool calls by tool name and outcome.
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dockhand_tool_calls_total",
		Help: "Number of tool calls dispatched, by tool and outcome.",
	}, []string{"tool", "outcome"})

	// ApprovalDecisions counts resolved approval requests by decision.
	ApprovalDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dockhand_approval_decisions_total",
		Help: "Number of resolved approval requests, by decision.",
	}, []string{"decision"})

	// ActiveSessions tracks the number of live agent sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dockhand_active_sessions",
		Help: "Number of currently active agent sessions.",
	})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
