// Package metrics exposes Prometheus counters for the agent process. All
// recording methods are nil-safe so components can run without metrics wired
// (tests, one-shot invocations).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-local Prometheus registry and collectors.
type Metrics struct {
	registry *prometheus.Registry

	modelCalls     *prometheus.CounterVec
	tokens         *prometheus.CounterVec
	budgetDenials  *prometheus.CounterVec
	circuitTrips   *prometheus.CounterVec
	toolExecutions *prometheus.CounterVec
}

// New creates a Metrics instance backed by a private registry (no global
// default registry, so tests can construct as many as they like).
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		modelCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drover_model_calls_total",
			Help: "Model API calls by agent and outcome.",
		}, []string{"agent", "outcome"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drover_tokens_total",
			Help: "Tokens recorded against the usage ledger, by agent and kind.",
		}, []string{"agent", "kind"}),
		budgetDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drover_budget_denials_total",
			Help: "Admission denials by the budget governor, by agent and reason.",
		}, []string{"agent", "reason"}),
		circuitTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drover_circuit_trips_total",
			Help: "Circuit breaker trips by agent.",
		}, []string{"agent"}),
		toolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drover_tool_executions_total",
			Help: "Tool executions by tool name and outcome.",
		}, []string{"tool", "outcome"}),
	}
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ModelCall records one model API call. outcome is "ok", "blocked", or
// "failed".
func (m *Metrics) ModelCall(agent, outcome string) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(agent, outcome).Inc()
}

// Tokens records ledgered token counts for one run.
func (m *Metrics) Tokens(agent string, prompt, completion int) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(agent, "prompt").Add(float64(prompt))
	m.tokens.WithLabelValues(agent, "completion").Add(float64(completion))
}

// BudgetDenial records one admission denial. reason is "circuit-open",
// "paused", or "budget".
func (m *Metrics) BudgetDenial(agent, reason string) {
	if m == nil {
		return
	}
	m.budgetDenials.WithLabelValues(agent, reason).Inc()
}

// CircuitTrip records one breaker trip.
func (m *Metrics) CircuitTrip(agent string) {
	if m == nil {
		return
	}
	m.circuitTrips.WithLabelValues(agent).Inc()
}

// ToolExecution records one tool dispatch.
func (m *Metrics) ToolExecution(tool string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.toolExecutions.WithLabelValues(tool, outcome).Inc()
}
