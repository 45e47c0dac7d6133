package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors shared across adapters, the
// tool registry, and the Slack indexer. A single instance is created at
// process start and threaded through constructors (never a package global
// mutated from tests), matching the explicit-context guidance in spec §9.
type Metrics struct {
	ToolExecutions  *prometheus.CounterVec
	ToolDuration    *prometheus.HistogramVec
	AdapterQueries  *prometheus.CounterVec
	AdapterDuration *prometheus.HistogramVec
	IndexerRuns     *prometheus.CounterVec
	IndexedMessages prometheus.Counter
}

// NewMetrics creates and registers collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the global
// default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ToolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_tool_executions_total",
			Help: "Tool executions by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_tool_duration_seconds",
			Help:    "Tool execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		AdapterQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_adapter_queries_total",
			Help: "Adapter query executions by backend and outcome.",
		}, []string{"backend", "outcome"}),
		AdapterDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_adapter_query_duration_seconds",
			Help:    "Adapter query duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),
		IndexerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_slack_indexer_runs_total",
			Help: "Slack indexer workspace runs by outcome.",
		}, []string{"outcome"}),
		IndexedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_slack_indexed_messages_total",
			Help: "Total Slack messages embedded and upserted.",
		}),
	}

	reg.MustRegister(m.ToolExecutions, m.ToolDuration, m.AdapterQueries, m.AdapterDuration, m.IndexerRuns, m.IndexedMessages)
	return m
}

// RecordTool records one tool execution outcome and duration.
func (m *Metrics) RecordTool(tool string, dur time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ToolExecutions.WithLabelValues(tool, outcome).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(dur.Seconds())
}

// RecordAdapterQuery records one adapter query outcome and duration.
func (m *Metrics) RecordAdapterQuery(backend string, dur time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.AdapterQueries.WithLabelValues(backend, outcome).Inc()
	m.AdapterDuration.WithLabelValues(backend).Observe(dur.Seconds())
}
