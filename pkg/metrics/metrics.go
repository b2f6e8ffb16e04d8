// Package metrics exposes Prometheus collectors for the saga pipeline, tool
// dispatch, the tool registry, and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector registered at startup. Call NewMetrics once
// and share the result across the saga orchestrator, registry, and API server.
type Metrics struct {
	// SagaStarted counts saga records created by tenant.
	SagaStarted *prometheus.CounterVec

	// SagaCompleted counts terminal sagas by tenant and outcome
	// (completed|error|irrelevant).
	SagaCompleted *prometheus.CounterVec

	// SagaDuration measures end-to-end saga latency in seconds, from
	// q.initiated to a terminal status.
	SagaDuration *prometheus.HistogramVec

	// StageDuration measures a single stage's handler latency in seconds.
	// Labels: stage (generate_query|execute_query|format)
	StageDuration *prometheus.HistogramVec

	// SelfCorrectionRetries counts self-correction re-entries into Stage 1.
	SelfCorrectionRetries prometheus.Counter

	// ToolCallCounter counts remote tool invocations by tool and outcome.
	ToolCallCounter *prometheus.CounterVec

	// ToolCallDuration measures remote tool call latency in seconds.
	ToolCallDuration *prometheus.HistogramVec

	// RegistryServerStatus is a gauge of 1 (healthy) or 0 (unhealthy) per
	// registered role/endpoint pair.
	RegistryServerStatus *prometheus.GaugeVec

	// HTTPRequestDuration measures API request latency in seconds.
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts API requests by method, path, and status code.
	HTTPRequestCounter *prometheus.CounterVec

	// KBChunksIngested counts chunks produced per ingestion.
	KBChunksIngested prometheus.Counter

	// KBAskDuration measures retrieval-and-synthesis latency in seconds.
	KBAskDuration prometheus.Histogram
}

// NewMetrics creates and registers every collector against reg. Pass
// prometheus.DefaultRegisterer in production; tests should pass a fresh
// prometheus.NewRegistry() to avoid collisions across parallel test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SagaStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sqlinsight_saga_started_total",
				Help: "Total number of sagas submitted, by tenant",
			},
			[]string{"tenant"},
		),

		SagaCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sqlinsight_saga_completed_total",
				Help: "Total number of sagas reaching a terminal status, by tenant and outcome",
			},
			[]string{"tenant", "outcome"},
		),

		SagaDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sqlinsight_saga_duration_seconds",
				Help:    "End-to-end saga duration from submission to terminal status",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"tenant", "outcome"},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sqlinsight_stage_duration_seconds",
				Help:    "Duration of a single saga stage handler",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),

		SelfCorrectionRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sqlinsight_self_correction_retries_total",
				Help: "Total number of self-correction re-entries into Stage 1",
			},
		),

		ToolCallCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sqlinsight_tool_calls_total",
				Help: "Total number of remote tool invocations, by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),

		ToolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sqlinsight_tool_call_duration_seconds",
				Help:    "Duration of remote tool invocations",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool"},
		),

		RegistryServerStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sqlinsight_registry_server_up",
				Help: "Health of a registered tool server (1 healthy, 0 unhealthy)",
			},
			[]string{"role", "endpoint"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sqlinsight_http_request_duration_seconds",
				Help:    "Duration of HTTP requests served by the query API",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sqlinsight_http_requests_total",
				Help: "Total number of HTTP requests served by the query API",
			},
			[]string{"method", "path", "status_code"},
		),

		KBChunksIngested: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sqlinsight_kb_chunks_ingested_total",
				Help: "Total number of knowledge base chunks produced by ingestion",
			},
		),

		KBAskDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sqlinsight_kb_ask_duration_seconds",
				Help:    "Duration of retrieval-and-synthesis knowledge base answers",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
		),
	}
}

// RecordSagaStarted increments the started counter for tenant.
func (m *Metrics) RecordSagaStarted(tenant string) {
	m.SagaStarted.WithLabelValues(tenant).Inc()
}

// RecordSagaCompleted records a terminal saga's outcome and total duration.
func (m *Metrics) RecordSagaCompleted(tenant, outcome string, durationSeconds float64) {
	m.SagaCompleted.WithLabelValues(tenant, outcome).Inc()
	m.SagaDuration.WithLabelValues(tenant, outcome).Observe(durationSeconds)
}

// RecordStage records a single stage handler's duration.
func (m *Metrics) RecordStage(stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordSelfCorrection increments the self-correction retry counter.
func (m *Metrics) RecordSelfCorrection() {
	m.SelfCorrectionRetries.Inc()
}

// RecordToolCall records a remote tool invocation's outcome and duration.
func (m *Metrics) RecordToolCall(tool, outcome string, durationSeconds float64) {
	m.ToolCallCounter.WithLabelValues(tool, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(durationSeconds)
}

// SetRegistryServerStatus sets the health gauge for a role/endpoint pair.
func (m *Metrics) SetRegistryServerStatus(role, endpoint string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.RegistryServerStatus.WithLabelValues(role, endpoint).Set(v)
}

// RecordHTTPRequest records an API request's outcome and latency.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordKBIngest records the number of chunks a single ingestion produced.
func (m *Metrics) RecordKBIngest(chunkCount int) {
	m.KBChunksIngested.Add(float64(chunkCount))
}

// RecordKBAsk records a retrieval-and-synthesis answer's latency.
func (m *Metrics) RecordKBAsk(durationSeconds float64) {
	m.KBAskDuration.Observe(durationSeconds)
}
