package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Model gateway metrics
	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_model_calls_total",
			Help: "Total number of model inference calls",
		},
		[]string{"model", "status"},
	)

	ModelRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_model_retries_total",
			Help: "Total number of retried model calls",
		},
		[]string{"model", "reason"},
	)

	CredentialRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepresearch_credential_rotations_total",
			Help: "Total number of credential profile rotations",
		},
	)

	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepresearch_model_call_duration_seconds",
			Help:    "Model inference call duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"model"},
	)

	// Tool metrics
	ToolExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"},
	)

	ToolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepresearch_tool_execution_duration_seconds",
			Help:    "Tool execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60},
		},
		[]string{"tool"},
	)

	// Collection loop metrics
	CollectionIterations = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepresearch_collection_iterations",
			Help:    "Number of iterations used per collection loop",
			Buckets: []float64{1, 3, 5, 10, 20, 40, 80},
		},
		[]string{"mode"},
	)

	// Report generation metrics
	ReportAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepresearch_report_attempts",
			Help:    "Number of continuation attempts used per report",
			Buckets: []float64{1, 2, 3, 5, 8, 10},
		},
		[]string{"mode"},
	)

	// Citation metrics
	CitationsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepresearch_citations_registered_total",
			Help: "Total number of distinct sources registered",
		},
	)

	// Pipeline metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepresearch_stage_duration_seconds",
			Help:    "Research pipeline stage duration in seconds",
			Buckets: []float64{1, 10, 30, 60, 300, 600, 1800, 3600},
		},
		[]string{"stage"},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_runs_completed_total",
			Help: "Total number of research runs completed",
		},
		[]string{"mode", "status"},
	)

	// Content cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_content_cache_hits_total",
			Help: "Fetched-content cache hits by layer",
		},
		[]string{"layer"},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepresearch_content_cache_misses_total",
			Help: "Fetched-content cache misses",
		},
	)
)

// RecordModelCall records one model call with its outcome.
func RecordModelCall(model, status string, seconds float64) {
	ModelCalls.WithLabelValues(model, status).Inc()
	ModelCallDuration.WithLabelValues(model).Observe(seconds)
}

// RecordToolExecution records one tool execution with its outcome.
func RecordToolExecution(tool, status string, seconds float64) {
	ToolExecutions.WithLabelValues(tool, status).Inc()
	ToolExecutionDuration.WithLabelValues(tool).Observe(seconds)
}
