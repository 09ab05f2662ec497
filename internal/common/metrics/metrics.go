// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_classifications_total",
			Help: "Total number of classifications by resulting category and deciding strategy",
		},
		[]string{"category", "strategy"},
	)

	ClassificationConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_classification_confidence",
			Help:    "Distribution of classification confidence",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	SelectionMatches = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_selection_matches",
			Help:    "Number of workflow matches returned per selection",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	CascadeTierTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_selection_cascade_total",
			Help: "Selections by the deepest fallback tier reached",
		},
		[]string{"tier"},
	)

	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_executions_total",
			Help: "Execution status transitions",
		},
		[]string{"workflow_id", "status"},
	)

	ExecutionDuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_execution_duplicates_total",
			Help: "Execute calls absorbed by an existing idempotency record",
		},
	)

	ExecutionAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_execution_attempts",
			Help:    "Port attempts spent per finished execution",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
		[]string{"status"},
	)

	ExplanationCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_explanation_cache_total",
			Help: "Explanation lookups by layer and result",
		},
		[]string{"layer", "result"},
	)

	TelemetryDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_telemetry_dropped_total",
			Help: "Telemetry events dropped because the buffer was full",
		},
	)

	RegistryRegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_registry_registrations_total",
			Help: "Workflow registration attempts by outcome",
		},
		[]string{"outcome"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
