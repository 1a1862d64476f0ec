// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
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

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	// InferenceRequests counts calls to the inference service by endpoint
	// and outcome (ok or an error code).
	InferenceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_requests_total",
			Help: "Requests sent to the inference service",
		},
		[]string{"endpoint", "outcome"},
	)

	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_request_duration_seconds",
			Help:    "Latency of inference service requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prediction_validation_failures_total",
			Help: "Submissions rejected before any network call",
		},
		[]string{"error_code"},
	)

	// StaleResults counts prediction outcomes discarded because a newer
	// attempt had already been issued.
	StaleResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prediction_stale_results_total",
			Help: "Prediction results discarded by the staleness guard",
		},
	)

	MetadataCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadata_cache_lookups_total",
			Help: "Metadata cache lookups by result",
		},
		[]string{"backend", "result"},
	)
)

// Outcome returns the metric label for an error code; "ok" when empty.
func Outcome(code string) string {
	if code == "" {
		return "ok"
	}
	return code
}
