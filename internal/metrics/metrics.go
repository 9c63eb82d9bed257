// Package metrics exposes Prometheus collectors for the quill service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	signingRequestsTotal     *prometheus.CounterVec
	signingCacheTotal        *prometheus.CounterVec
	schedulerTasksTotal      *prometheus.CounterVec
	schedulerTaskDuration    *prometheus.HistogramVec
	schedulerRetriesTotal    prometheus.Counter
	schedulerActiveWorkers   prometheus.Gauge
	rateLimitWaitSeconds     prometheus.Histogram
	recoveryAttemptsTotal    *prometheus.CounterVec
	recoveryDiagnosesTotal   *prometheus.CounterVec
	runsTotal                *prometheus.CounterVec
	runDurationSeconds       prometheus.Histogram
	progressEventsDropped    prometheus.Counter
	progressCompletedByRunID *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times; only the first call registers anything.
func Init() {
	once.Do(func() {
		signingRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_signing_requests_total",
				Help: "Total signing requests, labeled by scheme and outcome.",
			},
			[]string{"scheme", "status"},
		)
		signingCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_signing_cache_total",
				Help: "Signature cache lookups, labeled by scheme and result.",
			},
			[]string{"scheme", "result"},
		)
		schedulerTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_scheduler_tasks_total",
				Help: "Tasks reaching a terminal state, labeled by status.",
			},
			[]string{"status"},
		)
		schedulerTaskDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quill_scheduler_task_duration_seconds",
				Help:    "Wall-clock duration of task executions.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"status"},
		)
		schedulerRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quill_scheduler_retries_total",
				Help: "Total retry attempts across all runs.",
			},
		)
		schedulerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "quill_scheduler_active_workers",
				Help: "Workers currently executing a task.",
			},
		)
		rateLimitWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quill_ratelimit_wait_seconds",
				Help:    "Time spent waiting for rate limiter admission.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
		)
		recoveryAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_recovery_attempts_total",
				Help: "Recovery action attempts, labeled by action and outcome.",
			},
			[]string{"action", "outcome"},
		)
		recoveryDiagnosesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_recovery_diagnoses_total",
				Help: "Fault diagnoses, labeled by category.",
			},
			[]string{"category"},
		)
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_runs_total",
				Help: "Completed batch runs, labeled by status.",
			},
			[]string{"status"},
		)
		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quill_run_duration_seconds",
				Help:    "Wall-clock duration of batch runs.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
			},
		)
		progressEventsDropped = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quill_progress_events_dropped_total",
				Help: "Progress events dropped because the hub buffer was full.",
			},
		)
		progressCompletedByRunID = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quill_run_tasks_completed",
				Help: "Tasks completed so far for in-flight runs.",
			},
			[]string{"run_id"},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SigningRequest records one signing call outcome.
func SigningRequest(scheme, status string) {
	if signingRequestsTotal == nil {
		return
	}
	if scheme == "" {
		scheme = "auto"
	}
	signingRequestsTotal.WithLabelValues(scheme, status).Inc()
}

// SigningCacheHit records a cache hit for a scheme.
func SigningCacheHit(scheme string) {
	if signingCacheTotal == nil {
		return
	}
	signingCacheTotal.WithLabelValues(scheme, "hit").Inc()
}

// SigningCacheMiss records a cache miss for a scheme.
func SigningCacheMiss(scheme string) {
	if signingCacheTotal == nil {
		return
	}
	signingCacheTotal.WithLabelValues(scheme, "miss").Inc()
}

// TaskFinished records a task reaching a terminal state.
func TaskFinished(status string, dur time.Duration) {
	if schedulerTasksTotal == nil {
		return
	}
	schedulerTasksTotal.WithLabelValues(status).Inc()
	schedulerTaskDuration.WithLabelValues(status).Observe(dur.Seconds())
}

// TaskRetried records one retry attempt.
func TaskRetried() {
	if schedulerRetriesTotal == nil {
		return
	}
	schedulerRetriesTotal.Inc()
}

// WorkerActive adjusts the active worker gauge by delta.
func WorkerActive(delta float64) {
	if schedulerActiveWorkers == nil {
		return
	}
	schedulerActiveWorkers.Add(delta)
}

// ObserveRateLimitWait records time spent blocked on admission control.
func ObserveRateLimitWait(d time.Duration) {
	if rateLimitWaitSeconds == nil {
		return
	}
	rateLimitWaitSeconds.Observe(d.Seconds())
}

// RecoveryAttempt records one recovery action attempt.
func RecoveryAttempt(action string, success bool) {
	if recoveryAttemptsTotal == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	recoveryAttemptsTotal.WithLabelValues(action, outcome).Inc()
}

// Diagnosis records one fault classification.
func Diagnosis(category string) {
	if recoveryDiagnosesTotal == nil {
		return
	}
	recoveryDiagnosesTotal.WithLabelValues(category).Inc()
}

// RunFinished records a batch run reaching a terminal state.
func RunFinished(status string, dur time.Duration) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(dur.Seconds())
}

// ProgressDropped counts progress events discarded under backpressure.
func ProgressDropped() {
	if progressEventsDropped == nil {
		return
	}
	progressEventsDropped.Inc()
}

// RunProgress publishes the completed-task count for a run.
func RunProgress(runID string, completed int) {
	if progressCompletedByRunID == nil {
		return
	}
	progressCompletedByRunID.WithLabelValues(runID).Set(float64(completed))
}

// RunProgressDone drops the per-run progress series once a run finishes.
func RunProgressDone(runID string) {
	if progressCompletedByRunID == nil {
		return
	}
	progressCompletedByRunID.DeleteLabelValues(runID)
}
