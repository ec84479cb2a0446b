package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		jobsProcessed,
		jobDurationSeconds,
		jobsRequeued,
	)
}

var (
	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Jobs finished per type and outcome (completed, retried, failed).",
		},
		[]string{"type", "outcome"},
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Wall-clock handler duration per job type.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"type"},
	)

	jobsRequeued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_requeued_total",
			Help: "Jobs returned to the queue for retry, per type.",
		},
		[]string{"type"},
	)
)

// JobProcessed records one finished job with its outcome label.
func JobProcessed(jobType, outcome string, took time.Duration) {
	jobsProcessed.WithLabelValues(jobType, outcome).Inc()
	jobDurationSeconds.WithLabelValues(jobType).Observe(took.Seconds())
}

// JobRequeued records one retry-bound requeue.
func JobRequeued(jobType string) {
	jobsRequeued.WithLabelValues(jobType).Inc()
}
