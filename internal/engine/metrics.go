package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "renderd",
			Subsystem: "engine",
			Name:      "jobs_total",
			Help:      "Total compute jobs by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "renderd",
			Subsystem: "engine",
			Name:      "job_duration_seconds",
			Help:      "Duration of compute jobs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal, jobDuration)
}

func observeJob(kind Kind, status Status, d time.Duration) {
	jobsTotal.WithLabelValues(string(kind), string(status)).Inc()
	jobDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}
