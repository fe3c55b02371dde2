// Package metrics exposes Prometheus counters and gauges for the job
// pipeline, in the same promauto idiom as the rest of the corpus's
// production services (§ observability, carried as ambient stack even
// though the spec's scope stops short of an observability design).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podclip_jobs_submitted_total",
		Help: "Total number of jobs admitted by the scheduler.",
	})

	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podclip_jobs_completed_total",
		Help: "Total number of jobs that completed successfully.",
	})

	JobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podclip_jobs_failed_total",
		Help: "Total number of jobs that failed, labeled by kind.",
	}, []string{"kind"})

	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "podclip_jobs_in_flight",
		Help: "Number of jobs currently being processed by a worker.",
	})

	ProcessingDurationSec = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "podclip_job_processing_duration_seconds",
		Help:    "Wall-clock time to process one job end to end.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)

// Handler returns the standard promhttp scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
