package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hittracker"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	remoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Marketplace requests by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	remoteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_request_duration_seconds",
			Help:      "Marketplace request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	itemsMerged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_merged_total",
			Help:      "Work items merged from status pages.",
		},
	)

	itemsAbandoned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_abandoned_total",
			Help:      "Work items reclassified as abandoned by the queue sweep.",
		},
	)

	daysProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "days_processed_total",
			Help:      "Business days processed by result (synced, settled, failed).",
		},
		[]string{"result"},
	)

	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Sync runs by kind and result.",
		},
		[]string{"kind", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			remoteRequests,
			remoteDuration,
			itemsMerged,
			itemsAbandoned,
			daysProcessed,
			syncRuns,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// ObserveRemote records one marketplace attempt.
func ObserveRemote(endpoint, outcome string, elapsed time.Duration) {
	remoteRequests.WithLabelValues(endpoint, outcome).Inc()
	remoteDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func AddMerged(n int) {
	itemsMerged.Add(float64(n))
}

func AddAbandoned(n int) {
	itemsAbandoned.Add(float64(n))
}

func IncDay(result string) {
	daysProcessed.WithLabelValues(result).Inc()
}

func IncRun(kind, result string) {
	syncRuns.WithLabelValues(kind, result).Inc()
}
