package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bookingsync"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	syncAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_attempts_total",
			Help:      "Queue delivery attempts by result (synced, retry, failed).",
		},
		[]string{"result"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Confirmed bookings by submission mode (direct, queued).",
		},
		[]string{"mode"},
	)

	queueEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_entries",
			Help:      "Queue entries by status.",
		},
		[]string{"status"},
	)

	networkTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_transitions_total",
			Help:      "Connectivity transitions by new status.",
		},
		[]string{"status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, syncAttempts, submissions, queueEntries, networkTransitions)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncSyncAttempt(result string) {
	syncAttempts.WithLabelValues(result).Inc()
}

func IncSubmission(mode string) {
	submissions.WithLabelValues(mode).Inc()
}

// SetQueueEntries replaces the per-status gauge values. Statuses missing from
// counts are reset to zero.
func SetQueueEntries(counts map[string]int, statuses []string) {
	for _, s := range statuses {
		queueEntries.WithLabelValues(s).Set(float64(counts[s]))
	}
}

func IncNetworkTransition(status string) {
	networkTransitions.WithLabelValues(status).Inc()
}
