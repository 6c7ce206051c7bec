// Package observability bundles the Prometheus collectors exported by the
// sqew server.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the HTTP layer and the engine surface feed.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	Enqueued     prometheus.Counter
	Polled       prometheus.Counter
	Acked        prometheus.Counter
}

// NewMetrics registers the collectors under namespace with reg and returns
// the bundle.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	labels := []string{"method", "path", "status"}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, labels)
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, labels)
	enqueued := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_enqueued_total",
		Help:      "Messages accepted over HTTP.",
	})
	polled := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_polled_total",
		Help:      "Messages leased to consumers over HTTP.",
	})
	acked := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_acked_total",
		Help:      "Messages acknowledged (deleted) over HTTP.",
	})

	reg.MustRegister(requests, duration, enqueued, polled, acked)

	return &Metrics{
		HTTPRequests: requests,
		HTTPDuration: duration,
		Enqueued:     enqueued,
		Polled:       polled,
		Acked:        acked,
	}
}
