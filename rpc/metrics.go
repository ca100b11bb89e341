package rpc

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// serverMetrics tracks JSON-RPC traffic per method and outcome.
type serverMetrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

func newServerMetrics() *serverMetrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stakeledger",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "Total JSON-RPC requests processed.",
	}, []string{"method", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stakeledger",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "Duration of JSON-RPC requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	registry.MustRegister(requests, durations)
	return &serverMetrics{registry: registry, requests: requests, durations: durations}
}

func (m *serverMetrics) observe(method, status string, duration time.Duration) {
	if method == "" {
		method = "unknown"
	}
	m.requests.WithLabelValues(method, status).Inc()
	m.durations.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *serverMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
