// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the service updates.
type Metrics struct {
	Temperature    prometheus.Gauge
	Min            prometheus.Gauge
	Max            prometheus.Gauge
	Requests       *prometheus.CounterVec
	ActiveStreams  prometheus.Gauge
	StressRunning  prometheus.Gauge
	PublishDropped prometheus.Counter
	PublishErrors  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "thermal",
			Name:      "temperature_celsius",
			Help:      "Most recent CPU temperature reading.",
		}),
		Min: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "thermal",
			Name:      "min_celsius",
			Help:      "Lowest CPU temperature observed since start.",
		}),
		Max: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "thermal",
			Name:      "max_celsius",
			Help:      "Highest CPU temperature observed since start.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thermal",
			Name:      "rpc_requests_total",
			Help:      "RPC calls by method and outcome code.",
		}, []string{"method", "code"}),
		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "thermal",
			Name:      "active_streams",
			Help:      "Temperature streams currently open.",
		}),
		StressRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "thermal",
			Name:      "stress_tests_running",
			Help:      "Stress tests currently burning CPU.",
		}),
		PublishDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "thermal",
			Name:      "publish_dropped_total",
			Help:      "Samples dropped because the publish queue was full.",
		}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thermal",
			Name:      "publish_errors_total",
			Help:      "Failed sample deliveries by sink.",
		}, []string{"sink"}),
	}

	reg.MustRegister(
		m.Temperature,
		m.Min,
		m.Max,
		m.Requests,
		m.ActiveStreams,
		m.StressRunning,
		m.PublishDropped,
		m.PublishErrors,
	)
	return m
}

// NewNop returns collectors registered on a private registry, for tests and
// tools that do not export metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
