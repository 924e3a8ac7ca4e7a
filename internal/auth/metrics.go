package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for authentication.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	failuresTotal   *prometheus.CounterVec
}

// NewMetrics creates auth metrics registered with the default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates auth metrics registered with the
// provided registerer. Useful for tests and the gateway's custom registry.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "camgate"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "requests_total",
				Help:      "Total number of authentication attempts",
			},
			[]string{"scheme", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "request_duration_seconds",
				Help:      "Authentication evaluation duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"scheme"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "failures_total",
				Help:      "Total number of failed authentications by reason",
			},
			[]string{"scheme", "reason"},
		),
	}

	// Ignore duplicate registration errors; descriptors are identical.
	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.failuresTotal,
	}
	for _, c := range collectors {
		_ = registerer.Register(c)
	}

	return m
}

// RecordAttempt records one authentication attempt.
func (m *Metrics) RecordAttempt(scheme, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(scheme, outcome).Inc()
	m.requestDuration.WithLabelValues(scheme).Observe(duration.Seconds())
}

// RecordFailure records one failed authentication by reason.
func (m *Metrics) RecordFailure(scheme, reason string) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(scheme, reason).Inc()
}
