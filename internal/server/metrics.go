package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the HTTP surface.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ingestTotal     *prometheus.CounterVec
}

// NewMetricsWithRegisterer creates server metrics registered with the
// provided registerer.
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
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by matched route",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds by matched route",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		ingestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "payloads_total",
				Help:      "Total number of accepted camera payloads",
			},
			[]string{"camera_id"},
		),
	}

	// Ignore duplicate registration errors; descriptors are identical.
	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.ingestTotal,
	}
	for _, c := range collectors {
		_ = registerer.Register(c)
	}

	return m
}

// RecordRequest records one served request under its matched route pattern.
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordIngest records one accepted camera payload.
func (m *Metrics) RecordIngest(cameraID string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(cameraID).Inc()
}
