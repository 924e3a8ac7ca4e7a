package audit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for audit emission.
type Metrics struct {
	eventsTotal           *prometheus.CounterVec
	deliveryFailuresTotal prometheus.Counter
}

// NewMetrics creates audit metrics registered with the default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates audit metrics registered with the
// provided registerer, so they appear on the gateway's /metrics endpoint.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "camgate"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "events_total",
				Help:      "Total number of emitted security events",
			},
			[]string{"event_type", "severity"},
		),
		deliveryFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "delivery_failures_total",
				Help:      "Total number of sink delivery failures",
			},
		),
	}

	// Ignore duplicate registration errors; descriptors are identical.
	_ = registerer.Register(m.eventsTotal)
	_ = registerer.Register(m.deliveryFailuresTotal)

	return m
}

// RecordEvent records one emitted event.
func (m *Metrics) RecordEvent(eventType EventType) {
	if m == nil || m.eventsTotal == nil {
		return
	}
	m.eventsTotal.WithLabelValues(string(eventType), string(eventType.Severity())).Inc()
}

// RecordDeliveryFailure records one sink delivery failure.
func (m *Metrics) RecordDeliveryFailure() {
	if m == nil || m.deliveryFailuresTotal == nil {
		return
	}
	m.deliveryFailuresTotal.Inc()
}
