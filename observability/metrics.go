// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the dispatch pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the dispatch pipeline.
type Metrics struct {
	EventsDispatched  prometheus.Counter
	UnknownEvents     prometheus.Counter
	DeliveriesTotal   *prometheus.CounterVec
	DeliveryLatency   prometheus.Histogram
	PendingDeliveries prometheus.Gauge
}

// NewMetrics creates the dispatch metric instruments and registers them with
// reg. Pass prometheus.DefaultRegisterer for standalone usage.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_events_total",
			Help: "Total domain events dispatched.",
		}),
		UnknownEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_unknown_events_total",
			Help: "Dispatched events whose name is outside the known vocabulary.",
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_deliveries_total",
			Help: "Delivery attempts by outcome.",
		}, []string{"outcome"}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_delivery_latency_seconds",
			Help:    "Latency of webhook delivery attempts.",
			Buckets: prometheus.DefBuckets,
		}),
		PendingDeliveries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_pending_deliveries",
			Help: "Deliveries awaiting attempt.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.EventsDispatched,
			m.UnknownEvents,
			m.DeliveriesTotal,
			m.DeliveryLatency,
			m.PendingDeliveries,
		)
	}

	return m
}

// RecordDelivery records a delivery attempt with the given outcome and latency.
func (m *Metrics) RecordDelivery(outcome string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabelValues(outcome).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}
