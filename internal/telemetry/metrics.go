package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	OrdersTotal    *prometheus.CounterVec
	BatchDuration  prometheus.Histogram
	CarrierErrors  *prometheus.CounterVec
	OffersInserted prometheus.Counter
}

// NewMetrics creates and registers Prometheus metrics. Call once per
// process; promauto registers on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		OrdersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_orders_total",
				Help: "Total orders processed by outcome",
			},
			[]string{"outcome"},
		),
		BatchDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dispatch_batch_duration_seconds",
				Help:    "Label batch duration in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		CarrierErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_carrier_errors_total",
				Help: "Total carrier API errors by operation and error type",
			},
			[]string{"operation", "error_type"},
		),
		OffersInserted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dispatch_offer_inserts_total",
				Help: "Total discount inserts added to batches",
			},
		),
	}
}

// RecordOrder records one processed order by outcome.
func (m *Metrics) RecordOrder(outcome string) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(outcome).Inc()
}

// RecordBatch records a completed batch run.
func (m *Metrics) RecordBatch(seconds float64) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(seconds)
}

// RecordCarrierError records a carrier API error.
func (m *Metrics) RecordCarrierError(operation, errorType string) {
	if m == nil {
		return
	}
	m.CarrierErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordOfferInsert records one discount insert.
func (m *Metrics) RecordOfferInsert() {
	if m == nil {
		return
	}
	m.OffersInserted.Inc()
}
