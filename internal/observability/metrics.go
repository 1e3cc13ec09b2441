// Package observability provides Prometheus metrics and structured logging
// for the delivery pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting pipeline metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Inbound and outbound message flow
//   - Generation request performance per provider
//   - Token consumption and accumulated cost
//   - Delivery outcomes (sent, retried, dropped)
//   - Queue depth and hourly send counter
type Metrics struct {
	// InboundCounter counts inbound events by outcome.
	// Labels: outcome (processed|duplicate|auto_reply_off|error)
	InboundCounter *prometheus.CounterVec

	// GenerationDuration measures provider call latency in seconds.
	// Labels: provider (anthropic|openai)
	GenerationDuration *prometheus.HistogramVec

	// GenerationCounter counts generation requests.
	// Labels: provider, status (success|error)
	GenerationCounter *prometheus.CounterVec

	// TokensUsed tracks token consumption.
	// Labels: provider, type (input|output)
	TokensUsed *prometheus.CounterVec

	// DeliveryCounter counts delivery outcomes.
	// Labels: outcome (sent|retried|dropped)
	DeliveryCounter *prometheus.CounterVec

	// QueueDepth is a gauge tracking envelopes awaiting delivery.
	QueueDepth prometheus.Gauge

	// SentThisHour is a gauge mirroring the fixed-window hourly counter.
	SentThisHour prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics with the given
// registerer. Pass prometheus.DefaultRegisterer for production use; tests
// should pass a fresh registry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		InboundCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sofia_inbound_events_total",
				Help: "Total inbound events by processing outcome",
			},
			[]string{"outcome"},
		),

		GenerationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sofia_generation_duration_seconds",
				Help:    "Duration of reply generation calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),

		GenerationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sofia_generation_requests_total",
				Help: "Total generation requests by provider and status",
			},
			[]string{"provider", "status"},
		),

		TokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sofia_tokens_total",
				Help: "Total tokens consumed by provider and direction",
			},
			[]string{"provider", "type"},
		),

		DeliveryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sofia_deliveries_total",
				Help: "Total delivery attempts by outcome",
			},
			[]string{"outcome"},
		),

		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sofia_queue_depth",
				Help: "Envelopes currently waiting in the outbound queue",
			},
		),

		SentThisHour: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sofia_sent_this_hour",
				Help: "Messages sent within the current fixed hourly window",
			},
		),
	}
}
