// Package observability carries the engine's Prometheus metrics and its
// OpenTelemetry tracer handle. Components receive *Metrics at construction
// and record through typed vecs; registration happens once, in NewMetrics.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values shared across vecs.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeSkipped  = "skipped"
	OutcomeNotFound = "not_found"
)

// Result label values for distribution_items_total.
const (
	ItemRouted  = "routed"
	ItemDropped = "dropped"
)

// Metrics is the engine's metric set. All fields are non-nil after NewMetrics.
type Metrics struct {
	// Distributions counts scheduler calls by outcome; DistributionItems
	// counts canonical line items by routing result.
	Distributions        *prometheus.CounterVec
	DistributionItems    *prometheus.CounterVec
	DistributionDuration prometheus.Histogram

	// Migrations counts per-order migration attempts by outcome.
	Migrations          *prometheus.CounterVec
	RefundNotifications prometheus.Counter

	// TriggerEvents counts change-feed deliveries by trigger and outcome.
	TriggerEvents *prometheus.CounterVec

	// RelayMessages counts notification envelopes pushed to the Kafka side
	// channel.
	RelayMessages *prometheus.CounterVec

	// StoreRequests counts gateway round trips by operation and outcome.
	StoreRequests *prometheus.CounterVec

	// HTTPRequests and HTTPDuration are the RED view of the HTTP surface,
	// labelled with the route template, never the raw path.
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics builds and registers the metric set on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Distributions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "distributions_total",
				Help: "Total number of distribution scheduler calls.",
			},
			[]string{"outcome"},
		),
		DistributionItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "distribution_items_total",
				Help: "Canonical line items seen by the scheduler, by routing result.",
			},
			[]string{"result"},
		),
		DistributionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "distribution_duration_seconds",
				Help:    "Duration of distribution scheduler calls in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		Migrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "migrations_total",
				Help: "Open-order migration attempts between points of sale.",
			},
			[]string{"outcome"},
		),
		RefundNotifications: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "refund_notifications_total",
				Help: "Refund notifications emitted for sold-out items.",
			},
		),
		TriggerEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trigger_events_total",
				Help: "Change-feed deliveries processed by trigger handlers.",
			},
			[]string{"trigger", "outcome"},
		),
		RelayMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_messages_total",
				Help: "Notification envelopes relayed to Kafka.",
			},
			[]string{"outcome"},
		),
		StoreRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_requests_total",
				Help: "Document store round trips by operation and outcome.",
			},
			[]string{"op", "outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by method, route template and status code.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds by method and route template.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		m.Distributions,
		m.DistributionItems,
		m.DistributionDuration,
		m.Migrations,
		m.RefundNotifications,
		m.TriggerEvents,
		m.RelayMessages,
		m.StoreRequests,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// NewTestMetrics builds an unexported registry's metric set for tests.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
