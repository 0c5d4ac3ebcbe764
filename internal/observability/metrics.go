// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the round service.
type Metrics struct {
	// Operation metrics
	OperationsTotal   *prometheus.CounterVec // by op
	OperationErrors   *prometheus.CounterVec // by op, error kind
	OperationDuration *prometheus.HistogramVec

	// Round state gauges
	RaisedValue  *prometheus.GaugeVec // by round_id
	TotalSold    *prometheus.GaugeVec
	Participants *prometheus.GaugeVec

	// Flow counters
	BuysTotal    prometheus.Counter
	ClaimsTotal  prometheus.Counter
	RefundsTotal prometheus.Counter

	// Audit trail
	AuditEventsEmitted prometheus.Counter
	AuditEventErrors   prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_raise"
	}

	return &Metrics{
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Round operations attempted, by operation.",
		}, []string{"op"}),
		OperationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Rejected round operations, by operation and error kind.",
		}, []string{"op", "kind"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Round operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),

		RaisedValue: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "raised_value",
			Help:      "Cumulative raised coin units per round.",
		}, []string{"round_id"}),
		TotalSold: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_sold",
			Help:      "Cumulative sold token units per round.",
		}, []string{"round_id"}),
		Participants: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants",
			Help:      "Participant count per round.",
		}, []string{"round_id"}),

		BuysTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buys_total",
			Help:      "Successful buy operations.",
		}),
		ClaimsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Successful claim operations.",
		}),
		RefundsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Successful refund operations.",
		}),

		AuditEventsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_emitted_total",
			Help:      "Audit events written to the event store.",
		}),
		AuditEventErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_event_errors_total",
			Help:      "Audit event writes that failed.",
		}),
	}
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
