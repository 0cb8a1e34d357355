// Package metrics holds the Prometheus collectors for the rating
// processor, exposed on the healthcheck server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesConsumed counts messages delivered to the router, per topic.
	MessagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rating_processor_messages_consumed_total",
		Help: "Messages consumed from the bus, by topic",
	}, []string{"topic"})

	// MessagesDropped counts messages dropped before dispatch completed.
	MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rating_processor_messages_dropped_total",
		Help: "Messages dropped, by topic and reason",
	}, []string{"topic", "reason"})

	// RoundsRated counts rounds successfully rated end to end.
	RoundsRated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rating_processor_rounds_rated_total",
		Help: "Rounds rated and committed",
	})

	// RoundsSkipped counts rounds found already calculated.
	RoundsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rating_processor_rounds_skipped_total",
		Help: "Rounds skipped because they were already calculated",
	})

	// EnginePassDuration observes the duration of each engine pass.
	EnginePassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rating_processor_engine_pass_duration_seconds",
		Help:    "Duration of each rating engine pass",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	}, []string{"pass"})

	// ReconcileFailures counts attendance reconciliations that degraded.
	ReconcileFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rating_processor_reconcile_failures_total",
		Help: "Attendance reconciliations that failed and were skipped",
	})
)
