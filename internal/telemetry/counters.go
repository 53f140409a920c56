package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters holds the worker's Prometheus counters.
type Counters struct {
	BatchesProcessed  prometheus.Counter
	MetricsStored     prometheus.Counter
	MetricsRejected   prometheus.Counter
	OutliersDropped   prometheus.Counter
	RewardsCalculated prometheus.Counter
}

// NewCounters registers the worker counters with the default registry.
func NewCounters() *Counters {
	return NewCountersWith(prometheus.DefaultRegisterer)
}

// NewCountersWith registers the worker counters with reg.
func NewCountersWith(reg prometheus.Registerer) *Counters {
	factory := promauto.With(reg)
	return &Counters{
		BatchesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "depin_worker_batches_processed_total",
			Help: "Total telemetry batches processed",
		}),
		MetricsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "depin_worker_metrics_stored_total",
			Help: "Total metric records stored",
		}),
		MetricsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "depin_worker_metrics_rejected_total",
			Help: "Total metric records rejected by validation",
		}),
		OutliersDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "depin_worker_outliers_dropped_total",
			Help: "Total metric records dropped as statistical outliers",
		}),
		RewardsCalculated: factory.NewCounter(prometheus.CounterOpts{
			Name: "depin_worker_rewards_calculated_total",
			Help: "Total reward calculations persisted",
		}),
	}
}
