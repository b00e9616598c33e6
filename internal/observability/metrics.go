// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the fund-accounting engine.
type Metrics struct {
	// Valuation metrics
	PoolsUpdated            prometheus.Counter
	PoolUpdateErrors        prometheus.Counter
	PoolUpdateDuration      prometheus.Histogram
	PositionValuationErrors *prometheus.CounterVec
	EngineSyncFailures      prometheus.Counter
	SnapshotWriteFailures   prometheus.Counter

	// Sweep metrics
	SweepsTotal         prometheus.Counter
	SweepPoolFailures   prometheus.Counter
	SweepDuration       prometheus.Histogram
	LastSuccessfulSweep prometheus.Gauge

	// Settlement metrics
	PositionsClosed  *prometheus.CounterVec
	SettlementErrors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "babylon_funds"
	}

	return &Metrics{
		// Valuation metrics
		PoolsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "pools_updated_total",
			Help:      "Total number of successful pool performance updates",
		}),
		PoolUpdateErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "pool_update_errors_total",
			Help:      "Total number of failed pool performance updates",
		}),
		PoolUpdateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "pool_update_duration_seconds",
			Help:      "Single pool update duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		PositionValuationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "position_valuation_errors_total",
			Help:      "Total number of per-position valuation failures by market type",
		}, []string{"market_type"}),
		EngineSyncFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "engine_sync_failures_total",
			Help:      "Total number of failed live-engine dirty-position flushes",
		}),
		SnapshotWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "snapshot_write_failures_total",
			Help:      "Total number of failed NAV snapshot writes",
		}),

		// Sweep metrics
		SweepsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Total number of fleet sweeps",
		}),
		SweepPoolFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "pool_failures_total",
			Help:      "Total number of pools skipped during sweeps due to errors",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Fleet sweep duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		LastSuccessfulSweep: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last fully attempted sweep",
		}),

		// Settlement metrics
		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "positions_closed_total",
			Help:      "Total number of positions closed by market type",
		}, []string{"market_type"}),
		SettlementErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "errors_total",
			Help:      "Total number of settlement failures by reason",
		}, []string{"reason"}),
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
