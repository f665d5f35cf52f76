// Package metrics exposes the engine's operation counters and latency
// histograms as Prometheus collectors, for scraping by whatever surface
// wraps the core (the HTTP layer is out of scope here; this package only
// owns registration and the /metrics handler).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts engine operations by name and outcome
	// ("ok" or the error kind).
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memcore_operations_total",
		Help: "Count of engine operations by name and outcome.",
	}, []string{"operation", "outcome"})

	// OperationDuration observes wall-clock latency per operation.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "memcore_operation_duration_seconds",
		Help:    "Latency of engine operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// IndexSize reports the current cardinality of each secondary index.
	IndexSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "memcore_index_size",
		Help: "Number of keys currently held by each secondary index.",
	}, []string{"index"})

	// HealthStatus reports 1 for the currently active health status, 0
	// for the other two, so a dashboard can chart state transitions.
	HealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "memcore_health_status",
		Help: "1 iff status is the engine's current health status.",
	}, []string{"status"})
)

// Handler exposes every registered collector for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetHealthStatus marks current as the active status and every other
// known status as inactive.
func SetHealthStatus(current string, known ...string) {
	for _, s := range known {
		v := 0.0
		if s == current {
			v = 1.0
		}
		HealthStatus.WithLabelValues(s).Set(v)
	}
}
