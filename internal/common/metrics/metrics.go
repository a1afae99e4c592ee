// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Total number of search requests by module and target",
		},
		[]string{"module", "target"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "search_duration_seconds",
			Help: "Duration of search request processing in seconds",
		},
		[]string{"module", "target"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_cache_lookups_total",
			Help: "Cache lookups by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	FanoutBranchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_fanout_branch_failures_total",
			Help: "Fan-out branches that degraded to empty results",
		},
		[]string{"index"},
	)

	RelaxationSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_relaxation_steps_total",
			Help: "Relaxation steps applied to recover zero-result searches",
		},
		[]string{"step"},
	)

	ZeroResultSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_zero_results_total",
			Help: "Searches that remained empty after the full relaxation cascade",
		},
		[]string{"module"},
	)

	ZonesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "search_zones_loaded",
			Help: "Number of zone polygons in the active snapshot",
		},
	)
)
