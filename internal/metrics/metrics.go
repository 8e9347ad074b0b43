// Package metrics exposes the Prometheus counters the cache and simulation
// driver update during operation:
//   - gridbot_fetch_days_total{result}  – upstream day fetches (ok|empty|error)
//   - gridbot_cache_hits_total          – range requests served with zero fetches
//   - gridbot_probe_fetches_total       – first-day discovery probe fetches
//   - gridbot_bars_processed_total      – minute bars stepped by the driver
//
// Registered in init() and served at /metrics when the CLI enables the
// exposition endpoint.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	FetchDays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_fetch_days_total",
			Help: "Upstream day fetches by result",
		},
		[]string{"result"},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridbot_cache_hits_total",
			Help: "Range requests fully served from the local cache",
		},
	)

	ProbeFetches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridbot_probe_fetches_total",
			Help: "Probe fetches used for first-available-day discovery",
		},
	)

	BarsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gridbot_bars_processed_total",
			Help: "Minute bars stepped by the simulation driver",
		},
	)
)

func init() {
	prometheus.MustRegister(FetchDays, CacheHits, ProbeFetches, BarsProcessed)
}
