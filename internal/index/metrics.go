package index

import "github.com/prometheus/client_golang/prometheus"

// Instrumentation follows downfa11-cursus/pkg/metrics/{broker,cluster}.go: package-level
// vectors registered once in init, labeled by the index's file path so a host process
// with many open segments gets per-segment series instead of one blurred global counter.
var (
	appendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offset_index_appends_total",
			Help: "Total number of index append attempts, by outcome.",
		},
		[]string{"index", "result"},
	)

	lookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offset_index_lookup_duration_seconds",
			Help:    "Latency of Lookup and FetchUpperBoundOffset calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"index"},
	)

	entriesInUse = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "offset_index_entries_in_use",
			Help: "Current number of live entries in the index.",
		},
		[]string{"index"},
	)
)

func init() {
	prometheus.MustRegister(appendsTotal, lookupDuration, entriesInUse)
}
