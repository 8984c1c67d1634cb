package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search Prometheus metrics.
var (
	CompileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sift",
			Name:      "compile_total",
			Help:      "Total number of criteria compilations",
		},
		[]string{"status"}, // "ok" / "error"
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sift",
			Name:      "search_duration_seconds",
			Help:      "Search execution duration in seconds, including scroll continuations",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)

	ScrollFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sift",
			Name:      "scroll_fetches_total",
			Help:      "Total number of scroll continuations",
		},
		[]string{"status"},
	)

	MaterializedHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sift",
			Name:      "materialized_hits_total",
			Help:      "Total number of hits decoded into results",
		},
	)

	AggCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sift",
			Name:      "aggregation_cache_total",
			Help:      "Aggregation cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(CompileTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(ScrollFetchesTotal)
	prometheus.MustRegister(MaterializedHitsTotal)
	prometheus.MustRegister(AggCacheTotal)
	searchMetricsRegistered = true
}
