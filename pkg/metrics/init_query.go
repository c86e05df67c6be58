package metrics

import "github.com/prometheus/client_golang/prometheus"

func (r *Registry) initQueryMetrics() {
	r.QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serengeti_queries_total",
			Help: "Executed statements by type and status",
		},
		[]string{"type", "status"},
	)

	r.QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serengeti_query_duration_seconds",
			Help:    "Statement execution latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	r.QueryCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "serengeti_query_cache_hits_total",
			Help: "Result cache hits",
		},
	)

	r.QueryCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "serengeti_query_cache_misses_total",
			Help: "Result cache misses",
		},
	)

	r.QueryCacheEvicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "serengeti_query_cache_evictions_total",
			Help: "Result cache evictions, including invalidations",
		},
	)

	r.SpillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serengeti_query_spills_total",
			Help: "Operator state spills to disk by operator kind",
		},
		[]string{"operator"},
	)

	r.SpillBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serengeti_query_spill_bytes_total",
			Help: "Bytes spilled to disk by operator kind",
		},
		[]string{"operator"},
	)

	r.QueryMemoryInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "serengeti_query_memory_bytes",
			Help: "Bytes currently charged to query contexts",
		},
	)

	r.registry.MustRegister(
		r.QueriesTotal,
		r.QueryDuration,
		r.QueryCacheHits,
		r.QueryCacheMisses,
		r.QueryCacheEvicts,
		r.SpillsTotal,
		r.SpillBytesTotal,
		r.QueryMemoryInUse,
	)
}
