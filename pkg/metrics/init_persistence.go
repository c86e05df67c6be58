package metrics

import "github.com/prometheus/client_golang/prometheus"

func (r *Registry) initPersistenceMetrics() {
	r.PersistPassesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "serengeti_persist_passes_total",
			Help: "Completed persistence passes",
		},
	)

	r.PersistErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "serengeti_persist_errors_total",
			Help: "Persistence passes aborted by an error",
		},
	)

	r.PersistLastErrorTS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "serengeti_persist_last_error_timestamp_seconds",
			Help: "Unix time of the last persistence error, 0 when none",
		},
	)

	r.PersistDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "serengeti_persist_pass_duration_seconds",
			Help:    "Duration of full persistence passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	r.registry.MustRegister(
		r.PersistPassesTotal,
		r.PersistErrorsTotal,
		r.PersistLastErrorTS,
		r.PersistDuration,
	)
}
