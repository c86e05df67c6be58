package metrics

import "github.com/prometheus/client_golang/prometheus"

func (r *Registry) initClusterMetrics() {
	r.ClusterSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "serengeti_cluster_size",
			Help: "Members currently visible in the cluster, including self",
		},
	)

	r.ClusterSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "serengeti_cluster_sweeps_total",
			Help: "Completed discovery sweeps",
		},
	)

	r.ClusterNodesLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "serengeti_cluster_nodes_lost_total",
			Help: "Members evicted after missing a sweep",
		},
	)

	r.ClusterReshuffles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "serengeti_cluster_reshuffles_total",
			Help: "Replica reshuffles performed after node loss",
		},
	)

	r.ClusterOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "serengeti_cluster_online",
			Help: "1 when the node considers itself online, else 0",
		},
	)

	r.registry.MustRegister(
		r.ClusterSize,
		r.ClusterSweepsTotal,
		r.ClusterNodesLost,
		r.ClusterReshuffles,
		r.ClusterOnline,
	)
}
