package metrics

import "github.com/prometheus/client_golang/prometheus"

func (r *Registry) initReplicationMetrics() {
	r.ReplicationSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serengeti_replication_sends_total",
			Help: "Point-to-point replication sends by message type and status",
		},
		[]string{"type", "status"},
	)

	r.ReplicationSendErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "serengeti_replication_send_errors_total",
			Help: "Replication sends that failed with a network error",
		},
	)

	r.ReplicationBroadcasts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "serengeti_replication_broadcasts_total",
			Help: "Broadcast fan-outs to all members",
		},
	)

	r.registry.MustRegister(
		r.ReplicationSendsTotal,
		r.ReplicationSendErrors,
		r.ReplicationBroadcasts,
	)
}
