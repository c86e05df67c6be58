package metrics

import "time"

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordQuery records a statement execution
func (r *Registry) RecordQuery(queryType, status string, duration time.Duration) {
	r.QueriesTotal.WithLabelValues(queryType, status).Inc()
	r.QueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
}

// RecordSpill records one spill event for an operator kind
func (r *Registry) RecordSpill(operator string, bytes int) {
	r.SpillsTotal.WithLabelValues(operator).Inc()
	r.SpillBytesTotal.WithLabelValues(operator).Add(float64(bytes))
}

// RecordReplicationSend records the outcome of a point-to-point send
func (r *Registry) RecordReplicationSend(msgType string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
		r.ReplicationSendErrors.Inc()
	}
	r.ReplicationSendsTotal.WithLabelValues(msgType, status).Inc()
}

// RecordPersistPass records a persistence pass outcome
func (r *Registry) RecordPersistPass(duration time.Duration, err error) {
	r.PersistDuration.Observe(duration.Seconds())
	if err != nil {
		r.PersistErrorsTotal.Inc()
		r.PersistLastErrorTS.Set(float64(time.Now().Unix()))
		return
	}
	r.PersistPassesTotal.Inc()
}

// SetOnline flips the cluster online gauge
func (r *Registry) SetOnline(online bool) {
	if online {
		r.ClusterOnline.Set(1)
	} else {
		r.ClusterOnline.Set(0)
	}
}
