package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric family the node exports
type Registry struct {
	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Storage (LSM)
	StorageWritesTotal   *prometheus.CounterVec
	StorageReadsTotal    *prometheus.CounterVec
	StorageFlushesTotal  prometheus.Counter
	StorageCompactions   prometheus.Counter
	StorageSSTableCount  prometheus.Gauge
	StorageMemTableBytes prometheus.Gauge
	StorageBytesWritten  prometheus.Counter
	StorageWALAppends    prometheus.Counter
	StorageWALBytes      prometheus.Counter

	// Query
	QueriesTotal     *prometheus.CounterVec
	QueryDuration    *prometheus.HistogramVec
	QueryCacheHits   prometheus.Counter
	QueryCacheMisses prometheus.Counter
	QueryCacheEvicts prometheus.Counter
	SpillsTotal      *prometheus.CounterVec
	SpillBytesTotal  *prometheus.CounterVec
	QueryMemoryInUse prometheus.Gauge

	// Cluster
	ClusterSize        prometheus.Gauge
	ClusterSweepsTotal prometheus.Counter
	ClusterNodesLost   prometheus.Counter
	ClusterReshuffles  prometheus.Counter
	ClusterOnline      prometheus.Gauge

	// Replication
	ReplicationSendsTotal *prometheus.CounterVec
	ReplicationSendErrors prometheus.Counter
	ReplicationBroadcasts prometheus.Counter

	// Persistence
	PersistPassesTotal prometheus.Counter
	PersistErrorsTotal prometheus.Counter
	PersistLastErrorTS prometheus.Gauge
	PersistDuration    prometheus.Histogram

	// System
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with all metric families initialized
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.initHTTPMetrics()
	r.initStorageMetrics()
	r.initQueryMetrics()
	r.initClusterMetrics()
	r.initReplicationMetrics()
	r.initPersistenceMetrics()
	r.initSystemMetrics()

	return r
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}
