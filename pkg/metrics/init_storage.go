package metrics

import "github.com/prometheus/client_golang/prometheus"

func (r *Registry) initStorageMetrics() {
	r.StorageWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serengeti_storage_writes_total",
			Help: "LSM writes by table and status",
		},
		[]string{"table", "status"},
	)

	r.StorageReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serengeti_storage_reads_total",
			Help: "LSM reads by table and status",
		},
		[]string{"table", "status"},
	)

	r.StorageFlushesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "serengeti_storage_flushes_total",
			Help: "MemTable flushes to SSTables",
		},
	)

	r.StorageCompactions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "serengeti_storage_compactions_total",
			Help: "SSTable compactions performed",
		},
	)

	r.StorageSSTableCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "serengeti_storage_sstables",
			Help: "Live SSTable files across all engines",
		},
	)

	r.StorageMemTableBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "serengeti_storage_memtable_bytes",
			Help: "Bytes buffered in active MemTables",
		},
	)

	r.StorageBytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "serengeti_storage_bytes_written_total",
			Help: "Bytes written through the LSM engines",
		},
	)

	r.StorageWALAppends = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "serengeti_storage_wal_appends_total",
			Help: "Records appended to write-ahead logs",
		},
	)

	r.StorageWALBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "serengeti_storage_wal_bytes_total",
			Help: "Compressed bytes appended to write-ahead logs",
		},
	)

	r.registry.MustRegister(
		r.StorageWritesTotal,
		r.StorageReadsTotal,
		r.StorageFlushesTotal,
		r.StorageCompactions,
		r.StorageSSTableCount,
		r.StorageMemTableBytes,
		r.StorageBytesWritten,
		r.StorageWALAppends,
		r.StorageWALBytes,
	)
}
