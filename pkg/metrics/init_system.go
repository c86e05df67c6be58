package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (r *Registry) initSystemMetrics() {
	r.UptimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "serengeti_uptime_seconds",
			Help: "Seconds since the node started",
		},
	)

	r.GoRoutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "serengeti_goroutines",
			Help: "Current number of goroutines",
		},
	)

	r.MemoryAllocBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "serengeti_memory_alloc_bytes",
			Help: "Heap bytes allocated and in use",
		},
	)

	r.MemorySysBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "serengeti_memory_sys_bytes",
			Help: "Bytes obtained from the OS",
		},
	)

	r.registry.MustRegister(
		r.UptimeSeconds,
		r.GoRoutines,
		r.MemoryAllocBytes,
		r.MemorySysBytes,
	)
}

// UpdateSystemMetrics refreshes runtime gauges. Called on each /metrics request.
func (r *Registry) UpdateSystemMetrics(startTime time.Time) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	r.UptimeSeconds.Set(time.Since(startTime).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(ms.Alloc))
	r.MemorySysBytes.Set(float64(ms.Sys))
}
