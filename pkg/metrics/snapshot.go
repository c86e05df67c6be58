package metrics

import (
	"strings"

	dto "github.com/prometheus/client_model/go"
)

// Snapshot is the JSON shape served by GET /metrics, grouping gathered
// metric families into the documented sections.
type Snapshot struct {
	System  map[string]float64 `json:"system"`
	Runtime map[string]float64 `json:"runtime"`
	Server  map[string]float64 `json:"server"`
	Network map[string]float64 `json:"network"`
}

// Snapshot gathers the registry and flattens each family into the section
// it belongs to. Vector metrics are summed across label sets; labeled
// entries additionally appear as name{label=value}.
func (r *Registry) Snapshot() (*Snapshot, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		System:  make(map[string]float64),
		Runtime: make(map[string]float64),
		Server:  make(map[string]float64),
		Network: make(map[string]float64),
	}

	for _, mf := range families {
		section := snap.sectionFor(mf.GetName())
		total := 0.0
		for _, m := range mf.GetMetric() {
			v := metricValue(m)
			total += v
			if labels := labelSuffix(m); labels != "" {
				section[mf.GetName()+labels] = v
			}
		}
		section[mf.GetName()] = total
	}

	return snap, nil
}

func (s *Snapshot) sectionFor(name string) map[string]float64 {
	switch {
	case strings.HasPrefix(name, "serengeti_cluster_"),
		strings.HasPrefix(name, "serengeti_replication_"):
		return s.Network
	case strings.HasPrefix(name, "serengeti_http_"):
		return s.Server
	case strings.HasPrefix(name, "serengeti_goroutines"),
		strings.HasPrefix(name, "serengeti_memory_"),
		strings.HasPrefix(name, "serengeti_uptime_"):
		return s.Runtime
	default:
		// Storage, query, persistence and anything unrecognized.
		return s.System
	}
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Histogram != nil:
		return float64(m.Histogram.GetSampleCount())
	case m.Summary != nil:
		return float64(m.Summary.GetSampleCount())
	default:
		return 0
	}
}

func labelSuffix(m *dto.Metric) string {
	if len(m.GetLabel()) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		parts = append(parts, lp.GetName()+"="+lp.GetValue())
	}
	return "{" + strings.Join(parts, ",") + "}"
}
