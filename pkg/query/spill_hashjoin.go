package query

import (
	"fmt"
	"os"
	"sort"

	"github.com/ao/serengeti/pkg/metrics"
	"github.com/ao/serengeti/pkg/storage"
)

// keyFn recovers the join key of a reloaded row
type keyFn func(*storage.Row) string

// HashJoinSpillManager partitions a hash-join build side and moves
// whole partitions between memory and disk under pressure.
type HashJoinSpillManager struct {
	dir     string
	queryID string
	opID    string
	counter int

	partitions []map[string][]*storage.Row
	files      []string // spill file per partition, "" when in memory
	spillOrder []int    // partitions spilled, oldest first
	key        keyFn

	metrics *metrics.Registry
}

// NewHashJoinSpillManager creates numPartitions empty partitions
func NewHashJoinSpillManager(dir, queryID, opID string, numPartitions int, reg *metrics.Registry) *HashJoinSpillManager {
	if numPartitions <= 0 {
		numPartitions = 8
	}
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}
	m := &HashJoinSpillManager{
		dir:        dir,
		queryID:    queryID,
		opID:       opID,
		partitions: make([]map[string][]*storage.Row, numPartitions),
		files:      make([]string, numPartitions),
		metrics:    reg,
	}
	for i := range m.partitions {
		m.partitions[i] = make(map[string][]*storage.Row)
	}
	return m
}

// Partition maps a join key to its partition number
func (m *HashJoinSpillManager) Partition(key string) int {
	var h uint32
	for i := 0; i < len(key); i++ {
		h = h*31 + uint32(key[i])
	}
	return int(h % uint32(len(m.partitions)))
}

// Add appends a build row under its key
func (m *HashJoinSpillManager) Add(key string, row *storage.Row) {
	p := m.Partition(key)
	m.partitions[p][key] = append(m.partitions[p][key], row)
}

// Probe returns the build rows for a key, loading the partition back
// from disk first when it was spilled.
func (m *HashJoinSpillManager) Probe(key string) ([]*storage.Row, error) {
	p := m.Partition(key)
	if m.files[p] != "" {
		if err := m.loadPartition(p); err != nil {
			return nil, err
		}
	}
	return m.partitions[p][key], nil
}

// SpillToDisk writes the largest in-memory partition to a temp file
// and clears it in place. Returns the bytes released.
func (m *HashJoinSpillManager) SpillToDisk() (int64, error) {
	victim, victimRows := -1, 0
	for i, part := range m.partitions {
		if m.files[i] != "" {
			continue
		}
		rows := 0
		for _, bucket := range part {
			rows += len(bucket)
		}
		if rows > victimRows {
			victim, victimRows = i, rows
		}
	}
	if victim < 0 {
		return 0, fmt.Errorf("all %d partitions already spilled", len(m.partitions))
	}

	var rows []*storage.Row
	keys := make([]string, 0, len(m.partitions[victim]))
	for key := range m.partitions[victim] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		rows = append(rows, m.partitions[victim][key]...)
	}

	m.counter++
	path := spillFile(m.dir, m.queryID, m.opID, m.counter)
	released, err := writeSpill(path, rows)
	if err != nil {
		return 0, err
	}

	m.partitions[victim] = make(map[string][]*storage.Row)
	m.files[victim] = path
	m.spillOrder = append(m.spillOrder, victim)
	m.metrics.RecordSpill("hash_join", int(released))
	return released, nil
}

// ReadFromDisk loads the most recently spilled partition back
func (m *HashJoinSpillManager) ReadFromDisk() error {
	if len(m.spillOrder) == 0 {
		return nil
	}
	return m.loadPartition(m.spillOrder[len(m.spillOrder)-1])
}

func (m *HashJoinSpillManager) loadPartition(p int) error {
	path := m.files[p]
	if path == "" {
		return nil
	}
	rows, err := readSpill(path)
	if err != nil {
		return err
	}
	part := make(map[string][]*storage.Row)
	for _, row := range rows {
		key := m.keyOf(row)
		part[key] = append(part[key], row)
	}
	m.partitions[p] = part
	m.files[p] = ""
	for i, sp := range m.spillOrder {
		if sp == p {
			m.spillOrder = append(m.spillOrder[:i], m.spillOrder[i+1:]...)
			break
		}
	}
	os.Remove(path)
	return nil
}

// SetKeyFunc installs the key extractor used when partitions reload
func (m *HashJoinSpillManager) SetKeyFunc(fn keyFn) { m.key = fn }

func (m *HashJoinSpillManager) keyOf(row *storage.Row) string {
	if m.key == nil {
		return ""
	}
	return m.key(row)
}

// AllPartitionsSpilled reports whether no in-memory partition remains
func (m *HashJoinSpillManager) AllPartitionsSpilled() bool {
	for _, f := range m.files {
		if f == "" {
			return false
		}
	}
	return true
}

// Cleanup removes every remaining spill file
func (m *HashJoinSpillManager) Cleanup() error {
	var firstErr error
	for i, f := range m.files {
		if f == "" {
			continue
		}
		if err := os.Remove(f); err != nil && firstErr == nil {
			firstErr = err
		}
		m.files[i] = ""
	}
	m.spillOrder = nil
	return firstErr
}
