package query

import (
	"os"
	"sort"

	"github.com/ao/serengeti/pkg/metrics"
	"github.com/ao/serengeti/pkg/storage"
)

// RowComparator orders two rows; negative means a before b
type RowComparator func(a, b *storage.Row) int

// SortSpillManager buffers rows in fixed-size chunks and spills
// sorted chunks to disk. MergeChunks produces the final ordering by
// k-way merging everything.
type SortSpillManager struct {
	dir     string
	queryID string
	opID    string
	counter int

	compare      RowComparator
	maxChunkRows int

	current []*storage.Row
	files   []string

	metrics *metrics.Registry
}

// NewSortSpillManager creates a sort buffer with the given chunk size
func NewSortSpillManager(dir, queryID, opID string, compare RowComparator, maxChunkRows int, reg *metrics.Registry) *SortSpillManager {
	if maxChunkRows <= 0 {
		maxChunkRows = 10000
	}
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}
	return &SortSpillManager{
		dir:          dir,
		queryID:      queryID,
		opID:         opID,
		compare:      compare,
		maxChunkRows: maxChunkRows,
		metrics:      reg,
	}
}

// Add buffers one row, spilling the chunk when it fills
func (m *SortSpillManager) Add(row *storage.Row) error {
	m.current = append(m.current, row)
	if len(m.current) >= m.maxChunkRows {
		_, err := m.SpillToDisk()
		return err
	}
	return nil
}

// SpillToDisk sorts the in-memory chunk and writes it out. Returns
// the bytes released.
func (m *SortSpillManager) SpillToDisk() (int64, error) {
	if len(m.current) == 0 {
		return 0, nil
	}
	sort.SliceStable(m.current, func(i, j int) bool {
		return m.compare(m.current[i], m.current[j]) < 0
	})

	m.counter++
	path := spillFile(m.dir, m.queryID, m.opID, m.counter)
	released, err := writeSpill(path, m.current)
	if err != nil {
		return 0, err
	}
	m.files = append(m.files, path)
	m.current = nil
	m.metrics.RecordSpill("sort", int(released))
	return released, nil
}

// ReadFromDisk loads the most recently spilled chunk back into the
// in-memory buffer and re-sorts the combined set.
func (m *SortSpillManager) ReadFromDisk() error {
	if len(m.files) == 0 {
		return nil
	}
	path := m.files[len(m.files)-1]
	rows, err := readSpill(path)
	if err != nil {
		return err
	}
	m.files = m.files[:len(m.files)-1]
	os.Remove(path)

	m.current = append(m.current, rows...)
	sort.SliceStable(m.current, func(i, j int) bool {
		return m.compare(m.current[i], m.current[j]) < 0
	})
	return nil
}

// MergeChunks k-way merges all spilled chunks with the in-memory
// remainder into one sorted stream.
func (m *SortSpillManager) MergeChunks() ([]*storage.Row, error) {
	chunks := make([][]*storage.Row, 0, len(m.files)+1)

	if len(m.current) > 0 {
		tail := append([]*storage.Row(nil), m.current...)
		sort.SliceStable(tail, func(i, j int) bool {
			return m.compare(tail[i], tail[j]) < 0
		})
		chunks = append(chunks, tail)
	}
	for _, path := range m.files {
		rows, err := readSpill(path)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, rows)
	}

	// Cursor per chunk; repeatedly take the smallest head. The chunk
	// count is small, so a linear scan beats heap bookkeeping.
	heads := make([]int, len(chunks))
	total := 0
	for _, c := range chunks {
		total += len(c)
	}

	out := make([]*storage.Row, 0, total)
	for len(out) < total {
		best := -1
		for i, c := range chunks {
			if heads[i] >= len(c) {
				continue
			}
			if best < 0 || m.compare(c[heads[i]], chunks[best][heads[best]]) < 0 {
				best = i
			}
		}
		out = append(out, chunks[best][heads[best]])
		heads[best]++
	}
	return out, nil
}

// SpilledChunks reports how many chunks sit on disk
func (m *SortSpillManager) SpilledChunks() int { return len(m.files) }

// Cleanup removes all spill files
func (m *SortSpillManager) Cleanup() error {
	var firstErr error
	for _, path := range m.files {
		if err := os.Remove(path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.files = nil
	m.current = nil
	return firstErr
}
