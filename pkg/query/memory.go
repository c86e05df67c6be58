package query

import (
	"sync"

	"github.com/ao/serengeti/pkg/logging"
	"github.com/ao/serengeti/pkg/metrics"
	"github.com/google/uuid"
)

// DefaultQueryMemoryFraction is the share of the process budget
// available to queries; the remainder is reserved for everything
// else.
const DefaultQueryMemoryFraction = 0.7

// SpillManager is the executor-side hook the memory manager forces
// when an allocation does not fit.
type SpillManager interface {
	// SpillToDisk moves one unit of in-memory state to disk and
	// returns the bytes released.
	SpillToDisk() (int64, error)
	// ReadFromDisk loads the most recently spilled unit back.
	ReadFromDisk() error
	// Cleanup removes all spill files.
	Cleanup() error
}

// MemoryManager tracks per-query, per-operation memory charges
// against a process-wide budget.
type MemoryManager struct {
	pool int64 // bytes available to queries

	mu      sync.Mutex
	used    int64
	queries map[string]*QueryContext

	log     logging.Logger
	metrics *metrics.Registry
}

// QueryContext is the per-query ledger of charges and spill managers
type QueryContext struct {
	ID  string
	ops map[string]*opState
}

type opState struct {
	bytes int64
	spill SpillManager
}

// NewMemoryManager creates a manager over a total process budget.
// fraction <= 0 uses the default query pool share.
func NewMemoryManager(budget int64, fraction float64, log logging.Logger, reg *metrics.Registry) *MemoryManager {
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultQueryMemoryFraction
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}
	return &MemoryManager{
		pool:    int64(float64(budget) * fraction),
		queries: make(map[string]*QueryContext),
		log:     log,
		metrics: reg,
	}
}

// CreateQueryContext registers a new query and returns its id
func (m *MemoryManager) CreateQueryContext() string {
	id := uuid.NewString()
	m.mu.Lock()
	m.queries[id] = &QueryContext{ID: id, ops: make(map[string]*opState)}
	m.mu.Unlock()
	return id
}

// RegisterSpillManager attaches a spill manager to one operation
func (m *MemoryManager) RegisterSpillManager(queryID, opID string, sm SpillManager) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queries[queryID]
	if !ok {
		return
	}
	q.op(opID).spill = sm
}

// Allocate charges bytes to an operation. When the pool cannot fit
// the charge, the operation's spill manager is forced once and the
// allocation retried; false means the query must fail or spill by
// other means.
func (m *MemoryManager) Allocate(queryID, opID string, bytes int64) bool {
	m.mu.Lock()
	q, ok := m.queries[queryID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if m.used+bytes <= m.pool {
		m.used += bytes
		q.op(opID).bytes += bytes
		m.mu.Unlock()
		return true
	}
	spill := q.op(opID).spill
	m.mu.Unlock()

	if spill == nil {
		return false
	}
	released, err := spill.SpillToDisk()
	if err != nil {
		m.log.Error("forced spill failed", logging.Err(err))
		return false
	}
	m.Free(queryID, opID, released)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used+bytes > m.pool {
		return false
	}
	m.used += bytes
	q.op(opID).bytes += bytes
	return true
}

// Free returns bytes from an operation to the pool
func (m *MemoryManager) Free(queryID, opID string, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queries[queryID]
	if !ok {
		return
	}
	st := q.op(opID)
	if bytes > st.bytes {
		bytes = st.bytes
	}
	st.bytes -= bytes
	m.used -= bytes
}

// SpillToDisk forces a spill in one operation
func (m *MemoryManager) SpillToDisk(queryID, opID string) error {
	sm := m.spillManager(queryID, opID)
	if sm == nil {
		return nil
	}
	released, err := sm.SpillToDisk()
	if err != nil {
		return err
	}
	m.Free(queryID, opID, released)
	return nil
}

// ReadFromDisk loads an operation's most recent spill back
func (m *MemoryManager) ReadFromDisk(queryID, opID string) error {
	sm := m.spillManager(queryID, opID)
	if sm == nil {
		return nil
	}
	return sm.ReadFromDisk()
}

// ReleaseQueryContext frees every charge and removes every spill file
// of a query.
func (m *MemoryManager) ReleaseQueryContext(queryID string) {
	m.mu.Lock()
	q, ok := m.queries[queryID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.queries, queryID)
	var spills []SpillManager
	for _, st := range q.ops {
		m.used -= st.bytes
		if st.spill != nil {
			spills = append(spills, st.spill)
		}
	}
	m.mu.Unlock()

	for _, sm := range spills {
		if err := sm.Cleanup(); err != nil {
			m.log.Warn("spill cleanup failed", logging.Err(err))
		}
	}
}

// Used returns the bytes currently charged across all queries
func (m *MemoryManager) Used() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

// Pool returns the query pool size in bytes
func (m *MemoryManager) Pool() int64 { return m.pool }

func (m *MemoryManager) spillManager(queryID, opID string) SpillManager {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queries[queryID]
	if !ok {
		return nil
	}
	return q.op(opID).spill
}

func (q *QueryContext) op(opID string) *opState {
	st, ok := q.ops[opID]
	if !ok {
		st = &opState{}
		q.ops[opID] = st
	}
	return st
}
