package lsm

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ao/serengeti/pkg/logging"
	"github.com/ao/serengeti/pkg/storage/wal"
)

// Engine is the per-table LSM storage stack: one active MemTable, a
// frozen MemTable mid-flush, and the SSTable levels (newest appended
// last within a level).
type Engine struct {
	mu sync.RWMutex

	memTable  *MemTable
	immutable *MemTable

	levels [][]*SSTable

	dataDir   string
	opts      Options
	compactor *Compactor
	wal       *wal.Log
	log       logging.Logger

	flushMu     sync.Mutex
	flushChan   chan struct{}
	compactChan chan struct{}
	stopChan    chan struct{}
	wg          sync.WaitGroup

	compacting atomic.Bool
	closed     bool

	stats EngineStats
}

// EngineStats tracks engine counters. High-frequency counters are
// atomic to keep the hot paths lock-free.
type EngineStats struct {
	WriteCount      atomic.Int64
	ReadCount       atomic.Int64
	FlushCount      atomic.Int64
	CompactionCount atomic.Int64
	BytesWritten    atomic.Int64
}

// StatsSnapshot is a point-in-time copy of engine statistics
type StatsSnapshot struct {
	WriteCount      int64
	ReadCount       int64
	FlushCount      int64
	CompactionCount int64
	BytesWritten    int64
	MemTableBytes   int
	SSTableCount    int
	Level0FileCount int
}

// Options configures an engine
type Options struct {
	DataDir              string
	MemTableMaxBytes     int
	CompactionTrigger    int
	MaxLevels            int
	CompactionInterval   time.Duration
	EnableAutoCompaction bool
	WALEnabled           bool
	Logger               logging.Logger
}

// DefaultOptions returns the standard engine configuration
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:              dataDir,
		MemTableMaxBytes:     4 * 1024 * 1024,
		CompactionTrigger:    3,
		MaxLevels:            7,
		CompactionInterval:   time.Second,
		EnableAutoCompaction: true,
		WALEnabled:           true,
		Logger:               logging.NewNopLogger(),
	}
}
