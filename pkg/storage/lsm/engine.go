package lsm

import (
	"fmt"
	"os"

	"github.com/ao/serengeti/pkg/logging"
	"github.com/ao/serengeti/pkg/storage/wal"
)

// NewEngine opens or creates an LSM engine rooted at opts.DataDir.
// Existing SSTables are loaded from the manifest and the WAL is
// replayed into a fresh memtable.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	levels, maxID, err := loadSSTables(opts.DataDir)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		memTable:    NewMemTable(opts.MemTableMaxBytes),
		levels:      levels,
		dataDir:     opts.DataDir,
		opts:        opts,
		compactor:   NewCompactor(opts.DataDir, opts.CompactionTrigger, opts.MaxLevels),
		log:         opts.Logger,
		flushChan:   make(chan struct{}, 1),
		compactChan: make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
	}
	e.compactor.nextID.Store(maxID)

	if opts.WALEnabled {
		l, err := wal.Open(opts.DataDir)
		if err != nil {
			return nil, err
		}
		e.wal = l
		if err := e.replayWAL(); err != nil {
			_ = l.Close()
			return nil, err
		}
	}

	e.wg.Add(1)
	go e.flushWorker()
	if opts.EnableAutoCompaction {
		e.wg.Add(1)
		go e.compactionWorker()
	}

	return e, nil
}

// replayWAL rebuilds the memtable from logged operations
func (e *Engine) replayWAL() error {
	count := 0
	err := e.wal.Replay(func(rec *wal.Record) error {
		switch rec.Op {
		case wal.OpPut:
			e.memTable.Put(rec.Key, rec.Value)
		case wal.OpDelete:
			e.memTable.Delete(rec.Key)
		}
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("replaying wal: %w", err)
	}
	if count > 0 {
		e.log.Info("replayed write-ahead log",
			logging.Int("records", count),
			logging.String("dir", e.dataDir))
	}
	return nil
}

// Put writes a key-value pair. A nil key is a no-op; a nil value is a
// delete.
func (e *Engine) Put(key, value []byte) error {
	if key == nil {
		return nil
	}
	if value == nil {
		return e.Delete(key)
	}

	if e.wal != nil {
		if _, err := e.wal.Append(wal.OpPut, key, value); err != nil {
			return err
		}
	}

	e.mu.Lock()
	needsFlush := e.memTable.Put(key, value)
	rotated := false
	if needsFlush && e.immutable == nil {
		e.immutable = e.memTable
		e.memTable = NewMemTable(e.opts.MemTableMaxBytes)
		rotated = true
	}
	e.mu.Unlock()

	e.stats.WriteCount.Add(1)
	e.stats.BytesWritten.Add(int64(len(key) + len(value)))

	if rotated {
		e.triggerFlush()
	}
	return nil
}

// Get retrieves the value for a key. A tombstone or absence returns
// nil. A nil key returns nil.
func (e *Engine) Get(key []byte) []byte {
	if key == nil {
		return nil
	}
	e.stats.ReadCount.Add(1)

	e.mu.RLock()
	defer e.mu.RUnlock()

	if entry, ok := e.memTable.Get(key); ok {
		if entry.Tombstone {
			return nil
		}
		return entry.Value
	}
	if e.immutable != nil {
		if entry, ok := e.immutable.Get(key); ok {
			if entry.Tombstone {
				return nil
			}
			return entry.Value
		}
	}

	// SSTables newest to oldest: lower levels first, newest file last
	// within a level.
	for level := 0; level < len(e.levels); level++ {
		for i := len(e.levels[level]) - 1; i >= 0; i-- {
			if entry, ok := e.levels[level][i].Get(key); ok {
				if entry.Tombstone {
					return nil
				}
				return entry.Value
			}
		}
	}
	return nil
}

// Delete writes a tombstone for the key
func (e *Engine) Delete(key []byte) error {
	if key == nil {
		return nil
	}

	if e.wal != nil {
		if _, err := e.wal.Append(wal.OpDelete, key, nil); err != nil {
			return err
		}
	}

	e.mu.Lock()
	needsFlush := e.memTable.Delete(key)
	rotated := false
	if needsFlush && e.immutable == nil {
		e.immutable = e.memTable
		e.memTable = NewMemTable(e.opts.MemTableMaxBytes)
		rotated = true
	}
	e.mu.Unlock()

	e.stats.WriteCount.Add(1)
	if rotated {
		e.triggerFlush()
	}
	return nil
}

// All returns every live key-value pair
func (e *Engine) All() map[string][]byte {
	return e.collect(nil, nil)
}

// Scan returns live pairs with start <= key < end
func (e *Engine) Scan(start, end []byte) map[string][]byte {
	return e.collect(start, end)
}

// collect merges all sources newest to oldest. The first version seen
// for a key wins; tombstones mask older versions.
func (e *Engine) collect(start, end []byte) map[string][]byte {
	inRange := func(key string) bool {
		if start != nil && key < string(start) {
			return false
		}
		if end != nil && key >= string(end) {
			return false
		}
		return true
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make(map[string][]byte)
	seen := make(map[string]bool)

	absorb := func(entries []*Entry) {
		for _, entry := range entries {
			keyStr := string(entry.Key)
			if seen[keyStr] || !inRange(keyStr) {
				continue
			}
			seen[keyStr] = true
			if !entry.Tombstone {
				results[keyStr] = entry.Value
			}
		}
	}

	absorb(e.memTable.Snapshot())
	if e.immutable != nil {
		absorb(e.immutable.Snapshot())
	}
	for level := 0; level < len(e.levels); level++ {
		for i := len(e.levels[level]) - 1; i >= 0; i-- {
			entries, err := e.levels[level][i].Iterator()
			if err != nil {
				e.log.Warn("sstable iteration failed",
					logging.String("path", e.levels[level][i].Path()),
					logging.Err(err))
				continue
			}
			absorb(entries)
		}
	}
	return results
}

// ForEach calls fn for every live key-value pair
func (e *Engine) ForEach(fn func(key string, value []byte)) {
	for key, value := range e.All() {
		fn(key, value)
	}
}

// Sync flushes all buffered writes to disk, draining any flush that
// was already pending
func (e *Engine) Sync() error {
	for {
		e.mu.Lock()
		if e.immutable == nil {
			if e.memTable.Len() == 0 {
				e.mu.Unlock()
				return nil
			}
			e.immutable = e.memTable
			e.memTable = NewMemTable(e.opts.MemTableMaxBytes)
		}
		e.mu.Unlock()

		if err := e.flush(); err != nil {
			return err
		}
	}
}

// Stats returns a snapshot of engine counters
func (e *Engine) Stats() StatsSnapshot {
	e.mu.RLock()
	memBytes := e.memTable.Size()
	sstCount := 0
	for _, level := range e.levels {
		sstCount += len(level)
	}
	l0 := 0
	if len(e.levels) > 0 {
		l0 = len(e.levels[0])
	}
	e.mu.RUnlock()

	return StatsSnapshot{
		WriteCount:      e.stats.WriteCount.Load(),
		ReadCount:       e.stats.ReadCount.Load(),
		FlushCount:      e.stats.FlushCount.Load(),
		CompactionCount: e.stats.CompactionCount.Load(),
		BytesWritten:    e.stats.BytesWritten.Load(),
		MemTableBytes:   memBytes,
		SSTableCount:    sstCount,
		Level0FileCount: l0,
	}
}

// Close flushes pending writes, stops workers, and releases files
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	close(e.stopChan)
	e.wg.Wait()

	if err := e.Sync(); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for _, level := range e.levels {
		for _, sst := range level {
			if err := sst.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if e.wal != nil {
		if err := e.wal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
