package lsm

import (
	"time"

	"github.com/ao/serengeti/pkg/logging"
	"github.com/ao/serengeti/pkg/storage/wal"
)

// triggerFlush signals the flush worker without blocking
func (e *Engine) triggerFlush() {
	select {
	case e.flushChan <- struct{}{}:
	default:
	}
}

// flushWorker drains flush signals until the engine stops
func (e *Engine) flushWorker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.flushChan:
			if err := e.flush(); err != nil {
				e.log.Error("memtable flush failed",
					logging.String("dir", e.dataDir),
					logging.Err(err))
			}
		case <-e.stopChan:
			return
		}
	}
}

// flush writes the frozen memtable to a new level-0 SSTable. On
// success the WAL is rebuilt from the active memtable only. Flushes
// are serialized; a concurrent caller finds the work already done.
func (e *Engine) flush() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	imm := e.immutable
	e.mu.Unlock()
	if imm == nil {
		return nil
	}

	entries := imm.Snapshot()
	if len(entries) == 0 {
		e.mu.Lock()
		e.immutable = nil
		e.mu.Unlock()
		return nil
	}

	path := SSTablePath(e.dataDir, 0, e.compactor.nextID.Add(1))
	sst, err := CreateSSTable(path, entries)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if len(e.levels) == 0 {
		e.levels = append(e.levels, nil)
	}
	e.levels[0] = append(e.levels[0], sst)
	e.immutable = nil
	l0Count := len(e.levels[0])
	e.mu.Unlock()

	e.stats.FlushCount.Add(1)
	e.log.Debug("flushed memtable",
		logging.String("sstable", path),
		logging.Int("entries", len(entries)))

	if err := e.writeManifest(); err != nil {
		return err
	}
	if err := e.rebuildWAL(); err != nil {
		return err
	}

	if e.opts.EnableAutoCompaction && l0Count >= e.opts.CompactionTrigger {
		select {
		case e.compactChan <- struct{}{}:
		default:
		}
	}
	return nil
}

// rebuildWAL truncates the log and re-records whatever the active
// memtable still holds, so recovery only replays unflushed writes.
func (e *Engine) rebuildWAL() error {
	if e.wal == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.wal.Reset(); err != nil {
		return err
	}
	for _, entry := range e.memTable.Snapshot() {
		op := wal.OpPut
		if entry.Tombstone {
			op = wal.OpDelete
		}
		if _, err := e.wal.Append(op, entry.Key, entry.Value); err != nil {
			return err
		}
	}
	return nil
}

// compactionWorker periodically checks whether a level has reached the
// compaction trigger
func (e *Engine) compactionWorker() {
	defer e.wg.Done()

	interval := e.opts.CompactionInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.maybeCompact()
		case <-e.compactChan:
			e.maybeCompact()
		case <-e.stopChan:
			return
		}
	}
}

// maybeCompact runs at most one compaction at a time per engine
func (e *Engine) maybeCompact() {
	if !e.compacting.CompareAndSwap(false, true) {
		return
	}
	defer e.compacting.Store(false)

	e.mu.RLock()
	levels := make([][]*SSTable, len(e.levels))
	for i := range e.levels {
		levels[i] = append([]*SSTable(nil), e.levels[i]...)
	}
	e.mu.RUnlock()

	plan := e.compactor.SelectCompaction(levels)
	if plan == nil {
		return
	}

	merged, err := e.compactor.Compact(plan)
	if err != nil {
		e.log.Error("compaction failed",
			logging.Int("level", plan.Level),
			logging.Err(err))
		return
	}

	// Swap the file list, then delete the consumed inputs.
	consumed := make(map[*SSTable]bool, len(plan.Inputs))
	for _, sst := range plan.Inputs {
		consumed[sst] = true
	}

	e.mu.Lock()
	kept := e.levels[plan.Level][:0]
	for _, sst := range e.levels[plan.Level] {
		if !consumed[sst] {
			kept = append(kept, sst)
		}
	}
	e.levels[plan.Level] = kept
	for len(e.levels) <= plan.OutputLevel {
		e.levels = append(e.levels, nil)
	}
	if merged != nil {
		e.levels[plan.OutputLevel] = append(e.levels[plan.OutputLevel], merged)
	}
	e.mu.Unlock()

	for _, sst := range plan.Inputs {
		if err := sst.Remove(); err != nil {
			e.log.Warn("removing compacted sstable",
				logging.String("path", sst.Path()),
				logging.Err(err))
		}
	}

	e.stats.CompactionCount.Add(1)
	e.log.Info("compacted sstables",
		logging.Int("level", plan.Level),
		logging.Int("inputs", len(plan.Inputs)),
		logging.Int("output_level", plan.OutputLevel))

	if err := e.writeManifest(); err != nil {
		e.log.Error("writing manifest after compaction", logging.Err(err))
	}
}
