package lsm

import (
	"bytes"
	"sort"
	"sync/atomic"
)

// CompactionPlan names the inputs and destination of one merge
type CompactionPlan struct {
	Level          int
	Inputs         []*SSTable
	OutputLevel    int
	DropTombstones bool
}

// Compactor merges SSTables level by level. Tombstones survive every
// merge except the one into the bottom level.
type Compactor struct {
	dataDir   string
	trigger   int
	maxLevels int
	nextID    atomic.Int64
}

// NewCompactor creates a compactor for an engine's data directory
func NewCompactor(dataDir string, trigger, maxLevels int) *Compactor {
	if trigger < 2 {
		trigger = 2
	}
	if maxLevels < 2 {
		maxLevels = 2
	}
	return &Compactor{dataDir: dataDir, trigger: trigger, maxLevels: maxLevels}
}

// SelectCompaction picks the oldest files of the first level that has
// reached the trigger, or nil when nothing needs merging
func (c *Compactor) SelectCompaction(levels [][]*SSTable) *CompactionPlan {
	for level := 0; level < len(levels); level++ {
		if len(levels[level]) < c.trigger {
			continue
		}
		outputLevel := level + 1
		if outputLevel > c.maxLevels-1 {
			outputLevel = c.maxLevels - 1
		}
		// Files are appended newest-last, so the oldest sit in front.
		return &CompactionPlan{
			Level:          level,
			Inputs:         levels[level][:c.trigger],
			OutputLevel:    outputLevel,
			DropTombstones: outputLevel == c.maxLevels-1,
		}
	}
	return nil
}

// Compact merges the plan's inputs into a single SSTable at the output
// level. For duplicate keys the entry with the newest timestamp wins.
// Returns nil when the merge yields no entries.
func (c *Compactor) Compact(plan *CompactionPlan) (*SSTable, error) {
	if plan == nil || len(plan.Inputs) == 0 {
		return nil, nil
	}

	all := make([]*Entry, 0)
	for _, sst := range plan.Inputs {
		entries, err := sst.Iterator()
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}

	sort.Slice(all, func(i, j int) bool {
		cmp := EntryCompare(all[i], all[j])
		if cmp == 0 {
			return all[i].Timestamp > all[j].Timestamp
		}
		return cmp < 0
	})

	merged := make([]*Entry, 0, len(all))
	var lastKey []byte
	for _, entry := range all {
		if lastKey != nil && bytes.Equal(entry.Key, lastKey) {
			continue
		}
		lastKey = entry.Key
		if entry.Tombstone && plan.DropTombstones {
			continue
		}
		merged = append(merged, entry)
	}

	if len(merged) == 0 {
		return nil, nil
	}

	path := SSTablePath(c.dataDir, plan.OutputLevel, c.nextID.Add(1))
	return CreateSSTable(path, merged)
}
