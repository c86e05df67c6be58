package catalog

import (
	"sync"
	"time"

	"github.com/ao/serengeti/pkg/storage"
)

// StatisticsManager keeps per-table row counts and per-column distinct
// value estimates for the query planner
type StatisticsManager struct {
	mu      sync.RWMutex
	catalog *Catalog
	tables  map[string]*TableStats
}

// TableStats is the planner-facing statistics of one table
type TableStats struct {
	RowCount       int64
	DistinctValues map[string]int
	CollectedAt    time.Time
}

// NewStatisticsManager creates a manager bound to a catalog
func NewStatisticsManager(c *Catalog) *StatisticsManager {
	return &StatisticsManager{
		catalog: c,
		tables:  make(map[string]*TableStats),
	}
}

// Collect scans every table and rebuilds its statistics
func (sm *StatisticsManager) Collect() error {
	for _, db := range sm.catalog.ListDatabases() {
		tables, err := sm.catalog.ListTables(db)
		if err != nil {
			return err
		}
		for _, table := range tables {
			if err := sm.CollectTable(db, table); err != nil {
				return err
			}
		}
	}
	return nil
}

// CollectTable rebuilds statistics for one table from a full scan
func (sm *StatisticsManager) CollectTable(db, table string) error {
	rows, err := sm.catalog.SelectAll(db, table)
	if err != nil {
		return err
	}

	distinct := make(map[string]map[string]bool)
	for _, row := range rows {
		for col, val := range row.Columns {
			if distinct[col] == nil {
				distinct[col] = make(map[string]bool)
			}
			distinct[col][canonical(val)] = true
		}
	}

	stats := &TableStats{
		RowCount:       int64(len(rows)),
		DistinctValues: make(map[string]int, len(distinct)),
		CollectedAt:    time.Now(),
	}
	for col, vals := range distinct {
		stats.DistinctValues[col] = len(vals)
	}

	sm.mu.Lock()
	sm.tables[tableKey(db, table)] = stats
	sm.mu.Unlock()
	return nil
}

// TableStats returns the collected statistics for a table, if any
func (sm *StatisticsManager) TableStats(db, table string) (*TableStats, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	stats, ok := sm.tables[tableKey(db, table)]
	return stats, ok
}

// RowCount returns the known row count, 0 when never collected
func (sm *StatisticsManager) RowCount(db, table string) int64 {
	if stats, ok := sm.TableStats(db, table); ok {
		return stats.RowCount
	}
	return 0
}

// NoteInsert keeps the row count roughly current between collections
func (sm *StatisticsManager) NoteInsert(db, table string, _ *storage.Row) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if stats, ok := sm.tables[tableKey(db, table)]; ok {
		stats.RowCount++
	}
}

// NoteDelete mirrors NoteInsert for deletions
func (sm *StatisticsManager) NoteDelete(db, table string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if stats, ok := sm.tables[tableKey(db, table)]; ok && stats.RowCount > 0 {
		stats.RowCount--
	}
}
