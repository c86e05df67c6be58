package catalog

import (
	"sync"

	"github.com/ao/serengeti/pkg/logging"
	"github.com/ao/serengeti/pkg/storage"
	"github.com/ao/serengeti/pkg/storage/lsm"
)

// Database is one named database and its table list, persisted as a
// single <name>.meta file
type Database struct {
	Name   string               `json:"name"`
	Tables map[string]*TableDef `json:"tables"`
}

// TableDef is the persisted definition of a table
type TableDef struct {
	Columns []storage.Column `json:"columns"`
	Indexes []IndexDef       `json:"indexes,omitempty"`
}

// IndexDef names the indexed columns of one secondary index
type IndexDef struct {
	Columns  []string `json:"columns"`
	FullText bool     `json:"fulltext,omitempty"`
}

// Placement records which nodes hold a row
type Placement struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// Table is the live state behind a (db, table) pair: its storage
// engine, replica placements, and secondary indexes
type Table struct {
	DB     string
	Name   string
	Schema *storage.Schema

	dir    string
	engine *lsm.Engine

	mu       sync.RWMutex
	replicas map[string]Placement // rowId -> placement
	indexes  []*Index
}

// Engine exposes the table's storage engine
func (t *Table) Engine() *lsm.Engine { return t.engine }

// ReplicationSink is the catalog's outbound view of the replication
// subsystem. A nil-safe NopSink stands in when the node runs alone.
type ReplicationSink interface {
	SelfID() string
	PickPrimarySecondary() (primary, secondary string, ok bool)
	SendInsert(nodeID, db, table string, row *storage.Row) bool
	SendUpdate(nodeID, db, table string, row *storage.Row) bool
	SendDelete(nodeID, db, table, rowID string) bool
	BroadcastPlacement(db, table, rowID, primary, secondary string)
}

// NopSink is a ReplicationSink for single-node operation
type NopSink struct{ ID string }

func (s NopSink) SelfID() string                                    { return s.ID }
func (s NopSink) PickPrimarySecondary() (string, string, bool)      { return s.ID, "", false }
func (s NopSink) SendInsert(string, string, string, *storage.Row) bool { return true }
func (s NopSink) SendUpdate(string, string, string, *storage.Row) bool { return true }
func (s NopSink) SendDelete(string, string, string, string) bool       { return true }
func (s NopSink) BroadcastPlacement(string, string, string, string, string) {
}

// Catalog owns database and table metadata and routes row operations
// to the per-table engines
type Catalog struct {
	mu sync.RWMutex

	dataPath  string
	databases map[string]*Database
	tables    map[string]*Table // "db#table"

	engineOpts lsm.Options
	sink       ReplicationSink
	log        logging.Logger
	stats      *StatisticsManager
}

// Options configures a catalog
type Options struct {
	DataPath string
	Sink     ReplicationSink
	Logger   logging.Logger

	// Engine settings applied to every table's LSM engine.
	MemTableMaxBytes  int
	CompactionTrigger int
	WALEnabled        bool
}
