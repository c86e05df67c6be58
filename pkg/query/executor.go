package query

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ao/serengeti/pkg/catalog"
	"github.com/ao/serengeti/pkg/logging"
	"github.com/ao/serengeti/pkg/metrics"
	"github.com/ao/serengeti/pkg/storage"
)

// StatementResult is the per-statement response element
type StatementResult struct {
	Executed bool             `json:"executed"`
	List     []map[string]any `json:"list,omitempty"`
	Explain  string           `json:"explain,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// ReplicaFetcher pulls a row this node does not hold from one of its
// replica holders. Implementations go over the HTTP boundary.
type ReplicaFetcher interface {
	FetchRow(db, table, rowID, holderID string) (*storage.Row, bool)
}

// Options configures an Executor
type Options struct {
	SelfID        string
	Fetcher       ReplicaFetcher
	MemoryBudget  int64
	SpillDir      string
	SortChunkRows int
	Timeout       time.Duration
	CacheCapacity int
	CacheTTL      time.Duration
	Logger        logging.Logger
	Metrics       *metrics.Registry
}

// Executor interprets statements against the catalog. SELECT plans
// run through the planner, the memory manager, and the result cache.
type Executor struct {
	catalog *catalog.Catalog
	planner *Planner
	memory  *MemoryManager
	cache   *ResultCache

	selfID        string
	fetcher       ReplicaFetcher
	spillDir      string
	sortChunkRows int
	timeout       time.Duration

	log     logging.Logger
	metrics *metrics.Registry
}

// NewExecutor wires the query engine over a catalog
func NewExecutor(cat *catalog.Catalog, opts Options) *Executor {
	if opts.MemoryBudget <= 0 {
		opts.MemoryBudget = 256 << 20
	}
	if opts.SpillDir == "" {
		opts.SpillDir = os.TempDir()
	}
	if opts.SortChunkRows <= 0 {
		opts.SortChunkRows = 10000
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultRegistry()
	}
	cache := NewResultCache(opts.CacheCapacity)
	cache.SetTTL(opts.CacheTTL)
	return &Executor{
		catalog:       cat,
		planner:       NewPlanner(cat),
		memory:        NewMemoryManager(opts.MemoryBudget, DefaultQueryMemoryFraction, opts.Logger, opts.Metrics),
		cache:         cache,
		selfID:        opts.SelfID,
		fetcher:       opts.Fetcher,
		spillDir:      opts.SpillDir,
		sortChunkRows: opts.SortChunkRows,
		timeout:       opts.Timeout,
		log:           opts.Logger,
		metrics:       opts.Metrics,
	}
}

// Planner exposes the planner for control statements and tests
func (e *Executor) Planner() *Planner { return e.planner }

// Cache exposes the result cache
func (e *Executor) Cache() *ResultCache { return e.cache }

// Memory exposes the memory manager
func (e *Executor) Memory() *MemoryManager { return e.memory }

// ExecuteScript parses and runs a ;-separated script, returning one
// result per statement. A parse failure yields a single error result.
func (e *Executor) ExecuteScript(input string) []StatementResult {
	stmts, err := ParseScript(input)
	if err != nil {
		return []StatementResult{{Executed: false, Error: err.Error()}}
	}
	if len(stmts) == 0 {
		return []StatementResult{}
	}

	results := make([]StatementResult, 0, len(stmts))

	// BEGIN/COMMIT batch statements locally within this script.
	// ROLLBACK discards the queued batch.
	var batch []Statement
	inBatch := false

	for _, stmt := range stmts {
		switch stmt.(type) {
		case BeginStmt:
			inBatch = true
			batch = batch[:0]
			results = append(results, StatementResult{Executed: true, Explain: "transaction started"})
		case CommitStmt:
			if !inBatch {
				results = append(results, StatementResult{Executed: false, Error: "no transaction in progress"})
				continue
			}
			inBatch = false
			ok := true
			for _, queued := range batch {
				r := e.executeStatement(queued)
				if !r.Executed {
					ok = false
				}
			}
			results = append(results, StatementResult{
				Executed: ok,
				Explain:  fmt.Sprintf("committed %d statement(s)", len(batch)),
			})
			batch = nil
		case RollbackStmt:
			n := len(batch)
			inBatch = false
			batch = nil
			results = append(results, StatementResult{
				Executed: true,
				Explain:  fmt.Sprintf("rolled back %d statement(s)", n),
			})
		default:
			if inBatch {
				batch = append(batch, stmt)
				results = append(results, StatementResult{Executed: true, Explain: "queued in transaction"})
				continue
			}
			results = append(results, e.executeStatement(stmt))
		}
	}
	return results
}

// executeStatement runs one statement and records its metrics
func (e *Executor) executeStatement(stmt Statement) StatementResult {
	start := time.Now()
	result := e.dispatch(stmt)
	status := "ok"
	if !result.Executed {
		status = "error"
	}
	e.metrics.RecordQuery(stmt.Kind(), status, time.Since(start))
	return result
}

func (e *Executor) dispatch(stmt Statement) StatementResult {
	switch s := stmt.(type) {
	case ShowDatabasesStmt:
		var list []map[string]any
		for _, db := range e.catalog.ListDatabases() {
			list = append(list, map[string]any{"database": db})
		}
		return StatementResult{Executed: true, List: list}

	case ShowTablesStmt:
		tables, err := e.catalog.ListTables(s.DB)
		if err != nil {
			return errResult(err)
		}
		var list []map[string]any
		for _, t := range tables {
			list = append(list, map[string]any{"table": t})
		}
		return StatementResult{Executed: true, List: list}

	case ShowIndexesStmt:
		return e.showIndexes(s)

	case CreateDatabaseStmt:
		if err := e.catalog.CreateDatabase(s.Name); err != nil {
			return errResult(err)
		}
		return StatementResult{Executed: true}

	case DropDatabaseStmt:
		if err := e.catalog.DropDatabase(s.Name); err != nil {
			return errResult(err)
		}
		e.cache.InvalidateDatabase(s.Name)
		return StatementResult{Executed: true}

	case CreateTableStmt:
		if err := e.catalog.CreateTable(s.DB, s.Table, storage.NewSchema(s.Columns)); err != nil {
			return errResult(err)
		}
		return StatementResult{Executed: true}

	case DropTableStmt:
		dropped, err := e.catalog.DropTable(s.DB, s.Table)
		if err != nil {
			return errResult(err)
		}
		e.cache.Invalidate(s.DB, s.Table)
		// Dropping an absent table is idempotent: no error, not executed.
		return StatementResult{Executed: dropped}

	case AlterTableStmt:
		if err := e.catalog.AlterTable(s.DB, s.Table, s.Column, s.Type, s.Drop); err != nil {
			return errResult(err)
		}
		e.cache.Invalidate(s.DB, s.Table)
		return StatementResult{Executed: true}

	case CreateIndexStmt:
		if err := e.catalog.CreateIndex(s.DB, s.Table, s.Columns, s.FullText); err != nil {
			return errResult(err)
		}
		return StatementResult{Executed: true}

	case DropIndexStmt:
		if err := e.catalog.DropIndex(s.DB, s.Table, s.Columns); err != nil {
			return errResult(err)
		}
		return StatementResult{Executed: true}

	case InsertStmt:
		return e.executeInsert(s)

	case UpdateStmt:
		return e.executeUpdate(s)

	case DeleteStmt:
		return e.executeDelete(s)

	case SelectStmt:
		return e.executeSelect(s)

	case ControlStmt:
		return e.executeControl(s)

	default:
		return StatementResult{Executed: false, Error: fmt.Sprintf("unsupported statement %T", stmt)}
	}
}

func (e *Executor) showIndexes(s ShowIndexesStmt) StatementResult {
	tables := []string{s.Table}
	if s.Table == "" {
		all, err := e.catalog.ListTables(s.DB)
		if err != nil {
			return errResult(err)
		}
		tables = all
	}

	var list []map[string]any
	for _, t := range tables {
		defs, err := e.catalog.ListIndexes(s.DB, t)
		if err != nil {
			return errResult(err)
		}
		for _, def := range defs {
			list = append(list, map[string]any{
				"table":    t,
				"columns":  strings.Join(def.Columns, ","),
				"fulltext": def.FullText,
			})
		}
	}
	return StatementResult{Executed: true, List: list}
}

func (e *Executor) executeInsert(s InsertStmt) StatementResult {
	inserted := 0
	for _, vals := range s.Rows {
		cols := make(map[string]storage.Value, len(s.Columns))
		for i, name := range s.Columns {
			cols[name] = vals[i]
		}
		if _, err := e.catalog.Insert(s.DB, s.Table, cols); err != nil {
			return StatementResult{
				Executed: false,
				Error:    err.Error(),
				Explain:  fmt.Sprintf("inserted %d of %d row(s) before failing", inserted, len(s.Rows)),
			}
		}
		inserted++
	}
	e.cache.Invalidate(s.DB, s.Table)
	return StatementResult{Executed: true, Explain: fmt.Sprintf("inserted %d row(s)", inserted)}
}

func (e *Executor) executeUpdate(s UpdateStmt) StatementResult {
	rows, err := e.matchRows(s.DB, s.Table, s.Where)
	if err != nil {
		return errResult(err)
	}
	updated := 0
	for _, row := range rows {
		ok, err := e.catalog.Update(s.DB, s.Table, row.ID, s.Set)
		if err != nil {
			return errResult(err)
		}
		if ok {
			updated++
		}
	}
	e.cache.Invalidate(s.DB, s.Table)
	return StatementResult{Executed: true, Explain: fmt.Sprintf("updated %d row(s)", updated)}
}

func (e *Executor) executeDelete(s DeleteStmt) StatementResult {
	rows, err := e.matchRows(s.DB, s.Table, s.Where)
	if err != nil {
		return errResult(err)
	}
	deleted := 0
	for _, row := range rows {
		ok, err := e.catalog.Delete(s.DB, s.Table, row.ID)
		if err != nil {
			return errResult(err)
		}
		if ok {
			deleted++
		}
	}
	e.cache.Invalidate(s.DB, s.Table)
	return StatementResult{Executed: true, Explain: fmt.Sprintf("deleted %d row(s)", deleted)}
}

// matchRows scans a table and filters by the condition
func (e *Executor) matchRows(db, table string, where *Condition) ([]*storage.Row, error) {
	rows, err := e.scanRows(db, table)
	if err != nil {
		return nil, err
	}
	if where == nil {
		return rows, nil
	}
	var out []*storage.Row
	for _, row := range rows {
		match, err := evalCondition(row, where)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, row)
		}
	}
	return out, nil
}

func (e *Executor) executeControl(s ControlStmt) StatementResult {
	switch s.Target {
	case "optimization":
		switch s.Action {
		case "enable":
			e.planner.SetEnabled(true)
			return StatementResult{Executed: true, Explain: "optimization enabled"}
		case "disable":
			e.planner.SetEnabled(false)
			return StatementResult{Executed: true, Explain: "optimization disabled"}
		case "status":
			return StatementResult{Executed: true, List: []map[string]any{{
				"enabled": e.planner.Enabled(),
				"level":   e.planner.Level(),
			}}}
		case "level":
			level := 0
			if _, err := fmt.Sscanf(s.Level, "%d", &level); err != nil {
				return StatementResult{Executed: false, Error: fmt.Sprintf("invalid optimization level %q", s.Level)}
			}
			e.planner.SetLevel(level)
			return StatementResult{Executed: true, Explain: fmt.Sprintf("optimization level %d", level)}
		}

	case "cache":
		switch s.Action {
		case "enable":
			e.cache.SetEnabled(true)
			return StatementResult{Executed: true, Explain: "cache enabled"}
		case "disable":
			e.cache.SetEnabled(false)
			return StatementResult{Executed: true, Explain: "cache disabled"}
		case "clear":
			e.cache.Clear()
			return StatementResult{Executed: true, Explain: "cache cleared"}
		case "stats":
			st := e.cache.Stats()
			return StatementResult{Executed: true, List: []map[string]any{{
				"hits": st.Hits, "misses": st.Misses,
				"size": st.Size, "evictions": st.Evictions,
				"enabled": st.Enabled,
			}}}
		}

	case "statistics":
		if err := e.catalog.Statistics().Collect(); err != nil {
			return errResult(err)
		}
		return StatementResult{Executed: true, Explain: "statistics collected"}

	case "everything":
		if err := e.catalog.DeleteEverything(); err != nil {
			return errResult(err)
		}
		e.cache.Clear()
		return StatementResult{Executed: true, Explain: "all databases deleted"}
	}
	return StatementResult{Executed: false, Error: fmt.Sprintf("unknown control %s %s", s.Target, s.Action)}
}

func errResult(err error) StatementResult {
	return StatementResult{Executed: false, Error: err.Error()}
}

// rowsToList converts rows to response maps, id first
func rowsToList(rows []*storage.Row) []map[string]any {
	list := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]any, len(row.Columns)+1)
		if row.ID != "" {
			m["_id"] = row.ID
		}
		names := make([]string, 0, len(row.Columns))
		for name := range row.Columns {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			m[name] = row.Columns[name].Native()
		}
		list = append(list, m)
	}
	return list
}

// deadlineExceeded reports a context timeout as the plan error
func deadlineExceeded(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("query timeout exceeded")
		}
		return err
	}
	return nil
}
