package query

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ao/serengeti/pkg/catalog"
	"github.com/ao/serengeti/pkg/storage"
)

// OpType names one plan operation
type OpType string

const (
	OpScan            OpType = "SCAN"
	OpIndexLookup     OpType = "INDEX_LOOKUP"
	OpFilter          OpType = "FILTER"
	OpSort            OpType = "SORT"
	OpLimit           OpType = "LIMIT"
	OpHashJoin        OpType = "HASH_JOIN"
	OpIndexJoin       OpType = "INDEX_JOIN"
	OpHashAggregate   OpType = "HASH_AGGREGATE"
	OpScalarAggregate OpType = "SCALAR_AGGREGATE"
	OpProject         OpType = "PROJECT"
)

// Default selectivities used when no statistics exist
const (
	defaultEqualitySelectivity = 0.3
	defaultRangeSelectivity    = 0.33
)

// Operation is one step of a query plan. Fields are populated per
// type.
type Operation struct {
	Type OpType

	DB    string
	Table string

	// INDEX_LOOKUP
	IndexColumn string
	IndexOp     string
	IndexValue  storage.Value
	IndexLow    storage.Value
	IndexHigh   storage.Value

	// FILTER
	Predicate *Condition

	// SORT
	SortKeys []OrderKey

	// LIMIT, raw token text
	Limit  string
	Offset string

	// Joins
	Join       *JoinClause
	BuildRight bool // hash join builds from the joined table

	// Aggregation
	GroupBy []string
	Aggs    []Aggregate

	// PROJECT
	Columns []string
}

// Describe renders the operation for explain output
func (op Operation) Describe() string {
	switch op.Type {
	case OpScan:
		return fmt.Sprintf("SCAN(%s.%s)", op.DB, op.Table)
	case OpIndexLookup:
		if op.IndexOp == "BETWEEN" {
			return fmt.Sprintf("INDEX_LOOKUP(%s BETWEEN %v AND %v)",
				op.IndexColumn, op.IndexLow.Native(), op.IndexHigh.Native())
		}
		return fmt.Sprintf("INDEX_LOOKUP(%s %s %v)", op.IndexColumn, op.IndexOp, op.IndexValue.Native())
	case OpFilter:
		return fmt.Sprintf("FILTER(%s)", op.Predicate.Normalize())
	case OpSort:
		parts := make([]string, len(op.SortKeys))
		for i, k := range op.SortKeys {
			dir := "asc"
			if k.Descending {
				dir = "desc"
			}
			parts[i] = k.Column + " " + dir
		}
		return fmt.Sprintf("SORT(%s)", strings.Join(parts, ","))
	case OpLimit:
		return fmt.Sprintf("LIMIT(%s,%s)", op.Limit, op.Offset)
	case OpHashJoin:
		side := "left"
		if op.BuildRight {
			side = "right"
		}
		return fmt.Sprintf("HASH_JOIN(%s.%s, build=%s)", op.Join.DB, op.Join.Table, side)
	case OpIndexJoin:
		return fmt.Sprintf("INDEX_JOIN(%s.%s on %s)", op.Join.DB, op.Join.Table, op.Join.RightKey)
	case OpHashAggregate:
		return fmt.Sprintf("HASH_AGGREGATE(%s)", strings.Join(op.GroupBy, ","))
	case OpScalarAggregate:
		labels := make([]string, len(op.Aggs))
		for i, a := range op.Aggs {
			labels[i] = a.Label()
		}
		return fmt.Sprintf("SCALAR_AGGREGATE(%s)", strings.Join(labels, ","))
	case OpProject:
		return fmt.Sprintf("PROJECT(%s)", strings.Join(op.Columns, ","))
	default:
		return string(op.Type)
	}
}

// ExplainPlan renders the full pipeline
func ExplainPlan(ops []Operation) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.Describe()
	}
	return strings.Join(parts, " -> ")
}

// Planner turns SELECT statements into operation pipelines. Plans are
// deterministic given the statement and the collected statistics.
type Planner struct {
	catalog *catalog.Catalog

	enabled atomic.Bool
	level   atomic.Int64
}

// NewPlanner creates a planner with optimization enabled at level 1
func NewPlanner(cat *catalog.Catalog) *Planner {
	pl := &Planner{catalog: cat}
	pl.enabled.Store(true)
	pl.level.Store(1)
	return pl
}

// SetEnabled toggles index-aware planning. Disabled planning always
// scans and filters.
func (pl *Planner) SetEnabled(v bool) { pl.enabled.Store(v) }

// Enabled reports whether optimization is on
func (pl *Planner) Enabled() bool { return pl.enabled.Load() }

// SetLevel stores the optimization level. Level 0 behaves as
// disabled.
func (pl *Planner) SetLevel(level int) { pl.level.Store(int64(level)) }

// Level returns the optimization level
func (pl *Planner) Level() int { return int(pl.level.Load()) }

// PlanSelect produces the operation pipeline for one SELECT
func (pl *Planner) PlanSelect(stmt SelectStmt) []Operation {
	var ops []Operation
	optimize := pl.Enabled() && pl.Level() > 0

	access, residual := pl.chooseAccessPath(stmt, optimize)
	ops = append(ops, access)

	if residual != nil {
		ops = append(ops, Operation{Type: OpFilter, Predicate: residual})
	}

	if stmt.Join != nil {
		ops = append(ops, pl.planJoin(stmt, optimize))
	}

	switch {
	case len(stmt.GroupBy) > 0:
		ops = append(ops, Operation{Type: OpHashAggregate, GroupBy: stmt.GroupBy, Aggs: stmt.Aggs})
	case len(stmt.Aggs) > 0:
		ops = append(ops, Operation{Type: OpScalarAggregate, Aggs: stmt.Aggs})
	}

	if len(stmt.OrderBy) > 0 {
		ops = append(ops, Operation{Type: OpSort, SortKeys: stmt.OrderBy})
	}
	if stmt.HasLimit {
		ops = append(ops, Operation{Type: OpLimit, Limit: stmt.Limit, Offset: stmt.Offset})
	}
	if !stmt.Star && len(stmt.Columns) > 0 && len(stmt.Aggs) == 0 {
		ops = append(ops, Operation{Type: OpProject, Columns: stmt.Columns})
	}
	return ops
}

// chooseAccessPath picks INDEX_LOOKUP over SCAN when a usable index
// covers one top-level conjunct. The residual condition keeps every
// other conjunct.
func (pl *Planner) chooseAccessPath(stmt SelectStmt, optimize bool) (Operation, *Condition) {
	scan := Operation{Type: OpScan, DB: stmt.DB, Table: stmt.Table}
	if stmt.Where == nil {
		return scan, nil
	}
	if !optimize || len(stmt.Where.Or) > 0 {
		return scan, stmt.Where
	}

	table, ok := pl.catalog.Table(stmt.DB, stmt.Table)
	if !ok {
		return scan, stmt.Where
	}

	conjuncts := stmt.Where.Conjuncts()
	for i, c := range conjuncts {
		if !indexableOp(c.Op) || len(c.Or) > 0 || len(c.And) > 0 {
			continue
		}
		if _, ok := table.IndexOn(baseColumn(c.Column)); !ok {
			continue
		}
		op := Operation{
			Type:        OpIndexLookup,
			DB:          stmt.DB,
			Table:       stmt.Table,
			IndexColumn: c.Column,
			IndexOp:     c.Op,
			IndexValue:  c.Value,
			IndexLow:    c.Low,
			IndexHigh:   c.High,
		}
		residual := rebuildConjunction(append(append([]*Condition{}, conjuncts[:i]...), conjuncts[i+1:]...))
		return op, residual
	}
	return scan, stmt.Where
}

func indexableOp(op string) bool {
	switch op {
	case "=", "!=", "<>", "<", "<=", ">", ">=", "BETWEEN":
		return true
	}
	return false
}

func rebuildConjunction(terms []*Condition) *Condition {
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return terms[0]
	default:
		return &Condition{And: terms}
	}
}

// planJoin picks INDEX_JOIN when the joined table has an index on its
// key, HASH_JOIN otherwise with the smaller estimated side as build.
func (pl *Planner) planJoin(stmt SelectStmt, optimize bool) Operation {
	join := stmt.Join

	if optimize {
		if right, ok := pl.catalog.Table(join.DB, join.Table); ok {
			if _, ok := right.IndexOn(baseColumn(join.RightKey)); ok {
				return Operation{Type: OpIndexJoin, Join: join}
			}
		}
	}

	leftRows := pl.estimateRows(stmt.DB, stmt.Table, stmt.Where)
	rightRows := pl.estimateRows(join.DB, join.Table, nil)
	return Operation{Type: OpHashJoin, Join: join, BuildRight: rightRows <= leftRows}
}

// baseColumn strips a table qualifier off a column reference
func baseColumn(col string) string {
	if i := strings.LastIndexByte(col, '.'); i >= 0 {
		return col[i+1:]
	}
	return col
}

// estimateRows applies selectivity from statistics, falling back to
// the conservative defaults.
func (pl *Planner) estimateRows(db, table string, where *Condition) float64 {
	stats, ok := pl.catalog.Statistics().TableStats(db, table)
	rows := 1000.0
	if ok {
		rows = float64(stats.RowCount)
	}
	if where == nil {
		return rows
	}

	for _, c := range where.Conjuncts() {
		if len(c.Or) > 0 {
			continue
		}
		rows *= pl.selectivity(db, table, c)
	}
	return rows
}

func (pl *Planner) selectivity(db, table string, c *Condition) float64 {
	switch c.Op {
	case "=":
		if stats, ok := pl.catalog.Statistics().TableStats(db, table); ok {
			if distinct := stats.DistinctValues[baseColumn(c.Column)]; distinct > 0 {
				return 1.0 / float64(distinct)
			}
		}
		return defaultEqualitySelectivity
	case "<", "<=", ">", ">=", "BETWEEN":
		return defaultRangeSelectivity
	default:
		return 1.0
	}
}
