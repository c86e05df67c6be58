package query

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/ao/serengeti/pkg/storage"
)

func (e *Executor) executeSelect(s SelectStmt) StatementResult {
	fingerprint := Fingerprint(s)
	if rows, ok := e.cache.Get(fingerprint); ok {
		return StatementResult{Executed: true, List: rowsToList(rows), Explain: "cache: hit"}
	}

	plan := e.planner.PlanSelect(s)

	ctx := context.Background()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	queryID := e.memory.CreateQueryContext()
	defer e.memory.ReleaseQueryContext(queryID)

	rows, err := e.runPlan(ctx, queryID, plan)
	if err != nil {
		return StatementResult{Executed: false, Error: err.Error(), Explain: ExplainPlan(plan)}
	}

	tags := [][2]string{{s.DB, s.Table}}
	if s.Join != nil {
		tags = append(tags, [2]string{s.Join.DB, s.Join.Table})
	}
	e.cache.Put(fingerprint, rows, tags...)

	return StatementResult{Executed: true, List: rowsToList(rows), Explain: ExplainPlan(plan)}
}

// runPlan interprets the operation pipeline over materialized row sets
func (e *Executor) runPlan(ctx context.Context, queryID string, plan []Operation) ([]*storage.Row, error) {
	var rows []*storage.Row
	var err error

	for i, op := range plan {
		if terr := deadlineExceeded(ctx); terr != nil {
			return nil, terr
		}
		opID := fmt.Sprintf("op%d", i)

		switch op.Type {
		case OpScan:
			rows, err = e.scanRows(op.DB, op.Table)
		case OpIndexLookup:
			rows, err = e.indexLookup(op)
		case OpFilter:
			rows, err = filterRows(rows, op.Predicate)
		case OpSort:
			rows, err = e.sortRows(queryID, opID, rows, op.SortKeys)
		case OpLimit:
			rows = applyLimit(rows, op.Limit, op.Offset)
		case OpHashJoin:
			rows, err = e.hashJoin(queryID, opID, rows, op)
		case OpIndexJoin:
			rows, err = e.indexJoin(queryID, opID, rows, op)
		case OpHashAggregate:
			rows, err = hashAggregate(rows, op.GroupBy, op.Aggs)
		case OpScalarAggregate:
			rows, err = scalarAggregate(rows, op.Aggs)
		case OpProject:
			rows = projectRows(rows, op.Columns)
		default:
			err = fmt.Errorf("unknown plan operation %s", op.Type)
		}
		if err != nil {
			return nil, err
		}

		if !e.memory.Allocate(queryID, opID, rowsBytes(rows)) {
			return nil, fmt.Errorf("query exceeds memory budget")
		}
	}
	return rows, nil
}

// scanRows returns every row of the table, pulling rows this node does
// not hold from their replica holders.
func (e *Executor) scanRows(db, table string) ([]*storage.Row, error) {
	rows, err := e.catalog.SelectAll(db, table)
	if err != nil {
		return nil, err
	}

	if e.fetcher != nil && e.selfID != "" {
		if tbl, ok := e.catalog.Table(db, table); ok {
			local := make(map[string]struct{}, len(rows))
			for _, r := range rows {
				local[r.ID] = struct{}{}
			}
			for rowID, p := range tbl.Placements() {
				if _, have := local[rowID]; have {
					continue
				}
				if p.Primary == e.selfID || p.Secondary == e.selfID {
					continue
				}
				row, ok := e.fetcher.FetchRow(db, table, rowID, p.Primary)
				if !ok && p.Secondary != "" {
					row, ok = e.fetcher.FetchRow(db, table, rowID, p.Secondary)
				}
				if ok && row != nil {
					rows = append(rows, row)
				}
			}
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

// indexLookup fetches matching row ids through the index, falling back
// to a filtered scan when the index disappeared after planning.
func (e *Executor) indexLookup(op Operation) ([]*storage.Row, error) {
	tbl, ok := e.catalog.Table(op.DB, op.Table)
	if !ok {
		return nil, fmt.Errorf("table %s.%s not found", op.DB, op.Table)
	}
	idx, ok := tbl.IndexOn(baseColumn(op.IndexColumn))
	if !ok {
		rows, err := e.scanRows(op.DB, op.Table)
		if err != nil {
			return nil, err
		}
		return filterRows(rows, indexCondition(op))
	}

	var ids []string
	if op.IndexOp == "BETWEEN" {
		ids = idx.LookupRange(op.IndexLow, op.IndexHigh)
	} else {
		ids = idx.Lookup(op.IndexOp, op.IndexValue)
	}

	rows := make([]*storage.Row, 0, len(ids))
	for _, id := range ids {
		row, err := e.catalog.Get(op.DB, op.Table, id)
		if err != nil {
			return nil, err
		}
		if row != nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func indexCondition(op Operation) *Condition {
	return &Condition{
		Column: op.IndexColumn,
		Op:     op.IndexOp,
		Value:  op.IndexValue,
		Low:    op.IndexLow,
		High:   op.IndexHigh,
	}
}

func filterRows(rows []*storage.Row, pred *Condition) ([]*storage.Row, error) {
	if pred == nil {
		return rows, nil
	}
	out := rows[:0:0]
	for _, row := range rows {
		match, err := evalCondition(row, pred)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, row)
		}
	}
	return out, nil
}

// sortRows orders rows, spilling sorted chunks when the set exceeds
// the chunk budget.
func (e *Executor) sortRows(queryID, opID string, rows []*storage.Row, keys []OrderKey) ([]*storage.Row, error) {
	compare := sortComparator(keys)

	if len(rows) <= e.sortChunkRows {
		sorted := append([]*storage.Row(nil), rows...)
		sort.SliceStable(sorted, func(i, j int) bool { return compare(sorted[i], sorted[j]) < 0 })
		return sorted, nil
	}

	spill := NewSortSpillManager(e.spillDir, queryID, opID, compare, e.sortChunkRows, e.metrics)
	e.memory.RegisterSpillManager(queryID, opID, spill)
	for _, row := range rows {
		if err := spill.Add(row); err != nil {
			return nil, err
		}
	}
	return spill.MergeChunks()
}

func sortComparator(keys []OrderKey) RowComparator {
	return func(a, b *storage.Row) int {
		for _, key := range keys {
			av, _ := rowValue(a, key.Column)
			bv, _ := rowValue(b, key.Column)
			cmp := storage.Compare(av, bv)
			if cmp == 0 {
				continue
			}
			if key.Descending {
				return -cmp
			}
			return cmp
		}
		return 0
	}
}

// applyLimit keeps the historical leniency: an unparseable count means
// no limit, an unparseable offset means zero.
func applyLimit(rows []*storage.Row, limit, offset string) []*storage.Row {
	off, err := strconv.Atoi(offset)
	if err != nil || off < 0 {
		off = 0
	}
	if off >= len(rows) {
		return nil
	}
	rows = rows[off:]

	n, err := strconv.Atoi(limit)
	if err != nil || n < 0 {
		return rows
	}
	if n < len(rows) {
		rows = rows[:n]
	}
	return rows
}

// hashJoin builds a hash table over one side and probes with the
// other. Output follows probe-side order.
func (e *Executor) hashJoin(queryID, opID string, left []*storage.Row, op Operation) ([]*storage.Row, error) {
	right, err := e.scanRows(op.Join.DB, op.Join.Table)
	if err != nil {
		return nil, err
	}

	leftKey := baseColumn(op.Join.LeftKey)
	rightKey := baseColumn(op.Join.RightKey)

	build, probe := left, right
	buildKey, probeKey := leftKey, rightKey
	if op.BuildRight {
		build, probe = right, left
		buildKey, probeKey = rightKey, leftKey
	}

	spill := NewHashJoinSpillManager(e.spillDir, queryID, opID, 0, e.metrics)
	spill.SetKeyFunc(func(row *storage.Row) string {
		v, _ := rowValue(row, buildKey)
		return joinKeyText(v)
	})
	e.memory.RegisterSpillManager(queryID, opID, spill)

	for _, row := range build {
		v, ok := rowValue(row, buildKey)
		if !ok {
			continue
		}
		spill.Add(joinKeyText(v), row)
	}

	var out []*storage.Row
	for _, probeRow := range probe {
		v, ok := rowValue(probeRow, probeKey)
		if !ok {
			continue
		}
		matches, err := spill.Probe(joinKeyText(v))
		if err != nil {
			return nil, err
		}
		for _, buildRow := range matches {
			leftRow, rightRow := buildRow, probeRow
			if op.BuildRight {
				leftRow, rightRow = probeRow, buildRow
			}
			out = append(out, mergeRows(leftRow, rightRow, op.Join.Table))
		}
	}
	return out, nil
}

// indexJoin probes the joined table's index per left row
func (e *Executor) indexJoin(queryID, opID string, left []*storage.Row, op Operation) ([]*storage.Row, error) {
	tbl, ok := e.catalog.Table(op.Join.DB, op.Join.Table)
	if !ok {
		return nil, fmt.Errorf("table %s.%s not found", op.Join.DB, op.Join.Table)
	}
	idx, ok := tbl.IndexOn(baseColumn(op.Join.RightKey))
	if !ok {
		fallback := op
		fallback.Type = OpHashJoin
		fallback.BuildRight = true
		return e.hashJoin(queryID, opID, left, fallback)
	}

	leftKey := baseColumn(op.Join.LeftKey)

	var out []*storage.Row
	for _, leftRow := range left {
		v, ok := rowValue(leftRow, leftKey)
		if !ok {
			continue
		}
		for _, id := range idx.Lookup("=", v) {
			rightRow, err := e.catalog.Get(op.Join.DB, op.Join.Table, id)
			if err != nil {
				return nil, err
			}
			if rightRow != nil {
				out = append(out, mergeRows(leftRow, rightRow, op.Join.Table))
			}
		}
	}
	return out, nil
}

// mergeRows combines a join pair. Right columns keep their plain name
// when free and always get a table-qualified alias.
func mergeRows(left, right *storage.Row, rightTable string) *storage.Row {
	merged := &storage.Row{
		ID:      left.ID,
		Columns: make(map[string]storage.Value, len(left.Columns)+len(right.Columns)),
	}
	for name, v := range left.Columns {
		merged.Columns[name] = v
	}
	for name, v := range right.Columns {
		merged.Columns[rightTable+"."+name] = v
		if _, taken := merged.Columns[name]; !taken {
			merged.Columns[name] = v
		}
	}
	return merged
}

func projectRows(rows []*storage.Row, columns []string) []*storage.Row {
	out := make([]*storage.Row, 0, len(rows))
	for _, row := range rows {
		projected := &storage.Row{ID: row.ID, Columns: make(map[string]storage.Value, len(columns))}
		for _, col := range columns {
			if v, ok := rowValue(row, col); ok {
				projected.Columns[col] = v
			} else {
				projected.Columns[col] = storage.Value{Type: storage.TypeNull}
			}
		}
		out = append(out, projected)
	}
	return out
}
