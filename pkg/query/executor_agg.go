package query

import (
	"strings"

	"github.com/ao/serengeti/pkg/storage"
)

// aggState accumulates one aggregate over a stream of rows
type aggState struct {
	agg   Aggregate
	count int64
	sum   float64
	min   storage.Value
	max   storage.Value
	seen  bool
}

func (st *aggState) observe(row *storage.Row) {
	if st.agg.Column == "*" {
		st.count++
		return
	}
	v, ok := rowValue(row, st.agg.Column)
	if !ok || v.IsNull() {
		return
	}
	st.count++
	if f, ok := v.AsFloat(); ok {
		st.sum += f
	}
	if !st.seen {
		st.min, st.max, st.seen = v, v, true
		return
	}
	if storage.Compare(v, st.min) < 0 {
		st.min = v
	}
	if storage.Compare(v, st.max) > 0 {
		st.max = v
	}
}

func (st *aggState) result() storage.Value {
	switch st.agg.Func {
	case "COUNT":
		return storage.FromNative(st.count)
	case "SUM":
		return storage.FromNative(st.sum)
	case "AVG":
		if st.count == 0 {
			return storage.Value{Type: storage.TypeNull}
		}
		return storage.FromNative(st.sum / float64(st.count))
	case "MIN":
		if !st.seen {
			return storage.Value{Type: storage.TypeNull}
		}
		return st.min
	case "MAX":
		if !st.seen {
			return storage.Value{Type: storage.TypeNull}
		}
		return st.max
	default:
		return storage.Value{Type: storage.TypeNull}
	}
}

// scalarAggregate folds the whole input into a single row
func scalarAggregate(rows []*storage.Row, aggs []Aggregate) ([]*storage.Row, error) {
	states := make([]*aggState, len(aggs))
	for i, agg := range aggs {
		states[i] = &aggState{agg: agg}
	}
	for _, row := range rows {
		for _, st := range states {
			st.observe(row)
		}
	}

	out := &storage.Row{Columns: make(map[string]storage.Value, len(aggs))}
	for _, st := range states {
		out.Columns[st.agg.Label()] = st.result()
	}
	return []*storage.Row{out}, nil
}

// hashAggregate groups rows by the grouping columns and folds each
// group. Output preserves first-seen group order.
func hashAggregate(rows []*storage.Row, groupBy []string, aggs []Aggregate) ([]*storage.Row, error) {
	type group struct {
		keys   map[string]storage.Value
		states []*aggState
	}

	groups := make(map[string]*group)
	var order []string

	for _, row := range rows {
		parts := make([]string, len(groupBy))
		keys := make(map[string]storage.Value, len(groupBy))
		for i, col := range groupBy {
			v, _ := rowValue(row, col)
			keys[col] = v
			parts[i] = joinKeyText(v)
		}
		key := strings.Join(parts, "\x00")

		g, ok := groups[key]
		if !ok {
			g = &group{keys: keys, states: make([]*aggState, len(aggs))}
			for i, agg := range aggs {
				g.states[i] = &aggState{agg: agg}
			}
			groups[key] = g
			order = append(order, key)
		}
		for _, st := range g.states {
			st.observe(row)
		}
	}

	out := make([]*storage.Row, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := &storage.Row{Columns: make(map[string]storage.Value, len(groupBy)+len(aggs))}
		for col, v := range g.keys {
			row.Columns[col] = v
		}
		for _, st := range g.states {
			row.Columns[st.agg.Label()] = st.result()
		}
		out = append(out, row)
	}
	if len(out) == 0 && len(groupBy) == 0 {
		return scalarAggregate(nil, aggs)
	}
	return out, nil
}
