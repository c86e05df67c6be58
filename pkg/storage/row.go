package storage

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Row is a single table row addressed by its row identifier
type Row struct {
	ID      string           `json:"id"`
	Columns map[string]Value `json:"columns"`
}

// NewRow builds a row from column values
func NewRow(id string, cols map[string]Value) *Row {
	if cols == nil {
		cols = make(map[string]Value)
	}
	return &Row{ID: id, Columns: cols}
}

// Get returns the value of a column, null when absent
func (r *Row) Get(col string) Value {
	if v, ok := r.Columns[col]; ok {
		return v
	}
	return NullValue()
}

// Set assigns a column value
func (r *Row) Set(col string, v Value) {
	if r.Columns == nil {
		r.Columns = make(map[string]Value)
	}
	r.Columns[col] = v
}

// ColumnNames returns the row's column names in sorted order
func (r *Row) ColumnNames() []string {
	names := make([]string, 0, len(r.Columns))
	for name := range r.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone deep-copies the row
func (r *Row) Clone() *Row {
	cols := make(map[string]Value, len(r.Columns))
	for k, v := range r.Columns {
		cols[k] = v
	}
	return &Row{ID: r.ID, Columns: cols}
}

// Encode serializes the row for storage
func (r *Row) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding row %s: %w", r.ID, err)
	}
	return data, nil
}

// DecodeRow deserializes a stored row
func DecodeRow(data []byte) (*Row, error) {
	var r Row
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding row: %w", err)
	}
	if r.Columns == nil {
		r.Columns = make(map[string]Value)
	}
	return &r, nil
}
