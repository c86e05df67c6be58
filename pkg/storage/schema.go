package storage

import (
	"fmt"
	"sort"
	"strings"
)

// Column is one column definition in a table schema
type Column struct {
	Name string    `json:"name"`
	Type ValueType `json:"type"`
}

// Schema is the ordered column list of a table
type Schema struct {
	Columns []Column `json:"columns"`
}

// NewSchema builds a schema from (name, type-keyword) pairs
func NewSchema(defs map[string]string) *Schema {
	s := &Schema{}
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	// Deterministic column order regardless of map iteration.
	sort.Strings(names)
	for _, name := range names {
		s.Columns = append(s.Columns, Column{Name: name, Type: ParseValueType(defs[name])})
	}
	return s
}

// Column looks up a column definition by name
func (s *Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Validate checks a row's columns against the schema and coerces values
// to their declared types. Unknown columns are rejected.
func (s *Schema) Validate(row *Row) error {
	for name, v := range row.Columns {
		col, ok := s.Column(name)
		if !ok {
			return fmt.Errorf("unknown column %q", name)
		}
		row.Columns[name] = v.Coerce(col.Type)
	}
	return nil
}
