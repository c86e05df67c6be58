package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ao/serengeti/pkg/storage"
)

// Index is an in-memory secondary index over one or more columns. It
// is rebuilt from storage on open and maintained on every write.
type Index struct {
	Columns  []string
	FullText bool

	mu      sync.RWMutex
	buckets map[string]*indexBucket
}

type indexBucket struct {
	value storage.Value
	ids   map[string]bool
}

// NewIndex creates an empty index over the named columns
func NewIndex(columns []string, fullText bool) *Index {
	return &Index{
		Columns:  columns,
		FullText: fullText,
		buckets:  make(map[string]*indexBucket),
	}
}

// Covers reports whether the index's leading column matches col
func (idx *Index) Covers(col string) bool {
	return len(idx.Columns) > 0 && strings.EqualFold(idx.Columns[0], col)
}

func canonical(v storage.Value) string {
	return fmt.Sprintf("%v", v.Native())
}

// Add indexes one row
func (idx *Index) Add(row *storage.Row) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, key := range idx.keysFor(row) {
		b, ok := idx.buckets[key.canon]
		if !ok {
			b = &indexBucket{value: key.value, ids: make(map[string]bool)}
			idx.buckets[key.canon] = b
		}
		b.ids[row.ID] = true
	}
}

// Remove drops one row from the index
func (idx *Index) Remove(row *storage.Row) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, key := range idx.keysFor(row) {
		if b, ok := idx.buckets[key.canon]; ok {
			delete(b.ids, row.ID)
			if len(b.ids) == 0 {
				delete(idx.buckets, key.canon)
			}
		}
	}
}

// Rebuild replaces the index contents from a full row set
func (idx *Index) Rebuild(rows []*storage.Row) {
	idx.mu.Lock()
	idx.buckets = make(map[string]*indexBucket)
	idx.mu.Unlock()

	for _, row := range rows {
		idx.Add(row)
	}
}

type indexKey struct {
	canon string
	value storage.Value
}

// keysFor derives the bucket keys a row lands in. A full-text index
// buckets every lowercase token of the column value; a plain index
// buckets the leading column's value.
func (idx *Index) keysFor(row *storage.Row) []indexKey {
	if len(idx.Columns) == 0 {
		return nil
	}
	v := row.Get(idx.Columns[0])
	if v.IsNull() {
		return nil
	}

	if idx.FullText {
		s, ok := v.AsString()
		if !ok {
			s = canonical(v)
		}
		tokens := strings.Fields(strings.ToLower(s))
		keys := make([]indexKey, 0, len(tokens))
		seen := make(map[string]bool)
		for _, tok := range tokens {
			if seen[tok] {
				continue
			}
			seen[tok] = true
			keys = append(keys, indexKey{canon: tok, value: storage.StringValue(tok)})
		}
		return keys
	}

	return []indexKey{{canon: canonical(v), value: v}}
}

// Lookup returns the row ids matching `col op val` for comparison
// operators. Results are sorted for determinism.
func (idx *Index) Lookup(op string, val storage.Value) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := make([]string, 0)
	for _, b := range idx.buckets {
		cmp := storage.Compare(b.value, val)
		match := false
		switch op {
		case "=":
			match = cmp == 0
		case "!=", "<>":
			match = cmp != 0
		case "<":
			match = cmp < 0
		case "<=":
			match = cmp <= 0
		case ">":
			match = cmp > 0
		case ">=":
			match = cmp >= 0
		}
		if match {
			for id := range b.ids {
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// LookupRange returns row ids with lo <= value <= hi
func (idx *Index) LookupRange(lo, hi storage.Value) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := make([]string, 0)
	for _, b := range idx.buckets {
		if storage.Compare(b.value, lo) >= 0 && storage.Compare(b.value, hi) <= 0 {
			for id := range b.ids {
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// LookupToken returns row ids whose indexed text contains the token.
// Only meaningful for full-text indexes.
func (idx *Index) LookupToken(token string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	b, ok := idx.buckets[strings.ToLower(token)]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(b.ids))
	for id := range b.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DistinctValues returns the number of distinct indexed values
func (idx *Index) DistinctValues() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.buckets)
}

// CreateIndex adds a secondary index to a table and builds it from the
// existing rows
func (c *Catalog) CreateIndex(db, table string, columns []string, fullText bool) error {
	if len(columns) == 0 {
		return ErrEmptyName
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dbObj, exists := c.databases[db]
	if !exists {
		return fmt.Errorf("%w: %s", ErrDatabaseNotFound, db)
	}
	def, exists := dbObj.Tables[table]
	if !exists {
		return fmt.Errorf("%w: %s.%s", ErrTableNotFound, db, table)
	}
	for _, existing := range def.Indexes {
		if sameColumns(existing.Columns, columns) {
			return fmt.Errorf("%w: %s.%s(%s)", ErrIndexExists, db, table, strings.Join(columns, ","))
		}
	}

	t := c.tables[tableKey(db, table)]
	idx := NewIndex(columns, fullText)
	rows, err := t.allRows()
	if err != nil {
		return err
	}
	idx.Rebuild(rows)

	t.mu.Lock()
	t.indexes = append(t.indexes, idx)
	t.mu.Unlock()

	def.Indexes = append(def.Indexes, IndexDef{Columns: columns, FullText: fullText})
	return c.writeMeta(dbObj)
}

// DropIndex removes a secondary index
func (c *Catalog) DropIndex(db, table string, columns []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dbObj, exists := c.databases[db]
	if !exists {
		return fmt.Errorf("%w: %s", ErrDatabaseNotFound, db)
	}
	def, exists := dbObj.Tables[table]
	if !exists {
		return fmt.Errorf("%w: %s.%s", ErrTableNotFound, db, table)
	}

	pos := -1
	for i, existing := range def.Indexes {
		if sameColumns(existing.Columns, columns) {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("%w: %s.%s(%s)", ErrIndexNotFound, db, table, strings.Join(columns, ","))
	}
	def.Indexes = append(def.Indexes[:pos], def.Indexes[pos+1:]...)

	t := c.tables[tableKey(db, table)]
	t.mu.Lock()
	for i, idx := range t.indexes {
		if sameColumns(idx.Columns, columns) {
			t.indexes = append(t.indexes[:i], t.indexes[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	return c.writeMeta(dbObj)
}

// ListIndexes returns the index definitions of a table
func (c *Catalog) ListIndexes(db, table string) ([]IndexDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dbObj, exists := c.databases[db]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, db)
	}
	def, exists := dbObj.Tables[table]
	if !exists {
		return nil, fmt.Errorf("%w: %s.%s", ErrTableNotFound, db, table)
	}
	return append([]IndexDef(nil), def.Indexes...), nil
}

// IndexOn returns the table's index whose leading column is col
func (t *Table) IndexOn(col string) (*Index, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, idx := range t.indexes {
		if idx.Covers(col) && !idx.FullText {
			return idx, true
		}
	}
	return nil, false
}

// FullTextIndexOn returns the table's full-text index for col
func (t *Table) FullTextIndexOn(col string) (*Index, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, idx := range t.indexes {
		if idx.Covers(col) && idx.FullText {
			return idx, true
		}
	}
	return nil, false
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
