package catalog

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ao/serengeti/pkg/logging"
	"github.com/ao/serengeti/pkg/storage"
)

// Insert validates the row against the table schema, writes it
// locally, places it on a primary/secondary pair, replicates it to the
// holders, and broadcasts the placement.
func (c *Catalog) Insert(db, table string, cols map[string]storage.Value) (*storage.Row, error) {
	t, ok := c.Table(db, table)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrTableNotFound, db, table)
	}

	row := storage.NewRow(uuid.NewString(), cols)
	if err := t.Schema.Validate(row); err != nil {
		return nil, err
	}

	if err := t.putRow(row); err != nil {
		return nil, err
	}

	primary, secondary, clustered := c.sink.PickPrimarySecondary()
	if primary == "" {
		primary = c.sink.SelfID()
	}
	t.setPlacement(row.ID, Placement{Primary: primary, Secondary: secondary})

	if clustered {
		self := c.sink.SelfID()
		for _, holder := range []string{primary, secondary} {
			if holder == "" || holder == self {
				continue
			}
			if !c.sink.SendInsert(holder, db, table, row) {
				c.log.Warn("insert replication failed",
					logging.Database(db), logging.Table(table),
					logging.Node(holder))
			}
		}
		c.sink.BroadcastPlacement(db, table, row.ID, primary, secondary)
	}

	c.stats.NoteInsert(db, table, row)
	return row, nil
}

// Update applies column changes to one row. The write lands locally
// and is replicated to the row's holders.
func (c *Catalog) Update(db, table, rowID string, set map[string]storage.Value) (bool, error) {
	t, ok := c.Table(db, table)
	if !ok {
		return false, fmt.Errorf("%w: %s.%s", ErrTableNotFound, db, table)
	}

	row, err := t.getRow(rowID)
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, nil
	}

	for col, val := range set {
		row.Set(col, val)
	}
	if err := t.Schema.Validate(row); err != nil {
		return false, err
	}
	if err := t.putRow(row); err != nil {
		return false, err
	}

	placement, _ := t.PlacementOf(rowID)
	self := c.sink.SelfID()
	for _, holder := range []string{placement.Primary, placement.Secondary} {
		if holder == "" || holder == self {
			continue
		}
		if !c.sink.SendUpdate(holder, db, table, row) {
			c.log.Warn("update replication failed",
				logging.Database(db), logging.Table(table),
				logging.Node(holder))
		}
	}
	return true, nil
}

// Delete removes one row locally and on its replica holders. Returns
// false when the row does not exist.
func (c *Catalog) Delete(db, table, rowID string) (bool, error) {
	t, ok := c.Table(db, table)
	if !ok {
		return false, fmt.Errorf("%w: %s.%s", ErrTableNotFound, db, table)
	}

	row, err := t.getRow(rowID)
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, nil
	}

	if err := t.deleteRow(row); err != nil {
		return false, err
	}

	placement, _ := t.PlacementOf(rowID)
	t.removePlacement(rowID)

	self := c.sink.SelfID()
	for _, holder := range []string{placement.Primary, placement.Secondary} {
		if holder == "" || holder == self {
			continue
		}
		if !c.sink.SendDelete(holder, db, table, rowID) {
			c.log.Warn("delete replication failed",
				logging.Database(db), logging.Table(table),
				logging.Node(holder))
		}
	}

	c.stats.NoteDelete(db, table)
	return true, nil
}

// Get returns one row, or nil when absent
func (c *Catalog) Get(db, table, rowID string) (*storage.Row, error) {
	t, ok := c.Table(db, table)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrTableNotFound, db, table)
	}
	return t.getRow(rowID)
}

// SelectAll returns every locally held row of a table
func (c *Catalog) SelectAll(db, table string) ([]*storage.Row, error) {
	t, ok := c.Table(db, table)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrTableNotFound, db, table)
	}
	return t.allRows()
}

// ApplyReplicatedInsert writes a row received from a peer without
// triggering further replication
func (c *Catalog) ApplyReplicatedInsert(db, table string, row *storage.Row) error {
	t, ok := c.Table(db, table)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrTableNotFound, db, table)
	}
	return t.putRow(row)
}

// ApplyReplicatedDelete removes a row at a peer's request
func (c *Catalog) ApplyReplicatedDelete(db, table, rowID string) error {
	t, ok := c.Table(db, table)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrTableNotFound, db, table)
	}
	row, err := t.getRow(rowID)
	if err != nil || row == nil {
		return err
	}
	t.removePlacement(rowID)
	return t.deleteRow(row)
}

// ApplyPlacement records a placement broadcast from a peer
func (c *Catalog) ApplyPlacement(db, table, rowID, primary, secondary string) error {
	t, ok := c.Table(db, table)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrTableNotFound, db, table)
	}
	t.setPlacement(rowID, Placement{Primary: primary, Secondary: secondary})
	return nil
}

// putRow encodes and stores a row, keeping indexes current
func (t *Table) putRow(row *storage.Row) error {
	old, err := t.getRow(row.ID)
	if err != nil {
		return err
	}

	data, err := row.Encode()
	if err != nil {
		return err
	}
	if err := t.engine.Put([]byte(row.ID), data); err != nil {
		return err
	}

	t.mu.Lock()
	for _, idx := range t.indexes {
		if old != nil {
			idx.Remove(old)
		}
		idx.Add(row)
	}
	t.mu.Unlock()
	return nil
}

// getRow loads and decodes one row, nil when absent
func (t *Table) getRow(rowID string) (*storage.Row, error) {
	data := t.engine.Get([]byte(rowID))
	if data == nil {
		return nil, nil
	}
	return storage.DecodeRow(data)
}

// deleteRow tombstones a row and removes it from indexes
func (t *Table) deleteRow(row *storage.Row) error {
	if err := t.engine.Delete([]byte(row.ID)); err != nil {
		return err
	}
	t.mu.Lock()
	for _, idx := range t.indexes {
		idx.Remove(row)
	}
	t.mu.Unlock()
	return nil
}

// allRows decodes every live row in the table
func (t *Table) allRows() ([]*storage.Row, error) {
	raw := t.engine.All()
	rows := make([]*storage.Row, 0, len(raw))
	for _, data := range raw {
		row, err := storage.DecodeRow(data)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
