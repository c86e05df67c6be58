package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ao/serengeti/pkg/logging"
	"github.com/ao/serengeti/pkg/storage"
	"github.com/ao/serengeti/pkg/storage/lsm"
)

var (
	ErrEmptyName        = errors.New("name is empty")
	ErrDatabaseExists   = errors.New("database already exists")
	ErrDatabaseNotFound = errors.New("database not found")
	ErrTableExists      = errors.New("table already exists")
	ErrTableNotFound    = errors.New("table not found")
	ErrIndexExists      = errors.New("index already exists")
	ErrIndexNotFound    = errors.New("index not found")
)

const metaSuffix = ".meta"

// New opens a catalog rooted at opts.DataPath, loading every persisted
// database and opening each table's engine
func New(opts Options) (*Catalog, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	if opts.MemTableMaxBytes <= 0 {
		opts.MemTableMaxBytes = 4 * 1024 * 1024
	}
	if opts.CompactionTrigger <= 0 {
		opts.CompactionTrigger = 3
	}
	if err := os.MkdirAll(opts.DataPath, 0755); err != nil {
		return nil, fmt.Errorf("creating data path: %w", err)
	}

	engineOpts := lsm.DefaultOptions("")
	engineOpts.MemTableMaxBytes = opts.MemTableMaxBytes
	engineOpts.CompactionTrigger = opts.CompactionTrigger
	engineOpts.WALEnabled = opts.WALEnabled
	engineOpts.Logger = opts.Logger

	c := &Catalog{
		dataPath:   opts.DataPath,
		databases:  make(map[string]*Database),
		tables:     make(map[string]*Table),
		engineOpts: engineOpts,
		sink:       opts.Sink,
		log:        opts.Logger,
	}
	c.stats = NewStatisticsManager(c)

	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// load reads every <db>.meta file and opens the tables it names
func (c *Catalog) load() error {
	metas, err := filepath.Glob(filepath.Join(c.dataPath, "*"+metaSuffix))
	if err != nil {
		return err
	}

	for _, metaPath := range metas {
		data, err := os.ReadFile(metaPath)
		if err != nil {
			return fmt.Errorf("reading %s: %w", metaPath, err)
		}
		var db Database
		if err := json.Unmarshal(data, &db); err != nil {
			return fmt.Errorf("decoding %s: %w", metaPath, err)
		}
		if db.Tables == nil {
			db.Tables = make(map[string]*TableDef)
		}
		c.databases[db.Name] = &db

		for tableName, def := range db.Tables {
			table, err := c.openTable(db.Name, tableName, def)
			if err != nil {
				return err
			}
			c.tables[tableKey(db.Name, tableName)] = table
		}
	}

	c.log.Info("catalog loaded",
		logging.Int("databases", len(c.databases)),
		logging.Int("tables", len(c.tables)))
	return nil
}

// openTable opens a table's engine, replica map, and indexes
func (c *Catalog) openTable(db, name string, def *TableDef) (*Table, error) {
	engineOpts := c.engineOpts
	engineOpts.DataDir = c.tableDir(db, name)
	engine, err := lsm.NewEngine(engineOpts)
	if err != nil {
		return nil, fmt.Errorf("opening engine for %s.%s: %w", db, name, err)
	}

	table := &Table{
		DB:       db,
		Name:     name,
		Schema:   &storage.Schema{Columns: def.Columns},
		dir:      engineOpts.DataDir,
		engine:   engine,
		replicas: make(map[string]Placement),
	}
	if err := table.loadReplicas(); err != nil {
		_ = engine.Close()
		return nil, err
	}
	for _, idxDef := range def.Indexes {
		idx := NewIndex(idxDef.Columns, idxDef.FullText)
		table.indexes = append(table.indexes, idx)
	}
	if len(table.indexes) > 0 {
		rows, err := table.allRows()
		if err != nil {
			_ = engine.Close()
			return nil, err
		}
		for _, idx := range table.indexes {
			idx.Rebuild(rows)
		}
	}
	return table, nil
}

func tableKey(db, table string) string { return db + "#" + table }

func (c *Catalog) tableDir(db, table string) string {
	return filepath.Join(c.dataPath, db, table)
}

func (c *Catalog) metaPath(db string) string {
	return filepath.Join(c.dataPath, db+metaSuffix)
}

// CreateDatabase creates a new database with its meta file and directory
func (c *Catalog) CreateDatabase(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.databases[name]; exists {
		return fmt.Errorf("%w: %s", ErrDatabaseExists, name)
	}

	db := &Database{Name: name, Tables: make(map[string]*TableDef)}
	if err := os.MkdirAll(filepath.Join(c.dataPath, name), 0755); err != nil {
		return err
	}
	if err := c.writeMeta(db); err != nil {
		return err
	}
	c.databases[name] = db

	c.log.Info("database created", logging.Database(name))
	return nil
}

// DropDatabase removes a database, its tables, and its files
func (c *Catalog) DropDatabase(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	db, exists := c.databases[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrDatabaseNotFound, name)
	}

	for tableName := range db.Tables {
		key := tableKey(name, tableName)
		if table, ok := c.tables[key]; ok {
			_ = table.engine.Close()
			delete(c.tables, key)
		}
	}
	delete(c.databases, name)

	if err := os.Remove(c.metaPath(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.RemoveAll(filepath.Join(c.dataPath, name)); err != nil {
		return err
	}

	c.log.Info("database dropped", logging.Database(name))
	return nil
}

// CreateTable creates a table with its directory, empty storage, and
// replica file
func (c *Catalog) CreateTable(db, name string, schema *storage.Schema) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if schema == nil {
		schema = &storage.Schema{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dbObj, exists := c.databases[db]
	if !exists {
		return fmt.Errorf("%w: %s", ErrDatabaseNotFound, db)
	}
	if _, exists := dbObj.Tables[name]; exists {
		return fmt.Errorf("%w: %s.%s", ErrTableExists, db, name)
	}

	def := &TableDef{Columns: schema.Columns}
	table, err := c.openTable(db, name, def)
	if err != nil {
		return err
	}
	if err := table.saveReplicas(); err != nil {
		_ = table.engine.Close()
		return err
	}

	dbObj.Tables[name] = def
	c.tables[tableKey(db, name)] = table
	if err := c.writeMeta(dbObj); err != nil {
		return err
	}

	c.log.Info("table created", logging.Database(db), logging.Table(name))
	return nil
}

// DropTable removes a table. Returns false without error when the
// table does not exist.
func (c *Catalog) DropTable(db, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dbObj, exists := c.databases[db]
	if !exists {
		return false, nil
	}
	if _, exists := dbObj.Tables[name]; !exists {
		return false, nil
	}

	key := tableKey(db, name)
	if table, ok := c.tables[key]; ok {
		_ = table.engine.Close()
		delete(c.tables, key)
	}
	delete(dbObj.Tables, name)

	if err := os.RemoveAll(c.tableDir(db, name)); err != nil {
		return false, err
	}
	if err := c.writeMeta(dbObj); err != nil {
		return false, err
	}

	c.log.Info("table dropped", logging.Database(db), logging.Table(name))
	return true, nil
}

// DatabaseExists reports whether the database is known
func (c *Catalog) DatabaseExists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.databases[name]
	return ok
}

// TableExists reports whether the table is known
func (c *Catalog) TableExists(db, table string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tables[tableKey(db, table)]
	return ok
}

// ListDatabases returns all database names, sorted
func (c *Catalog) ListDatabases() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.databases))
	for name := range c.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListTables returns the table names of a database, sorted
func (c *Catalog) ListTables(db string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dbObj, exists := c.databases[db]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, db)
	}
	names := make([]string, 0, len(dbObj.Tables))
	for name := range dbObj.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Table returns the live table state
func (c *Catalog) Table(db, table string) (*Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[tableKey(db, table)]
	return t, ok
}

// Statistics returns the catalog's statistics manager
func (c *Catalog) Statistics() *StatisticsManager { return c.stats }

// AlterTable adds or drops a column on a table
func (c *Catalog) AlterTable(db, table, column, typeName string, drop bool) error {
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
	t := c.tables[tableKey(db, table)]

	if drop {
		kept := def.Columns[:0]
		found := false
		for _, col := range def.Columns {
			if strings.EqualFold(col.Name, column) {
				found = true
				continue
			}
			kept = append(kept, col)
		}
		if !found {
			return fmt.Errorf("column %q not found in %s.%s", column, db, table)
		}
		def.Columns = kept
	} else {
		for _, col := range def.Columns {
			if strings.EqualFold(col.Name, column) {
				return fmt.Errorf("column %q already exists in %s.%s", column, db, table)
			}
		}
		def.Columns = append(def.Columns, storage.Column{
			Name: column,
			Type: storage.ParseValueType(typeName),
		})
	}

	t.Schema.Columns = def.Columns
	return c.writeMeta(dbObj)
}

// writeMeta atomically persists a database's meta file
func (c *Catalog) writeMeta(db *Database) error {
	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return err
	}
	tmp := c.metaPath(db.Name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, c.metaPath(db.Name))
}

// SaveDatabase persists one database: its meta file plus every
// table's storage and replica artifacts
func (c *Catalog) SaveDatabase(name string) error {
	c.mu.RLock()
	db, ok := c.databases[name]
	var tables []*Table
	if ok {
		for tableName := range db.Tables {
			if t, exists := c.tables[tableKey(name, tableName)]; exists {
				tables = append(tables, t)
			}
		}
	}
	c.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrDatabaseNotFound, name)
	}

	c.mu.RLock()
	err := c.writeMeta(db)
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("persisting meta for %s: %w", name, err)
	}

	for _, t := range tables {
		if err := t.engine.Sync(); err != nil {
			return fmt.Errorf("syncing %s.%s: %w", t.DB, t.Name, err)
		}
		if err := t.saveReplicas(); err != nil {
			return fmt.Errorf("persisting replicas for %s.%s: %w", t.DB, t.Name, err)
		}
	}
	return nil
}

// SaveToDisk persists every database. Returns the first error.
func (c *Catalog) SaveToDisk() error {
	for _, name := range c.ListDatabases() {
		if err := c.SaveDatabase(name); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every table engine
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, table := range c.tables {
		if err := table.engine.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeleteEverything drops all databases. Backs the "delete everything"
// control statement.
func (c *Catalog) DeleteEverything() error {
	for _, name := range c.ListDatabases() {
		if err := c.DropDatabase(name); err != nil {
			return err
		}
	}
	return nil
}
