package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ao/serengeti/pkg/storage"
)

// Statement is one parsed statement. Normalize renders a canonical
// form used for cache fingerprints and explain output.
type Statement interface {
	Kind() string
	Normalize() string
}

// Condition is a node of a WHERE tree. Exactly one of And, Or, or the
// leaf fields is populated.
type Condition struct {
	And []*Condition
	Or  []*Condition

	Column string
	Op     string
	Value  storage.Value
	Values []storage.Value // IN
	Low    storage.Value   // BETWEEN
	High   storage.Value
}

// Conjuncts flattens a top-level AND tree into its leaves. A leaf or
// OR node returns itself as the only conjunct.
func (c *Condition) Conjuncts() []*Condition {
	if c == nil {
		return nil
	}
	if len(c.And) == 0 {
		return []*Condition{c}
	}
	var out []*Condition
	for _, child := range c.And {
		out = append(out, child.Conjuncts()...)
	}
	return out
}

// Normalize renders the condition canonically
func (c *Condition) Normalize() string {
	if c == nil {
		return ""
	}
	if len(c.And) > 0 {
		parts := make([]string, len(c.And))
		for i, child := range c.And {
			parts[i] = child.Normalize()
		}
		return "(" + strings.Join(parts, " AND ") + ")"
	}
	if len(c.Or) > 0 {
		parts := make([]string, len(c.Or))
		for i, child := range c.Or {
			parts[i] = child.Normalize()
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	}
	col := strings.ToLower(c.Column)
	switch c.Op {
	case "IN":
		parts := make([]string, len(c.Values))
		for i, v := range c.Values {
			parts[i] = fmt.Sprintf("%v", v.Native())
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(parts, ","))
	case "BETWEEN":
		return fmt.Sprintf("%s BETWEEN %v AND %v", col, c.Low.Native(), c.High.Native())
	default:
		return fmt.Sprintf("%s %s %v", col, c.Op, c.Value.Native())
	}
}

// OrderKey is one ORDER BY term
type OrderKey struct {
	Column     string
	Descending bool
}

// Aggregate is one aggregate call in a SELECT list
type Aggregate struct {
	Func   string // COUNT, SUM, AVG, MIN, MAX
	Column string // "*" for COUNT(*)
}

// Label is the output column name of the aggregate
func (a Aggregate) Label() string {
	return fmt.Sprintf("%s(%s)", a.Func, a.Column)
}

// JoinClause is the right side of a two-table equi-join
type JoinClause struct {
	DB       string
	Table    string
	LeftKey  string // column on the FROM table
	RightKey string // column on the joined table
}

// ShowDatabasesStmt lists all databases
type ShowDatabasesStmt struct{}

func (ShowDatabasesStmt) Kind() string      { return "SHOW_DATABASES" }
func (ShowDatabasesStmt) Normalize() string { return "show databases" }

// ShowTablesStmt lists the tables of one database
type ShowTablesStmt struct{ DB string }

func (ShowTablesStmt) Kind() string        { return "SHOW_TABLES" }
func (s ShowTablesStmt) Normalize() string { return "show tables in " + strings.ToLower(s.DB) }

// ShowIndexesStmt lists indexes of a database or one table
type ShowIndexesStmt struct {
	DB    string
	Table string // empty for database-wide listing
}

func (ShowIndexesStmt) Kind() string { return "SHOW_INDEXES" }
func (s ShowIndexesStmt) Normalize() string {
	if s.Table == "" {
		return "show indexes in " + strings.ToLower(s.DB)
	}
	return "show indexes on " + strings.ToLower(s.DB) + "." + strings.ToLower(s.Table)
}

// CreateDatabaseStmt creates a database
type CreateDatabaseStmt struct{ Name string }

func (CreateDatabaseStmt) Kind() string        { return "CREATE_DATABASE" }
func (s CreateDatabaseStmt) Normalize() string { return "create database " + strings.ToLower(s.Name) }

// DropDatabaseStmt drops a database
type DropDatabaseStmt struct{ Name string }

func (DropDatabaseStmt) Kind() string        { return "DROP_DATABASE" }
func (s DropDatabaseStmt) Normalize() string { return "drop database " + strings.ToLower(s.Name) }

// CreateTableStmt creates a table with optional column definitions
type CreateTableStmt struct {
	DB      string
	Table   string
	Columns map[string]string
}

func (CreateTableStmt) Kind() string { return "CREATE_TABLE" }
func (s CreateTableStmt) Normalize() string {
	names := make([]string, 0, len(s.Columns))
	for name := range s.Columns {
		names = append(names, strings.ToLower(name)+" "+strings.ToUpper(s.Columns[name]))
	}
	sort.Strings(names)
	return fmt.Sprintf("create table %s.%s (%s)",
		strings.ToLower(s.DB), strings.ToLower(s.Table), strings.Join(names, ","))
}

// DropTableStmt drops a table
type DropTableStmt struct {
	DB    string
	Table string
}

func (DropTableStmt) Kind() string { return "DROP_TABLE" }
func (s DropTableStmt) Normalize() string {
	return "drop table " + strings.ToLower(s.DB) + "." + strings.ToLower(s.Table)
}

// AlterTableStmt adds or drops one column
type AlterTableStmt struct {
	DB     string
	Table  string
	Column string
	Type   string
	Drop   bool
}

func (AlterTableStmt) Kind() string { return "ALTER_TABLE" }
func (s AlterTableStmt) Normalize() string {
	verb := "add"
	if s.Drop {
		verb = "drop"
	}
	return fmt.Sprintf("alter table %s.%s %s column %s %s",
		strings.ToLower(s.DB), strings.ToLower(s.Table), verb,
		strings.ToLower(s.Column), strings.ToUpper(s.Type))
}

// CreateIndexStmt creates a plain or full-text index
type CreateIndexStmt struct {
	DB       string
	Table    string
	Columns  []string
	FullText bool
}

func (CreateIndexStmt) Kind() string { return "CREATE_INDEX" }
func (s CreateIndexStmt) Normalize() string {
	kind := "index"
	if s.FullText {
		kind = "fulltext index"
	}
	return fmt.Sprintf("create %s on %s.%s(%s)", kind,
		strings.ToLower(s.DB), strings.ToLower(s.Table),
		strings.ToLower(strings.Join(s.Columns, ",")))
}

// DropIndexStmt drops an index
type DropIndexStmt struct {
	DB      string
	Table   string
	Columns []string
}

func (DropIndexStmt) Kind() string { return "DROP_INDEX" }
func (s DropIndexStmt) Normalize() string {
	return fmt.Sprintf("drop index on %s.%s(%s)",
		strings.ToLower(s.DB), strings.ToLower(s.Table),
		strings.ToLower(strings.Join(s.Columns, ",")))
}

// InsertStmt inserts one or more rows
type InsertStmt struct {
	DB      string
	Table   string
	Columns []string
	Rows    [][]storage.Value
}

func (InsertStmt) Kind() string { return "INSERT" }
func (s InsertStmt) Normalize() string {
	return fmt.Sprintf("insert into %s.%s(%s) x%d",
		strings.ToLower(s.DB), strings.ToLower(s.Table),
		strings.ToLower(strings.Join(s.Columns, ",")), len(s.Rows))
}

// SelectStmt reads rows, optionally filtered, joined, grouped,
// ordered, and limited.
type SelectStmt struct {
	DB      string
	Table   string
	Star    bool
	Columns []string
	Aggs    []Aggregate
	GroupBy []string
	Join    *JoinClause
	Where   *Condition
	OrderBy []OrderKey

	// Limit and Offset keep the raw token text: executor policy
	// tolerates non-numeric values.
	HasLimit bool
	Limit    string
	Offset   string
}

func (SelectStmt) Kind() string { return "SELECT" }
func (s SelectStmt) Normalize() string {
	var sb strings.Builder
	sb.WriteString("select ")
	switch {
	case s.Star:
		sb.WriteString("*")
	case len(s.Aggs) > 0:
		parts := make([]string, len(s.Aggs))
		for i, a := range s.Aggs {
			parts[i] = strings.ToUpper(a.Func) + "(" + strings.ToLower(a.Column) + ")"
		}
		sb.WriteString(strings.Join(parts, ","))
	default:
		sb.WriteString(strings.ToLower(strings.Join(s.Columns, ",")))
	}
	fmt.Fprintf(&sb, " from %s.%s", strings.ToLower(s.DB), strings.ToLower(s.Table))
	if s.Join != nil {
		fmt.Fprintf(&sb, " join %s.%s on %s=%s",
			strings.ToLower(s.Join.DB), strings.ToLower(s.Join.Table),
			strings.ToLower(s.Join.LeftKey), strings.ToLower(s.Join.RightKey))
	}
	if s.Where != nil {
		sb.WriteString(" where " + s.Where.Normalize())
	}
	if len(s.GroupBy) > 0 {
		sb.WriteString(" group by " + strings.ToLower(strings.Join(s.GroupBy, ",")))
	}
	for _, k := range s.OrderBy {
		dir := "asc"
		if k.Descending {
			dir = "desc"
		}
		fmt.Fprintf(&sb, " order by %s %s", strings.ToLower(k.Column), dir)
	}
	if s.HasLimit {
		fmt.Fprintf(&sb, " limit %s offset %s", s.Limit, s.Offset)
	}
	return sb.String()
}

// UpdateStmt updates rows matching the condition
type UpdateStmt struct {
	DB    string
	Table string
	Set   map[string]storage.Value
	Where *Condition
}

func (UpdateStmt) Kind() string { return "UPDATE" }
func (s UpdateStmt) Normalize() string {
	cols := make([]string, 0, len(s.Set))
	for name := range s.Set {
		cols = append(cols, strings.ToLower(name))
	}
	sort.Strings(cols)
	return fmt.Sprintf("update %s.%s set %s where %s",
		strings.ToLower(s.DB), strings.ToLower(s.Table),
		strings.Join(cols, ","), s.Where.Normalize())
}

// DeleteStmt deletes rows matching the condition
type DeleteStmt struct {
	DB    string
	Table string
	Where *Condition
}

func (DeleteStmt) Kind() string { return "DELETE" }
func (s DeleteStmt) Normalize() string {
	return fmt.Sprintf("delete from %s.%s where %s",
		strings.ToLower(s.DB), strings.ToLower(s.Table), s.Where.Normalize())
}

// BeginStmt, CommitStmt, and RollbackStmt are local batch markers
type BeginStmt struct{}

func (BeginStmt) Kind() string      { return "BEGIN" }
func (BeginStmt) Normalize() string { return "begin" }

type CommitStmt struct{}

func (CommitStmt) Kind() string      { return "COMMIT" }
func (CommitStmt) Normalize() string { return "commit" }

type RollbackStmt struct{}

func (RollbackStmt) Kind() string      { return "ROLLBACK" }
func (RollbackStmt) Normalize() string { return "rollback" }

// ControlStmt covers the non-SQL control surface: optimization
// toggles, cache control, statistics collection, delete everything.
type ControlStmt struct {
	Target string // optimization | cache | statistics | everything
	Action string // enable | disable | status | level | clear | stats | collect | delete
	Level  string // optimization level argument
}

func (ControlStmt) Kind() string { return "CONTROL" }
func (s ControlStmt) Normalize() string {
	return strings.TrimSpace("control " + s.Target + " " + s.Action + " " + s.Level)
}
