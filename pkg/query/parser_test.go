package query

import (
	"testing"

	"github.com/ao/serengeti/pkg/storage"
)

func parseOne(t *testing.T, input string) Statement {
	t.Helper()
	stmts, err := ParseScript(input)
	if err != nil {
		t.Fatalf("parse %q: %v", input, err)
	}
	if len(stmts) != 1 {
		t.Fatalf("parse %q: got %d statements, want 1", input, len(stmts))
	}
	return stmts[0]
}

func TestParseShowStatements(t *testing.T) {
	if _, ok := parseOne(t, "SHOW DATABASES").(ShowDatabasesStmt); !ok {
		t.Fatal("not a ShowDatabasesStmt")
	}
	st, ok := parseOne(t, "show tables in app").(ShowTablesStmt)
	if !ok || st.DB != "app" {
		t.Fatalf("ShowTablesStmt = %+v", st)
	}
	si, ok := parseOne(t, "show indexes on app.users").(ShowIndexesStmt)
	if !ok || si.DB != "app" || si.Table != "users" {
		t.Fatalf("ShowIndexesStmt = %+v", si)
	}
}

func TestParseCreateTable(t *testing.T) {
	st, ok := parseOne(t, "create table app.users (id int, name varchar)").(CreateTableStmt)
	if !ok {
		t.Fatal("not a CreateTableStmt")
	}
	if st.DB != "app" || st.Table != "users" {
		t.Fatalf("target = %s.%s", st.DB, st.Table)
	}
	if st.Columns["id"] != "INT" || st.Columns["name"] != "VARCHAR" {
		t.Fatalf("columns = %v", st.Columns)
	}
}

func TestParseInsertMultipleTuples(t *testing.T) {
	st, ok := parseOne(t, "insert into app.users (id, name) values (1, 'ada'), (2, 'bob')").(InsertStmt)
	if !ok {
		t.Fatal("not an InsertStmt")
	}
	if len(st.Rows) != 2 {
		t.Fatalf("rows = %d", len(st.Rows))
	}
	if name, _ := st.Rows[0][1].AsString(); name != "ada" {
		t.Fatalf("first name = %v", st.Rows[0][1].Native())
	}
}

func TestParseInsertColumnCountMismatch(t *testing.T) {
	if _, err := ParseScript("insert into app.users (id, name) values (1)"); err == nil {
		t.Fatal("expected column count error")
	}
}

func TestParseSelectFull(t *testing.T) {
	st, ok := parseOne(t,
		"select name, age from app.users where age > 30 and city = 'oslo' order by age desc limit 10 offset 5",
	).(SelectStmt)
	if !ok {
		t.Fatal("not a SelectStmt")
	}
	if st.Star || len(st.Columns) != 2 {
		t.Fatalf("columns = %v star=%v", st.Columns, st.Star)
	}
	conj := st.Where.Conjuncts()
	if len(conj) != 2 {
		t.Fatalf("conjuncts = %d", len(conj))
	}
	if conj[0].Column != "age" || conj[0].Op != ">" {
		t.Fatalf("first conjunct = %+v", conj[0])
	}
	if len(st.OrderBy) != 1 || !st.OrderBy[0].Descending {
		t.Fatalf("orderBy = %+v", st.OrderBy)
	}
	if !st.HasLimit || st.Limit != "10" || st.Offset != "5" {
		t.Fatalf("limit = %q offset = %q", st.Limit, st.Offset)
	}
}

func TestParseSelectKeepsRawLimitText(t *testing.T) {
	st := parseOne(t, "select * from app.users limit abc").(SelectStmt)
	if st.Limit != "abc" {
		t.Fatalf("limit = %q, want raw text", st.Limit)
	}
	if st.Offset != "0" {
		t.Fatalf("offset default = %q", st.Offset)
	}
}

func TestParseSelectAggregatesAndGroupBy(t *testing.T) {
	st := parseOne(t, "select count(*), avg(age) from app.users group by city").(SelectStmt)
	if len(st.Aggs) != 2 {
		t.Fatalf("aggs = %+v", st.Aggs)
	}
	if st.Aggs[0].Func != "COUNT" || st.Aggs[0].Column != "*" {
		t.Fatalf("first agg = %+v", st.Aggs[0])
	}
	if len(st.GroupBy) != 1 || st.GroupBy[0] != "city" {
		t.Fatalf("groupBy = %v", st.GroupBy)
	}
}

func TestParseJoin(t *testing.T) {
	st := parseOne(t, "select * from app.orders join app.users on orders.user_id = users.id").(SelectStmt)
	if st.Join == nil {
		t.Fatal("join not parsed")
	}
	if st.Join.DB != "app" || st.Join.Table != "users" {
		t.Fatalf("join target = %s.%s", st.Join.DB, st.Join.Table)
	}
	if st.Join.LeftKey != "orders.user_id" || st.Join.RightKey != "users.id" {
		t.Fatalf("join keys = %q %q", st.Join.LeftKey, st.Join.RightKey)
	}
}

func TestParseWherePrecedence(t *testing.T) {
	st := parseOne(t, "select * from d.t where a = 1 and b = 2 or c = 3").(SelectStmt)
	// OR binds loosest: (a AND b) OR c
	if len(st.Where.Or) != 2 {
		t.Fatalf("top level = %+v", st.Where)
	}
	if len(st.Where.Or[0].And) != 2 {
		t.Fatalf("left OR term = %+v", st.Where.Or[0])
	}
}

func TestParseConditionOperators(t *testing.T) {
	st := parseOne(t, "select * from d.t where age between 20 and 30").(SelectStmt)
	c := st.Where
	if c.Op != "BETWEEN" {
		t.Fatalf("op = %q", c.Op)
	}
	if lo, _ := c.Low.AsInt(); lo != 20 {
		t.Fatalf("low = %v", c.Low.Native())
	}

	st = parseOne(t, "select * from d.t where city in ('oslo', 'bergen')").(SelectStmt)
	if st.Where.Op != "IN" || len(st.Where.Values) != 2 {
		t.Fatalf("in condition = %+v", st.Where)
	}

	st = parseOne(t, "select * from d.t where name like 'a%'").(SelectStmt)
	if st.Where.Op != "LIKE" {
		t.Fatalf("op = %q", st.Where.Op)
	}
}

func TestParseUpdate(t *testing.T) {
	st, ok := parseOne(t, "update app.users set age = 31, city = 'oslo' where id = 7").(UpdateStmt)
	if !ok {
		t.Fatal("not an UpdateStmt")
	}
	if len(st.Set) != 2 {
		t.Fatalf("set = %v", st.Set)
	}
	if v, _ := st.Set["age"].AsInt(); v != 31 {
		t.Fatalf("age = %v", st.Set["age"].Native())
	}
	if st.Where == nil || st.Where.Column != "id" {
		t.Fatalf("where = %+v", st.Where)
	}
}

func TestParseDeleteEverything(t *testing.T) {
	st, ok := parseOne(t, "delete everything").(ControlStmt)
	if !ok || st.Target != "everything" {
		t.Fatalf("statement = %+v", st)
	}
}

func TestParseControlStatements(t *testing.T) {
	cases := []struct {
		input  string
		target string
		action string
	}{
		{"optimization enable", "optimization", "enable"},
		{"optimization level 2", "optimization", "level"},
		{"cache clear", "cache", "clear"},
		{"cache stats", "cache", "stats"},
		{"statistics collect", "statistics", "collect"},
	}
	for _, tc := range cases {
		st, ok := parseOne(t, tc.input).(ControlStmt)
		if !ok || st.Target != tc.target || st.Action != tc.action {
			t.Errorf("%q: got %+v", tc.input, st)
		}
	}
}

func TestParseScriptSplitsStatements(t *testing.T) {
	stmts, err := ParseScript("create database app; show databases; begin; commit")
	if err != nil {
		t.Fatal(err)
	}
	if len(stmts) != 4 {
		t.Fatalf("statements = %d", len(stmts))
	}
	if _, ok := stmts[2].(BeginStmt); !ok {
		t.Fatalf("third statement = %T", stmts[2])
	}
}

func TestParseErrorNamesStatement(t *testing.T) {
	_, err := ParseScript("show databases; select from")
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNormalizeIsStableAcrossCase(t *testing.T) {
	a := parseOne(t, "SELECT * FROM App.Users WHERE Age > 30")
	b := parseOne(t, "select * from app.users where age > 30")
	if a.Normalize() != b.Normalize() {
		t.Fatalf("normalize differs:\n%s\n%s", a.Normalize(), b.Normalize())
	}
}

func TestParseLiteralTypes(t *testing.T) {
	st := parseOne(t, "insert into d.t (a, b, c, d) values (1, 1.5, 'x', true)").(InsertStmt)
	row := st.Rows[0]
	if row[0].Type != storage.TypeInt {
		t.Errorf("int literal type = %v", row[0].Type)
	}
	if row[1].Type != storage.TypeFloat {
		t.Errorf("float literal type = %v", row[1].Type)
	}
	if row[2].Type != storage.TypeString {
		t.Errorf("string literal type = %v", row[2].Type)
	}
	if row[3].Type != storage.TypeBool {
		t.Errorf("bool literal type = %v", row[3].Type)
	}
}
