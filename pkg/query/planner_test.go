package query

import (
	"strings"
	"testing"

	"github.com/ao/serengeti/pkg/catalog"
	"github.com/ao/serengeti/pkg/storage"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(catalog.Options{DataPath: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cat.Close() })

	if err := cat.CreateDatabase("app"); err != nil {
		t.Fatal(err)
	}
	schema := storage.NewSchema(map[string]string{"id": "INT", "name": "VARCHAR", "age": "INT", "city": "VARCHAR"})
	if err := cat.CreateTable("app", "users", schema); err != nil {
		t.Fatal(err)
	}
	orders := storage.NewSchema(map[string]string{"id": "INT", "user_id": "INT", "total": "FLOAT"})
	if err := cat.CreateTable("app", "orders", orders); err != nil {
		t.Fatal(err)
	}
	return cat
}

func selectStmt(t *testing.T, input string) SelectStmt {
	t.Helper()
	st, ok := parseOne(t, input).(SelectStmt)
	if !ok {
		t.Fatalf("%q is not a SELECT", input)
	}
	return st
}

func TestPlanScanWithoutIndex(t *testing.T) {
	cat := newTestCatalog(t)
	pl := NewPlanner(cat)

	ops := pl.PlanSelect(selectStmt(t, "select * from app.users where age > 30"))
	if ops[0].Type != OpScan {
		t.Fatalf("access path = %s", ops[0].Type)
	}
	if ops[1].Type != OpFilter {
		t.Fatalf("second op = %s", ops[1].Type)
	}
}

func TestPlanIndexLookup(t *testing.T) {
	cat := newTestCatalog(t)
	if err := cat.CreateIndex("app", "users", []string{"age"}, false); err != nil {
		t.Fatal(err)
	}
	pl := NewPlanner(cat)

	ops := pl.PlanSelect(selectStmt(t, "select * from app.users where age = 30 and city = 'oslo'"))
	if ops[0].Type != OpIndexLookup {
		t.Fatalf("access path = %s", ops[0].Type)
	}
	if ops[0].IndexColumn != "age" || ops[0].IndexOp != "=" {
		t.Fatalf("index condition = %s %s", ops[0].IndexColumn, ops[0].IndexOp)
	}
	// The city conjunct survives as the residual filter.
	if ops[1].Type != OpFilter || ops[1].Predicate.Column != "city" {
		t.Fatalf("residual = %+v", ops[1])
	}
}

func TestPlanIgnoresIndexUnderTopLevelOr(t *testing.T) {
	cat := newTestCatalog(t)
	if err := cat.CreateIndex("app", "users", []string{"age"}, false); err != nil {
		t.Fatal(err)
	}
	pl := NewPlanner(cat)

	ops := pl.PlanSelect(selectStmt(t, "select * from app.users where age = 30 or city = 'oslo'"))
	if ops[0].Type != OpScan {
		t.Fatalf("access path = %s, want SCAN under OR", ops[0].Type)
	}
}

func TestPlanDisabledOptimizationScans(t *testing.T) {
	cat := newTestCatalog(t)
	if err := cat.CreateIndex("app", "users", []string{"age"}, false); err != nil {
		t.Fatal(err)
	}
	pl := NewPlanner(cat)
	pl.SetEnabled(false)

	ops := pl.PlanSelect(selectStmt(t, "select * from app.users where age = 30"))
	if ops[0].Type != OpScan {
		t.Fatalf("access path = %s with optimization off", ops[0].Type)
	}

	pl.SetEnabled(true)
	pl.SetLevel(0)
	ops = pl.PlanSelect(selectStmt(t, "select * from app.users where age = 30"))
	if ops[0].Type != OpScan {
		t.Fatalf("access path = %s at level 0", ops[0].Type)
	}
}

func TestPlanJoinStrategy(t *testing.T) {
	cat := newTestCatalog(t)
	pl := NewPlanner(cat)

	stmt := selectStmt(t, "select * from app.orders join app.users on orders.user_id = users.id")
	ops := pl.PlanSelect(stmt)
	var join *Operation
	for i := range ops {
		if ops[i].Type == OpHashJoin || ops[i].Type == OpIndexJoin {
			join = &ops[i]
		}
	}
	if join == nil {
		t.Fatal("no join op")
	}
	if join.Type != OpHashJoin {
		t.Fatalf("join = %s without index", join.Type)
	}

	if err := cat.CreateIndex("app", "users", []string{"id"}, false); err != nil {
		t.Fatal(err)
	}
	ops = pl.PlanSelect(stmt)
	found := false
	for _, op := range ops {
		if op.Type == OpIndexJoin {
			found = true
		}
	}
	if !found {
		t.Fatal("expected INDEX_JOIN once the join key is indexed")
	}
}

func TestPlanOperationOrder(t *testing.T) {
	cat := newTestCatalog(t)
	pl := NewPlanner(cat)

	ops := pl.PlanSelect(selectStmt(t,
		"select name from app.users where age > 30 order by name limit 5"))
	got := make([]string, len(ops))
	for i, op := range ops {
		got[i] = string(op.Type)
	}
	want := []string{"SCAN", "FILTER", "SORT", "LIMIT", "PROJECT"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("pipeline = %v, want %v", got, want)
	}
}

func TestPlanAggregates(t *testing.T) {
	cat := newTestCatalog(t)
	pl := NewPlanner(cat)

	ops := pl.PlanSelect(selectStmt(t, "select count(*) from app.users"))
	if ops[len(ops)-1].Type != OpScalarAggregate {
		t.Fatalf("pipeline = %s", ExplainPlan(ops))
	}

	ops = pl.PlanSelect(selectStmt(t, "select count(*) from app.users group by city"))
	found := false
	for _, op := range ops {
		if op.Type == OpHashAggregate {
			found = true
		}
	}
	if !found {
		t.Fatalf("pipeline = %s", ExplainPlan(ops))
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	cat := newTestCatalog(t)
	if err := cat.CreateIndex("app", "users", []string{"age"}, false); err != nil {
		t.Fatal(err)
	}
	pl := NewPlanner(cat)

	stmt := selectStmt(t, "select * from app.users where age = 30 and city = 'oslo' order by name")
	first := ExplainPlan(pl.PlanSelect(stmt))
	for i := 0; i < 10; i++ {
		if got := ExplainPlan(pl.PlanSelect(stmt)); got != first {
			t.Fatalf("plan changed between runs:\n%s\n%s", first, got)
		}
	}
}
