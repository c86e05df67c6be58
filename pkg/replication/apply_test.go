package replication

import (
	"testing"

	"github.com/ao/serengeti/pkg/catalog"
	"github.com/ao/serengeti/pkg/cluster"
	"github.com/ao/serengeti/pkg/metrics"
	"github.com/ao/serengeti/pkg/storage"
)

func newTestApplier(t *testing.T) (*Applier, *catalog.Catalog, *cluster.Membership) {
	t.Helper()
	cat, err := catalog.New(catalog.Options{DataPath: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cat.Close() })

	cat.CreateDatabase("app")
	cat.CreateTable("app", "users", storage.NewSchema(map[string]string{
		"id": "INT", "name": "VARCHAR",
	}))

	m := cluster.NewMembership("n1", "10.0.0.1", nil, metrics.NewRegistry())
	return NewApplier(cat, m, nil), cat, m
}

func TestApplyReplicatedInsertAndDelete(t *testing.T) {
	a, cat, _ := newTestApplier(t)

	row := &storage.Row{
		ID: "r1",
		Columns: map[string]storage.Value{
			"id":   storage.IntValue(1),
			"name": storage.StringValue("A"),
		},
	}
	_, err := a.Apply(&Message{
		Type: TypeReplicateInsert, Database: "app", Table: "users",
		RowID: "r1", Row: row,
	})
	if err != nil {
		t.Fatalf("apply insert: %v", err)
	}

	got, err := cat.Get("app", "users", "r1")
	if err != nil || got == nil {
		t.Fatalf("row not landed: %v, %v", got, err)
	}

	_, err = a.Apply(&Message{
		Type: TypeReplicateDelete, Database: "app", Table: "users", RowID: "r1",
	})
	if err != nil {
		t.Fatalf("apply delete: %v", err)
	}
	if got, _ := cat.Get("app", "users", "r1"); got != nil {
		t.Error("row readable after replicated delete")
	}
}

func TestApplyInsertWithoutRowRejected(t *testing.T) {
	a, _, _ := newTestApplier(t)
	_, err := a.Apply(&Message{Type: TypeReplicateInsert, Database: "app", Table: "users"})
	if err == nil {
		t.Error("insert without row accepted")
	}
}

func TestApplyPlacementUpdate(t *testing.T) {
	a, cat, _ := newTestApplier(t)

	row := &storage.Row{ID: "r1", Columns: map[string]storage.Value{"id": storage.IntValue(1)}}
	a.Apply(&Message{Type: TypeReplicateInsert, Database: "app", Table: "users", RowID: "r1", Row: row})

	_, err := a.Apply(&Message{
		Type: TypePlacementUpdate, Database: "app", Table: "users",
		RowID: "r1", Primary: "n2", Secondary: "n3",
	})
	if err != nil {
		t.Fatalf("apply placement: %v", err)
	}

	tbl, _ := cat.Table("app", "users")
	p, ok := tbl.PlacementOf("r1")
	if !ok || p.Primary != "n2" || p.Secondary != "n3" {
		t.Errorf("placement = %+v, %v", p, ok)
	}
}

func TestApplyJoinCluster(t *testing.T) {
	a, _, m := newTestApplier(t)

	_, err := a.Apply(&Message{Type: TypeJoinCluster, NodeID: "n9", IP: "10.0.0.9"})
	if err != nil {
		t.Fatalf("apply join: %v", err)
	}
	if _, ok := m.Member("n9"); !ok {
		t.Error("joining node not registered")
	}

	if _, err := a.Apply(&Message{Type: TypeJoinCluster}); err == nil {
		t.Error("join without identity accepted")
	}
}

func TestApplyMetaSyncRoundTrip(t *testing.T) {
	_, source, _ := newTestApplier(t)
	source.CreateDatabase("other")
	source.CreateTable("other", "logs", storage.NewSchema(map[string]string{"msg": "VARCHAR"}))

	snap := BuildMetaSnapshot(source)

	dest, err := catalog.New(catalog.Options{DataPath: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer dest.Close()

	a := NewApplier(dest, cluster.NewMembership("n2", "10.0.0.2", nil, metrics.NewRegistry()), nil)
	if _, err := a.Apply(&Message{Type: TypeMetaSync, Meta: snap}); err != nil {
		t.Fatalf("apply meta: %v", err)
	}

	if !dest.TableExists("app", "users") || !dest.TableExists("other", "logs") {
		t.Error("tables not mirrored")
	}

	// Re-applying the same snapshot is a no-op, not a conflict.
	if _, err := a.Apply(&Message{Type: TypeMetaSync, Meta: snap}); err != nil {
		t.Errorf("second apply errored: %v", err)
	}

	// Schema types survive the round trip.
	tbl, _ := dest.Table("app", "users")
	col, ok := tbl.Schema.Column("id")
	if !ok || col.Type != storage.TypeInt {
		t.Errorf("column id = %+v, %v", col, ok)
	}
}

func TestApplyWireAliases(t *testing.T) {
	a, cat, _ := newTestApplier(t)

	row := &storage.Row{ID: "r1", Columns: map[string]storage.Value{"id": storage.IntValue(1)}}
	_, err := a.Apply(&Message{
		Type: "TableReplicaObjectInsertOrReplace", Database: "app", Table: "users",
		RowID: "r1", Row: row, Primary: "n2", Secondary: "n3",
	})
	if err != nil {
		t.Fatalf("apply alias: %v", err)
	}

	if got, _ := cat.Get("app", "users", "r1"); got == nil {
		t.Error("aliased insert did not land")
	}
	tbl, _ := cat.Table("app", "users")
	p, ok := tbl.PlacementOf("r1")
	if !ok || p.Primary != "n2" {
		t.Errorf("aliased insert lost its placement: %+v, %v", p, ok)
	}

	_, err = a.Apply(&Message{Type: "ReplicateDeleteObject", Database: "app", Table: "users", RowID: "r1"})
	if err != nil {
		t.Fatalf("apply delete alias: %v", err)
	}
	if got, _ := cat.Get("app", "users", "r1"); got != nil {
		t.Error("aliased delete ignored")
	}
}

func TestApplyMetaRequestReplies(t *testing.T) {
	a, _, _ := newTestApplier(t)

	reply, err := a.Apply(&Message{Type: TypeMetaRequest})
	if err != nil {
		t.Fatalf("apply meta request: %v", err)
	}
	if reply == nil || reply.Type != TypeMetaSync || reply.Meta == nil {
		t.Fatalf("reply = %+v", reply)
	}
	if len(reply.Meta.Databases) != 1 || reply.Meta.Databases[0].Name != "app" {
		t.Errorf("snapshot = %+v", reply.Meta)
	}
}

func TestApplyUnknownTypeRejected(t *testing.T) {
	a, _, _ := newTestApplier(t)
	if _, err := a.Apply(&Message{Type: "Gossip"}); err == nil {
		t.Error("unknown type accepted")
	}
}

func TestApplyIsSilentForReplication(t *testing.T) {
	// A replicated insert must not fan back out; placement stays as
	// broadcast by the origin, not re-picked locally.
	a, cat, _ := newTestApplier(t)

	row := &storage.Row{ID: "r1", Columns: map[string]storage.Value{"id": storage.IntValue(1)}}
	a.Apply(&Message{Type: TypeReplicateInsert, Database: "app", Table: "users", RowID: "r1", Row: row})

	tbl, _ := cat.Table("app", "users")
	if _, ok := tbl.PlacementOf("r1"); ok {
		t.Error("replicated insert invented a local placement")
	}
}
