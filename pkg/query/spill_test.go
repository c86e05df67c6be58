package query

import (
	"fmt"
	"testing"

	"github.com/ao/serengeti/pkg/storage"
)

func spillRow(id string, n int64) *storage.Row {
	return &storage.Row{
		ID: id,
		Columns: map[string]storage.Value{
			"n":    storage.FromNative(n),
			"name": storage.FromNative("row-" + id),
		},
	}
}

func TestSpillRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rows := []*storage.Row{spillRow("a", 1), spillRow("b", 2)}

	path := spillFile(dir, "q1", "op0", 1)
	released, err := writeSpill(path, rows)
	if err != nil {
		t.Fatal(err)
	}
	if released <= 0 {
		t.Fatalf("released = %d", released)
	}

	back, err := readSpill(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 2 || back[0].ID != "a" {
		t.Fatalf("rows = %+v", back)
	}
	if n, _ := back[1].Columns["n"].AsInt(); n != 2 {
		t.Fatalf("n = %v", back[1].Columns["n"].Native())
	}
}

func TestHashJoinSpillAndProbe(t *testing.T) {
	m := NewHashJoinSpillManager(t.TempDir(), "q1", "join", 4, nil)
	m.SetKeyFunc(func(r *storage.Row) string {
		v, _ := r.Columns["n"].AsInt()
		return fmt.Sprintf("%d", v)
	})

	for i := int64(0); i < 100; i++ {
		key := fmt.Sprintf("%d", i%10)
		m.Add(key, spillRow(fmt.Sprintf("r%03d", i), i%10))
	}

	released, err := m.SpillToDisk()
	if err != nil {
		t.Fatal(err)
	}
	if released <= 0 {
		t.Fatal("nothing released")
	}

	// Probing a spilled key transparently reloads its partition.
	for key := 0; key < 10; key++ {
		rows, err := m.Probe(fmt.Sprintf("%d", key))
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 10 {
			t.Fatalf("key %d: %d rows, want 10", key, len(rows))
		}
	}

	if err := m.Cleanup(); err != nil {
		t.Fatal(err)
	}
}

func TestHashJoinAllPartitionsSpilled(t *testing.T) {
	m := NewHashJoinSpillManager(t.TempDir(), "q1", "join", 2, nil)
	m.Add("a", spillRow("1", 1))
	m.Add("b", spillRow("2", 2))

	for i := 0; i < 2; i++ {
		if _, err := m.SpillToDisk(); err != nil {
			t.Fatalf("spill %d: %v", i, err)
		}
	}
	if !m.AllPartitionsSpilled() {
		t.Fatal("partitions still in memory")
	}
	if _, err := m.SpillToDisk(); err == nil {
		t.Fatal("expected error once everything is on disk")
	}
	m.Cleanup()
}

func TestSortSpillChunkedMerge(t *testing.T) {
	compare := func(a, b *storage.Row) int {
		av, _ := a.Columns["n"].AsInt()
		bv, _ := b.Columns["n"].AsInt()
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	}

	m := NewSortSpillManager(t.TempDir(), "q1", "sort", compare, 100, nil)

	// 400 rows in descending order force four 100-row chunks.
	for i := 0; i < 400; i++ {
		if err := m.Add(spillRow(fmt.Sprintf("r%03d", i), int64(399-i))); err != nil {
			t.Fatal(err)
		}
	}
	if m.SpilledChunks() != 4 {
		t.Fatalf("chunks = %d, want 4", m.SpilledChunks())
	}

	out, err := m.MergeChunks()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 400 {
		t.Fatalf("merged rows = %d", len(out))
	}
	for i, row := range out {
		if n, _ := row.Columns["n"].AsInt(); n != int64(i) {
			t.Fatalf("row %d out of order: n = %d", i, n)
		}
	}
	m.Cleanup()
}

func TestSortSpillReadBack(t *testing.T) {
	compare := func(a, b *storage.Row) int {
		av, _ := a.Columns["n"].AsInt()
		bv, _ := b.Columns["n"].AsInt()
		return int(av - bv)
	}
	m := NewSortSpillManager(t.TempDir(), "q1", "sort", compare, 3, nil)

	for i := int64(0); i < 5; i++ {
		m.Add(spillRow(fmt.Sprintf("r%d", i), 4-i))
	}
	if m.SpilledChunks() != 1 {
		t.Fatalf("chunks = %d", m.SpilledChunks())
	}
	if err := m.ReadFromDisk(); err != nil {
		t.Fatal(err)
	}
	if m.SpilledChunks() != 0 {
		t.Fatal("chunk not reloaded")
	}
	out, err := m.MergeChunks()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 5 {
		t.Fatalf("rows = %d", len(out))
	}
}
