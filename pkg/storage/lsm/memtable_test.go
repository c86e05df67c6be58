package lsm

import (
	"bytes"
	"fmt"
	"testing"
)

func TestMemTablePutGet(t *testing.T) {
	mt := NewMemTable(1024 * 1024)

	mt.Put([]byte("key1"), []byte("value1"))
	mt.Put([]byte("key2"), []byte("value2"))

	entry, ok := mt.Get([]byte("key1"))
	if !ok {
		t.Fatal("key1 not found")
	}
	if !bytes.Equal(entry.Value, []byte("value1")) {
		t.Errorf("value = %q, want value1", entry.Value)
	}

	if _, ok := mt.Get([]byte("missing")); ok {
		t.Error("missing key reported present")
	}
}

func TestMemTableUpdate(t *testing.T) {
	mt := NewMemTable(1024 * 1024)

	mt.Put([]byte("key"), []byte("old"))
	size1 := mt.Size()
	mt.Put([]byte("key"), []byte("newer-value"))

	entry, _ := mt.Get([]byte("key"))
	if !bytes.Equal(entry.Value, []byte("newer-value")) {
		t.Errorf("value = %q", entry.Value)
	}
	if mt.Len() != 1 {
		t.Errorf("Len = %d, want 1", mt.Len())
	}
	if mt.Size() <= size1 {
		t.Errorf("size did not grow with larger value: %d -> %d", size1, mt.Size())
	}
}

func TestMemTableTombstone(t *testing.T) {
	mt := NewMemTable(1024 * 1024)

	mt.Put([]byte("key"), []byte("value"))
	mt.Delete([]byte("key"))

	entry, ok := mt.Get([]byte("key"))
	if !ok {
		t.Fatal("tombstone should still be visible to Get")
	}
	if !entry.Tombstone {
		t.Error("entry not marked as tombstone")
	}

	// Deleting an absent key creates a bare tombstone.
	mt.Delete([]byte("never-written"))
	entry, ok = mt.Get([]byte("never-written"))
	if !ok || !entry.Tombstone {
		t.Error("bare tombstone not recorded")
	}
}

func TestMemTableNeedsFlush(t *testing.T) {
	mt := NewMemTable(32)

	if mt.Put([]byte("a"), []byte("1")) {
		t.Error("tiny write should not trigger flush")
	}
	if !mt.Put([]byte("b"), bytes.Repeat([]byte("x"), 64)) {
		t.Error("overflowing write should trigger flush")
	}
	if !mt.IsFull() {
		t.Error("IsFull = false after threshold crossed")
	}
}

func TestMemTableSnapshotSorted(t *testing.T) {
	mt := NewMemTable(1024 * 1024)

	for _, k := range []string{"zebra", "ant", "mole", "bee"} {
		mt.Put([]byte(k), []byte(k))
	}

	entries := mt.Snapshot()
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if EntryCompare(entries[i-1], entries[i]) >= 0 {
			t.Errorf("snapshot not sorted at %d: %q >= %q",
				i, entries[i-1].Key, entries[i].Key)
		}
	}

	// Snapshot is independent of later writes.
	mt.Put([]byte("ant"), []byte("changed"))
	if !bytes.Equal(entries[0].Value, []byte("ant")) {
		t.Error("snapshot mutated by later write")
	}
}

func TestMemTableScan(t *testing.T) {
	mt := NewMemTable(1024 * 1024)

	for i := 0; i < 10; i++ {
		mt.Put([]byte(fmt.Sprintf("key%02d", i)), []byte("v"))
	}
	mt.Delete([]byte("key04"))

	entries := mt.Scan([]byte("key02"), []byte("key07"))
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4 (key02,03,05,06)", len(entries))
	}
	for _, e := range entries {
		if string(e.Key) == "key04" {
			t.Error("tombstoned key returned by Scan")
		}
	}
}

func TestMemTableClear(t *testing.T) {
	mt := NewMemTable(1024 * 1024)
	mt.Put([]byte("a"), []byte("1"))
	mt.Clear()

	if mt.Size() != 0 || mt.Len() != 0 {
		t.Errorf("Clear left size=%d len=%d", mt.Size(), mt.Len())
	}
}
