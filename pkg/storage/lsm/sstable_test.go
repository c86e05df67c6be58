package lsm

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func makeEntries(n int) []*Entry {
	entries := make([]*Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, &Entry{
			Key:       []byte(fmt.Sprintf("key-%05d", i)),
			Value:     []byte(fmt.Sprintf("value-%d", i)),
			Timestamp: time.Now().UnixNano(),
		})
	}
	return entries
}

func TestSSTableCreateAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "L0-000001.sst")

	sst, err := CreateSSTable(path, makeEntries(500))
	if err != nil {
		t.Fatalf("CreateSSTable failed: %v", err)
	}
	defer sst.Close()

	entry, ok := sst.Get([]byte("key-00042"))
	if !ok {
		t.Fatal("key-00042 not found")
	}
	if !bytes.Equal(entry.Value, []byte("value-42")) {
		t.Errorf("value = %q", entry.Value)
	}

	if _, ok := sst.Get([]byte("key-99999")); ok {
		t.Error("absent key reported present")
	}
}

func TestSSTableReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "L0-000001.sst")

	created, err := CreateSSTable(path, makeEntries(300))
	if err != nil {
		t.Fatal(err)
	}
	created.Close()

	sst, err := OpenSSTable(path)
	if err != nil {
		t.Fatalf("OpenSSTable failed: %v", err)
	}
	defer sst.Close()

	if sst.EntryCount() != 300 {
		t.Errorf("EntryCount = %d, want 300", sst.EntryCount())
	}
	for i := 0; i < 300; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		entry, ok := sst.Get(key)
		if !ok {
			t.Fatalf("%s missing after reopen", key)
		}
		if !bytes.Equal(entry.Value, []byte(fmt.Sprintf("value-%d", i))) {
			t.Fatalf("%s value = %q", key, entry.Value)
		}
	}
}

func TestSSTableTombstoneDistinctFromAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "L0-000001.sst")

	entries := []*Entry{
		{Key: []byte("alive"), Value: []byte("v"), Timestamp: 1},
		{Key: []byte("dead"), Timestamp: 2, Tombstone: true},
	}
	sst, err := CreateSSTable(path, entries)
	if err != nil {
		t.Fatal(err)
	}
	defer sst.Close()

	entry, ok := sst.Get([]byte("dead"))
	if !ok {
		t.Fatal("tombstone should be returned, not absent")
	}
	if !entry.Tombstone {
		t.Error("entry not flagged as tombstone")
	}

	if _, ok := sst.Get([]byte("neither")); ok {
		t.Error("absent key found")
	}
}

func TestSSTableCorruptionDetected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "L0-000001.sst")

	created, err := CreateSSTable(path, makeEntries(100))
	if err != nil {
		t.Fatal(err)
	}
	created.Close()

	// Flip a byte in the header's entry count.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[8] ^= 0xFF
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenSSTable(path); err == nil {
		t.Error("corrupted header accepted")
	}
}

func TestSSTableBadMagicRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.sst")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xAB}, 64), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenSSTable(path); err == nil {
		t.Error("bogus file accepted")
	}
}

func TestSSTableScan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "L0-000001.sst")

	sst, err := CreateSSTable(path, makeEntries(50))
	if err != nil {
		t.Fatal(err)
	}
	defer sst.Close()

	results, err := sst.Scan([]byte("key-00010"), []byte("key-00020"))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 10 {
		t.Errorf("got %d entries, want 10", len(results))
	}
}

// Round-trip law: reading everything back from a created table yields
// the original snapshot.
func TestSSTableRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25

	properties := gopter.NewProperties(parameters)
	properties.Property("readAll(create(entries)) == entries",
		prop.ForAll(
			func(keys []string) bool {
				mt := NewMemTable(1 << 20)
				for i, k := range keys {
					mt.Put([]byte(k), []byte(fmt.Sprintf("v%d", i)))
				}
				snapshot := mt.Snapshot()

				path := filepath.Join(t.TempDir(), "prop.sst")
				sst, err := CreateSSTable(path, snapshot)
				if err != nil {
					return false
				}
				defer sst.Close()

				read, err := sst.Iterator()
				if err != nil {
					return false
				}
				if len(read) != len(snapshot) {
					return false
				}
				for i := range read {
					if !bytes.Equal(read[i].Key, snapshot[i].Key) ||
						!bytes.Equal(read[i].Value, snapshot[i].Value) {
						return false
					}
				}
				return true
			},
			gen.SliceOf(gen.Identifier()),
		))

	properties.TestingRun(t)
}
