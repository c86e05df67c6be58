package lsm

import (
	"bytes"
	"sort"
	"sync"
	"time"
)

// Entry is a key-value pair with write metadata
type Entry struct {
	Key       []byte
	Value     []byte
	Timestamp int64
	Tombstone bool
}

// EntryCompare orders two entries by key
func EntryCompare(a, b *Entry) int {
	return bytes.Compare(a.Key, b.Key)
}

// MemTable is the in-memory write buffer backed by a sorted key set
type MemTable struct {
	mu       sync.RWMutex
	data     map[string]*Entry
	keys     []string
	size     int
	maxBytes int
	sorted   bool
}

// NewMemTable creates an empty MemTable with the given flush threshold
func NewMemTable(maxBytes int) *MemTable {
	return &MemTable{
		data:     make(map[string]*Entry),
		keys:     make([]string, 0),
		maxBytes: maxBytes,
		sorted:   true,
	}
}

// Put writes a key-value pair and reports whether the table has
// reached its flush threshold
func (mt *MemTable) Put(key, value []byte) bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	keyStr := string(key)

	if existing, exists := mt.data[keyStr]; exists {
		oldSize := len(existing.Value)
		if mt.size >= oldSize {
			mt.size -= oldSize
		} else {
			mt.size = 0
		}
	} else {
		mt.keys = append(mt.keys, keyStr)
		mt.sorted = false
		mt.size += len(key)
	}
	mt.size += len(value)

	mt.data[keyStr] = &Entry{
		Key:       key,
		Value:     value,
		Timestamp: time.Now().UnixNano(),
	}

	return mt.size >= mt.maxBytes
}

// Get retrieves an entry by key. Tombstoned entries are returned so
// callers can distinguish deleted from absent.
func (mt *MemTable) Get(key []byte) (*Entry, bool) {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	entry, exists := mt.data[string(key)]
	return entry, exists
}

// Delete writes a tombstone for the key
func (mt *MemTable) Delete(key []byte) bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	keyStr := string(key)
	if existing, exists := mt.data[keyStr]; exists {
		existing.Value = nil
		existing.Tombstone = true
		existing.Timestamp = time.Now().UnixNano()
	} else {
		mt.keys = append(mt.keys, keyStr)
		mt.sorted = false
		mt.size += len(key)
		mt.data[keyStr] = &Entry{
			Key:       key,
			Timestamp: time.Now().UnixNano(),
			Tombstone: true,
		}
	}

	return mt.size >= mt.maxBytes
}

// Size returns the approximate size in bytes
func (mt *MemTable) Size() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.size
}

// Len returns the number of live plus tombstoned entries
func (mt *MemTable) Len() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return len(mt.data)
}

// IsFull reports whether the table should be flushed
func (mt *MemTable) IsFull() bool {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.size >= mt.maxBytes
}

// Snapshot returns all entries in key order. The returned slice is an
// independent copy safe to read while writers continue.
func (mt *MemTable) Snapshot() []*Entry {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if !mt.sorted {
		sort.Strings(mt.keys)
		mt.sorted = true
	}

	entries := make([]*Entry, 0, len(mt.keys))
	for _, key := range mt.keys {
		e := mt.data[key]
		entries = append(entries, &Entry{
			Key:       e.Key,
			Value:     e.Value,
			Timestamp: e.Timestamp,
			Tombstone: e.Tombstone,
		})
	}
	return entries
}

// ForEach calls fn for every live entry in key order
func (mt *MemTable) ForEach(fn func(key, value []byte)) {
	for _, e := range mt.Snapshot() {
		if !e.Tombstone {
			fn(e.Key, e.Value)
		}
	}
}

// Scan returns live entries in range [start, end)
func (mt *MemTable) Scan(start, end []byte) []*Entry {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if !mt.sorted {
		sort.Strings(mt.keys)
		mt.sorted = true
	}

	startStr := string(start)
	endStr := string(end)

	results := make([]*Entry, 0)
	for _, key := range mt.keys {
		if key >= endStr {
			break
		}
		if key >= startStr {
			entry := mt.data[key]
			if !entry.Tombstone {
				results = append(results, entry)
			}
		}
	}
	return results
}

// Clear removes all entries
func (mt *MemTable) Clear() {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.data = make(map[string]*Entry)
	mt.keys = make([]string, 0)
	mt.size = 0
	mt.sorted = true
}
