package query

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/ao/serengeti/pkg/storage"
)

// DefaultCacheCapacity bounds the number of cached result sets
const DefaultCacheCapacity = 256

// CacheStats is the observable state of the result cache
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Size      int   `json:"size"`
	Evictions int64 `json:"evictions"`
	Enabled   bool  `json:"enabled"`
}

// tableTag identifies the table a cached result depends on
type tableTag struct {
	db    string
	table string
}

type cacheEntry struct {
	fingerprint string
	rows        []*storage.Row
	tags        []tableTag
	elem        *list.Element
	storedAt    time.Time
}

// ResultCache caches SELECT results keyed by a fingerprint of the
// normalized statement. Any write to a tagged table invalidates every
// dependent entry. Eviction is LRU.
type ResultCache struct {
	mu       sync.Mutex
	enabled  bool
	capacity int
	ttl      time.Duration // 0 = entries never age out
	entries  map[string]*cacheEntry
	byTable  map[tableTag]map[string]struct{}
	lru      *list.List // fingerprints, front = most recent

	hits      int64
	misses    int64
	evictions int64
}

// NewResultCache creates an enabled cache
func NewResultCache(capacity int) *ResultCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &ResultCache{
		enabled:  true,
		capacity: capacity,
		entries:  make(map[string]*cacheEntry),
		byTable:  make(map[tableTag]map[string]struct{}),
		lru:      list.New(),
	}
}

// SetTTL bounds the age of served entries; expired entries count as
// misses and are dropped on access.
func (c *ResultCache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	c.ttl = ttl
	c.mu.Unlock()
}

// Fingerprint hashes the normalized statement
func Fingerprint(stmt Statement) string {
	sum := sha256.Sum256([]byte(stmt.Normalize()))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached rows for a fingerprint
func (c *ResultCache) Get(fingerprint string) ([]*storage.Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return nil, false
	}
	entry, ok := c.entries[fingerprint]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.ttl > 0 && time.Since(entry.storedAt) > c.ttl {
		c.removeLocked(entry)
		c.misses++
		return nil, false
	}
	c.hits++
	c.lru.MoveToFront(entry.elem)
	return entry.rows, true
}

// Put stores a result with its table dependencies
func (c *ResultCache) Put(fingerprint string, rows []*storage.Row, tables ...[2]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	if old, ok := c.entries[fingerprint]; ok {
		c.removeLocked(old)
	}
	for c.lru.Len() >= c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(c.entries[oldest.Value.(string)])
		c.evictions++
	}

	entry := &cacheEntry{fingerprint: fingerprint, rows: rows, storedAt: time.Now()}
	for _, t := range tables {
		tag := tableTag{db: t[0], table: t[1]}
		entry.tags = append(entry.tags, tag)
		if c.byTable[tag] == nil {
			c.byTable[tag] = make(map[string]struct{})
		}
		c.byTable[tag][fingerprint] = struct{}{}
	}
	entry.elem = c.lru.PushFront(fingerprint)
	c.entries[fingerprint] = entry
}

// Invalidate drops every entry that depends on the table
func (c *ResultCache) Invalidate(db, table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tag := tableTag{db: db, table: table}
	for fp := range c.byTable[tag] {
		if entry, ok := c.entries[fp]; ok {
			c.removeLocked(entry)
		}
	}
}

// InvalidateDatabase drops every entry touching any table of the
// database.
func (c *ResultCache) InvalidateDatabase(db string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for tag, fps := range c.byTable {
		if tag.db != db {
			continue
		}
		for fp := range fps {
			if entry, ok := c.entries[fp]; ok {
				c.removeLocked(entry)
			}
		}
	}
}

// Clear empties the cache without touching counters
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.byTable = make(map[tableTag]map[string]struct{})
	c.lru.Init()
}

// SetEnabled toggles the cache; disabling clears it
func (c *ResultCache) SetEnabled(v bool) {
	c.mu.Lock()
	c.enabled = v
	c.mu.Unlock()
	if !v {
		c.Clear()
	}
}

// Stats returns a snapshot of the counters
func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Size:      len(c.entries),
		Evictions: c.evictions,
		Enabled:   c.enabled,
	}
}

func (c *ResultCache) removeLocked(entry *cacheEntry) {
	if entry == nil {
		return
	}
	delete(c.entries, entry.fingerprint)
	c.lru.Remove(entry.elem)
	for _, tag := range entry.tags {
		delete(c.byTable[tag], entry.fingerprint)
		if len(c.byTable[tag]) == 0 {
			delete(c.byTable, tag)
		}
	}
}
