package lake

import (
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
)

// TableCache keeps a built silver table alive while later stages of the same
// run consume it. Entries are keyed by the run timestamp.
type TableCache struct {
	mu      sync.Mutex
	entries map[string]arrow.Table
}

// NewTableCache returns an empty cache.
func NewTableCache() *TableCache {
	return &TableCache{entries: make(map[string]arrow.Table)}
}

// Acquire stores tbl under key and takes a reference to it. A table already
// held under key is released and replaced.
func (c *TableCache) Acquire(key string, tbl arrow.Table) {
	tbl.Retain()

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		old.Release()
	}
	c.entries[key] = tbl
}

// Get returns the table held under key. The cache keeps its reference; the
// caller must Retain if it wants the table to outlive Release(key).
func (c *TableCache) Get(key string) (arrow.Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tbl, ok := c.entries[key]
	return tbl, ok
}

// Release drops the cache's reference to the table under key. It is a no-op
// for unknown keys.
func (c *TableCache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tbl, ok := c.entries[key]; ok {
		tbl.Release()
		delete(c.entries, key)
	}
}

// Len reports how many tables are held.
func (c *TableCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close releases every held table.
func (c *TableCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, tbl := range c.entries {
		tbl.Release()
		delete(c.entries, key)
	}
}
