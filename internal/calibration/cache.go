package calibration

import (
	"sync"
)

// Result is a cached fit outcome.
type Result struct {
	Calibration *Calibration
	Err         error
}

// Cache holds fitted calibrations per map so each map is fitted once.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Result
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]Result),
	}
}

// Get returns the cached result for mapID.
func (c *Cache) Get(mapID string) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[mapID]
	return r, ok
}

// Put stores a fit result. Failed fits are cached too.
func (c *Cache) Put(mapID string, cal *Calibration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[mapID] = Result{Calibration: cal, Err: err}
}

// Invalidate drops the entry for mapID.
func (c *Cache) Invalidate(mapID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, mapID)
}

// Reset empties the cache.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Result)
}

// Len returns the number of cached maps.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
