package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
)

// SweepInterval is the minimum clock time between two sweeps of expired entries.
const SweepInterval = time.Minute

type cacheEntry struct {
	data    []byte
	expires time.Time
}

func (e cacheEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// PageCache is an in-process crawler.Cache. Pages are stored encoded so callers never
// share memory with the cache. Expired entries are dropped when read, and a write that
// comes at least SweepInterval after the previous sweep removes every expired entry.
type PageCache struct {
	mu        sync.RWMutex
	entries   map[string]cacheEntry
	now       func() time.Time
	lastSweep time.Time
}

// NewPageCache creates an empty cache. clock may be nil.
func NewPageCache(clock crawler.Clock) *PageCache {
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &PageCache{
		entries:   make(map[string]cacheEntry),
		now:       now,
		lastSweep: now(),
	}
}

// Get returns the live page stored under key or crawler.ErrCacheMiss.
func (c *PageCache) Get(_ context.Context, key string) (crawler.Page, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return crawler.Page{}, crawler.ErrCacheMiss
	}
	if entry.expired(c.now()) {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && cur.expires.Equal(entry.expires) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return crawler.Page{}, crawler.ErrCacheMiss
	}
	var page crawler.Page
	if err := json.Unmarshal(entry.data, &page); err != nil {
		return crawler.Page{}, fmt.Errorf("decode cached page: %w", err)
	}
	return page, nil
}

// Set stores page under key. A non-positive ttl never expires.
func (c *PageCache) Set(_ context.Context, key string, page crawler.Page, ttl time.Duration) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("encode page: %w", err)
	}
	now := c.now()
	entry := cacheEntry{data: data}
	if ttl > 0 {
		entry.expires = now.Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.lastSweep) >= SweepInterval {
		c.sweepLocked(now)
	}
	c.entries[key] = entry
	return nil
}

func (c *PageCache) sweepLocked(now time.Time) {
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
		}
	}
	c.lastSweep = now
}

// Len reports the number of entries held, expired or not.
func (c *PageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Delete invalidates key.
func (c *PageCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Close drops every entry.
func (c *PageCache) Close() error {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
	return nil
}
