package data

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"walkforward-backtest/internal/model"
)

// CacheEntry is a cached, fully prepared series.
type CacheEntry struct {
	Series    model.Series
	ExpiresAt time.Time
}

// SeriesCache keeps prepared series in memory so repeated runs over the same
// dataset skip parsing and feature engineering. A nil cache is valid and
// never hits.
type SeriesCache struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
	ttl   time.Duration
	now   func() time.Time
}

func NewSeriesCache(ttl time.Duration) *SeriesCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SeriesCache{
		store: make(map[string]*CacheEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get retrieves a cached series if available and not expired.
func (c *SeriesCache) Get(key string) (model.Series, bool) {
	if c == nil {
		return model.Series{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.store[key]
	if !exists || c.now().After(entry.ExpiresAt) {
		return model.Series{}, false
	}
	return entry.Series, true
}

// Set stores a series in the cache.
func (c *SeriesCache) Set(key string, s model.Series) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store[key] = &CacheEntry{
		Series:    s,
		ExpiresAt: c.now().Add(c.ttl),
	}
}

// Clear removes all entries from the cache.
func (c *SeriesCache) Clear() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store = make(map[string]*CacheEntry)
}

func (c *SeriesCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Evict drops expired entries.
func (c *SeriesCache) Evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.store {
		if now.After(entry.ExpiresAt) {
			delete(c.store, key)
		}
	}
}

// Janitor evicts expired entries every interval until ctx is done.
func (c *SeriesCache) Janitor(ctx context.Context, interval time.Duration) {
	if c == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Evict()
		}
	}
}

// CacheKey creates a deterministic key from the dataset path and the options
// that change the prepared series.
func CacheKey(path string, symbols []string, task model.Task, horizon int) string {
	syms := append([]string(nil), symbols...)
	for i := range syms {
		syms[i] = strings.ToUpper(syms[i])
	}
	sort.Strings(syms)
	keyStr := fmt.Sprintf("%s:%s:%s:%d", path, strings.Join(syms, ","), task, horizon)

	hash := sha256.Sum256([]byte(keyStr))
	return hex.EncodeToString(hash[:])
}
