package metadata

import (
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	value     string
	found     bool
	expiresAt time.Time
}

// KVCache is a read-through TTL cache in front of etcd. It also remembers
// misses so repeated lookups of absent records skip the round trip.
type KVCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// CacheStats describes cache occupancy
type CacheStats struct {
	Entries int           `json:"entries"`
	Expired int           `json:"expired"`
	Misses  int           `json:"negative_entries"`
	TTL     time.Duration `json:"ttl"`
}

// NewKVCache creates a cache and starts its sweeper
func NewKVCache(ttl time.Duration) *KVCache {
	c := &KVCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go c.sweep(time.Minute)
	return c
}

// Get returns (value, found, cached). When cached is false the caller must
// consult the backing store.
func (c *KVCache) Get(key string) (string, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		return "", false, false
	}
	return e.value, e.found, true
}

// Set caches a present value
func (c *KVCache) Set(key, value string) {
	c.put(key, cacheEntry{value: value, found: true})
}

// SetMissing caches the absence of key
func (c *KVCache) SetMissing(key string) {
	c.put(key, cacheEntry{})
}

func (c *KVCache) put(key string, e cacheEntry) {
	e.expiresAt = c.now().Add(c.ttl)
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Delete forgets key
func (c *KVCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// DeletePrefix forgets every key under prefix
func (c *KVCache) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Clear drops everything
func (c *KVCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Stats counts live, expired and negative entries
func (c *KVCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := CacheStats{Entries: len(c.entries), TTL: c.ttl}
	now := c.now()
	for _, e := range c.entries {
		if now.After(e.expiresAt) {
			s.Expired++
		}
		if !e.found {
			s.Misses++
		}
	}
	return s
}

func (c *KVCache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *KVCache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Stop ends the sweeper; safe to call more than once
func (c *KVCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
