package discovery

import (
	"sync"
	"time"
)

// ttl is the discovery document cache lifetime, per spec §4.H ("caches
// 1 h").
const ttl = time.Hour

type cacheEntry struct {
	doc       Document
	expiresAt time.Time
}

// cache is a per-tenant-name 1h TTL cache for discovery documents,
// implemented as a mutex-guarded map so entries can expire and rebuild
// (sync.Once alone cannot re-arm).
type cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func newCache() *cache {
	return &cache{entries: make(map[string]cacheEntry), now: time.Now}
}

func (c *cache) getOrBuild(key string, build func() Document) Document {
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && now.Before(e.expiresAt) {
		c.mu.Unlock()
		return e.doc
	}
	c.mu.Unlock()

	doc := build()

	c.mu.Lock()
	c.entries[key] = cacheEntry{doc: doc, expiresAt: now.Add(ttl)}
	c.mu.Unlock()

	return doc
}
