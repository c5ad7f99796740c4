// Package cache implements the TTL+LRU validation cache: a
// bounded, time-expiring memo of ValidationVerdicts keyed by a structural
// hash of the reference tuple being validated — never a raw user query.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/seanblong/codeknow/pkg/codegraph"
)

// Config holds the cache's two tunables.
type Config struct {
	MaxEntries int
	TTL        time.Duration
}

type entry struct {
	verdict    codegraph.ValidationVerdict
	insertedAt time.Time
	lastUsedAt time.Time
}

// Stats are approximate under contention but never negative.
type Stats struct {
	Hits           int64
	Misses         int64
	EvictionsByTTL int64
	EvictionsByLRU int64
}

// Cache is the TTL+LRU validation verdict cache. The underlying
// hashicorp/golang-lru simplelru.LRU already evicts least-recently-used
// first, with ties resolved in insertion order (an entry never re-gotten
// keeps its original position in the internal list) — Cache adds the
// wall-clock TTL layer simplelru does not have.
type Cache struct {
	mu         sync.Mutex
	lru        *lru.LRU[string, *entry]
	maxEntries int
	ttl        time.Duration
	stat       Stats
}

// New builds a Cache. MaxEntries must be positive; non-positive values are
// clamped to 1.
func New(cfg Config) *Cache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c := &Cache{ttl: cfg.TTL, maxEntries: maxEntries}
	backing, _ := lru.NewLRU[string, *entry](maxEntries, nil)
	c.lru = backing
	return c
}

// Get returns the cached verdict for key, or ok=false if absent or expired.
// A TTL-expired hit evicts the entry and counts as an eviction-by-ttl, not
// a separate miss-plus-eviction.
func (c *Cache) Get(key string) (codegraph.ValidationVerdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		atomic.AddInt64(&c.stat.Misses, 1)
		return codegraph.ValidationVerdict{}, false
	}
	if c.ttl > 0 && time.Since(e.insertedAt) > c.ttl {
		c.lru.Remove(key)
		atomic.AddInt64(&c.stat.EvictionsByTTL, 1)
		return codegraph.ValidationVerdict{}, false
	}
	e.lastUsedAt = time.Now()
	atomic.AddInt64(&c.stat.Hits, 1)
	return e.verdict, true
}

// Put inserts or overwrites the verdict for key. Inserting a new key while
// the cache is already at capacity triggers simplelru's internal
// least-recently-used eviction; Cache counts that as an eviction-by-lru.
func (c *Cache) Put(key string, verdict codegraph.ValidationVerdict) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	_, existed := c.lru.Get(key)
	if !existed && c.lru.Len() >= c.maxEntries {
		atomic.AddInt64(&c.stat.EvictionsByLRU, 1)
	}
	c.lru.Add(key, &entry{verdict: verdict, insertedAt: now, lastUsedAt: now})
}

// Invalidate explicitly removes key, if present.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// StatsSnapshot returns a copy of the current counters.
func (c *Cache) StatsSnapshot() Stats {
	return Stats{
		Hits:           atomic.LoadInt64(&c.stat.Hits),
		Misses:         atomic.LoadInt64(&c.stat.Misses),
		EvictionsByTTL: atomic.LoadInt64(&c.stat.EvictionsByTTL),
		EvictionsByLRU: atomic.LoadInt64(&c.stat.EvictionsByLRU),
	}
}
