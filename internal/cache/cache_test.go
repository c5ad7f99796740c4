package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/seanblong/codeknow/pkg/codegraph"
)

func TestGetPutRoundTrip(t *testing.T) {
	c := New(Config{MaxEntries: 10, TTL: time.Minute})
	verdict := codegraph.ValidationVerdict{Found: true, Confidence: 0.9}

	c.Put("k", verdict)
	got, ok := c.Get("k")
	if !ok {
		t.Fatalf("expected hit after put")
	}
	if got.Found != verdict.Found || got.Confidence != verdict.Confidence {
		t.Errorf("expected %+v, got %+v", verdict, got)
	}
}

func TestGetMissingKeyIsMiss(t *testing.T) {
	c := New(Config{MaxEntries: 10, TTL: time.Minute})
	if _, ok := c.Get("absent"); ok {
		t.Fatalf("expected miss for absent key")
	}
	if stats := c.StatsSnapshot(); stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestGetExpiredEntryEvictsByTTL(t *testing.T) {
	c := New(Config{MaxEntries: 10, TTL: time.Millisecond})
	c.Put("k", codegraph.ValidationVerdict{Found: true, Confidence: 1.0})
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected expired entry to be absent")
	}
	stats := c.StatsSnapshot()
	if stats.EvictionsByTTL != 1 {
		t.Errorf("expected 1 ttl eviction, got %d", stats.EvictionsByTTL)
	}

	// A second Get on the now-removed key is a plain miss, not another
	// ttl eviction.
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected second get to still miss")
	}
	if stats := c.StatsSnapshot(); stats.EvictionsByTTL != 1 {
		t.Errorf("expected ttl evictions to stay at 1, got %d", stats.EvictionsByTTL)
	}
}

func TestPutAtCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(Config{MaxEntries: 2, TTL: time.Hour})
	v := codegraph.ValidationVerdict{Found: true, Confidence: 1.0}

	c.Put("a", v)
	c.Put("b", v)
	// Touch "a" so "b" becomes the least-recently-used entry.
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected hit on a")
	}
	c.Put("c", v)

	if _, ok := c.Get("b"); ok {
		t.Errorf("expected b to be evicted as least-recently-used")
	}
	if _, ok := c.Get("a"); !ok {
		t.Errorf("expected a to survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Errorf("expected c to be present")
	}
	stats := c.StatsSnapshot()
	if stats.EvictionsByLRU != 1 {
		t.Errorf("expected 1 lru eviction, got %d", stats.EvictionsByLRU)
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := New(Config{MaxEntries: 10, TTL: time.Minute})
	c.Put("k", codegraph.ValidationVerdict{Found: true, Confidence: 1.0})
	c.Invalidate("k")

	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected invalidated key to be absent")
	}
}

func TestMaxEntriesNonPositiveClampsToOne(t *testing.T) {
	c := New(Config{MaxEntries: 0, TTL: time.Minute})
	v := codegraph.ValidationVerdict{Found: true, Confidence: 1.0}
	c.Put("a", v)
	c.Put("b", v)

	if _, ok := c.Get("a"); ok {
		t.Errorf("expected a to be evicted once capacity clamped to 1")
	}
	if _, ok := c.Get("b"); !ok {
		t.Errorf("expected b to remain")
	}
}

func TestConcurrentGetPutNeverGoesNegative(t *testing.T) {
	c := New(Config{MaxEntries: 50, TTL: time.Minute})
	v := codegraph.ValidationVerdict{Found: true, Confidence: 1.0}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%26))
			c.Put(key, v)
			c.Get(key)
		}(i)
	}
	wg.Wait()

	stats := c.StatsSnapshot()
	if stats.Hits < 0 || stats.Misses < 0 || stats.EvictionsByTTL < 0 || stats.EvictionsByLRU < 0 {
		t.Errorf("expected non-negative counters, got %+v", stats)
	}
}
