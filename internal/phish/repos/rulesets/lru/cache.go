package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/repos/rulesets"
)

// matchCache is an LRU-backed implementation of rulesets.MatchCache.
// It tracks basic metrics: hits, misses, and evictions.
type matchCache struct {
	lru       *lru.Cache[string, rulesets.Result]
	hits      uint64
	misses    uint64
	evictions uint64
}

// disabledCache is a no-op MatchCache used when size <= 0.
type disabledCache struct{}

// New creates a new MatchCache with the given capacity. If size <= 0, a
// disabled no-op cache is returned that always misses and tracks no metrics.
func New(size int) (rulesets.MatchCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	var mc matchCache
	// Use NewWithEvict to observe evictions, including Purge-induced ones.
	cache, err := lru.NewWithEvict(size, func(_ string, _ rulesets.Result) {
		atomic.AddUint64(&mc.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	mc.lru = cache
	return &mc, nil
}

// Get looks up a result by key. When found, increments hits; otherwise increments misses.
func (c *matchCache) Get(key string) (rulesets.Result, bool) {
	if val, ok := c.lru.Get(key); ok {
		atomic.AddUint64(&c.hits, 1)
		return val, true
	}
	atomic.AddUint64(&c.misses, 1)
	var zero rulesets.Result
	return zero, false
}

// Put stores a result by key.
func (c *matchCache) Put(key string, r rulesets.Result) {
	c.lru.Add(key, r)
}

// Len returns the number of entries in the cache.
func (c *matchCache) Len() int { return c.lru.Len() }

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *matchCache) Purge() { c.lru.Purge() }

// Stats returns cumulative hit/miss/eviction counters.
func (c *matchCache) Stats() (hits, misses, evictions uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses), atomic.LoadUint64(&c.evictions)
}

// disabledCache implementation

func (d *disabledCache) Get(string) (rulesets.Result, bool) {
	var zero rulesets.Result
	return zero, false
}

func (d *disabledCache) Put(string, rulesets.Result) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() (uint64, uint64, uint64) { return 0, 0, 0 }

var _ rulesets.MatchCache = (*matchCache)(nil)
var _ rulesets.MatchCache = (*disabledCache)(nil)
