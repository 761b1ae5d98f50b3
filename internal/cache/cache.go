// Package cache wraps a fact source with a least-recently-used result cache.
//
// Results are cached whole, keyed by the canonical selector. Capacity is
// counted in facts: an empty result weighs one so that misses on absent
// facts are bounded too. When adding a result would exceed the capacity,
// whole results are evicted oldest first. A result heavier than the whole
// capacity is passed through uncached.
//
// Concurrent misses for the same selector share one call to the source.
// Errors are never cached.
package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/deduce/internal/engine"
	"github.com/roach88/deduce/internal/ir"
)

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits      uint64 // served from the cache
	Misses    uint64 // fetched from the source
	Coalesced uint64 // waited on another caller's fetch
	Evictions uint64 // results dropped to make room
	Entries   int    // cached results
	Facts     int    // cached weight
}

// Cache is an engine.Querier that caches another Querier's results.
type Cache struct {
	source   engine.Querier
	capacity int

	mu     sync.Mutex
	lru    *simplelru.LRU
	weight int
	stats  Stats

	group   singleflight.Group
	metrics *metrics
}

var _ engine.Querier = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithRegisterer registers the cache's counters with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Cache) {
		c.metrics.register(reg)
	}
}

// New wraps source with a cache holding up to capacity facts.
func New(source engine.Querier, capacity int, opts ...Option) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	// Every entry weighs at least one, so the entry count never reaches the
	// LRU's own bound and eviction stays under our control.
	l, err := simplelru.NewLRU(capacity+1, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid lru configuration: %w", err)
	}
	c := &Cache{
		source:   source,
		capacity: capacity,
		lru:      l,
		metrics:  newMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Select implements engine.Querier.
func (c *Cache) Select(ctx context.Context, sel ir.Selector) ([]ir.Datum, error) {
	key := sel.Key()
	if facts, ok := c.get(key); ok {
		return facts, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		facts, err := c.source.Select(ctx, sel)
		if err != nil {
			return nil, err
		}
		c.add(key, facts)
		return facts, nil
	})

	c.mu.Lock()
	if shared {
		c.stats.Coalesced++
	}
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]ir.Datum)), nil
}

func (c *Cache) get(key string) ([]ir.Datum, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	c.stats.Hits++
	c.metrics.hits.Inc()
	return slices.Clone(v.([]ir.Datum)), true
}

func (c *Cache) add(key string, facts []ir.Datum) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Misses++
	c.metrics.misses.Inc()

	w := weight(facts)
	if w > c.capacity {
		return
	}
	if old, ok := c.lru.Peek(key); ok {
		c.weight -= weight(old.([]ir.Datum))
		c.lru.Remove(key)
	}
	for c.weight+w > c.capacity {
		_, old, ok := c.lru.RemoveOldest()
		if !ok {
			break
		}
		c.weight -= weight(old.([]ir.Datum))
		c.stats.Evictions++
		c.metrics.evictions.Inc()
	}
	c.lru.Add(key, facts)
	c.weight += w
	c.metrics.facts.Set(float64(c.weight))
}

// Stats returns a snapshot of cache activity.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = c.lru.Len()
	s.Facts = c.weight
	return s
}

// Purge drops every cached result. Counters are kept.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	c.weight = 0
	c.metrics.facts.Set(0)
}

func weight(facts []ir.Datum) int {
	return max(1, len(facts))
}
