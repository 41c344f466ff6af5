// Package cache keeps recently computed regional series in memory.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/dwd-climate-etl/internal/observability"
	"github.com/couchcryptid/dwd-climate-etl/internal/pipeline"
)

// runTimeout bounds a shared run once it is detached from its first caller.
const runTimeout = 30 * time.Minute

// Runner computes the series of a region. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, region string, opts pipeline.RunOptions) (pipeline.Result, error)
}

// SeriesCache wraps a Runner with an LRU cache whose entries expire after a TTL.
// Concurrent lookups of the same uncached region share a single run.
type SeriesCache struct {
	inner   Runner
	cache   *lruCache
	group   singleflight.Group
	metrics *observability.Metrics
}

// New creates a cache decorator around runner holding up to maxEntries regions.
func New(runner Runner, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *SeriesCache {
	return &SeriesCache{
		inner:   runner,
		cache:   newLRUCache(maxEntries, ttl, clock),
		metrics: metrics,
	}
}

// Get returns the cached result for region, computing it quietly on a miss.
// Failed and empty runs are not cached so they are retried on the next call.
// Cancelling ctx abandons the wait but not the run.
func (c *SeriesCache) Get(ctx context.Context, region string) (pipeline.Result, error) {
	if result, ok := c.cache.get(region); ok {
		c.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return result, nil
	}
	c.metrics.CacheLookups.WithLabelValues("miss").Inc()

	// The shared run outlives any single waiter; a caller that gives up only
	// stops waiting.
	ch := c.group.DoChan(region, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), runTimeout)
		defer cancel()
		result, err := c.inner.Run(runCtx, region, pipeline.RunOptions{Quiet: true})
		if err != nil {
			return pipeline.Result{}, err
		}
		c.Put(result)
		return result, nil
	})
	select {
	case <-ctx.Done():
		return pipeline.Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return pipeline.Result{}, res.Err
		}
		return res.Val.(pipeline.Result), nil
	}
}

// Put stores result under its region, replacing any previous entry.
func (c *SeriesCache) Put(result pipeline.Result) {
	if len(result.Series) == 0 {
		return
	}
	c.cache.put(result.Region, result)
}

// Len returns the number of live entries.
func (c *SeriesCache) Len() int {
	return c.cache.len()
}

type lruCache struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock

	mu      sync.Mutex
	entries map[string]*entry
	head    *entry // most recently used
	tail    *entry // least recently used
}

type entry struct {
	key       string
	value     pipeline.Result
	expiresAt time.Time
	prev      *entry
	next      *entry
}

func newLRUCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (pipeline.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return pipeline.Result{}, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.remove(e)
		return pipeline.Result{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value pipeline.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	n := 0
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
