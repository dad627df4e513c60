// Package cache provides a generic single-flight cache with idle expiry and
// a bound on the number of entries.
//
// At most one computation runs per key at any time. Callers that arrive
// while a computation is in flight wait for it and observe its outcome.
// Successful results are stored; failures are handed to every waiter and
// never stored, so the next caller starts a fresh computation.
package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultIdleTTL is how long an entry survives without being read.
const DefaultIdleTTL = 30 * time.Minute

// Options configures a Cache.
type Options struct {
	// IdleTTL evicts entries not accessed for this long. Zero means
	// DefaultIdleTTL; a negative value disables idle expiry.
	IdleTTL time.Duration

	// MaxEntries bounds the cache; the least recently used entry is evicted
	// first. Zero means unbounded.
	MaxEntries int

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Outcome describes how GetOrCompute produced its value.
type Outcome string

const (
	// Hit means the value was already stored.
	Hit Outcome = "hit"

	// Miss means this caller ran the computation.
	Miss Outcome = "miss"

	// Shared means this caller waited on a computation started by another.
	Shared Outcome = "shared"
)

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Shared    int64 `json:"shared"`
	Evictions int64 `json:"evictions"`
}

// Cache is a keyed single-flight cache. The zero value is not usable; use New.
type Cache[V any] struct {
	idleTTL    time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is most recently used

	group singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	shared    atomic.Int64
	evictions atomic.Int64
}

type entry[V any] struct {
	key        string
	value      V
	lastAccess time.Time
}

// New creates an empty cache.
func New[V any](opts Options) *Cache[V] {
	ttl := opts.IdleTTL
	if ttl == 0 {
		ttl = DefaultIdleTTL
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &Cache[V]{
		idleTTL:    ttl,
		maxEntries: opts.MaxEntries,
		now:        now,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns the stored value for key and refreshes its idle timer.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache[V]) getLocked(key string) (V, bool) {
	var zero V

	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}

	e := el.Value.(*entry[V])
	now := c.now()
	if c.expired(e, now) {
		c.removeLocked(el)
		return zero, false
	}

	e.lastAccess = now
	c.order.MoveToFront(el)
	return e.value, true
}

// GetOrCompute returns the cached value for key, computing and storing it on
// a miss. Only the caller that runs compute observes Miss; callers that join
// an in-flight computation observe Shared.
//
// compute receives a context detached from the caller's cancellation, so a
// computation that has started always runs to completion and every waiter
// sees the same result.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (V, error)) (value V, outcome Outcome, err error) {
	if v, ok := c.Get(key); ok {
		c.hits.Add(1)
		return v, Hit, nil
	}

	detached := context.WithoutCancel(ctx)
	outcome = Shared
	result, err, _ := c.group.Do(key, func() (any, error) {
		// A computation for key may have finished between Get and Do.
		if v, ok := c.Get(key); ok {
			outcome = Hit
			return v, nil
		}

		outcome = Miss
		v, err := compute(detached)
		if err != nil {
			return nil, err
		}
		c.Put(key, v)
		return v, nil
	})

	switch outcome {
	case Hit:
		c.hits.Add(1)
	case Miss:
		c.misses.Add(1)
	default:
		c.shared.Add(1)
	}

	if err != nil {
		var zero V
		return zero, outcome, err
	}

	v, _ := result.(V)
	return v, outcome, nil
}

// Put stores value under key, evicting expired and overflow entries.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.lastAccess = now
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&entry[V]{key: key, value: value, lastAccess: now})
	c.evictLocked(now)
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// Purge removes every entry. In-flight computations still store their result.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// EvictExpired removes every entry whose idle timer has elapsed and returns
// how many were removed.
func (c *Cache[V]) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.order.Len()
	c.evictLocked(c.now())
	return before - c.order.Len()
}

// Len returns the number of stored entries, including expired entries not
// yet evicted.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of cache activity.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Shared:    c.shared.Load(),
		Evictions: c.evictions.Load(),
	}
}

// evictLocked drops expired entries from the back of the recency list, then
// least recently used entries while over the bound. Recency order equals
// last-access order, so expired entries are always at the back.
func (c *Cache[V]) evictLocked(now time.Time) {
	for el := c.order.Back(); el != nil; el = c.order.Back() {
		if !c.expired(el.Value.(*entry[V]), now) {
			break
		}
		c.removeLocked(el)
	}

	for c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		c.removeLocked(c.order.Back())
	}
}

func (c *Cache[V]) expired(e *entry[V], now time.Time) bool {
	return c.idleTTL > 0 && now.Sub(e.lastAccess) >= c.idleTTL
}

func (c *Cache[V]) removeLocked(el *list.Element) {
	e := c.order.Remove(el).(*entry[V])
	delete(c.entries, e.key)
	c.evictions.Add(1)
}
