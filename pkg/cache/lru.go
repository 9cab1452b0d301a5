package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	DefaultCapacity    = 256
	DefaultPositiveTTL = 30 * time.Minute
	DefaultNegativeTTL = 2 * time.Minute
)

// Options configures a Cache. Zero values fall back to the package defaults.
type Options struct {
	Capacity    int
	PositiveTTL time.Duration
	NegativeTTL time.Duration
	Now         func() time.Time
}

// Entry is a snapshot of a cached value and its bookkeeping.
type Entry[V any] struct {
	Value          V
	IsPositive     bool
	WrittenAt      time.Time
	LastAccessedAt time.Time
	HitCount       int
}

// Stats are observability counters. They do not affect cache behavior.
type Stats struct {
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
	Size        int    `json:"size"`
	Capacity    int    `json:"capacity"`
}

type item[K comparable, V any] struct {
	key K
	Entry[V]
}

// Cache is a capacity-bounded LRU cache with separate TTLs for positive and negative results.
// It is safe for concurrent use; concurrent sets of the same key are last-write-wins.
type Cache[K comparable, V any] struct {
	mu    sync.Mutex
	opts  Options
	items map[K]*list.Element
	order *list.List // front = most recently accessed

	hits, misses, evictions, expirations uint64
}

// New creates a cache.
func New[K comparable, V any](opts Options) *Cache[K, V] {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.PositiveTTL <= 0 {
		opts.PositiveTTL = DefaultPositiveTTL
	}
	if opts.NegativeTTL <= 0 {
		opts.NegativeTTL = DefaultNegativeTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache[K, V]{
		opts:  opts,
		items: make(map[K]*list.Element),
		order: list.New(),
	}
}

func (c *Cache[K, V]) ttl(isPositive bool) time.Duration {
	if isPositive {
		return c.opts.PositiveTTL
	}
	return c.opts.NegativeTTL
}

func (c *Cache[K, V]) expired(e *Entry[V], now time.Time) bool {
	return now.Sub(e.WrittenAt) >= c.ttl(e.IsPositive)
}

// Get returns the cached value. An expired entry is removed and reported as a miss.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	e, ok := c.Lookup(key)
	return e.Value, ok
}

// Lookup is Get returning the whole entry, including whether it was a positive result.
func (c *Cache[K, V]) Lookup(key K) (Entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return Entry[V]{}, false
	}
	it := el.Value.(*item[K, V])
	if c.expired(&it.Entry, now) {
		c.removeElement(el)
		c.expirations++
		c.misses++
		return Entry[V]{}, false
	}

	it.LastAccessedAt = now
	it.HitCount++
	c.order.MoveToFront(el)
	c.hits++
	return it.Entry, true
}

// Set stores a value. When the cache is full the least recently accessed entry is evicted.
func (c *Cache[K, V]) Set(key K, value V, isPositive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	if el, ok := c.items[key]; ok {
		it := el.Value.(*item[K, V])
		it.Value = value
		it.IsPositive = isPositive
		it.WrittenAt = now
		it.LastAccessedAt = now
		c.order.MoveToFront(el)
		return
	}

	for c.order.Len() >= c.opts.Capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
		c.evictions++
	}

	it := &item[K, V]{
		key: key,
		Entry: Entry[V]{
			Value:          value,
			IsPositive:     isPositive,
			WrittenAt:      now,
			LastAccessedAt: now,
		},
	}
	c.items[key] = c.order.PushFront(it)
}

// Delete removes a key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// CleanupExpired removes every expired entry and returns how many were removed.
func (c *Cache[K, V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		it := el.Value.(*item[K, V])
		if c.expired(&it.Entry, now) {
			c.removeElement(el)
			c.expirations++
			removed++
		}
		el = prev
	}
	return removed
}

// Clear drops all entries. Counters are kept.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*list.Element)
	c.order.Init()
}

// Len returns the number of stored entries, including expired ones not yet collected.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Size:        c.order.Len(),
		Capacity:    c.opts.Capacity,
	}
}

func (c *Cache[K, V]) removeElement(el *list.Element) {
	it := el.Value.(*item[K, V])
	delete(c.items, it.key)
	c.order.Remove(el)
}
