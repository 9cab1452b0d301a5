package cache

import (
	"context"
)

// Cacher defines the byte-oriented caching interface used by HTTP clients.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// Layered keeps hot entries in an in-memory LRU in front of a persistent Cacher.
// The backing store may be nil, in which case only memory is used.
type Layered struct {
	mem     *Cache[string, []byte]
	backing Cacher
}

// NewLayered creates a layered cache.
func NewLayered(mem *Cache[string, []byte], backing Cacher) *Layered {
	return &Layered{mem: mem, backing: backing}
}

func (c *Layered) GetCache(ctx context.Context, key string) ([]byte, bool) {
	if val, ok := c.mem.Get(key); ok {
		return val, true
	}
	if c.backing == nil {
		return nil, false
	}
	val, ok := c.backing.GetCache(ctx, key)
	if ok {
		c.mem.Set(key, val, true)
	}
	return val, ok
}

func (c *Layered) SetCache(ctx context.Context, key string, val []byte) error {
	c.mem.Set(key, val, true)
	if c.backing == nil {
		return nil
	}
	return c.backing.SetCache(ctx, key, val)
}

// Memory exposes the in-memory layer for maintenance and stats.
func (c *Layered) Memory() *Cache[string, []byte] {
	return c.mem
}
