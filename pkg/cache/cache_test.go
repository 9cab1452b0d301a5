package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCache_GetSet(t *testing.T) {
	clk := newFakeClock()
	c := New[string, int](Options{Capacity: 4, Now: clk.Now})

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 1, true)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Set("a", 2, true)
	v, _ = c.Get("a")
	assert.Equal(t, 2, v, "last write wins")

	e, ok := c.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, 3, e.HitCount)
	assert.True(t, e.IsPositive)

	st := c.Stats()
	assert.Equal(t, uint64(3), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
	assert.Equal(t, 1, st.Size)
}

func TestCache_TTLAsymmetry(t *testing.T) {
	clk := newFakeClock()
	c := New[string, string](Options{Now: clk.Now})

	c.Set("good", "ok", true)
	c.Set("bad", "err", false)

	clk.Advance(DefaultNegativeTTL)
	_, ok := c.Get("bad")
	assert.False(t, ok, "negative entry should expire first")
	_, ok = c.Get("good")
	assert.True(t, ok, "positive entry should still be valid")

	clk.Advance(DefaultPositiveTTL)
	_, ok = c.Get("good")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entries are removed on get")
	assert.Equal(t, uint64(2), c.Stats().Expirations)
}

func TestCache_EvictsLeastRecentlyAccessed(t *testing.T) {
	clk := newFakeClock()
	c := New[string, int](Options{Capacity: 3, Now: clk.Now})

	c.Set("a", 1, true)
	clk.Advance(time.Second)
	c.Set("b", 2, true)
	clk.Advance(time.Second)
	c.Set("c", 3, true)
	clk.Advance(time.Second)

	// Touch "a" so "b" becomes the oldest access even though "a" was inserted first.
	_, ok := c.Get("a")
	require.True(t, ok)
	clk.Advance(time.Second)

	c.Set("d", 4, true)

	assert.Equal(t, 3, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, "expected %s to survive", k)
	}
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCache_NeverExceedsCapacity(t *testing.T) {
	c := New[int, int](Options{Capacity: 10})
	for i := 0; i < 100; i++ {
		c.Set(i, i, i%2 == 0)
		assert.LessOrEqual(t, c.Len(), 10)
	}
	assert.Equal(t, uint64(90), c.Stats().Evictions)
}

func TestCache_CleanupExpired(t *testing.T) {
	clk := newFakeClock()
	c := New[string, int](Options{PositiveTTL: time.Hour, NegativeTTL: time.Minute, Now: clk.Now})

	c.Set("p1", 1, true)
	c.Set("n1", 0, false)
	c.Set("n2", 0, false)

	assert.Equal(t, 0, c.CleanupExpired())
	clk.Advance(2 * time.Minute)
	assert.Equal(t, 2, c.CleanupExpired())
	assert.Equal(t, 1, c.Len())
}

func TestCache_Clear(t *testing.T) {
	c := New[string, int](Options{})
	c.Set("a", 1, true)
	c.Set("b", 2, false)
	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("c", 3, true)
	_, ok = c.Get("c")
	assert.True(t, ok, "cache usable after clear")
}

func TestCache_Delete(t *testing.T) {
	c := New[string, int](Options{})
	c.Set("a", 1, true)
	c.Delete("a")
	c.Delete("nope")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[string, int](Options{Capacity: 16})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%20)
				c.Set(key, g, true)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}

type mapCacher struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
}

func (m *mapCacher) GetCache(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	v, ok := m.data[key]
	return v, ok
}

func (m *mapCacher) SetCache(_ context.Context, key string, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = val
	return nil
}

func TestLayered(t *testing.T) {
	ctx := context.Background()
	backing := &mapCacher{data: map[string][]byte{"persisted": []byte("disk")}}
	l := NewLayered(New[string, []byte](Options{Capacity: 8}), backing)

	val, ok := l.GetCache(ctx, "persisted")
	require.True(t, ok)
	assert.Equal(t, "disk", string(val))

	// Second read is served from memory.
	_, _ = l.GetCache(ctx, "persisted")
	assert.Equal(t, 1, backing.gets)

	require.NoError(t, l.SetCache(ctx, "new", []byte("v")))
	assert.Equal(t, "v", string(backing.data["new"]))

	_, ok = l.GetCache(ctx, "absent")
	assert.False(t, ok)

	memOnly := NewLayered(New[string, []byte](Options{}), nil)
	require.NoError(t, memOnly.SetCache(ctx, "x", []byte("y")))
	val, ok = memOnly.GetCache(ctx, "x")
	assert.True(t, ok)
	assert.Equal(t, "y", string(val))
}
