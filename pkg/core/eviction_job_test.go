package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"wanderguide/pkg/cache"
	"wanderguide/pkg/model"
)

type mockPruner struct {
	olderThan time.Duration
	calls     int
	result    int64
	err       error
}

func (m *mockPruner) PruneCache(_ context.Context, olderThan time.Duration) (int64, error) {
	m.calls++
	m.olderThan = olderThan
	return m.result, m.err
}

type mockPrefetcher struct {
	positions []model.Position
	err       error
}

func (m *mockPrefetcher) Prefetch(_ context.Context, pos model.Position) (int, error) {
	m.positions = append(m.positions, pos)
	return 3, m.err
}

func TestEvictionJob(t *testing.T) {
	clock := &fakeClock{now: t0}
	c := cache.New[string, int](cache.Options{Capacity: 4, PositiveTTL: time.Minute, NegativeTTL: time.Minute, Now: clock.Now})
	c.Set("a", 1, true)
	c.Set("b", 2, false)

	tests := []struct {
		name       string
		httpTTL    time.Duration
		pruner     *mockPruner
		wantPrunes int
	}{
		{"Prunes persisted responses", 7 * 24 * time.Hour, &mockPruner{result: 2}, 1},
		{"Zero TTL disables pruning", 0, &mockPruner{}, 0},
		{"Prune error is logged only", time.Hour, &mockPruner{err: errors.New("locked")}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewEvictionJob(time.Minute, tt.httpTTL, tt.pruner, c)
			assert.Equal(t, "Eviction", job.Name())
			assert.True(t, job.ShouldFire(model.Position{}, t0))

			job.Run(context.Background(), model.Position{}, t0)
			assert.Equal(t, tt.wantPrunes, tt.pruner.calls)
			if tt.wantPrunes > 0 {
				assert.Equal(t, tt.httpTTL, tt.pruner.olderThan)
			}
			assert.False(t, job.ShouldFire(model.Position{}, t0.Add(30*time.Second)))
		})
	}

	clock.Advance(2 * time.Minute)
	job := NewEvictionJob(time.Minute, 0, nil, c)
	job.Run(context.Background(), model.Position{}, clock.Now())
	assert.Zero(t, c.Len(), "expired entries removed")
}

func TestPrefetchJob(t *testing.T) {
	p := &mockPrefetcher{}
	job := NewPrefetchJob(500, p)

	start := at(0, 0)
	near := at(90, 200)
	far := at(90, 700)

	for _, pos := range []model.Position{start, near, far} {
		if job.ShouldFire(pos, t0) {
			job.Run(context.Background(), pos, t0)
		}
	}
	assert.Equal(t, []model.Position{start, far}, p.positions)
}
