package core

import (
	"context"
	"log/slog"
	"time"

	"wanderguide/pkg/model"
)

// ExpiryCleaner drops expired entries from an in-memory cache.
type ExpiryCleaner interface {
	CleanupExpired() int
}

// CachePruner removes persisted HTTP responses older than a bound.
type CachePruner interface {
	PruneCache(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Prefetcher warms the places lookup around a position.
type Prefetcher interface {
	Prefetch(ctx context.Context, pos model.Position) (int, error)
}

// NewEvictionJob periodically clears expired cache entries and prunes the
// persisted HTTP cache. pruner may be nil; httpTTL <= 0 disables pruning.
func NewEvictionJob(interval, httpTTL time.Duration, pruner CachePruner, caches ...ExpiryCleaner) *TimeJob {
	return NewTimeJob("Eviction", interval, func(ctx context.Context) {
		start := time.Now()
		evicted := 0
		for _, c := range caches {
			evicted += c.CleanupExpired()
		}

		var pruned int64
		if pruner != nil && httpTTL > 0 {
			n, err := pruner.PruneCache(ctx, httpTTL)
			if err != nil {
				slog.Warn("Eviction: failed to prune HTTP cache", "error", err)
			}
			pruned = n
		}

		if evicted > 0 || pruned > 0 {
			slog.Debug("Eviction Job Completed",
				"evicted_entries", evicted,
				"pruned_responses", pruned,
				"duration", time.Since(start),
			)
		}
	})
}

// NewPrefetchJob warms the places cache every thresholdMeters of travel.
func NewPrefetchJob(thresholdMeters float64, p Prefetcher) *DistanceJob {
	return NewDistanceJob("Prefetch", thresholdMeters, func(ctx context.Context, pos model.Position) {
		n, err := p.Prefetch(ctx, pos)
		if err != nil {
			slog.Debug("Prefetch: lookup failed", "error", err)
			return
		}
		slog.Debug("Prefetch: places cache warmed", "pois", n, "lat", pos.Lat, "lon", pos.Lon)
	})
}
