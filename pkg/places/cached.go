package places

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"golang.org/x/sync/singleflight"

	"wanderguide/pkg/cache"
	"wanderguide/pkg/model"
)

// radiusBucket rounds radii up so nearby requests share cache entries.
const radiusBucket = 50.0

// wideLimit is the page size asked for on a cell miss. It matches the largest
// page the Wikipedia geosearch returns. A full page may be truncated and is
// never cached.
const wideLimit = 500

// errCachedFailure is returned while a recent failure is still cached.
var errCachedFailure = errors.New("recent failure cached")

// CachedLookup caches nearby results per h3 cell. Each miss asks the wrapped lookup
// for everything around the cell center, widened by the cell radius, so the result
// is valid for any point inside the cell. The caller's limit is applied only after
// refining around the caller's own position. Concurrent misses for a cell share one call.
type CachedLookup struct {
	inner  Lookup
	cache  *cache.Cache[string, []model.POI]
	res    int
	group  singleflight.Group
	logger *slog.Logger
}

// NewCachedLookup wraps inner. res is the h3 resolution of the cache cells.
func NewCachedLookup(inner Lookup, c *cache.Cache[string, []model.POI], res int) *CachedLookup {
	if res < 0 || res > 15 {
		res = DefaultResolution
	}
	return &CachedLookup{
		inner:  inner,
		cache:  c,
		res:    res,
		logger: slog.With("component", "places_cache"),
	}
}

// Cache exposes the underlying cache for stats and maintenance.
func (l *CachedLookup) Cache() *cache.Cache[string, []model.POI] { return l.cache }

// Nearby implements Lookup.
func (l *CachedLookup) Nearby(ctx context.Context, req Request) ([]model.POI, error) {
	cell, err := cellFor(req.Center, l.res)
	if err != nil {
		l.logger.Debug("Bypassing cache", "error", err)
		return l.inner.Nearby(ctx, req)
	}
	center, err := cellCenter(cell)
	if err != nil {
		return l.inner.Nearby(ctx, req)
	}
	cellR, err := cellRadius(cell)
	if err != nil {
		return l.inner.Nearby(ctx, req)
	}

	radius := math.Ceil(req.Radius/radiusBucket) * radiusBucket
	cats := slices.Clone(req.Categories)
	slices.Sort(cats)
	key := fmt.Sprintf("%s|%.0f|%s", cell, radius, strings.Join(cats, ","))

	if entry, ok := l.cache.Lookup(key); ok {
		if !entry.IsPositive {
			return nil, lookupError("places_cache", errCachedFailure)
		}
		return refine(entry.Value, req), nil
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		wide := Request{
			Center:     center,
			Radius:     radius + cellR,
			Categories: cats,
			Limit:      wideLimit,
		}
		pois, err := l.inner.Nearby(ctx, wide)
		if err != nil {
			if !isCancellation(err) {
				l.cache.Set(key, nil, false)
			}
			return nil, err
		}
		if len(pois) >= wideLimit {
			return cellResult{truncated: true}, nil
		}
		l.cache.Set(key, pois, true)
		return cellResult{pois: pois}, nil
	})
	if err != nil {
		return nil, err
	}
	res := v.(cellResult)
	if res.truncated {
		l.logger.Debug("Cell result truncated, querying around caller", "cell", cell.String())
		return l.inner.Nearby(ctx, req)
	}
	return refine(res.pois, req), nil
}

// cellResult is the shared outcome of one cell miss.
type cellResult struct {
	pois      []model.POI
	truncated bool
}

// CachedEnricher caches enrichment per POI and field set, including failures.
type CachedEnricher struct {
	inner Enricher
	cache *cache.Cache[string, model.Enrichment]
	group singleflight.Group
}

// NewCachedEnricher wraps inner.
func NewCachedEnricher(inner Enricher, c *cache.Cache[string, model.Enrichment]) *CachedEnricher {
	return &CachedEnricher{inner: inner, cache: c}
}

// Cache exposes the underlying cache for stats and maintenance.
func (e *CachedEnricher) Cache() *cache.Cache[string, model.Enrichment] { return e.cache }

// Enrich implements Enricher.
func (e *CachedEnricher) Enrich(ctx context.Context, req EnrichRequest) (model.Enrichment, error) {
	fields := make([]string, 0, len(req.Fields))
	for _, f := range req.Fields {
		fields = append(fields, string(f))
	}
	slices.Sort(fields)
	key := req.POI.ID + "|" + strings.Join(fields, ",")

	if entry, ok := e.cache.Lookup(key); ok {
		if !entry.IsPositive {
			return model.Enrichment{}, lookupError("enrichment_cache", errCachedFailure)
		}
		return entry.Value, nil
	}

	v, err, _ := e.group.Do(key, func() (any, error) {
		en, err := e.inner.Enrich(ctx, req)
		if err != nil {
			if !isCancellation(err) {
				e.cache.Set(key, model.Enrichment{}, false)
			}
			return nil, err
		}
		e.cache.Set(key, en, true)
		return en, nil
	})
	if err != nil {
		return model.Enrichment{}, err
	}
	return v.(model.Enrichment), nil
}

// isCancellation reports errors that say nothing about the provider itself.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
