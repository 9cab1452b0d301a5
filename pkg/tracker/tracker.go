package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks usage statistics per external provider
// (places endpoint, enrichment sources, conversation channel).
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*ProviderStats
}

// ProviderStats holds metrics for a specific provider.
// Fields are accessed atomically.
type ProviderStats struct {
	CacheHits       int64 `json:"cache_hits"`
	CacheMisses     int64 `json:"cache_misses"`
	APISuccess      int64 `json:"api_success"`
	APIFailures     int64 `json:"api_failures"`
	APIZeroResult   int64 `json:"api_zero_result"`
	Fallbacks       int64 `json:"fallbacks"`
	DispatchSent    int64 `json:"dispatch_sent"`
	DispatchDropped int64 `json:"dispatch_dropped"`
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*ProviderStats),
	}
}

// getStats returns the stats object for a provider, creating it if needed.
func (t *Tracker) getStats(provider string) *ProviderStats {
	t.mu.RLock()
	s, ok := t.stats[provider]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[provider]; ok {
		return s
	}
	s = &ProviderStats{}
	t.stats[provider] = s
	return s
}

// TrackCacheHit increments the cache hit counter.
func (t *Tracker) TrackCacheHit(provider string) {
	atomic.AddInt64(&t.getStats(provider).CacheHits, 1)
}

func (t *Tracker) TrackCacheMiss(provider string) {
	atomic.AddInt64(&t.getStats(provider).CacheMisses, 1)
}

func (t *Tracker) TrackAPISuccess(provider string) {
	atomic.AddInt64(&t.getStats(provider).APISuccess, 1)
}

func (t *Tracker) TrackAPIFailure(provider string) {
	atomic.AddInt64(&t.getStats(provider).APIFailures, 1)
}

func (t *Tracker) TrackAPIZero(provider string) {
	atomic.AddInt64(&t.getStats(provider).APIZeroResult, 1)
}

// TrackFallback counts enrichments that fell back to the locally known summary.
func (t *Tracker) TrackFallback(provider string) {
	atomic.AddInt64(&t.getStats(provider).Fallbacks, 1)
}

// TrackDispatch counts a delivered or dropped contextual update.
func (t *Tracker) TrackDispatch(provider string, sent bool) {
	s := t.getStats(provider)
	if sent {
		atomic.AddInt64(&s.DispatchSent, 1)
		return
	}
	atomic.AddInt64(&s.DispatchDropped, 1)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]ProviderStats)
	for k, v := range t.stats {
		result[k] = ProviderStats{
			CacheHits:       atomic.LoadInt64(&v.CacheHits),
			CacheMisses:     atomic.LoadInt64(&v.CacheMisses),
			APISuccess:      atomic.LoadInt64(&v.APISuccess),
			APIFailures:     atomic.LoadInt64(&v.APIFailures),
			APIZeroResult:   atomic.LoadInt64(&v.APIZeroResult),
			Fallbacks:       atomic.LoadInt64(&v.Fallbacks),
			DispatchSent:    atomic.LoadInt64(&v.DispatchSent),
			DispatchDropped: atomic.LoadInt64(&v.DispatchDropped),
		}
	}
	return result
}
