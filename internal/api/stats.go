package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"wanderguide/pkg/cache"
	"wanderguide/pkg/tracker"
)

// CacheStatter is implemented by every in-memory cache.
type CacheStatter interface {
	Stats() cache.Stats
}

// SessionCounter reports the number of active sessions.
type SessionCounter interface {
	Len() int
}

// StatsHandler serves provider counters, cache counters and process diagnostics.
type StatsHandler struct {
	tracker  *tracker.Tracker
	caches   map[string]CacheStatter
	sessions SessionCounter
	started  time.Time

	mu     sync.Mutex
	maxMem uint64
}

// NewStatsHandler creates a new StatsHandler. sessions may be nil.
func NewStatsHandler(t *tracker.Tracker, caches map[string]CacheStatter, sessions SessionCounter) *StatsHandler {
	return &StatsHandler{
		tracker:  t,
		caches:   caches,
		sessions: sessions,
		started:  time.Now(),
	}
}

type ProviderStatsDTO struct {
	CacheHits       int64 `json:"cache_hits"`
	CacheMisses     int64 `json:"cache_misses"`
	APISuccess      int64 `json:"api_success"`
	APIZeroResult   int64 `json:"api_zero"`
	APIFailures     int64 `json:"api_errors"`
	Fallbacks       int64 `json:"fallbacks"`
	DispatchSent    int64 `json:"dispatch_sent"`
	DispatchDropped int64 `json:"dispatch_dropped"`
	HitRate         int64 `json:"hit_rate"`
}

type CacheStatsDTO struct {
	cache.Stats
	HitRate int64 `json:"hit_rate"`
}

type Diagnostics struct {
	MemoryMB    uint64  `json:"memory_mb"`
	MemoryMaxMB uint64  `json:"memory_max_mb"`
	Goroutines  int     `json:"goroutines"`
	UptimeSec   float64 `json:"uptime_sec"`
}

type StatsResponse struct {
	Diagnostics Diagnostics                 `json:"diagnostics"`
	Sessions    int                         `json:"sessions"`
	Providers   map[string]ProviderStatsDTO `json:"providers"`
	Caches      map[string]CacheStatsDTO    `json:"caches"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Diagnostics: h.gatherDiagnostics(),
		Providers:   make(map[string]ProviderStatsDTO),
		Caches:      make(map[string]CacheStatsDTO, len(h.caches)),
	}
	if h.sessions != nil {
		resp.Sessions = h.sessions.Len()
	}

	if h.tracker != nil {
		for provider, stats := range h.tracker.Snapshot() {
			resp.Providers[provider] = ProviderStatsDTO{
				CacheHits:       stats.CacheHits,
				CacheMisses:     stats.CacheMisses,
				APISuccess:      stats.APISuccess,
				APIZeroResult:   stats.APIZeroResult,
				APIFailures:     stats.APIFailures,
				Fallbacks:       stats.Fallbacks,
				DispatchSent:    stats.DispatchSent,
				DispatchDropped: stats.DispatchDropped,
				HitRate:         hitRate(stats.CacheHits, stats.CacheMisses),
			}
		}
	}

	for name, c := range h.caches {
		s := c.Stats()
		resp.Caches[name] = CacheStatsDTO{Stats: s, HitRate: hitRate(int64(s.Hits), int64(s.Misses))}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *StatsHandler) gatherDiagnostics() Diagnostics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	h.mu.Lock()
	if ms.Sys > h.maxMem {
		h.maxMem = ms.Sys
	}
	maxMem := h.maxMem
	h.mu.Unlock()

	return Diagnostics{
		MemoryMB:    bToMb(ms.Sys),
		MemoryMaxMB: bToMb(maxMem),
		Goroutines:  runtime.NumGoroutine(),
		UptimeSec:   time.Since(h.started).Seconds(),
	}
}

func hitRate(hits, misses int64) int64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return (hits * 100) / total
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
