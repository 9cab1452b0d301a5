package tracker

import (
	"sync"
	"testing"
)

func TestTracker(t *testing.T) {
	tr := New()
	provider := "test.provider"

	// Test Initial State
	stats := tr.Snapshot()
	if len(stats) != 0 {
		t.Errorf("Expected empty stats, got %d", len(stats))
	}

	// Test Tracking
	tr.TrackCacheHit(provider)
	tr.TrackCacheMiss(provider)
	tr.TrackAPISuccess(provider)
	tr.TrackAPIFailure(provider)
	tr.TrackAPIZero(provider)
	tr.TrackFallback(provider)
	tr.TrackDispatch(provider, true)
	tr.TrackDispatch(provider, false)
	tr.TrackDispatch(provider, false)

	// Verify Snapshot
	stats = tr.Snapshot()
	pStats, ok := stats[provider]
	if !ok {
		t.Fatalf("Expected stats for provider %s", provider)
	}

	if pStats.CacheHits != 1 {
		t.Errorf("Expected 1 CacheHit, got %d", pStats.CacheHits)
	}
	if pStats.CacheMisses != 1 {
		t.Errorf("Expected 1 CacheMiss, got %d", pStats.CacheMisses)
	}
	if pStats.APISuccess != 1 {
		t.Errorf("Expected 1 APISuccess, got %d", pStats.APISuccess)
	}
	if pStats.APIFailures != 1 {
		t.Errorf("Expected 1 APIFailure, got %d", pStats.APIFailures)
	}
	if pStats.APIZeroResult != 1 {
		t.Errorf("Expected 1 APIZeroResult, got %d", pStats.APIZeroResult)
	}
	if pStats.Fallbacks != 1 {
		t.Errorf("Expected 1 Fallback, got %d", pStats.Fallbacks)
	}
	if pStats.DispatchSent != 1 || pStats.DispatchDropped != 2 {
		t.Errorf("Expected 1 sent / 2 dropped, got %d / %d", pStats.DispatchSent, pStats.DispatchDropped)
	}
}

func TestTrackerConcurrent(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.TrackAPISuccess("places")
			}
		}()
	}
	wg.Wait()

	if got := tr.Snapshot()["places"].APISuccess; got != 1000 {
		t.Errorf("Expected 1000 successes, got %d", got)
	}
}
