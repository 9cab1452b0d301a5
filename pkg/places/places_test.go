package places

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wanderguide/pkg/cache"
	"wanderguide/pkg/geo"
	"wanderguide/pkg/model"
)

var (
	oldTown = geo.Point{Lat: 50.0872, Lon: 14.4210}

	clockPOI  = model.POI{ID: "clock", Name: "Astronomical Clock", Category: "monument", Lat: 50.0870, Lon: 14.4207, Summary: "Installed in 1410."}
	tynPOI    = model.POI{ID: "tyn", Name: "Týn Church", Category: "church", Lat: 50.0875, Lon: 14.4227}
	bridgePOI = model.POI{ID: "bridge", Name: "Charles Bridge", Category: "bridge", Lat: 50.0865, Lon: 14.4114}
)

type fakeLookup struct {
	mu    sync.Mutex
	calls int32
	pois  []model.POI
	err   error
	gate  chan struct{}
	last  Request
}

func (f *fakeLookup) Nearby(ctx context.Context, req Request) ([]model.POI, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return refine(f.pois, req), nil
}

type fakeEnricher struct {
	calls int32
	out   model.Enrichment
	err   error
}

func (f *fakeEnricher) Enrich(ctx context.Context, req EnrichRequest) (model.Enrichment, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.out, f.err
}

func ids(pois []model.POI) []string {
	out := make([]string, len(pois))
	for i, p := range pois {
		out[i] = p.ID
	}
	return out
}

func TestRefine(t *testing.T) {
	all := []model.POI{bridgePOI, tynPOI, clockPOI, {Name: "no id"}}

	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{"radius filter and order", Request{Center: oldTown, Radius: 200}, []string{"clock", "tyn"}},
		{"no radius keeps all", Request{Center: oldTown}, []string{"clock", "tyn", "bridge"}},
		{"limit", Request{Center: oldTown, Radius: 1000, Limit: 1}, []string{"clock"}},
		{"category filter is case-insensitive", Request{Center: oldTown, Radius: 1000, Categories: []string{"Church", "bridge"}}, []string{"tyn", "bridge"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(refine(all, tt.req)))
		})
	}
}

func TestLookupErrorWrapping(t *testing.T) {
	base := errors.New("boom")
	err := lookupError("places", base)
	assert.ErrorIs(t, err, ErrLookupFailed)
	assert.ErrorIs(t, err, base)
	assert.Same(t, err, lookupError("outer", err), "already wrapped errors pass through")
	assert.NoError(t, lookupError("x", nil))
}

func TestChainEnricher(t *testing.T) {
	failing := &fakeEnricher{err: errors.New("down")}
	nameOnly := &fakeEnricher{out: model.Enrichment{Name: "Clock", Category: "monument"}}
	full := &fakeEnricher{out: model.Enrichment{Name: "Other", Summary: "Oldest working clock.", Source: "wikipedia", Rating: 4.5}}
	never := &fakeEnricher{out: model.Enrichment{Summary: "unused"}}

	var failed []string
	chain := NewChainEnricher(func(name string) { failed = append(failed, name) },
		NamedEnricher{"a", failing}, NamedEnricher{"b", nameOnly}, NamedEnricher{"c", full}, NamedEnricher{"d", never})

	got, err := chain.Enrich(context.Background(), EnrichRequest{POI: clockPOI})
	require.NoError(t, err)
	assert.Equal(t, "Clock", got.Name, "earlier fields win")
	assert.Equal(t, "monument", got.Category)
	assert.Equal(t, "Oldest working clock.", got.Summary)
	assert.Equal(t, "wikipedia", got.Source)
	assert.InDelta(t, 4.5, got.Rating, 1e-9)
	assert.Equal(t, []string{"a"}, failed)
	assert.Zero(t, atomic.LoadInt32(&never.calls))

	empty := NewChainEnricher(nil, NamedEnricher{"a", failing}, NamedEnricher{"b", nameOnly})
	_, err = empty.Enrich(context.Background(), EnrichRequest{POI: clockPOI})
	assert.ErrorIs(t, err, ErrLookupFailed)
}

func newFakeClock() (*time.Time, func() time.Time) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return &now, func() time.Time { return now }
}

func TestCachedLookup_SharesCell(t *testing.T) {
	inner := &fakeLookup{pois: []model.POI{clockPOI, tynPOI, bridgePOI}}
	c := cache.New[string, []model.POI](cache.Options{Capacity: 8})
	l := NewCachedLookup(inner, c, DefaultResolution)
	ctx := context.Background()

	got, err := l.Nearby(ctx, Request{Center: oldTown, Radius: 200})
	require.NoError(t, err)
	assert.Equal(t, []string{"clock", "tyn"}, ids(got))

	// Same cell, same radius bucket
	got, err = l.Nearby(ctx, Request{Center: oldTown, Radius: 190})
	require.NoError(t, err)
	assert.Equal(t, []string{"clock", "tyn"}, ids(got))
	assert.EqualValues(t, 1, atomic.LoadInt32(&inner.calls))

	inner.mu.Lock()
	wide := inner.last
	inner.mu.Unlock()
	assert.Greater(t, wide.Radius, 200.0, "miss widens the radius by the cell size")
}

// edgeOfCell returns a point dist meters inside a vertex of the cell holding p,
// together with the cell center.
func edgeOfCell(t *testing.T, p geo.Point, dist float64) (user, center geo.Point) {
	t.Helper()
	cell, err := cellFor(p, DefaultResolution)
	require.NoError(t, err)
	center, err = cellCenter(cell)
	require.NoError(t, err)
	boundary, err := cell.Boundary()
	require.NoError(t, err)
	v := geo.Point{Lat: boundary[0].Lat, Lon: boundary[0].Lng}
	f := dist / geo.Distance(v, center)
	return geo.Point{Lat: v.Lat + (center.Lat-v.Lat)*f, Lon: v.Lon + (center.Lon-v.Lon)*f}, center
}

// crowd places n POIs within about 100 m north of center.
func crowd(center geo.Point, n int) []model.POI {
	out := make([]model.POI, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.POI{
			ID:   fmt.Sprintf("filler-%d", i),
			Name: "Filler",
			Lat:  center.Lat + float64(i%50)*2/111195,
			Lon:  center.Lon,
		})
	}
	return out
}

func TestCachedLookup_OffCenterInDenseCell(t *testing.T) {
	tests := []struct {
		name      string
		fillers   int
		wantCalls int32
		cached    bool
	}{
		{"dense cell is cached whole", 45, 1, true},
		{"full page falls back to the caller position", wideLimit + 10, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, center := edgeOfCell(t, oldTown, 40)
			near := model.POI{ID: "near", Name: "Corner Chapel", Lat: user.Lat + 30.0/111195, Lon: user.Lon}
			inner := &fakeLookup{pois: append(crowd(center, tt.fillers), near)}
			c := cache.New[string, []model.POI](cache.Options{Capacity: 8})
			l := NewCachedLookup(inner, c, DefaultResolution)
			req := Request{Center: user, Radius: 150, Limit: 20}

			direct, err := inner.Nearby(context.Background(), req)
			require.NoError(t, err)
			require.Equal(t, []string{"near"}, ids(direct))
			atomic.StoreInt32(&inner.calls, 0)

			got, err := l.Nearby(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, []string{"near"}, ids(got))
			assert.EqualValues(t, tt.wantCalls, atomic.LoadInt32(&inner.calls))
			assert.Equal(t, tt.cached, c.Len() == 1)
		})
	}
}

func TestCachedLookup_NegativeEntry(t *testing.T) {
	now, clock := newFakeClock()
	inner := &fakeLookup{err: errors.New("503")}
	c := cache.New[string, []model.POI](cache.Options{Capacity: 8, NegativeTTL: time.Minute, Now: clock})
	l := NewCachedLookup(inner, c, DefaultResolution)
	ctx := context.Background()
	req := Request{Center: oldTown, Radius: 150}

	_, err := l.Nearby(ctx, req)
	require.Error(t, err)

	_, err = l.Nearby(ctx, req)
	assert.ErrorIs(t, err, ErrLookupFailed)
	assert.EqualValues(t, 1, atomic.LoadInt32(&inner.calls), "failure is cached")

	inner.err = nil
	inner.pois = []model.POI{clockPOI}
	*now = now.Add(2 * time.Minute)

	got, err := l.Nearby(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"clock"}, ids(got))
	assert.EqualValues(t, 2, atomic.LoadInt32(&inner.calls))
}

func TestCachedLookup_Singleflight(t *testing.T) {
	inner := &fakeLookup{pois: []model.POI{clockPOI}, gate: make(chan struct{})}
	l := NewCachedLookup(inner, cache.New[string, []model.POI](cache.Options{}), DefaultResolution)

	var wg sync.WaitGroup
	results := make([][]model.POI, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = l.Nearby(context.Background(), Request{Center: oldTown, Radius: 100})
		}(i)
	}

	// Let every goroutine reach the shared call before releasing it
	require.Eventually(t, func() bool { return atomic.LoadInt32(&inner.calls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(inner.gate)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&inner.calls))
	for _, r := range results {
		assert.Equal(t, []string{"clock"}, ids(r))
	}
}

func TestCachedEnricher(t *testing.T) {
	now, clock := newFakeClock()
	inner := &fakeEnricher{out: model.Enrichment{Summary: "Fact."}}
	c := cache.New[string, model.Enrichment](cache.Options{Capacity: 8, PositiveTTL: 10 * time.Minute, NegativeTTL: time.Minute, Now: clock})
	e := NewCachedEnricher(inner, c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := e.Enrich(ctx, EnrichRequest{POI: clockPOI, Fields: DefaultFields})
		require.NoError(t, err)
		assert.Equal(t, "Fact.", got.Summary)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&inner.calls))

	inner.err = errors.New("down")
	_, err := e.Enrich(ctx, EnrichRequest{POI: tynPOI})
	require.Error(t, err)
	_, err = e.Enrich(ctx, EnrichRequest{POI: tynPOI})
	assert.ErrorIs(t, err, ErrLookupFailed)
	assert.EqualValues(t, 2, atomic.LoadInt32(&inner.calls))

	*now = now.Add(2 * time.Minute)
	_, _ = e.Enrich(ctx, EnrichRequest{POI: tynPOI})
	assert.EqualValues(t, 3, atomic.LoadInt32(&inner.calls), "negative entry expired")
}

func TestCachedEnricher_CancellationNotCached(t *testing.T) {
	inner := &fakeEnricher{err: context.DeadlineExceeded}
	e := NewCachedEnricher(inner, cache.New[string, model.Enrichment](cache.Options{}))

	_, _ = e.Enrich(context.Background(), EnrichRequest{POI: clockPOI})
	_, _ = e.Enrich(context.Background(), EnrichRequest{POI: clockPOI})
	assert.EqualValues(t, 2, atomic.LoadInt32(&inner.calls))
}
