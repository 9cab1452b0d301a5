package places

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wanderguide/pkg/db"
	"wanderguide/pkg/model"
	"wanderguide/pkg/request"
	"wanderguide/pkg/store"
	"wanderguide/pkg/tracker"
	"wanderguide/pkg/wikipedia"
)

func newRequestClient(t *testing.T) *request.Client {
	t.Helper()
	rc := request.New(nil, tracker.New(), request.Options{MaxAttempts: 1})
	t.Cleanup(rc.Close)
	return rc
}

func TestHTTPLookup(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		switch r.URL.Path {
		case "/nearby":
			q := r.URL.Query()
			assert.Equal(t, "50.087200", q.Get("lat"))
			assert.Equal(t, "200", q.Get("radius"))
			assert.Equal(t, "church,monument", q.Get("categories"))
			_, _ = w.Write([]byte(`{"results":[
				{"id":"tyn","name":"Týn Church","category":"church","lat":50.0875,"lon":14.4227},
				{"id":"clock","name":"Astronomical Clock","category":"monument","lat":50.0870,"lon":14.4207,"rating":4.6}
			]}`))
		case "/details":
			assert.Equal(t, "clock", r.URL.Query().Get("id"))
			assert.Equal(t, "summary,rating", r.URL.Query().Get("fields"))
			_, _ = w.Write([]byte(`{"result":{"name":"Prague Orloj","category":"monument","summary":" Installed in 1410. ","rating":4.6}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	rc := newRequestClient(t)
	l := NewHTTPLookup(rc, ts.URL+"/", "secret")

	got, err := l.Nearby(context.Background(), Request{Center: oldTown, Radius: 200, Categories: []string{"church", "monument"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"clock", "tyn"}, ids(got), "re-sorted by distance")
	assert.Equal(t, "places", got[0].Source)

	e := NewHTTPEnricher(rc, ts.URL, "secret")
	en, err := e.Enrich(context.Background(), EnrichRequest{POI: clockPOI, Fields: []Field{FieldSummary, FieldRating}})
	require.NoError(t, err)
	assert.Equal(t, "Installed in 1410.", en.Summary)
	assert.Equal(t, "Prague Orloj", en.Name)
}

func TestHTTPLookup_Errors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/nearby" {
			_, _ = w.Write([]byte(`not json`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	rc := newRequestClient(t)
	_, err := NewHTTPLookup(rc, ts.URL, "").Nearby(context.Background(), Request{Center: oldTown, Radius: 100})
	assert.ErrorIs(t, err, ErrLookupFailed)

	_, err = NewHTTPEnricher(rc, ts.URL, "").Enrich(context.Background(), EnrichRequest{POI: clockPOI})
	assert.ErrorIs(t, err, ErrLookupFailed)
}

type fakeWiki struct {
	pages []wikipedia.GeoPage
	intro *wikipedia.Intro
	err   error
}

func (f *fakeWiki) GeoSearch(ctx context.Context, lat, lon, radius float64, limit int, lang string) ([]wikipedia.GeoPage, error) {
	return f.pages, f.err
}

func (f *fakeWiki) GetIntro(ctx context.Context, title, lang, cacheKey string) (*wikipedia.Intro, error) {
	return f.intro, f.err
}

func TestWikipediaLookup(t *testing.T) {
	wp := &fakeWiki{pages: []wikipedia.GeoPage{
		{PageID: 7, Title: "Týn Church", Lat: 50.0875, Lon: 14.4227},
		{PageID: 3, Title: "Old Town Hall", Lat: 50.0871, Lon: 14.4209},
	}}
	got, err := NewWikipediaLookup(wp, "en").Nearby(context.Background(),
		Request{Center: oldTown, Radius: 500, Categories: []string{"museum"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"wp:3", "wp:7"}, ids(got), "categories do not filter geosearch hits")
	assert.Equal(t, "wikipedia", got[0].Source)

	wp.err = errors.New("offline")
	_, err = NewWikipediaLookup(wp, "en").Nearby(context.Background(), Request{Center: oldTown, Radius: 500})
	assert.ErrorIs(t, err, ErrLookupFailed)
}

func TestWikipediaEnricher(t *testing.T) {
	wp := &fakeWiki{intro: &wikipedia.Intro{
		Title:       "Týn Church",
		HTML:        `<p class="mw-empty-elt"></p><p>The <b>Church of Our Lady before Týn</b> is a Gothic church. It dominates the Old Town Square.</p>`,
		Description: "Church in Prague",
	}}
	en, err := NewWikipediaEnricher(wp, "en").Enrich(context.Background(), EnrichRequest{POI: model.POI{ID: "wp:7", Name: "Týn Church", Category: "landmark"}})
	require.NoError(t, err)
	assert.Equal(t, "The Church of Our Lady before Týn is a Gothic church.", en.Summary)
	assert.Equal(t, "church in prague", en.Category)
	assert.Equal(t, "wikipedia", en.Source)

	_, err = NewWikipediaEnricher(wp, "en").Enrich(context.Background(), EnrichRequest{POI: model.POI{ID: "x"}})
	assert.ErrorIs(t, err, ErrLookupFailed)
}

type fakeGenerator struct {
	prompt string
	out    string
	err    error
}

func (f *fakeGenerator) GenerateText(ctx context.Context, name, prompt string) (string, error) {
	f.prompt = prompt
	return f.out, f.err
}

func TestLLMEnricher(t *testing.T) {
	gen := &fakeGenerator{out: "\"The clock was first installed in 1410. It is the oldest still working.\""}
	e := NewLLMEnricher(gen, "fact", "")

	en, err := e.Enrich(context.Background(), EnrichRequest{POI: clockPOI})
	require.NoError(t, err)
	assert.Equal(t, "The clock was first installed in 1410.", en.Summary)
	assert.Equal(t, "llm", en.Source)
	assert.Contains(t, gen.prompt, "Astronomical Clock")
	assert.Contains(t, gen.prompt, "<start of source text>")

	gen.out = "   "
	_, err = e.Enrich(context.Background(), EnrichRequest{POI: tynPOI})
	assert.ErrorIs(t, err, ErrLookupFailed)

	gen.err = errors.New("quota")
	_, err = e.Enrich(context.Background(), EnrichRequest{POI: tynPOI})
	assert.ErrorIs(t, err, ErrLookupFailed)
}

const landmarksGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"Point","coordinates":[14.4207,50.0870]},"properties":{"id":"clock","name":"Astronomical Clock","category":"monument","summary":"Installed in 1410."}},
 {"type":"Feature","geometry":{"type":"Point","coordinates":[14.4227,50.0875]},"properties":{"id":"tyn","name":"Týn Church","category":"church"}},
 {"type":"Feature","geometry":{"type":"Point","coordinates":[14.4114,50.0865]},"properties":{"id":"bridge","name":"Charles Bridge","category":"bridge"}},
 {"type":"Feature","geometry":{"type":"Point","coordinates":[16.3738,48.2082]},"properties":{"id":"vienna","name":"Vienna","category":"city"}}
]}`

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "landmarks.geojson")
	require.NoError(t, os.WriteFile(path, []byte(landmarksGeoJSON), 0o644))

	d, err := db.Init(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	st := store.NewSQLiteStore(d)
	defer st.Close()

	c := NewCatalog(DefaultResolution, st)
	n, err := c.LoadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := c.Nearby(ctx, Request{Center: oldTown, Radius: 200})
	require.NoError(t, err)
	assert.Equal(t, []string{"clock", "tyn"}, ids(got))

	got, err = c.Nearby(ctx, Request{Center: oldTown, Radius: 1000, Categories: []string{"bridge"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"bridge"}, ids(got))

	// Wider than the ring cap falls back to a full scan
	got, err = c.Nearby(ctx, Request{Center: oldTown, Radius: 400000})
	require.NoError(t, err)
	assert.Equal(t, []string{"clock", "tyn", "bridge", "vienna"}, ids(got))

	en, err := c.Enrich(ctx, EnrichRequest{POI: model.POI{ID: "clock"}})
	require.NoError(t, err)
	assert.Equal(t, "Installed in 1410.", en.Summary)
	assert.Equal(t, "catalog", en.Source)

	_, err = c.Enrich(ctx, EnrichRequest{POI: model.POI{ID: "tyn"}})
	assert.ErrorIs(t, err, ErrLookupFailed, "no local summary")

	// A fresh catalog restores from the store
	restored := NewCatalog(DefaultResolution, st)
	n, err = restored.LoadStore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	p, ok := restored.Get("tyn")
	require.True(t, ok)
	assert.Equal(t, "Týn Church", p.Name)

	fc := restored.FeatureCollection()
	assert.Len(t, fc.Features, 4)
}

func TestCatalog_ReplaceDedupes(t *testing.T) {
	c := NewCatalog(DefaultResolution, nil)
	moved := clockPOI
	moved.Lat, moved.Lon = 50.0865, 14.4114

	n := c.Replace([]model.POI{clockPOI, moved, {Name: "anonymous"}})
	assert.Equal(t, 1, n)

	got, err := c.Nearby(context.Background(), Request{Center: oldTown, Radius: 200})
	require.NoError(t, err)
	assert.Empty(t, got, "the later duplicate wins")

	n, err = c.LoadStore(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "catalog", c.All()[0].Source)
}
