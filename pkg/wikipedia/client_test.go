package wikipedia

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wanderguide/pkg/request"
	"wanderguide/pkg/tracker"
)

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	rc := request.New(nil, tracker.New(), request.Options{})
	t.Cleanup(rc.Close)
	c := NewClient(rc)
	c.APIEndpoint = ts.URL
	return c
}

func TestGeoSearch(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "geosearch", q.Get("list"))
		assert.Equal(t, "50.087000|14.421000", q.Get("gscoord"))
		assert.Equal(t, "10000", q.Get("gsradius"), "radius is clamped")
		assert.Equal(t, "5", q.Get("gslimit"))
		_, _ = w.Write([]byte(`{"query":{"geosearch":[
			{"pageid":1,"title":"Old Town Square","lat":50.0875,"lon":14.4213,"dist":61.2},
			{"pageid":2,"title":"Týn Church","lat":50.0877,"lon":14.4226,"dist":120.5}
		]}}`))
	})

	pages, err := c.GeoSearch(context.Background(), 50.087, 14.421, 25000, 5, "en")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "Old Town Square", pages[0].Title)
	assert.Equal(t, 2, pages[1].PageID)
	assert.InDelta(t, 120.5, pages[1].Dist, 1e-9)
}

func TestGeoSearch_APIError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":"invalid-coord","info":"Invalid coordinate provided"}}`))
	})
	_, err := c.GeoSearch(context.Background(), 999, 0, 100, 5, "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid-coord")
}

func TestGetIntro(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("exintro"))
		if q.Get("titles") == "Nowhere" {
			_, _ = w.Write([]byte(`{"query":{"pages":{"-1":{"title":"Nowhere","missing":""}}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"query":{"pages":{"42":{"pageid":42,"title":"Charles Bridge",
			"extract":"<p><b>Charles Bridge</b> is a medieval stone arch bridge.</p>",
			"description":"Bridge in Prague"}}}}`))
	})

	intro, err := c.GetIntro(context.Background(), "Charles Bridge", "en", "")
	require.NoError(t, err)
	assert.Equal(t, 42, intro.PageID)
	assert.Equal(t, "Bridge in Prague", intro.Description)
	assert.True(t, strings.HasPrefix(intro.HTML, "<p><b>Charles Bridge"))

	_, err = c.GetIntro(context.Background(), "Nowhere", "en", "")
	assert.Error(t, err)
}
