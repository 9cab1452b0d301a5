package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"wanderguide/pkg/geo"
	"wanderguide/pkg/model"
)

const landmarkCacheTTL = 15 * time.Second

// BoundsLister lists stored landmarks inside a bounding box.
type BoundsLister interface {
	ListPOIsInBounds(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]*model.POI, error)
}

// LandmarkHandler serves stored landmarks as a GeoJSON FeatureCollection for map overlays.
// GET /api/landmarks?min_lat=&max_lat=&min_lon=&max_lon=
type LandmarkHandler struct {
	store BoundsLister

	// Responses are reused for identical bounds within landmarkCacheTTL.
	mu         sync.Mutex
	cachedKey  string
	cachedResp []byte
	lastUpdate time.Time
	now        func() time.Time
}

// NewLandmarkHandler creates a new LandmarkHandler.
func NewLandmarkHandler(s BoundsLister) *LandmarkHandler {
	return &LandmarkHandler{store: s, now: time.Now}
}

func (h *LandmarkHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minLatStr, maxLatStr := q.Get("min_lat"), q.Get("max_lat")
	minLonStr, maxLonStr := q.Get("min_lon"), q.Get("max_lon")

	if minLatStr == "" || maxLatStr == "" || minLonStr == "" || maxLonStr == "" {
		http.Error(w, "min_lat, max_lat, min_lon, max_lon are required", http.StatusBadRequest)
		return
	}

	minLat, err1 := strconv.ParseFloat(minLatStr, 64)
	maxLat, err2 := strconv.ParseFloat(maxLatStr, 64)
	minLon, err3 := strconv.ParseFloat(minLonStr, 64)
	maxLon, err4 := strconv.ParseFloat(maxLonStr, 64)

	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || minLat > maxLat || minLon > maxLon {
		http.Error(w, "invalid bounds", http.StatusBadRequest)
		return
	}

	key := minLatStr + "," + maxLatStr + "," + minLonStr + "," + maxLonStr

	h.mu.Lock()
	if key == h.cachedKey && h.cachedResp != nil && h.now().Sub(h.lastUpdate) < landmarkCacheTTL {
		resp := h.cachedResp
		h.mu.Unlock()
		writeGeoJSON(w, resp)
		return
	}
	h.mu.Unlock()

	stored, err := h.store.ListPOIsInBounds(r.Context(), minLat, maxLat, minLon, maxLon)
	if err != nil {
		http.Error(w, "failed to list landmarks", http.StatusInternalServerError)
		return
	}

	pois := make([]model.POI, 0, len(stored))
	for _, p := range stored {
		pois = append(pois, *p)
	}
	resp, err := geo.ToFeatureCollection(pois).MarshalJSON()
	if err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	h.cachedKey = key
	h.cachedResp = resp
	h.lastUpdate = h.now()
	h.mu.Unlock()

	writeGeoJSON(w, resp)
}

func writeGeoJSON(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(body)
}
