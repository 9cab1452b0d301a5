package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"wanderguide/pkg/model"
	"wanderguide/pkg/request"
)

// HTTPLookup queries a JSON places endpoint:
//
//	GET {endpoint}/nearby?lat=..&lon=..&radius=..&categories=a,b&limit=..
//	-> {"results":[{"id","name","category","lat","lon","rating","summary"}]}
type HTTPLookup struct {
	rc       *request.Client
	endpoint string
	apiKey   string
}

// NewHTTPLookup creates a lookup against endpoint. apiKey is sent as X-Api-Key when set.
func NewHTTPLookup(rc *request.Client, endpoint, apiKey string) *HTTPLookup {
	return &HTTPLookup{rc: rc, endpoint: strings.TrimRight(endpoint, "/"), apiKey: apiKey}
}

type httpPlace struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Rating   float64 `json:"rating"`
	Summary  string  `json:"summary"`
}

func (p httpPlace) toPOI() model.POI {
	return model.POI{
		ID:       p.ID,
		Name:     p.Name,
		Category: p.Category,
		Lat:      p.Lat,
		Lon:      p.Lon,
		Rating:   p.Rating,
		Summary:  p.Summary,
		Source:   "places",
	}
}

func (l *HTTPLookup) headers() map[string]string {
	h := map[string]string{"Accept": "application/json"}
	if l.apiKey != "" {
		h["X-Api-Key"] = l.apiKey
	}
	return h
}

// Nearby implements Lookup.
func (l *HTTPLookup) Nearby(ctx context.Context, req Request) ([]model.POI, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(req.Center.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(req.Center.Lon, 'f', 6, 64))
	q.Set("radius", strconv.Itoa(int(req.Radius)))
	if len(req.Categories) > 0 {
		q.Set("categories", strings.Join(req.Categories, ","))
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}

	body, err := l.rc.GetWithHeaders(ctx, l.endpoint+"/nearby?"+q.Encode(), l.headers(), "")
	if err != nil {
		return nil, lookupError("places", err)
	}

	var resp struct {
		Results []httpPlace `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, lookupError("places", fmt.Errorf("decode nearby: %w", err))
	}

	pois := make([]model.POI, 0, len(resp.Results))
	for _, r := range resp.Results {
		pois = append(pois, r.toPOI())
	}
	return refine(pois, req), nil
}

// HTTPEnricher fetches POI details from the same service:
//
//	GET {endpoint}/details?id=..&fields=name,summary
//	-> {"result":{"name","category","summary","rating"}}
type HTTPEnricher struct {
	*HTTPLookup
}

// NewHTTPEnricher creates an enricher against endpoint.
func NewHTTPEnricher(rc *request.Client, endpoint, apiKey string) *HTTPEnricher {
	return &HTTPEnricher{NewHTTPLookup(rc, endpoint, apiKey)}
}

// Enrich implements Enricher.
func (e *HTTPEnricher) Enrich(ctx context.Context, req EnrichRequest) (model.Enrichment, error) {
	fields := req.Fields
	if len(fields) == 0 {
		fields = DefaultFields
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}

	q := url.Values{}
	q.Set("id", req.POI.ID)
	q.Set("fields", strings.Join(names, ","))

	body, err := e.rc.GetWithHeaders(ctx, e.endpoint+"/details?"+q.Encode(), e.headers(), "")
	if err != nil {
		return model.Enrichment{}, lookupError("places", err)
	}

	var resp struct {
		Result *httpPlace `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.Enrichment{}, lookupError("places", fmt.Errorf("decode details: %w", err))
	}
	if resp.Result == nil {
		return model.Enrichment{}, lookupError("places", fmt.Errorf("no details for %s", req.POI.ID))
	}

	r := resp.Result
	return model.Enrichment{
		Name:     r.Name,
		Category: r.Category,
		Summary:  strings.TrimSpace(r.Summary),
		Rating:   r.Rating,
		Source:   "places",
	}, nil
}
