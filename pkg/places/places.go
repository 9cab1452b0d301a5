// Package places finds points of interest near a position and fetches the
// detail used to describe them.
package places

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"wanderguide/pkg/geo"
	"wanderguide/pkg/model"
)

// ErrLookupFailed marks a places or enrichment call that failed or returned malformed data.
var ErrLookupFailed = errors.New("lookup failed")

// Request describes a nearby search.
type Request struct {
	Center     geo.Point
	Radius     float64  // meters
	Categories []string // empty means any
	Limit      int      // <= 0 means provider default
}

// Lookup returns POIs near a point, closest first.
type Lookup interface {
	Nearby(ctx context.Context, req Request) ([]model.POI, error)
}

// Field names an enrichment attribute.
type Field string

const (
	FieldName     Field = "name"
	FieldCategory Field = "category"
	FieldSummary  Field = "summary"
	FieldRating   Field = "rating"
)

// DefaultFields are requested when the caller does not say otherwise.
var DefaultFields = []Field{FieldName, FieldCategory, FieldSummary, FieldRating}

// EnrichRequest asks for extra detail about one POI.
type EnrichRequest struct {
	POI    model.POI
	Fields []Field
}

// Enricher fetches detail for a POI.
type Enricher interface {
	Enrich(ctx context.Context, req EnrichRequest) (model.Enrichment, error)
}

// lookupError wraps a provider error so callers can test for ErrLookupFailed.
func lookupError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrLookupFailed) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", provider, ErrLookupFailed, err)
}

// refine applies distance, category and limit constraints to provider results
// and orders them by distance, then id.
func refine(pois []model.POI, req Request) []model.POI {
	type scored struct {
		poi  model.POI
		dist float64
	}
	var keep []scored
	for _, p := range pois {
		if p.ID == "" {
			continue
		}
		if !matchesCategory(p.Category, req.Categories) {
			continue
		}
		d := geo.Distance(req.Center, geo.FromPOI(&p))
		if req.Radius > 0 && d > req.Radius {
			continue
		}
		keep = append(keep, scored{poi: p, dist: d})
	}
	slices.SortStableFunc(keep, func(a, b scored) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		}
		return strings.Compare(a.poi.ID, b.poi.ID)
	})
	if req.Limit > 0 && len(keep) > req.Limit {
		keep = keep[:req.Limit]
	}
	out := make([]model.POI, len(keep))
	for i, s := range keep {
		out[i] = s.poi
	}
	return out
}

func matchesCategory(category string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if strings.EqualFold(f, category) {
			return true
		}
	}
	return false
}

func wants(fields []Field, f Field) bool {
	if len(fields) == 0 {
		return true
	}
	return slices.Contains(fields, f)
}
