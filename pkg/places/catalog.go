package places

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/uber/h3-go/v4"

	"wanderguide/pkg/geo"
	"wanderguide/pkg/model"
	"wanderguide/pkg/store"
)

const (
	catalogSource = "catalog"
	// maxDiskRings caps the h3 ring walk; wider searches scan the bounding box instead.
	maxDiskRings = 40
)

// Catalog is the local landmark catalog: an in-memory h3 index over POIs loaded
// from a GeoJSON file and/or the poi table. It serves as an offline Lookup and as
// the source of locally known summaries.
type Catalog struct {
	mu    sync.RWMutex
	res   int
	edge  float64 // approximate cell circumradius at res, meters
	pois  map[string]model.POI
	cells map[h3.Cell][]string

	store  store.POIStore
	logger *slog.Logger
}

// NewCatalog creates an empty catalog. st may be nil.
func NewCatalog(res int, st store.POIStore) *Catalog {
	if res < 0 || res > 15 {
		res = DefaultResolution
	}
	c := &Catalog{
		res:    res,
		pois:   make(map[string]model.POI),
		cells:  make(map[h3.Cell][]string),
		store:  st,
		logger: slog.With("component", "catalog"),
	}
	// Edge length barely varies with latitude; measure once at an arbitrary cell.
	if cell, err := cellFor(geo.Point{Lat: 45, Lon: 0}, res); err == nil {
		if r, err := cellRadius(cell); err == nil {
			c.edge = r
		}
	}
	return c
}

// LoadFile replaces the catalog with the landmarks in a GeoJSON file and
// persists them to the store.
func (c *Catalog) LoadFile(ctx context.Context, path string) (int, error) {
	pois, err := geo.LoadLandmarks(path)
	if err != nil {
		return 0, err
	}
	n := c.Replace(pois)

	if c.store != nil {
		batch := make([]*model.POI, len(pois))
		for i := range pois {
			batch[i] = &pois[i]
		}
		if err := c.store.SavePOIs(ctx, batch); err != nil {
			return n, fmt.Errorf("persist catalog: %w", err)
		}
	}
	c.logger.Info("Catalog loaded", "path", path, "pois", n)
	return n, nil
}

// LoadStore fills the catalog from the poi table.
func (c *Catalog) LoadStore(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	rows, err := c.store.ListPOIs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pois: %w", err)
	}
	pois := make([]model.POI, 0, len(rows))
	for _, p := range rows {
		pois = append(pois, *p)
	}
	n := c.Replace(pois)
	c.logger.Info("Catalog loaded from store", "pois", n)
	return n, nil
}

// Replace swaps the catalog contents. POIs without an id or with invalid coordinates are skipped.
func (c *Catalog) Replace(pois []model.POI) int {
	byID := make(map[string]model.POI, len(pois))
	for _, p := range pois {
		if p.ID == "" {
			continue
		}
		if p.Source == "" {
			p.Source = catalogSource
		}
		byID[p.ID] = p
	}

	cells := make(map[h3.Cell][]string)
	for id, p := range byID {
		cell, err := cellFor(geo.FromPOI(&p), c.res)
		if err != nil {
			c.logger.Debug("Skipping POI", "id", id, "error", err)
			delete(byID, id)
			continue
		}
		cells[cell] = append(cells[cell], id)
	}

	c.mu.Lock()
	c.pois = byID
	c.cells = cells
	c.mu.Unlock()
	return len(byID)
}

// Len returns the number of POIs in the catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pois)
}

// Get returns a POI by id.
func (c *Catalog) Get(id string) (model.POI, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.pois[id]
	return p, ok
}

// All returns every POI in the catalog in no particular order.
func (c *Catalog) All() []model.POI {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.POI, 0, len(c.pois))
	for _, p := range c.pois {
		out = append(out, p)
	}
	return out
}

// FeatureCollection renders the catalog as GeoJSON.
func (c *Catalog) FeatureCollection() *geojson.FeatureCollection {
	return geo.ToFeatureCollection(refine(c.All(), Request{}))
}

// Nearby implements Lookup.
func (c *Catalog) Nearby(ctx context.Context, req Request) ([]model.POI, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	center := orb.Point{req.Center.Lon, req.Center.Lat}
	var bound orb.Bound
	if req.Radius > 0 {
		bound = orbgeo.NewBoundAroundPoint(center, req.Radius)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var candidates []model.POI
	add := func(p model.POI) {
		if req.Radius > 0 && !bound.Contains(orb.Point{p.Lon, p.Lat}) {
			return
		}
		candidates = append(candidates, p)
	}

	if ids, ok := c.ringCandidates(req); ok {
		for _, id := range ids {
			add(c.pois[id])
		}
	} else {
		for _, p := range c.pois {
			add(p)
		}
	}

	return refine(candidates, req), nil
}

// ringCandidates collects POI ids from the cells around the request center.
// ok is false when the ring walk is not applicable and a full scan is needed.
func (c *Catalog) ringCandidates(req Request) ([]string, bool) {
	if req.Radius <= 0 || c.edge <= 0 {
		return nil, false
	}
	// Neighboring cell centers are sqrt(3)*edge apart
	k := int(math.Ceil(req.Radius/(math.Sqrt(3)*c.edge))) + 1
	if k > maxDiskRings {
		return nil, false
	}
	origin, err := cellFor(req.Center, c.res)
	if err != nil {
		return nil, false
	}
	disk, err := origin.GridDisk(k)
	if err != nil {
		return nil, false
	}
	var ids []string
	for _, cell := range disk {
		ids = append(ids, c.cells[cell]...)
	}
	return ids, true
}

// Enrich implements Enricher with the catalog's locally known summary.
func (c *Catalog) Enrich(ctx context.Context, req EnrichRequest) (model.Enrichment, error) {
	p, ok := c.Get(req.POI.ID)
	if !ok || p.Summary == "" {
		return model.Enrichment{}, lookupError(catalogSource, fmt.Errorf("no local summary for %s", req.POI.ID))
	}
	return model.Enrichment{
		Name:     p.Name,
		Category: p.Category,
		Summary:  p.Summary,
		Rating:   p.Rating,
		Source:   catalogSource,
	}, nil
}
