package places

import (
	"fmt"

	"github.com/uber/h3-go/v4"

	"wanderguide/pkg/geo"
)

// DefaultResolution is the h3 resolution used for cache keys and the catalog index.
// Cells at resolution 8 have an edge of roughly 460 m.
const DefaultResolution = 8

func cellFor(p geo.Point, res int) (h3.Cell, error) {
	c, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lon), res)
	if err != nil {
		return 0, fmt.Errorf("h3 cell for %.5f,%.5f: %w", p.Lat, p.Lon, err)
	}
	return c, nil
}

func cellCenter(c h3.Cell) (geo.Point, error) {
	ll, err := c.LatLng()
	if err != nil {
		return geo.Point{}, err
	}
	return geo.Point{Lat: ll.Lat, Lon: ll.Lng}, nil
}

// cellRadius is the largest distance from the cell center to one of its vertices.
func cellRadius(c h3.Cell) (float64, error) {
	center, err := cellCenter(c)
	if err != nil {
		return 0, err
	}
	boundary, err := c.Boundary()
	if err != nil {
		return 0, err
	}
	var r float64
	for _, v := range boundary {
		if d := geo.Distance(center, geo.Point{Lat: v.Lat, Lon: v.Lng}); d > r {
			r = d
		}
	}
	return r, nil
}
