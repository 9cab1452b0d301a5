package geo

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"wanderguide/pkg/model"
)

// LoadLandmarks reads a GeoJSON FeatureCollection of landmarks from disk.
func LoadLandmarks(path string) ([]model.POI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geojson %s: %w", path, err)
	}
	pois, err := ParseLandmarks(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geojson %s: %w", path, err)
	}
	return pois, nil
}

// ParseLandmarks converts GeoJSON features into POIs.
// Point features use their coordinate; areas use the center of their bounding box.
// Features without an "id" property fall back to the feature id.
func ParseLandmarks(data []byte) ([]model.POI, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}

	pois := make([]model.POI, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		pt := representativePoint(f.Geometry)

		id := getStringProp(f.Properties, "id")
		if id == "" {
			if s, ok := f.ID.(string); ok {
				id = s
			}
		}
		if id == "" {
			continue
		}

		pois = append(pois, model.POI{
			ID:       id,
			Name:     getStringProp(f.Properties, "name"),
			Category: getStringProp(f.Properties, "category"),
			Summary:  getStringProp(f.Properties, "summary"),
			Rating:   getFloatProp(f.Properties, "rating"),
			Lat:      pt[1],
			Lon:      pt[0],
			Source:   "catalog",
		})
	}
	return pois, nil
}

// ToFeatureCollection renders POIs as GeoJSON point features.
func ToFeatureCollection(pois []model.POI) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := range pois {
		p := &pois[i]
		f := geojson.NewFeature(orb.Point{p.Lon, p.Lat})
		f.Properties["id"] = p.ID
		f.Properties["name"] = p.Name
		if p.Category != "" {
			f.Properties["category"] = p.Category
		}
		if p.Summary != "" {
			f.Properties["summary"] = p.Summary
		}
		if p.Rating > 0 {
			f.Properties["rating"] = p.Rating
		}
		fc.Append(f)
	}
	return fc
}
