package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wanderguide/pkg/model"
)

const landmarksJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"id": "tower", "name": "Clock Tower", "category": "monument", "summary": "Built in 1410.", "rating": 4.5},
      "geometry": {"type": "Point", "coordinates": [14.4208, 50.0870]}
    },
    {
      "type": "Feature",
      "id": "park",
      "properties": {"name": "City Park", "category": "park"},
      "geometry": {"type": "Polygon", "coordinates": [[[14.0, 50.0], [14.2, 50.0], [14.2, 50.2], [14.0, 50.2], [14.0, 50.0]]]}
    },
    {
      "type": "Feature",
      "properties": {"name": "No ID"},
      "geometry": {"type": "Point", "coordinates": [1, 1]}
    }
  ]
}`

func TestParseLandmarks(t *testing.T) {
	pois, err := ParseLandmarks([]byte(landmarksJSON))
	require.NoError(t, err)
	require.Len(t, pois, 2)

	assert.Equal(t, "tower", pois[0].ID)
	assert.Equal(t, "Clock Tower", pois[0].Name)
	assert.Equal(t, "monument", pois[0].Category)
	assert.Equal(t, "Built in 1410.", pois[0].Summary)
	assert.InDelta(t, 4.5, pois[0].Rating, 1e-9)
	assert.InDelta(t, 50.0870, pois[0].Lat, 1e-9)
	assert.InDelta(t, 14.4208, pois[0].Lon, 1e-9)
	assert.Equal(t, "catalog", pois[0].Source)

	assert.Equal(t, "park", pois[1].ID)
	assert.InDelta(t, 50.1, pois[1].Lat, 1e-9)
	assert.InDelta(t, 14.1, pois[1].Lon, 1e-9)
}

func TestLoadLandmarks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "landmarks.geojson")
	require.NoError(t, os.WriteFile(path, []byte(landmarksJSON), 0o644))

	pois, err := LoadLandmarks(path)
	require.NoError(t, err)
	assert.Len(t, pois, 2)

	_, err = LoadLandmarks(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)
}

func TestToFeatureCollectionRoundTrip(t *testing.T) {
	in := []model.POI{
		{ID: "a", Name: "Alpha", Category: "museum", Summary: "Old.", Lat: 1.5, Lon: 2.5, Rating: 3},
		{ID: "b", Name: "Beta", Lat: -1, Lon: -2},
	}
	data, err := ToFeatureCollection(in).MarshalJSON()
	require.NoError(t, err)

	out, err := ParseLandmarks(data)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Alpha", out[0].Name)
	assert.Equal(t, "museum", out[0].Category)
	assert.InDelta(t, 3.0, out[0].Rating, 1e-9)
	assert.InDelta(t, -2.0, out[1].Lon, 1e-9)
}
