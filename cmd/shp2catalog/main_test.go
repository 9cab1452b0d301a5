package main

import (
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"

	"wanderguide/pkg/geo"
)

func writeShapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "landmarks.shp")
	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		t.Fatalf("create shapefile: %v", err)
	}
	if err := w.SetFields([]shp.Field{
		shp.StringField("NAME", 50),
		shp.StringField("CATEGORY", 20),
		shp.StringField("ID", 20),
	}); err != nil {
		t.Fatalf("set fields: %v", err)
	}

	rows := []struct {
		x, y          float64
		name, cat, id string
	}{
		{14.4207, 50.0870, "Old Town Hall", "monument", "q1"},
		{14.4114, 50.0865, "Charles Bridge", "", ""},
		{14.4000, 50.0900, "", "park", "q3"},
	}
	for _, r := range rows {
		n := w.Write(&shp.Point{X: r.x, Y: r.y})
		_ = w.WriteAttribute(int(n), 0, r.name)
		_ = w.WriteAttribute(int(n), 1, r.cat)
		_ = w.WriteAttribute(int(n), 2, r.id)
	}
	w.Close()
	return path
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "landmarks.geojson")
	opts := options{
		Input:         writeShapefile(t, dir),
		Output:        out,
		IDField:       "id",
		NameField:     "name",
		CategoryField: "category",
		Category:      "landmark",
		IDPrefix:      "shp",
	}

	if err := run(opts); err != nil {
		t.Fatalf("run: %v", err)
	}

	pois, err := geo.LoadLandmarks(out)
	if err != nil {
		t.Fatalf("load output: %v", err)
	}
	if len(pois) != 2 {
		t.Fatalf("got %d landmarks, want 2 (unnamed record skipped)", len(pois))
	}

	tests := []struct {
		id, name, category string
		lat, lon           float64
	}{
		{"q1", "Old Town Hall", "monument", 50.0870, 14.4207},
		{"shp-1", "Charles Bridge", "landmark", 50.0865, 14.4114},
	}
	for i, tt := range tests {
		got := pois[i]
		if got.ID != tt.id || got.Name != tt.name || got.Category != tt.category {
			t.Errorf("poi[%d] = %s/%s/%s, want %s/%s/%s", i, got.ID, got.Name, got.Category, tt.id, tt.name, tt.category)
		}
		if got.Lat != tt.lat || got.Lon != tt.lon {
			t.Errorf("poi[%d] at %v,%v, want %v,%v", i, got.Lat, got.Lon, tt.lat, tt.lon)
		}
	}
}

func TestRun_MissingInput(t *testing.T) {
	dir := t.TempDir()
	err := run(options{Input: filepath.Join(dir, "nope.shp"), Output: filepath.Join(dir, "out.geojson")})
	if err == nil {
		t.Fatal("expected an error for a missing shapefile")
	}
}

func TestConvertPolygonCenter(t *testing.T) {
	poly := &shp.Polygon{
		NumParts:  1,
		NumPoints: 5,
		Parts:     []int32{0},
		Points:    []shp.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 4}, {X: 0, Y: 4}, {X: 0, Y: 0}},
	}
	c := convertPolygon(poly).Bound().Center()
	if c[0] != 1 || c[1] != 2 {
		t.Errorf("center = %v, want [1 2]", c)
	}
}
