// Command shp2catalog converts a shapefile of landmarks into the GeoJSON
// catalog read by the places catalog. Lines and areas are reduced to the
// center of their bounding box.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"wanderguide/pkg/geo"
	"wanderguide/pkg/model"
)

type options struct {
	Input         string
	Output        string
	IDField       string
	NameField     string
	CategoryField string
	SummaryField  string
	Category      string // used when the category field is missing or empty
	IDPrefix      string
}

func main() {
	var opts options
	flag.StringVar(&opts.Input, "input", "", "Path to input .shp file")
	flag.StringVar(&opts.Output, "output", "", "Path to output .geojson file")
	flag.StringVar(&opts.IDField, "id-field", "id", "Attribute holding a stable landmark id")
	flag.StringVar(&opts.NameField, "name-field", "name", "Attribute holding the landmark name")
	flag.StringVar(&opts.CategoryField, "category-field", "category", "Attribute holding the landmark category")
	flag.StringVar(&opts.SummaryField, "summary-field", "", "Attribute holding a short description")
	flag.StringVar(&opts.Category, "category", "", "Category for records without one")
	flag.StringVar(&opts.IDPrefix, "id-prefix", "shp", "Prefix for generated ids")
	flag.Parse()

	if opts.Input == "" || opts.Output == "" {
		flag.Usage()
		log.Fatal("Input and output paths are required")
	}

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func run(opts options) error {
	pois, err := readShapes(opts)
	if err != nil {
		return err
	}

	data, err := geo.ToFeatureCollection(pois).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}

	if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	fmt.Printf("Successfully converted %d landmarks to %s\n", len(pois), opts.Output)
	return nil
}

func readShapes(opts options) ([]model.POI, error) {
	shape, err := shp.Open(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer shape.Close()

	// dbf field names are upper-cased and cut to 10 bytes by most tools.
	index := make(map[string]int)
	for i, f := range shape.Fields() {
		index[strings.ToLower(strings.TrimRight(f.String(), "\x00 "))] = i
	}
	attr := func(n int, field string) string {
		if field == "" {
			return ""
		}
		i, ok := index[strings.ToLower(field)]
		if !ok {
			return ""
		}
		return strings.TrimSpace(shape.ReadAttribute(n, i))
	}

	var pois []model.POI
	for shape.Next() {
		n, p := shape.Shape()

		var pt orb.Point
		switch s := p.(type) {
		case *shp.Null:
			continue
		case *shp.Point:
			pt = orb.Point{s.X, s.Y}
		case *shp.PolyLine:
			pt = convertPolyLine(s).Bound().Center()
		case *shp.Polygon:
			pt = convertPolygon(s).Bound().Center()
		default:
			log.Printf("Skipping unsupported shape type: %T", p)
			continue
		}

		name := attr(n, opts.NameField)
		if name == "" {
			continue
		}
		id := attr(n, opts.IDField)
		if id == "" {
			id = fmt.Sprintf("%s-%d", opts.IDPrefix, n)
		}
		category := attr(n, opts.CategoryField)
		if category == "" {
			category = opts.Category
		}

		pois = append(pois, model.POI{
			ID:       id,
			Name:     name,
			Category: category,
			Summary:  attr(n, opts.SummaryField),
			Lat:      pt[1],
			Lon:      pt[0],
		})
	}

	if err := shape.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shapes: %w", err)
	}
	return pois, nil
}

func convertPolyLine(s *shp.PolyLine) orb.MultiLineString {
	var multiline orb.MultiLineString
	for i := 0; i < int(s.NumParts); i++ {
		var line orb.LineString
		for _, pt := range part(s.Points, s.Parts, s.NumPoints, i) {
			line = append(line, orb.Point{pt.X, pt.Y})
		}
		multiline = append(multiline, line)
	}
	return multiline
}

func convertPolygon(s *shp.Polygon) orb.Polygon {
	var poly orb.Polygon
	for i := 0; i < int(s.NumParts); i++ {
		var ring orb.Ring
		for _, pt := range part(s.Points, s.Parts, s.NumPoints, i) {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		poly = append(poly, ring)
	}
	return poly
}

// part returns the points of the i-th part of a multi-part shape.
func part(points []shp.Point, parts []int32, numPoints int32, i int) []shp.Point {
	start := parts[i]
	end := numPoints
	if i < len(parts)-1 {
		end = parts[i+1]
	}
	return points[start:end]
}
