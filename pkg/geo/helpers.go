package geo

import (
	"encoding/json"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// representativePoint picks the coordinate used for a landmark geometry.
func representativePoint(geom orb.Geometry) orb.Point {
	if p, ok := geom.(orb.Point); ok {
		return p
	}
	return geom.Bound().Center()
}

// getStringProp safely extracts a string property from GeoJSON properties.
func getStringProp(props geojson.Properties, key string) string {
	if val, ok := props[key]; ok {
		switch v := val.(type) {
		case string:
			return v
		case json.Number:
			return string(v)
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func getFloatProp(props geojson.Properties, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}
