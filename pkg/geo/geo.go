package geo

import (
	"math"
	"sort"
	"time"

	"wanderguide/pkg/model"
)

// EarthRadius is the mean Earth radius in meters used by every distance calculation.
const EarthRadius = 6371000

// Point represents a geographic coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// FromPosition returns the coordinate of a location sample.
func FromPosition(p model.Position) Point {
	return Point{Lat: p.Lat, Lon: p.Lon}
}

// FromPOI returns the coordinate of a point of interest.
func FromPOI(p *model.POI) Point {
	return Point{Lat: p.Lat, Lon: p.Lon}
}

// Distance calculates the Haversine distance between two points in meters.
func Distance(p1, p2 Point) float64 {
	dLat := (p2.Lat - p1.Lat) * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// DestinationPoint calculates the destination point from a start point, given distance (in meters) and bearing (in degrees).
func DestinationPoint(start Point, distMeters, bearing float64) Point {
	lat1 := start.Lat * (math.Pi / 180.0)
	lon1 := start.Lon * (math.Pi / 180.0)
	brng := bearing * (math.Pi / 180.0)
	ang := distMeters / EarthRadius

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) +
		math.Cos(lat1)*math.Sin(ang)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(ang)*math.Cos(lat1),
		math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2))

	return Point{
		Lat: lat2 * (180.0 / math.Pi),
		Lon: lon2 * (180.0 / math.Pi),
	}
}

// Bearing calculates the initial bearing (forward azimuth) from p1 to p2 in degrees.
func Bearing(p1, p2 Point) float64 {
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	brng := math.Atan2(y, x)

	return math.Mod(brng*(180.0/math.Pi)+360.0, 360.0)
}

var compassPoints = []string{"north", "north-east", "east", "south-east", "south", "south-west", "west", "north-west"}

// Compass returns the 8-point compass name for a bearing in degrees.
func Compass(bearing float64) string {
	b := math.Mod(bearing+360.0, 360.0)
	idx := int(math.Floor((b+22.5)/45.0)) % 8
	return compassPoints[idx]
}

// Classify returns the POIs within radius meters of pos, closest first.
// Equal distances are ordered by POI ID so the result is deterministic.
// A non-positive radius disables the filter.
func Classify(pos model.Position, pois []model.POI, radius float64, now time.Time) []model.ProximityReading {
	origin := FromPosition(pos)
	out := make([]model.ProximityReading, 0, len(pois))
	for i := range pois {
		d := Distance(origin, FromPOI(&pois[i]))
		if radius > 0 && d > radius {
			continue
		}
		out = append(out, model.ProximityReading{
			POI:            pois[i],
			DistanceMeters: d,
			ComputedAt:     now,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].POI.ID < out[j].POI.ID
	})
	return out
}
