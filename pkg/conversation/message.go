package conversation

import (
	"bytes"
	"embed"
	"fmt"
	"math"
	"strings"
	"text/template"

	"wanderguide/pkg/geo"
	"wanderguide/pkg/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("root").Funcs(template.FuncMap{
	"meters": humanDistance,
	"coord":  func(v float64) string { return fmt.Sprintf("%.5f", v) },
}).ParseFS(templateFS, "templates/*.tmpl"))

// MessageData is what the update templates render.
type MessageData struct {
	Name      string
	Category  string
	Lat       float64
	Lon       float64
	Distance  float64
	Direction string
	Fact      string
}

// NewMessageData combines a reading, its enrichment and the visitor position.
// Enrichment fields win over the POI's own when present.
func NewMessageData(pos model.Position, r model.ProximityReading, en model.Enrichment) MessageData {
	d := MessageData{
		Name:     r.POI.DisplayName(),
		Category: r.POI.Category,
		Lat:      r.POI.Lat,
		Lon:      r.POI.Lon,
		Distance: r.DistanceMeters,
		Fact:     r.POI.Summary,
	}
	if en.Name != "" {
		d.Name = en.Name
	}
	if en.Category != "" {
		d.Category = en.Category
	}
	if en.Summary != "" {
		d.Fact = en.Summary
	}
	d.Category = strings.ReplaceAll(d.Category, "_", " ")
	d.Fact = strings.TrimSpace(d.Fact)
	d.Direction = geo.Compass(geo.Bearing(geo.FromPosition(pos), geo.FromPOI(&r.POI)))
	return d
}

// ContextualUpdate renders the location-triggered message.
func ContextualUpdate(d MessageData) (string, error) {
	return render("contextual.tmpl", d)
}

// Pitch renders the lower-urgency "did you know" message.
func Pitch(d MessageData) (string, error) {
	return render("pitch.tmpl", d)
}

func render(name string, d MessageData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, d); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// humanDistance rounds to a figure a guide would say out loud.
func humanDistance(m float64) string {
	switch {
	case m >= 1000:
		return fmt.Sprintf("%.1f km", m/1000)
	case m >= 100:
		return fmt.Sprintf("%.0f m", math.Round(m/10)*10)
	case m >= 10:
		return fmt.Sprintf("%.0f m", math.Round(m/5)*5)
	default:
		return fmt.Sprintf("%.0f m", math.Round(m))
	}
}
