// Package main provides a debugging CLI tool to inspect landmarks around the current position.
// It fetches the last position from the running WanderGuide server (or takes one from flags),
// reads the stored catalog from the database, and shows distance, direction and proximity tier
// for every landmark in range.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"wanderguide/pkg/config"
	"wanderguide/pkg/db"
	"wanderguide/pkg/geo"
	"wanderguide/pkg/model"
	"wanderguide/pkg/proximity"
	"wanderguide/pkg/store"
)

const metersPerDegree = 111195.0 // on a sphere of radius 6371 km

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfgPath := flag.String("config", "configs/wanderguide.yaml", "Path to config file")
	radius := flag.Float64("radius", 0, "Search radius in meters (default: contextual radius)")
	lat := flag.Float64("lat", 0, "Latitude; queried from the server when unset")
	lon := flag.Float64("lon", 0, "Longitude; queried from the server when unset")
	showAll := flag.Bool("all", false, "Show all landmarks, not just first 50")
	checkID := flag.String("check", "", "Check a specific landmark id in the DB")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := db.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	st := store.NewSQLiteStore(database)
	ctx := context.Background()

	if *checkID != "" {
		return checkDB(ctx, os.Stdout, st, *checkID)
	}

	pos := model.Position{Lat: *lat, Lon: *lon, CapturedAt: time.Now()}
	if *lat == 0 && *lon == 0 {
		serverAddr := cfg.Server.Address
		if serverAddr == "" {
			serverAddr = "localhost:1930"
		}
		pos, err = fetchPosition(serverAddr)
		if err != nil {
			return fmt.Errorf("failed to fetch position: %w\nIs WanderGuide running?", err)
		}
	}

	r := *radius
	if r <= 0 {
		r = cfg.Proximity.ContextualRadius.Meters()
	}

	fmt.Printf("Position: %.5f, %.5f (accuracy %.0f m)\n", pos.Lat, pos.Lon, pos.AccuracyMeters)
	fmt.Printf("Search radius: %.0f m\n\n", r)

	minLat, maxLat, minLon, maxLon := bounds(pos, r)
	stored, err := st.ListPOIsInBounds(ctx, minLat, maxLat, minLon, maxLon)
	if err != nil {
		return fmt.Errorf("failed to query landmarks: %w", err)
	}
	if len(stored) == 0 {
		fmt.Println("WARN: No stored landmarks near this position.")
		fmt.Println("      Import a catalog or walk around a bit to let WanderGuide fetch some.")
		return nil
	}

	pois := make([]model.POI, len(stored))
	for i, p := range stored {
		pois[i] = *p
	}

	tiers := make([]proximity.Tier, 0, len(cfg.Proximity.Tiers))
	for _, t := range cfg.Proximity.Tiers {
		tiers = append(tiers, proximity.Tier{Name: t.Name, MaxDistance: t.MaxDistance.Meters()})
	}

	readings := geo.Classify(pos, pois, r, time.Now())
	printResults(os.Stdout, pos, readings, proximity.NewTierEvaluator(tiers, false), r, *showAll)
	return nil
}

// bounds returns a box that contains the circle of radius meters around pos.
func bounds(pos model.Position, radius float64) (minLat, maxLat, minLon, maxLon float64) {
	dLat := radius / metersPerDegree
	dLon := 180.0
	if c := math.Cos(pos.Lat * math.Pi / 180); c > 1e-6 {
		dLon = math.Min(radius/(metersPerDegree*c), 180)
	}
	return pos.Lat - dLat, pos.Lat + dLat, pos.Lon - dLon, pos.Lon + dLon
}

func printResults(w io.Writer, pos model.Position, readings []model.ProximityReading, tiers *proximity.TierEvaluator, radius float64, showAll bool) {
	displayCount := len(readings)
	if !showAll && displayCount > 50 {
		displayCount = 50
	}

	fmt.Fprintf(w, "Found %d landmarks within %.0f m (showing %d)\n\n", len(readings), radius, displayCount)
	fmt.Fprintln(w, strings.Repeat("-", 80))

	origin := geo.FromPosition(pos)
	for _, r := range readings[:displayCount] {
		p := r.POI
		dir := geo.Compass(geo.Bearing(origin, geo.FromPOI(&p)))

		fmt.Fprintf(w, "\nPOI: %s (%s)\n", p.Name, p.ID)
		fmt.Fprintf(w, "   Loc:      %.5f, %.5f (%.0f m %s)\n", p.Lat, p.Lon, r.DistanceMeters, dir)
		if p.Category != "" {
			fmt.Fprintf(w, "   Category: %s\n", p.Category)
		}
		if tier, ok := tiers.TierOf(r.DistanceMeters); ok {
			fmt.Fprintf(w, "   Tier:     %s (<= %.0f m)\n", tier.Name, tier.MaxDistance)
		} else {
			fmt.Fprintf(w, "   Tier:     none (contextual only)\n")
		}
		if p.Summary != "" {
			fmt.Fprintf(w, "   Summary:  %s\n", truncate(p.Summary, 70))
		}
	}

	fmt.Fprintln(w, strings.Repeat("-", 80))
	if len(readings) > displayCount {
		fmt.Fprintf(w, "\n... and %d more. Use -all to see all.\n", len(readings)-displayCount)
	}
}

func fetchPosition(addr string) (model.Position, error) {
	url := fmt.Sprintf("http://%s/api/position", addr)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return model.Position{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return model.Position{}, fmt.Errorf("no position received yet")
	}
	if resp.StatusCode != http.StatusOK {
		return model.Position{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var pos model.Position
	if err := json.NewDecoder(resp.Body).Decode(&pos); err != nil {
		return model.Position{}, err
	}
	return pos, nil
}

func checkDB(ctx context.Context, w io.Writer, st store.POIStore, id string) error {
	fmt.Fprintf(w, "\nInspecting database for landmark: %s\n", id)
	fmt.Fprintln(w, strings.Repeat("-", 50))

	p, err := st.GetPOI(ctx, id)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", id, err)
	}
	if p == nil {
		fmt.Fprintln(w, "Not found in 'poi' table")
	} else {
		fmt.Fprintf(w, "Found in 'poi' table:\n")
		fmt.Fprintf(w, "   Name:     %s\n", p.Name)
		fmt.Fprintf(w, "   Category: %s\n", p.Category)
		fmt.Fprintf(w, "   Source:   %s\n", p.Source)
		fmt.Fprintf(w, "   Loc:      %.5f, %.5f\n", p.Lat, p.Lon)
	}
	fmt.Fprintln(w, strings.Repeat("-", 50))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
