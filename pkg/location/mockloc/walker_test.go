package mockloc

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"wanderguide/pkg/geo"
	"wanderguide/pkg/location"
)

func TestWalker_StraightLine(t *testing.T) {
	w := NewWalker(Config{StartLat: 48.0, StartLon: 11.0, SpeedMps: 1.5, Heading: 90, Seed: 1})
	defer w.Close()

	start := w.Position()
	w.Step(100 * time.Second)
	got := geo.Distance(start, w.Position())
	if math.Abs(got-150) > 0.5 {
		t.Errorf("walked %v m, want 150", got)
	}
	if brg := geo.Bearing(start, w.Position()); math.Abs(brg-90) > 0.5 {
		t.Errorf("bearing = %v, want 90", brg)
	}
}

func TestWalker_FollowsRoute(t *testing.T) {
	a := geo.Point{Lat: 50.0, Lon: 14.0}
	b := geo.DestinationPoint(a, 100, 0)
	c := geo.DestinationPoint(b, 100, 90)

	w := NewWalker(Config{StartLat: a.Lat, StartLon: a.Lon, SpeedMps: 10, Route: []geo.Point{b, c, a}, Seed: 1})
	defer w.Close()

	w.Step(10 * time.Second)
	if d := geo.Distance(w.Position(), b); d > 1 {
		t.Fatalf("expected to reach first waypoint, %v m away", d)
	}

	// Leftover distance carries into the next leg.
	w.Step(15 * time.Second)
	if d := geo.Distance(w.Position(), c); math.Abs(d-50) > 1 {
		t.Errorf("expected 50 m past second waypoint, got %v", d)
	}
	back := geo.Distance(c, a) - 50
	if d := geo.Distance(w.Position(), a); math.Abs(d-back) > 1 {
		t.Errorf("expected to be heading back to start, %v m away, want %v", d, back)
	}
}

func TestWalker_Denied(t *testing.T) {
	w := NewWalker(Config{StartLat: 1, StartLon: 1, Denied: true})
	defer w.Close()

	_, err := w.CurrentPosition(context.Background(), time.Second, location.AccuracyHigh)
	if !errors.Is(err, location.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if p, _ := w.QueryPermission(context.Background()); p != location.PermissionDenied {
		t.Errorf("QueryPermission = %v", p)
	}

	w.SetDenied(false)
	pos, err := w.CurrentPosition(context.Background(), time.Second, location.AccuracyLow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.AccuracyMeters != 50 {
		t.Errorf("low accuracy fix should report 50 m, got %v", pos.AccuracyMeters)
	}
}

func TestWalker_BackgroundLoop(t *testing.T) {
	w := NewWalker(Config{StartLat: 0, StartLon: 0, SpeedMps: 100, Heading: 0, Tick: 5 * time.Millisecond})
	time.Sleep(50 * time.Millisecond)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if w.Position().Lat <= 0 {
		t.Error("walker did not advance in background")
	}
	// Close twice is safe.
	_ = w.Close()
}
