// Package mockloc simulates a pedestrian walking a route, for development without a device.
package mockloc

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"wanderguide/pkg/geo"
	"wanderguide/pkg/location"
	"wanderguide/pkg/model"
)

const (
	defaultTick  = time.Second
	arrivalRange = 2.0 // meters
)

// Config holds the walker's starting point, pace and route.
type Config struct {
	StartLat       float64
	StartLon       float64
	SpeedMps       float64
	Heading        float64       // used when Route is empty
	Route          []geo.Point   // waypoints, walked in a loop
	AccuracyMeters float64       // reported accuracy
	JitterMeters   float64       // random displacement applied to reported fixes
	Denied         bool          // simulate a user who declined location access
	Tick           time.Duration // physics step; zero disables the background loop
	Seed           int64
}

// Walker implements location.Provider.
type Walker struct {
	mu       sync.Mutex
	pos      geo.Point
	heading  float64
	config   Config
	waypoint int
	denied   bool
	rng      *rand.Rand
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWalker creates a walker. When cfg.Tick is positive it advances in the background until Close.
func NewWalker(cfg Config) *Walker {
	if cfg.AccuracyMeters <= 0 {
		cfg.AccuracyMeters = 10
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	w := &Walker{
		pos:     geo.Point{Lat: cfg.StartLat, Lon: cfg.StartLon},
		heading: cfg.Heading,
		config:  cfg,
		denied:  cfg.Denied,
		rng:     rand.New(rand.NewSource(seed)),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if cfg.Tick > 0 {
		w.wg.Add(1)
		go w.loop(cfg.Tick)
	}
	return w
}

// CurrentPosition returns the walker's position, or a permission error when denied.
func (w *Walker) CurrentPosition(ctx context.Context, _ time.Duration, accuracy location.Accuracy) (model.Position, error) {
	if err := ctx.Err(); err != nil {
		return model.Position{}, location.Classify(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.denied {
		return model.Position{}, location.NewError(location.CodePermissionDenied, nil)
	}

	p := w.pos
	acc := w.config.AccuracyMeters
	if accuracy == location.AccuracyLow {
		acc *= 5
	}
	if w.config.JitterMeters > 0 {
		p = geo.DestinationPoint(p, w.rng.Float64()*w.config.JitterMeters, w.rng.Float64()*360)
	}
	return model.Position{
		Lat:            p.Lat,
		Lon:            p.Lon,
		AccuracyMeters: acc,
		CapturedAt:     w.now(),
	}, nil
}

// QueryPermission reports the simulated permission state.
func (w *Walker) QueryPermission(context.Context) (location.Permission, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.denied {
		return location.PermissionDenied, nil
	}
	return location.PermissionGranted, nil
}

// SetDenied toggles the simulated permission.
func (w *Walker) SetDenied(denied bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.denied = denied
}

// Teleport moves the walker instantly, e.g. to simulate a large GPS jump.
func (w *Walker) Teleport(lat, lon float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pos = geo.Point{Lat: lat, Lon: lon}
}

// Position returns the true (unjittered) position.
func (w *Walker) Position() geo.Point {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pos
}

// Step advances the simulation by dt.
func (w *Walker) Step(dt time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.update(dt.Seconds())
}

// Close stops the background loop.
func (w *Walker) Close() error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	return nil
}

func (w *Walker) loop(tick time.Duration) {
	defer w.wg.Done()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Step(tick)
		}
	}
}

func (w *Walker) update(dt float64) {
	remaining := w.config.SpeedMps * dt
	if remaining <= 0 {
		return
	}

	if len(w.config.Route) == 0 {
		w.pos = geo.DestinationPoint(w.pos, remaining, w.heading)
		return
	}

	// Walk along waypoints, carrying leftover distance to the next leg.
	for i := 0; i < len(w.config.Route) && remaining > 0; i++ {
		target := w.config.Route[w.waypoint]
		d := geo.Distance(w.pos, target)
		if d <= arrivalRange || d <= remaining {
			w.pos = target
			remaining -= d
			w.waypoint = (w.waypoint + 1) % len(w.config.Route)
			continue
		}
		w.heading = geo.Bearing(w.pos, target)
		w.pos = geo.DestinationPoint(w.pos, remaining, w.heading)
		remaining = 0
	}
}
