package proximity

import (
	"sync"
	"time"

	"wanderguide/pkg/geo"
	"wanderguide/pkg/model"
)

// WindowKind identifies a suppression window.
type WindowKind string

const (
	WindowInitialization WindowKind = "initialization"
	WindowMovement       WindowKind = "movement"
	WindowResume         WindowKind = "resume"
)

// Window is a span of time during which proximity decisions are suppressed.
type Window struct {
	Kind      WindowKind    `json:"kind"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// EndsAt returns the instant the window closes.
func (w Window) EndsAt() time.Time {
	return w.StartedAt.Add(w.Duration)
}

// Covers reports whether now falls inside the window.
func (w Window) Covers(now time.Time) bool {
	return !now.Before(w.StartedAt) && now.Before(w.EndsAt())
}

// GraceConfig holds window durations and the significant-movement threshold in meters.
type GraceConfig struct {
	Initialization      time.Duration
	Movement            time.Duration
	Resume              time.Duration
	SignificantMovement float64
}

// DefaultGraceConfig returns the stock durations.
func DefaultGraceConfig() GraceConfig {
	return GraceConfig{
		Initialization:      15 * time.Second,
		Movement:            8 * time.Second,
		Resume:              5 * time.Second,
		SignificantMovement: 150,
	}
}

// GraceController holds the three suppression windows of one session.
// All methods take the caller's "now" so one sample is judged against a single instant.
type GraceController struct {
	cfg GraceConfig

	mu      sync.Mutex
	windows map[WindowKind]Window
	last    model.Position
	hasLast bool
}

// NewGraceController creates a controller with no open windows.
func NewGraceController(cfg GraceConfig) *GraceController {
	return &GraceController{cfg: cfg, windows: make(map[WindowKind]Window)}
}

func (g *GraceController) duration(kind WindowKind) time.Duration {
	switch kind {
	case WindowInitialization:
		return g.cfg.Initialization
	case WindowMovement:
		return g.cfg.Movement
	case WindowResume:
		return g.cfg.Resume
	}
	return 0
}

// Open starts (or restarts) the window of the given kind at now.
func (g *GraceController) Open(kind WindowKind, now time.Time) Window {
	w := Window{Kind: kind, StartedAt: now, Duration: g.duration(kind)}
	g.mu.Lock()
	defer g.mu.Unlock()
	if w.Duration > 0 {
		g.windows[kind] = w
	}
	return w
}

// Start opens the initialization window for a new session.
func (g *GraceController) Start(now time.Time) {
	g.Open(WindowInitialization, now)
}

// Resume opens the resume window after the app returns to the foreground.
func (g *GraceController) Resume(now time.Time) {
	g.Open(WindowResume, now)
}

// ObservePosition compares pos with the previous sample and opens the movement
// window when the jump exceeds the significant-movement threshold.
func (g *GraceController) ObservePosition(pos model.Position, now time.Time) (Window, bool) {
	g.mu.Lock()
	prev, had := g.last, g.hasLast
	g.last, g.hasLast = pos, true
	g.mu.Unlock()

	if !had || g.cfg.SignificantMovement <= 0 {
		return Window{}, false
	}
	if geo.Distance(geo.FromPosition(prev), geo.FromPosition(pos)) <= g.cfg.SignificantMovement {
		return Window{}, false
	}
	return g.Open(WindowMovement, now), true
}

// Suppressed reports whether any window covers now, and which one ends last.
func (g *GraceController) Suppressed(now time.Time) (Window, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var longest Window
	found := false
	for kind, w := range g.windows {
		if !w.Covers(now) {
			if !now.Before(w.EndsAt()) {
				delete(g.windows, kind)
			}
			continue
		}
		if !found || w.EndsAt().After(longest.EndsAt()) {
			longest = w
			found = true
		}
	}
	return longest, found
}

// Active returns the windows covering now.
func (g *GraceController) Active(now time.Time) []Window {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Window
	for _, kind := range []WindowKind{WindowInitialization, WindowMovement, WindowResume} {
		if w, ok := g.windows[kind]; ok && w.Covers(now) {
			out = append(out, w)
		}
	}
	return out
}

// ResetAll closes every window and forgets the previous sample.
func (g *GraceController) ResetAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.windows = make(map[WindowKind]Window)
	g.last = model.Position{}
	g.hasLast = false
}
