package config

import (
	"context"
	"strconv"
	"time"

	"wanderguide/pkg/store"
)

// Provider defines the interface for accessing unified configuration.
type Provider interface {
	// Proximity
	ContextualRadius(ctx context.Context) float64
	EscalateTiers(ctx context.Context) bool

	// Pitch
	PitchEnabled(ctx context.Context) bool
	PitchInterval(ctx context.Context) (time.Duration, time.Duration)
	PitchCooldown(ctx context.Context) time.Duration
	PitchRadius(ctx context.Context) float64

	// General
	LocationProvider(ctx context.Context) string
	Language(ctx context.Context) string

	// Raw access (for components that need deep access)
	AppConfig() *Config
}

// UnifiedProvider implements Provider by bridging static Config and persistent Store.
type UnifiedProvider struct {
	base  *Config
	store store.StateStore
}

// NewProvider creates a new UnifiedProvider.
func NewProvider(base *Config, st store.StateStore) *UnifiedProvider {
	return &UnifiedProvider{
		base:  base,
		store: st,
	}
}

func (p *UnifiedProvider) AppConfig() *Config { return p.base }

// --- Implementations ---

func (p *UnifiedProvider) ContextualRadius(ctx context.Context) float64 {
	v := p.getDistance(ctx, KeyContextualRadius, float64(p.base.Proximity.ContextualRadius))
	if v <= 0 {
		return float64(p.base.Proximity.ContextualRadius)
	}
	return v
}

func (p *UnifiedProvider) EscalateTiers(ctx context.Context) bool {
	return p.getBool(ctx, KeyEscalateTiers, p.base.Proximity.EscalateTiers)
}

func (p *UnifiedProvider) PitchEnabled(ctx context.Context) bool {
	return p.getBool(ctx, KeyPitchEnabled, p.base.Pitch.Enabled)
}

// PitchInterval returns the bounds of the randomized pitch period. max is never below min.
func (p *UnifiedProvider) PitchInterval(ctx context.Context) (time.Duration, time.Duration) {
	lo := p.getDuration(ctx, KeyPitchIntervalMin, time.Duration(p.base.Pitch.IntervalMin))
	hi := p.getDuration(ctx, KeyPitchIntervalMax, time.Duration(p.base.Pitch.IntervalMax))
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func (p *UnifiedProvider) PitchCooldown(ctx context.Context) time.Duration {
	return p.getDuration(ctx, KeyPitchCooldown, time.Duration(p.base.Pitch.Cooldown))
}

func (p *UnifiedProvider) PitchRadius(ctx context.Context) float64 {
	return p.getDistance(ctx, KeyPitchRadius, float64(p.base.Pitch.Radius))
}

func (p *UnifiedProvider) LocationProvider(ctx context.Context) string {
	fallback := p.base.Location.Provider
	if fallback == "" {
		fallback = "mock"
	}
	return p.getString(ctx, KeyLocationProvider, fallback)
}

func (p *UnifiedProvider) Language(ctx context.Context) string {
	fallback := p.base.Enrichment.Language
	if fallback == "" {
		fallback = "en"
	}
	return p.getString(ctx, KeyLanguage, fallback)
}

// --- Helpers ---

func (p *UnifiedProvider) getString(ctx context.Context, key, fallback string) string {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val
		}
	}
	return fallback
}

func (p *UnifiedProvider) getBool(ctx context.Context, key string, fallback bool) bool {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val == "true"
		}
	}
	return fallback
}

func (p *UnifiedProvider) getDistance(ctx context.Context, key string, fallback float64) float64 {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if d, err := ParseDistance(val); err == nil {
				return d
			}
		}
	}
	return fallback
}

func (p *UnifiedProvider) getDuration(ctx context.Context, key string, fallback time.Duration) time.Duration {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if dur, err := ParseDuration(val); err == nil {
				return dur
			}
		}
	}
	return fallback
}

// FormatBool renders a bool the way getBool reads it back.
func FormatBool(v bool) string { return strconv.FormatBool(v) }
