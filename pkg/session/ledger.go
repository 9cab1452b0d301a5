package session

import (
	"time"

	"wanderguide/pkg/model"
)

// LedgerConfig controls the announce decision.
type LedgerConfig struct {
	ContextualRadius float64 // meters; first encounters must be within this
	ReapproachRatio  float64 // a mentioned POI is eligible again below last distance * ratio
}

// DefaultLedgerConfig returns the stock values.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{ContextualRadius: 150, ReapproachRatio: 0.8}
}

// Ledger records which POIs were announced in one conversation and at what distance.
// It is not safe for concurrent use; State serializes access.
type Ledger struct {
	cfg LedgerConfig

	mentioned     map[string]struct{}
	lastDistance  map[string]float64
	lastPitchAt   map[string]time.Time
	lastMentionAt map[string]time.Time
}

// NewLedger creates an empty ledger.
func NewLedger(cfg LedgerConfig) *Ledger {
	def := DefaultLedgerConfig()
	if cfg.ContextualRadius <= 0 {
		cfg.ContextualRadius = def.ContextualRadius
	}
	if cfg.ReapproachRatio <= 0 || cfg.ReapproachRatio >= 1 {
		cfg.ReapproachRatio = def.ReapproachRatio
	}
	l := &Ledger{cfg: cfg}
	l.clear()
	return l
}

func (l *Ledger) clear() {
	l.mentioned = make(map[string]struct{})
	l.lastDistance = make(map[string]float64)
	l.lastPitchAt = make(map[string]time.Time)
	l.lastMentionAt = make(map[string]time.Time)
}

// SetContextualRadius changes the first-encounter radius for later decisions.
func (l *Ledger) SetContextualRadius(r float64) {
	if r > 0 {
		l.cfg.ContextualRadius = r
	}
}

// Mentioned reports whether the POI was ever announced in this conversation.
func (l *Ledger) Mentioned(id string) bool {
	_, ok := l.mentioned[id]
	return ok
}

// LastDistance returns the distance recorded for the POI.
func (l *Ledger) LastDistance(id string) (float64, bool) {
	d, ok := l.lastDistance[id]
	return d, ok
}

// ShouldAnnounce decides whether a POI at distance d qualifies for a contextual update.
// It does not modify the ledger.
func (l *Ledger) ShouldAnnounce(id string, d float64) bool {
	if !l.Mentioned(id) {
		return d <= l.cfg.ContextualRadius
	}
	last, ok := l.lastDistance[id]
	if !ok {
		return false
	}
	return d < last*l.cfg.ReapproachRatio
}

// MarkAnnounced records a delivered contextual update.
func (l *Ledger) MarkAnnounced(id string, d float64, now time.Time) {
	l.mentioned[id] = struct{}{}
	l.lastDistance[id] = d
	l.lastMentionAt[id] = now
}

// Reconcile prepares the ledger for one evaluation cycle: distances of POIs that left
// the nearby set are dropped, and mentioned POIs that came back in range get their
// current distance as the baseline for a later re-approach.
func (l *Ledger) Reconcile(nearby []model.ProximityReading) {
	present := make(map[string]struct{}, len(nearby))
	for _, r := range nearby {
		present[r.POI.ID] = struct{}{}
	}
	for id := range l.lastDistance {
		if _, ok := present[id]; !ok {
			delete(l.lastDistance, id)
		}
	}
	for _, r := range nearby {
		if r.DistanceMeters > l.cfg.ContextualRadius || !l.Mentioned(r.POI.ID) {
			continue
		}
		if _, ok := l.lastDistance[r.POI.ID]; !ok {
			l.lastDistance[r.POI.ID] = r.DistanceMeters
		}
	}
}

// PitchEligible reports whether a POI may be pitched: it was neither announced nor
// pitched within the cooldown.
func (l *Ledger) PitchEligible(id string, now time.Time, cooldown time.Duration) bool {
	last := l.lastMentionAt[id]
	if p := l.lastPitchAt[id]; p.After(last) {
		last = p
	}
	return last.IsZero() || now.Sub(last) >= cooldown
}

// MarkPitched records a delivered periodic pitch. The distance is only kept when the
// POI is within the contextual radius.
func (l *Ledger) MarkPitched(id string, d float64, now time.Time) {
	l.mentioned[id] = struct{}{}
	l.lastPitchAt[id] = now
	if d <= l.cfg.ContextualRadius {
		l.lastDistance[id] = d
	}
}

// Reset forgets everything.
func (l *Ledger) Reset() {
	l.clear()
}
