// Package proximity turns classified readings into tier events and gates them with grace windows.
package proximity

import (
	"sort"
	"time"

	"wanderguide/pkg/model"
)

// Tier is a proximity severity level. A reading falls in the first tier whose MaxDistance covers it.
type Tier struct {
	Name        string  `yaml:"name" json:"name"`
	MaxDistance float64 `yaml:"max_distance" json:"max_distance"`
}

// DefaultTiers are used when no tiers are configured.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "very_close", MaxDistance: 30},
		{Name: "close", MaxDistance: 75},
		{Name: "nearby", MaxDistance: 150},
	}
}

// TransitionKind names a tier state change.
type TransitionKind string

const (
	TierEntered   TransitionKind = "entered"
	TierEscalated TransitionKind = "escalated"
	TierCleared   TransitionKind = "cleared"
)

// Transition is emitted at most once per evaluation.
type Transition struct {
	Kind       TransitionKind         `json:"kind"`
	Tier       Tier                   `json:"tier"`
	Reading    model.ProximityReading `json:"reading"`
	PreviousID string                 `json:"previous_id,omitempty"`
	At         time.Time              `json:"at"`
}

// TierEvaluator tracks the closest POI and fires when it changes.
// It is not safe for concurrent use; each session owns one.
type TierEvaluator struct {
	tiers    []Tier
	escalate bool

	prevID   string
	prevTier int
}

// NewTierEvaluator creates an evaluator. Tiers are checked closest first regardless of input order.
// With escalate set, moving into a more severe tier of the same POI also fires.
func NewTierEvaluator(tiers []Tier, escalate bool) *TierEvaluator {
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MaxDistance < sorted[j].MaxDistance })
	return &TierEvaluator{tiers: sorted, escalate: escalate, prevTier: -1}
}

// Tiers returns the tiers in evaluation order.
func (e *TierEvaluator) Tiers() []Tier {
	return e.tiers
}

// TierOf returns the tier covering distance d, if any.
func (e *TierEvaluator) TierOf(d float64) (Tier, bool) {
	if i := e.tierFor(d); i >= 0 {
		return e.tiers[i], true
	}
	return Tier{}, false
}

func (e *TierEvaluator) tierFor(d float64) int {
	for i, t := range e.tiers {
		if d <= t.MaxDistance {
			return i
		}
	}
	return -1
}

// Evaluate consumes the readings for one sample, sorted closest first.
func (e *TierEvaluator) Evaluate(readings []model.ProximityReading, now time.Time) (Transition, bool) {
	if len(readings) == 0 {
		if e.prevID == "" {
			return Transition{}, false
		}
		tr := Transition{Kind: TierCleared, PreviousID: e.prevID, At: now}
		e.Reset()
		return tr, true
	}

	closest := readings[0]
	idx := e.tierFor(closest.DistanceMeters)

	if closest.POI.ID != e.prevID {
		prev := e.prevID
		e.prevID = closest.POI.ID
		e.prevTier = idx
		if idx < 0 {
			return Transition{}, false
		}
		return Transition{Kind: TierEntered, Tier: e.tiers[idx], Reading: closest, PreviousID: prev, At: now}, true
	}

	if !e.escalate || idx < 0 {
		return Transition{}, false
	}
	if e.prevTier >= 0 && idx >= e.prevTier {
		return Transition{}, false
	}
	e.prevTier = idx
	return Transition{Kind: TierEscalated, Tier: e.tiers[idx], Reading: closest, At: now}, true
}

// Previous returns the id of the closest POI seen last, or "".
func (e *TierEvaluator) Previous() string {
	return e.prevID
}

// Reset forgets the previous closest POI.
func (e *TierEvaluator) Reset() {
	e.prevID = ""
	e.prevTier = -1
}
