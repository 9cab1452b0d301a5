package session

import (
	"sort"
	"sync"
	"time"

	"wanderguide/pkg/model"
)

// State is the per-conversation state owned by the dispatcher.
type State struct {
	id        string
	startedAt time.Time

	mu                  sync.Mutex
	ledger              *Ledger
	active              bool
	lastOverallUpdateAt time.Time
	lastPosition        model.Position
	dispatched          int
	dropped             int
}

// NewState creates an active state.
func NewState(id string, cfg LedgerConfig, now time.Time) *State {
	return &State{
		id:        id,
		startedAt: now,
		ledger:    NewLedger(cfg),
		active:    true,
	}
}

func (s *State) ID() string { return s.id }

// Active reports whether the session is still running.
func (s *State) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// WithLedger runs fn with exclusive access to the ledger.
func (s *State) WithLedger(fn func(l *Ledger)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.ledger)
}

// RecordDispatch updates the counters and, on success, the overall update time.
func (s *State) RecordDispatch(sent bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !sent {
		s.dropped++
		return
	}
	s.dispatched++
	s.lastOverallUpdateAt = now
}

// LastOverallUpdateAt returns when the last update of any kind was delivered.
func (s *State) LastOverallUpdateAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOverallUpdateAt
}

// SetLastPosition stores the most recent processed position.
func (s *State) SetLastPosition(p model.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPosition = p
}

// LastPosition returns the most recent processed position.
func (s *State) LastPosition() (model.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPosition, !s.lastPosition.IsZero()
}

// Clear wipes the ledger and marks the state inactive.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.Reset()
	s.active = false
	s.lastOverallUpdateAt = time.Time{}
	s.lastPosition = model.Position{}
}

// Snapshot is a read-only copy of the state for diagnostics.
type Snapshot struct {
	ID                  string               `json:"id"`
	Active              bool                 `json:"active"`
	StartedAt           time.Time            `json:"started_at"`
	Mentioned           []string             `json:"mentioned"`
	LastDistance        map[string]float64   `json:"last_distance"`
	LastPeriodicPitchAt map[string]time.Time `json:"last_periodic_pitch_at"`
	LastOverallUpdateAt time.Time            `json:"last_overall_update_at"`
	LastPosition        *model.Position      `json:"last_position,omitempty"`
	Dispatched          int                  `json:"dispatched"`
	Dropped             int                  `json:"dropped"`
}

// Snapshot copies the state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:                  s.id,
		Active:              s.active,
		StartedAt:           s.startedAt,
		Mentioned:           make([]string, 0, len(s.ledger.mentioned)),
		LastDistance:        make(map[string]float64, len(s.ledger.lastDistance)),
		LastPeriodicPitchAt: make(map[string]time.Time, len(s.ledger.lastPitchAt)),
		LastOverallUpdateAt: s.lastOverallUpdateAt,
		Dispatched:          s.dispatched,
		Dropped:             s.dropped,
	}
	for id := range s.ledger.mentioned {
		snap.Mentioned = append(snap.Mentioned, id)
	}
	sort.Strings(snap.Mentioned)
	for id, d := range s.ledger.lastDistance {
		snap.LastDistance[id] = d
	}
	for id, t := range s.ledger.lastPitchAt {
		snap.LastPeriodicPitchAt[id] = t
	}
	if !s.lastPosition.IsZero() {
		p := s.lastPosition
		snap.LastPosition = &p
	}
	return snap
}
