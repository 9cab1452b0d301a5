package session

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned for unknown conversation ids.
var ErrNotFound = errors.New("session not found")

// Manager holds exactly one State per conversation id.
type Manager struct {
	mu     sync.RWMutex
	cfg    LedgerConfig
	states map[string]*State
	now    func() time.Time
}

// NewManager creates a new session manager.
func NewManager(cfg LedgerConfig) *Manager {
	return &Manager{
		cfg:    cfg,
		states: make(map[string]*State),
		now:    time.Now,
	}
}

// SetLedgerConfig changes the config used for sessions started afterwards.
func (m *Manager) SetLedgerConfig(cfg LedgerConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// Start creates a fresh State for id. Any previous state under the same id is
// cleared and returned so the caller can tear down what belonged to it.
func (m *Manager) Start(id string) (st *State, previous *State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.states[id]; ok {
		old.Clear()
		previous = old
	}
	st = NewState(id, m.cfg, m.now())
	m.states[id] = st
	slog.Info("Session: started", "session_id", id, "replaced", previous != nil)
	return st, previous
}

// Stop clears and discards the state for id.
func (m *Manager) Stop(id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[id]
	if !ok {
		return nil, ErrNotFound
	}
	st.Clear()
	delete(m.states, id)
	slog.Info("Session: stopped", "session_id", id)
	return st, nil
}

// Get returns the state for id.
func (m *Manager) Get(id string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[id]
	if !ok {
		return nil, ErrNotFound
	}
	return st, nil
}

// IDs returns the active conversation ids, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of active sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
