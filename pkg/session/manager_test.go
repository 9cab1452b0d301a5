package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wanderguide/pkg/model"
)

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(DefaultLedgerConfig())

	st, prev := m.Start("conv-1")
	require.NotNil(t, st)
	assert.Nil(t, prev)
	assert.True(t, st.Active())
	assert.Equal(t, "conv-1", st.ID())
	assert.Equal(t, 1, m.Len())

	got, err := m.Get("conv-1")
	require.NoError(t, err)
	assert.Same(t, st, got)

	stopped, err := m.Stop("conv-1")
	require.NoError(t, err)
	assert.False(t, stopped.Active())
	assert.Equal(t, 0, m.Len())

	_, err = m.Get("conv-1")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = m.Stop("conv-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_RestartWipesState(t *testing.T) {
	m := NewManager(DefaultLedgerConfig())
	first, _ := m.Start("conv")
	first.WithLedger(func(l *Ledger) { l.MarkAnnounced("x", 100, t0) })
	first.RecordDispatch(true, t0)

	second, prev := m.Start("conv")
	assert.Same(t, first, prev)
	assert.False(t, first.Active(), "previous state is deactivated")
	assert.NotSame(t, first, second)

	second.WithLedger(func(l *Ledger) {
		assert.False(t, l.Mentioned("x"), "no leakage across restarts")
	})
	assert.True(t, second.LastOverallUpdateAt().IsZero())
	assert.Equal(t, 1, m.Len())
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	m := NewManager(DefaultLedgerConfig())
	a, _ := m.Start("a")
	b, _ := m.Start("b")

	a.WithLedger(func(l *Ledger) { l.MarkAnnounced("poi", 50, t0) })
	b.WithLedger(func(l *Ledger) {
		assert.False(t, l.Mentioned("poi"))
	})
	assert.Equal(t, []string{"a", "b"}, m.IDs())
}

func TestState_Snapshot(t *testing.T) {
	st := NewState("s", DefaultLedgerConfig(), t0)
	st.WithLedger(func(l *Ledger) {
		l.MarkAnnounced("b", 90, t0)
		l.MarkAnnounced("a", 60, t0)
		l.MarkPitched("c", 500, t0.Add(time.Minute))
	})
	st.RecordDispatch(true, t0.Add(time.Minute))
	st.RecordDispatch(false, t0.Add(2*time.Minute))
	st.SetLastPosition(model.Position{Lat: 1, Lon: 2, CapturedAt: t0})

	snap := st.Snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, snap.Mentioned)
	assert.Equal(t, 90.0, snap.LastDistance["b"])
	assert.Equal(t, t0.Add(time.Minute), snap.LastPeriodicPitchAt["c"])
	assert.Equal(t, t0.Add(time.Minute), snap.LastOverallUpdateAt, "drops do not count as updates")
	assert.Equal(t, 1, snap.Dispatched)
	assert.Equal(t, 1, snap.Dropped)
	require.NotNil(t, snap.LastPosition)
	assert.Equal(t, 2.0, snap.LastPosition.Lon)

	st.Clear()
	snap = st.Snapshot()
	assert.False(t, snap.Active)
	assert.Empty(t, snap.Mentioned)
	assert.Nil(t, snap.LastPosition)
}
