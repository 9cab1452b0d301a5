package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wanderguide/pkg/model"
)

func TestBus_SubscribeUnsubscribe(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(4, nil)
	assert.Equal(t, 1, b.Len())

	b.Publish(model.Event{Type: model.EventTierEntered, Title: "Old Town Hall"})
	ev := <-sub.Events()
	assert.Equal(t, model.EventTierEntered, ev.Type)

	b.Unsubscribe(sub.ID)
	assert.Zero(t, b.Len())
	_, ok := <-sub.Events()
	assert.False(t, ok, "channel closed after unsubscribe")

	b.Unsubscribe("nonexistent")
}

func TestBus_Filter(t *testing.T) {
	b := NewBus()
	s1 := b.Subscribe(4, SessionFilter("s1"))
	all := b.Subscribe(4, nil)

	b.Publish(model.Event{Type: model.EventDispatchSent, SessionID: "s2"})
	b.Publish(model.Event{Type: model.EventDispatchSent, SessionID: "s1"})
	b.Publish(model.Event{Type: model.EventLocationFailed})

	assert.Len(t, s1.Events(), 2)
	assert.Len(t, all.Events(), 3)
	assert.Equal(t, "s1", (<-s1.Events()).SessionID)
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(1, nil)

	for i := 0; i < 5; i++ {
		b.Publish(model.Event{Type: model.EventTierCleared})
	}
	assert.Equal(t, int64(4), sub.Dropped())
	assert.Equal(t, int64(5), b.Published())
}

func TestBus_Close(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(1, nil)
	b.Close()
	b.Close()

	_, ok := <-sub.Events()
	require.False(t, ok)

	late := b.Subscribe(1, nil)
	_, ok = <-late.Events()
	assert.False(t, ok, "subscribing to a closed bus yields a closed channel")

	b.Publish(model.Event{Type: model.EventTierCleared})
	assert.Zero(t, b.Published())
}
