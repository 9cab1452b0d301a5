// Package notify fans engine events out to an explicit list of subscribers.
package notify

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"wanderguide/pkg/logging"
	"wanderguide/pkg/model"
)

const defaultBuffer = 32

// Subscription is one registered consumer.
type Subscription struct {
	ID     string
	Filter func(ev model.Event) bool // nil accepts everything

	ch      chan model.Event
	dropped atomic.Int64
}

// Events returns the channel the subscriber reads from. It is closed on Unsubscribe or Close.
func (s *Subscription) Events() <-chan model.Event { return s.ch }

// Dropped returns how many events were discarded because the subscriber lagged.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Bus delivers events to its subscribers without ever blocking the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool

	// LogEvents appends published events to the events log.
	LogEvents bool

	published atomic.Int64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*Subscription)}
}

// Subscribe registers a subscriber with the given channel buffer.
func (b *Bus) Subscribe(buffer int, filter func(model.Event) bool) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	sub := &Subscription{
		ID:     uuid.NewString(),
		Filter: filter,
		ch:     make(chan model.Event, buffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}

// Publish delivers ev to every subscriber whose filter accepts it.
// Lagging subscribers lose the event instead of stalling the engine.
func (b *Bus) Publish(ev model.Event) {
	if b.LogEvents {
		logging.LogEvent(&ev)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.published.Add(1)
	for _, sub := range b.subs {
		if sub.Filter != nil && !sub.Filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			if sub.dropped.Add(1) == 1 {
				slog.Warn("Event subscriber is lagging", "subscriber", sub.ID)
			}
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Published returns the number of events accepted for delivery.
func (b *Bus) Published() int64 {
	return b.published.Load()
}

// Close unsubscribes everybody. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// SessionFilter accepts events of one session plus session-less events.
func SessionFilter(sessionID string) func(model.Event) bool {
	return func(ev model.Event) bool {
		return ev.SessionID == "" || ev.SessionID == sessionID
	}
}
