package location

import (
	"context"
	"sync"
	"time"

	"wanderguide/pkg/model"
)

// PushReceiver is implemented by providers that learn positions from pushed samples.
type PushReceiver interface {
	Receive(pos model.Position)
}

// PushProvider serves the most recent pushed position to the polling loop.
// A position older than MaxAge is reported as unavailable.
type PushProvider struct {
	mu     sync.RWMutex
	last   model.Position
	maxAge time.Duration
	now    func() time.Time
}

// NewPushProvider creates a provider fed exclusively by pushes.
func NewPushProvider(maxAge time.Duration) *PushProvider {
	return &PushProvider{maxAge: maxAge, now: time.Now}
}

func (p *PushProvider) Receive(pos model.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos.CapturedAt.Before(p.last.CapturedAt) {
		return
	}
	p.last = pos
}

func (p *PushProvider) CurrentPosition(ctx context.Context, _ time.Duration, _ Accuracy) (model.Position, error) {
	if err := ctx.Err(); err != nil {
		return model.Position{}, Classify(err)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last.IsZero() {
		return model.Position{}, NewError(CodePositionUnavailable, nil)
	}
	if p.maxAge > 0 && p.now().Sub(p.last.CapturedAt) > p.maxAge {
		return model.Position{}, NewError(CodePositionUnavailable, nil)
	}
	return p.last, nil
}

// QueryPermission always grants: the pushing client owns the platform permission.
func (p *PushProvider) QueryPermission(context.Context) (Permission, error) {
	return PermissionGranted, nil
}

func (p *PushProvider) Close() error { return nil }
