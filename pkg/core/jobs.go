package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"wanderguide/pkg/geo"
	"wanderguide/pkg/model"
)

// Job defines a scheduled task.
type Job interface {
	Name() string
	ShouldFire(pos model.Position, now time.Time) bool
	Run(ctx context.Context, pos model.Position, now time.Time)
}

// BaseJob provides atomic running state to prevent re-entry.
type BaseJob struct {
	name    string
	running int32 // 1 if running, 0 otherwise
}

func NewBaseJob(name string) BaseJob {
	return BaseJob{name: name}
}

func (b *BaseJob) Name() string {
	return b.name
}

// TryLock attempts to set running to 1. Returns true if successful.
func (b *BaseJob) TryLock() bool {
	return atomic.CompareAndSwapInt32(&b.running, 0, 1)
}

func (b *BaseJob) Unlock() {
	atomic.StoreInt32(&b.running, 0)
}

func (b *BaseJob) busy() bool {
	return atomic.LoadInt32(&b.running) == 1
}

// DistanceJob fires when distance traveled exceeds threshold.
type DistanceJob struct {
	BaseJob
	mu        sync.Mutex
	lastPos   geo.Point
	threshold float64 // meters
	action    func(context.Context, model.Position)
	firstRun  bool
}

func NewDistanceJob(name string, thresholdMeters float64, action func(context.Context, model.Position)) *DistanceJob {
	return &DistanceJob{
		BaseJob:   NewBaseJob(name),
		threshold: thresholdMeters,
		action:    action,
		firstRun:  true,
	}
}

func (j *DistanceJob) ShouldFire(pos model.Position, _ time.Time) bool {
	if j.busy() || pos.IsZero() {
		return false
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.firstRun {
		return true
	}
	return geo.Distance(j.lastPos, geo.FromPosition(pos)) >= j.threshold
}

func (j *DistanceJob) Run(ctx context.Context, pos model.Position, _ time.Time) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()

	j.mu.Lock()
	j.lastPos = geo.FromPosition(pos)
	j.firstRun = false
	j.mu.Unlock()

	j.action(ctx, pos)
}

// TimeJob fires when time elapsed exceeds threshold.
type TimeJob struct {
	BaseJob
	mu        sync.Mutex
	lastTime  time.Time
	threshold time.Duration
	action    func(context.Context)
	firstRun  bool
}

func NewTimeJob(name string, threshold time.Duration, action func(context.Context)) *TimeJob {
	return &TimeJob{
		BaseJob:   NewBaseJob(name),
		threshold: threshold,
		action:    action,
		firstRun:  true,
	}
}

func (j *TimeJob) ShouldFire(_ model.Position, now time.Time) bool {
	if j.busy() {
		return false
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.firstRun {
		return true
	}
	return now.Sub(j.lastTime) >= j.threshold
}

func (j *TimeJob) Run(ctx context.Context, _ model.Position, now time.Time) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()

	j.mu.Lock()
	j.lastTime = now
	j.firstRun = false
	j.mu.Unlock()

	j.action(ctx)
}

// FixJob asks the location source for a fresh fix once the movement window
// opened by a significant jump has closed, so the new neighbourhood is evaluated
// without waiting for the next poll.
type FixJob struct {
	BaseJob
	mu        sync.Mutex
	last      geo.Point
	hasLast   bool
	fixAt     time.Time
	threshold float64
	delay     time.Duration
	request   func()
}

func NewFixJob(thresholdMeters float64, delay time.Duration, request func()) *FixJob {
	return &FixJob{
		BaseJob:   NewBaseJob("MovementFix"),
		threshold: thresholdMeters,
		delay:     delay,
		request:   request,
	}
}

// Observe records a sample. A jump beyond the threshold (re)arms the fix.
func (j *FixJob) Observe(pos model.Position, now time.Time) {
	if pos.IsZero() {
		return
	}
	p := geo.FromPosition(pos)

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.hasLast && geo.Distance(j.last, p) > j.threshold {
		j.fixAt = now.Add(j.delay)
	}
	j.last, j.hasLast = p, true
}

func (j *FixJob) ShouldFire(_ model.Position, now time.Time) bool {
	if j.busy() {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return !j.fixAt.IsZero() && !now.Before(j.fixAt)
}

func (j *FixJob) Run(_ context.Context, _ model.Position, now time.Time) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()

	j.mu.Lock()
	if j.fixAt.IsZero() || now.Before(j.fixAt) {
		j.mu.Unlock()
		return
	}
	j.fixAt = time.Time{}
	j.mu.Unlock()

	j.request()
}
