package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wanderguide/pkg/config"
	"wanderguide/pkg/location"
	"wanderguide/pkg/model"
	"wanderguide/pkg/notify"
)

// LocationSource is the sample stream the scheduler drives the engine from.
type LocationSource interface {
	Start(ctx context.Context) (<-chan location.Sample, error)
	Stop() error
	RequestFix()
	CurrentPermission() location.Permission
}

// PositionSink consumes successful fixes.
type PositionSink interface {
	HandlePosition(pos model.Position)
}

// Scheduler manages the central heartbeat: it forwards samples to the sink,
// reports location failures and permission changes, and runs jobs.
type Scheduler struct {
	cfg    config.Provider
	source LocationSource
	sink   PositionSink
	bus    *notify.Bus
	now    func() time.Time
	logger *slog.Logger
	fix    *FixJob
	jobs   []Job
	wg     sync.WaitGroup

	mu         sync.Mutex
	inflight   map[Job]struct{}
	last       model.Position
	permission location.Permission
}

// NewScheduler creates a new Scheduler. bus may be nil.
func NewScheduler(cfg config.Provider, source LocationSource, sink PositionSink, bus *notify.Bus) *Scheduler {
	app := cfg.AppConfig()
	s := &Scheduler{
		cfg:    cfg,
		source: source,
		sink:   sink,
		bus:    bus,
		now:    time.Now,
		logger: slog.With("component", "scheduler"),

		inflight:   make(map[Job]struct{}),
		permission: location.PermissionUnknown,
	}
	s.fix = NewFixJob(app.Grace.SignificantMovement.Meters(), time.Duration(app.Grace.Movement), source.RequestFix)
	s.jobs = []Job{s.fix}
	return s
}

// AddJob registers a job.
func (s *Scheduler) AddJob(j Job) {
	s.jobs = append(s.jobs, j)
}

// LastPosition returns the most recent fix seen by the scheduler.
func (s *Scheduler) LastPosition() (model.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, !s.last.IsZero()
}

// Run starts the location source and blocks until ctx is cancelled or the stream ends.
// The source is stopped and all running jobs are awaited before it returns.
func (s *Scheduler) Run(ctx context.Context) error {
	samples, err := s.source.Start(ctx)
	if err != nil {
		s.reportFailure(err)
		s.checkPermission()
		return fmt.Errorf("start location source: %w", err)
	}
	defer func() {
		if err := s.source.Stop(); err != nil {
			s.logger.Warn("Failed to stop location source", "error", err)
		}
		s.wg.Wait()
	}()

	interval := time.Duration(s.cfg.AppConfig().Triggers.Tick)
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Scheduler started", "interval", interval, "jobs", len(s.jobs))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case smp, ok := <-samples:
			if !ok {
				s.logger.Info("Location stream closed")
				return nil
			}
			s.handle(ctx, smp)
		case <-ticker.C:
			pos, _ := s.LastPosition()
			s.tick(ctx, pos, s.now())
		}
	}
}

func (s *Scheduler) handle(ctx context.Context, smp location.Sample) {
	defer s.checkPermission()

	if smp.Err != nil {
		s.reportFailure(smp.Err)
		return
	}

	now := s.now()
	s.mu.Lock()
	s.last = smp.Position
	s.mu.Unlock()

	s.fix.Observe(smp.Position, now)
	s.sink.HandlePosition(smp.Position)
	s.tick(ctx, smp.Position, now)
}

// tick evaluates every idle job. A job is never launched again before its previous
// run returned.
func (s *Scheduler) tick(ctx context.Context, pos model.Position, now time.Time) {
	for _, job := range s.jobs {
		if !s.claim(job) {
			continue
		}
		if !job.ShouldFire(pos, now) {
			s.release(job)
			continue
		}
		s.wg.Add(1)
		go func(j Job) {
			defer s.wg.Done()
			defer s.release(j)
			j.Run(ctx, pos, now)
		}(job)
	}
}

func (s *Scheduler) claim(j Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[j]; busy {
		return false
	}
	s.inflight[j] = struct{}{}
	return true
}

func (s *Scheduler) release(j Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, j)
}

func (s *Scheduler) reportFailure(err error) {
	code := location.CodeOf(err)
	if !errors.Is(err, context.Canceled) {
		s.logger.Warn("Location unavailable", "code", code, "error", err)
	}
	s.publish(model.Event{
		Type:    model.EventLocationFailed,
		Title:   "Location unavailable",
		Summary: code.String(),
		Data:    map[string]any{"code": code.String(), "error": err.Error()},
	})
}

func (s *Scheduler) checkPermission() {
	p := s.source.CurrentPermission()

	s.mu.Lock()
	prev := s.permission
	s.permission = p
	s.mu.Unlock()

	if prev == p {
		return
	}
	s.logger.Info("Location permission changed", "from", prev, "to", p)
	s.publish(model.Event{
		Type:    model.EventPermissionChanged,
		Title:   "Location permission " + string(p),
		Summary: fmt.Sprintf("%s -> %s", prev, p),
		Data:    map[string]string{"permission": string(p)},
	})
}

func (s *Scheduler) publish(ev model.Event) {
	if s.bus == nil {
		return
	}
	ev.Timestamp = s.now()
	s.bus.Publish(ev)
}
