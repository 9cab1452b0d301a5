package location

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"wanderguide/pkg/model"
)

// Config configures a Source.
type Config struct {
	PollInterval time.Duration
	FixTimeout   time.Duration
	HighAccuracy bool
	Buffer       int
}

// Source polls a platform provider and also accepts pushed samples.
// Failures are delivered on the stream as typed errors and never stop the loop.
type Source struct {
	provider Provider
	perm     *PermissionChecker
	cfg      Config
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	ctx     context.Context
	out     chan Sample
	fixCh   chan struct{}
	pushCh  chan model.Position
	last    model.Position
	wg      sync.WaitGroup
}

// NewSource creates a Source. perm may be nil, in which case one is built with defaults.
func NewSource(p Provider, perm *PermissionChecker, cfg Config) *Source {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Second
	}
	if cfg.FixTimeout <= 0 {
		cfg.FixTimeout = 12 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 8
	}
	if perm == nil {
		perm = NewPermissionChecker(p, PermissionConfig{})
	}
	return &Source{
		provider: p,
		perm:     perm,
		cfg:      cfg,
		logger:   slog.With("component", "location"),
	}
}

// Start begins polling and returns the sample stream. It fails with ErrPermissionDenied
// when the platform has denied access. The stream closes after Stop or when ctx ends.
func (s *Source) Start(ctx context.Context) (<-chan Sample, error) {
	if s.perm.Check(ctx) == PermissionDenied {
		return nil, NewError(CodePermissionDenied, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrNotRunning
	}
	if s.running {
		return nil, ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.ctx = runCtx
	s.cancel = cancel
	s.out = make(chan Sample, s.cfg.Buffer)
	s.fixCh = make(chan struct{}, 1)
	s.pushCh = make(chan model.Position)
	s.running = true

	s.wg.Add(1)
	go s.run(runCtx, s.out, s.fixCh, s.pushCh)

	s.logger.Info("Location source started", "poll_interval", s.cfg.PollInterval)
	return s.out, nil
}

// Stop cancels the polling loop and releases the platform handle. It is safe to call twice.
func (s *Source) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("Location source stopped")
	return s.provider.Close()
}

// RequestFix triggers an immediate out-of-band fetch. Repeated requests coalesce.
func (s *Source) RequestFix() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	select {
	case s.fixCh <- struct{}{}:
	default:
	}
}

// Push injects a platform-pushed sample into the stream.
func (s *Source) Push(ctx context.Context, pos model.Position) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	pushCh, runCtx := s.pushCh, s.ctx
	s.mu.Unlock()

	if pos.CapturedAt.IsZero() {
		pos.CapturedAt = time.Now()
	}
	select {
	case pushCh <- pos:
		return nil
	case <-runCtx.Done():
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentPosition fetches a single fix bounded by timeout (the configured fix timeout when zero).
func (s *Source) CurrentPosition(ctx context.Context, timeout time.Duration) (model.Position, error) {
	if timeout <= 0 {
		timeout = s.cfg.FixTimeout
	}
	pos, err := s.fetch(ctx, timeout)
	if err != nil {
		return model.Position{}, err
	}
	return pos, nil
}

// LastPosition returns the most recent successful fix.
func (s *Source) LastPosition() (model.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, !s.last.IsZero()
}

// Permission returns the current permission state.
func (s *Source) Permission(ctx context.Context) Permission {
	return s.perm.Check(ctx)
}

// CurrentPermission returns the last known permission state without asking the platform.
func (s *Source) CurrentPermission() Permission {
	return s.perm.Current()
}

func (s *Source) accuracy() Accuracy {
	if s.cfg.HighAccuracy {
		return AccuracyHigh
	}
	return AccuracyLow
}

func (s *Source) fetch(ctx context.Context, timeout time.Duration) (model.Position, error) {
	fixCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pos, err := s.provider.CurrentPosition(fixCtx, timeout, s.accuracy())
	if err != nil {
		if ctx.Err() == nil && errors.Is(fixCtx.Err(), context.DeadlineExceeded) {
			err = NewError(CodeTimeout, err)
		}
		err = Classify(err)
		if errors.Is(err, ErrPermissionDenied) {
			s.perm.Record(PermissionDenied)
		}
		return model.Position{}, err
	}

	if pos.CapturedAt.IsZero() {
		pos.CapturedAt = time.Now()
	}
	s.perm.Record(PermissionGranted)
	s.remember(pos)
	return pos, nil
}

func (s *Source) remember(pos model.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos.CapturedAt.Before(s.last.CapturedAt) {
		return
	}
	s.last = pos
}

func (s *Source) run(ctx context.Context, out chan<- Sample, fixCh <-chan struct{}, pushCh <-chan model.Position) {
	defer s.wg.Done()
	defer close(out)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.poll(ctx, out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx, out)
		case <-fixCh:
			s.poll(ctx, out)
			ticker.Reset(s.cfg.PollInterval)
		case pos := <-pushCh:
			if r, ok := s.provider.(PushReceiver); ok {
				r.Receive(pos)
			}
			s.remember(pos)
			s.emit(ctx, out, Sample{Position: pos})
		}
	}
}

func (s *Source) poll(ctx context.Context, out chan<- Sample) {
	pos, err := s.fetch(ctx, s.cfg.FixTimeout)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.logger.Warn("Location fix failed", "code", CodeOf(err), "error", err)
		s.emit(ctx, out, Sample{Err: err})
		return
	}
	s.emit(ctx, out, Sample{Position: pos})
}

func (s *Source) emit(ctx context.Context, out chan<- Sample, smp Sample) {
	select {
	case out <- smp:
	case <-ctx.Done():
	}
}
