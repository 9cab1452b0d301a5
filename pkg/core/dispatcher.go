package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"wanderguide/pkg/config"
	"wanderguide/pkg/conversation"
	"wanderguide/pkg/geo"
	"wanderguide/pkg/model"
	"wanderguide/pkg/notify"
	"wanderguide/pkg/places"
	"wanderguide/pkg/proximity"
	"wanderguide/pkg/session"
	"wanderguide/pkg/store"
	"wanderguide/pkg/tracker"
)

const (
	channelProvider    = "channel"
	enrichmentProvider = "enrichment"
	inboxSize          = 16
	defaultCandidates  = 3
)

var (
	// ErrDispatcherClosed is returned after Close.
	ErrDispatcherClosed = errors.New("dispatcher closed")
	// ErrSampleDropped is returned by Process when the sample was pushed out of a full inbox.
	ErrSampleDropped = errors.New("sample dropped")
)

// Deps are the collaborators of a Dispatcher. Store, Bus and Tracker may be nil.
type Deps struct {
	Config   config.Provider
	Sessions *session.Manager
	Lookup   places.Lookup
	Enricher places.Enricher
	Channel  conversation.Channel
	Store    store.DispatchStore
	Bus      *notify.Bus
	Tracker  *tracker.Tracker

	Now  func() time.Time // defaults to time.Now
	Pick func(n int) int  // picks a pitch candidate in [0,n); defaults to rand.IntN
}

// CycleResult describes what one evaluation did.
type CycleResult struct {
	Skipped      bool                     `json:"skipped,omitempty"`
	SuppressedBy proximity.WindowKind     `json:"suppressed_by,omitempty"`
	Nearby       []model.ProximityReading `json:"nearby,omitempty"`
	Transition   *proximity.Transition    `json:"transition,omitempty"`
	Dispatches   []model.Dispatch         `json:"dispatches,omitempty"`
}

// Dispatcher turns position samples into contextual updates. Every session gets
// its own worker goroutine that exclusively owns the session's state, tier
// evaluator and pitch timer.
type Dispatcher struct {
	cfg      config.Provider
	sessions *session.Manager
	lookup   places.Lookup
	enricher places.Enricher
	channel  conversation.Channel
	store    store.DispatchStore
	bus      *notify.Bus
	tracker  *tracker.Tracker
	now      func() time.Time
	pick     func(n int) int
	logger   *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.RWMutex
	runners map[string]*runner
	closed  bool
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(deps Deps) *Dispatcher {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Pick == nil {
		deps.Pick = rand.IntN
	}
	if deps.Tracker == nil {
		deps.Tracker = tracker.New()
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewManager(session.DefaultLedgerConfig())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:        deps.Config,
		sessions:   deps.Sessions,
		lookup:     deps.Lookup,
		enricher:   deps.Enricher,
		channel:    deps.Channel,
		store:      deps.Store,
		bus:        deps.Bus,
		tracker:    deps.Tracker,
		now:        deps.Now,
		pick:       deps.Pick,
		logger:     slog.With("component", "dispatcher"),
		baseCtx:    ctx,
		baseCancel: cancel,
		runners:    make(map[string]*runner),
	}
}

// Sessions returns the session manager.
func (d *Dispatcher) Sessions() *session.Manager { return d.sessions }

// Start creates a fresh session. An empty id gets a generated one. Reusing the id
// of a running session stops it first and wipes its state.
func (d *Dispatcher) Start(id string) (*session.State, error) {
	if id == "" {
		id = uuid.NewString()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDispatcherClosed
	}
	if old, ok := d.runners[id]; ok {
		old.stop()
		delete(d.runners, id)
	}

	cfg := d.cfg.AppConfig()
	d.sessions.SetLedgerConfig(session.LedgerConfig{
		ContextualRadius: d.cfg.ContextualRadius(d.baseCtx),
		ReapproachRatio:  cfg.Proximity.ReapproachRatio,
	})
	st, _ := d.sessions.Start(id)

	r := d.newRunner(st)
	now := d.now()
	r.grace.Start(now)
	d.runners[id] = r
	r.launch(d.baseCtx)

	d.publish(model.Event{Type: model.EventSessionStarted, SessionID: id, Title: "Session started", Timestamp: now})
	return st, nil
}

// Stop ends a session, cancelling its timers and discarding its state.
// The runner and its ledger go together under d.mu so a concurrent Start for
// the same id never sees one without the other.
func (d *Dispatcher) Stop(id string) error {
	d.mu.Lock()
	r, ok := d.runners[id]
	delete(d.runners, id)
	_, err := d.sessions.Stop(id)
	d.mu.Unlock()

	if ok {
		r.stop()
		r.grace.ResetAll()
	}
	if err != nil {
		return err
	}
	d.publish(model.Event{Type: model.EventSessionStopped, SessionID: id, Title: "Session stopped"})
	return nil
}

// Close stops every session. The dispatcher cannot be reused.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	ids := make([]string, 0, len(d.runners))
	for id := range d.runners {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, id := range ids {
		_ = d.Stop(id)
	}
	d.baseCancel()
}

// HandlePosition hands a sample to every active session without blocking.
func (d *Dispatcher) HandlePosition(pos model.Position) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.runners {
		r.offer(request{kind: requestPosition, pos: pos})
	}
}

// Process evaluates a sample for one session and waits for the outcome.
func (d *Dispatcher) Process(ctx context.Context, id string, pos model.Position) (CycleResult, error) {
	return d.submit(ctx, id, request{kind: requestPosition, pos: pos})
}

// PitchNow runs the periodic pitch for one session immediately.
func (d *Dispatcher) PitchNow(ctx context.Context, id string) (CycleResult, error) {
	return d.submit(ctx, id, request{kind: requestPitch})
}

func (d *Dispatcher) submit(ctx context.Context, id string, req request) (CycleResult, error) {
	d.mu.RLock()
	r, ok := d.runners[id]
	d.mu.RUnlock()
	if !ok {
		return CycleResult{}, session.ErrNotFound
	}

	req.reply = make(chan CycleResult, 1)
	select {
	case r.inbox <- req:
	case <-r.done:
		return CycleResult{}, session.ErrNotFound
	case <-ctx.Done():
		return CycleResult{}, ctx.Err()
	}

	select {
	case res, ok := <-req.reply:
		if !ok {
			return CycleResult{}, ErrSampleDropped
		}
		return res, nil
	case <-r.done:
		return CycleResult{}, session.ErrNotFound
	case <-ctx.Done():
		return CycleResult{}, ctx.Err()
	}
}

// Resume opens the resume window on every active session.
func (d *Dispatcher) Resume() {
	now := d.now()
	d.mu.RLock()
	for _, r := range d.runners {
		r.grace.Resume(now)
	}
	n := len(d.runners)
	d.mu.RUnlock()

	d.logger.Info("App resumed", "sessions", n)
	d.publish(model.Event{Type: model.EventAppResumed, Title: "App resumed", Timestamp: now})
}

// SessionView is the diagnostic view of one session.
type SessionView struct {
	session.Snapshot
	Grace []proximity.Window `json:"grace"`
}

// View returns the current state of a session.
func (d *Dispatcher) View(id string) (SessionView, error) {
	d.mu.RLock()
	r, ok := d.runners[id]
	d.mu.RUnlock()
	if !ok {
		return SessionView{}, session.ErrNotFound
	}
	return SessionView{Snapshot: r.state.Snapshot(), Grace: r.grace.Active(d.now())}, nil
}

// Dispatches lists the recorded dispatch attempts of a session, newest first.
func (d *Dispatcher) Dispatches(ctx context.Context, id string, limit int) ([]*model.Dispatch, error) {
	if d.store == nil {
		return nil, nil
	}
	return d.store.ListDispatches(ctx, id, limit)
}

func (d *Dispatcher) publish(ev model.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.now()
	}
	if d.bus != nil {
		d.bus.Publish(ev)
	}
}

func (d *Dispatcher) nextPitchDelay() time.Duration {
	lo, hi := d.cfg.PitchInterval(d.baseCtx)
	if lo <= 0 {
		lo = 45 * time.Second
	}
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

// evaluationRadius covers the contextual radius and every configured tier.
func (d *Dispatcher) evaluationRadius(contextual float64) float64 {
	radius := contextual
	for _, t := range d.cfg.AppConfig().Proximity.Tiers {
		radius = max(radius, t.MaxDistance.Meters())
	}
	return radius
}

func (d *Dispatcher) request(pos model.Position, radius float64) places.Request {
	cfg := d.cfg.AppConfig()
	return places.Request{
		Center:     geo.FromPosition(pos),
		Radius:     radius,
		Categories: cfg.Proximity.Categories,
		Limit:      cfg.Proximity.ResultLimit,
	}
}

// Prefetch issues the lookups a session at pos is about to make, so a caching
// lookup is warm when the samples arrive. It returns the number of POIs seen.
func (d *Dispatcher) Prefetch(ctx context.Context, pos model.Position) (int, error) {
	radii := []float64{d.evaluationRadius(d.cfg.ContextualRadius(ctx))}
	if d.cfg.PitchEnabled(ctx) {
		radii = append(radii, d.cfg.PitchRadius(ctx))
	}

	var errs []error
	seen := 0
	for _, radius := range radii {
		lctx, cancel := context.WithTimeout(ctx, time.Duration(d.cfg.AppConfig().Dispatch.LookupTimeout))
		pois, err := d.lookup.Nearby(lctx, d.request(pos, radius))
		cancel()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		seen = max(seen, len(pois))
	}
	return seen, errors.Join(errs...)
}

// nearby asks the places lookup around pos and classifies the answer.
// A failed lookup counts as an empty neighbourhood for this cycle.
func (d *Dispatcher) nearby(ctx context.Context, pos model.Position, radius float64, now time.Time) []model.ProximityReading {
	cfg := d.cfg.AppConfig()
	lctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Dispatch.LookupTimeout))
	defer cancel()

	pois, err := d.lookup.Nearby(lctx, d.request(pos, radius))
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Warn("Places lookup failed", "error", err)
		}
		return nil
	}
	return geo.Classify(pos, pois, radius, now)
}

// enrich fetches extra detail for a POI. On failure the zero Enrichment is returned
// and the message falls back to the POI's own summary.
func (d *Dispatcher) enrich(ctx context.Context, p model.POI) model.Enrichment {
	if d.enricher == nil {
		return model.Enrichment{}
	}
	cfg := d.cfg.AppConfig()
	ectx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Dispatch.EnrichmentTimeout))
	defer cancel()

	en, err := d.enricher.Enrich(ectx, places.EnrichRequest{POI: p, Fields: places.DefaultFields})
	if err != nil {
		d.logger.Warn("Enrichment failed, using local summary", "poi", p.ID, "error", err)
		d.tracker.TrackFallback(enrichmentProvider)
		return model.Enrichment{}
	}
	return en
}

func (d *Dispatcher) send(ctx context.Context, sessionID, text string) error {
	cfg := d.cfg.AppConfig()
	sctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Dispatch.SendTimeout))
	defer cancel()

	err := d.channel.SendContextualUpdate(sctx, sessionID, text)
	d.tracker.TrackDispatch(channelProvider, err == nil)
	if err != nil && !errors.Is(err, conversation.ErrChannelUnavailable) {
		err = fmt.Errorf("%w: %w", conversation.ErrChannelUnavailable, err)
	}
	return err
}

func (d *Dispatcher) record(ctx context.Context, disp *model.Dispatch) {
	if d.store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := d.store.SaveDispatch(sctx, disp); err != nil {
		d.logger.Error("Failed to record dispatch", "id", disp.ID, "error", err)
	}
}

func (d *Dispatcher) newRunner(st *session.State) *runner {
	cfg := d.cfg.AppConfig()
	tiers := make([]proximity.Tier, 0, len(cfg.Proximity.Tiers))
	for _, t := range cfg.Proximity.Tiers {
		tiers = append(tiers, proximity.Tier{Name: t.Name, MaxDistance: t.MaxDistance.Meters()})
	}
	return &runner{
		d:     d,
		state: st,
		grace: proximity.NewGraceController(proximity.GraceConfig{
			Initialization:      time.Duration(cfg.Grace.Initialization),
			Movement:            time.Duration(cfg.Grace.Movement),
			Resume:              time.Duration(cfg.Grace.Resume),
			SignificantMovement: cfg.Grace.SignificantMovement.Meters(),
		}),
		tiers:  proximity.NewTierEvaluator(tiers, d.cfg.EscalateTiers(d.baseCtx)),
		inbox:  make(chan request, inboxSize),
		done:   make(chan struct{}),
		logger: d.logger.With("session_id", st.ID()),
	}
}
