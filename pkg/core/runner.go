package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"wanderguide/pkg/conversation"
	"wanderguide/pkg/geo"
	"wanderguide/pkg/logging"
	"wanderguide/pkg/model"
	"wanderguide/pkg/proximity"
	"wanderguide/pkg/session"
)

type requestKind int

const (
	requestPosition requestKind = iota
	requestPitch
)

type request struct {
	kind  requestKind
	pos   model.Position
	reply chan CycleResult
}

// runner is the single worker of one session.
type runner struct {
	d      *Dispatcher
	state  *session.State
	grace  *proximity.GraceController
	tiers  *proximity.TierEvaluator
	inbox  chan request
	done   chan struct{}
	cancel context.CancelFunc
	logger *slog.Logger

	// Owned by the worker goroutine.
	lastEvaluated model.Position
	hasEvaluated  bool
	lastSeen      model.Position
}

func (r *runner) launch(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	go r.run(ctx)
}

// stop cancels the worker and its pitch timer, then waits for it to exit.
func (r *runner) stop() {
	r.cancel()
	<-r.done
}

// offer enqueues without blocking. When the inbox is full the oldest request is dropped.
func (r *runner) offer(req request) {
	for range 2 {
		select {
		case r.inbox <- req:
			return
		default:
		}
		select {
		case old := <-r.inbox:
			if old.reply != nil {
				close(old.reply)
			}
			r.logger.Debug("Session inbox full, dropped oldest request")
		default:
		}
	}
}

func (r *runner) run(ctx context.Context) {
	defer close(r.done)

	timer := time.NewTimer(r.d.nextPitchDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.inbox:
			var res CycleResult
			if req.kind == requestPitch {
				res = r.pitch(ctx)
			} else {
				res = r.process(ctx, req.pos)
			}
			if req.reply != nil {
				req.reply <- res
			}
		case <-timer.C:
			r.pitch(ctx)
			timer.Reset(r.d.nextPitchDelay())
		}
	}
}

// process runs the location-triggered pipeline for one sample: movement check,
// grace gate, lookup, tiers, ledger, then dispatch in ascending distance.
func (r *runner) process(ctx context.Context, pos model.Position) CycleResult {
	d := r.d
	now := d.now()
	var res CycleResult

	r.lastSeen = pos
	if w, opened := r.grace.ObservePosition(pos, now); opened {
		r.logger.Debug("Significant movement, movement window opened", "until", w.EndsAt())
	}

	epsilon := d.cfg.AppConfig().Proximity.MovementEpsilon.Meters()
	if r.hasEvaluated && geo.Distance(geo.FromPosition(r.lastEvaluated), geo.FromPosition(pos)) <= epsilon {
		logging.Trace(r.logger, "Sample within movement epsilon, skipped")
		res.Skipped = true
		return res
	}

	if w, suppressed := r.grace.Suppressed(now); suppressed {
		r.logger.Debug("Proximity suppressed by grace window", "window", w.Kind, "until", w.EndsAt())
		res.SuppressedBy = w.Kind
		return res
	}

	r.lastEvaluated, r.hasEvaluated = pos, true
	r.state.SetLastPosition(pos)

	contextual := d.cfg.ContextualRadius(ctx)
	readings := d.nearby(ctx, pos, d.evaluationRadius(contextual), now)
	res.Nearby = readings

	if tr, fired := r.tiers.Evaluate(readings, now); fired {
		res.Transition = &tr
		r.publishTransition(tr)
	}

	var candidates []model.ProximityReading
	r.state.WithLedger(func(l *session.Ledger) {
		l.SetContextualRadius(contextual)
		l.Reconcile(readings)
		for _, rd := range readings {
			if l.ShouldAnnounce(rd.POI.ID, rd.DistanceMeters) {
				candidates = append(candidates, rd)
			}
		}
	})

	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		res.Dispatches = append(res.Dispatches, r.dispatch(ctx, pos, c, model.DispatchContextual, now))
	}
	return res
}

// pitch surfaces one of the closest POIs not mentioned or pitched within the cooldown.
// It stays quiet while a grace window is open or an update went out recently.
func (r *runner) pitch(ctx context.Context) CycleResult {
	d := r.d
	now := d.now()
	var res CycleResult

	if !d.cfg.PitchEnabled(ctx) || !r.state.Active() {
		res.Skipped = true
		return res
	}
	if w, suppressed := r.grace.Suppressed(now); suppressed {
		res.SuppressedBy = w.Kind
		return res
	}
	lo, _ := d.cfg.PitchInterval(ctx)
	if last := r.state.LastOverallUpdateAt(); !last.IsZero() && now.Sub(last) < lo {
		res.Skipped = true
		return res
	}
	if r.lastSeen.IsZero() {
		res.Skipped = true
		return res
	}

	pos := r.lastSeen
	readings := d.nearby(ctx, pos, d.cfg.PitchRadius(ctx), now)
	res.Nearby = readings

	limit := d.cfg.AppConfig().Pitch.Candidates
	if limit <= 0 {
		limit = defaultCandidates
	}
	cooldown := d.cfg.PitchCooldown(ctx)

	var candidates []model.ProximityReading
	r.state.WithLedger(func(l *session.Ledger) {
		for _, rd := range readings {
			if len(candidates) == limit {
				break
			}
			if l.PitchEligible(rd.POI.ID, now, cooldown) {
				candidates = append(candidates, rd)
			}
		}
	})
	if len(candidates) == 0 {
		r.logger.Debug("No pitch candidate", "nearby", len(readings))
		return res
	}

	choice := candidates[d.pick(len(candidates))]
	res.Dispatches = append(res.Dispatches, r.dispatch(ctx, pos, choice, model.DispatchPitch, now))
	return res
}

// dispatch enriches, renders and sends one update. The ledger is only touched
// after the channel accepted the message.
func (r *runner) dispatch(ctx context.Context, pos model.Position, rd model.ProximityReading, kind model.DispatchKind, now time.Time) model.Dispatch {
	d := r.d
	en := d.enrich(ctx, rd.POI)
	data := conversation.NewMessageData(pos, rd, en)

	var text string
	var err error
	if kind == model.DispatchPitch {
		text, err = conversation.Pitch(data)
	} else {
		text, err = conversation.ContextualUpdate(data)
	}

	disp := model.Dispatch{
		ID:             uuid.NewString(),
		SessionID:      r.state.ID(),
		POIID:          rd.POI.ID,
		POIName:        data.Name,
		Kind:           kind,
		DistanceMeters: rd.DistanceMeters,
		Text:           text,
		CreatedAt:      now,
	}
	if err == nil {
		err = d.send(ctx, r.state.ID(), text)
	}

	ev := model.Event{
		SessionID: r.state.ID(),
		Title:     data.Name,
		Summary:   fmt.Sprintf("%s at %.0fm", kind, rd.DistanceMeters),
		Data:      &disp,
		Timestamp: now,
	}
	if err != nil {
		disp.Status = model.DispatchDropped
		disp.Error = err.Error()
		ev.Type = model.EventDispatchDropped
		r.logger.Warn("Contextual update dropped", "poi", rd.POI.ID, "kind", kind, "error", err)
	} else {
		disp.Status = model.DispatchSent
		ev.Type = model.EventDispatchSent
		r.state.WithLedger(func(l *session.Ledger) {
			if kind == model.DispatchPitch {
				l.MarkPitched(rd.POI.ID, rd.DistanceMeters, now)
			} else {
				l.MarkAnnounced(rd.POI.ID, rd.DistanceMeters, now)
			}
		})
		r.logger.Info("Contextual update sent", "poi", rd.POI.ID, "kind", kind, "distance_m", int(rd.DistanceMeters))
	}

	r.state.RecordDispatch(err == nil, now)
	d.record(ctx, &disp)
	d.publish(ev)
	return disp
}

func (r *runner) publishTransition(tr proximity.Transition) {
	ev := model.Event{SessionID: r.state.ID(), Data: tr, Timestamp: tr.At}
	switch tr.Kind {
	case proximity.TierCleared:
		ev.Type = model.EventTierCleared
		ev.Title = "No POI nearby"
		ev.Summary = "left " + tr.PreviousID
	case proximity.TierEscalated:
		ev.Type = model.EventTierEscalated
		ev.Title = tr.Reading.POI.DisplayName()
		ev.Summary = fmt.Sprintf("%s at %.0fm", tr.Tier.Name, tr.Reading.DistanceMeters)
	default:
		ev.Type = model.EventTierEntered
		ev.Title = tr.Reading.POI.DisplayName()
		ev.Summary = fmt.Sprintf("%s at %.0fm", tr.Tier.Name, tr.Reading.DistanceMeters)
	}
	r.logger.Info("Proximity tier", "kind", tr.Kind, "title", ev.Title, "summary", ev.Summary)
	r.d.publish(ev)
}
