package game

import (
	"context"
	"reflect"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizwar/internal/room"
	"github.com/mcdev12/quizwar/internal/store"
)

// TickInterval is the local re-evaluation period. It only affects how
// smoothly the countdown renders and how quickly this client notices a
// deadline; correctness comes from the absolute timestamps in the
// document.
const TickInterval = 100 * time.Millisecond

// ViewSink receives derived views as they change.
type ViewSink func(View)

// Loop is the per-client synchronization loop. It merges store watch
// events with a local ticker and, on every pass, recomputes the view
// from the latest document and fires whichever guarded transition this
// client is responsible for: anyone performs countdown→playing, only
// the host schedules the post-reveal advance. A transient store
// failure is retried implicitly by the next pass, since nothing here
// accumulates local deltas.
type Loop struct {
	service *Service
	store   store.Store
	clock   clockwork.Clock
	code    string
	sink    ViewSink

	// Local transient state, reset on every question transition.
	lastIndex      int
	revealed       bool
	advanceAt      time.Time
	advanced       bool
	countdownFired bool

	lastView *View
}

// NewLoop creates a synchronization loop for one room.
func NewLoop(service *Service, st store.Store, clock clockwork.Clock, code string, sink ViewSink) *Loop {
	return &Loop{
		service:   service,
		store:     st,
		clock:     clock,
		code:      code,
		sink:      sink,
		lastIndex: -1,
	}
}

// Run drives the loop until the context ends or the room is deleted.
func (l *Loop) Run(ctx context.Context) error {
	watcher, err := l.store.Watch(ctx, room.Key(l.code))
	if err != nil {
		return err
	}
	defer watcher.Stop()

	ticker := l.clock.NewTicker(TickInterval)
	defer ticker.Stop()

	var current *room.Room
	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-watcher.Updates():
			if !ok {
				return nil
			}
			if entry.Deleted {
				l.emit(View{Code: l.code, Screen: ScreenGone})
				return nil
			}
			r, err := room.Unmarshal(entry.Value)
			if err != nil {
				log.Error().Err(err).Str("room", l.code).Msg("bad room document")
				continue
			}
			current = r
			l.Reconcile(ctx, current)
		case <-ticker.Chan():
			if current != nil {
				l.Reconcile(ctx, current)
			}
		}
	}
}

// Reconcile runs one deterministic pass against a room snapshot. It is
// the whole of the client-side protocol; Run only feeds it.
func (l *Loop) Reconcile(ctx context.Context, r *room.Room) {
	now := l.clock.Now()

	// A question transition invalidates everything transient. This
	// also absorbs the write-then-read races of eventually-consistent
	// delivery: whatever we thought about the previous question is
	// discarded wholesale.
	if r.CurrentQuestionIndex != l.lastIndex {
		l.lastIndex = r.CurrentQuestionIndex
		l.resetTransient()
	}
	if r.Status != room.StatusPlaying && r.Status != room.StatusResults {
		l.resetTransient()
	}
	if r.Status != room.StatusCountdown {
		l.countdownFired = false
	}

	switch r.Status {
	case room.StatusCountdown:
		// Self-electing on purpose: the host may have vanished during
		// the 3.5s window, so every client races and the status guard
		// lets exactly one write land.
		if r.CountdownEndAt != nil && !now.Before(*r.CountdownEndAt) && !l.countdownFired {
			l.countdownFired = true
			if err := l.service.BeginPlay(ctx, l.code); err != nil {
				l.countdownFired = false
				log.Debug().Err(err).Str("room", l.code).Msg("begin play attempt failed")
			}
		}

	case room.StatusPlaying:
		l.reconcilePlaying(ctx, r, now)
	}

	l.emit(BuildView(r, l.code, l.service.PlayerID(), now, l.revealed))
}

func (l *Loop) reconcilePlaying(ctx context.Context, r *room.Room, now time.Time) {
	if r.QuestionStartedAt == nil {
		return
	}

	deadline := r.QuestionStartedAt.Add(QuestionDuration)
	if !l.revealed && (!now.Before(deadline) || AllAnswered(r)) {
		l.revealed = true
	}
	if !l.revealed || l.advanced {
		return
	}

	// Only the host schedules the advance, so clients do not race to
	// call it at reveal time. Checking on every pass rather than once
	// at reveal also covers a host handoff mid-reveal.
	if r.HostID != l.service.PlayerID() {
		return
	}
	if l.advanceAt.IsZero() {
		l.advanceAt = now.Add(RevealDelay)
		return
	}
	if now.Before(l.advanceAt) {
		return
	}

	l.advanced = true
	if err := l.service.AdvanceQuestion(ctx, l.code, r.CurrentQuestionIndex); err != nil {
		// Retry on the next pass; the expected-index guard keeps a
		// duplicate attempt harmless.
		l.advanced = false
		log.Debug().Err(err).Str("room", l.code).Msg("advance attempt failed")
	}
}

func (l *Loop) resetTransient() {
	l.revealed = false
	l.advanceAt = time.Time{}
	l.advanced = false
}

func (l *Loop) emit(v View) {
	if l.sink == nil {
		return
	}
	if l.lastView != nil && reflect.DeepEqual(*l.lastView, v) {
		return
	}
	l.lastView = &v
	l.sink(v)
}
