package game

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/quizwar/internal/room"
	"github.com/mcdev12/quizwar/internal/store"
)

// startPlaying brings a two-player room into the playing phase.
func startPlaying(t *testing.T, questions int) (host, guest *Service, st *store.Memory, clock *clockwork.FakeClock, code string) {
	t.Helper()
	src := &stubSource{questions: testQuestions(questions)}
	host, guest, st, clock, code = twoPlayerLobby(t, src)

	if err := host.StartGame(context.Background(), code, nil, questions, ""); err != nil {
		t.Fatalf("start game: %v", err)
	}
	clock.Advance(CountdownDelay)
	if err := host.BeginPlay(context.Background(), code); err != nil {
		t.Fatalf("begin play: %v", err)
	}
	return host, guest, st, clock, code
}

func TestReconcileFiresCountdownOnce(t *testing.T) {
	src := &stubSource{questions: testQuestions(2)}
	host, guest, st, clock, code := twoPlayerLobby(t, src)

	if err := host.StartGame(context.Background(), code, nil, 2, ""); err != nil {
		t.Fatalf("start game: %v", err)
	}
	snapshot := mustGetRoom(t, host, code)

	hostLoop := NewLoop(host, st, clock, code, nil)
	guestLoop := NewLoop(guest, st, clock, code, nil)

	// Before the deadline neither client transitions.
	hostLoop.Reconcile(context.Background(), snapshot)
	if r := mustGetRoom(t, host, code); r.Status != room.StatusCountdown {
		t.Fatalf("premature transition to %s", r.Status)
	}

	clock.Advance(CountdownDelay)
	hostLoop.Reconcile(context.Background(), snapshot)
	after := mustGetRoom(t, host, code)
	if after.Status != room.StatusPlaying {
		t.Fatalf("expected playing, got %s", after.Status)
	}

	// The other client still holds the countdown snapshot and races the
	// same transition. The status guard makes its write a no-op.
	guestLoop.Reconcile(context.Background(), snapshot)
	final := mustGetRoom(t, host, code)
	if !final.QuestionStartedAt.Equal(*after.QuestionStartedAt) {
		t.Fatal("racing countdown trigger must not restart the question timer")
	}
}

func TestReconcileRevealsOnDeadline(t *testing.T) {
	host, _, st, clock, code := startPlaying(t, 2)
	loop := NewLoop(host, st, clock, code, nil)

	snapshot := mustGetRoom(t, host, code)
	loop.Reconcile(context.Background(), snapshot)
	if loop.revealed {
		t.Fatal("revealed before the deadline")
	}

	clock.Advance(QuestionDuration)
	loop.Reconcile(context.Background(), snapshot)
	if !loop.revealed {
		t.Fatal("expected reveal at the deadline")
	}
}

func TestReconcileRevealsEarlyWhenAllAnswered(t *testing.T) {
	host, guest, st, clock, code := startPlaying(t, 2)
	loop := NewLoop(host, st, clock, code, nil)

	clock.Advance(2 * time.Second)
	if err := host.SubmitAnswer(context.Background(), code, "right"); err != nil {
		t.Fatalf("submit answer: %v", err)
	}
	if err := guest.SubmitAnswer(context.Background(), code, "wrong"); err != nil {
		t.Fatalf("submit answer: %v", err)
	}

	loop.Reconcile(context.Background(), mustGetRoom(t, host, code))
	if !loop.revealed {
		t.Fatal("expected early reveal once everyone answered")
	}
}

func TestReconcileHostAdvancesOnceAfterRevealDelay(t *testing.T) {
	host, _, st, clock, code := startPlaying(t, 2)
	loop := NewLoop(host, st, clock, code, nil)

	clock.Advance(QuestionDuration)
	snapshot := mustGetRoom(t, host, code)

	// First pass past the deadline reveals and schedules the advance.
	loop.Reconcile(context.Background(), snapshot)
	if r := mustGetRoom(t, host, code); r.CurrentQuestionIndex != 0 {
		t.Fatalf("advanced before the reveal delay, index %d", r.CurrentQuestionIndex)
	}

	clock.Advance(RevealDelay)
	loop.Reconcile(context.Background(), snapshot)
	if r := mustGetRoom(t, host, code); r.CurrentQuestionIndex != 1 {
		t.Fatalf("expected index 1, got %d", r.CurrentQuestionIndex)
	}

	// Watch delivery lag: the loop reconciles the stale index-0 snapshot
	// again. The advanced flag and the expected-index guard both hold.
	loop.Reconcile(context.Background(), snapshot)
	if r := mustGetRoom(t, host, code); r.CurrentQuestionIndex != 1 {
		t.Fatalf("question skipped by duplicate advance, index %d", r.CurrentQuestionIndex)
	}
}

func TestReconcileNonHostNeverAdvances(t *testing.T) {
	host, guest, st, clock, code := startPlaying(t, 2)
	loop := NewLoop(guest, st, clock, code, nil)

	clock.Advance(QuestionDuration)
	snapshot := mustGetRoom(t, guest, code)
	loop.Reconcile(context.Background(), snapshot)
	clock.Advance(RevealDelay + time.Second)
	loop.Reconcile(context.Background(), snapshot)

	if r := mustGetRoom(t, host, code); r.CurrentQuestionIndex != 0 {
		t.Fatalf("non-host advanced the game, index %d", r.CurrentQuestionIndex)
	}
}

func TestReconcileInheritedHostTakesOverAdvance(t *testing.T) {
	host, guest, st, clock, code := startPlaying(t, 2)
	loop := NewLoop(guest, st, clock, code, nil)

	clock.Advance(QuestionDuration)
	loop.Reconcile(context.Background(), mustGetRoom(t, guest, code))

	// The host disappears mid-reveal. The next snapshot shows the guest
	// as host, so its loop picks up the advance duty.
	if err := host.LeaveRoom(context.Background(), code); err != nil {
		t.Fatalf("leave room: %v", err)
	}
	snapshot := mustGetRoom(t, guest, code)
	loop.Reconcile(context.Background(), snapshot)
	clock.Advance(RevealDelay)
	loop.Reconcile(context.Background(), snapshot)

	if r := mustGetRoom(t, guest, code); r.CurrentQuestionIndex != 1 {
		t.Fatalf("inherited host failed to advance, index %d", r.CurrentQuestionIndex)
	}
}

func TestReconcileEmitsOnlyChangedViews(t *testing.T) {
	host, _, st, clock, code := startPlaying(t, 2)

	var views []View
	loop := NewLoop(host, st, clock, code, func(v View) { views = append(views, v) })

	snapshot := mustGetRoom(t, host, code)
	loop.Reconcile(context.Background(), snapshot)
	loop.Reconcile(context.Background(), snapshot)
	if len(views) != 1 {
		t.Fatalf("expected one emitted view, got %d", len(views))
	}

	clock.Advance(time.Second)
	loop.Reconcile(context.Background(), snapshot)
	if len(views) != 2 {
		t.Fatalf("expected a new view after the countdown moved, got %d", len(views))
	}
}

func TestRunEndsWithGoneWhenRoomDeleted(t *testing.T) {
	host, _, st, clock, code := startPlaying(t, 2)

	views := make(chan View, 16)
	loop := NewLoop(host, st, clock, code, func(v View) { views <- v })

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	// The watcher delivers the current document immediately.
	select {
	case v := <-views:
		if v.Screen != ScreenGame {
			t.Fatalf("expected game screen, got %s", v.Screen)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for initial view")
	}

	if err := st.Delete(context.Background(), room.Key(code)); err != nil {
		t.Fatalf("delete room: %v", err)
	}

	for {
		select {
		case v := <-views:
			if v.Screen == ScreenGone {
				if err := <-done; err != nil {
					t.Fatalf("run: %v", err)
				}
				return
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for gone view")
		}
	}
}
