package game

import (
	"errors"
	"time"

	"github.com/mcdev12/quizwar/internal/room"
)

var (
	ErrRoomNotJoinable  = errors.New("game: room is not accepting players")
	ErrNotHost          = errors.New("game: only the host may do that")
	ErrNotEnoughPlayers = errors.New("game: need at least two players")
	ErrAlreadyAnswered  = errors.New("game: already answered this question")
	ErrNotPlaying       = errors.New("game: no question is active")
	ErrWrongStatus      = errors.New("game: transition not valid in current status")
)

// MinPlayers is the minimum lobby size to start a game.
const MinPlayers = 2

// The functions below are the session state machine. Each one mutates
// a private copy of the room document; the Service persists the copy
// with a revision-guarded write, so a transition whose precondition
// went stale between read and write simply fails the CAS and is
// re-evaluated against the fresh document.

// Join adds a player to a lobby. Joining an already-joined room only
// refreshes the identity fields.
func Join(r *room.Room, id, nickname, avatar string) error {
	if p, ok := r.Players[id]; ok {
		p.Nickname = nickname
		p.Avatar = avatar
		return nil
	}
	if r.Status != room.StatusLobby {
		return ErrRoomNotJoinable
	}
	r.Players[id] = &room.Player{Nickname: nickname, Avatar: avatar}
	return nil
}

// Leave removes a player. A departing host hands authority to the
// first remaining player in iteration order; that arbitrary choice is
// the whole election policy, since all that matters is that exactly
// one host survives. Returns true when the room emptied and should be
// deleted.
func Leave(r *room.Room, id string) bool {
	delete(r.Players, id)
	if r.Empty() {
		return true
	}
	if r.HostID == id {
		for pid := range r.Players {
			r.HostID = pid
			break
		}
	}
	return false
}

// Start moves a lobby into the countdown phase with a finalized
// question set. Per-question and cumulative player fields reset here,
// and only here, so "play again" scores always begin from zero.
func Start(r *room.Room, questions []room.Question, now time.Time) error {
	if r.Status != room.StatusLobby {
		return ErrWrongStatus
	}
	if len(r.Players) < MinPlayers {
		return ErrNotEnoughPlayers
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	end := now.Add(CountdownDelay)
	r.Status = room.StatusCountdown
	r.CountdownEndAt = &end
	r.Questions = questions
	r.CurrentQuestionIndex = 0
	r.QuestionStartedAt = nil
	for _, p := range r.Players {
		p.Score = 0
		p.Streak = 0
		p.CorrectCount = 0
		p.TotalResponseTime = 0
		resetAnswer(p)
		p.ActiveEmote = nil
	}
	return nil
}

// BeginPlay performs countdown→playing. Deliberately host-independent:
// every client races to call it once the shared countdown timestamp
// passes, and the status guard makes the race land exactly once.
func BeginPlay(r *room.Room, now time.Time) bool {
	if r.Status != room.StatusCountdown {
		return false
	}
	r.Status = room.StatusPlaying
	r.CountdownEndAt = nil
	r.QuestionStartedAt = &now
	return true
}

// Advance moves to the next question, or to results when the current
// question was the last. The expectedIndex guard is what makes
// duplicate triggers idempotent: a second attempt carrying a stale
// index is a no-op.
func Advance(r *room.Room, expectedIndex int, now time.Time) bool {
	if r.Status != room.StatusPlaying || r.CurrentQuestionIndex != expectedIndex {
		return false
	}

	next := r.CurrentQuestionIndex + 1
	if next >= len(r.Questions) {
		r.Status = room.StatusResults
		r.QuestionStartedAt = nil
		return true
	}

	r.CurrentQuestionIndex = next
	r.QuestionStartedAt = &now
	for _, p := range r.Players {
		resetAnswer(p)
	}
	return true
}

// Reset performs results→lobby for "play again". Identity fields
// survive; everything game-scoped clears.
func Reset(r *room.Room) error {
	if r.Status != room.StatusResults {
		return ErrWrongStatus
	}
	r.Status = room.StatusLobby
	r.Questions = nil
	r.CurrentQuestionIndex = 0
	r.QuestionStartedAt = nil
	r.CountdownEndAt = nil
	for _, p := range r.Players {
		p.Score = 0
		p.Streak = 0
		p.CorrectCount = 0
		p.TotalResponseTime = 0
		resetAnswer(p)
	}
	return nil
}

// ApplyAnswer records a player's answer to the current question,
// scoring it against the shared question start timestamp. Players only
// ever write their own record, which is the sole defense against
// inconsistent scoring.
func ApplyAnswer(r *room.Room, id, answer string, now time.Time) error {
	p := r.Player(id)
	if p == nil {
		return room.ErrPlayerAbsent
	}
	if r.Status != room.StatusPlaying || r.QuestionStartedAt == nil {
		return ErrNotPlaying
	}
	q := r.CurrentQuestion()
	if q == nil {
		return ErrNotPlaying
	}
	if p.Answered() {
		return ErrAlreadyAnswered
	}

	res := Score(*r.QuestionStartedAt, now, answer, q.CorrectAnswer, p.Streak)
	p.SelectedAnswer = &answer
	p.AnsweredAt = &now
	p.IsCorrect = &res.Correct
	p.Streak = res.Streak
	p.Score += res.Delta
	p.TotalResponseTime += res.TimeTaken
	if res.Correct {
		p.CorrectCount++
	}
	return nil
}

// SetEmote attaches a transient emote to the player's record.
func SetEmote(r *room.Room, id, emote string) error {
	p := r.Player(id)
	if p == nil {
		return room.ErrPlayerAbsent
	}
	p.ActiveEmote = &emote
	return nil
}

// ClearEmote removes the player's emote if it still shows the given
// value; a newer emote wins over a stale expiry.
func ClearEmote(r *room.Room, id, emote string) bool {
	p := r.Player(id)
	if p == nil || p.ActiveEmote == nil || *p.ActiveEmote != emote {
		return false
	}
	p.ActiveEmote = nil
	return true
}

// AllAnswered reports whether every present player has answered the
// current question. Players who left are absent from the map, so a
// disconnect can never wedge the round.
func AllAnswered(r *room.Room) bool {
	if r.Empty() {
		return false
	}
	for _, p := range r.Players {
		if !p.Answered() {
			return false
		}
	}
	return true
}

func resetAnswer(p *room.Player) {
	p.SelectedAnswer = nil
	p.IsCorrect = nil
	p.AnsweredAt = nil
}
