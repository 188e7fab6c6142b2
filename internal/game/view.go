package game

import (
	"math"
	"sort"
	"time"

	"github.com/mcdev12/quizwar/internal/room"
)

// Screen identifies which UI surface a client should be showing.
type Screen string

const (
	ScreenLobby   Screen = "lobby"
	ScreenGame    Screen = "game"
	ScreenResults Screen = "results"
	ScreenGone    Screen = "gone" // room was deleted
)

// PlayerView is one scoreboard row.
type PlayerView struct {
	ID       string
	Nickname string
	Avatar   string
	Score    int
	Streak   int
	Answered bool
	Correct  *bool
	Emote    string
	Fastest  bool
	Host     bool
}

// View is the UI-relevant state one client derives from the shared
// room document. It is recomputed from scratch on every reconcile;
// nothing in it accumulates locally.
type View struct {
	Code               string
	Screen             Screen
	Status             room.Status
	IsHost             bool
	QuestionNumber     int
	TotalQuestions     int
	Prompt             string
	Answers            []string
	CorrectAnswer      string // set only once revealed
	CountdownRemaining int
	TimeRemaining      int
	Revealed           bool
	MyAnswer           *string
	MyCorrect          *bool
	Players            []PlayerView
}

// BuildView derives the client view from a room document. The
// remaining-time values come purely from the shared absolute
// timestamps so every client converges on the same displayed number,
// bounded only by its own wall-clock drift.
func BuildView(r *room.Room, code, playerID string, now time.Time, revealed bool) View {
	v := View{
		Code:           code,
		Status:         r.Status,
		IsHost:         r.HostID == playerID,
		TotalQuestions: len(r.Questions),
		Revealed:       revealed,
	}

	switch r.Status {
	case room.StatusLobby:
		v.Screen = ScreenLobby
	case room.StatusResults:
		v.Screen = ScreenResults
	default:
		v.Screen = ScreenGame
	}

	if r.Status == room.StatusCountdown && r.CountdownEndAt != nil {
		v.CountdownRemaining = remainingSeconds(*r.CountdownEndAt, now)
	}

	if r.Status == room.StatusPlaying {
		v.QuestionNumber = r.CurrentQuestionIndex + 1
		if q := r.CurrentQuestion(); q != nil {
			v.Prompt = q.Prompt
			v.Answers = q.Answers
			if revealed {
				v.CorrectAnswer = q.CorrectAnswer
			}
		}
		if r.QuestionStartedAt != nil {
			v.TimeRemaining = remainingSeconds(r.QuestionStartedAt.Add(QuestionDuration), now)
		}
	}

	if me := r.Player(playerID); me != nil {
		v.MyAnswer = me.SelectedAnswer
		v.MyCorrect = me.IsCorrect
	}

	fastest := fastestCorrect(r)
	for id, p := range r.Players {
		row := PlayerView{
			ID:       id,
			Nickname: p.Nickname,
			Avatar:   p.Avatar,
			Score:    p.Score,
			Streak:   p.Streak,
			Answered: p.Answered(),
			Correct:  p.IsCorrect,
			Fastest:  id == fastest,
			Host:     id == r.HostID,
		}
		if p.ActiveEmote != nil {
			row.Emote = *p.ActiveEmote
		}
		v.Players = append(v.Players, row)
	}
	sort.Slice(v.Players, func(i, j int) bool {
		if v.Players[i].Score != v.Players[j].Score {
			return v.Players[i].Score > v.Players[j].Score
		}
		return v.Players[i].ID < v.Players[j].ID
	})

	return v
}

// remainingSeconds derives a whole-second countdown from an absolute
// deadline, clamped at zero.
func remainingSeconds(deadline, now time.Time) int {
	remaining := math.Ceil(deadline.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}

// fastestCorrect returns the id of the player who answered the current
// question correctly first, or "".
func fastestCorrect(r *room.Room) string {
	var fastest string
	var at time.Time
	for id, p := range r.Players {
		if p.IsCorrect == nil || !*p.IsCorrect || p.AnsweredAt == nil {
			continue
		}
		if fastest == "" || p.AnsweredAt.Before(at) {
			fastest = id
			at = *p.AnsweredAt
		}
	}
	return fastest
}
