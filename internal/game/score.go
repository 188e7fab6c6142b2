package game

import (
	"math"
	"time"
)

// Game timing and scoring constants. Both sides of every race derive
// their deadlines from absolute timestamps in the room document plus
// these fixed durations, never from local elapsed counters.
const (
	// QuestionDuration is how long each question stays answerable.
	QuestionDuration = 15 * time.Second
	// CountdownDelay is the lobby-to-playing countdown window.
	CountdownDelay = 3500 * time.Millisecond
	// RevealDelay is how long the correct answer stays on screen
	// before the host advances.
	RevealDelay = 3 * time.Second
	// EmoteTTL is how long a sent emote stays visible.
	EmoteTTL = 3 * time.Second

	// BasePoints is awarded for any correct answer.
	BasePoints = 10
	// SpeedFactor converts remaining seconds into bonus points.
	SpeedFactor = 0.67
	// StreakBonusAt is the streak length that activates the multiplier.
	StreakBonusAt = 3
	// StreakMultiplier scales the score once the streak is active.
	StreakMultiplier = 1.5
)

// ScoreResult is the outcome of scoring a single answer.
type ScoreResult struct {
	Correct   bool
	Delta     int
	Streak    int
	TimeTaken float64 // seconds, accumulated win or lose
}

// Score computes the score delta and updated streak for one answer.
// It is pure and deterministic: every client evaluates it
// independently for its own record with no central arbitration, so
// identical inputs must always yield identical outputs.
func Score(startedAt, now time.Time, answer, correctAnswer string, streak int) ScoreResult {
	timeTaken := now.Sub(startedAt).Seconds()
	if timeTaken < 0 {
		timeTaken = 0
	}

	res := ScoreResult{TimeTaken: timeTaken}
	if answer != correctAnswer {
		return res
	}

	timeBonus := math.Floor((QuestionDuration.Seconds() - timeTaken) * SpeedFactor)
	if timeBonus < 0 {
		timeBonus = 0
	}

	res.Correct = true
	res.Streak = streak + 1
	multiplier := 1.0
	if res.Streak >= StreakBonusAt {
		multiplier = StreakMultiplier
	}
	res.Delta = int(math.Floor((BasePoints + timeBonus) * multiplier))
	return res
}
