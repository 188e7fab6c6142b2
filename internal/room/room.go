package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status defines the lifecycle phase of a room.
type Status string

const (
	StatusLobby     Status = "lobby"
	StatusCountdown Status = "countdown"
	StatusPlaying   Status = "playing"
	StatusResults   Status = "results"
)

var (
	ErrNoHost       = errors.New("room: host is not a present player")
	ErrIndexRange   = errors.New("room: question index out of range")
	ErrBadQuestion  = errors.New("room: malformed question")
	ErrPlayerAbsent = errors.New("room: player not in room")
)

// Question is a single trivia question, immutable once stored in a
// room. Answers arrive pre-shuffled so every client renders the same
// order.
type Question struct {
	Category      string   `json:"category"`
	Difficulty    string   `json:"difficulty"`
	Prompt        string   `json:"prompt"`
	CorrectAnswer string   `json:"correct_answer"`
	Answers       []string `json:"answers"`
}

// Player is one participant's record inside a room. The per-question
// fields (SelectedAnswer, IsCorrect, AnsweredAt) are nil until the
// player answers the current question; nil is the "not yet answered"
// state, distinct from any real answer text.
type Player struct {
	Nickname          string     `json:"nickname"`
	Avatar            string     `json:"avatar,omitempty"`
	Score             int        `json:"score"`
	Streak            int        `json:"streak"`
	CorrectCount      int        `json:"correct_count"`
	TotalResponseTime float64    `json:"total_response_time"`
	SelectedAnswer    *string    `json:"selected_answer,omitempty"`
	IsCorrect         *bool      `json:"is_correct,omitempty"`
	AnsweredAt        *time.Time `json:"answered_at,omitempty"`
	ActiveEmote       *string    `json:"active_emote,omitempty"`
}

// Answered reports whether the player has answered the current question.
func (p *Player) Answered() bool {
	return p.SelectedAnswer != nil
}

// Room is the single shared document for one game instance. Every
// connected client reconciles against it; all mutations flow through
// revision-guarded store writes.
type Room struct {
	Status               Status             `json:"status"`
	HostID               string             `json:"host_id"`
	CountdownEndAt       *time.Time         `json:"countdown_end_at,omitempty"`
	CurrentQuestionIndex int                `json:"current_question_index"`
	QuestionStartedAt    *time.Time         `json:"question_started_at,omitempty"`
	Questions            []Question         `json:"questions"`
	Players              map[string]*Player `json:"players"`
}

// New creates a lobby room with its first player as host.
func New(hostID, nickname, avatar string) *Room {
	return &Room{
		Status: StatusLobby,
		HostID: hostID,
		Players: map[string]*Player{
			hostID: {Nickname: nickname, Avatar: avatar},
		},
	}
}

// CurrentQuestion returns the active question, or nil when the index
// is not addressable (empty question set or non-playing status).
func (r *Room) CurrentQuestion() *Question {
	if r.CurrentQuestionIndex < 0 || r.CurrentQuestionIndex >= len(r.Questions) {
		return nil
	}
	return &r.Questions[r.CurrentQuestionIndex]
}

// Player returns the record for the given principal, or nil.
func (r *Room) Player(id string) *Player {
	return r.Players[id]
}

// Empty reports whether no players remain; an empty room is eligible
// for deletion.
func (r *Room) Empty() bool {
	return len(r.Players) == 0
}

// Validate checks the document invariants: the host names a present
// player, the question index is addressable while a game is running,
// and every stored question is well formed.
func (r *Room) Validate() error {
	switch r.Status {
	case StatusLobby, StatusCountdown, StatusPlaying, StatusResults:
	default:
		return fmt.Errorf("room: unknown status %q", r.Status)
	}

	if !r.Empty() {
		if _, ok := r.Players[r.HostID]; !ok {
			return ErrNoHost
		}
	}

	if r.Status == StatusPlaying {
		if r.CurrentQuestionIndex < 0 || r.CurrentQuestionIndex >= len(r.Questions) {
			return ErrIndexRange
		}
	}

	for i, q := range r.Questions {
		if err := q.validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}

func (q *Question) validate() error {
	if q.Prompt == "" || q.CorrectAnswer == "" {
		return ErrBadQuestion
	}
	if len(q.Answers) < 2 || len(q.Answers) > 4 {
		return ErrBadQuestion
	}
	for _, a := range q.Answers {
		if a == q.CorrectAnswer {
			return nil
		}
	}
	return ErrBadQuestion
}

// Marshal encodes the room document for storage.
func Marshal(r *Room) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal room: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a stored room document.
func Unmarshal(data []byte) (*Room, error) {
	var r Room
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal room: %w", err)
	}
	if r.Players == nil {
		r.Players = make(map[string]*Player)
	}
	return &r, nil
}

// Key returns the store key a room code maps to.
func Key(code string) string {
	return "rooms." + code
}
