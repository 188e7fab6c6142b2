package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizwar/internal/room"
	"github.com/mcdev12/quizwar/internal/store"
)

var (
	ErrRoomNotFound = errors.New("game: room not found")
	ErrNoQuestions  = errors.New("game: no questions available")
)

// QuestionSource is the trivia content collaborator. It may return
// fewer questions than requested; the engine tolerates a short batch
// but refuses to start a game with zero questions.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, categoryIDs []int, count int, difficulty string) ([]room.Question, error)
}

// Service executes room operations for one principal against the
// shared store. Every mutation is a read-modify-write under a revision
// guard: a conflicting concurrent writer fails the CAS, the document
// is reloaded, and the transition's own precondition decides whether
// the retry still applies or degrades to a no-op.
type Service struct {
	store    store.Store
	clock    clockwork.Clock
	source   QuestionSource
	playerID string
}

// NewService creates a service acting as the given principal.
func NewService(st store.Store, clock clockwork.Clock, source QuestionSource, playerID string) *Service {
	return &Service{
		store:    st,
		clock:    clock,
		source:   source,
		playerID: playerID,
	}
}

// PlayerID returns the principal this service acts as.
func (s *Service) PlayerID() string {
	return s.playerID
}

const (
	casAttempts    = 8
	createAttempts = 10
)

// mutate runs fn against the latest room document and persists the
// result under the revision observed at read time. fn returns false to
// signal a benign no-op that needs no write.
func (s *Service) mutate(ctx context.Context, code string, fn func(r *room.Room) (bool, error)) error {
	key := room.Key(code)
	for attempt := 0; attempt < casAttempts; attempt++ {
		data, rev, err := s.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		r, err := room.Unmarshal(data)
		if err != nil {
			return err
		}

		changed, err := fn(r)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		if r.Empty() {
			// Last player left: the room dies with them rather than
			// lingering host-less.
			return s.store.Delete(ctx, key)
		}

		out, err := room.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := s.store.Update(ctx, key, out, rev); err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			if errors.Is(err, store.ErrNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("room %s: %w", code, store.ErrConflict)
}

// CreateRoom creates a fresh lobby with this principal as host and
// returns its code, regenerating on the rare code collision.
func (s *Service) CreateRoom(ctx context.Context, nickname, avatar string) (string, error) {
	r := room.New(s.playerID, nickname, avatar)
	data, err := room.Marshal(r)
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		code, err := room.NewCode()
		if err != nil {
			return "", err
		}
		if _, err := s.store.Create(ctx, room.Key(code), data); err != nil {
			if errors.Is(err, store.ErrExists) {
				continue
			}
			return "", err
		}
		log.Info().Str("room", code).Str("player_id", s.playerID).Msg("room created")
		return code, nil
	}
	return "", fmt.Errorf("create room: %w", store.ErrExists)
}

// JoinRoom adds this principal to a lobby. Rooms past the lobby phase
// reject the join with ErrRoomNotJoinable and mutate nothing.
func (s *Service) JoinRoom(ctx context.Context, code, nickname, avatar string) error {
	return s.mutate(ctx, code, func(r *room.Room) (bool, error) {
		if err := Join(r, s.playerID, nickname, avatar); err != nil {
			return false, err
		}
		return true, nil
	})
}

// LeaveRoom removes this principal, reassigning the host or deleting
// the room as needed.
func (s *Service) LeaveRoom(ctx context.Context, code string) error {
	err := s.mutate(ctx, code, func(r *room.Room) (bool, error) {
		if r.Player(s.playerID) == nil {
			return false, nil
		}
		Leave(r, s.playerID)
		return true, nil
	})
	if err == nil {
		log.Info().Str("room", code).Str("player_id", s.playerID).Msg("left room")
	}
	return err
}

// StartGame fetches a question batch and moves the lobby into
// countdown. Content failures leave the room untouched in the lobby,
// surfaced to the host as ErrNoQuestions.
func (s *Service) StartGame(ctx context.Context, code string, categoryIDs []int, count int, difficulty string) error {
	// Check authority and lobby size before spending a content fetch.
	if err := s.mutate(ctx, code, func(r *room.Room) (bool, error) {
		if r.HostID != s.playerID {
			return false, ErrNotHost
		}
		if r.Status != room.StatusLobby {
			return false, ErrWrongStatus
		}
		if len(r.Players) < MinPlayers {
			return false, ErrNotEnoughPlayers
		}
		return false, nil
	}); err != nil {
		return err
	}

	questions, err := s.source.FetchQuestions(ctx, categoryIDs, count, difficulty)
	if err != nil {
		return fmt.Errorf("fetch questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	err = s.mutate(ctx, code, func(r *room.Room) (bool, error) {
		if r.HostID != s.playerID {
			return false, ErrNotHost
		}
		if err := Start(r, questions, s.clock.Now()); err != nil {
			return false, err
		}
		return true, nil
	})
	if err == nil {
		log.Info().Str("room", code).Int("questions", len(questions)).Msg("game started")
	}
	return err
}

// BeginPlay attempts countdown→playing. Any client may call it; losing
// the race is success.
func (s *Service) BeginPlay(ctx context.Context, code string) error {
	return s.mutate(ctx, code, func(r *room.Room) (bool, error) {
		return BeginPlay(r, s.clock.Now()), nil
	})
}

// AdvanceQuestion moves past the question at expectedIndex. Host only;
// a stale index is a silent no-op, which is what makes duplicate
// advance triggers safe.
func (s *Service) AdvanceQuestion(ctx context.Context, code string, expectedIndex int) error {
	return s.mutate(ctx, code, func(r *room.Room) (bool, error) {
		if r.HostID != s.playerID {
			return false, ErrNotHost
		}
		return Advance(r, expectedIndex, s.clock.Now()), nil
	})
}

// PlayAgain returns a finished room to the lobby. Host only.
func (s *Service) PlayAgain(ctx context.Context, code string) error {
	return s.mutate(ctx, code, func(r *room.Room) (bool, error) {
		if r.HostID != s.playerID {
			return false, ErrNotHost
		}
		if err := Reset(r); err != nil {
			return false, err
		}
		return true, nil
	})
}

// SubmitAnswer records this principal's answer to the current
// question, scored locally against the shared start timestamp.
func (s *Service) SubmitAnswer(ctx context.Context, code, answer string) error {
	return s.mutate(ctx, code, func(r *room.Room) (bool, error) {
		if err := ApplyAnswer(r, s.playerID, answer, s.clock.Now()); err != nil {
			return false, err
		}
		return true, nil
	})
}

// SendEmote publishes a transient emote and schedules its expiry. The
// expiry write only clears the same emote value, so a newer emote
// outlives a stale timer.
func (s *Service) SendEmote(ctx context.Context, code, emote string) error {
	err := s.mutate(ctx, code, func(r *room.Room) (bool, error) {
		if err := SetEmote(r, s.playerID, emote); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	s.clock.AfterFunc(EmoteTTL, func() {
		clearErr := s.mutate(context.Background(), code, func(r *room.Room) (bool, error) {
			return ClearEmote(r, s.playerID, emote), nil
		})
		if clearErr != nil && !errors.Is(clearErr, ErrRoomNotFound) {
			log.Debug().Err(clearErr).Str("room", code).Msg("emote expiry write failed")
		}
	})
	return nil
}

// GetRoom reads the current room document.
func (s *Service) GetRoom(ctx context.Context, code string) (*room.Room, error) {
	data, _, err := s.store.Get(ctx, room.Key(code))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room.Unmarshal(data)
}
