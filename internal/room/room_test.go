package room

import (
	"errors"
	"testing"
	"time"
)

func validQuestion() Question {
	return Question{
		Category:      "Science",
		Difficulty:    "medium",
		Prompt:        "What is H2O?",
		CorrectAnswer: "Water",
		Answers:       []string{"Water", "Salt", "Air", "Fire"},
	}
}

func TestNewRoomIsValidLobby(t *testing.T) {
	r := New("p1", "Ana", "🦊")
	if r.Status != StatusLobby {
		t.Fatalf("expected lobby, got %s", r.Status)
	}
	if r.HostID != "p1" {
		t.Fatalf("expected host p1, got %q", r.HostID)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Room)
		wantErr error
	}{
		{
			name:   "valid playing room",
			mutate: func(r *Room) {},
		},
		{
			name:    "host not present",
			mutate:  func(r *Room) { r.HostID = "ghost" },
			wantErr: ErrNoHost,
		},
		{
			name:    "index past question set",
			mutate:  func(r *Room) { r.CurrentQuestionIndex = 5 },
			wantErr: ErrIndexRange,
		},
		{
			name:    "negative index",
			mutate:  func(r *Room) { r.CurrentQuestionIndex = -1 },
			wantErr: ErrIndexRange,
		},
		{
			name:    "question with empty prompt",
			mutate:  func(r *Room) { r.Questions[0].Prompt = "" },
			wantErr: ErrBadQuestion,
		},
		{
			name:    "answers missing the correct one",
			mutate:  func(r *Room) { r.Questions[0].Answers = []string{"Salt", "Air"} },
			wantErr: ErrBadQuestion,
		},
		{
			name:    "too few answers",
			mutate:  func(r *Room) { r.Questions[0].Answers = []string{"Water"} },
			wantErr: ErrBadQuestion,
		},
		{
			name: "too many answers",
			mutate: func(r *Room) {
				r.Questions[0].Answers = []string{"Water", "A", "B", "C", "D"}
			},
			wantErr: ErrBadQuestion,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New("p1", "Ana", "")
			r.Status = StatusPlaying
			r.Questions = []Question{validQuestion()}
			tt.mutate(r)

			err := r.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateRejectsUnknownStatus(t *testing.T) {
	r := New("p1", "Ana", "")
	r.Status = Status("paused")
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestCurrentQuestionBounds(t *testing.T) {
	r := New("p1", "Ana", "")
	if r.CurrentQuestion() != nil {
		t.Fatal("expected nil with no questions")
	}
	r.Questions = []Question{validQuestion()}
	if q := r.CurrentQuestion(); q == nil || q.Prompt != "What is H2O?" {
		t.Fatalf("unexpected question %+v", q)
	}
	r.CurrentQuestionIndex = 1
	if r.CurrentQuestion() != nil {
		t.Fatal("expected nil past the end")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	answeredAt := time.Date(2025, 6, 1, 20, 0, 7, 0, time.UTC)
	answer := "Water"
	correct := true

	r := New("p1", "Ana", "🦊")
	r.Status = StatusPlaying
	r.Questions = []Question{validQuestion()}
	started := answeredAt.Add(-7 * time.Second)
	r.QuestionStartedAt = &started
	r.Players["p1"].Score = 42
	r.Players["p1"].SelectedAnswer = &answer
	r.Players["p1"].IsCorrect = &correct
	r.Players["p1"].AnsweredAt = &answeredAt

	data, err := Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	p := got.Players["p1"]
	if p == nil {
		t.Fatal("lost player record")
	}
	if p.Score != 42 {
		t.Fatalf("expected score 42, got %d", p.Score)
	}
	if p.SelectedAnswer == nil || *p.SelectedAnswer != "Water" {
		t.Fatalf("lost selected answer: %+v", p.SelectedAnswer)
	}
	if p.AnsweredAt == nil || !p.AnsweredAt.Equal(answeredAt) {
		t.Fatalf("lost answered-at: %+v", p.AnsweredAt)
	}
	if got.QuestionStartedAt == nil || !got.QuestionStartedAt.Equal(started) {
		t.Fatalf("lost question start: %+v", got.QuestionStartedAt)
	}
}

func TestUnmarshalNilDistinctFromAnswered(t *testing.T) {
	r := New("p1", "Ana", "")
	empty := ""
	r.Players["p1"].SelectedAnswer = &empty

	data, err := Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	// An empty-string answer is still an answer; only nil means
	// unanswered.
	if !got.Players["p1"].Answered() {
		t.Fatal("empty-string answer must survive as answered")
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed document")
	}
}

func TestUnmarshalInitializesPlayers(t *testing.T) {
	got, err := Unmarshal([]byte(`{"status":"lobby","host_id":"p1"}`))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Players == nil {
		t.Fatal("players map must never be nil")
	}
}

func TestKey(t *testing.T) {
	if got := Key("ABCD"); got != "rooms.ABCD" {
		t.Fatalf("unexpected key %q", got)
	}
}
