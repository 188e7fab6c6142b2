package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizwar/internal/config"
	"github.com/mcdev12/quizwar/internal/game"
	"github.com/mcdev12/quizwar/internal/identity"
	"github.com/mcdev12/quizwar/internal/store"
	"github.com/mcdev12/quizwar/internal/trivia"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to yaml config file")
		create     = flag.Bool("create", false, "create a new room")
		join       = flag.String("join", "", "room code to join")
		nickname   = flag.String("nick", "", "nickname (required)")
		avatar     = flag.String("avatar", "🙂", "avatar glyph")
		count      = flag.Int("count", 10, "questions per game")
		difficulty = flag.String("difficulty", "", "easy, medium or hard (empty = any)")
		categories = flag.String("categories", "", "comma-separated category ids (max 4)")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	if *nickname == "" {
		log.Fatal().Msg("-nick is required")
	}
	if *create == (*join != "") {
		log.Fatal().Msg("pass exactly one of -create or -join CODE")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	idPath := cfg.Identity.Path
	if idPath == "" {
		idPath, err = identity.DefaultPath()
		if err != nil {
			log.Fatal().Err(err).Msg("resolve identity path")
		}
	}
	playerID, err := identity.Ensure(idPath)
	if err != nil {
		log.Fatal().Err(err).Msg("ensure identity")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.NewNATSKV(ctx, store.NATSKVConfig{
		URL:           cfg.NATS.URL,
		Bucket:        cfg.NATS.Bucket,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect store")
	}
	defer st.Close()

	source := trivia.NewClient(cfg.Trivia.BaseURL, time.Duration(cfg.Trivia.TimeoutSec)*time.Second)
	clock := clockwork.NewRealClock()
	service := game.NewService(st, clock, source, playerID)

	var code string
	if *create {
		code, err = service.CreateRoom(ctx, *nickname, *avatar)
		if err != nil {
			log.Fatal().Err(err).Msg("create room")
		}
		fmt.Printf("Room created. Share this code: %s\n", code)
	} else {
		code = strings.ToUpper(*join)
		if err := service.JoinRoom(ctx, code, *nickname, *avatar); err != nil {
			log.Fatal().Err(err).Str("room", code).Msg("join room")
		}
		fmt.Printf("Joined room %s\n", code)
	}

	renderer := newRenderer()
	loop := game.NewLoop(service, st, clock, code, renderer.render)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := loop.Run(ctx); err != nil {
			log.Error().Err(err).Msg("sync loop")
		}
	}()

	go readCommands(ctx, cancel, service, renderer, code, *count, *difficulty, parseCategories(*categories))

	select {
	case <-done:
		fmt.Println("Room closed.")
	case <-ctx.Done():
	}

	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer leaveCancel()
	if err := service.LeaveRoom(leaveCtx, code); err != nil && !errors.Is(err, game.ErrRoomNotFound) {
		log.Error().Err(err).Msg("leave room")
	}
}

func readCommands(ctx context.Context, cancel context.CancelFunc, service *game.Service, r *renderer, code string, count int, difficulty string, categoryIDs []int) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Commands: start | a <n> | emote <text> | again | quit")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "start":
			err = service.StartGame(ctx, code, categoryIDs, count, difficulty)
		case "a", "answer":
			if len(fields) < 2 {
				fmt.Println("usage: a <answer number>")
				continue
			}
			var answer string
			answer, err = r.answerByNumber(fields[1])
			if err == nil {
				err = service.SubmitAnswer(ctx, code, answer)
			}
		case "emote":
			if len(fields) < 2 {
				fmt.Println("usage: emote <text>")
				continue
			}
			err = service.SendEmote(ctx, code, strings.Join(fields[1:], " "))
		case "again":
			err = service.PlayAgain(ctx, code)
		case "quit", "leave", "q":
			cancel()
			return
		default:
			fmt.Printf("unknown command %q\n", fields[0])
			continue
		}

		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
	cancel()
}

func parseCategories(s string) []int {
	if s == "" {
		return nil
	}
	var ids []int
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			log.Fatal().Str("value", part).Msg("invalid category id")
		}
		ids = append(ids, id)
	}
	return ids
}

// renderer turns view snapshots into terminal output. It remembers the
// latest view so commands can resolve answer numbers.
type renderer struct {
	mu   sync.Mutex
	view *game.View
}

func newRenderer() *renderer {
	return &renderer{}
}

func (r *renderer) answerByNumber(s string) (string, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return "", fmt.Errorf("not a number: %q", s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.view == nil || n < 1 || n > len(r.view.Answers) {
		return "", fmt.Errorf("no answer #%d on screen", n)
	}
	return r.view.Answers[n-1], nil
}

func (r *renderer) render(v game.View) {
	r.mu.Lock()
	prev := r.view
	r.view = &v
	r.mu.Unlock()

	switch v.Screen {
	case game.ScreenLobby:
		fmt.Printf("\n-- Lobby %s --\n", v.Code)
		for _, p := range v.Players {
			host := ""
			if p.Host {
				host = " (host)"
			}
			fmt.Printf("  %s %s%s\n", p.Avatar, p.Nickname, host)
		}
		if v.IsHost {
			fmt.Println("You are the host. Type 'start' when everyone is in.")
		}

	case game.ScreenGame:
		r.renderGame(prev, v)

	case game.ScreenResults:
		fmt.Println("\n== Final scores ==")
		for i, p := range v.Players {
			badge := ""
			if i == 0 {
				badge = " 🏆"
			}
			fmt.Printf("  %d. %s %s — %d pts (%d streak)%s\n", i+1, p.Avatar, p.Nickname, p.Score, p.Streak, badge)
		}
		if v.IsHost {
			fmt.Println("Type 'again' to play another round.")
		}

	case game.ScreenGone:
		fmt.Println("The room was deleted.")
	}
}

func (r *renderer) renderGame(prev *game.View, v game.View) {
	if v.CountdownRemaining > 0 {
		if prev == nil || prev.CountdownRemaining != v.CountdownRemaining {
			fmt.Printf("Starting in %d...\n", v.CountdownRemaining)
		}
		return
	}

	newQuestion := prev == nil || prev.QuestionNumber != v.QuestionNumber
	if newQuestion && v.Prompt != "" {
		fmt.Printf("\nQ%d/%d [%d pts base]: %s\n", v.QuestionNumber, v.TotalQuestions, game.BasePoints, v.Prompt)
		for i, a := range v.Answers {
			fmt.Printf("  %d) %s\n", i+1, a)
		}
	}

	if prev != nil && prev.TimeRemaining != v.TimeRemaining && !v.Revealed {
		fmt.Printf("  %ds left\n", v.TimeRemaining)
	}

	if v.Revealed && (prev == nil || !prev.Revealed) {
		fmt.Printf("Correct answer: %s\n", v.CorrectAnswer)
		if v.MyCorrect != nil && *v.MyCorrect {
			fmt.Println("You got it!")
		} else if v.MyAnswer != nil {
			fmt.Println("Wrong this time.")
		} else {
			fmt.Println("Time's up — no answer.")
		}
		for _, p := range v.Players {
			mark := "✗"
			if p.Correct != nil && *p.Correct {
				mark = "✓"
			}
			fast := ""
			if p.Fastest {
				fast = " ⚡"
			}
			fmt.Printf("  %s %s %s — %d pts%s\n", mark, p.Avatar, p.Nickname, p.Score, fast)
		}
	}
}
