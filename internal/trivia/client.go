// Package trivia fetches multiple-choice questions from the Open
// Trivia Database (opentdb.com).
package trivia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizwar/internal/room"
)

const (
	// DefaultBaseURL is the public Open Trivia DB endpoint.
	DefaultBaseURL = "https://opentdb.com"

	questionsEndpoint  = "/api.php"
	categoriesEndpoint = "/api_category.php"

	// MaxCategories bounds how many categories one game may mix.
	MaxCategories = 4
)

// Open Trivia DB response codes.
const (
	codeSuccess   = 0
	codeNoResults = 1
	codeRateLimit = 5
)

var (
	// ErrNoQuestions is returned when the API yields zero usable
	// questions for the requested filters.
	ErrNoQuestions = errors.New("trivia: no questions available")
	// ErrRateLimited is returned when the API throttles the caller.
	ErrRateLimited = errors.New("trivia: rate limited")
)

// Category is one selectable question category.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Client talks to the Open Trivia DB API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client against the given base URL; pass
// DefaultBaseURL for the public API.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type apiResponse struct {
	ResponseCode int           `json:"response_code"`
	Results      []apiQuestion `json:"results"`
}

type apiQuestion struct {
	Category         string   `json:"category"`
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

type categoriesResponse struct {
	TriviaCategories []Category `json:"trivia_categories"`
}

// Categories lists the selectable categories.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	body, err := c.get(ctx, categoriesEndpoint, nil)
	if err != nil {
		return nil, err
	}
	var resp categoriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	return resp.TriviaCategories, nil
}

// FetchQuestions retrieves up to count questions spread across the
// given categories (all categories when empty). The API may return
// fewer than requested; a short batch is fine, an empty one is
// ErrNoQuestions. Answer order inside each question is shuffled once
// here so every client sees the same layout.
func (c *Client) FetchQuestions(ctx context.Context, categoryIDs []int, count int, difficulty string) ([]room.Question, error) {
	if count <= 0 {
		return nil, ErrNoQuestions
	}
	if len(categoryIDs) > MaxCategories {
		categoryIDs = categoryIDs[:MaxCategories]
	}

	var questions []room.Question
	if len(categoryIDs) == 0 {
		batch, err := c.fetchBatch(ctx, 0, count, difficulty)
		if err != nil {
			return nil, err
		}
		questions = batch
	} else {
		// Spread the request across categories; remainders go to the
		// first one.
		per := count / len(categoryIDs)
		extra := count % len(categoryIDs)
		for i, id := range categoryIDs {
			want := per
			if i == 0 {
				want += extra
			}
			if want == 0 {
				continue
			}
			batch, err := c.fetchBatch(ctx, id, want, difficulty)
			if err != nil {
				if errors.Is(err, ErrNoQuestions) {
					log.Debug().Int("category", id).Msg("category returned no questions")
					continue
				}
				return nil, err
			}
			questions = append(questions, batch...)
		}
	}

	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	rand.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	if len(questions) > count {
		questions = questions[:count]
	}
	return questions, nil
}

func (c *Client) fetchBatch(ctx context.Context, categoryID, count int, difficulty string) ([]room.Question, error) {
	params := url.Values{}
	params.Set("amount", strconv.Itoa(count))
	params.Set("type", "multiple")
	if categoryID > 0 {
		params.Set("category", strconv.Itoa(categoryID))
	}
	if difficulty != "" {
		params.Set("difficulty", difficulty)
	}

	body, err := c.get(ctx, questionsEndpoint, params)
	if err != nil {
		return nil, err
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	switch resp.ResponseCode {
	case codeSuccess:
	case codeNoResults:
		return nil, ErrNoQuestions
	case codeRateLimit:
		return nil, ErrRateLimited
	default:
		return nil, fmt.Errorf("trivia: API response code %d", resp.ResponseCode)
	}

	questions := make([]room.Question, 0, len(resp.Results))
	for _, q := range resp.Results {
		questions = append(questions, decodeQuestion(q))
	}
	return questions, nil
}

// decodeQuestion unescapes the API's HTML-encoded text and shuffles
// the candidate answers into their final stored order.
func decodeQuestion(q apiQuestion) room.Question {
	answers := make([]string, 0, len(q.IncorrectAnswers)+1)
	for _, a := range q.IncorrectAnswers {
		answers = append(answers, html.UnescapeString(a))
	}
	correct := html.UnescapeString(q.CorrectAnswer)
	answers = append(answers, correct)
	rand.Shuffle(len(answers), func(i, j int) {
		answers[i], answers[j] = answers[j], answers[i]
	})

	return room.Question{
		Category:      html.UnescapeString(q.Category),
		Difficulty:    q.Difficulty,
		Prompt:        html.UnescapeString(q.Question),
		CorrectAnswer: correct,
		Answers:       answers,
	}
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	target := c.baseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("trivia API status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}
