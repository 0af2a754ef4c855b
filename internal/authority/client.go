package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quizlive/player/internal/logging"
)

// Client talks to the remote session authority over HTTP. It owns nothing
// beyond the transport: decoding happens once per response, and non-2xx
// statuses are converted into classified errors before they reach the
// session layer.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:5005"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// Join registers a player for a session and returns the opaque player id
// the authority issued. The id is immutable for the session's lifetime.
func (c *Client) Join(ctx context.Context, sessionID, name string) (string, error) {
	var payload struct {
		PlayerID string `json:"playerId"`
	}
	body := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/play/join/%s", sessionID), body, &payload); err != nil {
		return "", err
	}
	if payload.PlayerID == "" {
		return "", &Error{Kind: KindValidation, Op: "join", Message: "authority returned no player id"}
	}
	return payload.PlayerID, nil
}

// GetStatus reports whether the game has started for this player.
func (c *Client) GetStatus(ctx context.Context, playerID string) (Status, error) {
	var payload Status
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/play/%s/status", playerID), nil, &payload); err != nil {
		return Status{}, err
	}
	return payload, nil
}

// GetQuestion fetches the currently active question. A session with no
// active question yet yields an Absent result, not an error.
func (c *Client) GetQuestion(ctx context.Context, playerID string) (QuestionResult, error) {
	var payload struct {
		Question *Question `json:"question"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/play/%s/question", playerID), nil, &payload); err != nil {
		return QuestionResult{}, err
	}
	if payload.Question == nil {
		return QuestionResult{Absent: true}, nil
	}
	if err := payload.Question.Validate(); err != nil {
		return QuestionResult{}, &Error{Kind: KindValidation, Op: "question", Message: err.Error()}
	}
	return QuestionResult{Question: *payload.Question}, nil
}

// GetCorrectAnswers fetches the canonical correct-answer set for the active
// question. The authority answers with an empty set until the reveal.
func (c *Client) GetCorrectAnswers(ctx context.Context, playerID string) (Reveal, error) {
	var payload struct {
		AnswerIDs []int64 `json:"answerIds"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/play/%s/answer", playerID), nil, &payload); err != nil {
		return Reveal{}, err
	}
	if len(payload.AnswerIDs) == 0 {
		return Reveal{}, nil
	}
	return Reveal{Available: true, IDs: payload.AnswerIDs}, nil
}

// SubmitAnswers records the player's answer set for the active question.
// The call is not idempotent on the authority side and must not be retried
// automatically on ambiguous failure.
func (c *Client) SubmitAnswers(ctx context.Context, playerID string, answerIDs []int64) error {
	if len(answerIDs) == 0 {
		return &Error{Kind: KindValidation, Op: "submit", Message: "empty answer set"}
	}
	body := map[string][]int64{"answerIds": answerIDs}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/play/%s/answer", playerID), body, nil)
}

// GetResults fetches the ordered per-question outcome sequence after the
// session has closed.
func (c *Client) GetResults(ctx context.Context, playerID string) ([]Outcome, error) {
	var payload []Outcome
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/play/%s/results", playerID), nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransient, Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		classified := classify(op, resp.StatusCode)
		logger := logging.FromContext(ctx)
		logger.Debug().
			Str("request_id", reqID).
			Int("status", resp.StatusCode).
			Str("kind", string(classified.Kind)).
			Msg(op)
		return classified
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindTransient, Op: op, Message: "decode response: " + err.Error()}
	}
	return nil
}
