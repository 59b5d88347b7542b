package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPScorer calls an external semantic scoring API. The request is
// bounded by the caller's context; the client itself sets no timeout.
type HTTPScorer struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPScorer creates a scorer client for the given endpoint.
func NewHTTPScorer(baseURL, apiKey string) *HTTPScorer {
	return &HTTPScorer{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

type scoreRequest struct {
	Prompt        string `json:"prompt"`
	CorrectAnswer string `json:"correct_answer"`
	UserAnswer    string `json:"user_answer"`
}

type scoreResponse struct {
	Score  *int `json:"score"`
	Result *struct {
		Score *int `json:"score"`
	} `json:"result"`
}

// Score asks the API to grade the answer from 0 to 2.
func (c *HTTPScorer) Score(ctx context.Context, correct, answer string) (int, error) {
	payload := scoreRequest{
		Prompt: fmt.Sprintf(
			"Score translation quality from 0 to 2. 0=wrong, 1=partial, 2=correct. Correct answer: %s. User answer: %s.",
			correct, answer,
		),
		CorrectAnswer: correct,
		UserAnswer:    answer,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call semantic scorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("scorer returned status code: %d, response: %s", resp.StatusCode, string(responseBody))
	}

	var parsed scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to decode scorer response: %w", err)
	}

	score := parsed.Score
	if score == nil && parsed.Result != nil {
		score = parsed.Result.Score
	}
	if score == nil {
		return 0, fmt.Errorf("scorer response missing score field")
	}

	value := *score
	if value < 0 {
		value = 0
	}
	if value > 2 {
		value = 2
	}
	return value, nil
}
