package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ModelClient is a single-turn generative model call
type ModelClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// HTTPModelClient calls an OpenAI-compatible chat completions endpoint.
// Generation is low temperature with a fixed token cap so replies stay
// parseable and consistent.
type HTTPModelClient struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewHTTPModelClient creates a model client against endpoint
func NewHTTPModelClient(endpoint, model string, timeout time.Duration) *HTTPModelClient {
	return &HTTPModelClient{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt as a single user message and returns the reply text
func (c *HTTPModelClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.2,
		MaxTokens:   2048,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model returned status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding model response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// FakeModel returns canned replies in order, then repeats the last one.
// An injected Err wins over replies.
type FakeModel struct {
	mu      sync.Mutex
	Replies []string
	Err     error
	Prompts []string
	next    int
}

func (f *FakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, prompt)
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Replies) == 0 {
		return "", fmt.Errorf("fake model has no replies")
	}
	reply := f.Replies[f.next]
	if f.next < len(f.Replies)-1 {
		f.next++
	}
	return reply, nil
}
