package bus

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/autopilot/pkg/log"
	"github.com/cuemby/autopilot/pkg/metrics"
	"github.com/cuemby/autopilot/pkg/types"
)

const (
	maxAttempts    = 4
	initialBackoff = 250 * time.Millisecond
)

// HTTPPublisher posts envelopes to a bus REST endpoint with bounded
// exponential-backoff retry inside an overall publish deadline.
type HTTPPublisher struct {
	endpoint string
	topic    string
	timeout  time.Duration
	client   *http.Client
}

// NewHTTPPublisher creates a publisher for one topic
func NewHTTPPublisher(endpoint, topic string, timeout time.Duration) *HTTPPublisher {
	return &HTTPPublisher{
		endpoint: endpoint,
		topic:    topic,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

type publishRequest struct {
	Data       string            `json:"data"` // base64-encoded payload
	Attributes map[string]string `json:"attributes"`
}

type publishResponse struct {
	MessageID string `json:"messageId"`
}

// Publish emits env onto the topic. Transient failures are retried with
// exponential backoff until the attempt budget or the publish deadline
// runs out, then ErrTransient is returned.
func (p *HTTPPublisher) Publish(ctx context.Context, env *types.ActionEnvelope) (string, error) {
	data, attrs, err := encode(env)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(publishRequest{
		Data:       base64.StdEncoding.EncodeToString(data),
		Attributes: attrs,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		id, err := p.attempt(ctx, body)
		if err == nil {
			metrics.ActionsPublished.Inc()
			return id, nil
		}
		lastErr = err
		log.Logger.Warn().Err(err).Int("attempt", attempt).Msg("publish attempt failed")

		if attempt == maxAttempts {
			break
		}
		metrics.PublishRetries.Inc()
		select {
		case <-ctx.Done():
			metrics.PublishFailures.Inc()
			return "", fmt.Errorf("%w: %v", ErrTransient, errors.Join(lastErr, ctx.Err()))
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	metrics.PublishFailures.Inc()
	return "", fmt.Errorf("%w: %v", ErrTransient, lastErr)
}

func (p *HTTPPublisher) attempt(ctx context.Context, body []byte) (string, error) {
	url := fmt.Sprintf("%s/v1/topics/%s:publish", p.endpoint, p.topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bus returned status %d", resp.StatusCode)
	}

	var out publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding publish response: %w", err)
	}
	return out.MessageID, nil
}
