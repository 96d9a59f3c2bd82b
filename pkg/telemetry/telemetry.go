package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/autopilot/pkg/types"
)

// Window is a half-open query interval [Start, End). Windows are aligned to
// 60-second buckets before being sent to the backend.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow returns the window covering the last minutes before now,
// aligned down to the minute.
func NewWindow(now time.Time, minutes int) Window {
	end := now.Truncate(time.Minute)
	return Window{
		Start: end.Add(-time.Duration(minutes) * time.Minute),
		End:   end,
	}
}

// Counts aggregates the request-count queries for one window
type Counts struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Errors  int `json:"errors"`
}

// Client queries the telemetry backend for one service/region pair.
// Implementations must be safe for concurrent use.
type Client interface {
	// RequestCounts returns total, success, and 5xx request counts
	RequestCounts(ctx context.Context, service, region string, w Window) (Counts, error)

	// LatencyP95 returns the p95 request latency in milliseconds,
	// or nil when the window carries no latency data
	LatencyP95(ctx context.Context, service, region string, w Window) (*float64, error)

	// ErrorLogs returns up to limit log entries at severity ERROR or above
	ErrorLogs(ctx context.Context, service, region string, w Window, limit int) ([]types.LogSample, error)
}

// HTTPClient talks to a telemetry query API over HTTP+JSON
type HTTPClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClient creates a telemetry client against endpoint with the given
// per-request timeout.
func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type metricQuery struct {
	Service        string    `json:"service"`
	Region         string    `json:"region"`
	Metric         string    `json:"metric"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	AlignSeconds   int       `json:"align_seconds"`
	ResponseClass  string    `json:"response_class,omitempty"`
	Reducer        string    `json:"reducer,omitempty"`
	PercentileRank int       `json:"percentile,omitempty"`
}

type metricResult struct {
	Value *float64 `json:"value"`
}

type logQuery struct {
	Service     string    `json:"service"`
	Region      string    `json:"region"`
	MinSeverity string    `json:"min_severity"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Limit       int       `json:"limit"`
}

type logResult struct {
	Entries []types.LogSample `json:"entries"`
}

// RequestCounts issues the total and 5xx count queries
func (c *HTTPClient) RequestCounts(ctx context.Context, service, region string, w Window) (Counts, error) {
	total, err := c.queryMetric(ctx, metricQuery{
		Service: service, Region: region,
		Metric: "request_count",
		Start:  w.Start, End: w.End,
		AlignSeconds: 60,
		Reducer:      "sum",
	})
	if err != nil {
		return Counts{}, fmt.Errorf("request count query failed: %w", err)
	}

	errors, err := c.queryMetric(ctx, metricQuery{
		Service: service, Region: region,
		Metric: "request_count",
		Start:  w.Start, End: w.End,
		AlignSeconds:  60,
		Reducer:       "sum",
		ResponseClass: "5xx",
	})
	if err != nil {
		return Counts{}, fmt.Errorf("error count query failed: %w", err)
	}

	counts := Counts{}
	if total != nil {
		counts.Total = int(*total)
	}
	if errors != nil {
		counts.Errors = int(*errors)
	}
	counts.Success = counts.Total - counts.Errors
	if counts.Success < 0 {
		counts.Success = 0
	}
	return counts, nil
}

// LatencyP95 issues the p95 latency reduction query
func (c *HTTPClient) LatencyP95(ctx context.Context, service, region string, w Window) (*float64, error) {
	value, err := c.queryMetric(ctx, metricQuery{
		Service: service, Region: region,
		Metric: "request_latencies",
		Start:  w.Start, End: w.End,
		AlignSeconds:   60,
		Reducer:        "percentile",
		PercentileRank: 95,
	})
	if err != nil {
		return nil, fmt.Errorf("latency query failed: %w", err)
	}
	return value, nil
}

// ErrorLogs fetches log entries at severity >= ERROR for the window
func (c *HTTPClient) ErrorLogs(ctx context.Context, service, region string, w Window, limit int) ([]types.LogSample, error) {
	body, err := json.Marshal(logQuery{
		Service: service, Region: region,
		MinSeverity: "ERROR",
		Start:       w.Start, End: w.End,
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}

	var result logResult
	if err := c.post(ctx, "/v1/logs:query", body, &result); err != nil {
		return nil, fmt.Errorf("log query failed: %w", err)
	}

	// Truncate messages at capture time
	for i := range result.Entries {
		if len(result.Entries[i].Message) > types.MaxLogMessageLen {
			result.Entries[i].Message = result.Entries[i].Message[:types.MaxLogMessageLen]
		}
	}
	if len(result.Entries) > limit {
		result.Entries = result.Entries[:limit]
	}
	return result.Entries, nil
}

func (c *HTTPClient) queryMetric(ctx context.Context, q metricQuery) (*float64, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	var result metricResult
	if err := c.post(ctx, "/v1/metrics:query", body, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telemetry backend returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
