package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/autopilot/pkg/types"
)

func TestNewWindowAlignsToMinute(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 32, 47, 123456789, time.UTC)

	w := NewWindow(now, 5)
	assert.Equal(t, time.Date(2026, 8, 24, 10, 32, 0, 0, time.UTC), w.End)
	assert.Equal(t, time.Date(2026, 8, 24, 10, 27, 0, 0, time.UTC), w.Start)
}

func TestRequestCounts(t *testing.T) {
	var queries []metricQuery
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/metrics:query", r.URL.Path)
		var q metricQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		queries = append(queries, q)

		value := 1000.0
		if q.ResponseClass == "5xx" {
			value = 150.0
		}
		_ = json.NewEncoder(w).Encode(metricResult{Value: &value})
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, 10*time.Second)
	counts, err := c.RequestCounts(context.Background(), "svc", "us-central1", NewWindow(time.Now(), 5))
	require.NoError(t, err)

	assert.Equal(t, Counts{Total: 1000, Success: 850, Errors: 150}, counts)

	// One total query and one 5xx query, both minute-aligned sums
	require.Len(t, queries, 2)
	assert.Equal(t, "sum", queries[0].Reducer)
	assert.Equal(t, 60, queries[0].AlignSeconds)
	assert.Empty(t, queries[0].ResponseClass)
	assert.Equal(t, "5xx", queries[1].ResponseClass)
}

func TestRequestCountsEmptyWindow(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// nil value means no data points in the window
		_ = json.NewEncoder(w).Encode(metricResult{})
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, 10*time.Second)
	counts, err := c.RequestCounts(context.Background(), "svc", "us-central1", NewWindow(time.Now(), 5))
	require.NoError(t, err)
	assert.Equal(t, Counts{}, counts)
}

func TestRequestCountsBackendError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, 10*time.Second)
	_, err := c.RequestCounts(context.Background(), "svc", "us-central1", NewWindow(time.Now(), 5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestLatencyP95(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var q metricQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, "request_latencies", q.Metric)
		assert.Equal(t, "percentile", q.Reducer)
		assert.Equal(t, 95, q.PercentileRank)

		value := 432.5
		_ = json.NewEncoder(w).Encode(metricResult{Value: &value})
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, 10*time.Second)
	value, err := c.LatencyP95(context.Background(), "svc", "us-central1", NewWindow(time.Now(), 5))
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, 432.5, *value)
}

func TestErrorLogsTruncatesLongMessages(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/logs:query", r.URL.Path)
		var q logQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, "ERROR", q.MinSeverity)

		_ = json.NewEncoder(w).Encode(logResult{Entries: []types.LogSample{
			{Severity: "ERROR", Message: strings.Repeat("x", 2000)},
			{Severity: "CRITICAL", Message: "short"},
		}})
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, 10*time.Second)
	entries, err := c.ErrorLogs(context.Background(), "svc", "us-central1", NewWindow(time.Now(), 5), 50)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Len(t, entries[0].Message, types.MaxLogMessageLen)
	assert.Equal(t, "short", entries[1].Message)
}
