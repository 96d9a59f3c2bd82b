package telemetry

import (
	"context"
	"sync"

	"github.com/cuemby/autopilot/pkg/types"
)

// FakeClient is an in-memory telemetry backend for tests and local mode.
// Per-signal errors can be injected to exercise degraded paths.
type FakeClient struct {
	mu sync.RWMutex

	counts  map[string]Counts
	latency map[string]*float64
	logs    map[string][]types.LogSample

	CountsErr  error
	LatencyErr error
	LogsErr    error
}

// NewFakeClient creates an empty fake telemetry backend
func NewFakeClient() *FakeClient {
	return &FakeClient{
		counts:  make(map[string]Counts),
		latency: make(map[string]*float64),
		logs:    make(map[string][]types.LogSample),
	}
}

func key(service, region string) string {
	return service + "/" + region
}

// SetCounts seeds the request counts for one service
func (f *FakeClient) SetCounts(service, region string, c Counts) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key(service, region)] = c
}

// SetLatencyP95 seeds the p95 latency for one service; nil means no data
func (f *FakeClient) SetLatencyP95(service, region string, ms *float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency[key(service, region)] = ms
}

// SetLogs seeds the error log entries for one service
func (f *FakeClient) SetLogs(service, region string, entries []types.LogSample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[key(service, region)] = entries
}

func (f *FakeClient) RequestCounts(ctx context.Context, service, region string, w Window) (Counts, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.CountsErr != nil {
		return Counts{}, f.CountsErr
	}
	return f.counts[key(service, region)], nil
}

func (f *FakeClient) LatencyP95(ctx context.Context, service, region string, w Window) (*float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.LatencyErr != nil {
		return nil, f.LatencyErr
	}
	return f.latency[key(service, region)], nil
}

func (f *FakeClient) ErrorLogs(ctx context.Context, service, region string, w Window, limit int) ([]types.LogSample, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.LogsErr != nil {
		return nil, f.LogsErr
	}
	entries := f.logs[key(service, region)]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]types.LogSample, len(entries))
	copy(out, entries)
	for i := range out {
		if len(out[i].Message) > types.MaxLogMessageLen {
			out[i].Message = out[i].Message[:types.MaxLogMessageLen]
		}
	}
	return out, nil
}
