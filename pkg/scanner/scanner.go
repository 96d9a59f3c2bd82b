package scanner

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/autopilot/pkg/config"
	"github.com/cuemby/autopilot/pkg/log"
	"github.com/cuemby/autopilot/pkg/telemetry"
	"github.com/cuemby/autopilot/pkg/types"
)

// Scanner assesses the health of managed services from telemetry.
// Scan is total: transport failures collapse to an UNKNOWN assessment
// instead of an error.
type Scanner struct {
	telemetry telemetry.Client
	cfg       *config.Config
	now       func() time.Time
}

// New creates a scanner backed by the given telemetry client
func New(tc telemetry.Client, cfg *config.Config) *Scanner {
	return &Scanner{
		telemetry: tc,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Scan fetches one window of telemetry for target and reduces it to a
// ServiceHealth. It never returns an error: if the request-count signal
// cannot be fetched the status is UNKNOWN with zeroed metrics; latency and
// log failures degrade to missing data with a warning.
func (s *Scanner) Scan(ctx context.Context, target types.ServiceTarget) types.ServiceHealth {
	logger := log.WithService(target.Name, target.Region)
	window := telemetry.NewWindow(s.now(), s.cfg.ScanWindowMinutes)

	var (
		counts    telemetry.Counts
		countsErr error
		p95       *float64
		samples   []types.LogSample
	)

	// All three signals are fetched concurrently and all must complete;
	// latency and log failures yield missing data rather than aborting.
	var g errgroup.Group
	g.Go(func() error {
		counts, countsErr = s.telemetry.RequestCounts(ctx, target.Name, target.Region, window)
		return nil
	})
	g.Go(func() error {
		var err error
		p95, err = s.telemetry.LatencyP95(ctx, target.Name, target.Region, window)
		if err != nil {
			logger.Warn().Err(err).Msg("latency query failed, treating as no data")
			p95 = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		samples, err = s.telemetry.ErrorLogs(ctx, target.Name, target.Region, window, types.MaxLogSamples)
		if err != nil {
			logger.Warn().Err(err).Msg("log query failed, continuing without samples")
			samples = nil
		}
		return nil
	})
	_ = g.Wait()

	checkedAt := s.now()

	if countsErr != nil {
		logger.Error().Err(countsErr).Msg("telemetry unavailable, marking service unknown")
		return types.ServiceHealth{
			Service:   target.Name,
			Region:    target.Region,
			Status:    types.HealthStatusUnknown,
			Metrics:   types.HealthMetrics{Timestamp: checkedAt},
			CheckedAt: checkedAt,
		}
	}

	metrics := reduce(counts, p95, checkedAt)
	status, summary := assess(metrics, s.cfg, target)

	health := types.ServiceHealth{
		Service:        target.Name,
		Region:         target.Region,
		Status:         status,
		Metrics:        metrics,
		LogSamples:     samples,
		HasAnomaly:     status == types.HealthStatusDegraded || status == types.HealthStatusUnhealthy,
		AnomalySummary: summary,
		CheckedAt:      checkedAt,
	}

	logger.Debug().
		Str("status", string(status)).
		Float64("error_rate", metrics.ErrorRate).
		Int("requests", metrics.RequestCount).
		Msg("scan complete")

	return health
}

// reduce turns raw counts into a HealthMetrics snapshot.
// error_rate = 100 * errors / total when total > 0, rounded to two decimals.
func reduce(counts telemetry.Counts, p95 *float64, ts time.Time) types.HealthMetrics {
	m := types.HealthMetrics{
		RequestCount: counts.Total,
		SuccessCount: counts.Success,
		ErrorCount:   counts.Errors,
		LatencyP95:   p95,
		Timestamp:    ts,
	}
	if m.RequestCount > 0 {
		rate := 100 * float64(m.ErrorCount) / float64(m.RequestCount)
		m.ErrorRate = math.Round(rate*100) / 100
	}
	return m
}

// assess applies the deterministic anomaly rules. Below the minimum request
// floor a window carries no evidence and the service is HEALTHY. Otherwise
// each threshold breach is one violation: 0 violations HEALTHY, 1 DEGRADED,
// 2 or more UNHEALTHY.
func assess(m types.HealthMetrics, cfg *config.Config, target types.ServiceTarget) (types.HealthStatus, string) {
	errThreshold, latThreshold, minRequests := cfg.ThresholdsFor(target)

	if m.RequestCount < minRequests {
		return types.HealthStatusHealthy, ""
	}

	var violations []string
	if m.ErrorRate > errThreshold {
		violations = append(violations,
			fmt.Sprintf("high error rate: %.2f%% (threshold %.2f%%)", m.ErrorRate, errThreshold))
	}
	if m.LatencyP95 != nil && *m.LatencyP95 > latThreshold {
		violations = append(violations,
			fmt.Sprintf("high latency p95: %.0fms (threshold %.0fms)", *m.LatencyP95, latThreshold))
	}

	switch len(violations) {
	case 0:
		return types.HealthStatusHealthy, ""
	case 1:
		return types.HealthStatusDegraded, violations[0]
	default:
		return types.HealthStatusUnhealthy, strings.Join(violations, "; ")
	}
}
