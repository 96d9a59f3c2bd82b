package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/autopilot/pkg/bus"
	"github.com/cuemby/autopilot/pkg/config"
	"github.com/cuemby/autopilot/pkg/log"
	"github.com/cuemby/autopilot/pkg/metrics"
	"github.com/cuemby/autopilot/pkg/reasoner"
	"github.com/cuemby/autopilot/pkg/scanner"
	"github.com/cuemby/autopilot/pkg/store"
	"github.com/cuemby/autopilot/pkg/types"
)

// Supervisor orchestrates the detect and decide half of the pipeline:
// scan the fleet, reason about anomalies, persist incidents, and publish
// action envelopes. It owns each incident only until ACTION_PENDING; after
// publish the fixer owns all further transitions.
type Supervisor struct {
	cfg       *config.Config
	scanner   *scanner.Scanner
	reasoner  *reasoner.Reasoner
	store     store.Store
	publisher bus.Publisher
	now       func() time.Time

	mu       sync.RWMutex
	statuses map[string]types.ServiceStatus
}

// New creates a supervisor
func New(cfg *config.Config, sc *scanner.Scanner, rs *reasoner.Reasoner, st store.Store, pub bus.Publisher) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		scanner:   sc,
		reasoner:  rs,
		store:     st,
		publisher: pub,
		now:       time.Now,
		statuses:  make(map[string]types.ServiceStatus),
	}
}

// ScanAll scans every configured target concurrently and processes the
// anomalies. A failure for one service never halts the others, and a
// persistence or publish failure is recorded in the detail but does not
// fail the scan.
func (s *Supervisor) ScanAll(ctx context.Context) *types.ScanReport {
	scanID := uuid.New().String()
	logger := log.WithScanID(scanID)
	start := s.now()

	logger.Info().Int("targets", len(s.cfg.Targets)).Msg("starting fleet scan")

	details := make([]types.ScanDetail, len(s.cfg.Targets))

	var g errgroup.Group
	if s.cfg.ScanConcurrency > 0 {
		g.SetLimit(s.cfg.ScanConcurrency)
	}
	for i, target := range s.cfg.Targets {
		i, target := i, target
		g.Go(func() error {
			details[i] = s.scanOne(ctx, target)
			return nil
		})
	}
	_ = g.Wait()

	report := &types.ScanReport{
		ScanID:          scanID,
		Timestamp:       start,
		ServicesScanned: len(details),
		Details:         details,
	}
	for _, d := range details {
		if d.HasAnomaly {
			report.AnomaliesDetected++
		}
		if d.Published {
			report.ActionsPublished++
		}
	}

	metrics.ScansTotal.Inc()
	metrics.ScanDuration.Observe(time.Since(start).Seconds())

	logger.Info().
		Int("scanned", report.ServicesScanned).
		Int("anomalies", report.AnomaliesDetected).
		Int("actions", report.ActionsPublished).
		Msg("fleet scan complete")
	return report
}

// scanOne runs the full detect-decide-dispatch sequence for one target
func (s *Supervisor) scanOne(ctx context.Context, target types.ServiceTarget) types.ScanDetail {
	health := s.scanner.Scan(ctx, target)
	metrics.ServicesScanned.Inc()

	s.recordStatus(health)

	detail := types.ScanDetail{
		Service:        health.Service,
		Region:         health.Region,
		Status:         health.Status,
		HasAnomaly:     health.HasAnomaly,
		ErrorRate:      health.Metrics.ErrorRate,
		LatencyP95:     health.Metrics.LatencyP95,
		RequestCount:   health.Metrics.RequestCount,
		AnomalySummary: health.AnomalySummary,
	}

	if !health.HasAnomaly {
		return detail
	}
	metrics.AnomaliesDetected.WithLabelValues(string(health.Status)).Inc()

	logger := log.WithService(health.Service, health.Region)
	logger.Warn().
		Str("status", string(health.Status)).
		Str("summary", health.AnomalySummary).
		Msg("anomaly detected")

	rec := s.reasoner.Recommend(ctx, health)
	detail.Action = rec.Action

	incident := &types.Incident{
		ID:             incidentID(health.Service, s.now()),
		Service:        health.Service,
		Region:         health.Region,
		Status:         types.IncidentDetected,
		DetectedAt:     s.now(),
		Metrics:        health.Metrics,
		LogSamples:     health.LogSamples,
		AnomalySummary: health.AnomalySummary,
		Recommendation: &rec,
	}
	if err := s.store.CreateIncident(incident); err != nil {
		logger.Error().Err(err).Msg("failed to persist incident")
		detail.Error = fmt.Sprintf("incident persistence failed: %v", err)
		return detail
	}
	detail.IncidentID = incident.ID
	metrics.IncidentsCreated.Inc()

	if rec.Action == types.ActionNone {
		logger.Info().Str("incident_id", incident.ID).Msg("no action recommended")
		return detail
	}

	envelope := &types.ActionEnvelope{
		IncidentID:     incident.ID,
		Service:        health.Service,
		Region:         health.Region,
		Action:         rec.Action,
		TargetRevision: rec.TargetRevision,
		ScaleParams:    rec.ScaleParams,
		Reason:         rec.Reasoning,
		Confidence:     rec.Confidence,
		CreatedAt:      s.now(),
	}

	msgID, err := s.publisher.Publish(ctx, envelope)
	if err != nil {
		logger.Error().Err(err).Str("incident_id", incident.ID).Msg("failed to publish action")
		detail.Error = fmt.Sprintf("publish failed: %v", err)
		return detail
	}
	detail.Published = true
	logger.Info().
		Str("incident_id", incident.ID).
		Str("message_id", msgID).
		Str("action", string(rec.Action)).
		Msg("action published")

	if _, err := s.store.Transition(incident.ID, types.IncidentActionPending, nil); err != nil {
		logger.Error().Err(err).Str("incident_id", incident.ID).Msg("failed to advance incident")
		detail.Error = fmt.Sprintf("transition failed: %v", err)
	}
	return detail
}

// incidentID derives the deterministic id for an anomaly. Duplicate
// anomalies for one service within the same second collide on purpose.
func incidentID(service string, t time.Time) string {
	return fmt.Sprintf("inc_%s_%d", service, t.Unix())
}

func (s *Supervisor) recordStatus(health types.ServiceHealth) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[health.Service+"/"+health.Region] = types.ServiceStatus{
		Name:         health.Service,
		Region:       health.Region,
		Status:       health.Status,
		ErrorRate:    health.Metrics.ErrorRate,
		LatencyP95:   health.Metrics.LatencyP95,
		RequestCount: health.Metrics.RequestCount,
		LastChecked:  health.CheckedAt,
	}
}

// Statuses returns the per-target summaries from the most recent scans,
// in target-list order; targets never scanned yet report UNKNOWN.
func (s *Supervisor) Statuses() []types.ServiceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.ServiceStatus, 0, len(s.cfg.Targets))
	for _, target := range s.cfg.Targets {
		if st, ok := s.statuses[target.Name+"/"+target.Region]; ok {
			out = append(out, st)
			continue
		}
		out = append(out, types.ServiceStatus{
			Name:   target.Name,
			Region: target.Region,
			Status: types.HealthStatusUnknown,
		})
	}
	return out
}
