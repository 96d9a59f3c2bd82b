package fixer

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/autopilot/pkg/executor"
	"github.com/cuemby/autopilot/pkg/log"
	"github.com/cuemby/autopilot/pkg/store"
	"github.com/cuemby/autopilot/pkg/types"
)

// Fixer consumes action envelopes and applies them to the platform.
// Envelopes are self-sufficient: no supervisor memory is consulted at
// apply time. The bus is at-least-once, so handling is idempotent: a
// duplicate delivery of an already-terminal incident is a no-op.
type Fixer struct {
	executor *executor.Executor
	store    store.Store
	now      func() time.Time
}

// New creates a fixer
func New(exec *executor.Executor, st store.Store) *Fixer {
	return &Fixer{executor: exec, store: st, now: time.Now}
}

// HandleEnvelope runs one envelope to a terminal incident write. The
// returned error is informational: the caller always acknowledges (the
// terminal state has been recorded, or the envelope was a duplicate).
//
// Store writes after the platform mutation are best-effort: the platform
// is already changed, so a failed audit write is logged, never re-raised.
func (f *Fixer) HandleEnvelope(ctx context.Context, env *types.ActionEnvelope) error {
	logger := log.WithIncidentID(env.IncidentID)
	logger.Info().
		Str("action", string(env.Action)).
		Str("service", env.Service).
		Msg("handling action envelope")

	// Redelivery of a finished incident: observe the terminal state and ack
	if incident, err := f.store.GetIncident(env.IncidentID); err == nil && incident.Status.Terminal() {
		logger.Info().Str("status", string(incident.Status)).Msg("incident already terminal, skipping")
		return nil
	} else if errors.Is(err, store.ErrNotFound) {
		// The supervisor's write never landed; create a stub rather than
		// drop the action
		f.createStub(env)
	}

	if _, err := f.store.Transition(env.IncidentID, types.IncidentRemediating, nil); err != nil {
		logger.Warn().Err(err).Msg("could not mark incident remediating")
	}

	result, execErr := f.executor.Execute(ctx, env)

	if execErr != nil {
		logger.Error().Err(execErr).Msg("action execution failed")
		f.writeFailure(env, execErr)
		return execErr
	}

	logger.Info().Str("message", result.Message).Msg("action execution succeeded")
	f.writeSuccess(env, result)
	return nil
}

func (f *Fixer) createStub(env *types.ActionEnvelope) {
	stub := &types.Incident{
		ID:             env.IncidentID,
		Service:        env.Service,
		Region:         env.Region,
		Status:         types.IncidentDetected,
		DetectedAt:     env.CreatedAt,
		AnomalySummary: env.Reason,
	}
	if stub.DetectedAt.IsZero() {
		stub.DetectedAt = f.now()
	}
	if err := f.store.CreateIncident(stub); err != nil {
		logger := log.WithIncidentID(env.IncidentID)
		logger.Warn().Err(err).Msg("could not create stub incident")
	}
}

func (f *Fixer) writeSuccess(env *types.ActionEnvelope, result *types.ActionResult) {
	logger := log.WithIncidentID(env.IncidentID)

	if _, err := f.store.Transition(env.IncidentID, types.IncidentResolved,
		&store.TransitionFields{ActionResult: result}); err != nil {
		logger.Error().Err(err).Msg("could not mark incident resolved")
	}

	audit := &types.ActionAudit{
		IncidentID: env.IncidentID,
		Action:     env.Action,
		Service:    env.Service,
		ExecutedAt: f.now(),
		Success:    true,
		DryRun:     result.DryRun,
		OldTraffic: result.OldTraffic,
		NewTraffic: result.NewTraffic,
	}
	if result.OldMin != nil || result.OldMax != nil {
		audit.ScalingBefore = &types.ScaleParams{MinInstances: result.OldMin, MaxInstances: result.OldMax}
	}
	if result.NewMin != nil || result.NewMax != nil {
		audit.ScalingAfter = &types.ScaleParams{MinInstances: result.NewMin, MaxInstances: result.NewMax}
	}
	if err := f.store.RecordAction(audit); err != nil {
		logger.Error().Err(err).Msg("could not record action audit")
	}
}

func (f *Fixer) writeFailure(env *types.ActionEnvelope, execErr error) {
	logger := log.WithIncidentID(env.IncidentID)

	if _, err := f.store.Transition(env.IncidentID, types.IncidentFailed,
		&store.TransitionFields{ErrorMessage: execErr.Error()}); err != nil {
		logger.Error().Err(err).Msg("could not mark incident failed")
	}

	audit := &types.ActionAudit{
		IncidentID:   env.IncidentID,
		Action:       env.Action,
		Service:      env.Service,
		ExecutedAt:   f.now(),
		Success:      false,
		ErrorMessage: execErr.Error(),
	}
	if err := f.store.RecordAction(audit); err != nil {
		logger.Error().Err(err).Msg("could not record action audit")
	}
}
