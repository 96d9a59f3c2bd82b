package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/autopilot/pkg/config"
	"github.com/cuemby/autopilot/pkg/controlplane"
	"github.com/cuemby/autopilot/pkg/log"
	"github.com/cuemby/autopilot/pkg/metrics"
	"github.com/cuemby/autopilot/pkg/types"
)

// Executor applies remediation actions to the platform control plane.
// Both mutations are read-modify-write and idempotent: re-applying a
// rollback or a scaling update leaves the service in the same state.
// Safety clamps run in-process before any remote write.
type Executor struct {
	platform controlplane.Client

	minFloor   int
	minCeiling int
	maxFloor   int
	maxCeiling int

	// dryRun is read once at construction; flipping it requires a restart
	dryRun    bool
	opTimeout time.Duration
}

// New creates an executor with the configured safety bounds
func New(platform controlplane.Client, cfg *config.Config) *Executor {
	return &Executor{
		platform:   platform,
		minFloor:   cfg.MinInstancesFloor,
		minCeiling: cfg.MinInstancesCeiling,
		maxFloor:   cfg.MaxInstancesFloor,
		maxCeiling: cfg.MaxInstancesCeiling,
		dryRun:     cfg.DryRun,
		opTimeout:  cfg.OperationTimeout,
	}
}

// Execute dispatches an envelope to the matching mutation. NONE succeeds
// without touching the platform; unsupported actions are InvalidArgument.
func (e *Executor) Execute(ctx context.Context, env *types.ActionEnvelope) (*types.ActionResult, error) {
	start := time.Now()
	result, err := e.dispatch(ctx, env)
	metrics.ActionDuration.WithLabelValues(string(env.Action)).Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.ActionsExecuted.WithLabelValues(string(env.Action), outcome).Inc()
	return result, err
}

func (e *Executor) dispatch(ctx context.Context, env *types.ActionEnvelope) (*types.ActionResult, error) {
	switch env.Action {
	case types.ActionRollback:
		if env.TargetRevision == "" {
			return nil, fmt.Errorf("%w: target_revision is required for ROLLBACK", controlplane.ErrInvalidArgument)
		}
		return e.Rollback(ctx, env.Service, env.Region, env.TargetRevision, 100)
	case types.ActionScaleUp, types.ActionScaleDown:
		var min, max *int
		if env.ScaleParams != nil {
			min, max = env.ScaleParams.MinInstances, env.ScaleParams.MaxInstances
		}
		return e.UpdateScaling(ctx, env.Service, env.Region, min, max)
	case types.ActionNone:
		return &types.ActionResult{Success: true, Message: "no action required"}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported action type %q", controlplane.ErrInvalidArgument, env.Action)
	}
}

// Rollback routes percentage of traffic to a single specific revision.
// The target must already be among the service's revisions; the update is
// submitted with a traffic field mask and awaited up to the operation
// deadline, surfacing the operation id on timeout.
func (e *Executor) Rollback(ctx context.Context, service, region, targetRevision string, percentage int) (*types.ActionResult, error) {
	logger := log.WithService(service, region)

	info, err := e.platform.GetService(ctx, service, region)
	if err != nil {
		return nil, fmt.Errorf("fetching service before rollback: %w", err)
	}
	if !info.HasRevision(targetRevision) {
		return nil, fmt.Errorf("%w: revision %q not found among service revisions",
			controlplane.ErrInvalidArgument, targetRevision)
	}

	oldTraffic := info.TrafficSplit
	newTraffic := map[string]int{targetRevision: percentage}

	if e.dryRun {
		logger.Info().Str("target_revision", targetRevision).Msg("dry run: rollback skipped")
		return &types.ActionResult{
			Success:    true,
			DryRun:     true,
			OldTraffic: oldTraffic,
			NewTraffic: newTraffic,
			Message:    fmt.Sprintf("dry run: would route %d%% traffic to %s", percentage, targetRevision),
		}, nil
	}

	opID, err := e.platform.UpdateTraffic(ctx, service, region, targetRevision, percentage)
	if err != nil {
		return nil, fmt.Errorf("submitting traffic update: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	if err := e.platform.WaitOperation(opCtx, opID); err != nil {
		return nil, fmt.Errorf("traffic update did not complete: %w", err)
	}

	logger.Info().
		Str("target_revision", targetRevision).
		Str("operation_id", opID).
		Msg("rollback applied")

	return &types.ActionResult{
		Success:     true,
		OperationID: opID,
		OldTraffic:  oldTraffic,
		NewTraffic:  newTraffic,
		Message:     fmt.Sprintf("routed %d%% traffic to %s", percentage, targetRevision),
	}, nil
}

// UpdateScaling overwrites the supplied instance bounds after clamping
// them into the configured safety window. Bounds passed as nil keep their
// current value; after clamping, min must not exceed max.
func (e *Executor) UpdateScaling(ctx context.Context, service, region string, min, max *int) (*types.ActionResult, error) {
	logger := log.WithService(service, region)

	info, err := e.platform.GetService(ctx, service, region)
	if err != nil {
		return nil, fmt.Errorf("fetching service before scaling update: %w", err)
	}
	oldMin, oldMax := info.Scaling.MinInstances, info.Scaling.MaxInstances

	newMin := clampOrKeep(min, oldMin, e.minFloor, e.minCeiling)
	newMax := clampOrKeep(max, oldMax, e.maxFloor, e.maxCeiling)

	if newMin != nil && newMax != nil && *newMin > *newMax {
		return nil, fmt.Errorf("%w: effective min instances %d exceeds max %d",
			controlplane.ErrInvalidArgument, *newMin, *newMax)
	}

	if e.dryRun {
		logger.Info().Msg("dry run: scaling update skipped")
		return &types.ActionResult{
			Success: true,
			DryRun:  true,
			OldMin:  oldMin, OldMax: oldMax,
			NewMin: newMin, NewMax: newMax,
			Message: "dry run: scaling update not applied",
		}, nil
	}

	// Only the supplied fields are written; the control plane preserves
	// the other bound per the field mask
	var applyMin, applyMax *int
	if min != nil {
		applyMin = newMin
	}
	if max != nil {
		applyMax = newMax
	}

	opID, err := e.platform.UpdateScaling(ctx, service, region, applyMin, applyMax)
	if err != nil {
		return nil, fmt.Errorf("submitting scaling update: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	defer cancel()
	if err := e.platform.WaitOperation(opCtx, opID); err != nil {
		return nil, fmt.Errorf("scaling update did not complete: %w", err)
	}

	logger.Info().Str("operation_id", opID).Msg("scaling update applied")

	return &types.ActionResult{
		Success:     true,
		OperationID: opID,
		OldMin:      oldMin, OldMax: oldMax,
		NewMin: newMin, NewMax: newMax,
		Message: "scaling bounds updated",
	}, nil
}

// clampOrKeep clamps the requested bound into [floor, ceiling]; a nil
// request keeps the current value untouched.
func clampOrKeep(requested, current *int, floor, ceiling int) *int {
	if requested == nil {
		return current
	}
	v := *requested
	if v < floor {
		v = floor
	}
	if v > ceiling {
		v = ceiling
	}
	return &v
}
