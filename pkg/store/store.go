package store

import (
	"errors"
	"fmt"

	"github.com/cuemby/autopilot/pkg/types"
)

var (
	// ErrNotFound means no incident exists under the requested id
	ErrNotFound = errors.New("incident not found")

	// ErrInvalidTransition means the requested status change is not an
	// edge of the incident lifecycle DAG
	ErrInvalidTransition = errors.New("invalid incident transition")
)

// TransitionFields carries the optional updates applied together with a
// status change. Nil/empty fields are left untouched. Timestamps are
// managed by the store: entering REMEDIATING stamps
// remediation_started_at, entering a terminal state stamps resolved_at and
// derives mttr_seconds for RESOLVED.
type TransitionFields struct {
	Recommendation *types.Recommendation
	ActionResult   *types.ActionResult
	ErrorMessage   string
}

// Store is the incident document store client. It is the single source of
// truth for cross-process incident ordering: the DAG validation happens
// inside the store, under its transaction.
type Store interface {
	// CreateIncident persists a new incident record as given
	CreateIncident(incident *types.Incident) error

	// Transition moves an incident to a new status, validating the DAG.
	// Terminal states are write-once; a non-monotone transition returns
	// ErrInvalidTransition with the stored record unchanged.
	Transition(id string, to types.IncidentStatus, fields *TransitionFields) (*types.Incident, error)

	// UpdateExplanation attaches a generated explanation without a
	// status change
	UpdateExplanation(id, explanation string) error

	// RecordAction appends an audit record; audit rows are never updated
	RecordAction(audit *types.ActionAudit) error

	// GetIncident fetches one incident; ErrNotFound on miss
	GetIncident(id string) (*types.Incident, error)

	// ListIncidents returns incidents newest-first by detected_at,
	// optionally filtered by status, capped at limit (0 = no cap)
	ListIncidents(limit int, status types.IncidentStatus) ([]*types.Incident, error)

	// ListActions returns the audit rows for one incident
	ListActions(incidentID string) ([]*types.ActionAudit, error)

	// Utility
	Close() error
}

// validTransition reports whether from → to is an edge of the lifecycle
// DAG: DETECTED → [ANALYZING →] ACTION_PENDING → REMEDIATING →
// {RESOLVED, FAILED}. The fixer may also enter REMEDIATING directly from
// DETECTED or ANALYZING when the supervisor never reached ACTION_PENDING.
func validTransition(from, to types.IncidentStatus) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case types.IncidentAnalyzing:
		return from == types.IncidentDetected
	case types.IncidentActionPending:
		return from == types.IncidentDetected || from == types.IncidentAnalyzing
	case types.IncidentRemediating:
		return from == types.IncidentDetected ||
			from == types.IncidentAnalyzing ||
			from == types.IncidentActionPending
	case types.IncidentResolved, types.IncidentFailed:
		return from == types.IncidentRemediating
	default:
		return false
	}
}

// checkTransition wraps validTransition with a descriptive error
func checkTransition(from, to types.IncidentStatus) error {
	if !validTransition(from, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}
	return nil
}
