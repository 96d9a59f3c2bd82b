package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/autopilot/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	st, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newIncident(id string, detectedAt time.Time) *types.Incident {
	return &types.Incident{
		ID:             id,
		Service:        "svc",
		Region:         "us-central1",
		Status:         types.IncidentDetected,
		DetectedAt:     detectedAt,
		AnomalySummary: "high error rate",
	}
}

func TestCreateAndGetIncident(t *testing.T) {
	st := newTestStore(t)

	inc := newIncident("inc_svc_1", time.Now())
	require.NoError(t, st.CreateIncident(inc))

	got, err := st.GetIncident("inc_svc_1")
	require.NoError(t, err)
	assert.Equal(t, "svc", got.Service)
	assert.Equal(t, types.IncidentDetected, got.Status)

	_, err = st.GetIncident("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionHappyPath(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.CreateIncident(newIncident("inc_svc_1", time.Now().Add(-time.Minute))))

	for _, status := range []types.IncidentStatus{
		types.IncidentActionPending,
		types.IncidentRemediating,
		types.IncidentResolved,
	} {
		_, err := st.Transition("inc_svc_1", status, nil)
		require.NoError(t, err, "transition to %s", status)
	}

	got, err := st.GetIncident("inc_svc_1")
	require.NoError(t, err)
	assert.Equal(t, types.IncidentResolved, got.Status)
	assert.NotNil(t, got.RemediationStartedAt)
	assert.NotNil(t, got.ResolvedAt)
	require.NotNil(t, got.MTTRSeconds)
	assert.Greater(t, *got.MTTRSeconds, int64(0))
}

func TestTransitionWithOptionalAnalyzing(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.CreateIncident(newIncident("inc_svc_1", time.Now())))

	_, err := st.Transition("inc_svc_1", types.IncidentAnalyzing, nil)
	require.NoError(t, err)
	_, err = st.Transition("inc_svc_1", types.IncidentActionPending, nil)
	require.NoError(t, err)
}

func TestTransitionRejectsInvalidEdges(t *testing.T) {
	tests := []struct {
		name string
		from types.IncidentStatus
		to   types.IncidentStatus
	}{
		{"detected to resolved", types.IncidentDetected, types.IncidentResolved},
		{"detected to failed", types.IncidentDetected, types.IncidentFailed},
		{"action_pending to detected", types.IncidentActionPending, types.IncidentDetected},
		{"remediating to action_pending", types.IncidentRemediating, types.IncidentActionPending},
		{"remediating to analyzing", types.IncidentRemediating, types.IncidentAnalyzing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestStore(t)
			inc := newIncident("inc_svc_1", time.Now())
			inc.Status = tt.from
			require.NoError(t, st.CreateIncident(inc))

			_, err := st.Transition("inc_svc_1", tt.to, nil)
			assert.ErrorIs(t, err, ErrInvalidTransition)

			// Stored record unchanged
			got, err := st.GetIncident("inc_svc_1")
			require.NoError(t, err)
			assert.Equal(t, tt.from, got.Status)
		})
	}
}

func TestTerminalStatesAreWriteOnce(t *testing.T) {
	st := newTestStore(t)
	inc := newIncident("inc_svc_1", time.Now())
	inc.Status = types.IncidentRemediating
	require.NoError(t, st.CreateIncident(inc))

	_, err := st.Transition("inc_svc_1", types.IncidentResolved, nil)
	require.NoError(t, err)

	for _, to := range []types.IncidentStatus{
		types.IncidentDetected,
		types.IncidentRemediating,
		types.IncidentResolved,
		types.IncidentFailed,
	} {
		_, err := st.Transition("inc_svc_1", to, nil)
		assert.ErrorIs(t, err, ErrInvalidTransition, "terminal incident accepted %s", to)
	}
}

func TestTransitionAppliesFields(t *testing.T) {
	st := newTestStore(t)
	inc := newIncident("inc_svc_1", time.Now())
	inc.Status = types.IncidentRemediating
	require.NoError(t, st.CreateIncident(inc))

	result := &types.ActionResult{Success: false, Message: "rollback rejected"}
	got, err := st.Transition("inc_svc_1", types.IncidentFailed, &TransitionFields{
		ActionResult: result,
		ErrorMessage: "revision missing",
	})
	require.NoError(t, err)
	assert.Equal(t, "revision missing", got.ErrorMessage)
	require.NotNil(t, got.ActionResult)
	assert.Equal(t, "rollback rejected", got.ActionResult.Message)
	// No MTTR for failures
	assert.Nil(t, got.MTTRSeconds)
}

func TestListIncidentsNewestFirst(t *testing.T) {
	st := newTestStore(t)
	base := time.Now()
	require.NoError(t, st.CreateIncident(newIncident("inc_a", base.Add(-3*time.Hour))))
	require.NoError(t, st.CreateIncident(newIncident("inc_b", base.Add(-1*time.Hour))))
	require.NoError(t, st.CreateIncident(newIncident("inc_c", base.Add(-2*time.Hour))))

	incidents, err := st.ListIncidents(0, "")
	require.NoError(t, err)
	require.Len(t, incidents, 3)
	assert.Equal(t, "inc_b", incidents[0].ID)
	assert.Equal(t, "inc_c", incidents[1].ID)
	assert.Equal(t, "inc_a", incidents[2].ID)

	// Limit
	incidents, err = st.ListIncidents(2, "")
	require.NoError(t, err)
	assert.Len(t, incidents, 2)
}

func TestListIncidentsStatusFilter(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.CreateIncident(newIncident("inc_a", time.Now())))
	resolved := newIncident("inc_b", time.Now())
	resolved.Status = types.IncidentResolved
	require.NoError(t, st.CreateIncident(resolved))

	incidents, err := st.ListIncidents(0, types.IncidentResolved)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, "inc_b", incidents[0].ID)
}

func TestRecordAndListActions(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.RecordAction(&types.ActionAudit{
		IncidentID: "inc_svc_1",
		Action:     types.ActionRollback,
		Service:    "svc",
		Success:    true,
		OldTraffic: map[string]int{"r2": 100},
		NewTraffic: map[string]int{"r1": 100},
	}))
	require.NoError(t, st.RecordAction(&types.ActionAudit{
		IncidentID: "inc_other",
		Action:     types.ActionScaleUp,
		Service:    "other",
		Success:    true,
	}))

	audits, err := st.ListActions("inc_svc_1")
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, types.ActionRollback, audits[0].Action)
	assert.NotEmpty(t, audits[0].ID)
	assert.Equal(t, map[string]int{"r1": 100}, audits[0].NewTraffic)
}

func TestUpdateExplanation(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.CreateIncident(newIncident("inc_svc_1", time.Now())))

	require.NoError(t, st.UpdateExplanation("inc_svc_1", "the deploy went sideways"))

	got, err := st.GetIncident("inc_svc_1")
	require.NoError(t, err)
	assert.Equal(t, "the deploy went sideways", got.Explanation)

	assert.ErrorIs(t, st.UpdateExplanation("missing", "x"), ErrNotFound)
}
