package fixer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/autopilot/pkg/config"
	"github.com/cuemby/autopilot/pkg/controlplane"
	"github.com/cuemby/autopilot/pkg/executor"
	"github.com/cuemby/autopilot/pkg/store"
	"github.com/cuemby/autopilot/pkg/types"
)

type fixture struct {
	platform *controlplane.FakeClient
	store    *store.BoltStore
	fixer    *Fixer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	platform := controlplane.NewFakeClient()
	info := &controlplane.ServiceInfo{
		Name:           "svc",
		Region:         "us-central1",
		LatestRevision: "svc-00002",
		TrafficSplit:   map[string]int{"svc-00002": 100},
		Revisions: []controlplane.Revision{
			{Name: "svc-00002"},
			{Name: "svc-00001"},
		},
	}
	controlplane.SetScaling(info, 1, 20)
	platform.AddService(info)

	st, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{
		MinInstancesFloor:   0,
		MinInstancesCeiling: 5,
		MaxInstancesFloor:   10,
		MaxInstancesCeiling: 100,
		OperationTimeout:    5 * time.Minute,
	}
	exec := executor.New(platform, cfg)

	return &fixture{
		platform: platform,
		store:    st,
		fixer:    New(exec, st),
	}
}

func (f *fixture) seedIncident(t *testing.T, id string, status types.IncidentStatus) {
	t.Helper()
	require.NoError(t, f.store.CreateIncident(&types.Incident{
		ID:         id,
		Service:    "svc",
		Region:     "us-central1",
		Status:     status,
		DetectedAt: time.Now().Add(-time.Minute),
	}))
}

func rollbackEnvelope(id string) *types.ActionEnvelope {
	return &types.ActionEnvelope{
		IncidentID:     id,
		Service:        "svc",
		Region:         "us-central1",
		Action:         types.ActionRollback,
		TargetRevision: "svc-00001",
		Reason:         "high error rate",
		Confidence:     0.9,
		CreatedAt:      time.Now(),
	}
}

func TestHandleEnvelopeResolvesIncident(t *testing.T) {
	f := newFixture(t)
	f.seedIncident(t, "inc_svc_1", types.IncidentActionPending)

	err := f.fixer.HandleEnvelope(context.Background(), rollbackEnvelope("inc_svc_1"))
	require.NoError(t, err)

	// Traffic actually moved
	assert.Equal(t, map[string]int{"svc-00001": 100}, f.platform.Service("svc", "us-central1").TrafficSplit)

	incident, err := f.store.GetIncident("inc_svc_1")
	require.NoError(t, err)
	assert.Equal(t, types.IncidentResolved, incident.Status)
	assert.NotNil(t, incident.RemediationStartedAt)
	assert.NotNil(t, incident.ResolvedAt)
	require.NotNil(t, incident.MTTRSeconds)
	assert.Greater(t, *incident.MTTRSeconds, int64(0))
	require.NotNil(t, incident.ActionResult)
	assert.True(t, incident.ActionResult.Success)

	audits, err := f.store.ListActions("inc_svc_1")
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.True(t, audits[0].Success)
	assert.Equal(t, map[string]int{"svc-00002": 100}, audits[0].OldTraffic)
	assert.Equal(t, map[string]int{"svc-00001": 100}, audits[0].NewTraffic)
}

func TestHandleEnvelopeRecordsFailure(t *testing.T) {
	f := newFixture(t)
	f.seedIncident(t, "inc_svc_1", types.IncidentActionPending)

	env := rollbackEnvelope("inc_svc_1")
	env.TargetRevision = "svc-99999" // not a revision of the service

	err := f.fixer.HandleEnvelope(context.Background(), env)
	require.Error(t, err)

	// No platform mutation happened
	assert.Equal(t, 0, f.platform.TrafficUpdates)

	incident, err := f.store.GetIncident("inc_svc_1")
	require.NoError(t, err)
	assert.Equal(t, types.IncidentFailed, incident.Status)
	assert.Contains(t, incident.ErrorMessage, "svc-99999")
	assert.Nil(t, incident.MTTRSeconds)

	audits, err := f.store.ListActions("inc_svc_1")
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.False(t, audits[0].Success)
	assert.NotEmpty(t, audits[0].ErrorMessage)
}

func TestHandleEnvelopeSkipsTerminalIncident(t *testing.T) {
	f := newFixture(t)
	f.seedIncident(t, "inc_svc_1", types.IncidentRemediating)
	_, err := f.store.Transition("inc_svc_1", types.IncidentResolved, nil)
	require.NoError(t, err)

	// Redelivery of the same envelope is acknowledged without touching the
	// platform
	err = f.fixer.HandleEnvelope(context.Background(), rollbackEnvelope("inc_svc_1"))
	require.NoError(t, err)
	assert.Equal(t, 0, f.platform.TrafficUpdates)

	audits, err := f.store.ListActions("inc_svc_1")
	require.NoError(t, err)
	assert.Empty(t, audits)
}

func TestHandleEnvelopeCreatesStubForUnknownIncident(t *testing.T) {
	f := newFixture(t)

	err := f.fixer.HandleEnvelope(context.Background(), rollbackEnvelope("inc_svc_9"))
	require.NoError(t, err)

	incident, err := f.store.GetIncident("inc_svc_9")
	require.NoError(t, err)
	assert.Equal(t, types.IncidentResolved, incident.Status)
	assert.Equal(t, "high error rate", incident.AnomalySummary)
	assert.False(t, incident.DetectedAt.IsZero())
}

func TestHandleEnvelopeNoneAction(t *testing.T) {
	f := newFixture(t)
	f.seedIncident(t, "inc_svc_1", types.IncidentActionPending)

	env := rollbackEnvelope("inc_svc_1")
	env.Action = types.ActionNone
	env.TargetRevision = ""

	err := f.fixer.HandleEnvelope(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, 0, f.platform.TrafficUpdates)
	assert.Equal(t, 0, f.platform.ScalingUpdates)

	incident, err := f.store.GetIncident("inc_svc_1")
	require.NoError(t, err)
	assert.Equal(t, types.IncidentResolved, incident.Status)
}

func TestHandleEnvelopeScaleUp(t *testing.T) {
	f := newFixture(t)
	f.seedIncident(t, "inc_svc_1", types.IncidentActionPending)

	env := rollbackEnvelope("inc_svc_1")
	env.Action = types.ActionScaleUp
	env.TargetRevision = ""
	env.ScaleParams = &types.ScaleParams{MinInstances: intPtr(3), MaxInstances: intPtr(50)}

	err := f.fixer.HandleEnvelope(context.Background(), env)
	require.NoError(t, err)

	applied := f.platform.Service("svc", "us-central1").Scaling
	assert.Equal(t, 3, *applied.MinInstances)
	assert.Equal(t, 50, *applied.MaxInstances)

	audits, err := f.store.ListActions("inc_svc_1")
	require.NoError(t, err)
	require.Len(t, audits, 1)
	require.NotNil(t, audits[0].ScalingBefore)
	require.NotNil(t, audits[0].ScalingAfter)
	assert.Equal(t, 1, *audits[0].ScalingBefore.MinInstances)
	assert.Equal(t, 3, *audits[0].ScalingAfter.MinInstances)
}

func intPtr(v int) *int { return &v }
