package fixer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/autopilot/pkg/bus"
	"github.com/cuemby/autopilot/pkg/types"
)

func TestConsumerAppliesPublishedEnvelope(t *testing.T) {
	f := newFixture(t)
	f.seedIncident(t, "inc_svc_1", types.IncidentActionPending)

	broker := bus.NewBroker()
	broker.Start()
	defer broker.Stop()

	consumer := NewConsumer(f.fixer, broker)
	consumer.Start()
	defer consumer.Stop()

	_, err := broker.Publish(context.Background(), rollbackEnvelope("inc_svc_1"))
	require.NoError(t, err)

	// The envelope is applied asynchronously
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		incident, err := f.store.GetIncident("inc_svc_1")
		require.NoError(t, err)
		if incident.Status.Terminal() {
			assert.Equal(t, types.IncidentResolved, incident.Status)
			assert.Equal(t, map[string]int{"svc-00001": 100},
				f.platform.Service("svc", "us-central1").TrafficSplit)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("incident never reached a terminal state")
}
