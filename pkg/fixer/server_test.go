package fixer

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/autopilot/pkg/types"
)

func newTestServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	srv := NewServer(f.fixer)
	ts := httptest.NewServer(srv.GetHandler())
	t.Cleanup(ts.Close)
	return ts
}

func pushBody(t *testing.T, env *types.ActionEnvelope) []byte {
	t.Helper()
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]interface{}{
		"message": map[string]interface{}{
			"messageId": "m-1",
			"data":      base64.StdEncoding.EncodeToString(payload),
			"attributes": map[string]string{
				"incident_id":  env.IncidentID,
				"service_name": env.Service,
				"action_type":  string(env.Action),
			},
		},
	})
	require.NoError(t, err)
	return body
}

func post(t *testing.T, url string, body []byte, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestPushHandlerProcessesEnvelope(t *testing.T) {
	f := newFixture(t)
	f.seedIncident(t, "inc_svc_1", types.IncidentActionPending)
	ts := newTestServer(t, f)

	var body map[string]interface{}
	resp := post(t, ts.URL+"/actions/execute", pushBody(t, rollbackEnvelope("inc_svc_1")), &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "processed", body["status"])
	assert.Equal(t, "inc_svc_1", body["incident_id"])
	assert.Equal(t, "ROLLBACK", body["action_type"])

	incident, err := f.store.GetIncident("inc_svc_1")
	require.NoError(t, err)
	assert.Equal(t, types.IncidentResolved, incident.Status)
}

func TestPushHandlerReportsFailureWith200(t *testing.T) {
	f := newFixture(t)
	f.seedIncident(t, "inc_svc_1", types.IncidentActionPending)
	ts := newTestServer(t, f)

	env := rollbackEnvelope("inc_svc_1")
	env.TargetRevision = "svc-99999"

	var body map[string]interface{}
	resp := post(t, ts.URL+"/actions/execute", pushBody(t, env), &body)

	// Failures are recorded on the incident, never via the HTTP status
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "failed", body["status"])
	assert.Contains(t, body["error"], "svc-99999")

	incident, err := f.store.GetIncident("inc_svc_1")
	require.NoError(t, err)
	assert.Equal(t, types.IncidentFailed, incident.Status)
}

func TestPushHandlerAcknowledgesPoison(t *testing.T) {
	f := newFixture(t)
	ts := newTestServer(t, f)

	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("definitely not json")},
		{"empty message", []byte(`{"message": {}}`)},
		{"bad base64", []byte(`{"message": {"data": "!!!not-base64!!!"}}`)},
		{"payload not an envelope", func() []byte {
			data := base64.StdEncoding.EncodeToString([]byte("garbage payload"))
			return []byte(`{"message": {"data": "` + data + `"}}`)
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]string
			resp := post(t, ts.URL+"/actions/execute", tt.body, &body)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "ignored", body["status"])
		})
	}

	// Nothing touched the platform
	assert.Equal(t, 0, f.platform.TrafficUpdates)
	assert.Equal(t, 0, f.platform.ScalingUpdates)
}

func TestPushHandlerMethodCheck(t *testing.T) {
	f := newFixture(t)
	ts := newTestServer(t, f)

	resp, err := http.Get(ts.URL + "/actions/execute")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestManualHandler(t *testing.T) {
	f := newFixture(t)
	ts := newTestServer(t, f)

	env := &types.ActionEnvelope{
		Service:        "svc",
		Region:         "us-central1",
		Action:         types.ActionRollback,
		TargetRevision: "svc-00001",
	}
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	var body map[string]interface{}
	resp := post(t, ts.URL+"/actions/execute/manual", payload, &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	// Missing incident id gets a generated one
	assert.Contains(t, body["incident_id"], "manual_")
	assert.Equal(t, map[string]int{"svc-00001": 100}, f.platform.Service("svc", "us-central1").TrafficSplit)
}

func TestManualHandlerRequiresService(t *testing.T) {
	f := newFixture(t)
	ts := newTestServer(t, f)

	payload, err := json.Marshal(&types.ActionEnvelope{Action: types.ActionNone})
	require.NoError(t, err)

	resp := post(t, ts.URL+"/actions/execute/manual", payload, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)
	ts := newTestServer(t, f)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}
