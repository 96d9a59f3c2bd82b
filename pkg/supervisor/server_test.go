package supervisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/autopilot/pkg/types"
)

func newTestServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	srv := NewServer(f.sup, f.sup.reasoner, f.store)
	ts := httptest.NewServer(srv.GetHandler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func postJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, target("app-a"))
	ts := newTestServer(t, f)

	var body map[string]interface{}
	resp := getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	components := body["components"].(map[string]interface{})
	assert.Equal(t, true, components["scanner"])
	assert.Equal(t, true, components["store"])
}

func TestScanEndpoint(t *testing.T) {
	f := newFixture(t, target("app-a"))
	f.addUnhealthyService("app-a")
	f.model.Replies = []string{
		`{"action": "ROLLBACK", "confidence": 0.9, "reasoning": "bad deploy"}`,
	}
	ts := newTestServer(t, f)

	var report types.ScanReport
	resp := postJSON(t, ts.URL+"/health/scan", &report)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, report.ServicesScanned)
	assert.Equal(t, 1, report.AnomaliesDetected)
	assert.Equal(t, 1, report.ActionsPublished)
	require.Len(t, report.Details, 1)
	assert.Equal(t, types.HealthStatusUnhealthy, report.Details[0].Status)
	assert.NotEmpty(t, report.Details[0].IncidentID)

	// GET on a POST-only endpoint
	resp = getJSON(t, ts.URL+"/health/scan", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestIncidentEndpoints(t *testing.T) {
	f := newFixture(t, target("app-a"))
	ts := newTestServer(t, f)

	require.NoError(t, f.store.CreateIncident(&types.Incident{
		ID:         "inc_app-a_1700000000",
		Service:    "app-a",
		Region:     "us-central1",
		Status:     types.IncidentDetected,
		DetectedAt: time.Now(),
	}))

	t.Run("list", func(t *testing.T) {
		var body struct {
			Incidents []*types.Incident `json:"incidents"`
			Count     int               `json:"count"`
		}
		resp := getJSON(t, ts.URL+"/incidents", &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 1, body.Count)
		require.Len(t, body.Incidents, 1)
		assert.Equal(t, "inc_app-a_1700000000", body.Incidents[0].ID)
	})

	t.Run("list with status filter", func(t *testing.T) {
		var body struct {
			Count int `json:"count"`
		}
		resp := getJSON(t, ts.URL+"/incidents?status=RESOLVED", &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 0, body.Count)
	})

	t.Run("list with bad limit", func(t *testing.T) {
		resp := getJSON(t, ts.URL+"/incidents?limit=nope", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("get", func(t *testing.T) {
		var incident types.Incident
		resp := getJSON(t, ts.URL+"/incidents/inc_app-a_1700000000", &incident)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "app-a", incident.Service)
	})

	t.Run("get missing", func(t *testing.T) {
		resp := getJSON(t, ts.URL+"/incidents/inc_nope", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, target("app-a"))
	f.addHealthyService("app-a")
	f.sup.ScanAll(context.Background())
	ts := newTestServer(t, f)

	var body struct {
		Services []types.ServiceStatus `json:"services"`
	}
	resp := getJSON(t, ts.URL+"/services/status", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Services, 1)
	assert.Equal(t, "app-a", body.Services[0].Name)
	assert.Equal(t, types.HealthStatusHealthy, body.Services[0].Status)
}

func TestExplainEndpoint(t *testing.T) {
	f := newFixture(t, target("app-a"))
	f.model.Replies = []string{"the deploy went sideways and traffic was moved back"}
	ts := newTestServer(t, f)

	require.NoError(t, f.store.CreateIncident(&types.Incident{
		ID:         "inc_app-a_1700000000",
		Service:    "app-a",
		Region:     "us-central1",
		Status:     types.IncidentResolved,
		DetectedAt: time.Now(),
	}))

	var body map[string]string
	resp := postJSON(t, ts.URL+"/explain/inc_app-a_1700000000", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "inc_app-a_1700000000", body["incident_id"])
	assert.Contains(t, body["explanation"], "sideways")

	// The explanation lands on the stored record
	incident, err := f.store.GetIncident("inc_app-a_1700000000")
	require.NoError(t, err)
	assert.Equal(t, body["explanation"], incident.Explanation)

	// Unknown incident
	resp = postJSON(t, ts.URL+"/explain/inc_nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRootEndpoint(t *testing.T) {
	f := newFixture(t, target("app-a"))
	ts := newTestServer(t, f)

	var body map[string]interface{}
	resp := getJSON(t, ts.URL+"/", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "autopilot-supervisor", body["service"])

	resp = getJSON(t, ts.URL+"/definitely/not/here", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
