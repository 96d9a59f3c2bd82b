package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/autopilot/pkg/log"
	"github.com/cuemby/autopilot/pkg/metrics"
	"github.com/cuemby/autopilot/pkg/reasoner"
	"github.com/cuemby/autopilot/pkg/store"
	"github.com/cuemby/autopilot/pkg/types"
)

// Server is the supervisor HTTP surface
type Server struct {
	supervisor *Supervisor
	reasoner   *reasoner.Reasoner
	store      store.Store
	mux        *http.ServeMux
	httpServer *http.Server
}

// NewServer creates the supervisor HTTP server
func NewServer(s *Supervisor, rs *reasoner.Reasoner, st store.Store) *Server {
	mux := http.NewServeMux()
	srv := &Server{
		supervisor: s,
		reasoner:   rs,
		store:      st,
		mux:        mux,
	}

	// Register endpoints
	mux.HandleFunc("/", srv.rootHandler)
	mux.HandleFunc("/health", srv.healthHandler)
	mux.HandleFunc("/health/scan", srv.scanHandler)
	mux.HandleFunc("/incidents", srv.listIncidentsHandler)
	mux.HandleFunc("/incidents/", srv.getIncidentHandler)
	mux.HandleFunc("/services/status", srv.statusHandler)
	mux.HandleFunc("/explain/", srv.explainHandler)
	mux.Handle("/metrics", metrics.Handler())

	return srv
}

// Start starts the HTTP server
func (srv *Server) Start(addr string) error {
	srv.httpServer = &http.Server{
		Addr:         addr,
		Handler:      metrics.Instrument(srv.mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second, // scans can take a while
		IdleTimeout:  60 * time.Second,
	}
	return srv.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server
func (srv *Server) Shutdown(ctx context.Context) error {
	if srv.httpServer == nil {
		return nil
	}
	return srv.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler for tests
func (srv *Server) GetHandler() http.Handler {
	return srv.mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// rootHandler returns service identity and component readiness
func (srv *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "autopilot-supervisor",
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"components": map[string]bool{
			"scanner":  srv.supervisor != nil,
			"reasoner": srv.reasoner != nil,
			"store":    srv.store != nil,
		},
	})
}

// healthHandler implements the /health liveness endpoint
func (srv *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"components": map[string]bool{
			"scanner":  srv.supervisor != nil,
			"reasoner": srv.reasoner != nil,
			"store":    srv.store != nil,
		},
	})
}

// scanHandler triggers a full fleet scan and returns the report
func (srv *Server) scanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report := srv.supervisor.ScanAll(r.Context())
	writeJSON(w, http.StatusOK, report)
}

// listIncidentsHandler implements GET /incidents?limit=&status=
func (srv *Server) listIncidentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	status := types.IncidentStatus(r.URL.Query().Get("status"))

	incidents, err := srv.store.ListIncidents(limit, status)
	if err != nil {
		log.Errorf("failed to list incidents", err)
		writeError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}
	if incidents == nil {
		incidents = []*types.Incident{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

// getIncidentHandler implements GET /incidents/{id}
func (srv *Server) getIncidentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/incidents/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	incident, err := srv.store.GetIncident(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		log.Errorf("failed to fetch incident", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch incident")
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

// statusHandler implements GET /services/status
func (srv *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"services":  srv.supervisor.Statuses(),
		"timestamp": time.Now().UTC(),
	})
}

// explainHandler implements POST /explain/{id}: regenerate the incident
// explanation via the model and persist it on the record.
func (srv *Server) explainHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/explain/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	incident, err := srv.store.GetIncident(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch incident")
		return
	}

	explanation, err := srv.reasoner.Explain(r.Context(), incident)
	if err != nil {
		log.Errorf("explanation generation failed", err)
		writeError(w, http.StatusBadGateway, "explanation generation failed")
		return
	}

	if err := srv.store.UpdateExplanation(id, explanation); err != nil {
		// The explanation was generated; return it even if the write failed
		log.Errorf("failed to persist explanation", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"incident_id": id,
		"explanation": explanation,
	})
}
