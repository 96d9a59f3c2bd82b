package fixer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/autopilot/pkg/bus"
	"github.com/cuemby/autopilot/pkg/log"
	"github.com/cuemby/autopilot/pkg/metrics"
	"github.com/cuemby/autopilot/pkg/types"
)

// Server is the fixer HTTP surface. The push endpoint always answers 200:
// a non-200 would make the bus redeliver a message whose outcome is
// already recorded on the incident, and poison messages would loop
// forever.
type Server struct {
	fixer      *Fixer
	mux        *http.ServeMux
	httpServer *http.Server
}

// NewServer creates the fixer HTTP server
func NewServer(f *Fixer) *Server {
	mux := http.NewServeMux()
	srv := &Server{fixer: f, mux: mux}

	// Register endpoints
	mux.HandleFunc("/", srv.rootHandler)
	mux.HandleFunc("/health", srv.healthHandler)
	mux.HandleFunc("/actions/execute", srv.pushHandler)
	mux.HandleFunc("/actions/execute/manual", srv.manualHandler)
	mux.Handle("/metrics", metrics.Handler())

	return srv
}

// Start starts the HTTP server
func (srv *Server) Start(addr string) error {
	srv.httpServer = &http.Server{
		Addr:         addr,
		Handler:      metrics.Instrument(srv.mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 6 * time.Minute, // must outlive the operation deadline
		IdleTimeout:  60 * time.Second,
	}
	return srv.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server; in-flight envelopes finish
// their terminal incident write before the handler returns.
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

func (srv *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "autopilot-fixer",
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (srv *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"components": map[string]bool{
			"executor": srv.fixer != nil,
		},
	})
}

// pushEnvelope is the bus push-delivery wrapper
type pushEnvelope struct {
	Message struct {
		MessageID  string            `json:"messageId"`
		Data       string            `json:"data"` // base64-encoded payload
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
}

// pushHandler implements POST /actions/execute, the bus push endpoint
func (srv *Server) pushHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var wrapper pushEnvelope
	if err := json.NewDecoder(r.Body).Decode(&wrapper); err != nil {
		log.Errorf("undecodable push request, acknowledging as poison", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if wrapper.Message.Data == "" {
		log.Warn("push request without message data, ignoring")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	payload, err := base64.StdEncoding.DecodeString(wrapper.Message.Data)
	if err != nil {
		log.Errorf("undecodable message payload, acknowledging as poison", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	env, err := bus.Decode(payload)
	if err != nil {
		log.Errorf("unparseable action envelope, acknowledging as poison", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	log.Logger.Info().
		Str("message_id", wrapper.Message.MessageID).
		Str("incident_id", env.IncidentID).
		Msg("received pushed action")

	// Processing failures are recorded on the incident; the push endpoint
	// still answers 200 to stop redelivery
	handleErr := srv.fixer.HandleEnvelope(r.Context(), env)

	resp := map[string]interface{}{
		"status":      "processed",
		"incident_id": env.IncidentID,
		"action_type": string(env.Action),
		"timestamp":   time.Now().UTC(),
	}
	if handleErr != nil {
		resp["status"] = "failed"
		resp["error"] = handleErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// manualHandler implements POST /actions/execute/manual: the same envelope
// as a bus message, not base64-wrapped, for operator testing.
func (srv *Server) manualHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var env types.ActionEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid envelope"})
		return
	}
	if env.Service == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "service_name is required"})
		return
	}
	if env.IncidentID == "" {
		env.IncidentID = fmt.Sprintf("manual_%d", time.Now().Unix())
	}

	handleErr := srv.fixer.HandleEnvelope(r.Context(), &env)

	resp := map[string]interface{}{
		"status":      "success",
		"incident_id": env.IncidentID,
		"action_type": string(env.Action),
		"timestamp":   time.Now().UTC(),
	}
	if handleErr != nil {
		resp["status"] = "failed"
		resp["error"] = handleErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
