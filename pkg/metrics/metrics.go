package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scanner metrics
	ScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autopilot_scans_total",
			Help: "Total number of fleet scan cycles",
		},
	)

	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autopilot_scan_duration_seconds",
			Help:    "Duration of a full fleet scan in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ServicesScanned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autopilot_services_scanned_total",
			Help: "Total number of per-service health checks",
		},
	)

	AnomaliesDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopilot_anomalies_detected_total",
			Help: "Total number of anomalies detected by status",
		},
		[]string{"status"},
	)

	// Incident metrics
	IncidentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autopilot_incidents_created_total",
			Help: "Total number of incidents opened",
		},
	)

	IncidentsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autopilot_incidents",
			Help: "Current number of incidents by status",
		},
		[]string{"status"},
	)

	// Reasoner metrics
	RecommendationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopilot_recommendations_total",
			Help: "Total number of recommendations by action",
		},
		[]string{"action"},
	)

	ModelLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autopilot_model_latency_seconds",
			Help:    "Model completion latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Bus metrics
	ActionsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autopilot_actions_published_total",
			Help: "Total number of action envelopes published",
		},
	)

	PublishRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autopilot_publish_retries_total",
			Help: "Total number of publish retry attempts",
		},
	)

	PublishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autopilot_publish_failures_total",
			Help: "Total number of publishes abandoned after retry",
		},
	)

	// Executor metrics
	ActionsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopilot_actions_executed_total",
			Help: "Total number of actions executed by type and outcome",
		},
		[]string{"action", "outcome"},
	)

	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autopilot_action_duration_seconds",
			Help:    "Action execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autopilot_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ScansTotal)
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(ServicesScanned)
	prometheus.MustRegister(AnomaliesDetected)
	prometheus.MustRegister(IncidentsCreated)
	prometheus.MustRegister(IncidentsByStatus)
	prometheus.MustRegister(RecommendationsTotal)
	prometheus.MustRegister(ModelLatency)
	prometheus.MustRegister(ActionsPublished)
	prometheus.MustRegister(PublishRetries)
	prometheus.MustRegister(PublishFailures)
	prometheus.MustRegister(ActionsExecuted)
	prometheus.MustRegister(ActionDuration)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Instrument wraps h, counting every request by method and response status
func Instrument(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	})
}
