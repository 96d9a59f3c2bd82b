package types

import (
	"time"
)

// ServiceTarget is the unit of monitoring: one managed container service in
// one platform region, plus its per-service threshold overrides.
// Targets are immutable once loaded from configuration.
type ServiceTarget struct {
	Name   string `json:"name" yaml:"name"`
	Region string `json:"region" yaml:"region"`

	// Threshold overrides. Zero values mean "use the configured defaults".
	ErrorThreshold      float64 `json:"error_threshold,omitempty" yaml:"error_threshold,omitempty"`
	LatencyP95Threshold float64 `json:"latency_p95_threshold_ms,omitempty" yaml:"latency_p95_threshold_ms,omitempty"`
	MinRequestCount     int     `json:"min_request_count,omitempty" yaml:"min_request_count,omitempty"`
}

// HealthStatus represents the assessed health of a service
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// HealthMetrics is a snapshot of service traffic over one scan window.
// ErrorRate is derived: 100 * ErrorCount / RequestCount when RequestCount > 0,
// else 0.
type HealthMetrics struct {
	RequestCount int       `json:"request_count"`
	SuccessCount int       `json:"success_count"`
	ErrorCount   int       `json:"error_count"`
	ErrorRate    float64   `json:"error_rate"`
	LatencyP95   *float64  `json:"latency_p95,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// LogSample is one error log entry captured during a scan.
// Messages are truncated to MaxLogMessageLen at capture time.
type LogSample struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
}

const (
	// MaxLogSamples caps how many log entries a scan keeps per service
	MaxLogSamples = 50

	// MaxLogMessageLen caps the length of a captured log message
	MaxLogMessageLen = 500
)

// ServiceHealth is the complete per-service assessment produced by one scan.
// HasAnomaly is true iff Status is degraded or unhealthy.
type ServiceHealth struct {
	Service        string        `json:"service"`
	Region         string        `json:"region"`
	Status         HealthStatus  `json:"status"`
	Metrics        HealthMetrics `json:"metrics"`
	LogSamples     []LogSample   `json:"log_samples,omitempty"`
	HasAnomaly     bool          `json:"has_anomaly"`
	AnomalySummary string        `json:"anomaly_summary,omitempty"`
	CheckedAt      time.Time     `json:"checked_at"`
}

// ActionType identifies a remediation action
type ActionType string

const (
	ActionRollback  ActionType = "ROLLBACK"
	ActionScaleUp   ActionType = "SCALE_UP"
	ActionScaleDown ActionType = "SCALE_DOWN"
	ActionRedeploy  ActionType = "REDEPLOY"
	ActionNone      ActionType = "NONE"
)

// KnownActions lists every action the reasoner is allowed to recommend
var KnownActions = []ActionType{
	ActionRollback,
	ActionScaleUp,
	ActionScaleDown,
	ActionRedeploy,
	ActionNone,
}

// IsKnownAction reports whether s names a known action
func IsKnownAction(s string) (ActionType, bool) {
	for _, a := range KnownActions {
		if string(a) == s {
			return a, true
		}
	}
	return ActionNone, false
}

// IsScaling reports whether a mutates instance bounds
func (a ActionType) IsScaling() bool {
	return a == ActionScaleUp || a == ActionScaleDown
}

// ScaleParams carries explicit instance bounds for scaling actions
type ScaleParams struct {
	MinInstances *int `json:"min_instances,omitempty"`
	MaxInstances *int `json:"max_instances,omitempty"`
}

// Recommendation is the typed outcome of a reasoner analysis.
// Invariants: ROLLBACK implies TargetRevision is set; SCALE_* implies
// ScaleParams is set; a parse failure collapses to NONE with confidence 0.
type Recommendation struct {
	Action         ActionType   `json:"action"`
	Confidence     float64      `json:"confidence"`
	Reasoning      string       `json:"reasoning"`
	RiskAssessment string       `json:"risk_assessment,omitempty"`
	ExpectedImpact string       `json:"expected_impact,omitempty"`
	RootCause      string       `json:"root_cause_hypothesis,omitempty"`
	TargetRevision string       `json:"target_revision,omitempty"`
	ScaleParams    *ScaleParams `json:"scale_params,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// IncidentStatus represents a state in the incident lifecycle
type IncidentStatus string

const (
	IncidentDetected      IncidentStatus = "detected"
	IncidentAnalyzing     IncidentStatus = "analyzing"
	IncidentActionPending IncidentStatus = "action_pending"
	IncidentRemediating   IncidentStatus = "remediating"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentFailed        IncidentStatus = "failed"
)

// Terminal reports whether s is a terminal (write-once) incident state
func (s IncidentStatus) Terminal() bool {
	return s == IncidentResolved || s == IncidentFailed
}

// Incident is the lifecycle record for one detected anomaly.
// Transitions follow the strictly monotone DAG
// detected → [analyzing →] action_pending → remediating → {resolved, failed};
// terminal states are write-once.
type Incident struct {
	ID                   string          `json:"id"`
	Service              string          `json:"service"`
	Region               string          `json:"region"`
	Status               IncidentStatus  `json:"status"`
	DetectedAt           time.Time       `json:"detected_at"`
	RemediationStartedAt *time.Time      `json:"remediation_started_at,omitempty"`
	ResolvedAt           *time.Time      `json:"resolved_at,omitempty"`
	Metrics              HealthMetrics   `json:"metrics_snapshot"`
	LogSamples           []LogSample     `json:"log_samples,omitempty"`
	AnomalySummary       string          `json:"anomaly_summary"`
	Recommendation       *Recommendation `json:"recommendation,omitempty"`
	ActionResult         *ActionResult   `json:"action_result,omitempty"`
	ErrorMessage         string          `json:"error_message,omitempty"`
	Explanation          string          `json:"explanation,omitempty"`
	MTTRSeconds          *int64          `json:"mttr_seconds,omitempty"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// ActionEnvelope is the self-sufficient bus payload describing one action.
// The fixer must be able to apply it without consulting supervisor memory.
type ActionEnvelope struct {
	IncidentID     string       `json:"incident_id"`
	Service        string       `json:"service_name"`
	Region         string       `json:"region"`
	Action         ActionType   `json:"action_type"`
	TargetRevision string       `json:"target_revision,omitempty"`
	ScaleParams    *ScaleParams `json:"scale_params,omitempty"`
	Reason         string       `json:"reason"`
	Confidence     float64      `json:"confidence"`
	CreatedAt      time.Time    `json:"created_at"`
}

// ActionResult captures the terminal outcome of one executed action
type ActionResult struct {
	Success     bool           `json:"success"`
	DryRun      bool           `json:"dry_run,omitempty"`
	OperationID string         `json:"operation_id,omitempty"`
	OldTraffic  map[string]int `json:"old_traffic,omitempty"`
	NewTraffic  map[string]int `json:"new_traffic,omitempty"`
	OldMin      *int           `json:"old_min,omitempty"`
	OldMax      *int           `json:"old_max,omitempty"`
	NewMin      *int           `json:"new_min,omitempty"`
	NewMax      *int           `json:"new_max,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// ActionAudit is one append-only audit record per executed action
type ActionAudit struct {
	ID            string         `json:"id"`
	IncidentID    string         `json:"incident_id"`
	Action        ActionType     `json:"action_type"`
	Service       string         `json:"service_name"`
	ExecutedAt    time.Time      `json:"executed_at"`
	Success       bool           `json:"success"`
	DryRun        bool           `json:"dry_run,omitempty"`
	OldTraffic    map[string]int `json:"old_traffic,omitempty"`
	NewTraffic    map[string]int `json:"new_traffic,omitempty"`
	ScalingBefore *ScaleParams   `json:"scaling_before,omitempty"`
	ScalingAfter  *ScaleParams   `json:"scaling_after,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
}

// ScanDetail is the per-service entry in a scan report
type ScanDetail struct {
	Service        string       `json:"service"`
	Region         string       `json:"region"`
	Status         HealthStatus `json:"status"`
	HasAnomaly     bool         `json:"has_anomaly"`
	ErrorRate      float64      `json:"error_rate"`
	LatencyP95     *float64     `json:"latency_p95,omitempty"`
	RequestCount   int          `json:"request_count"`
	AnomalySummary string       `json:"anomaly_summary,omitempty"`
	IncidentID     string       `json:"incident_id,omitempty"`
	Action         ActionType   `json:"action,omitempty"`
	Published      bool         `json:"published,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// ScanReport aggregates one full supervisor scan cycle
type ScanReport struct {
	ScanID            string       `json:"scan_id"`
	Timestamp         time.Time    `json:"timestamp"`
	ServicesScanned   int          `json:"services_scanned"`
	AnomaliesDetected int          `json:"anomalies_detected"`
	ActionsPublished  int          `json:"actions_published"`
	Details           []ScanDetail `json:"details"`
}

// ServiceStatus is the current-scan summary for one target
type ServiceStatus struct {
	Name         string       `json:"name"`
	Region       string       `json:"region"`
	Status       HealthStatus `json:"status"`
	ErrorRate    float64      `json:"error_rate"`
	LatencyP95   *float64     `json:"latency_p95,omitempty"`
	RequestCount int          `json:"request_count"`
	LastChecked  time.Time    `json:"last_checked"`
}
