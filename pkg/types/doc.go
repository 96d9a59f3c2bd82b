/*
Package types defines the core data model shared by the supervisor and
fixer processes.

Everything that crosses a process boundary lives here: health assessments,
recommendations, incidents, bus envelopes, and audit records. All types
are JSON-serializable; field names on the wire match the document store
schemas.

# Core Types

ServiceTarget:
  - One managed container service in one platform region
  - Optional per-service threshold overrides (zero = configured defaults)
  - Immutable once loaded from configuration

HealthMetrics / ServiceHealth:
  - Snapshot of traffic over one scan window
  - error_rate = 100 * error_count / request_count (two decimals)
  - status is one of healthy, degraded, unhealthy, unknown
  - has_anomaly is true iff status is degraded or unhealthy

Recommendation:
  - Typed outcome of a reasoner analysis
  - action is one of ROLLBACK, SCALE_UP, SCALE_DOWN, REDEPLOY, NONE
  - ROLLBACK carries a target revision; SCALE_* carries scale params
  - Parse failures collapse to NONE with confidence 0

Incident:
  - Lifecycle record keyed by inc_<service>_<unix-seconds>
  - Status walks the DAG detected → [analyzing →] action_pending →
    remediating → {resolved, failed}; terminal states are write-once
  - mttr_seconds is derived when the incident resolves

ActionEnvelope:
  - The bus payload; self-sufficient so the fixer never consults
    supervisor memory at apply time

ActionAudit:
  - Append-only record per executed action with before/after traffic
    split and scaling bounds

# Ownership

The supervisor owns an Incident up to action_pending. Once the envelope
is published, the fixer owns all subsequent transitions. The document
store is the single source of truth for cross-process ordering.
*/
package types
