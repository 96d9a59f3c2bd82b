/*
Package supervisor orchestrates the detect and decide half of the
pipeline.

# Architecture

	┌───────────────────── SUPERVISOR ──────────────────────────┐
	│                                                             │
	│  Scheduler (ticker) ──→ ScanAll ←── POST /health/scan      │
	│                           │                                 │
	│         ┌─────────────────┼─────────────────┐              │
	│         ▼                 ▼                 ▼              │
	│     scan svc A        scan svc B        scan svc C         │
	│     (bounded concurrency, failures isolated per service)   │
	│         │                                                   │
	│         ▼  has_anomaly                                      │
	│     Reasoner.Recommend                                      │
	│         │                                                   │
	│         ▼                                                   │
	│     Incident(DETECTED) → publish envelope → ACTION_PENDING │
	│                                                             │
	└─────────────────────────────────────────────────────────────┘

Incident ids incorporate wall-clock seconds (inc_<service>_<unix>), so
rapid duplicate anomalies for one service collide deterministically
within a second; create-if-not-exists semantics are not required.

# Failure Semantics

A failure scanning or reasoning about one service never halts the others.
A persistence or publish failure for a single anomaly is recorded in the
scan detail and logged; the scan report still returns.

# HTTP Surface

	POST /health/scan      trigger a scan, returns the ScanReport
	GET  /incidents        paged list, newest first (?limit=&status=)
	GET  /incidents/{id}   single incident, 404 on miss
	GET  /services/status  current-scan summary per target
	POST /explain/{id}     regenerate the incident explanation
	GET  /health           liveness with component readiness map
	GET  /metrics          Prometheus collectors
*/
package supervisor
