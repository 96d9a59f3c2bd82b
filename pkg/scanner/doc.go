/*
Package scanner turns raw telemetry into per-service health assessments.

The scanner is the detect stage of the pipeline. For each target it
fetches one window of telemetry and reduces it to a ServiceHealth with a
deterministic anomaly classification.

# Architecture

	┌──────────────────── HEALTH SCANNER ─────────────────────┐
	│                                                           │
	│  ┌─────────────────────────────────────────┐            │
	│  │         Telemetry Gather (fan-in)        │            │
	│  │                                           │            │
	│  │  request counts ─┐                       │            │
	│  │  p95 latency    ─┼─→ join (all complete) │            │
	│  │  error logs     ─┘                       │            │
	│  └──────────────────┬──────────────────────┘            │
	│                     │                                     │
	│  ┌──────────────────▼──────────────────────┐            │
	│  │             Reduce                       │            │
	│  │  error_rate = 100 * errors / total       │            │
	│  │  rounded to two decimals                 │            │
	│  └──────────────────┬──────────────────────┘            │
	│                     │                                     │
	│  ┌──────────────────▼──────────────────────┐            │
	│  │         Anomaly Classification           │            │
	│  │  below min requests   → HEALTHY          │            │
	│  │  0 violations         → HEALTHY          │            │
	│  │  1 violation          → DEGRADED         │            │
	│  │  2+ violations        → UNHEALTHY        │            │
	│  └─────────────────────────────────────────┘            │
	└──────────────────────────────────────────────────────────┘

# Failure Semantics

Scan is a total function. If the request-count signal cannot be fetched
the assessment is UNKNOWN with zeroed metrics and no anomaly; a failed
latency or log query degrades to missing data with a warning. The
supervisor never sees an error from the scanner.

Log samples are capped at 50 entries of at most 500 characters each,
truncated at capture time.
*/
package scanner
