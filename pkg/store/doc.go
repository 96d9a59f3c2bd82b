/*
Package store is the incident document store client.

Two collections back the pipeline: incidents (keyed by incident id) and
actions (auto-keyed append-only audit records). The bundled implementation
is BoltDB with JSON values; the Store interface keeps the supervisor and
fixer independent of the backend.

# Lifecycle DAG

The store validates every status change against the strictly monotone
incident DAG:

	DETECTED ──→ ANALYZING ──→ ACTION_PENDING ──→ REMEDIATING ──→ RESOLVED
	    │             │               ▲                │
	    └─────────────┴───────────────┘                └─────────→ FAILED

ANALYZING is optional. The fixer may enter REMEDIATING from any
non-terminal state, covering stub incidents whose supervisor write never
landed. Terminal states are write-once: any transition out of RESOLVED or
FAILED is rejected with ErrInvalidTransition and the stored record
unchanged. Validation runs inside the Bolt transaction, so a concurrent
duplicate delivery observes either the pre- or post-transition record,
never a partial write.

# Managed Timestamps

The store stamps remediation_started_at on entry to REMEDIATING,
resolved_at on entry to a terminal state, and derives mttr_seconds when an
incident RESOLVES with a known detected_at.

Listing is reverse-chronological by detected_at with an optional status
filter, matching the supervisor's GET /incidents surface.
*/
package store
