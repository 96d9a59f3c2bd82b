/*
Package fixer consumes action envelopes and applies them to the platform.

The fixer is the apply and reconcile half of the pipeline. Envelopes
arrive either through the bus push endpoint (POST /actions/execute) or,
in local mode, from the in-process broker.

# Envelope Handling

 1. An already-terminal incident means a redelivered duplicate: observe
    and acknowledge without re-mutating.
 2. A missing incident record gets a stub rather than a dropped action.
 3. The incident enters REMEDIATING, the executor runs, and the terminal
    state (RESOLVED or FAILED) is written together with the action result
    and an audit row.
 4. Acknowledgement happens only after the terminal write; undecodable
    payloads are acknowledged as poison so they never block the queue.

Store writes after the platform mutation are best-effort. The system's
externally visible truth is the platform state, not the record of it, so
a failed audit write is logged and never re-raised.

The push endpoint always answers 200: processing failures are captured on
the incident record, and a non-200 would only cause a redelivery storm
for an outcome that is already decided.
*/
package fixer
