/*
Package bus publishes action envelopes with at-least-once semantics.

A single topic carries ActionEnvelopes from the supervisor to the fixer.
The payload is the JSON-encoded envelope; the attribute set echoes
incident_id, service_name, and action_type and MUST match the payload
body (downstream routing filters on attributes only).

# Publishers

HTTPPublisher posts to the bus REST endpoint with bounded
exponential-backoff retry inside the overall publish deadline. Exhausted
retries surface ErrTransient; a malformed envelope is ErrPermanent and is
never retried.

Broker is an in-process bus used by local mode and tests:

	Publisher → message channel (buffer: 100)
	     ↓
	broadcast loop
	     ↓
	subscriber channels (buffer: 50 each, full buffers skipped)

Both implement the Publisher interface, so the supervisor is wired the
same way in either deployment.

Delivery is at-least-once and unordered. Consumers must tolerate
duplicates; the executor is idempotent and terminal incident states are
write-once, so redelivery is safe end to end.
*/
package bus
