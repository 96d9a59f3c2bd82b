/*
Package telemetry queries the metrics and logging backend.

Three signals feed a health assessment: request counts (total and 5xx),
p95 latency, and error logs. All queries are labeled by (service, region)
and aligned to 60-second buckets; windows default to the last five
minutes.

HTTPClient talks to the backend's query API over HTTP+JSON. FakeClient is
the in-memory seedable implementation for tests, with per-signal error
injection to exercise the scanner's degraded paths.
*/
package telemetry
