/*
Package metrics exposes Prometheus collectors for the pipeline.

Collectors are registered globally at init and cover scan cycles and
durations, anomalies by status, incidents, recommendations by action,
publish attempts and retries, and action executions by type and outcome.
Handler() serves them on /metrics of both HTTP surfaces; Instrument wraps
a handler to count API requests by method and status.
*/
package metrics
