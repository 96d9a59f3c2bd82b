/*
Package log provides structured logging built on zerolog.

A process-wide Logger is configured once via Init (level, JSON or console
output). Child-logger helpers attach the fields the pipeline correlates
on: component, service/region, incident_id, and scan_id.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithService("demo-app-a", "us-central1")
	logger.Warn().Str("summary", summary).Msg("anomaly detected")
*/
package log
