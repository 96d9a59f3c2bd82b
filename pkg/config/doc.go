/*
Package config loads operator configuration from the environment.

PROJECT_ID is required; everything else has a default. The monitored
target list comes from TARGET_SERVICES_FILE (YAML), TARGET_SERVICES_JSON
(JSON array of {name, region}), or TARGET_SERVICES (comma-separated names
with the default region), in that precedence order.

Per-service threshold overrides on a target win over the configured
defaults; ThresholdsFor resolves the effective values for one target.

Configuration is read once at process start. Operational switches like
DRY_RUN_MODE require a restart to change.
*/
package config
