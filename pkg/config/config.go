package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/autopilot/pkg/types"
)

// Config holds all operator configuration, read from the environment at
// process start. Changes require a restart (notably DryRun).
type Config struct {
	// Platform identity
	ProjectID string
	Region    string // default region for targets without one

	// Scanner thresholds (per-target overrides win)
	ErrorThreshold      float64 // percent, anomaly above this
	LatencyP95Threshold float64 // milliseconds
	LatencyP99Threshold float64 // milliseconds
	MinRequestCount     int     // below this a window carries no evidence
	ScanWindowMinutes   int

	// Supervisor loop
	ScanInterval    time.Duration // 0 disables the cadence scheduler
	ScanConcurrency int           // 0 = one goroutine per target

	// Monitored services
	Targets []types.ServiceTarget

	// Executor safety bounds
	MinInstancesFloor   int
	MinInstancesCeiling int
	MaxInstancesFloor   int
	MaxInstancesCeiling int
	DryRun              bool

	// Bus
	BusTopic        string
	BusSubscription string
	BusEndpoint     string // publisher endpoint; empty = in-process broker

	// Document store
	IncidentsCollection string
	ActionsCollection   string
	DataDir             string

	// External endpoints
	TelemetryEndpoint    string
	ControlPlaneEndpoint string
	ModelEndpoint        string
	ModelName            string

	// HTTP listeners
	SupervisorAddr string
	FixerAddr      string

	// Client deadlines
	TelemetryTimeout time.Duration
	ModelTimeout     time.Duration
	PublishTimeout   time.Duration
	OperationTimeout time.Duration
}

// FromEnv builds a Config from environment variables with sensible defaults.
// PROJECT_ID is required; everything else is defaulted.
func FromEnv() (*Config, error) {
	projectID := os.Getenv("PROJECT_ID")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable is required")
	}

	cfg := &Config{
		ProjectID: projectID,
		Region:    getEnv("REGION", "us-central1"),

		ErrorThreshold:      getEnvFloat("ERROR_THRESHOLD", 5.0),
		LatencyP95Threshold: getEnvFloat("LATENCY_P95_THRESHOLD_MS", 600),
		LatencyP99Threshold: getEnvFloat("LATENCY_P99_THRESHOLD_MS", 1000),
		MinRequestCount:     getEnvInt("MIN_REQUEST_COUNT", 100),
		ScanWindowMinutes:   getEnvInt("SCAN_WINDOW_MINUTES", 5),

		ScanInterval:    getEnvDuration("SCAN_INTERVAL", 0),
		ScanConcurrency: getEnvInt("SCAN_CONCURRENCY", 0),

		MinInstancesFloor:   getEnvInt("MIN_INSTANCES_FLOOR", 0),
		MinInstancesCeiling: getEnvInt("MIN_INSTANCES_CEILING", 5),
		MaxInstancesFloor:   getEnvInt("MAX_INSTANCES_FLOOR", 10),
		MaxInstancesCeiling: getEnvInt("MAX_INSTANCES_CEILING", 100),
		DryRun:              getEnvBool("DRY_RUN_MODE", false),

		BusTopic:        getEnv("BUS_TOPIC", "agent-actions"),
		BusSubscription: getEnv("BUS_SUBSCRIPTION", "agent-actions-sub"),
		BusEndpoint:     getEnv("BUS_ENDPOINT", ""),

		IncidentsCollection: getEnv("INCIDENTS_COLLECTION", "incidents"),
		ActionsCollection:   getEnv("ACTIONS_COLLECTION", "actions"),
		DataDir:             getEnv("DATA_DIR", "/var/lib/autopilot"),

		TelemetryEndpoint:    getEnv("TELEMETRY_ENDPOINT", ""),
		ControlPlaneEndpoint: getEnv("CONTROL_PLANE_ENDPOINT", ""),
		ModelEndpoint:        getEnv("MODEL_ENDPOINT", ""),
		ModelName:            getEnv("MODEL_NAME", "gemini-1.5-flash"),

		SupervisorAddr: getEnv("SUPERVISOR_ADDR", "0.0.0.0:8080"),
		FixerAddr:      getEnv("FIXER_ADDR", "0.0.0.0:8081"),

		TelemetryTimeout: getEnvDuration("TELEMETRY_TIMEOUT", 30*time.Second),
		ModelTimeout:     getEnvDuration("MODEL_TIMEOUT", 30*time.Second),
		PublishTimeout:   getEnvDuration("PUBLISH_TIMEOUT", 10*time.Second),
		OperationTimeout: getEnvDuration("OPERATION_TIMEOUT", 5*time.Minute),
	}

	targets, err := loadTargets(cfg.Region)
	if err != nil {
		return nil, err
	}
	cfg.Targets = targets

	return cfg, nil
}

// Validate checks cross-field consistency
func (c *Config) Validate() error {
	if c.ScanWindowMinutes < 1 {
		return fmt.Errorf("scan window too small: %d minutes (minimum 1)", c.ScanWindowMinutes)
	}
	if c.MinInstancesFloor > c.MinInstancesCeiling {
		return fmt.Errorf("MIN_INSTANCES_FLOOR (%d) exceeds MIN_INSTANCES_CEILING (%d)",
			c.MinInstancesFloor, c.MinInstancesCeiling)
	}
	if c.MaxInstancesFloor > c.MaxInstancesCeiling {
		return fmt.Errorf("MAX_INSTANCES_FLOOR (%d) exceeds MAX_INSTANCES_CEILING (%d)",
			c.MaxInstancesFloor, c.MaxInstancesCeiling)
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("no target services configured")
	}
	return nil
}

// ThresholdsFor resolves the effective thresholds for one target,
// applying config defaults where the target carries no override.
func (c *Config) ThresholdsFor(t types.ServiceTarget) (errRate, latencyP95 float64, minRequests int) {
	errRate = t.ErrorThreshold
	if errRate == 0 {
		errRate = c.ErrorThreshold
	}
	latencyP95 = t.LatencyP95Threshold
	if latencyP95 == 0 {
		latencyP95 = c.LatencyP95Threshold
	}
	minRequests = t.MinRequestCount
	if minRequests == 0 {
		minRequests = c.MinRequestCount
	}
	return errRate, latencyP95, minRequests
}

// loadTargets resolves the monitored service list. Precedence:
// TARGET_SERVICES_FILE (YAML), then TARGET_SERVICES_JSON, then the
// comma-separated TARGET_SERVICES fallback with the default region.
func loadTargets(defaultRegion string) ([]types.ServiceTarget, error) {
	if path := os.Getenv("TARGET_SERVICES_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read targets file: %w", err)
		}
		var doc struct {
			Services []types.ServiceTarget `yaml:"services"`
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse targets file: %w", err)
		}
		return fillRegions(doc.Services, defaultRegion), nil
	}

	if raw := os.Getenv("TARGET_SERVICES_JSON"); raw != "" {
		var targets []types.ServiceTarget
		if err := json.Unmarshal([]byte(raw), &targets); err != nil {
			return nil, fmt.Errorf("invalid TARGET_SERVICES_JSON: %w", err)
		}
		return fillRegions(targets, defaultRegion), nil
	}

	if raw := os.Getenv("TARGET_SERVICES"); raw != "" {
		var targets []types.ServiceTarget
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			targets = append(targets, types.ServiceTarget{Name: name, Region: defaultRegion})
		}
		return targets, nil
	}

	return nil, nil
}

func fillRegions(targets []types.ServiceTarget, defaultRegion string) []types.ServiceTarget {
	for i := range targets {
		if targets[i].Region == "" {
			targets[i].Region = defaultRegion
		}
	}
	return targets
}

// Helper functions to read environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
