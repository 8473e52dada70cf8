// Monitoring configuration - telemetry and logging settings.
//
// DESIGN: Separates logging (zerolog) from telemetry (JSONL files) and
// metrics (Prometheus). Logging is for operators, telemetry is for
// analytics/debugging, metrics are for dashboards.
package config

import (
	"time"

	"github.com/compresr/action-gateway/internal/monitoring"
)

// MonitoringConfig contains all monitoring settings.
type MonitoringConfig struct {
	// Logging settings
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path

	// Telemetry settings
	TelemetryEnabled bool   `yaml:"telemetry_enabled"` // Enable telemetry tracking
	TelemetryPath    string `yaml:"telemetry_path"`    // Path to call event JSONL file
	AttemptLogPath   string `yaml:"attempt_log_path"`  // Path to attempt event JSONL file
	LogToStdout      bool   `yaml:"log_to_stdout"`     // Also log telemetry to stdout

	// Metrics and alerts
	MetricsEnabled       bool          `yaml:"metrics_enabled"`        // Serve /metrics
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"` // Alert threshold, 0 = 5s
}

// LoggerConfig returns the zerolog settings.
func (m MonitoringConfig) LoggerConfig() monitoring.LoggerConfig {
	return monitoring.LoggerConfig{Level: m.LogLevel, Format: m.LogFormat, Output: m.LogOutput}
}

// TelemetryConfig returns the JSONL tracker settings.
func (m MonitoringConfig) TelemetryConfig() monitoring.TelemetryConfig {
	return monitoring.TelemetryConfig{
		Enabled:        m.TelemetryEnabled,
		LogPath:        m.TelemetryPath,
		LogToStdout:    m.LogToStdout,
		AttemptLogPath: m.AttemptLogPath,
	}
}

// AlertConfig returns the alert thresholds.
func (m MonitoringConfig) AlertConfig() monitoring.AlertConfig {
	return monitoring.AlertConfig{HighLatencyThreshold: m.HighLatencyThreshold}
}
