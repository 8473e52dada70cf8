// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - CallKind:      Which inbound operation produced an event
//   - CallEvent:     Telemetry data for each inbound call
//   - AttemptEvent:  Telemetry data for each downstream attempt
//   - Config types:  TelemetryConfig, LoggerConfig, AlertConfig
package monitoring

import "time"

// =============================================================================
// CALL KINDS - Used by gateway and telemetry
// =============================================================================

// CallKind identifies the inbound operation.
type CallKind string

const (
	CallAction     CallKind = "action"
	CallCompletion CallKind = "completion"
)

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// CallEvent captures one inbound call through the gateway.
type CallEvent struct {
	RequestID   string    `json:"request_id"`
	Timestamp   time.Time `json:"timestamp"`
	Kind        CallKind  `json:"kind"`
	Name        string    `json:"name"` // action name or requirement tag
	Status      string    `json:"status"`
	Target      string    `json:"target,omitempty"` // service or provider that answered
	Chain       []string  `json:"chain,omitempty"`
	Attempts    int       `json:"attempts"`
	Success     bool      `json:"success"`
	TimedOut    bool      `json:"timed_out,omitempty"`
	Errors      []string  `json:"errors,omitempty"`
	Tokens      int       `json:"tokens,omitempty"`
	Cost        float64   `json:"cost,omitempty"`
	LatencyMs   int64     `json:"latency_ms"`
	ItemCount   int       `json:"item_count,omitempty"`
	ClientIP    string    `json:"client_ip,omitempty"`
	RequestSize int       `json:"request_size,omitempty"`
}

// AttemptEvent captures one downstream attempt.
type AttemptEvent struct {
	RequestID  string    `json:"request_id"`
	Timestamp  time.Time `json:"timestamp"`
	Target     string    `json:"target"`
	Hop        int       `json:"hop"`
	Retry      int       `json:"retry"`
	Success    bool      `json:"success"`
	LatencyMs  int64     `json:"latency_ms"`
	Tokens     int       `json:"tokens,omitempty"`
	Cost       float64   `json:"cost,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	LogPath        string `yaml:"log_path"`
	LogToStdout    bool   `yaml:"log_to_stdout"`
	AttemptLogPath string `yaml:"attempt_log_path"`
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// AlertConfig contains alert thresholds.
type AlertConfig struct {
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"`
}
