// Package config loads and validates the gateway configuration.
//
// DESIGN: All configuration comes from YAML files. Only retry and routing
// carry defaults (see routing.go); everything else must be explicit.
// Credentials never appear in config: providers name an env var instead.
//
// FILES:
//   - config.go:     Root Config struct, Load(), Validate()
//   - routing.go:    Services, routing and retry settings
//   - monitoring.go: Logging and telemetry settings
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/compresr/action-gateway/internal/providers"
	"github.com/compresr/action-gateway/internal/schema"
)

// Config is the root configuration for the Action Gateway.
type Config struct {
	Server     ServerConfig               `yaml:"server"`     // HTTP server settings
	Services   map[string]ServiceConfig   `yaml:"services"`   // Downstream action services
	Actions    []schema.ActionSchema      `yaml:"actions"`    // Static action table
	Providers  []providers.ProviderConfig `yaml:"providers"`  // Completion providers, in priority order
	Routing    RoutingConfig              `yaml:"routing"`    // Provider routing
	Retry      RetryConfig                `yaml:"retry"`      // Retry/backoff policy
	Store      StoreConfig                `yaml:"store"`      // Attempt journal
	Monitoring MonitoringConfig           `yaml:"monitoring"` // Telemetry and logging
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`           // Port to listen on
	ReadTimeout  time.Duration `yaml:"read_timeout"`   // Max time to read request
	WriteTimeout time.Duration `yaml:"write_timeout"`  // Max time to write response
	CallTimeout  time.Duration `yaml:"call_timeout"`   // Default whole-call deadline
	RateLimit    float64       `yaml:"rate_limit"`     // Inbound requests/sec per client IP, 0 = off
	RateBurst    int           `yaml:"rate_burst"`     // Burst for RateLimit
	MaxBodyBytes int64         `yaml:"max_body_bytes"` // Request body limit, 0 = 10MB
}

// StoreConfig contains attempt journal settings.
type StoreConfig struct {
	Type       string        `yaml:"type"`        // "memory" or "sqlite"
	Path       string        `yaml:"path"`        // SQLite file, sqlite only
	TTL        time.Duration `yaml:"ttl"`         // Time-to-live for entries
	MaxEntries int           `yaml:"max_entries"` // memory only, 0 = default
}

// expandEnvWithDefaults expands environment variables with support for default values.
// Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	// Pattern matches ${VAR:-default} or ${VAR}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads configuration from a YAML file.
// Returns an error if the file doesn't exist or is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// This lets deployments redirect log and journal paths without editing
// the base config files.
func (c *Config) applyEnvOverrides() {
	// GATEWAY_TELEMETRY_LOG overrides the call event log path
	if envPath := os.Getenv("GATEWAY_TELEMETRY_LOG"); envPath != "" {
		c.Monitoring.TelemetryPath = envPath
		c.Monitoring.TelemetryEnabled = true
	}

	// GATEWAY_ATTEMPT_LOG overrides the attempt event log path
	if envPath := os.Getenv("GATEWAY_ATTEMPT_LOG"); envPath != "" {
		c.Monitoring.AttemptLogPath = envPath
	}

	// GATEWAY_JOURNAL_PATH switches the journal to SQLite at the given path
	if envPath := os.Getenv("GATEWAY_JOURNAL_PATH"); envPath != "" {
		c.Store.Type = "sqlite"
		c.Store.Path = envPath
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.write_timeout is required")
	}
	if c.Server.CallTimeout <= 0 {
		return fmt.Errorf("server.call_timeout is required")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must be >= 0")
	}

	// Store validation
	switch c.Store.Type {
	case "":
		return fmt.Errorf("store.type is required")
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for sqlite")
		}
	default:
		return fmt.Errorf("unknown store.type %q (must be memory or sqlite)", c.Store.Type)
	}
	if c.Store.TTL == 0 {
		return fmt.Errorf("store.ttl is required")
	}

	if err := c.validateServices(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if err := c.validateActions(); err != nil {
		return err
	}
	return nil
}

// validateActions checks every action and its handler reference.
func (c *Config) validateActions() error {
	if len(c.Actions) == 0 {
		return fmt.Errorf("at least one action is required")
	}
	seen := make(map[string]bool, len(c.Actions))
	for i, a := range c.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("actions[%d]: %w", i, err)
		}
		if seen[a.Name] {
			return fmt.Errorf("actions[%d]: duplicate action %q", i, a.Name)
		}
		seen[a.Name] = true

		if a.Handler.ProviderRouted() {
			if len(c.Providers) == 0 {
				return fmt.Errorf("action %q routes to providers but none are configured", a.Name)
			}
			if _, err := providers.ParseRequirementTag(a.Handler.Requirement); err != nil {
				return fmt.Errorf("action %q: %w", a.Name, err)
			}
			continue
		}
		if _, ok := c.Services[a.Handler.ServiceID]; !ok {
			return fmt.Errorf("action %q: unknown service %q", a.Name, a.Handler.ServiceID)
		}
	}
	return nil
}
