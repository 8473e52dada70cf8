// Package providers holds the provider catalog and the requirement router.
//
// DESIGN: The catalog is a fixed, ordered table loaded once from config.
// Declaration order matters: it breaks every selection tie, which keeps
// routing deterministic. Nothing here is mutated after NewCatalog returns.
package providers

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Kind is the wire format spoken by a provider endpoint.
type Kind string

const (
	KindOpenAI    Kind = "openai" // also OpenAI-compatible APIs (Groq, Together, ...)
	KindAnthropic Kind = "anthropic"
	KindGemini    Kind = "gemini"
	KindOllama    Kind = "ollama"
	KindBedrock   Kind = "bedrock"
)

// ProviderConfig describes one completion backend.
type ProviderConfig struct {
	ID               string  `yaml:"id" json:"id"`
	Kind             Kind    `yaml:"kind" json:"kind"`
	Endpoint         string  `yaml:"endpoint" json:"endpoint"`
	Model            string  `yaml:"model" json:"model"`
	MaxTokens        int     `yaml:"max_tokens" json:"max_tokens"`
	TimeoutMs        int     `yaml:"timeout_ms" json:"timeout_ms"`
	CostPer1kTokens  float64 `yaml:"cost_per_1k_tokens" json:"cost_per_1k_tokens"`
	AvgLatencyMs     int     `yaml:"avg_latency_ms" json:"avg_latency_ms"`
	ReliabilityScore float64 `yaml:"reliability_score" json:"reliability_score"`
	ReasoningScore   float64 `yaml:"reasoning_score" json:"reasoning_score"`

	// APIKeyEnv names the environment variable holding the credential.
	// Defaults to <ID>_API_KEY. Keys never live in config files.
	APIKeyEnv         string  `yaml:"api_key_env" json:"-"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second,omitempty"`
	Region            string  `yaml:"region,omitempty" json:"region,omitempty"` // bedrock only
}

// Timeout returns the per-attempt timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// KeyEnv returns the environment variable name for the provider credential.
func (p ProviderConfig) KeyEnv() string {
	if p.APIKeyEnv != "" {
		return p.APIKeyEnv
	}
	id := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(p.ID))
	return id + "_API_KEY"
}

// APIKey reads the credential from the environment.
func (p ProviderConfig) APIKey() string {
	return os.Getenv(p.KeyEnv())
}

// CostFor returns the cost of a call that consumed tokens.
func (p ProviderConfig) CostFor(tokens int) float64 {
	return float64(tokens) / 1000 * p.CostPer1kTokens
}

// Validate checks a single provider entry.
func (p ProviderConfig) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("provider id is required")
	}
	switch p.Kind {
	case KindOpenAI, KindAnthropic, KindGemini, KindOllama, KindBedrock:
	case "":
		return fmt.Errorf("provider %q: kind is required", p.ID)
	default:
		return fmt.Errorf("provider %q: unknown kind %q", p.ID, p.Kind)
	}
	if p.Model == "" {
		return fmt.Errorf("provider %q: model is required", p.ID)
	}
	if p.TimeoutMs <= 0 {
		return fmt.Errorf("provider %q: timeout_ms must be > 0", p.ID)
	}
	if p.CostPer1kTokens < 0 {
		return fmt.Errorf("provider %q: cost_per_1k_tokens must be >= 0", p.ID)
	}
	if p.ReliabilityScore < 0 || p.ReliabilityScore > 1 {
		return fmt.Errorf("provider %q: reliability_score must be within 0-1", p.ID)
	}
	if p.RequestsPerSecond < 0 {
		return fmt.Errorf("provider %q: requests_per_second must be >= 0", p.ID)
	}
	return nil
}
