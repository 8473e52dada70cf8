// Package gateway types - request/response contracts of the action gateway.
//
// DESIGN: Types used by the gateway for:
//   - Completion requests and results
//   - Per-call bookkeeping shared by the attempt observer
//   - HTTP error bodies
//
// Types are defined here to avoid circular imports and provide clear contracts.
package gateway

import (
	"errors"
	"time"

	"github.com/compresr/action-gateway/internal/monitoring"
	"github.com/compresr/action-gateway/internal/providers"
)

// HTTP headers and limits.
const (
	HeaderRequestID      = "X-Request-ID"
	HeaderRequestTimeout = "X-Request-Timeout" // Go duration, bounds the whole call
	MaxRateLimitBuckets  = 10000
	DefaultMaxBodyBytes  = 10 * 1024 * 1024
)

// ErrInvalidRequest marks caller input rejected before any downstream call.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNoProviders is returned by InvokeCompletion when no provider is configured.
var ErrNoProviders = errors.New("no completion providers configured")

// =============================================================================
// COMPLETIONS
// =============================================================================

// CompletionRequest is the input of InvokeCompletion.
type CompletionRequest struct {
	Prompt       string                   `json:"prompt"`
	Requirement  providers.RequirementTag `json:"requirement"`
	SystemPrompt string                   `json:"system_prompt,omitempty"`
	Temperature  float64                  `json:"temperature"`
}

// CompletionResult is the output of InvokeCompletion.
type CompletionResult struct {
	Response   string  `json:"response"`
	ProviderID string  `json:"providerId"`
	Model      string  `json:"model"`
	LatencyMs  int64   `json:"latencyMs"` // whole call, retries and fallbacks included
	Cost       float64 `json:"cost"`
	Tokens     int     `json:"tokens"`
	Attempts   int     `json:"attempts"`
}

// =============================================================================
// CALL CONTEXT - Carries state through one invocation
// =============================================================================

// callContext identifies one inbound call for telemetry.
type callContext struct {
	RequestID string
	Kind      monitoring.CallKind
	Name      string
	Chain     []string
	Start     time.Time
	Timeout   time.Duration

	// Set by the attempt function, read by the observer right after.
	lastTokens int
	lastCost   float64
}

// ProviderInfo is the public view of a catalog entry.
type ProviderInfo struct {
	ID               string         `json:"id"`
	Kind             providers.Kind `json:"kind"`
	Model            string         `json:"model"`
	CostPer1kTokens  float64        `json:"costPer1kTokens"`
	AvgLatencyMs     int            `json:"avgLatencyMs"`
	ReliabilityScore float64        `json:"reliabilityScore"`
	ReasoningScore   float64        `json:"reasoningScore"`
	Default          bool           `json:"default,omitempty"`
	Credentials      bool           `json:"credentials"` // whether the key env var is set
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type     string   `json:"type"`
	Message  string   `json:"message"`
	Field    string   `json:"field,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	TimedOut bool     `json:"timedOut,omitempty"`
}
