// Package adapters provides provider-specific completion wire formats.
//
// DESIGN: The gateway routes completions across heterogeneous LLM backends.
// Each backend speaks a different JSON dialect. Adapters hide the differences
// behind one Build/Extract pair:
//
//   - BuildRequest:   CompletionRequest → provider request body (sjson)
//   - ExtractContent: provider response body → generated text (gjson)
//   - ExtractUsage:   provider response body → token usage (gjson)
//
// FLOW:
//  1. Gateway picks a provider from the fallback chain
//  2. Registry returns the adapter for the provider kind
//  3. Dispatcher sends BuildRequest() output to Endpoint()
//  4. Extract*() turn the raw response into a completion
//
// To add a new wire format: implement Adapter and register it in NewRegistry.
package adapters

import (
	"net/http"

	"github.com/compresr/action-gateway/internal/providers"
)

// CompletionRequest is the provider-agnostic completion input.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float64
}

// UsageInfo is the token usage reported by a provider.
type UsageInfo struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Adapter defines the wire format of one provider kind.
// Adapters are stateless and thread-safe.
type Adapter interface {
	// Name returns the adapter identifier (e.g., "openai", "anthropic")
	Name() string

	// Kind returns the provider kind served by this adapter
	Kind() providers.Kind

	// Endpoint returns the URL to call for p. A configured endpoint wins.
	Endpoint(p providers.ProviderConfig) string

	// SetAuth sets the credential headers. Bedrock signs at transport level.
	SetAuth(h http.Header, apiKey string)

	// BuildRequest renders the request body.
	BuildRequest(req CompletionRequest) ([]byte, error)

	// ExtractContent returns the generated text, or an error when the
	// response carries none.
	ExtractContent(responseBody []byte) (string, error)

	// ExtractUsage extracts token usage from the response body.
	ExtractUsage(responseBody []byte) UsageInfo
}

// BaseAdapter provides common functionality for all adapters.
type BaseAdapter struct {
	name string
	kind providers.Kind
}

// Name returns the adapter name.
func (a *BaseAdapter) Name() string {
	return a.name
}

// Kind returns the provider kind.
func (a *BaseAdapter) Kind() providers.Kind {
	return a.kind
}
