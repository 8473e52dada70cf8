package adapters

import (
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/compresr/action-gateway/internal/providers"
)

const ollamaEndpoint = "http://localhost:11434/v1/chat/completions"

// OllamaAdapter handles Ollama's OpenAI-compatible endpoint.
// Requests are identical to OpenAI, so this adapter embeds OpenAIAdapter.
// The only difference is the response usage: native Ollama reports
// prompt_eval_count/eval_count instead of prompt_tokens/completion_tokens.
type OllamaAdapter struct {
	BaseAdapter
	*OpenAIAdapter
}

// NewOllamaAdapter creates a new Ollama adapter.
func NewOllamaAdapter() *OllamaAdapter {
	return &OllamaAdapter{
		BaseAdapter: BaseAdapter{
			name: "ollama",
			kind: providers.KindOllama,
		},
		OpenAIAdapter: NewOpenAIAdapter(),
	}
}

// Name returns the adapter name (overrides embedded OpenAIAdapter.Name).
func (a *OllamaAdapter) Name() string {
	return a.BaseAdapter.Name()
}

// Kind returns the provider kind (overrides embedded OpenAIAdapter.Kind).
func (a *OllamaAdapter) Kind() providers.Kind {
	return a.BaseAdapter.Kind()
}

// Endpoint returns the configured endpoint or the local daemon.
func (a *OllamaAdapter) Endpoint(p providers.ProviderConfig) string {
	if p.Endpoint != "" {
		return p.Endpoint
	}
	return ollamaEndpoint
}

// SetAuth is a no-op for local daemons; a key is sent only when present.
func (a *OllamaAdapter) SetAuth(h http.Header, apiKey string) {
	a.OpenAIAdapter.SetAuth(h, apiKey)
}

// ExtractContent accepts both the OpenAI shape and native /api/chat.
func (a *OllamaAdapter) ExtractContent(responseBody []byte) (string, error) {
	if native := gjson.GetBytes(responseBody, "message.content"); native.Exists() {
		return native.String(), nil
	}
	return a.OpenAIAdapter.ExtractContent(responseBody)
}

// ExtractUsage extracts token usage from Ollama API response.
// Ollama format: {"prompt_eval_count": N, "eval_count": N}
// Falls back to OpenAI format (the /v1 endpoint returns it).
func (a *OllamaAdapter) ExtractUsage(responseBody []byte) UsageInfo {
	if len(responseBody) == 0 {
		return UsageInfo{}
	}

	in := int(gjson.GetBytes(responseBody, "prompt_eval_count").Int())
	out := int(gjson.GetBytes(responseBody, "eval_count").Int())
	if in > 0 || out > 0 {
		return UsageInfo{
			InputTokens:  in,
			OutputTokens: out,
			TotalTokens:  in + out,
		}
	}

	return a.OpenAIAdapter.ExtractUsage(responseBody)
}

// Ensure OllamaAdapter implements Adapter
var _ Adapter = (*OllamaAdapter)(nil)
