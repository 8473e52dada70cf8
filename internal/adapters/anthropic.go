package adapters

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/compresr/action-gateway/internal/providers"
)

const (
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"

	// anthropicVersion is the Anthropic API version header value.
	anthropicVersion = "2023-06-01"

	// defaultAnthropicMaxTokens is used when the provider sets none; the
	// Messages API rejects requests without max_tokens.
	defaultAnthropicMaxTokens = 1024
)

// AnthropicAdapter handles the Anthropic Messages format.
type AnthropicAdapter struct {
	BaseAdapter
}

// NewAnthropicAdapter creates a new Anthropic adapter.
func NewAnthropicAdapter() *AnthropicAdapter {
	return &AnthropicAdapter{
		BaseAdapter: BaseAdapter{
			name: "anthropic",
			kind: providers.KindAnthropic,
		},
	}
}

// Endpoint returns the configured endpoint or the Anthropic default.
func (a *AnthropicAdapter) Endpoint(p providers.ProviderConfig) string {
	if p.Endpoint != "" {
		return p.Endpoint
	}
	return anthropicEndpoint
}

// SetAuth sets x-api-key and the API version header.
func (a *AnthropicAdapter) SetAuth(h http.Header, apiKey string) {
	if apiKey != "" {
		h.Set("x-api-key", apiKey)
	}
	h.Set("anthropic-version", anthropicVersion)
}

// BuildRequest renders {model, max_tokens, system, messages[], temperature}.
func (a *AnthropicAdapter) BuildRequest(req CompletionRequest) ([]byte, error) {
	return buildMessagesRequest(req, "model", req.Model)
}

// buildMessagesRequest is shared with Bedrock, which replaces the model field
// with anthropic_version because the model lives in the URL.
func buildMessagesRequest(req CompletionRequest, headKey, headValue string) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, headKey, headValue); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "max_tokens", maxTokens); err != nil {
		return nil, err
	}
	if req.SystemPrompt != "" {
		if body, err = sjson.SetBytes(body, "system", req.SystemPrompt); err != nil {
			return nil, err
		}
	}
	if body, err = sjson.SetBytes(body, "messages", []chatMessage{{Role: "user", Content: req.Prompt}}); err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "temperature", req.Temperature)
}

// ExtractContent joins the text blocks of content[].
func (a *AnthropicAdapter) ExtractContent(responseBody []byte) (string, error) {
	blocks := gjson.GetBytes(responseBody, "content")
	if !blocks.IsArray() {
		return "", fmt.Errorf("anthropic response has no content blocks")
	}
	var sb strings.Builder
	found := false
	blocks.ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			sb.WriteString(block.Get("text").String())
			found = true
		}
		return true
	})
	if !found {
		return "", fmt.Errorf("anthropic response has no text block")
	}
	return sb.String(), nil
}

// ExtractUsage extracts token usage from Anthropic API response.
// Anthropic format: {"usage": {"input_tokens": N, "output_tokens": N}}
func (a *AnthropicAdapter) ExtractUsage(responseBody []byte) UsageInfo {
	if len(responseBody) == 0 {
		return UsageInfo{}
	}
	usage := gjson.GetBytes(responseBody, "usage")
	in := int(usage.Get("input_tokens").Int())
	out := int(usage.Get("output_tokens").Int())
	return UsageInfo{
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  in + out,
	}
}

// Ensure AnthropicAdapter implements Adapter
var _ Adapter = (*AnthropicAdapter)(nil)
