package adapters

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/compresr/action-gateway/internal/providers"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIAdapter handles the Chat Completions format.
// Groq, Together, Mistral and most hosted open-model APIs accept the same
// shape, so they are configured as kind "openai" with their own endpoint.
type OpenAIAdapter struct {
	BaseAdapter
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter() *OpenAIAdapter {
	return &OpenAIAdapter{
		BaseAdapter: BaseAdapter{
			name: "openai",
			kind: providers.KindOpenAI,
		},
	}
}

// Endpoint returns the configured endpoint or the OpenAI default.
func (a *OpenAIAdapter) Endpoint(p providers.ProviderConfig) string {
	if p.Endpoint != "" {
		return p.Endpoint
	}
	return openAIEndpoint
}

// SetAuth sets the bearer token.
func (a *OpenAIAdapter) SetAuth(h http.Header, apiKey string) {
	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
}

// BuildRequest renders {model, messages[], max_tokens, temperature}.
// o-series models reject temperature, so it is omitted for them.
func (a *OpenAIAdapter) BuildRequest(req CompletionRequest) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, "model", req.Model); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "messages", chatMessages(req)); err != nil {
		return nil, err
	}
	if req.MaxTokens > 0 {
		if body, err = sjson.SetBytes(body, "max_tokens", req.MaxTokens); err != nil {
			return nil, err
		}
	}
	if !isReasoningModel(req.Model) {
		if body, err = sjson.SetBytes(body, "temperature", req.Temperature); err != nil {
			return nil, err
		}
	}
	return body, nil
}

// ExtractContent reads choices[0].message.content.
func (a *OpenAIAdapter) ExtractContent(responseBody []byte) (string, error) {
	content := gjson.GetBytes(responseBody, "choices.0.message.content")
	if !content.Exists() || content.Type != gjson.String {
		return "", fmt.Errorf("openai response has no choices[0].message.content")
	}
	return content.String(), nil
}

// ExtractUsage extracts token usage from an OpenAI response.
// OpenAI format: {"usage": {"prompt_tokens": N, "completion_tokens": N, "total_tokens": N}}
func (a *OpenAIAdapter) ExtractUsage(responseBody []byte) UsageInfo {
	if len(responseBody) == 0 {
		return UsageInfo{}
	}
	usage := gjson.GetBytes(responseBody, "usage")
	u := UsageInfo{
		InputTokens:  int(usage.Get("prompt_tokens").Int()),
		OutputTokens: int(usage.Get("completion_tokens").Int()),
		TotalTokens:  int(usage.Get("total_tokens").Int()),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return u
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatMessages renders the system (if any) and user turns.
func chatMessages(req CompletionRequest) []chatMessage {
	msgs := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	return append(msgs, chatMessage{Role: "user", Content: req.Prompt})
}

func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4")
}

// Ensure OpenAIAdapter implements Adapter
var _ Adapter = (*OpenAIAdapter)(nil)
