package adapters

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/compresr/action-gateway/internal/providers"
)

const geminiEndpointPattern = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

// GeminiAdapter handles the Gemini generateContent format.
// The model lives in the URL, not the body.
type GeminiAdapter struct {
	BaseAdapter
}

// NewGeminiAdapter creates a new Gemini adapter.
func NewGeminiAdapter() *GeminiAdapter {
	return &GeminiAdapter{
		BaseAdapter: BaseAdapter{
			name: "gemini",
			kind: providers.KindGemini,
		},
	}
}

// Endpoint returns the configured endpoint or the model URL.
func (a *GeminiAdapter) Endpoint(p providers.ProviderConfig) string {
	if p.Endpoint != "" {
		return p.Endpoint
	}
	return fmt.Sprintf(geminiEndpointPattern, strings.TrimPrefix(p.Model, "models/"))
}

// SetAuth sets x-goog-api-key.
func (a *GeminiAdapter) SetAuth(h http.Header, apiKey string) {
	if apiKey != "" {
		h.Set("x-goog-api-key", apiKey)
	}
}

// BuildRequest renders {systemInstruction, contents[], generationConfig}.
func (a *GeminiAdapter) BuildRequest(req CompletionRequest) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	if req.SystemPrompt != "" {
		if body, err = sjson.SetBytes(body, "systemInstruction.parts", []map[string]string{{"text": req.SystemPrompt}}); err != nil {
			return nil, err
		}
	}
	contents := []map[string]any{{
		"role":  "user",
		"parts": []map[string]string{{"text": req.Prompt}},
	}}
	if body, err = sjson.SetBytes(body, "contents", contents); err != nil {
		return nil, err
	}
	if req.MaxTokens > 0 {
		if body, err = sjson.SetBytes(body, "generationConfig.maxOutputTokens", req.MaxTokens); err != nil {
			return nil, err
		}
	}
	return sjson.SetBytes(body, "generationConfig.temperature", req.Temperature)
}

// ExtractContent joins candidates[0].content.parts[].text.
func (a *GeminiAdapter) ExtractContent(responseBody []byte) (string, error) {
	parts := gjson.GetBytes(responseBody, "candidates.0.content.parts.#.text")
	if !parts.Exists() || len(parts.Array()) == 0 {
		return "", fmt.Errorf("gemini response has no candidate text")
	}
	var sb strings.Builder
	for _, p := range parts.Array() {
		sb.WriteString(p.String())
	}
	return sb.String(), nil
}

// ExtractUsage extracts token usage from Gemini API response.
// Gemini format: {"usageMetadata": {"promptTokenCount": N, "candidatesTokenCount": N, "totalTokenCount": N}}
func (a *GeminiAdapter) ExtractUsage(responseBody []byte) UsageInfo {
	if len(responseBody) == 0 {
		return UsageInfo{}
	}
	meta := gjson.GetBytes(responseBody, "usageMetadata")
	return UsageInfo{
		InputTokens:  int(meta.Get("promptTokenCount").Int()),
		OutputTokens: int(meta.Get("candidatesTokenCount").Int()),
		TotalTokens:  int(meta.Get("totalTokenCount").Int()),
	}
}

// Ensure GeminiAdapter implements Adapter
var _ Adapter = (*GeminiAdapter)(nil)
