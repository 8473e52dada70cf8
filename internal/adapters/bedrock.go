package adapters

import (
	"fmt"
	"net/http"

	"github.com/compresr/action-gateway/internal/providers"
)

const (
	bedrockHostPattern = "https://bedrock-runtime.%s.amazonaws.com/model/%s/invoke"
	bedrockVersion     = "bedrock-2023-05-31"
	defaultAWSRegion   = "us-east-1"
)

// BedrockAdapter handles AWS Bedrock with Anthropic models.
// Bedrock uses the Anthropic Messages format, so request and response
// handling is delegated. The key differences from direct Anthropic are:
//   - Authentication: AWS SigV4 instead of x-api-key (signed by the transport)
//   - URL pattern: /model/{modelId}/invoke instead of /v1/messages
//   - Body: anthropic_version instead of model
type BedrockAdapter struct {
	BaseAdapter
	anthropic *AnthropicAdapter
}

// NewBedrockAdapter creates a new Bedrock adapter.
func NewBedrockAdapter() *BedrockAdapter {
	return &BedrockAdapter{
		BaseAdapter: BaseAdapter{
			name: "bedrock",
			kind: providers.KindBedrock,
		},
		anthropic: NewAnthropicAdapter(),
	}
}

// Endpoint returns the configured endpoint or the regional invoke URL.
func (a *BedrockAdapter) Endpoint(p providers.ProviderConfig) string {
	if p.Endpoint != "" {
		return p.Endpoint
	}
	region := p.Region
	if region == "" {
		region = defaultAWSRegion
	}
	return fmt.Sprintf(bedrockHostPattern, region, p.Model)
}

// SetAuth is a no-op: requests are signed with SigV4 by the HTTP transport.
func (a *BedrockAdapter) SetAuth(http.Header, string) {}

// BuildRequest renders the Messages body with anthropic_version.
func (a *BedrockAdapter) BuildRequest(req CompletionRequest) ([]byte, error) {
	return buildMessagesRequest(req, "anthropic_version", bedrockVersion)
}

// ExtractContent delegates to the Anthropic format.
func (a *BedrockAdapter) ExtractContent(responseBody []byte) (string, error) {
	return a.anthropic.ExtractContent(responseBody)
}

// ExtractUsage delegates to the Anthropic format.
func (a *BedrockAdapter) ExtractUsage(responseBody []byte) UsageInfo {
	return a.anthropic.ExtractUsage(responseBody)
}

// Ensure BedrockAdapter implements Adapter
var _ Adapter = (*BedrockAdapter)(nil)
