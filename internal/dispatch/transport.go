package dispatch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

const bedrockService = "bedrock"

// SigningTransport is an http.RoundTripper that signs requests with AWS SigV4
// for the bedrock-runtime service.
type SigningTransport struct {
	credentials aws.CredentialsProvider
	region      string
	signer      *v4.Signer
	base        http.RoundTripper
	now         func() time.Time
}

// NewBedrockClient returns an HTTP client that signs every request.
// Credentials come from the standard AWS chain (env, shared files, IAM role).
func NewBedrockClient(ctx context.Context, region string) (*http.Client, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return nil, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}
	return &http.Client{Transport: NewSigningTransport(cfg.Credentials, region, nil)}, nil
}

// NewSigningTransport wraps base (nil uses http.DefaultTransport).
func NewSigningTransport(creds aws.CredentialsProvider, region string, base http.RoundTripper) *SigningTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &SigningTransport{
		credentials: creds,
		region:      region,
		signer:      v4.NewSigner(),
		base:        base,
		now:         time.Now,
	}
}

// RoundTrip implements http.RoundTripper. It signs the request before sending.
func (t *SigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body for signing: %w", err)
		}
		_ = req.Body.Close()
	}

	creds, err := t.credentials.Retrieve(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	// RoundTrippers must not modify the caller's request.
	signed := req.Clone(req.Context())
	payloadHash := fmt.Sprintf("%x", sha256.Sum256(body))
	if err := t.signer.SignHTTP(req.Context(), creds, signed, payloadHash, bedrockService, t.region, t.now()); err != nil {
		return nil, fmt.Errorf("failed to sign Bedrock request: %w", err)
	}
	signed.Body = io.NopCloser(bytes.NewReader(body))
	signed.ContentLength = int64(len(body))

	return t.base.RoundTrip(signed)
}
