// Services, routing and retry configuration.
//
// DESIGN: Services are the downstreams of declared actions; providers are the
// completion backends picked by the router. Retry applies to both.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/compresr/action-gateway/internal/providers"
	"github.com/compresr/action-gateway/internal/retry"
	"github.com/compresr/action-gateway/internal/schema"
)

// ServiceConfig describes one downstream action service.
type ServiceConfig struct {
	BaseURL           string            `yaml:"base_url"`
	Headers           map[string]string `yaml:"headers"`             // static headers, values may use ${VAR}
	RequestsPerSecond float64           `yaml:"requests_per_second"` // outbound limit, 0 = off
}

// URL joins the service base URL with an action endpoint. Absolute
// endpoints are returned unchanged.
func (s ServiceConfig) URL(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if endpoint == "" {
		return s.BaseURL
	}
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// RoutingConfig contains provider routing settings.
type RoutingConfig struct {
	DefaultProvider string `yaml:"default_provider"`
	ChainLength     int    `yaml:"chain_length"` // 0 = providers.DefaultChainLength
}

// RetryConfig contains the per-hop retry policy.
type RetryConfig struct {
	MaxRetries *int          `yaml:"max_retries"` // nil = 2
	BaseDelay  time.Duration `yaml:"base_delay"`  // 0 = 200ms
	MaxDelay   time.Duration `yaml:"max_delay"`   // 0 = 5s
}

// Policy returns the retry policy with defaults applied.
func (r RetryConfig) Policy() retry.Policy {
	p := retry.DefaultPolicy()
	if r.MaxRetries != nil {
		p.MaxRetries = *r.MaxRetries
	}
	if r.BaseDelay > 0 {
		p.BaseDelay = r.BaseDelay
	}
	if r.MaxDelay > 0 {
		p.MaxDelay = r.MaxDelay
	}
	return p
}

// Validate checks retry settings.
func (r RetryConfig) Validate() error {
	if r.MaxRetries != nil && *r.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if r.BaseDelay < 0 || r.MaxDelay < 0 {
		return fmt.Errorf("retry delays must be >= 0")
	}
	p := r.Policy()
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("retry.max_delay (%s) must be >= retry.base_delay (%s)", p.MaxDelay, p.BaseDelay)
	}
	return nil
}

func (c *Config) validateServices() error {
	for id, s := range c.Services {
		if id == schema.ProviderServiceID {
			return fmt.Errorf("service id %q is reserved", id)
		}
		if s.BaseURL == "" {
			return fmt.Errorf("services.%s.base_url is required", id)
		}
		u, err := url.Parse(s.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("services.%s.base_url is not an absolute URL: %q", id, s.BaseURL)
		}
		if s.RequestsPerSecond < 0 {
			return fmt.Errorf("services.%s.requests_per_second must be >= 0", id)
		}
	}
	return nil
}

func (c *Config) validateProviders() error {
	if len(c.Providers) == 0 {
		return nil
	}
	if c.Routing.ChainLength < 0 {
		return fmt.Errorf("routing.chain_length must be >= 1")
	}
	if c.Routing.DefaultProvider == "" {
		return fmt.Errorf("routing.default_provider is required when providers are configured")
	}
	// NewCatalog checks ids, duplicates and the default reference.
	if _, err := c.Catalog(); err != nil {
		return err
	}
	return nil
}

// Catalog builds the provider catalog.
func (c *Config) Catalog() (*providers.Catalog, error) {
	return providers.NewCatalog(c.Providers, c.Routing.DefaultProvider)
}
