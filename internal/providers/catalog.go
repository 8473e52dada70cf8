package providers

import "fmt"

// Catalog is the fixed provider table.
type Catalog struct {
	providers []ProviderConfig
	index     map[string]int
	defaultID string
}

// NewCatalog builds a catalog. defaultID must name one of the entries.
func NewCatalog(entries []ProviderConfig, defaultID string) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("provider catalog is empty")
	}
	c := &Catalog{
		providers: make([]ProviderConfig, 0, len(entries)),
		index:     make(map[string]int, len(entries)),
		defaultID: defaultID,
	}
	for _, p := range entries {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.index[p.ID]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID)
		}
		c.index[p.ID] = len(c.providers)
		c.providers = append(c.providers, p)
	}
	if _, ok := c.index[defaultID]; !ok {
		return nil, fmt.Errorf("default provider %q is not in the catalog", defaultID)
	}
	return c, nil
}

// Get returns the provider with the given id.
func (c *Catalog) Get(id string) (ProviderConfig, bool) {
	i, ok := c.index[id]
	if !ok {
		return ProviderConfig{}, false
	}
	return c.providers[i], true
}

// Default returns the designated balanced provider.
func (c *Catalog) Default() ProviderConfig {
	return c.providers[c.index[c.defaultID]]
}

// All returns the providers in declaration order.
func (c *Catalog) All() []ProviderConfig {
	return append([]ProviderConfig(nil), c.providers...)
}

// Len returns the number of providers.
func (c *Catalog) Len() int { return len(c.providers) }
