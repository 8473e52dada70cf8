package providers

import (
	"fmt"
	"sort"
)

// DefaultChainLength is the primary plus the default provider.
const DefaultChainLength = 2

// Router maps requirement tags to providers. It is a pure function of the
// catalog and safe for concurrent use.
type Router struct {
	catalog     *Catalog
	chainLength int
}

// NewRouter creates a router. chainLength 0 means DefaultChainLength.
func NewRouter(catalog *Catalog, chainLength int) (*Router, error) {
	if chainLength == 0 {
		chainLength = DefaultChainLength
	}
	if chainLength < 1 {
		return nil, fmt.Errorf("chain length must be >= 1, got %d", chainLength)
	}
	return &Router{catalog: catalog, chainLength: chainLength}, nil
}

// Catalog returns the underlying catalog.
func (r *Router) Catalog() *Catalog { return r.catalog }

// ChainLength returns the configured maximum chain length.
func (r *Router) ChainLength() int { return r.chainLength }

// Select returns the preferred provider id for tag.
// Ties go to the provider declared first.
func (r *Router) Select(tag RequirementTag) string {
	all := r.catalog.providers
	best := 0
	switch tag {
	case TagRealtime:
		for i, p := range all {
			if p.AvgLatencyMs < all[best].AvgLatencyMs {
				best = i
			}
		}
	case TagComplex:
		for i, p := range all {
			if p.ReasoningScore > all[best].ReasoningScore {
				best = i
			}
		}
	case TagCheap:
		for i, p := range all {
			if p.CostPer1kTokens < all[best].CostPer1kTokens {
				best = i
			}
		}
	case TagReliable:
		for i, p := range all {
			if p.ReliabilityScore > all[best].ReliabilityScore {
				best = i
			}
		}
	case TagDefault:
		return r.catalog.defaultID
	default:
		return r.catalog.defaultID
	}
	return all[best].ID
}

// BuildFallbackChain returns the ordered providers to try for tag.
//
// The chain starts with Select(tag), then the default provider unless it is
// already first. Chains longer than two are padded with the remaining
// providers by reliability, highest first.
func (r *Router) BuildFallbackChain(tag RequirementTag) []ProviderConfig {
	chain := make([]ProviderConfig, 0, r.chainLength)
	seen := make(map[string]bool, r.chainLength)
	add := func(p ProviderConfig) {
		if len(chain) >= r.chainLength || seen[p.ID] {
			return
		}
		seen[p.ID] = true
		chain = append(chain, p)
	}

	primary, _ := r.catalog.Get(r.Select(tag))
	add(primary)
	add(r.catalog.Default())

	if len(chain) < r.chainLength {
		rest := r.catalog.All()
		sort.SliceStable(rest, func(i, j int) bool {
			return rest[i].ReliabilityScore > rest[j].ReliabilityScore
		})
		for _, p := range rest {
			add(p)
		}
	}
	return chain
}
