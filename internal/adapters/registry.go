// Registry manages adapter registration and lookup.
//
// DESIGN: Thread-safe map of provider kind → Adapter.
// Built-in adapters are registered at startup.
package adapters

import (
	"sync"

	"github.com/compresr/action-gateway/internal/providers"
)

// Registry manages adapter registration.
type Registry struct {
	adapters map[providers.Kind]Adapter
	mu       sync.RWMutex
}

// NewRegistry creates a new adapter registry with all built-in adapters.
func NewRegistry() *Registry {
	r := &Registry{
		adapters: make(map[providers.Kind]Adapter),
	}

	r.Register(NewOpenAIAdapter())
	r.Register(NewAnthropicAdapter())
	r.Register(NewGeminiAdapter())
	r.Register(NewOllamaAdapter())
	r.Register(NewBedrockAdapter())

	return r
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Kind()] = adapter
}

// Get returns the adapter for a provider kind, or nil.
func (r *Registry) Get(kind providers.Kind) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[kind]
}
