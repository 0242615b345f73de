// Registry manages adapter registration and lookup.
//
// DESIGN: Thread-safe map of provider name → Adapter.
// Built-in adapters (OpenAI, OpenRouter, Local) are registered at startup.
package adapters

import (
	"sync"

	"github.com/cosense-ai/cosense-gateway/internal/settings"
)

// Registry manages adapter registration.
type Registry struct {
	adapters map[settings.Provider]Adapter
	mu       sync.RWMutex
}

// NewRegistry creates a new adapter registry with all built-in adapters.
func NewRegistry(openRouterReferer, openRouterTitle string) *Registry {
	r := &Registry{
		adapters: make(map[settings.Provider]Adapter),
	}

	// Register built-in adapters
	r.Register(NewOpenAIAdapter())
	r.Register(NewOpenRouterAdapter(openRouterReferer, openRouterTitle))
	r.Register(NewLocalAdapter())

	return r
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Provider()] = adapter
}

// Get returns the adapter for a provider, or nil.
func (r *Registry) Get(provider settings.Provider) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[provider]
}
