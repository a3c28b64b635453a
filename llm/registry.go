package llm

import (
	"sort"
	"strings"
	"sync"

	"github.com/genflow-ai/genflow/types"
)

// Registry is a thread-safe registry for managing multiple LLM providers.
// It supports registering, retrieving, and listing providers, as well as
// designating a default provider for convenience.
type Registry struct {
	providers       map[string]Provider
	defaultProvider string
	mu              sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry under the given name.
// Registering a name that already exists is an error; use Unregister first
// to replace a provider.
func (r *Registry) Register(name string, p Provider) error {
	if name == "" {
		return types.NewError(types.ErrValidation, "provider name cannot be empty")
	}
	if p == nil {
		return types.NewErrorf(types.ErrValidation, "provider %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return types.NewErrorf(types.ErrValidation, "provider %q already registered", name)
	}
	r.providers[name] = p
	if r.defaultProvider == "" {
		r.defaultProvider = name
	}
	return nil
}

// Get retrieves a provider by name. The error lists registered names so a
// typo in a node definition is easy to spot.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, types.NewErrorf(types.ErrPluginNotFound,
			"unknown provider %q (available: %s)", name, strings.Join(r.listLocked(), ", "))
	}
	return p, nil
}

// Default returns the default provider. The first registered provider
// becomes the default until SetDefault overrides it.
func (r *Registry) Default() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultProvider == "" {
		return nil, types.NewError(types.ErrPluginNotFound, "no default provider set")
	}
	p, ok := r.providers[r.defaultProvider]
	if !ok {
		return nil, types.NewErrorf(types.ErrPluginNotFound,
			"default provider %q not found in registry", r.defaultProvider)
	}
	return p, nil
}

// SetDefault designates an existing registered provider as the default.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return types.NewErrorf(types.ErrPluginNotFound, "provider %q not registered", name)
	}
	r.defaultProvider = name
	return nil
}

// List returns the sorted names of all registered providers.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes a provider from the registry.
// If the removed provider was the default, the default is cleared.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
	if r.defaultProvider == name {
		r.defaultProvider = ""
	}
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
