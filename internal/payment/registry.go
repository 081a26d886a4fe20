package payment

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the configured providers and which one new checkouts use.
type Registry struct {
	mu        sync.RWMutex
	providers map[ProviderName]Provider
	primary   ProviderName
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[ProviderName]Provider)}
}

// Register adds a provider. The first one registered becomes primary.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[p.Name()] = p
	if r.primary == "" {
		r.primary = p.Name()
	}
}

func (r *Registry) Get(name ProviderName) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("payment provider %s not registered", name)
	}
	return p, nil
}

func (r *Registry) Primary() (Provider, error) {
	r.mu.RLock()
	primary := r.primary
	r.mu.RUnlock()

	if primary == "" {
		return nil, fmt.Errorf("no primary payment provider configured")
	}
	return r.Get(primary)
}

func (r *Registry) SetPrimary(name ProviderName) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("payment provider %s not registered", name)
	}
	r.primary = name
	return nil
}

func (r *Registry) Names() []ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]ProviderName, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
