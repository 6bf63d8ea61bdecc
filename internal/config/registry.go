package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/parley/pkg/llm"
)

// ErrProviderNotRegistered is returned by [Registry.CreateTransport] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// TransportFactory builds an [llm.Transport] from the LLM config block.
type TransportFactory func(LLMConfig) (llm.Transport, error)

// Registry maps provider names to transport constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	transports map[string]TransportFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{transports: make(map[string]TransportFactory)}
}

// RegisterTransport registers a factory under name, replacing any previous
// registration for the same name.
func (r *Registry) RegisterTransport(name string, factory TransportFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[name] = factory
}

// CreateTransport builds the transport selected by cfg.Provider.
func (r *Registry) CreateTransport(cfg LLMConfig) (llm.Transport, error) {
	r.mu.RLock()
	factory, ok := r.transports[cfg.Provider]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, cfg.Provider)
	}

	t, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: create %q transport: %w", cfg.Provider, err)
	}
	return t, nil
}

// Providers returns the names of all registered transport factories.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transports))
	for name := range r.transports {
		names = append(names, name)
	}
	return names
}
