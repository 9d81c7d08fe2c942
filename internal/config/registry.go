package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/speakerfmt/internal/resilience"
	"github.com/MrWong99/speakerfmt/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by [Registry.CreateLLM] when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// ErrNoProvider is returned by [Registry.BuildLLM] when no primary provider
// is configured.
var ErrNoProvider = errors.New("config: no llm provider configured")

// LLMFactory constructs a provider from its configuration entry.
type LLMFactory func(ProviderEntry) (llm.Provider, error)

// Registry maps provider names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]LLMFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{llm: make(map[string]LLMFactory)}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.llm))
	for name := range r.llm {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// BuildLLM creates the primary provider of cfg. When fallbacks are
// configured the result is a [resilience.LLMFallback] trying the primary
// first and each fallback in order, every backend behind its own circuit
// breaker.
func (r *Registry) BuildLLM(cfg LLMConfig) (llm.Provider, error) {
	if cfg.Provider.Name == "" {
		return nil, ErrNoProvider
	}
	primary, err := r.CreateLLM(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("config: create llm provider: %w", err)
	}
	if len(cfg.Fallbacks) == 0 {
		return primary, nil
	}

	group := resilience.NewLLMFallback(primary, cfg.Provider.Name, resilience.FallbackConfig{
		CircuitBreaker: cfg.CircuitBreaker,
	})
	for i, entry := range cfg.Fallbacks {
		p, err := r.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("config: create llm fallback %d: %w", i, err)
		}
		group.AddFallback(entry.Name, p)
	}
	return group, nil
}
