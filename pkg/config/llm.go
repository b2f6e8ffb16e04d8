package config

import (
	"fmt"
	"sync"
)

// LLMProviderConfig describes how to reach a concrete LLM vendor. The vendor
// itself is explicitly out of scope for the core (see spec §1 Non-goals) —
// this struct is the seam: swapping providers means adding an entry here,
// never touching pkg/toolloop or pkg/saga.
type LLMProviderConfig struct {
	Name        string  `yaml:"name"`
	Model       string  `yaml:"model"`
	EmbedModel  string  `yaml:"embed_model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	Temperature float32 `yaml:"temperature"`
}

// LLMProviderRegistry stores LLM provider configurations with thread-safe access.
type LLMProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]*LLMProviderConfig
	defaultID string
}

// NewLLMProviderRegistry creates a registry from loaded provider configs.
func NewLLMProviderRegistry(providers map[string]*LLMProviderConfig, defaultID string) *LLMProviderRegistry {
	return &LLMProviderRegistry{providers: providers, defaultID: defaultID}
}

// Get retrieves a provider by name, falling back to the registry default when name is empty.
func (r *LLMProviderRegistry) Get(name string) (*LLMProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultID
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLLMProviderNotFound, name)
	}
	return p, nil
}

// GetAll returns a copy of all configured providers.
func (r *LLMProviderRegistry) GetAll() map[string]*LLMProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*LLMProviderConfig, len(r.providers))
	for k, v := range r.providers {
		out[k] = v
	}
	return out
}
