package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// coreYAMLConfig represents the complete core.yaml file structure: the single
// static configuration file consumed by Initialize.
type coreYAMLConfig struct {
	Defaults *Defaults                     `yaml:"defaults"`
	Chunker  *ChunkerConfig                `yaml:"chunker"`
	ToolLoop *ToolLoopConfig               `yaml:"tool_loop"`
	Registry *RegistryConfig               `yaml:"registry"`
	Saga     *SagaConfig                   `yaml:"saga"`
	LLM      map[string]*LLMProviderConfig `yaml:"llm_providers"`
}

// Initialize loads, merges, and validates configuration from configDir/core.yaml.
//
// Steps performed:
//  1. Read core.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user-provided values over built-in defaults
//  5. Build the LLM provider registry
//  6. Validate required fields
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	raw, err := loadYAML(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	chunker := DefaultChunkerConfig()
	if raw.Chunker != nil {
		if err := mergo.Merge(&chunker, raw.Chunker, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge chunker config: %w", err)
		}
	}

	toolLoop := DefaultToolLoopConfig()
	if raw.ToolLoop != nil {
		if err := mergo.Merge(&toolLoop, raw.ToolLoop, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge tool_loop config: %w", err)
		}
	}

	registry := DefaultRegistryConfig()
	if raw.Registry != nil {
		if err := mergo.Merge(&registry, raw.Registry, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge registry config: %w", err)
		}
	}

	saga := DefaultSagaConfig()
	if raw.Saga != nil {
		if err := mergo.Merge(&saga, raw.Saga, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge saga config: %w", err)
		}
	}

	defaults := Defaults{}
	if raw.Defaults != nil {
		defaults = *raw.Defaults
	}

	llmRegistry := NewLLMProviderRegistry(raw.LLM, defaults.LLMProvider)

	cfg := &Config{
		Defaults:            defaults,
		Chunker:             chunker,
		ToolLoop:            toolLoop,
		Registry:            registry,
		Saga:                saga,
		LLMProviderRegistry: llmRegistry,
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized",
		"llm_providers", len(llmRegistry.GetAll()),
		"max_iterations", toolLoop.MaxIterations,
		"max_chunk_size", chunker.MaxChunkSize)

	return cfg, nil
}

func loadYAML(configDir string) (*coreYAMLConfig, error) {
	path := filepath.Join(configDir, "core.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var cfg coreYAMLConfig
	cfg.LLM = make(map[string]*LLMProviderConfig)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &cfg, nil
}

// validate performs basic field-presence checks on loaded configuration.
func validate(cfg *Config) error {
	if len(cfg.LLMProviderRegistry.GetAll()) == 0 {
		return fmt.Errorf("%w: llm_providers", ErrMissingRequiredField)
	}
	for id, p := range cfg.LLMProviderRegistry.GetAll() {
		if p.Model == "" {
			return fmt.Errorf("%w: llm_providers.%s.model", ErrMissingRequiredField, id)
		}
	}
	return nil
}

// Stats summarizes loaded configuration for startup logging.
type Stats struct {
	LLMProviders int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() Stats {
	return Stats{LLMProviders: len(c.LLMProviderRegistry.GetAll())}
}

// GetLLMProvider retrieves an LLM provider configuration by name.
func (c *Config) GetLLMProvider(name string) (*LLMProviderConfig, error) {
	return c.LLMProviderRegistry.Get(name)
}
