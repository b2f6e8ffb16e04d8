package config

import "time"

// ChunkerConfig parameters for the semantic chunker (spec §4.6).
type ChunkerConfig struct {
	MaxChunkSize        int     `yaml:"max_chunk_size"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// DefaultChunkerConfig returns the spec-mandated defaults.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{MaxChunkSize: 1000, SimilarityThreshold: 0.5}
}

// ToolLoopConfig bounds the agentic tool-calling loop (spec §4.2).
type ToolLoopConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
	LoopTimeout   time.Duration `yaml:"loop_timeout"`
}

// DefaultToolLoopConfig returns the spec-mandated defaults.
func DefaultToolLoopConfig() ToolLoopConfig {
	return ToolLoopConfig{
		MaxIterations: 8,
		CallTimeout:   30 * time.Second,
		LoopTimeout:   5 * time.Minute,
	}
}

// RegistryConfig controls the tool registry's heartbeat and sweeper behavior
// (spec §4.1).
type RegistryConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
}

// DefaultRegistryConfig returns the spec-mandated defaults.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		HeartbeatInterval: 30 * time.Second,
		StaleAfter:        time.Hour,
		SweepInterval:     30 * time.Second,
	}
}

// SagaConfig controls deadlines and retry budgets for the saga orchestrator
// (spec §5, §8.3 Self-correction).
type SagaConfig struct {
	SagaDeadline       time.Duration `yaml:"saga_deadline"`
	StageDeadline      time.Duration `yaml:"stage_deadline"`
	SelfCorrectRetries int           `yaml:"self_correct_retries"`
	RecordTTL          time.Duration `yaml:"record_ttl"`
	MaxResultRows       int          `yaml:"max_result_rows"`
	MaxSummaryChars     int          `yaml:"max_summary_chars"`
}

// DefaultSagaConfig returns the spec-mandated defaults. The self-correction
// retry budget is fixed at 1 per spec.md §9's Open Questions resolution.
func DefaultSagaConfig() SagaConfig {
	return SagaConfig{
		SagaDeadline:       5 * time.Minute,
		StageDeadline:      180 * time.Second,
		SelfCorrectRetries: 1,
		RecordTTL:          time.Hour,
		MaxResultRows:      50,
		MaxSummaryChars:    2000,
	}
}

// Defaults holds system-wide defaults applied when a more specific
// configuration value is absent.
type Defaults struct {
	LLMProvider string `yaml:"llm_provider"`
}

// Config is the umbrella configuration object threaded through the core.
type Config struct {
	Defaults            Defaults
	Chunker             ChunkerConfig
	ToolLoop            ToolLoopConfig
	Registry            RegistryConfig
	Saga                SagaConfig
	LLMProviderRegistry *LLMProviderRegistry
}
