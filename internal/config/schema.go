// Package config provides configuration loading and validation for the
// dispatch engine. It supports TOML configuration files with environment
// variable expansion, default values, and validation.
//
// Configuration structure:
//   - [session]: session mode and agent allow-list
//   - [logging]: logging level, format, and output
//   - [llm]: completion provider configuration
//   - [embedding]: embedding provider configuration
//   - [pool]: worker pool concurrency and circuit breaker settings
//   - [orchestrator]: debounce, rolling window, phase, second-pass settings
//   - [dedup]: similarity thresholds
//   - [tools]: tool registry and rate limiter settings
//   - [storage]: card persistence
//   - [metrics]: prometheus endpoint
//   - [agents]: agent roster file
//
// String values can reference environment variables using ${VAR} or
// ${VAR:default} syntax, for example: api_key = "${OPENAI_API_KEY}".
package config

// Config is the main application configuration.
type Config struct {
	Session      SessionConfig      `toml:"session"`
	Logging      LoggingConfig      `toml:"logging"`
	LLM          LLMConfig          `toml:"llm"`
	Embedding    EmbeddingConfig    `toml:"embedding"`
	Pool         PoolConfig         `toml:"pool"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Dedup        DedupConfig        `toml:"dedup"`
	Tools        ToolsConfig        `toml:"tools"`
	Storage      StorageConfig      `toml:"storage"`
	Metrics      MetricsConfig      `toml:"metrics"`
	Agents       AgentsConfig       `toml:"agents"`
}

// SessionConfig controls per-session dispatch behavior.
type SessionConfig struct {
	// Mode is one of fast, medium, slow, off.
	Mode string `toml:"mode"`
	// AllowedAgents restricts which agents run this session. Empty allows all.
	AllowedAgents []string `toml:"allowed_agents"`
}

// LoggingConfig mirrors the logger package configuration.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	// Provider is "openai" or "mock".
	Provider string       `toml:"provider"`
	OpenAI   OpenAIConfig `toml:"openai"`
}

// OpenAIConfig configures an OpenAI-compatible chat completion endpoint.
type OpenAIConfig struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "openai" or "mock".
	Provider string                `toml:"provider"`
	OpenAI   OpenAIEmbeddingConfig `toml:"openai"`
}

// OpenAIEmbeddingConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIEmbeddingConfig struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PoolConfig configures the worker pool.
type PoolConfig struct {
	Concurrency      int `toml:"concurrency"`
	BacklogThreshold int `toml:"backlog_threshold"`
	CircuitThreshold int `toml:"circuit_threshold"`
}

// OrchestratorConfig configures debounce, window, phase, and second-pass
// scheduling.
type OrchestratorConfig struct {
	WindowSize                   int `toml:"window_size"`
	PhaseEarlyUntilMinutes       int `toml:"phase_early_until_minutes"`
	PhaseMidUntilMinutes         int `toml:"phase_mid_until_minutes"`
	SecondPassCheckSeconds       int `toml:"second_pass_check_seconds"`
	SecondPassMinIntervalSeconds int `toml:"second_pass_min_interval_seconds"`
	SecondPassMinNewItems        int `toml:"second_pass_min_new_items"`
}

// DedupConfig configures the deduplication gate.
type DedupConfig struct {
	// Threshold is the strict similarity above which outputs are dropped.
	Threshold float64 `toml:"threshold"`
	// MinScore is the permissive similarity for advisory lookups.
	MinScore float64 `toml:"min_score"`
	// TopK bounds advisory lookup results.
	TopK int `toml:"top_k"`
}

// ToolsConfig configures the tool registry and its rate limiter.
type ToolsConfig struct {
	// Enabled lists the built-in tools to register. Empty registers all.
	Enabled []string `toml:"enabled"`
	// MaxPlannedCalls caps tool calls per pipeline invocation.
	MaxPlannedCalls int             `toml:"max_planned_calls"`
	RateLimit       RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig configures the per-tool token bucket.
type RateLimitConfig struct {
	Capacity      int `toml:"capacity"`
	RefillSeconds int `toml:"refill_seconds"`
	RefillAmount  int `toml:"refill_amount"`
}

// StorageConfig configures card persistence.
type StorageConfig struct {
	// Path is the workspace directory for the JSONL card log. Empty disables
	// persistence.
	Path string `toml:"path"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// AgentsConfig points at the agent roster file.
type AgentsConfig struct {
	// RosterPath is a YAML file defining extra agents and overrides.
	// Empty uses only the built-in roster.
	RosterPath string `toml:"roster_path"`
}
