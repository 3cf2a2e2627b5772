package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() []error {
	var errs []error

	switch c.Session.Mode {
	case "fast", "medium", "slow", "off":
	default:
		errs = append(errs, fmt.Errorf("invalid session.mode: %s (expected: fast, medium, slow, off)", c.Session.Mode))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
	}

	switch c.LLM.Provider {
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm.openai.api_key is required when provider is 'openai'"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("invalid llm.provider: %s (expected: openai, mock)", c.LLM.Provider))
	}

	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.OpenAI.APIKey == "" {
			errs = append(errs, fmt.Errorf("embedding.openai.api_key is required when provider is 'openai'"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("invalid embedding.provider: %s (expected: openai, mock)", c.Embedding.Provider))
	}

	if c.Pool.Concurrency < 1 || c.Pool.Concurrency > 20 {
		errs = append(errs, fmt.Errorf("pool.concurrency must be in [1,20], got %d", c.Pool.Concurrency))
	}
	if c.Pool.CircuitThreshold < 1 {
		errs = append(errs, fmt.Errorf("pool.circuit_threshold must be positive, got %d", c.Pool.CircuitThreshold))
	}

	if c.Orchestrator.PhaseMidUntilMinutes <= c.Orchestrator.PhaseEarlyUntilMinutes {
		errs = append(errs, fmt.Errorf("orchestrator.phase_mid_until_minutes (%d) must exceed phase_early_until_minutes (%d)",
			c.Orchestrator.PhaseMidUntilMinutes, c.Orchestrator.PhaseEarlyUntilMinutes))
	}

	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		errs = append(errs, fmt.Errorf("dedup.threshold must be in (0,1], got %v", c.Dedup.Threshold))
	}
	if c.Dedup.MinScore < 0 || c.Dedup.MinScore > 1 {
		errs = append(errs, fmt.Errorf("dedup.min_score must be in [0,1], got %v", c.Dedup.MinScore))
	}
	if c.Dedup.MinScore >= c.Dedup.Threshold {
		errs = append(errs, fmt.Errorf("dedup.min_score (%v) must be below dedup.threshold (%v)", c.Dedup.MinScore, c.Dedup.Threshold))
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, fmt.Errorf("metrics.listen is required when metrics are enabled"))
	}

	return errs
}
