package config

// applyDefaults fills unset fields with working defaults. A config file with
// nothing but an [llm] section yields a runnable engine.
func applyDefaults(c *Config) {
	if c.Session.Mode == "" {
		c.Session.Mode = "medium"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "mock"
	}
	if c.LLM.OpenAI.BaseURL == "" {
		c.LLM.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.OpenAI.Model == "" {
		c.LLM.OpenAI.Model = "gpt-4o-mini"
	}
	if c.LLM.OpenAI.TimeoutSeconds <= 0 {
		c.LLM.OpenAI.TimeoutSeconds = 60
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "mock"
	}
	if c.Embedding.OpenAI.BaseURL == "" {
		c.Embedding.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.Embedding.OpenAI.Model == "" {
		c.Embedding.OpenAI.Model = "text-embedding-3-small"
	}
	if c.Embedding.OpenAI.TimeoutSeconds <= 0 {
		c.Embedding.OpenAI.TimeoutSeconds = 30
	}

	if c.Pool.Concurrency == 0 {
		c.Pool.Concurrency = 3
	}
	if c.Pool.BacklogThreshold == 0 {
		c.Pool.BacklogThreshold = 10
	}
	if c.Pool.CircuitThreshold == 0 {
		c.Pool.CircuitThreshold = 3
	}

	if c.Orchestrator.WindowSize == 0 {
		c.Orchestrator.WindowSize = 5
	}
	if c.Orchestrator.PhaseEarlyUntilMinutes == 0 {
		c.Orchestrator.PhaseEarlyUntilMinutes = 10
	}
	if c.Orchestrator.PhaseMidUntilMinutes == 0 {
		c.Orchestrator.PhaseMidUntilMinutes = 30
	}
	if c.Orchestrator.SecondPassCheckSeconds == 0 {
		c.Orchestrator.SecondPassCheckSeconds = 30
	}
	if c.Orchestrator.SecondPassMinIntervalSeconds == 0 {
		c.Orchestrator.SecondPassMinIntervalSeconds = 60
	}
	if c.Orchestrator.SecondPassMinNewItems == 0 {
		c.Orchestrator.SecondPassMinNewItems = 5
	}

	if c.Dedup.Threshold == 0 {
		c.Dedup.Threshold = 0.85
	}
	if c.Dedup.MinScore == 0 {
		c.Dedup.MinScore = 0.4
	}
	if c.Dedup.TopK == 0 {
		c.Dedup.TopK = 3
	}

	if c.Tools.MaxPlannedCalls == 0 {
		c.Tools.MaxPlannedCalls = 3
	}
	if c.Tools.RateLimit.Capacity == 0 {
		c.Tools.RateLimit.Capacity = 10
	}
	if c.Tools.RateLimit.RefillSeconds == 0 {
		c.Tools.RateLimit.RefillSeconds = 60
	}
	if c.Tools.RateLimit.RefillAmount == 0 {
		c.Tools.RateLimit.RefillAmount = 10
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9290"
	}
}
