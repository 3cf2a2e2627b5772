// Package llm defines the single completion capability the dispatch engine
// consumes from an LLM vendor, plus an OpenAI-compatible HTTP client and a
// mock provider for tests and degraded operation.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the provider answers with no content.
// An empty completion is a normal, expected failure mode: the caller marks
// the task failed cleanly rather than crashing.
var ErrEmptyResponse = errors.New("llm returned empty response")

// Provider is the completion interface consumed by agents and the tool
// pipeline.
type Provider interface {
	// Complete sends a system/user prompt pair and returns the model's text.
	// maxTokens <= 0 means provider default.
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}
