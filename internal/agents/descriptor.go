// Package agents defines agent descriptors (pure data plus a small invocation
// interface) and the registry the scheduling components consume. The registry
// holds no scheduling logic itself.
package agents

import (
	"context"
	"fmt"
)

// Priority bounds for agent descriptors.
const (
	MinPriority = 0
	MaxPriority = 10
)

// DefaultDedupThreshold is the similarity at which an output is suppressed
// as a duplicate unless the agent overrides it.
const DefaultDedupThreshold = 0.85

// Phase is the derived meeting phase, a pure function of elapsed wall-clock
// time since session start.
type Phase string

const (
	PhaseEarly Phase = "early"
	PhaseMid   Phase = "mid"
	PhaseLate  Phase = "late"
)

// Context is the execution context assembled per batch and handed to every
// eligible agent.
type Context struct {
	SessionID string

	// BatchText is the debounced transcript batch that triggered dispatch.
	BatchText string

	// WindowText is the rolling background window, excluding the current batch.
	WindowText string

	Phase Phase
	Tags  []string

	// PrimaryInput replaces the transcript as main input for second-pass
	// agents: a numbered list of all current dependency-category items.
	PrimaryInput string
	SecondPass   bool

	// SimilarHints are near-topic existing cards surfaced before invocation,
	// used as in-prompt context so the agent avoids restating them. Advisory
	// only, never a hard filter.
	SimilarHints []string
}

// Descriptor is the immutable identity and policy of one agent. Registered
// once at startup; user overrides wrap it without changing identity.
type Descriptor struct {
	ID          string
	Name        string
	Description string

	// Priority in [0,10]; higher runs first.
	Priority int

	// Category of the cards this agent produces (also the dedup bucket).
	Category string

	// Topics this agent cares about; empty means all batches.
	Topics []string

	// DependsOn lists agent ids that must have completed at least once before
	// this agent becomes eligible. Non-empty marks a second-pass agent.
	DependsOn []string

	// Tools this agent may plan calls against; non-empty routes invocation
	// through the tool pipeline.
	Tools []string

	MaxTokens      int
	DedupThreshold float64

	// ReactsToTranscript marks first-pass agents that want the pre-call
	// similar-cards hint.
	ReactsToTranscript bool

	// Activation gates submission per batch; nil means always active.
	Activation func(Context) bool

	SystemPrompt string

	// UserPrompt builds the user prompt from the execution context; nil uses
	// the default builder.
	UserPrompt func(Context) string
}

// Validate checks descriptor invariants.
func (d *Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("agent id cannot be empty")
	}
	if d.Priority < MinPriority || d.Priority > MaxPriority {
		return fmt.Errorf("agent %s: priority %d out of range [%d,%d]", d.ID, d.Priority, MinPriority, MaxPriority)
	}
	if d.Category == "" {
		return fmt.Errorf("agent %s: category cannot be empty", d.ID)
	}
	return nil
}

// Active reports whether the agent's activation predicate passes for ec.
func (d *Descriptor) Active(ec Context) bool {
	if d.Activation == nil {
		return true
	}
	return d.Activation(ec)
}

// Threshold returns the agent's dedup threshold, the given fallback, or the
// package default, in that order of preference.
func (d *Descriptor) Threshold(fallback float64) float64 {
	if d.DedupThreshold > 0 {
		return d.DedupThreshold
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultDedupThreshold
}

// SecondPass reports whether this is a dependency-gated second-pass agent.
func (d *Descriptor) SecondPass() bool {
	return len(d.DependsOn) > 0
}

// Overrides carries user-authored policy tweaks applied over a built-in
// descriptor. Nil fields keep the original value.
type Overrides struct {
	Priority       *int
	MaxTokens      *int
	DedupThreshold *float64
	Topics         []string
	SystemPrompt   *string
}

// WithOverrides returns a copy of the descriptor with overrides applied.
// Identity (ID) never changes.
func (d *Descriptor) WithOverrides(o Overrides) *Descriptor {
	out := *d
	if o.Priority != nil {
		out.Priority = *o.Priority
	}
	if o.MaxTokens != nil {
		out.MaxTokens = *o.MaxTokens
	}
	if o.DedupThreshold != nil {
		out.DedupThreshold = *o.DedupThreshold
	}
	if len(o.Topics) > 0 {
		out.Topics = o.Topics
	}
	if o.SystemPrompt != nil {
		out.SystemPrompt = *o.SystemPrompt
	}
	return &out
}

// Invoker runs one agent against an execution context and returns candidate
// card texts.
type Invoker interface {
	Invoke(ctx context.Context, d *Descriptor, ec Context) ([]string, error)
}
