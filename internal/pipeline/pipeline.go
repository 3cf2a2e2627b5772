// Package pipeline runs tool-using agents through a plan, execute, synthesize
// loop. Every failure mode degrades to the plain tool-free invocation, so a
// tool-declaring agent can never fail harder than one without tools.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/boardkit/dispatch/internal/agents"
	"github.com/boardkit/dispatch/internal/llm"
	"github.com/boardkit/dispatch/internal/logger"
	"github.com/boardkit/dispatch/internal/tools"
)

const (
	// DefaultMaxCalls caps how many planned tool calls are executed.
	DefaultMaxCalls = 3
	// DefaultResultBudget caps the characters of tool output handed to the
	// synthesis call.
	DefaultResultBudget = 6000
	// planMaxTokens budgets the planning completion.
	planMaxTokens = 512
)

// ToolCall is one step of an agent's tool plan.
type ToolCall struct {
	ToolID    string         `json:"tool_id"`
	Params    map[string]any `json:"params"`
	Reasoning string         `json:"reasoning,omitempty"`
}

// Pipeline plans and executes tool calls for agents that declare tools,
// falling back to the plain invoker whenever tools produce nothing usable.
type Pipeline struct {
	provider     llm.Provider
	registry     *tools.Registry
	executor     *tools.Executor
	fallback     agents.Invoker
	logger       *logger.Logger
	maxCalls     int
	resultBudget int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxCalls overrides the planned-call cap.
func WithMaxCalls(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxCalls = n
		}
	}
}

// WithResultBudget overrides the synthesis input budget.
func WithResultBudget(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.resultBudget = n
		}
	}
}

// New creates a tool pipeline. fallback handles agents without tools and
// every degradation path.
func New(provider llm.Provider, registry *tools.Registry, executor *tools.Executor, fallback agents.Invoker, log *logger.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		provider:     provider,
		registry:     registry,
		executor:     executor,
		fallback:     fallback,
		logger:       log,
		maxCalls:     DefaultMaxCalls,
		resultBudget: DefaultResultBudget,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Invoke runs the agent. Tool-free agents go straight to the fallback
// invoker; tool-declaring agents go through plan, execute, synthesize.
func (p *Pipeline) Invoke(ctx context.Context, d *agents.Descriptor, ec agents.Context) ([]string, error) {
	if len(d.Tools) == 0 {
		return p.fallback.Invoke(ctx, d, ec)
	}

	manifests := p.registry.Manifests(d.Tools)
	if len(manifests) == 0 {
		p.logger.DebugCtx(ctx, "agent declares no registered tools, plain invocation",
			logger.Field{Key: "agent_id", Value: d.ID})
		return p.fallback.Invoke(ctx, d, ec)
	}

	plan, err := p.plan(ctx, d, ec, manifests)
	if err != nil || len(plan) == 0 {
		if err != nil {
			p.logger.WarnCtx(ctx, "tool planning failed, plain invocation",
				logger.Field{Key: "agent_id", Value: d.ID},
				logger.Field{Key: "error", Value: fmt.Sprint(err)})
		}
		return p.fallback.Invoke(ctx, d, ec)
	}

	if len(plan) > p.maxCalls {
		plan = plan[:p.maxCalls]
	}

	results := make([]tools.Result, 0, len(plan))
	successes := 0
	for _, call := range plan {
		result := p.executor.Execute(ctx, call.ToolID, call.Params)
		results = append(results, result)
		if result.Success {
			successes++
		}
	}

	if successes == 0 {
		p.logger.DebugCtx(ctx, "all tool calls failed, plain invocation",
			logger.Field{Key: "agent_id", Value: d.ID},
			logger.Field{Key: "calls", Value: len(plan)})
		return p.fallback.Invoke(ctx, d, ec)
	}

	candidates, err := p.synthesize(ctx, d, ec, results)
	if err != nil || len(candidates) == 0 {
		if err != nil {
			p.logger.WarnCtx(ctx, "tool synthesis failed, plain invocation",
				logger.Field{Key: "agent_id", Value: d.ID},
				logger.Field{Key: "error", Value: fmt.Sprint(err)})
		}
		return p.fallback.Invoke(ctx, d, ec)
	}
	return candidates, nil
}

// plan asks the model which tool calls to make. A response that is not a JSON
// array of calls yields an empty plan.
func (p *Pipeline) plan(ctx context.Context, d *agents.Descriptor, ec agents.Context, manifests []tools.Manifest) ([]ToolCall, error) {
	manifestJSON, err := json.MarshalIndent(manifests, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifests: %w", err)
	}

	var b strings.Builder
	b.WriteString("You may call tools before answering. Available tools:\n")
	b.Write(manifestJSON)
	b.WriteString("\n\nTask input:\n")
	b.WriteString(agents.BuildUserPrompt(d, ec))
	fmt.Fprintf(&b, "\n\nRespond with a JSON array of at most %d tool calls, each "+
		`{"tool_id": string, "params": object, "reasoning": string}. `+
		"Respond with [] if no tool is needed.", p.maxCalls)

	response, err := p.provider.Complete(ctx, d.SystemPrompt, b.String(), planMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("plan completion: %w", err)
	}

	trimmed := agents.StripCodeFence(response)
	var plan []ToolCall
	if err := json.Unmarshal([]byte(trimmed), &plan); err != nil {
		p.logger.DebugCtx(ctx, "unparseable tool plan",
			logger.Field{Key: "agent_id", Value: d.ID})
		return nil, nil
	}

	out := plan[:0]
	for _, call := range plan {
		if strings.TrimSpace(call.ToolID) != "" {
			out = append(out, call)
		}
	}
	return out, nil
}

// synthesize re-invokes the model with the tool results folded into the
// prompt and parses candidate card texts from the answer.
func (p *Pipeline) synthesize(ctx context.Context, d *agents.Descriptor, ec agents.Context, results []tools.Result) ([]string, error) {
	var b strings.Builder
	b.WriteString(agents.BuildUserPrompt(d, ec))
	b.WriteString("\n\nTool results:\n")
	b.WriteString(formatResults(results, p.resultBudget))
	b.WriteString("\nUse the tool results above where they help. Respond with a JSON array of strings, one per insight.")

	maxTokens := d.MaxTokens
	if maxTokens <= 0 {
		maxTokens = agents.DefaultMaxTokens
	}

	response, err := p.provider.Complete(ctx, d.SystemPrompt, b.String(), maxTokens)
	if err != nil {
		return nil, fmt.Errorf("synthesis completion: %w", err)
	}
	return agents.ParseCandidates(response), nil
}

// formatResults renders tool outcomes for the synthesis prompt, truncated to
// the character budget.
func formatResults(results []tools.Result, budget int) string {
	var b strings.Builder
	for i, result := range results {
		if result.Success {
			fmt.Fprintf(&b, "%d. [%s] ok:\n%s\n", i+1, result.ToolID, result.Data)
		} else {
			fmt.Fprintf(&b, "%d. [%s] failed: %s\n", i+1, result.ToolID, result.Error)
		}
	}
	s := b.String()
	if len(s) > budget {
		s = s[:budget] + "\n[truncated]"
	}
	return s
}
