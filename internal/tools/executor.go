package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boardkit/dispatch/internal/logger"
)

// Result is the outcome of one tool call.
type Result struct {
	ToolID  string `json:"tool_id"`
	Success bool   `json:"success"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Executor resolves tool ids against the registry and runs calls under the
// shared rate limiter.
type Executor struct {
	registry *Registry
	limiter  *RateLimiter
	logger   *logger.Logger
}

// NewExecutor creates a tool executor.
func NewExecutor(registry *Registry, limiter *RateLimiter, log *logger.Logger) *Executor {
	return &Executor{
		registry: registry,
		limiter:  limiter,
		logger:   log,
	}
}

// Execute runs one tool call. Unknown tools, rate limiting, and tool errors
// all come back as failed Results rather than Go errors: a failed call never
// aborts its siblings.
func (e *Executor) Execute(ctx context.Context, toolID string, params map[string]any) Result {
	tool, ok := e.registry.Get(toolID)
	if !ok {
		return Result{ToolID: toolID, Error: fmt.Sprintf("unknown tool: %s", toolID)}
	}

	if e.limiter != nil && !e.limiter.Acquire(toolID) {
		e.logger.WarnCtx(ctx, "tool call rate limited",
			logger.Field{Key: "tool_id", Value: toolID})
		return Result{ToolID: toolID, Error: "rate limit exceeded"}
	}

	args, err := json.Marshal(params)
	if err != nil {
		return Result{ToolID: toolID, Error: fmt.Sprintf("invalid params: %v", err)}
	}

	var output string
	if ct, ok := tool.(ContextualTool); ok {
		output, err = ct.ExecuteWithContext(ctx, string(args))
	} else {
		output, err = tool.Execute(string(args))
	}
	if err != nil {
		e.logger.WarnCtx(ctx, "tool call failed",
			logger.Field{Key: "tool_id", Value: toolID},
			logger.Field{Key: "error", Value: err.Error()})
		return Result{ToolID: toolID, Error: err.Error()}
	}

	return Result{ToolID: toolID, Success: true, Data: output}
}
