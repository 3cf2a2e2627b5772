package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/boardkit/dispatch/internal/llm"
	"github.com/boardkit/dispatch/internal/logger"
)

// DefaultMaxTokens is the per-agent response budget when a descriptor does
// not set one.
const DefaultMaxTokens = 1024

// LLMInvoker is the plain (tool-free) agent invocation: one completion call,
// response parsed into candidate card texts.
type LLMInvoker struct {
	provider llm.Provider
	logger   *logger.Logger
}

// NewLLMInvoker creates the default invoker.
func NewLLMInvoker(provider llm.Provider, log *logger.Logger) *LLMInvoker {
	return &LLMInvoker{
		provider: provider,
		logger:   log,
	}
}

// Invoke runs the agent's completion and parses candidate card texts.
func (inv *LLMInvoker) Invoke(ctx context.Context, d *Descriptor, ec Context) ([]string, error) {
	userPrompt := BuildUserPrompt(d, ec)

	maxTokens := d.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	response, err := inv.provider.Complete(ctx, d.SystemPrompt, userPrompt, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("agent %s completion: %w", d.ID, err)
	}

	return ParseCandidates(response), nil
}

// BuildUserPrompt assembles the user prompt from the execution context, using
// the descriptor's builder when set.
func BuildUserPrompt(d *Descriptor, ec Context) string {
	if d.UserPrompt != nil {
		return d.UserPrompt(ec)
	}

	var b strings.Builder

	if ec.SecondPass {
		b.WriteString("Source items:\n")
		b.WriteString(ec.PrimaryInput)
		b.WriteString("\n")
	} else {
		b.WriteString("Transcript batch:\n")
		b.WriteString(ec.BatchText)
		b.WriteString("\n")
		if ec.WindowText != "" {
			b.WriteString("\nEarlier discussion for background (do not react to it directly):\n")
			b.WriteString(ec.WindowText)
			b.WriteString("\n")
		}
	}

	if ec.Phase != "" {
		fmt.Fprintf(&b, "\nMeeting phase: %s\n", ec.Phase)
	}

	if len(ec.SimilarHints) > 0 {
		b.WriteString("\nCards already on the board covering similar ground (do not restate them):\n")
		for i, hint := range ec.SimilarHints {
			fmt.Fprintf(&b, "%d. %s\n", i+1, hint)
		}
	}

	b.WriteString("\nRespond with a JSON array of strings, one per insight. Respond with [] if nothing new.")
	return b.String()
}

// ParseCandidates extracts candidate card texts from a model response.
// A JSON array of strings is preferred (code fences tolerated); anything else
// degrades to non-empty lines with list markers stripped.
func ParseCandidates(response string) []string {
	trimmed := StripCodeFence(response)
	if trimmed == "" {
		return nil
	}

	var arr []string
	if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
		return cleanNonEmpty(arr)
	}

	lines := strings.Split(trimmed, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• \t")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// StripCodeFence removes a surrounding markdown code fence, if present.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop a language hint on the opening fence line.
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		firstLine := strings.TrimSpace(trimmed[:idx])
		if len(firstLine) <= 10 && !strings.ContainsAny(firstLine, "[{") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func cleanNonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
