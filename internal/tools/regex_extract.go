package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wasilibs/go-re2"
)

// regexMatchLimit caps the number of matches returned.
const regexMatchLimit = 100

// RegexExtractTool finds all matches of a pattern in text. Patterns come from
// LLM plans, so they are compiled with re2: linear-time matching regardless of
// what the model produced.
type RegexExtractTool struct{}

// NewRegexExtractTool creates a regex extraction tool.
func NewRegexExtractTool() *RegexExtractTool {
	return &RegexExtractTool{}
}

func (t *RegexExtractTool) Name() string {
	return "regex_extract"
}

func (t *RegexExtractTool) Description() string {
	return "Extract all matches of a regular expression from text. Returns a JSON array of matches; submatches are included when the pattern has groups."
}

func (t *RegexExtractTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{
				"type":        "string",
				"description": "Text to search",
			},
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "RE2 regular expression",
			},
			"flags": map[string]interface{}{
				"type":        "string",
				"description": "Optional flags, any of: i (case-insensitive), m (multi-line), s (dot matches newline)",
			},
		},
		"required": []string{"text", "pattern"},
	}
}

type regexExtractArgs struct {
	Text    string `json:"text"`
	Pattern string `json:"pattern"`
	Flags   string `json:"flags"`
}

func (t *RegexExtractTool) Execute(args string) (string, error) {
	var parsed regexExtractArgs
	if err := json.Unmarshal([]byte(args), &parsed); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(parsed.Pattern) == "" {
		return "", fmt.Errorf("pattern is required")
	}

	prefix := ""
	if parsed.Flags != "" {
		var f []string
		flags := strings.ToLower(parsed.Flags)
		for _, flag := range []string{"i", "m", "s"} {
			if strings.Contains(flags, flag) {
				f = append(f, flag)
			}
		}
		if len(f) > 0 {
			prefix = "(?" + strings.Join(f, "") + ")"
		}
	}

	rx, err := re2.Compile(prefix + parsed.Pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}

	matches := rx.FindAllStringSubmatch(parsed.Text, regexMatchLimit)
	if matches == nil {
		matches = [][]string{}
	}

	out, err := json.Marshal(matches)
	if err != nil {
		return "", fmt.Errorf("failed to encode matches: %w", err)
	}
	return string(out), nil
}
