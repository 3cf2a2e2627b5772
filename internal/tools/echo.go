package tools

import (
	"encoding/json"
	"fmt"
)

// EchoTool returns its input text. Useful for pipeline smoke tests.
type EchoTool struct{}

// NewEchoTool creates an echo tool.
func NewEchoTool() *EchoTool {
	return &EchoTool{}
}

func (t *EchoTool) Name() string {
	return "echo"
}

func (t *EchoTool) Description() string {
	return "Returns the provided text unchanged."
}

func (t *EchoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{
				"type":        "string",
				"description": "Text to echo back",
			},
		},
		"required": []string{"text"},
	}
}

func (t *EchoTool) Execute(args string) (string, error) {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(args), &parsed); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	return parsed.Text, nil
}
