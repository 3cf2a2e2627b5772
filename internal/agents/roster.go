package agents

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RosterFile is the on-disk agent roster: user-authored agents plus policy
// overrides for built-in ones. The authoring UI is out of scope; this file is
// its serialized output.
type RosterFile struct {
	Agents    []RosterAgent    `yaml:"agents"`
	Overrides []RosterOverride `yaml:"overrides"`
}

// RosterAgent declares a custom agent in the roster file.
type RosterAgent struct {
	ID                 string   `yaml:"id"`
	Name               string   `yaml:"name"`
	Description        string   `yaml:"description"`
	Priority           int      `yaml:"priority"`
	Category           string   `yaml:"category"`
	Topics             []string `yaml:"topics"`
	DependsOn          []string `yaml:"depends_on"`
	Tools              []string `yaml:"tools"`
	MaxTokens          int      `yaml:"max_tokens"`
	DedupThreshold     float64  `yaml:"dedup_threshold"`
	ReactsToTranscript bool     `yaml:"reacts_to_transcript"`
	SystemPrompt       string   `yaml:"system_prompt"`
}

// RosterOverride tweaks policy of an already registered agent.
type RosterOverride struct {
	ID             string   `yaml:"id"`
	Priority       *int     `yaml:"priority"`
	MaxTokens      *int     `yaml:"max_tokens"`
	DedupThreshold *float64 `yaml:"dedup_threshold"`
	Topics         []string `yaml:"topics"`
	SystemPrompt   *string  `yaml:"system_prompt"`
}

// LoadRoster reads a roster file and applies it to the registry: custom
// agents are registered, overrides decorate existing descriptors in place.
func LoadRoster(path string, registry *Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read roster file: %w", err)
	}
	return ApplyRoster(data, registry)
}

// ApplyRoster parses roster YAML and applies it to the registry.
func ApplyRoster(data []byte, registry *Registry) error {
	var roster RosterFile
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return fmt.Errorf("failed to parse roster file: %w", err)
	}

	for _, ra := range roster.Agents {
		d := &Descriptor{
			ID:                 ra.ID,
			Name:               ra.Name,
			Description:        ra.Description,
			Priority:           ra.Priority,
			Category:           ra.Category,
			Topics:             ra.Topics,
			DependsOn:          ra.DependsOn,
			Tools:              ra.Tools,
			MaxTokens:          ra.MaxTokens,
			DedupThreshold:     ra.DedupThreshold,
			ReactsToTranscript: ra.ReactsToTranscript,
			SystemPrompt:       ra.SystemPrompt,
		}
		if err := registry.Register(d); err != nil {
			return fmt.Errorf("roster agent %s: %w", ra.ID, err)
		}
	}

	for _, ov := range roster.Overrides {
		base, ok := registry.Get(ov.ID)
		if !ok {
			return fmt.Errorf("roster override references unknown agent %s", ov.ID)
		}
		decorated := base.WithOverrides(Overrides{
			Priority:       ov.Priority,
			MaxTokens:      ov.MaxTokens,
			DedupThreshold: ov.DedupThreshold,
			Topics:         ov.Topics,
			SystemPrompt:   ov.SystemPrompt,
		})
		if err := registry.Register(decorated); err != nil {
			return fmt.Errorf("roster override %s: %w", ov.ID, err)
		}
	}

	return nil
}
