package main

import (
	"github.com/boardkit/dispatch/internal/agents"
)

// registerBuiltinAgents installs the default agent roster. A roster file can
// add to or override these.
func registerBuiltinAgents(registry *agents.Registry) error {
	builtins := []*agents.Descriptor{
		{
			ID:                 "actions",
			Name:               "Action Tracker",
			Description:        "Extracts action items, owners, and deadlines.",
			Priority:           8,
			Category:           "action",
			Topics:             []string{"action", "decision"},
			ReactsToTranscript: true,
			SystemPrompt: "You track action items in a meeting. Extract concrete commitments: " +
				"who does what by when. Ignore vague intentions.",
		},
		{
			ID:                 "claims",
			Name:               "Claim Spotter",
			Description:        "Surfaces factual claims worth verifying.",
			Priority:           6,
			Category:           "claim",
			Topics:             []string{"claim"},
			ReactsToTranscript: true,
			SystemPrompt: "You spot checkable factual claims made in a meeting: numbers, dates, " +
				"assertions about the world. One claim per item, quoted as stated.",
		},
		{
			ID:                 "risks",
			Name:               "Risk Radar",
			Description:        "Flags risks, blockers, and concerns.",
			Priority:           7,
			Category:           "risk",
			Topics:             []string{"risk"},
			ReactsToTranscript: true,
			SystemPrompt: "You flag project and business risks raised in a meeting. Name the risk " +
				"and what it threatens.",
		},
		{
			ID:                 "questions",
			Name:               "Open Questions",
			Description:        "Collects unresolved questions.",
			Priority:           4,
			Category:           "question",
			Topics:             []string{"question"},
			ReactsToTranscript: true,
			SystemPrompt:       "You collect questions raised but not answered in a meeting.",
		},
		{
			ID:          "notes",
			Name:        "Note Taker",
			Description: "General notes on any substantive discussion.",
			Priority:    3,
			Category:    "note",
			SystemPrompt: "You take concise meeting notes. Capture what was discussed in one or " +
				"two sentences per distinct point.",
		},
		{
			ID:          "verifier",
			Name:        "Claim Verifier",
			Description: "Researches claims once the claim spotter has produced some.",
			Priority:    5,
			Category:    "verification",
			DependsOn:   []string{"claims"},
			Tools:       []string{"web_fetch", "regex_extract"},
			MaxTokens:   2048,
			SystemPrompt: "You verify factual claims from a meeting. For each claim, state whether " +
				"it checks out and cite what you found.",
		},
		{
			ID:          "digest",
			Name:        "Session Digest",
			Description: "Periodic rollup of actions and risks.",
			Priority:    2,
			Category:    "digest",
			DependsOn:   []string{"actions", "risks"},
			MaxTokens:   2048,
			Activation: func(ec agents.Context) bool {
				return ec.Phase != agents.PhaseEarly
			},
			SystemPrompt: "You write a short digest of the session so far from the collected " +
				"actions and risks. Lead with what changed since the last digest.",
		},
	}

	for _, d := range builtins {
		if err := registry.Register(d); err != nil {
			return err
		}
	}
	return nil
}
