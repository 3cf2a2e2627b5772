package config

import (
	"os"
	"path/filepath"
	"strings"
)

// expandEnvVars expands ${VAR} references in the fields that commonly carry
// secrets or paths.
func expandEnvVars(c *Config) {
	c.LLM.OpenAI.APIKey = expandEnv(c.LLM.OpenAI.APIKey)
	c.LLM.OpenAI.BaseURL = expandEnv(c.LLM.OpenAI.BaseURL)
	c.Embedding.OpenAI.APIKey = expandEnv(c.Embedding.OpenAI.APIKey)
	c.Embedding.OpenAI.BaseURL = expandEnv(c.Embedding.OpenAI.BaseURL)

	c.Storage.Path = expandHome(expandEnv(c.Storage.Path))
	c.Agents.RosterPath = expandHome(expandEnv(c.Agents.RosterPath))
}

// expandEnv resolves a ${VAR} or ${VAR:default} reference. Anything else is
// returned unchanged.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if parts := strings.SplitN(content, ":", 2); len(parts) == 2 {
		if val := os.Getenv(parts[0]); val != "" {
			return val
		}
		return parts[1]
	}

	return os.Getenv(content)
}

// expandHome resolves a leading ~/ against the user's home directory.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
