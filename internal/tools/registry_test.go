package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardkit/dispatch/internal/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func TestRegistry_RegisterGetManifests(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewEchoTool()))
	require.NoError(t, r.Register(NewRegexExtractTool()))

	tool, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", tool.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)

	manifests := r.Manifests([]string{"echo", "unknown"})
	require.Len(t, manifests, 1)
	assert.Equal(t, "echo", manifests[0].ID)
	assert.NotEmpty(t, manifests[0].Description)

	all := r.Manifests(nil)
	assert.Len(t, all, 2)
}

func TestRegistry_RejectsNil(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil))
}

func TestExecutor_RunsTool(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewEchoTool()))
	e := NewExecutor(r, nil, newTestLogger(t))

	result := e.Execute(context.Background(), "echo", map[string]any{"text": "hello"})
	assert.True(t, result.Success)
	assert.Equal(t, "hello", result.Data)
}

func TestExecutor_UnknownToolFailsSoftly(t *testing.T) {
	e := NewExecutor(NewRegistry(), nil, newTestLogger(t))

	result := e.Execute(context.Background(), "ghost", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown tool")
}

func TestExecutor_RateLimited(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewEchoTool()))
	limiter := NewRateLimiter(1, time.Hour, 1)
	e := NewExecutor(r, limiter, newTestLogger(t))

	first := e.Execute(context.Background(), "echo", map[string]any{"text": "a"})
	assert.True(t, first.Success)

	second := e.Execute(context.Background(), "echo", map[string]any{"text": "b"})
	assert.False(t, second.Success)
	assert.Contains(t, second.Error, "rate limit")
}
