package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockMode defines the operation mode of the mock provider.
type MockMode int

const (
	// MockModeEcho returns the user prompt back (echo mode).
	MockModeEcho MockMode = iota

	// MockModeFixed returns a fixed response.
	MockModeFixed

	// MockModeFixtures returns pre-defined responses in rotation.
	MockModeFixtures

	// MockModeError always returns an error.
	MockModeError
)

// MockConfig holds configuration for the mock provider.
type MockConfig struct {
	Mode       MockMode // Operation mode
	Responses  []string // Pre-defined responses (for Fixed/Fixtures modes)
	Delay      int      // Simulated delay in milliseconds
	ErrorAfter int      // Number of successful calls before returning errors (0 = never)
}

// MockProvider is a mock implementation of the Provider interface for testing
// and graceful degradation scenarios.
type MockProvider struct {
	mu            sync.Mutex
	mode          MockMode
	responses     []string
	responseIndex int
	delay         int
	errorAfter    int
	callCount     int
}

// NewMockProvider creates a new mock LLM provider.
func NewMockProvider(cfg MockConfig) *MockProvider {
	return &MockProvider{
		mode:       cfg.Mode,
		responses:  cfg.Responses,
		delay:      cfg.Delay,
		errorAfter: cfg.ErrorAfter,
	}
}

// NewEchoProvider creates a mock provider that echoes user prompts.
func NewEchoProvider() *MockProvider {
	return NewMockProvider(MockConfig{Mode: MockModeEcho})
}

// NewFixedProvider creates a mock provider that always returns a fixed response.
func NewFixedProvider(response string) *MockProvider {
	return NewMockProvider(MockConfig{
		Mode:      MockModeFixed,
		Responses: []string{response},
	})
}

// NewFixturesProvider creates a mock provider that cycles through pre-defined responses.
func NewFixturesProvider(responses []string) *MockProvider {
	return NewMockProvider(MockConfig{
		Mode:      MockModeFixtures,
		Responses: responses,
	})
}

// NewErrorProvider creates a mock provider that always returns errors.
func NewErrorProvider() *MockProvider {
	return NewMockProvider(MockConfig{Mode: MockModeError})
}

// Complete implements the Provider interface.
func (m *MockProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++

	if m.delay > 0 {
		select {
		case <-time.After(time.Duration(m.delay) * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if m.mode == MockModeError {
		return "", fmt.Errorf("mock provider error (call %d)", m.callCount)
	}

	if m.errorAfter > 0 && m.callCount > m.errorAfter {
		return "", fmt.Errorf("mock provider error after %d calls", m.errorAfter)
	}

	switch m.mode {
	case MockModeEcho:
		return userPrompt, nil
	case MockModeFixed:
		if len(m.responses) == 0 {
			return "", ErrEmptyResponse
		}
		return m.responses[0], nil
	case MockModeFixtures:
		if len(m.responses) == 0 {
			return "", ErrEmptyResponse
		}
		resp := m.responses[m.responseIndex%len(m.responses)]
		m.responseIndex++
		return resp, nil
	default:
		return "", ErrEmptyResponse
	}
}

// CallCount returns the number of Complete calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
