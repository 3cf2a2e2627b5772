package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
)

// MockProvider is a deterministic in-process embedder for tests and offline
// runs. Fixture vectors can be pinned per text; unknown texts fall back to a
// stable hash-derived vector so equal inputs always embed identically.
type MockProvider struct {
	mu       sync.Mutex
	fixtures map[string][]float32
	fail     bool
	calls    int
}

// NewMockProvider creates a mock embedder with optional pinned fixtures.
func NewMockProvider(fixtures map[string][]float32) *MockProvider {
	if fixtures == nil {
		fixtures = make(map[string][]float32)
	}
	return &MockProvider{fixtures: fixtures}
}

// Pin sets the vector returned for an exact text.
func (m *MockProvider) Pin(text string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixtures[text] = vec
}

// SetFail makes every subsequent Embed call return an error.
func (m *MockProvider) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// Calls returns the number of Embed calls made.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Embed implements the Provider interface.
func (m *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++

	if m.fail {
		return nil, fmt.Errorf("mock embedder failure")
	}
	if vec, ok := m.fixtures[text]; ok {
		return vec, nil
	}
	return hashVector(text, 8), nil
}

// hashVector derives a stable pseudo-embedding from the text. Distinct texts
// land on near-orthogonal vectors with high probability, which is all the
// tests need.
func hashVector(text string, dims int) []float32 {
	vec := make([]float32, dims)
	for i := 0; i < dims; i++ {
		h := fnv.New32a()
		fmt.Fprintf(h, "%d:%s", i, text)
		// Map the hash to [-1, 1).
		vec[i] = float32(int32(h.Sum32())) / float32(1<<31)
	}
	return vec
}
