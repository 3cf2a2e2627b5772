package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched lengths", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSearchSimilar_RanksAndFilters(t *testing.T) {
	query := []float32{1, 0, 0}
	candidates := map[string][]float32{
		"exact":   {1, 0, 0},
		"close":   {0.9, 0.1, 0},
		"far":     {0, 1, 0},
		"against": {-1, 0, 0},
	}

	results := SearchSimilar(query, candidates, 10, 0.4)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].ID)
	assert.Equal(t, "close", results[1].ID)

	// topK truncates after sorting.
	top1 := SearchSimilar(query, candidates, 1, 0.4)
	require.Len(t, top1, 1)
	assert.Equal(t, "exact", top1[0].ID)
}

func TestMockProvider_DeterministicAndPinnable(t *testing.T) {
	m := NewMockProvider(nil)

	v1, err := m.Embed(context.Background(), "same text")
	require.NoError(t, err)
	v2, err := m.Embed(context.Background(), "same text")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	m.Pin("pinned", []float32{1, 2, 3})
	pinned, err := m.Embed(context.Background(), "pinned")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, pinned)

	assert.Equal(t, 3, m.Calls())
}

func TestMockProvider_Fail(t *testing.T) {
	m := NewMockProvider(nil)
	m.SetFail(true)

	_, err := m.Embed(context.Background(), "anything")
	assert.Error(t, err)
}
