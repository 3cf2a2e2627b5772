// Package embedding defines the vector embedding capability consumed by the
// deduplication gate, together with similarity math and an OpenAI-compatible
// HTTP client. Any failure from Embed is treated by callers as "skip this
// similarity check", never as a fatal error.
package embedding

import (
	"context"
	"errors"
	"math"
	"sort"
)

// ErrEmptyEmbedding is returned when the provider answers with no vector.
var ErrEmptyEmbedding = errors.New("provider returned empty embedding")

// Provider produces embedding vectors for text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Cosine returns the cosine similarity of two vectors, in [-1, 1].
// Mismatched lengths or zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Scored is one ranked similarity result.
type Scored struct {
	ID    string
	Score float64
}

// SearchSimilar ranks candidate vectors against a query vector and returns up
// to topK ids scoring at or above minScore, sorted by similarity descending.
func SearchSimilar(query []float32, candidates map[string][]float32, topK int, minScore float64) []Scored {
	results := make([]Scored, 0, len(candidates))
	for id, vec := range candidates {
		score := Cosine(query, vec)
		if score >= minScore {
			results = append(results, Scored{ID: id, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
