// Package dedup implements the semantic deduplication gate: a session-scoped
// embedding cache, an advisory pre-call similarity lookup, and the strict
// post-call duplicate filter. Every embedding failure is recovered locally by
// skipping the similarity check; candidates are never silently lost to a
// downstream failure (fail-open, not fail-closed).
package dedup

import (
	"context"
	"sync"

	"github.com/boardkit/dispatch/internal/embedding"
	"github.com/boardkit/dispatch/internal/logger"
	"github.com/boardkit/dispatch/internal/store"
)

const (
	// DefaultMinScore is the permissive threshold for the advisory pre-call
	// lookup.
	DefaultMinScore = 0.4

	// DefaultThreshold is the strict similarity at which a candidate output
	// is suppressed as a duplicate.
	DefaultThreshold = 0.85

	// DefaultTopK bounds the advisory lookup result.
	DefaultTopK = 3
)

// SimilarItem is one advisory lookup result.
type SimilarItem struct {
	Item  store.Item
	Score float64
}

// Gate is the deduplication gate for one session.
type Gate struct {
	mu       sync.RWMutex
	cache    map[string][]float32 // item id -> embedding vector
	embedder embedding.Provider
	content  store.ContentStore
	logger   *logger.Logger
}

// NewGate creates a gate bound to one session's content store.
func NewGate(embedder embedding.Provider, content store.ContentStore, log *logger.Logger) *Gate {
	return &Gate{
		cache:    make(map[string][]float32),
		embedder: embedder,
		content:  content,
		logger:   log,
	}
}

// Warm eagerly embeds a newly created item in the background so later dedup
// checks have full coverage without embedding the same content twice.
func (g *Gate) Warm(item store.Item) {
	go g.WarmSync(context.Background(), item)
}

// WarmSync embeds and caches an item's content, returning once done.
// Failures are logged and dropped; the item simply stays uncovered.
func (g *Gate) WarmSync(ctx context.Context, item store.Item) {
	g.mu.RLock()
	_, cached := g.cache[item.ID]
	g.mu.RUnlock()
	if cached {
		return
	}

	vec, err := g.embedder.Embed(ctx, item.Content)
	if err != nil {
		g.logger.WarnCtx(ctx, "embedding warm failed, item left uncovered",
			logger.Field{Key: "item_id", Value: item.ID},
			logger.Field{Key: "error", Value: err.Error()})
		return
	}

	g.mu.Lock()
	g.cache[item.ID] = vec
	g.mu.Unlock()
}

// Clear drops the session's embedding cache.
func (g *Gate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache = make(map[string][]float32)
}

// CacheSize returns the number of cached vectors.
func (g *Gate) CacheSize() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cache)
}

// categoryVectors returns vectors for all current non-deleted items in the
// category, embedding uncached items on demand. Items whose embedding fails
// are skipped.
func (g *Gate) categoryVectors(ctx context.Context, category string) (map[string][]float32, map[string]store.Item) {
	items := g.content.Items(category)
	vectors := make(map[string][]float32, len(items))
	byID := make(map[string]store.Item, len(items))

	for _, item := range items {
		byID[item.ID] = item

		g.mu.RLock()
		vec, ok := g.cache[item.ID]
		g.mu.RUnlock()

		if !ok {
			var err error
			vec, err = g.embedder.Embed(ctx, item.Content)
			if err != nil {
				continue
			}
			g.mu.Lock()
			g.cache[item.ID] = vec
			g.mu.Unlock()
		}
		vectors[item.ID] = vec
	}

	return vectors, byID
}

// FindSimilarExisting surfaces up to topK existing items in the category
// scoring at or above minScore against the query, sorted by similarity
// descending. Purely advisory: an embedding failure yields an empty result,
// never an error that blocks output.
func (g *Gate) FindSimilarExisting(ctx context.Context, queryText, category string, topK int, minScore float64) []SimilarItem {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}

	queryVec, err := g.embedder.Embed(ctx, queryText)
	if err != nil {
		g.logger.WarnCtx(ctx, "query embedding failed, skipping similarity hint",
			logger.Field{Key: "category", Value: category},
			logger.Field{Key: "error", Value: err.Error()})
		return nil
	}

	vectors, byID := g.categoryVectors(ctx, category)
	ranked := embedding.SearchSimilar(queryVec, vectors, topK, minScore)

	out := make([]SimilarItem, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, SimilarItem{Item: byID[r.ID], Score: r.Score})
	}
	return out
}

// Deduplicate filters candidates in order, dropping each one whose maximum
// similarity against existing category items or already-kept candidates from
// this same batch reaches the threshold. A candidate whose embedding fails is
// kept: similarity cannot be determined, so the gate fails open.
func (g *Gate) Deduplicate(ctx context.Context, candidates []string, category string, threshold float64) []string {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if len(candidates) == 0 {
		return nil
	}

	existing, _ := g.categoryVectors(ctx, category)

	kept := make([]string, 0, len(candidates))
	keptVecs := make([][]float32, 0, len(candidates))

	for _, candidate := range candidates {
		vec, err := g.embedder.Embed(ctx, candidate)
		if err != nil {
			g.logger.WarnCtx(ctx, "candidate embedding failed, keeping candidate",
				logger.Field{Key: "category", Value: category},
				logger.Field{Key: "error", Value: err.Error()})
			kept = append(kept, candidate)
			continue
		}

		maxSim := 0.0
		for _, ev := range existing {
			if s := embedding.Cosine(vec, ev); s > maxSim {
				maxSim = s
			}
		}
		for _, kv := range keptVecs {
			if s := embedding.Cosine(vec, kv); s > maxSim {
				maxSim = s
			}
		}

		if maxSim >= threshold {
			g.logger.DebugCtx(ctx, "candidate suppressed as duplicate",
				logger.Field{Key: "category", Value: category},
				logger.Field{Key: "similarity", Value: maxSim})
			continue
		}

		kept = append(kept, candidate)
		keptVecs = append(keptVecs, vec)
	}

	return kept
}
