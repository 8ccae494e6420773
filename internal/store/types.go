// Package store provides the two similarity indices over the corpus (dense
// HNSW and lexical BM25) and the SQLite artifact they are loaded from.
package store

import (
	"context"
	"sort"

	"github.com/Aman-CERP/crmrag/internal/corpus"
)

// Hit is a single search result. Dense scores lie in [0,1]; lexical scores
// are raw relevance values and only their order is meaningful.
type Hit struct {
	ID    string
	Score float64
}

// DenseIndex finds documents by embedding similarity.
type DenseIndex interface {
	// Search returns up to k documents nearest to query, best first.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)

	// SearchFiltered is Search restricted to documents in cats.
	SearchFiltered(ctx context.Context, query []float32, k int, cats corpus.CategorySet) ([]Hit, error)

	Dimension() int
	Len() int
}

// LexicalIndex finds documents by keyword relevance.
type LexicalIndex interface {
	// Search returns up to k documents matching query, best first.
	Search(ctx context.Context, query string, k int) ([]Hit, error)

	// SearchFiltered is Search restricted to documents in cats.
	SearchFiltered(ctx context.Context, query string, k int, cats corpus.CategorySet) ([]Hit, error)

	Len() int
	Close() error
}

// sortHits orders by score descending, then id ascending.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
