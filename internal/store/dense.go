package store

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/errors"
)

// DenseConfig configures the HNSW dense index.
type DenseConfig struct {
	// M is the HNSW max connections per layer (default: 16).
	M int

	// EfSearch is the query-time search width (default: 64).
	EfSearch int

	// ExactThreshold is the candidate count at or below which search scans
	// vectors exactly instead of walking the graph (default: 2048).
	ExactThreshold int

	// Seed fixes level generation so two builds of one corpus are identical.
	Seed int64
}

// DefaultDenseConfig returns sensible defaults for the dense index.
func DefaultDenseConfig() DenseConfig {
	return DenseConfig{M: 16, EfSearch: 64, ExactThreshold: 2048, Seed: 1}
}

// HNSWDenseIndex implements DenseIndex over coder/hnsw with cosine distance.
// It is built once and only read afterwards.
type HNSWDenseIndex struct {
	graph   *hnsw.Graph[uint64]
	store   *corpus.Store
	vectors [][]float32 // normalized, indexed like store.Documents()
	keyOf   map[string]uint64
	config  DenseConfig
}

// NewHNSWDenseIndex builds the index from every document in store.
func NewHNSWDenseIndex(ctx context.Context, store *corpus.Store, cfg DenseConfig) (*HNSWDenseIndex, error) {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 64
	}
	if cfg.ExactThreshold < 0 {
		cfg.ExactThreshold = 0
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	graph.Rng = rand.New(rand.NewSource(cfg.Seed))

	docs := store.Documents()
	idx := &HNSWDenseIndex{
		graph:   graph,
		store:   store,
		vectors: make([][]float32, len(docs)),
		keyOf:   make(map[string]uint64, len(docs)),
		config:  cfg,
	}

	for i, d := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec := make([]float32, len(d.Embedding))
		copy(vec, d.Embedding)
		normalizeVectorInPlace(vec)

		key := uint64(i)
		idx.vectors[i] = vec
		idx.keyOf[d.ID] = key
		graph.Add(hnsw.MakeNode(key, vec))
	}

	return idx, nil
}

// Dimension returns the embedding dimension.
func (x *HNSWDenseIndex) Dimension() int { return x.store.Dimension() }

// Len returns the number of indexed vectors.
func (x *HNSWDenseIndex) Len() int { return len(x.vectors) }

// Search returns up to k nearest documents.
func (x *HNSWDenseIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	q, err := x.prepare(query)
	if err != nil || q == nil || k <= 0 {
		return []Hit{}, err
	}

	if len(x.vectors) <= x.config.ExactThreshold {
		return x.scan(q, k, x.store.Documents()), nil
	}

	nodes := x.graph.Search(q, k)

	hits := make([]Hit, 0, len(nodes))
	for _, n := range nodes {
		hits = append(hits, Hit{
			ID:    x.store.Documents()[n.Key].ID,
			Score: distanceToScore(hnsw.CosineDistance(q, n.Value)),
		})
	}
	sortHits(hits)
	return hits, nil
}

// SearchFiltered returns up to k nearest documents whose category is in cats.
// Small category sets are scanned exactly; larger ones widen the graph
// search until enough matching documents are found.
func (x *HNSWDenseIndex) SearchFiltered(ctx context.Context, query []float32, k int, cats corpus.CategorySet) ([]Hit, error) {
	q, err := x.prepare(query)
	if err != nil || q == nil || k <= 0 || cats.Empty() {
		return []Hit{}, err
	}

	if x.store.CountInCategories(cats) <= x.config.ExactThreshold {
		return x.scan(q, k, x.store.InCategories(cats)), nil
	}

	docs := x.store.Documents()
	for width := k * 4; ; width *= 2 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if width > len(docs) {
			width = len(docs)
		}

		nodes := x.graph.Search(q, width)

		hits := make([]Hit, 0, k)
		for _, n := range nodes {
			d := docs[n.Key]
			if !cats.Has(d.Category) {
				continue
			}
			hits = append(hits, Hit{ID: d.ID, Score: distanceToScore(hnsw.CosineDistance(q, n.Value))})
		}
		if len(hits) >= k || width == len(docs) {
			sortHits(hits)
			if len(hits) > k {
				hits = hits[:k]
			}
			return hits, nil
		}
	}
}

// prepare validates and normalizes the query vector. A nil vector with nil
// error means the index is empty.
func (x *HNSWDenseIndex) prepare(query []float32) ([]float32, error) {
	if len(x.vectors) == 0 {
		return nil, nil
	}
	if len(query) != x.Dimension() {
		return nil, errors.DimensionMismatch(x.Dimension(), len(query))
	}
	q := make([]float32, len(query))
	copy(q, query)
	normalizeVectorInPlace(q)
	return q, nil
}

// scan scores candidates exactly.
func (x *HNSWDenseIndex) scan(q []float32, k int, candidates []*corpus.Document) []Hit {
	hits := make([]Hit, 0, len(candidates))
	for _, d := range candidates {
		key, ok := x.keyOf[d.ID]
		if !ok {
			continue
		}
		hits = append(hits, Hit{ID: d.ID, Score: distanceToScore(hnsw.CosineDistance(q, x.vectors[key]))})
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

var _ DenseIndex = (*HNSWDenseIndex)(nil)

// normalizeVectorInPlace scales v to unit length. Zero vectors are left as is.
func normalizeVectorInPlace(v []float32) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// distanceToScore maps cosine distance in [0,2] to similarity in [0,1].
// An undefined distance, as from a zero vector, scores 0.
func distanceToScore(distance float32) float64 {
	s := 1 - float64(distance)/2
	switch {
	case math.IsNaN(s) || s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

// CosineSimilarity returns the cosine of the angle between a and b, 0 when
// either is a zero vector or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}

func (c DenseConfig) String() string {
	return fmt.Sprintf("hnsw(M=%d, ef=%d, exact<=%d)", c.M, c.EfSearch, c.ExactThreshold)
}
