package corpus

import (
	"math"
	"sort"
)

// PageRankOptions tunes ComputePageRank.
type PageRankOptions struct {
	Damping       float64
	Tolerance     float64
	MaxIterations int
}

// DefaultPageRankOptions returns damping 0.85, L1 tolerance 1e-6 and at
// most 100 iterations.
func DefaultPageRankOptions() PageRankOptions {
	return PageRankOptions{Damping: 0.85, Tolerance: 1e-6, MaxIterations: 100}
}

// ComputePageRank scores every document over the undirected graph formed by
// triples linking two documents. Parallel triples count once. Scores sum to 1.
func ComputePageRank(store *Store, triples *TriplesIndex, opts PageRankOptions) map[string]float64 {
	docs := store.Documents()
	n := len(docs)
	if n == 0 {
		return map[string]float64{}
	}
	if opts.Damping <= 0 || opts.Damping >= 1 {
		opts.Damping = 0.85
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 100
	}

	neighbors := make([][]int, n)
	for i, d := range docs {
		seen := make(map[int]struct{})
		for _, e := range triples.Edges(d.ID) {
			j, ok := store.byID[e.Neighbor]
			if !ok || j == i {
				continue
			}
			if _, dup := seen[j]; dup {
				continue
			}
			seen[j] = struct{}{}
			neighbors[i] = append(neighbors[i], j)
		}
		sort.Ints(neighbors[i])
	}

	rank := make([]float64, n)
	next := make([]float64, n)
	for i := range rank {
		rank[i] = 1 / float64(n)
	}

	base := (1 - opts.Damping) / float64(n)
	for iter := 0; iter < opts.MaxIterations; iter++ {
		dangling := 0.0
		for i := range rank {
			if len(neighbors[i]) == 0 {
				dangling += rank[i]
			}
		}
		spread := opts.Damping * dangling / float64(n)

		for i := range next {
			next[i] = base + spread
		}
		for i, ns := range neighbors {
			if len(ns) == 0 {
				continue
			}
			share := opts.Damping * rank[i] / float64(len(ns))
			for _, j := range ns {
				next[j] += share
			}
		}

		delta := 0.0
		for i := range rank {
			delta += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank
		if delta < opts.Tolerance {
			break
		}
	}

	out := make(map[string]float64, n)
	for i, d := range docs {
		out[d.ID] = rank[i]
	}
	return out
}

// BuildAggregationIndex ranks every document by PageRank within its category.
func BuildAggregationIndex(store *Store, triples *TriplesIndex, opts PageRankOptions) *AggregationIndex {
	scores := ComputePageRank(store, triples, opts)
	entries := make([]AggregationEntry, 0, len(scores))
	for _, d := range store.Documents() {
		entries = append(entries, AggregationEntry{
			DocID:      d.ID,
			Category:   d.Category,
			Centrality: scores[d.ID],
		})
	}
	return NewAggregationIndex(entries)
}
