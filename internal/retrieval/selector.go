package retrieval

import (
	"math"

	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/store"
)

// Selection is one pick of the coherent selector.
type Selection struct {
	// Index is the position in the pool.
	Index     int
	Relevance float64
	Score     float64
}

// Selector greedily picks a connected, diverse, well-typed subset of a
// pool. It holds only configuration and is safe for concurrent use.
type Selector struct {
	cfg Config
}

// NewSelector creates a selector.
func NewSelector(cfg Config) *Selector {
	return &Selector{cfg: cfg}
}

// Select picks up to k pool positions. Round one takes the most relevant
// document. Every later round maximizes
//
//	α·rel + (1−α)·conn − w_div·maxcos + modifier − mega [+ boost]
//
// where conn is the mean normalized adjacency to the documents already
// picked and maxcos their highest cosine similarity. Ties go to the
// smaller id. docs and scores are aligned with the matrix.
func (s *Selector) Select(docs []*corpus.Document, scores []float64, adj *Adjacency, k int, targets corpus.CategorySet) []Selection {
	n := len(docs)
	if k <= 0 || n == 0 {
		return nil
	}
	k = min(k, n)

	rel := make([]float64, n)
	maxRel := 0.0
	for _, v := range scores {
		maxRel = max(maxRel, v)
	}
	for i, v := range scores {
		if maxRel > 0 {
			rel[i] = v / maxRel
		}
	}

	// Per-candidate terms that do not change between rounds.
	static := make([]float64, n)
	for i, d := range docs {
		static[i] = s.cfg.categoryModifier(d.Category)
		if d.RawTripleCount > s.cfg.MegaEntityThreshold {
			static[i] -= s.cfg.MegaEntityPenalty
		}
		if s.cfg.CategoryBoostEnabled && targets.Has(d.Category) {
			static[i] += s.cfg.CategoryBoost
		}
	}

	picked := make([]bool, n)
	connSum := make([]float64, n)
	maxCos := make([]float64, n)
	out := make([]Selection, 0, k)

	better := func(score float64, i int, bestScore float64, best int) bool {
		if best < 0 || score > bestScore {
			return true
		}
		return score == bestScore && docs[i].ID < docs[best].ID
	}

	for round := 0; round < k; round++ {
		best, bestScore := -1, math.Inf(-1)
		for i := 0; i < n; i++ {
			if picked[i] {
				continue
			}
			score := rel[i]
			if round > 0 {
				score = s.score(rel[i], connSum[i]/float64(round), maxCos[i], static[i], round)
			}
			if better(score, i, bestScore, best) {
				best, bestScore = i, score
			}
		}

		picked[best] = true
		out = append(out, Selection{Index: best, Relevance: rel[best], Score: bestScore})

		for i := 0; i < n; i++ {
			if picked[i] {
				continue
			}
			connSum[i] += adj.At(i, best)
			maxCos[i] = max(maxCos[i], store.CosineSimilarity(docs[i].Embedding, docs[best].Embedding))
		}
	}
	return out
}

func (s *Selector) score(rel, conn, maxCos, static float64, round int) float64 {
	if s.cfg.ConnectivityMinRelevance > 0 && rel < s.cfg.ConnectivityMinRelevance {
		conn = 0
	}
	connWeight := 1 - s.cfg.Alpha
	if s.cfg.ConnectivityDecay > 0 {
		connWeight *= math.Pow(1-s.cfg.ConnectivityDecay, float64(round-1))
	}
	return s.cfg.Alpha*rel + connWeight*conn - s.cfg.DiversityWeight*maxCos + static
}
