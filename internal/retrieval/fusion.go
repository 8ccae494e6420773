package retrieval

import (
	"sort"

	"github.com/Aman-CERP/crmrag/internal/store"
)

// Fuser combines ranked lists with Reciprocal Rank Fusion:
//
//	score(d) = Σ 1 / (k + rank + 1)
//
// with 0-based ranks. A document absent from a list gets nothing from it.
type Fuser struct {
	K int
}

// NewFuser creates a fuser. If k <= 0, defaults to 60.
func NewFuser(k int) *Fuser {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &Fuser{K: k}
}

// Fuse merges lists into one ranking, highest score first, ties by id.
// A candidate keeps the channel of the list where it ranked best. Only the
// first occurrence of an id within a list counts. limit <= 0 keeps
// everything.
func (f *Fuser) Fuse(limit int, lists ...[]Candidate) []Candidate {
	type acc struct {
		score    float64
		bestRank int
		channel  Channel
	}
	scores := make(map[string]*acc)
	for _, list := range lists {
		seen := make(map[string]struct{}, len(list))
		for rank, c := range list {
			if _, dup := seen[c.DocID]; dup {
				continue
			}
			seen[c.DocID] = struct{}{}

			a, ok := scores[c.DocID]
			if !ok {
				a = &acc{bestRank: rank, channel: c.Channel}
				scores[c.DocID] = a
			} else if rank < a.bestRank {
				a.bestRank = rank
				a.channel = c.Channel
			}
			a.score += 1 / float64(f.K+rank+1)
		}
	}

	out := make([]Candidate, 0, len(scores))
	for id, a := range scores {
		out = append(out, Candidate{DocID: id, Score: a.score, Channel: a.channel})
	}
	sortCandidates(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// sortCandidates orders by score descending, then id ascending.
func sortCandidates(c []Candidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		return c[i].DocID < c[j].DocID
	})
}

// normalize scales scores so the maximum becomes 1.0.
func normalize(c []Candidate) {
	maxScore := 0.0
	for _, x := range c {
		maxScore = max(maxScore, x.Score)
	}
	if maxScore == 0 {
		return
	}
	for i := range c {
		c[i].Score /= maxScore
	}
}

func fromHits(hits []store.Hit, ch Channel) []Candidate {
	out := make([]Candidate, len(hits))
	for i, h := range hits {
		out[i] = Candidate{DocID: h.ID, Score: h.Score, Channel: ch}
	}
	return out
}
