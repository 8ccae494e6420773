package retrieval

import (
	"github.com/Aman-CERP/crmrag/internal/analyze"
	"github.com/Aman-CERP/crmrag/internal/corpus"
)

// typeLists are the category-filtered rankings of the type channel.
type typeLists struct {
	dense    []Candidate
	lexical  []Candidate
	pagerank []Candidate
}

// fuseTypeChannel fuses the filtered lists. The centrality list only takes
// part for enumeration and aggregation questions. Documents that are
// unknown or outside targets are dropped; scores are normalized to [0,1].
func fuseTypeChannel(f *Fuser, qt analyze.QueryType, lists typeLists, docs *corpus.Store, targets corpus.CategorySet) []Candidate {
	in := [][]Candidate{lists.dense, lists.lexical}
	if qt != analyze.Specific {
		in = append(in, lists.pagerank)
	}
	fused := f.Fuse(0, in...)

	out := fused[:0]
	for _, c := range fused {
		if d, ok := docs.Get(c.DocID); ok && targets.Has(d.Category) {
			out = append(out, c)
		}
	}
	normalize(out)
	return out
}

// pageRankList turns the most central target-category entities into a
// ranked list, skipping entries with no document.
func pageRankList(agg *corpus.AggregationIndex, docs *corpus.Store, targets corpus.CategorySet, limit int) []Candidate {
	entries := agg.Top(targets, limit)
	out := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		if !docs.Contains(e.DocID) {
			continue
		}
		out = append(out, Candidate{DocID: e.DocID, Score: e.Centrality, Channel: ChannelPageRank})
	}
	return out
}

// mergeTypeChannel guarantees the top reserved type-channel candidates a
// place in the pool. Each missing one replaces the lowest-scored
// non-target document; if none is left it replaces the lowest document
// that is not itself protected. Target documents already pooled take
// max(pool score, type score). Pool size never grows beyond poolSize.
// Evicted candidates are returned so they can serve as backfill.
func mergeTypeChannel(pool, typeCands []Candidate, docs *corpus.Store, targets corpus.CategorySet, reserved, poolSize int) (merged, evicted []Candidate, inserted int) {
	merged = append(make([]Candidate, 0, poolSize), pool...)
	pos := make(map[string]int, len(merged))
	for i, c := range merged {
		pos[c.DocID] = i
	}

	for _, t := range typeCands {
		if i, ok := pos[t.DocID]; ok && t.Score > merged[i].Score {
			merged[i].Score = t.Score
			merged[i].Channel = t.Channel
		}
	}

	if reserved > len(typeCands) {
		reserved = len(typeCands)
	}
	protected := make(map[string]struct{}, reserved)
	for _, t := range typeCands[:reserved] {
		protected[t.DocID] = struct{}{}
	}

	isTarget := func(c Candidate) bool {
		d, ok := docs.Get(c.DocID)
		return ok && targets.Has(d.Category)
	}
	// victim finds the slot to give up, or -1.
	victim := func() int {
		lowest, lowestTarget := -1, -1
		for i, c := range merged {
			if _, p := protected[c.DocID]; p {
				continue
			}
			if !isTarget(c) {
				if lowest < 0 || less(merged[lowest], c) {
					lowest = i
				}
			} else if lowestTarget < 0 || less(merged[lowestTarget], c) {
				lowestTarget = i
			}
		}
		if lowest >= 0 {
			return lowest
		}
		return lowestTarget
	}

	for _, t := range typeCands[:reserved] {
		if _, ok := pos[t.DocID]; ok {
			continue
		}
		if len(merged) < poolSize {
			pos[t.DocID] = len(merged)
			merged = append(merged, t)
			inserted++
			continue
		}
		v := victim()
		if v < 0 {
			break
		}
		evicted = append(evicted, merged[v])
		delete(pos, merged[v].DocID)
		merged[v] = t
		pos[t.DocID] = v
		inserted++
	}

	sortCandidates(merged)
	sortCandidates(evicted)
	return merged, evicted, inserted
}

// less reports whether a ranks before b.
func less(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}
