package corpus

import "sort"

// AggregationEntry ranks one document by structural centrality.
type AggregationEntry struct {
	DocID      string   `json:"doc_id"`
	Category   Category `json:"category"`
	Centrality float64  `json:"centrality"`
}

// AggregationIndex holds per-category centrality rankings and entity counts.
type AggregationIndex struct {
	byCategory [numCategories][]AggregationEntry
	total      int
}

// NewAggregationIndex sorts entries per category by centrality descending,
// then id ascending. Entries with invalid categories are dropped.
func NewAggregationIndex(entries []AggregationEntry) *AggregationIndex {
	a := &AggregationIndex{}
	for _, e := range entries {
		if !e.Category.Valid() || e.DocID == "" {
			continue
		}
		a.byCategory[e.Category] = append(a.byCategory[e.Category], e)
		a.total++
	}
	for c := range a.byCategory {
		sortEntries(a.byCategory[c])
	}
	return a
}

func sortEntries(entries []AggregationEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Centrality != entries[j].Centrality {
			return entries[i].Centrality > entries[j].Centrality
		}
		return entries[i].DocID < entries[j].DocID
	})
}

// Top returns up to limit entries drawn from cats, most central first.
func (a *AggregationIndex) Top(cats CategorySet, limit int) []AggregationEntry {
	if a == nil || limit <= 0 {
		return nil
	}
	var merged []AggregationEntry
	for _, c := range cats.Slice() {
		list := a.byCategory[c]
		if len(list) > limit {
			list = list[:limit]
		}
		merged = append(merged, list...)
	}
	sortEntries(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// EntityCount returns the number of ranked entities.
func (a *AggregationIndex) EntityCount() int {
	if a == nil {
		return 0
	}
	return a.total
}

// CategoryCount returns the number of ranked entities in c.
func (a *AggregationIndex) CategoryCount(c Category) int {
	if a == nil || !c.Valid() {
		return 0
	}
	return len(a.byCategory[c])
}

// Entries returns every entry grouped by category in declaration order.
func (a *AggregationIndex) Entries() []AggregationEntry {
	if a == nil {
		return nil
	}
	out := make([]AggregationEntry, 0, a.total)
	for c := range a.byCategory {
		out = append(out, a.byCategory[c]...)
	}
	return out
}
