package retrieval

import (
	"math"

	"github.com/Aman-CERP/crmrag/internal/corpus"
)

// capNonInformative limits Appellation and Type documents to capFraction of
// the pool. Excess ones are replaced lowest-score first by the best
// informative candidates from overflow. Without a replacement the
// document stays, so the pool never shrinks. Returns the new pool and the
// number of replaced documents.
func capNonInformative(pool, overflow []Candidate, docs *corpus.Store, capFraction float64) ([]Candidate, int) {
	limit := int(math.Floor(capFraction * float64(len(pool))))

	var nonInformative []int
	for i, c := range pool {
		if d, ok := docs.Get(c.DocID); ok && !d.Category.Informative() {
			nonInformative = append(nonInformative, i)
		}
	}
	excess := len(nonInformative) - limit
	if excess <= 0 {
		return pool, 0
	}

	inPool := make(map[string]struct{}, len(pool))
	for _, c := range pool {
		inPool[c.DocID] = struct{}{}
	}
	var backfill []Candidate
	for _, c := range overflow {
		if len(backfill) == excess {
			break
		}
		if _, dup := inPool[c.DocID]; dup {
			continue
		}
		d, ok := docs.Get(c.DocID)
		if !ok || !d.Category.Informative() {
			continue
		}
		inPool[c.DocID] = struct{}{}
		backfill = append(backfill, c)
	}

	out := append(make([]Candidate, 0, len(pool)), pool...)
	// Pool is sorted, so the last non-informative indices are the lowest.
	for i, c := range backfill {
		out[nonInformative[len(nonInformative)-1-i]] = c
	}
	sortCandidates(out)
	return out, len(backfill)
}
