package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/crmrag/internal/corpus"
)

func cappingStore(t *testing.T) *corpus.Store {
	return newStore(t,
		doc("t1", corpus.CategoryThing, 1), doc("t2", corpus.CategoryThing, 1),
		doc("t3", corpus.CategoryThing, 1), doc("t4", corpus.CategoryThing, 1),
		doc("t5", corpus.CategoryThing, 1), doc("t6", corpus.CategoryThing, 1),
		doc("n1", corpus.CategoryAppellation, 1), doc("n2", corpus.CategoryAppellation, 1),
		doc("y1", corpus.CategoryType, 1), doc("y2", corpus.CategoryType, 1),
	)
}

func TestCapNonInformative_ReplacesLowestExcess(t *testing.T) {
	// Given a pool of 8 holding 4 non-informative documents
	s := cappingStore(t)
	pool := []Candidate{
		{DocID: "n1", Score: 1.0}, {DocID: "t1", Score: 0.9},
		{DocID: "y1", Score: 0.8}, {DocID: "t2", Score: 0.7},
		{DocID: "n2", Score: 0.6}, {DocID: "t3", Score: 0.5},
		{DocID: "y2", Score: 0.4}, {DocID: "t4", Score: 0.3},
	}
	overflow := []Candidate{{DocID: "t1", Score: 0.25}, {DocID: "t5", Score: 0.2}, {DocID: "n2", Score: 0.15}, {DocID: "t6", Score: 0.1}}

	// When capped at 25%
	out, replaced := capNonInformative(pool, overflow, s, 0.25)

	// Then the two lowest non-informative ones give way to informative backfill
	assert.Equal(t, 2, replaced)
	assert.Len(t, out, 8)
	assert.Equal(t, []string{"n1", "t1", "y1", "t2", "t3", "t4", "t5", "t6"}, candidateIDs(out))
}

func TestCapNonInformative_WithinCap(t *testing.T) {
	s := cappingStore(t)
	pool := []Candidate{{DocID: "t1", Score: 1}, {DocID: "n1", Score: 0.9}, {DocID: "t2", Score: 0.8}, {DocID: "t3", Score: 0.7}}

	out, replaced := capNonInformative(pool, []Candidate{{DocID: "t4", Score: 0.1}}, s, 0.25)
	assert.Zero(t, replaced)
	assert.Equal(t, candidateIDs(pool), candidateIDs(out))
}

func TestCapNonInformative_NoBackfillKeepsPool(t *testing.T) {
	s := cappingStore(t)
	pool := []Candidate{{DocID: "n1", Score: 1}, {DocID: "n2", Score: 0.9}, {DocID: "t1", Score: 0.8}}

	out, replaced := capNonInformative(pool, []Candidate{{DocID: "y1", Score: 0.5}}, s, 0.25)
	assert.Zero(t, replaced)
	assert.Equal(t, []string{"n1", "n2", "t1"}, candidateIDs(out))
}
