package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/crmrag/internal/corpus"
)

func doc(id string, cat corpus.Category, vec ...float32) corpus.Document {
	return corpus.Document{ID: id, Text: id, Embedding: vec, Category: cat}
}

func newStore(t *testing.T, docs ...corpus.Document) *corpus.Store {
	t.Helper()
	s, err := corpus.NewStore(docs)
	require.NoError(t, err)
	return s
}

func cands(ids ...string) []Candidate {
	out := make([]Candidate, len(ids))
	for i, id := range ids {
		out[i] = Candidate{DocID: id, Score: 1 - float64(i)*0.1}
	}
	return out
}

func candidateIDs(c []Candidate) []string {
	ids := make([]string, len(c))
	for i, x := range c {
		ids[i] = x.DocID
	}
	return ids
}

// vectorEmbedder returns fixed vectors per text.
type vectorEmbedder struct {
	dims    int
	vectors map[string][]float32
	err     error
}

func (v *vectorEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v.err != nil {
		return nil, v.err
	}
	if vec, ok := v.vectors[text]; ok {
		return vec, nil
	}
	return nil, fmt.Errorf("no vector for %q", text)
}

func (v *vectorEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := v.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (v *vectorEmbedder) Dimensions() int   { return v.dims }
func (v *vectorEmbedder) ModelName() string { return "fixed" }
func (v *vectorEmbedder) Close() error      { return nil }
