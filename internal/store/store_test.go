package store

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/errors"
)

func testCorpus(t *testing.T) *corpus.Store {
	t.Helper()
	s, err := corpus.NewStore([]corpus.Document{
		{ID: "actor:rembrandt", Text: "Rembrandt van Rijn, Dutch painter who carried out many portrait commissions", Embedding: []float32{1, 0, 0}, Category: corpus.CategoryActor},
		{ID: "place:amsterdam", Text: "Amsterdam, city in Holland; Rembrandt lived here", Embedding: []float32{0, 1, 0}, Category: corpus.CategoryPlace},
		{ID: "thing:nightwatch", Text: "The Night Watch, painting produced by Rembrandt", Embedding: []float32{0.9, 0.1, 0}, Category: corpus.CategoryThing},
		{ID: "appellation:nw", Text: "Night Watch appellation", Embedding: []float32{0.8, 0.2, 0.1}, Category: corpus.CategoryAppellation},
		{ID: "event:siege", Text: "Siege of Leiden", Embedding: []float32{0, 0, 1}, Category: corpus.CategoryEvent},
	})
	require.NoError(t, err)
	return s
}

func ids(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"The Night Watch", []string{"the", "night", "watch"}},
		{"P89_falls_within Amsterdam", []string{"p89", "falls", "within", "amsterdam"}},
		{"hasType E21Person", []string{"has", "type", "e21", "person"}},
		{"a b cd", []string{"cd"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("The"))
	assert.True(t, IsStopWord("about"))
	assert.False(t, IsStopWord("rembrandt"))
}

func TestLexicalIndex_Search(t *testing.T) {
	ctx := context.Background()
	idx, err := NewBleveLexicalIndex(ctx, testCorpus(t).Documents())
	require.NoError(t, err)
	defer idx.Close()

	// When: searching for a name that appears in three documents
	hits, err := idx.Search(ctx, "Rembrandt", 10)
	require.NoError(t, err)

	// Then: exactly those documents are returned
	assert.ElementsMatch(t, []string{"actor:rembrandt", "place:amsterdam", "thing:nightwatch"}, ids(hits))
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
	assert.Equal(t, 5, idx.Len())
}

func TestLexicalIndex_SearchFiltered(t *testing.T) {
	ctx := context.Background()
	idx, err := NewBleveLexicalIndex(ctx, testCorpus(t).Documents())
	require.NoError(t, err)
	defer idx.Close()

	hits, err := idx.SearchFiltered(ctx, "Rembrandt night watch", 10, corpus.NewCategorySet(corpus.CategoryActor, corpus.CategoryAppellation))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"actor:rembrandt", "appellation:nw"}, ids(hits))

	none, err := idx.SearchFiltered(ctx, "Rembrandt", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLexicalIndex_EdgeCases(t *testing.T) {
	ctx := context.Background()

	empty, err := NewBleveLexicalIndex(ctx, nil)
	require.NoError(t, err)
	hits, err := empty.Search(ctx, "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	idx, err := NewBleveLexicalIndex(ctx, testCorpus(t).Documents())
	require.NoError(t, err)

	hits, err = idx.Search(ctx, "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(ctx, "Rembrandt", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())
	_, err = idx.Search(ctx, "Rembrandt", 5)
	assert.Error(t, err)
}

func TestDenseIndex_Search(t *testing.T) {
	ctx := context.Background()
	idx, err := NewHNSWDenseIndex(ctx, testCorpus(t), DefaultDenseConfig())
	require.NoError(t, err)

	// When: querying close to the Rembrandt vector
	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)

	// Then: nearest first, scores in [0,1] and decreasing
	require.Len(t, hits, 3)
	assert.Equal(t, "actor:rembrandt", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "thing:nightwatch", hits[1].ID)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, 0.0)
		assert.LessOrEqual(t, h.Score, 1.0)
	}

	all, err := idx.Search(ctx, []float32{1, 0, 0}, 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestDenseIndex_ScoreDecreasesWithDistance(t *testing.T) {
	// Orthogonal vectors have cosine distance 1, so score 0.5.
	assert.InDelta(t, 0.5, distanceToScore(1), 1e-9)
	assert.InDelta(t, 1.0, distanceToScore(0), 1e-9)
	assert.InDelta(t, 0.0, distanceToScore(2), 1e-9)
	assert.Greater(t, distanceToScore(0.3), distanceToScore(0.4))
}

func TestDenseIndex_ZeroQueryScoresZero(t *testing.T) {
	// Given: a query vector with no direction, as a static embedder gives
	// for a question made only of punctuation and stop words
	ctx := context.Background()
	idx, err := NewHNSWDenseIndex(ctx, testCorpus(t), DefaultDenseConfig())
	require.NoError(t, err)

	// When: searching with it
	hits, err := idx.Search(ctx, []float32{0, 0, 0}, 3)

	// Then: every score is 0 and ties fall back to id order
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []string{"actor:rembrandt", "appellation:nw", "event:siege"}, ids(hits))
	for _, h := range hits {
		assert.Zero(t, h.Score)
	}
	assert.Zero(t, distanceToScore(float32(math.NaN())))
}

func TestDenseIndex_SearchFiltered(t *testing.T) {
	ctx := context.Background()
	idx, err := NewHNSWDenseIndex(ctx, testCorpus(t), DefaultDenseConfig())
	require.NoError(t, err)

	hits, err := idx.SearchFiltered(ctx, []float32{1, 0, 0}, 5, corpus.NewCategorySet(corpus.CategoryPlace, corpus.CategoryEvent))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"place:amsterdam", "event:siege"}, ids(hits))
}

func TestDenseIndex_GraphPathMatchesExactScan(t *testing.T) {
	// Given: the same corpus indexed with and without the exact fallback
	ctx := context.Background()
	s := testCorpus(t)
	exact, err := NewHNSWDenseIndex(ctx, s, DefaultDenseConfig())
	require.NoError(t, err)
	cfg := DefaultDenseConfig()
	cfg.ExactThreshold = 0
	graph, err := NewHNSWDenseIndex(ctx, s, cfg)
	require.NoError(t, err)

	// Then: the top hit agrees on a tiny corpus
	query := []float32{0.1, 0.95, 0}
	want, err := exact.Search(ctx, query, 1)
	require.NoError(t, err)
	got, err := graph.Search(ctx, query, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want[0].ID, got[0].ID)

	filtered, err := graph.SearchFiltered(ctx, query, 1, corpus.NewCategorySet(corpus.CategoryEvent))
	require.NoError(t, err)
	assert.Equal(t, []string{"event:siege"}, ids(filtered))
}

func TestDenseIndex_EmptyAndMismatch(t *testing.T) {
	ctx := context.Background()
	empty, err := corpus.NewStore(nil)
	require.NoError(t, err)
	idx, err := NewHNSWDenseIndex(ctx, empty, DefaultDenseConfig())
	require.NoError(t, err)

	hits, err := idx.Search(ctx, []float32{1, 2}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	full, err := NewHNSWDenseIndex(ctx, testCorpus(t), DefaultDenseConfig())
	require.NoError(t, err)
	_, err = full.Search(ctx, []float32{1, 0}, 5)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDimensionMismatch, errors.GetCode(err))
}

func TestDenseIndex_ConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultDenseConfig()
	cfg.ExactThreshold = 0
	idx, err := NewHNSWDenseIndex(ctx, testCorpus(t), cfg)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hits, err := idx.Search(ctx, []float32{0, 0, 1}, 2)
				assert.NoError(t, err)
				assert.NotEmpty(t, hits)
			}
		}()
	}
	wg.Wait()
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 1}, []float32{2, 2}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 0}))
}

func TestEmbeddingCodec(t *testing.T) {
	v := []float32{0.25, -1.5, float32(math.Pi)}
	got, err := DecodeEmbedding(EncodeEmbedding(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = DecodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestArtifact_WriteThenRead(t *testing.T) {
	// Given: an artifact written to disk
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "corpus.db")
	in := &Artifact{
		EmbeddingModel: "static-3",
		Documents: []corpus.Document{
			{ID: "b", Text: "B", Embedding: []float32{0, 1}, Category: corpus.CategoryPlace, RawTripleCount: 3},
			{ID: "a", Text: "A", Embedding: []float32{1, 0}, Category: corpus.CategoryActor, RawTripleCount: 2500},
		},
		Triples: []corpus.Triple{
			{Subject: "a", Predicate: "P74_has_residence", Object: "b", ObjectLabel: "Bee"},
		},
		Aggregation: []corpus.AggregationEntry{{DocID: "a", Category: corpus.CategoryActor, Centrality: 0.7}},
	}
	require.NoError(t, WriteArtifact(ctx, path, in))

	// When: reading it back
	out, err := ReadArtifact(ctx, path)
	require.NoError(t, err)

	// Then: contents survive, documents ordered by id, no temp file left behind
	assert.Equal(t, "static-3", out.EmbeddingModel)
	require.Len(t, out.Documents, 2)
	assert.Equal(t, "a", out.Documents[0].ID)
	assert.Equal(t, 2500, out.Documents[0].RawTripleCount)
	assert.Equal(t, corpus.CategoryActor, out.Documents[0].Category)
	assert.Equal(t, []float32{1, 0}, out.Documents[0].Embedding)
	assert.Equal(t, in.Triples, out.Triples)
	assert.Equal(t, in.Aggregation, out.Aggregation)

	_, statErr := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(statErr))

	// And: rewriting replaces rather than appends
	in.Triples = nil
	require.NoError(t, WriteArtifact(ctx, path, in))
	out, err = ReadArtifact(ctx, path)
	require.NoError(t, err)
	assert.Empty(t, out.Triples)
}

func TestReadArtifact_Missing(t *testing.T) {
	_, err := ReadArtifact(context.Background(), filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeArtifactNotFound, errors.GetCode(err))
}
