package retrieval

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/crmrag/internal/analyze"
	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/errors"
	"github.com/Aman-CERP/crmrag/internal/store"
)

const (
	qAmsterdam   = "paintings in amsterdam"
	qWhoPainted  = "Who painted it?"
	qVague       = "What about him?"
	qPivot       = "Aside from the Night Watch, which paintings are in Amsterdam?"
	historyTurn  = "Tell me about the Night Watch"
	ctxVague     = historyTurn + " " + qVague
	ctxWhoPaint  = historyTurn + " " + qWhoPainted
	actorID      = "actor:rembrandt"
	nightWatchID = "thing:nightwatch"
)

type fixture struct {
	docs     *corpus.Store
	dense    *store.HNSWDenseIndex
	lexical  *store.BleveLexicalIndex
	triples  *corpus.TriplesIndex
	agg      *corpus.AggregationIndex
	embedder *vectorEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	docs := newStore(t,
		corpus.Document{ID: nightWatchID, Category: corpus.CategoryThing, Embedding: []float32{1, 0, 0},
			Text: "The Night Watch, group portrait painted in Amsterdam"},
		corpus.Document{ID: "thing:syndics", Category: corpus.CategoryThing, Embedding: []float32{0.9, 0.1, 0},
			Text: "Syndics of the Drapers Guild, portrait of cloth merchants"},
		corpus.Document{ID: "thing:bride", Category: corpus.CategoryThing, Embedding: []float32{0.8, 0.2, 0},
			Text: "The Jewish Bride, double portrait"},
		corpus.Document{ID: "thing:bathsheba", Category: corpus.CategoryThing, Embedding: []float32{0.7, 0.3, 0},
			Text: "Bathsheba at Her Bath, oil on canvas"},
		corpus.Document{ID: "place:amsterdam", Category: corpus.CategoryPlace, Embedding: []float32{0.1, 0.9, 0},
			Text: "Amsterdam, capital city of the Netherlands"},
		corpus.Document{ID: "name:nightwatch", Category: corpus.CategoryAppellation, Embedding: []float32{0.95, 0.05, 0},
			Text: "Night Watch title"},
		corpus.Document{ID: actorID, Category: corpus.CategoryActor, Embedding: []float32{0, 0, 1},
			Text: "Van Rijn, Dutch master of light", RawTripleCount: 40},
	)

	triples := corpus.NewTriplesIndex([]corpus.Triple{
		{Subject: nightWatchID, Predicate: crm + "P55_has_current_location", Object: "place:amsterdam", ObjectLabel: "Amsterdam"},
		{Subject: nightWatchID, Predicate: crm + "P1_is_identified_by", Object: "name:nightwatch"},
		{Subject: "event:prod-nw", Predicate: crm + "P108_has_produced", Object: nightWatchID},
		{Subject: "event:prod-nw", Predicate: crm + "P14_carried_out_by", Object: actorID},
		{Subject: "event:prod-bride", Predicate: crm + "P108_has_produced", Object: "thing:bride"},
		{Subject: "event:prod-bride", Predicate: crm + "P14_carried_out_by", Object: actorID},
		{Subject: "thing:syndics", Predicate: crm + "P55_has_current_location", Object: "place:amsterdam"},
		{Subject: "ghost:a", Predicate: crm + "P89_falls_within", Object: "ghost:b"},
	})

	agg := corpus.NewAggregationIndex([]corpus.AggregationEntry{
		{DocID: actorID, Category: corpus.CategoryActor, Centrality: 0.4},
		{DocID: nightWatchID, Category: corpus.CategoryThing, Centrality: 0.3},
		{DocID: "place:amsterdam", Category: corpus.CategoryPlace, Centrality: 0.3},
	})

	dense, err := store.NewHNSWDenseIndex(ctx, docs, store.DefaultDenseConfig())
	require.NoError(t, err)
	lexical, err := store.NewBleveLexicalIndex(ctx, docs.Documents())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	return &fixture{
		docs:    docs,
		dense:   dense,
		lexical: lexical,
		triples: triples,
		agg:     agg,
		embedder: &vectorEmbedder{dims: 3, vectors: map[string][]float32{
			qAmsterdam:  {1, 0, 0},
			qWhoPainted: {0.9, 0.1, 0},
			qPivot:      {0.5, 0.5, 0},
			ctxVague:    {0.95, 0, 0.05},
			ctxWhoPaint: {0.8, 0, 0.2},
		}},
	}
}

func (f *fixture) indexes() Indexes {
	return Indexes{Documents: f.docs, Dense: f.dense, Lexical: f.lexical, Triples: f.triples, Aggregation: f.agg}
}

func (f *fixture) engine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(f.indexes(), f.embedder, DefaultConfig(), opts...)
	require.NoError(t, err)
	return e
}

type recorder struct {
	mu       sync.Mutex
	statuses []string
	failures map[Channel]int
}

func (r *recorder) ObserveRetrieval(_ analyze.QueryType, status string, _ time.Duration, _, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recorder) ObserveChannelFailure(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures == nil {
		r.failures = map[Channel]int{}
	}
	r.failures[ch]++
}

type failingLexical struct{ store.LexicalIndex }

func (failingLexical) Search(context.Context, string, int) ([]store.Hit, error) {
	return nil, fmt.Errorf("lexical index offline")
}

func (failingLexical) SearchFiltered(context.Context, string, int, corpus.CategorySet) ([]store.Hit, error) {
	return nil, fmt.Errorf("lexical index offline")
}

type failingAnalyzer struct{}

func (failingAnalyzer) Analyze(context.Context, string, []string) (analyze.Analysis, error) {
	return analyze.Analysis{}, fmt.Errorf("llm timeout")
}

func enumerationOf(cats ...corpus.Category) *analyze.Analysis {
	return &analyze.Analysis{Type: analyze.Enumeration, Targets: corpus.NewCategorySet(cats...)}
}

func TestEngine_TypeChannelSurfacesCentralActor(t *testing.T) {
	// Given an Actor that neither channel ranks within a pool of three
	f := newFixture(t)
	e := f.engine(t)
	ctx := context.Background()
	const poolSize = 3

	denseHits, err := f.dense.Search(ctx, f.embedder.vectors[qAmsterdam], poolSize)
	require.NoError(t, err)
	lexHits, err := f.lexical.Search(ctx, qAmsterdam, poolSize)
	require.NoError(t, err)
	for _, h := range append(denseHits, lexHits...) {
		require.NotEqual(t, actorID, h.ID)
	}

	// When an enumeration over Actors builds its pool
	out, stats, err := e.branch(ctx, qAmsterdam, *enumerationOf(corpus.CategoryActor), poolSize)

	// Then the actor enters through the type channel
	require.NoError(t, err)
	pool := out.pool
	assert.Len(t, pool, poolSize)
	assert.Contains(t, candidateIDs(pool), actorID)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.PageRankHits)
	for _, c := range pool {
		if c.DocID == actorID {
			assert.Contains(t, []Channel{ChannelType, ChannelPageRank}, c.Channel)
		}
	}

	// And it survives selection when the pool is taken whole
	res, err := e.Retrieve(ctx, Request{Query: qAmsterdam, K: 1, Analysis: enumerationOf(corpus.CategoryActor)})
	require.NoError(t, err)
	assert.Equal(t, poolSize, res.Diagnostics.PoolSize)
	assert.Equal(t, 2, res.Diagnostics.Reserved)
}

func TestEngine_RetrieveIsDeterministic(t *testing.T) {
	// Given two engines built independently from the same corpus
	req := Request{Query: qAmsterdam, K: 4, Analysis: enumerationOf(corpus.CategoryActor, corpus.CategoryPlace)}
	first, err := newFixture(t).engine(t).Retrieve(context.Background(), req)
	require.NoError(t, err)

	// When the same request runs on the second build
	second, err := newFixture(t).engine(t).Retrieve(context.Background(), req)
	require.NoError(t, err)

	// Then selection, scores and enrichment are identical
	require.Len(t, first.Documents, 4)
	assert.Equal(t, first.IDs(), second.IDs())
	for i := range first.Documents {
		assert.Equal(t, first.Documents[i].Score, second.Documents[i].Score)
		assert.Equal(t, first.Documents[i].Relevance, second.Documents[i].Relevance)
		assert.Equal(t, first.Documents[i].Channel, second.Documents[i].Channel)
	}
	assert.Equal(t, first.Triples, second.Triples)
	assert.NotEqual(t, first.QueryID, second.QueryID)
}

func TestEngine_RepeatedRetrieveIsStable(t *testing.T) {
	e := newFixture(t).engine(t)
	req := Request{Query: qWhoPainted, K: 3, History: []string{historyTurn}}

	first, err := e.Retrieve(context.Background(), req)
	require.NoError(t, err)
	second, err := e.Retrieve(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.IDs(), second.IDs())
	assert.Equal(t, first.Triples, second.Triples)
}

func TestEngine_ConcurrentQueries(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	want, err := e.Retrieve(context.Background(), Request{Query: qAmsterdam, K: 3})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.Retrieve(context.Background(), Request{Query: qAmsterdam, K: 3})
			if assert.NoError(t, err) {
				results[i] = res.IDs()
			}
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, want.IDs(), got)
	}
}

func TestEngine_SelectionBoundsAndEnrichment(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)

	res, err := e.Retrieve(context.Background(), Request{Query: qAmsterdam, K: 3})
	require.NoError(t, err)

	require.Len(t, res.Documents, 3)
	ids := res.IDs()
	assert.Equal(t, nightWatchID, ids[0])
	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}

	// Every enrichment triple touches a selected document, and all of the
	// first pick's triples are present.
	require.NotEmpty(t, res.Triples)
	for _, tr := range res.Triples {
		assert.True(t, seen[tr.Subject] || seen[tr.Object], "%+v", tr)
	}
	for _, tr := range f.triples.Touching(nightWatchID) {
		assert.Contains(t, res.Triples, tr)
	}
}

func TestEngine_EmptyCorpus(t *testing.T) {
	ctx := context.Background()
	docs := newStore(t)
	dense, err := store.NewHNSWDenseIndex(ctx, docs, store.DefaultDenseConfig())
	require.NoError(t, err)
	lexical, err := store.NewBleveLexicalIndex(ctx, docs.Documents())
	require.NoError(t, err)
	defer func() { _ = lexical.Close() }()

	rec := &recorder{}
	e, err := NewEngine(Indexes{Documents: docs, Dense: dense, Lexical: lexical}, &vectorEmbedder{dims: 8}, DefaultConfig(), WithMetrics(rec))
	require.NoError(t, err)

	res, err := e.Retrieve(ctx, Request{Query: "anything at all"})
	require.NoError(t, err)
	assert.Empty(t, res.Documents)
	assert.Empty(t, res.Triples)
	assert.Equal(t, AnalysisDefault, res.Diagnostics.AnalysisSource)
	assert.Equal(t, DefaultSpecificK, res.Diagnostics.K)
	assert.Equal(t, []string{StatusEmpty}, rec.statuses)
}

func TestEngine_OneChannelFailingDegrades(t *testing.T) {
	// Given an embedder that is down
	f := newFixture(t)
	f.embedder.err = errors.NetworkError("ollama down", nil)
	rec := &recorder{}
	e := f.engine(t, WithMetrics(rec))

	// When retrieving
	res, err := e.Retrieve(context.Background(), Request{Query: qAmsterdam, K: 2})

	// Then lexical results still come back
	require.NoError(t, err)
	assert.NotEmpty(t, res.Documents)
	require.NotNil(t, res.Diagnostics.Raw)
	assert.Zero(t, res.Diagnostics.Raw.DenseHits)
	assert.NotZero(t, res.Diagnostics.Raw.LexicalHits)
	require.Len(t, res.Diagnostics.Raw.Errors, 1)
	assert.Contains(t, res.Diagnostics.Raw.Errors[0], "dense")
	assert.Equal(t, 1, rec.failures[ChannelDense])
}

func TestEngine_BothChannelsFailing(t *testing.T) {
	f := newFixture(t)
	f.embedder.err = fmt.Errorf("embedder down")
	idx := f.indexes()
	idx.Lexical = failingLexical{f.lexical}
	rec := &recorder{}
	e, err := NewEngine(idx, f.embedder, DefaultConfig(), WithMetrics(rec))
	require.NoError(t, err)

	res, err := e.Retrieve(context.Background(), Request{Query: qAmsterdam})

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.IsRetrievalUnavailable(err))
	assert.Equal(t, errors.ErrCodeRetrievalUnavailable, errors.GetCode(err))
	assert.Equal(t, []string{StatusUnavailable}, rec.statuses)
}

func TestEngine_CancelledContext(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Retrieve(ctx, Request{Query: qAmsterdam})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_Analysis(t *testing.T) {
	f := newFixture(t)

	t.Run("analyzer failure falls back to default", func(t *testing.T) {
		e := f.engine(t, WithAnalyzer(failingAnalyzer{}))
		res, err := e.Retrieve(context.Background(), Request{Query: qAmsterdam})
		require.NoError(t, err)
		assert.Equal(t, AnalysisDefault, res.Diagnostics.AnalysisSource)
		assert.Equal(t, analyze.Default(), res.Diagnostics.Analysis)
	})

	t.Run("analyzer result drives k", func(t *testing.T) {
		e := f.engine(t, WithAnalyzer(analyze.NewPatternAnalyzer()))
		res, err := e.Retrieve(context.Background(), Request{Query: qAmsterdam})
		require.NoError(t, err)
		assert.Equal(t, AnalysisFromAnalyzer, res.Diagnostics.AnalysisSource)
		assert.Equal(t, analyze.Specific, res.Diagnostics.Analysis.Type)
		assert.True(t, res.Diagnostics.Analysis.Targets.Has(corpus.CategoryThing))
		assert.Equal(t, DefaultSpecificK, res.Diagnostics.K)
	})

	t.Run("request analysis wins", func(t *testing.T) {
		e := f.engine(t, WithAnalyzer(failingAnalyzer{}))
		res, err := e.Retrieve(context.Background(), Request{Query: qAmsterdam, Analysis: enumerationOf(corpus.CategoryPlace)})
		require.NoError(t, err)
		assert.Equal(t, AnalysisFromRequest, res.Diagnostics.AnalysisSource)
		assert.Equal(t, DefaultEnumerationK, res.Diagnostics.K)
		assert.Equal(t, 60, res.Diagnostics.PoolSize)
	})
}

func TestEngine_FollowUpBranches(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	history := []string{historyTurn}

	tests := []struct {
		name           string
		query          string
		wantContextual bool
		wantRaw        bool
		wantVague      bool
		wantPivot      bool
	}{
		{"no history", qAmsterdam, false, true, false, false},
		{"vague follow-up skips raw", qVague, true, false, true, false},
		{"pivot skips context", qPivot, false, true, false, true},
		{"content follow-up runs both", qWhoPainted, true, true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{Query: tt.query, K: 3, History: history}
			if tt.name == "no history" {
				req.History = nil
			}
			res, err := e.Retrieve(context.Background(), req)
			require.NoError(t, err)

			d := res.Diagnostics
			assert.Equal(t, tt.wantContextual, d.Contextual != nil)
			assert.Equal(t, tt.wantRaw, d.Raw != nil)
			assert.Equal(t, tt.wantVague, d.Vague)
			assert.Equal(t, tt.wantPivot, d.Pivot)
			if d.Contextual != nil {
				assert.Contains(t, d.Contextual.Query, historyTurn)
			}
			assert.NotEmpty(t, res.Documents)
			assert.LessOrEqual(t, len(res.Documents), 3)
		})
	}
}

func TestEngine_FollowUpMergeRespectsNonInformativeCap(t *testing.T) {
	// Given Appellations close to each branch's query vector and Things
	// ranked in opposite orders by the two branches
	ctx := context.Background()
	const (
		query   = "which workshop produced the altarpiece"
		earlier = "tell me about the ghent panels"
	)
	contextual := contextualize([]string{earlier}, query, DefaultConfig().ContextTurns)

	var docs []corpus.Document
	for i := 0; i < 3; i++ {
		docs = append(docs,
			doc(fmt.Sprintf("n%d", i), corpus.CategoryAppellation, 1, 0, 0.01*float32(i)),
			doc(fmt.Sprintf("m%d", i), corpus.CategoryAppellation, 0, 1, 0.01*float32(i)))
	}
	for i := 0; i < 20; i++ {
		docs = append(docs, doc(fmt.Sprintf("t%02d", i), corpus.CategoryThing,
			0.1+0.01*float32(i), 0.29-0.01*float32(i), 1))
	}
	st := newStore(t, docs...)
	dense, err := store.NewHNSWDenseIndex(ctx, st, store.DefaultDenseConfig())
	require.NoError(t, err)
	lexical, err := store.NewBleveLexicalIndex(ctx, st.Documents())
	require.NoError(t, err)
	defer func() { _ = lexical.Close() }()

	emb := &vectorEmbedder{dims: 3, vectors: map[string][]float32{
		contextual: {1, 0, 0},
		query:      {0, 1, 0},
	}}
	e, err := NewEngine(Indexes{Documents: st, Dense: dense, Lexical: lexical}, emb, DefaultConfig())
	require.NoError(t, err)

	// When a follow-up runs both branches with a pool of twelve
	const poolSize = 12
	var diag Diagnostics
	pool, err := e.candidatePool(ctx, query, []string{earlier}, analyze.Default(), poolSize, &diag)

	// Then the merged pool keeps the non-informative share within the cap
	require.NoError(t, err)
	require.NotNil(t, diag.Contextual)
	require.NotNil(t, diag.Raw)
	assert.Len(t, pool, poolSize)
	nonInformative := 0
	for _, c := range pool {
		d, ok := st.Get(c.DocID)
		require.True(t, ok)
		if !d.Category.Informative() {
			nonInformative++
		}
	}
	limit := int(DefaultConfig().NonInformativeCap * poolSize)
	assert.LessOrEqual(t, nonInformative, limit, "pool %v", candidateIDs(pool))
	assert.Equal(t, 6-limit, diag.MergeCapped)
}

func TestEngine_InvalidRequests(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)

	_, err := e.Retrieve(context.Background(), Request{Query: "   "})
	assert.Equal(t, errors.ErrCodeQueryEmpty, errors.GetCode(err))

	_, err = e.Retrieve(context.Background(), Request{Query: qAmsterdam, K: -1})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestNewEngine_Validation(t *testing.T) {
	f := newFixture(t)

	t.Run("dimension mismatch is fatal at startup", func(t *testing.T) {
		_, err := NewEngine(f.indexes(), &vectorEmbedder{dims: 4}, DefaultConfig())
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeDimensionMismatch, errors.GetCode(err))
		assert.True(t, errors.IsFatal(err))
	})

	t.Run("nil dependencies", func(t *testing.T) {
		idx := f.indexes()
		idx.Dense = nil
		_, err := NewEngine(idx, f.embedder, DefaultConfig())
		assert.ErrorIs(t, err, ErrNilDependency)

		_, err = NewEngine(f.indexes(), nil, DefaultConfig())
		assert.ErrorIs(t, err, ErrNilDependency)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Alpha = 1.5
		cfg.MaxPoolSize = 0
		_, err := NewEngine(f.indexes(), f.embedder, cfg)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
		assert.Contains(t, err.Error(), "alpha")
		assert.Contains(t, err.Error(), "max_pool_size")
	})

	t.Run("config is copied", func(t *testing.T) {
		cfg := DefaultConfig()
		e, err := NewEngine(f.indexes(), f.embedder, cfg)
		require.NoError(t, err)
		cfg.CategoryModifiers[corpus.CategoryThing] = -1
		assert.Zero(t, e.Config().CategoryModifiers[corpus.CategoryThing])
	})
}
