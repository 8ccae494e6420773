// Package snapshot loads an artifact into query-ready indices and publishes
// the current set to concurrent readers, replacing it when the artifact
// file changes.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/embed"
	"github.com/Aman-CERP/crmrag/internal/retrieval"
	"github.com/Aman-CERP/crmrag/internal/store"
)

// Options controls how an artifact becomes a Snapshot.
type Options struct {
	Dense store.DenseConfig

	// Embedder, when set, is checked against the artifact dimension and
	// used to build Snapshot.Engine. Without it only the indices are built.
	Embedder      embed.Embedder
	Retrieval     retrieval.Config
	EngineOptions []retrieval.Option

	// PageRank is used when the artifact carries no aggregation rows.
	PageRank corpus.PageRankOptions
}

// DefaultOptions returns options with default index and retrieval tuning
// and no embedder.
func DefaultOptions() Options {
	return Options{
		Dense:     store.DefaultDenseConfig(),
		Retrieval: retrieval.DefaultConfig(),
		PageRank:  corpus.DefaultPageRankOptions(),
	}
}

// Snapshot is an immutable, fully built view of one artifact.
type Snapshot struct {
	Path     string
	Model    string
	LoadedAt time.Time

	Documents   *corpus.Store
	Dense       *store.HNSWDenseIndex
	Lexical     *store.BleveLexicalIndex
	Triples     *corpus.TriplesIndex
	Aggregation *corpus.AggregationIndex

	// Engine is nil when Options.Embedder was not set.
	Engine *retrieval.Engine
}

// Load reads the artifact at path and builds every index over it.
func Load(ctx context.Context, path string, opts Options) (*Snapshot, error) {
	start := time.Now()

	artifact, err := store.ReadArtifact(ctx, path)
	if err != nil {
		return nil, err
	}

	docs, err := corpus.NewStore(artifact.Documents)
	if err != nil {
		return nil, fmt.Errorf("build document store: %w", err)
	}
	if opts.Embedder != nil {
		if err := docs.ValidateDimension(opts.Embedder.Dimensions()); err != nil {
			return nil, err
		}
	}

	dense, err := store.NewHNSWDenseIndex(ctx, docs, opts.Dense)
	if err != nil {
		return nil, fmt.Errorf("build dense index: %w", err)
	}
	lexical, err := store.NewBleveLexicalIndex(ctx, docs.Documents())
	if err != nil {
		return nil, fmt.Errorf("build lexical index: %w", err)
	}

	triples := corpus.NewTriplesIndex(artifact.Triples)

	var agg *corpus.AggregationIndex
	if len(artifact.Aggregation) > 0 {
		agg = corpus.NewAggregationIndex(artifact.Aggregation)
	} else {
		agg = corpus.BuildAggregationIndex(docs, triples, opts.PageRank)
	}

	s := &Snapshot{
		Path:        path,
		Model:       artifact.EmbeddingModel,
		LoadedAt:    time.Now(),
		Documents:   docs,
		Dense:       dense,
		Lexical:     lexical,
		Triples:     triples,
		Aggregation: agg,
	}

	if opts.Embedder != nil {
		s.Engine, err = retrieval.NewEngine(s.Indexes(), opts.Embedder, opts.Retrieval, opts.EngineOptions...)
		if err != nil {
			_ = lexical.Close()
			return nil, err
		}
	}

	slog.Info("snapshot_loaded",
		slog.String("path", path),
		slog.Int("documents", docs.Len()),
		slog.Int("triples", triples.Len()),
		slog.Int("dimension", docs.Dimension()),
		slog.Duration("duration", time.Since(start)))

	return s, nil
}

// Indexes returns the snapshot's structures in the form the engine takes.
func (s *Snapshot) Indexes() retrieval.Indexes {
	return retrieval.Indexes{
		Documents:   s.Documents,
		Dense:       s.Dense,
		Lexical:     s.Lexical,
		Triples:     s.Triples,
		Aggregation: s.Aggregation,
	}
}

// Close releases the lexical index.
func (s *Snapshot) Close() error {
	if s == nil || s.Lexical == nil {
		return nil
	}
	return s.Lexical.Close()
}

// Holder publishes the current snapshot. Readers never block writers.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// NewHolder returns a holder publishing initial.
func NewHolder(initial *Snapshot) *Holder {
	h := &Holder{}
	h.current.Store(initial)
	return h
}

// Current returns the published snapshot.
func (h *Holder) Current() *Snapshot {
	return h.current.Load()
}

// Swap publishes next and returns the snapshot it replaced.
func (h *Holder) Swap(next *Snapshot) *Snapshot {
	return h.current.Swap(next)
}
