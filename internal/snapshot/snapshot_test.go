package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/embed"
	"github.com/Aman-CERP/crmrag/internal/errors"
	"github.com/Aman-CERP/crmrag/internal/retrieval"
	"github.com/Aman-CERP/crmrag/internal/store"
)

func testArtifact(extra ...corpus.Document) *store.Artifact {
	docs := []corpus.Document{
		{ID: "nightwatch", Text: "The Night Watch painting by Rembrandt", Category: corpus.CategoryThing, Embedding: []float32{1, 0, 0, 0}},
		{ID: "rembrandt", Text: "Rembrandt van Rijn Dutch painter", Category: corpus.CategoryActor, Embedding: []float32{0, 1, 0, 0}},
		{ID: "amsterdam", Text: "Amsterdam city in the Netherlands", Category: corpus.CategoryPlace, Embedding: []float32{0, 0, 1, 0}},
	}
	return &store.Artifact{
		EmbeddingModel: "static-4",
		Documents:      append(docs, extra...),
		Triples: []corpus.Triple{
			{Subject: "nightwatch", Predicate: "P14_carried_out_by", Object: "rembrandt"},
			{Subject: "nightwatch", Predicate: "P55_has_current_location", Object: "amsterdam"},
		},
	}
}

func writeArtifact(t *testing.T, path string, a *store.Artifact) {
	t.Helper()
	require.NoError(t, store.WriteArtifact(context.Background(), path, a))
}

func TestLoad_BuildsIndicesAndEngine(t *testing.T) {
	// Given an artifact without aggregation rows
	path := filepath.Join(t.TempDir(), "corpus.db")
	writeArtifact(t, path, testArtifact())

	opts := DefaultOptions()
	opts.Embedder = embed.NewStaticEmbedder(4)

	// When it is loaded
	snap, err := Load(context.Background(), path, opts)
	require.NoError(t, err)
	defer func() { _ = snap.Close() }()

	// Then every index covers the corpus
	assert.Equal(t, 3, snap.Documents.Len())
	assert.Equal(t, 3, snap.Dense.Len())
	assert.Equal(t, 3, snap.Lexical.Len())
	assert.Equal(t, 2, snap.Triples.Len())
	assert.Equal(t, "static-4", snap.Model)

	// And centrality was computed since the artifact had none
	assert.Equal(t, 3, snap.Aggregation.EntityCount())
	top := snap.Aggregation.Top(corpus.NewCategorySet(corpus.CategoryThing), 1)
	require.Len(t, top, 1)
	assert.Equal(t, "nightwatch", top[0].DocID)

	// And the engine answers queries
	require.NotNil(t, snap.Engine)
	res, err := snap.Engine.Retrieve(context.Background(), retrieval.Request{Query: "Night Watch", K: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Documents)
}

func TestLoad_WithoutEmbedderSkipsEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.db")
	writeArtifact(t, path, testArtifact())

	snap, err := Load(context.Background(), path, DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = snap.Close() }()

	assert.Nil(t, snap.Engine)
	assert.Equal(t, 3, snap.Indexes().Documents.Len())
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.db")
	writeArtifact(t, path, testArtifact())

	t.Run("missing artifact", func(t *testing.T) {
		_, err := Load(context.Background(), filepath.Join(dir, "missing.db"), DefaultOptions())
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeArtifactNotFound, errors.GetCode(err))
	})

	t.Run("embedder dimension mismatch", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Embedder = embed.NewStaticEmbedder(8)

		_, err := Load(context.Background(), path, opts)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeDimensionMismatch, errors.GetCode(err))
	})
}

func TestHolder_Swap(t *testing.T) {
	first := &Snapshot{Path: "a"}
	second := &Snapshot{Path: "b"}

	h := NewHolder(first)
	assert.Same(t, first, h.Current())

	prev := h.Swap(second)
	assert.Same(t, first, prev)
	assert.Same(t, second, h.Current())
}

func newTestWatcher(h *Holder, path string, load LoadFunc) *Watcher {
	w := NewWatcher(h, path, load)
	w.SetDebounce(20 * time.Millisecond)
	w.SetGrace(0)
	w.reloaded = make(chan error, 16)
	return w
}

// awaitReload rewrites the artifact until the watcher reports a reload,
// since the watch may not be registered when the first write lands.
func awaitReload(t *testing.T, w *Watcher, touch func()) error {
	t.Helper()
	var got error
	require.Eventually(t, func() bool {
		touch()
		select {
		case got = <-w.reloaded:
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 10*time.Millisecond)
	return got
}

func TestWatcher_ReloadsOnArtifactReplace(t *testing.T) {
	// Given a holder serving the initial artifact
	path := filepath.Join(t.TempDir(), "corpus.db")
	writeArtifact(t, path, testArtifact())

	load := func(ctx context.Context) (*Snapshot, error) {
		return Load(ctx, path, DefaultOptions())
	}
	initial, err := load(context.Background())
	require.NoError(t, err)
	h := NewHolder(initial)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := newTestWatcher(h, path, load)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// When the artifact is replaced with a larger corpus
	bigger := testArtifact(corpus.Document{
		ID: "syndics", Text: "The Syndics of the Drapers Guild", Category: corpus.CategoryThing,
		Embedding: []float32{0.9, 0.1, 0, 0},
	})
	reloadErr := awaitReload(t, w, func() {
		assert.NoError(t, store.WriteArtifact(context.Background(), path, bigger))
	})

	// Then the holder publishes the new snapshot
	require.NoError(t, reloadErr)
	assert.NotSame(t, initial, h.Current())
	assert.Equal(t, 4, h.Current().Documents.Len())

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_FailedReloadKeepsPrevious(t *testing.T) {
	// Given a watcher whose loader always fails
	path := filepath.Join(t.TempDir(), "corpus.db")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	initial := &Snapshot{Path: path}
	h := NewHolder(initial)

	var calls atomic.Int32
	load := func(context.Context) (*Snapshot, error) {
		calls.Add(1)
		return nil, fmt.Errorf("corrupt artifact")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := newTestWatcher(h, path, load)
	go func() { _ = w.Run(ctx) }()

	// When the file changes
	reloadErr := awaitReload(t, w, func() {
		assert.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	})

	// Then the error is reported and the previous snapshot stays published
	require.Error(t, reloadErr)
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	assert.Same(t, initial, h.Current())
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.db")
	w := NewWatcher(NewHolder(nil), path, nil)

	assert.True(t, w.relevant(fsEvent(path, "write")))
	assert.True(t, w.relevant(fsEvent(path, "create")))
	assert.False(t, w.relevant(fsEvent(filepath.Join(dir, "corpus.db.lock"), "write")))
	assert.False(t, w.relevant(fsEvent(path, "chmod")))
}
