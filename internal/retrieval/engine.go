package retrieval

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/crmrag/internal/analyze"
	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/embed"
	"github.com/Aman-CERP/crmrag/internal/errors"
	"github.com/Aman-CERP/crmrag/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = stderrors.New("nil dependency")

// Retrieval outcome labels reported to the Recorder.
const (
	StatusOK          = "ok"
	StatusEmpty       = "empty"
	StatusUnavailable = "unavailable"
	StatusInvalid     = "invalid"
)

// Recorder receives per-query measurements. Implementations must be safe
// for concurrent use.
type Recorder interface {
	ObserveRetrieval(queryType analyze.QueryType, status string, latency time.Duration, poolSize, selected int)
	ObserveChannelFailure(channel Channel)
}

// Indexes are the read-only structures a query runs against.
type Indexes struct {
	Documents   *corpus.Store
	Dense       store.DenseIndex
	Lexical     store.LexicalIndex
	Triples     *corpus.TriplesIndex
	Aggregation *corpus.AggregationIndex
}

// Engine answers retrieval requests. It is immutable after construction
// and safe for concurrent use; every query owns its pool and matrix.
type Engine struct {
	idx      Indexes
	embedder embed.Embedder
	analyzer analyze.Analyzer // Optional; nil means default analysis
	metrics  Recorder         // Optional
	cfg      Config
	fuser    *Fuser
	weights  PredicateWeights
	selector *Selector
}

// Option configures the engine.
type Option func(*Engine)

// WithAnalyzer sets the query analyzer used when a request carries no
// analysis.
func WithAnalyzer(a analyze.Analyzer) Option {
	return func(e *Engine) {
		e.analyzer = a
	}
}

// WithMetrics sets a recorder for query measurements.
func WithMetrics(r Recorder) Option {
	return func(e *Engine) {
		e.metrics = r
	}
}

// NewEngine validates the configuration and the embedding dimension and
// creates an engine. A dimension mismatch between embedder and corpus is
// reported here, never per query.
func NewEngine(idx Indexes, embedder embed.Embedder, cfg Config, opts ...Option) (*Engine, error) {
	switch {
	case idx.Documents == nil:
		return nil, fmt.Errorf("%w: document store is required", ErrNilDependency)
	case idx.Dense == nil:
		return nil, fmt.Errorf("%w: dense index is required", ErrNilDependency)
	case idx.Lexical == nil:
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	case embedder == nil:
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := idx.Documents.ValidateDimension(embedder.Dimensions()); err != nil {
		return nil, err
	}
	if idx.Documents.Len() > 0 && idx.Dense.Dimension() != idx.Documents.Dimension() {
		return nil, errors.DimensionMismatch(idx.Documents.Dimension(), idx.Dense.Dimension())
	}

	cfg = cfg.clone()
	e := &Engine{
		idx:      idx,
		embedder: embedder,
		cfg:      cfg,
		fuser:    NewFuser(cfg.RRFConstant),
		weights:  NewPredicateWeights(cfg.PredicateWeights, cfg.DefaultPredicateWeight),
		selector: NewSelector(cfg),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config { return e.cfg.clone() }

// Retrieve selects up to K documents for the question. An empty corpus
// gives an empty result; an error means no channel could run.
func (e *Engine) Retrieve(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		e.observe(analyze.Specific, StatusInvalid, start, 0, 0)
		return nil, errors.New(errors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if req.K < 0 {
		e.observe(analyze.Specific, StatusInvalid, start, 0, 0)
		return nil, errors.ValidationError(fmt.Sprintf("k must not be negative, got %d", req.K), nil)
	}

	queryID := uuid.NewString()
	analysis, source := e.analyze(ctx, queryID, query, req)
	k := req.K
	if k == 0 {
		k = e.cfg.KFor(analysis.Type)
	}
	poolSize := e.cfg.PoolSize(k)

	result := &Result{
		QueryID: queryID,
		Diagnostics: Diagnostics{
			Analysis:       analysis,
			AnalysisSource: source,
			K:              k,
			PoolSize:       poolSize,
			Reserved:       e.cfg.ReservedSlots(analysis.Type, poolSize),
		},
	}
	if e.idx.Documents.Len() == 0 {
		result.Diagnostics.Duration = time.Since(start)
		e.observe(analysis.Type, StatusEmpty, start, 0, 0)
		return result, nil
	}

	pool, err := e.candidatePool(ctx, query, req.History, analysis, poolSize, &result.Diagnostics)
	if err != nil {
		e.observe(analysis.Type, StatusUnavailable, start, 0, 0)
		slog.Warn("retrieval_unavailable",
			append([]any{slog.String("query_id", queryID)}, errors.FormatForLog(err)...)...)
		return nil, err
	}

	ids := make([]string, 0, len(pool))
	docs := make([]*corpus.Document, 0, len(pool))
	scores := make([]float64, 0, len(pool))
	channels := make([]Channel, 0, len(pool))
	for _, c := range pool {
		d, ok := e.idx.Documents.Get(c.DocID)
		if !ok {
			continue
		}
		ids = append(ids, c.DocID)
		docs = append(docs, d)
		scores = append(scores, c.Score)
		channels = append(channels, c.Channel)
	}

	adj := BuildAdjacency(ids, e.idx.Triples, e.weights)
	for _, s := range e.selector.Select(docs, scores, adj, k, analysis.Targets) {
		result.Documents = append(result.Documents, ScoredDocument{
			Document:  docs[s.Index],
			Relevance: s.Relevance,
			Score:     s.Score,
			Channel:   channels[s.Index],
		})
	}
	result.Triples = e.enrich(result.Documents)
	result.Diagnostics.Duration = time.Since(start)

	status := StatusOK
	if len(result.Documents) == 0 {
		status = StatusEmpty
	}
	e.observe(analysis.Type, status, start, len(ids), len(result.Documents))
	slog.Debug("retrieval_complete",
		slog.String("query_id", queryID),
		slog.String("query_type", analysis.Type.String()),
		slog.String("targets", analysis.Targets.String()),
		slog.Int("k", k),
		slog.Int("pool", len(ids)),
		slog.Int("selected", len(result.Documents)),
		slog.Duration("duration", result.Diagnostics.Duration))
	return result, nil
}

// analyze resolves the analysis: request, then analyzer, then default.
func (e *Engine) analyze(ctx context.Context, queryID, query string, req Request) (analyze.Analysis, string) {
	if req.Analysis != nil {
		return *req.Analysis, AnalysisFromRequest
	}
	if e.analyzer == nil {
		return analyze.Default(), AnalysisDefault
	}
	a, err := e.analyzer.Analyze(ctx, query, req.History)
	if err != nil {
		slog.Warn("query_analysis_failed",
			slog.String("query_id", queryID),
			slog.String("error", err.Error()))
		return analyze.Default(), AnalysisDefault
	}
	return a, AnalysisFromAnalyzer
}

// candidatePool runs the raw and contextual branches and merges them.
func (e *Engine) candidatePool(ctx context.Context, query string, history []string, analysis analyze.Analysis, poolSize int, diag *Diagnostics) ([]Candidate, error) {
	var turns []string
	for _, h := range history {
		if strings.TrimSpace(h) != "" {
			turns = append(turns, h)
		}
	}

	runRaw, contextual := true, ""
	if len(turns) > 0 && e.cfg.ContextTurns > 0 {
		diag.Pivot = isPivot(query)
		diag.Vague = isVague(query, e.cfg.VagueMaxTokens)
		if !diag.Pivot {
			contextual = contextualize(turns, query, e.cfg.ContextTurns)
			runRaw = !diag.Vague
		}
	}

	var (
		rawOut, ctxOut     branchPool
		rawErr, ctxErr     error
		rawStats, ctxStats BranchStats
	)
	g, gctx := errgroup.WithContext(ctx)
	if runRaw {
		g.Go(func() error {
			rawOut, rawStats, rawErr = e.branch(gctx, query, analysis, poolSize)
			return nil
		})
	}
	if contextual != "" {
		g.Go(func() error {
			ctxOut, ctxStats, ctxErr = e.branch(gctx, contextual, analysis, poolSize)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if runRaw {
		diag.Raw = &rawStats
	}
	if contextual != "" {
		diag.Contextual = &ctxStats
	}

	switch {
	case runRaw && contextual != "":
		if rawErr != nil && ctxErr != nil {
			return nil, rawErr
		}
		if rawErr != nil {
			return ctxOut.pool, nil
		}
		if ctxErr != nil {
			return rawOut.pool, nil
		}
		pool, capped := e.mergeBranches(ctxOut, rawOut, analysis, poolSize)
		diag.MergeCapped = capped
		return pool, nil
	case contextual != "":
		return ctxOut.pool, ctxErr
	default:
		return rawOut.pool, rawErr
	}
}

// branchPool is the outcome of one branch: its capped pool, the remaining
// ranked candidates and the fused type-channel candidates.
type branchPool struct {
	pool      []Candidate
	overflow  []Candidate
	typeCands []Candidate
}

// mergeBranches interleaves the contextual and raw pools and enforces the
// type-channel reservation and the non-informative cap on the merged pool,
// since each branch only bounds its own. Leftovers of both branches serve
// as backfill. Returns the pool and the number of capped documents.
func (e *Engine) mergeBranches(ctxOut, rawOut branchPool, analysis analyze.Analysis, poolSize int) ([]Candidate, int) {
	pool := interleave(ctxOut.pool, rawOut.pool, poolSize)
	inPool := make(map[string]struct{}, len(pool))
	for _, c := range pool {
		inPool[c.DocID] = struct{}{}
	}
	var leftovers []Candidate
	for _, c := range unionMax(ctxOut.pool, rawOut.pool, ctxOut.overflow, rawOut.overflow) {
		if _, ok := inPool[c.DocID]; !ok {
			leftovers = append(leftovers, c)
		}
	}

	if !analysis.Targets.Empty() {
		typeCands := unionMax(ctxOut.typeCands, rawOut.typeCands)
		reserved := e.cfg.ReservedSlots(analysis.Type, poolSize)
		var evicted []Candidate
		pool, evicted, _ = mergeTypeChannel(pool, typeCands, e.idx.Documents, analysis.Targets, reserved, poolSize)
		if len(evicted) > 0 {
			leftovers = unionMax(leftovers, evicted)
		}
	}
	return capNonInformative(pool, leftovers, e.idx.Documents, e.cfg.NonInformativeCap)
}

// branch runs both channels and the type channel for one query text and
// returns the capped pool with its leftovers.
func (e *Engine) branch(ctx context.Context, text string, analysis analyze.Analysis, poolSize int) (branchPool, BranchStats, error) {
	stats := BranchStats{Query: text}
	typed := !analysis.Targets.Empty()

	var (
		denseHits, lexHits, denseTyped, lexTyped []store.Hit
		denseErr, lexErr, denseTypedErr, lexTypedErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cctx, cancel := e.channelContext(gctx)
		defer cancel()
		vec, err := e.embedder.Embed(cctx, text)
		if err != nil {
			denseErr = fmt.Errorf("embed query: %w", err)
			denseTypedErr = denseErr
			return nil
		}
		denseHits, denseErr = e.idx.Dense.Search(cctx, vec, poolSize)
		if typed {
			denseTyped, denseTypedErr = e.idx.Dense.SearchFiltered(cctx, vec, poolSize, analysis.Targets)
		}
		return nil
	})
	g.Go(func() error {
		cctx, cancel := e.channelContext(gctx)
		defer cancel()
		lexHits, lexErr = e.idx.Lexical.Search(cctx, text, poolSize)
		return nil
	})
	if typed {
		g.Go(func() error {
			cctx, cancel := e.channelContext(gctx)
			defer cancel()
			lexTyped, lexTypedErr = e.idx.Lexical.SearchFiltered(cctx, text, poolSize, analysis.Targets)
			return nil
		})
	}
	_ = g.Wait()

	stats.DenseHits, stats.LexicalHits = len(denseHits), len(lexHits)
	for _, f := range []struct {
		ch  Channel
		err error
	}{{ChannelDense, denseErr}, {ChannelLexical, lexErr}} {
		if f.err == nil {
			continue
		}
		stats.Errors = append(stats.Errors, f.ch.String()+": "+f.err.Error())
		if e.metrics != nil {
			e.metrics.ObserveChannelFailure(f.ch)
		}
		slog.Warn("retrieval_channel_failed",
			slog.String("channel", f.ch.String()),
			slog.String("error", f.err.Error()))
	}
	if denseErr != nil && lexErr != nil {
		return branchPool{}, stats, errors.RetrievalUnavailable(stderrors.Join(denseErr, lexErr))
	}

	fused := e.known(e.fuser.Fuse(0, fromHits(denseHits, ChannelDense), fromHits(lexHits, ChannelLexical)))
	normalize(fused)
	cut := min(poolSize, len(fused))
	pool := fused[:cut:cut]
	overflow := fused[cut:]
	var typeCands []Candidate

	if typed {
		if typeErr := stderrors.Join(denseTypedErr, lexTypedErr); typeErr != nil {
			stats.Errors = append(stats.Errors, ChannelType.String()+": "+typeErr.Error())
			if e.metrics != nil {
				e.metrics.ObserveChannelFailure(ChannelType)
			}
		}
		var pr []Candidate
		if analysis.Type != analyze.Specific {
			pr = pageRankList(e.idx.Aggregation, e.idx.Documents, analysis.Targets, poolSize)
		}
		stats.TypeHits = len(denseTyped) + len(lexTyped)
		stats.PageRankHits = len(pr)

		typeCands = fuseTypeChannel(e.fuser, analysis.Type, typeLists{
			dense:    fromHits(denseTyped, ChannelType),
			lexical:  fromHits(lexTyped, ChannelType),
			pagerank: pr,
		}, e.idx.Documents, analysis.Targets)

		var evicted []Candidate
		reserved := e.cfg.ReservedSlots(analysis.Type, poolSize)
		pool, evicted, stats.Inserted = mergeTypeChannel(pool, typeCands, e.idx.Documents, analysis.Targets, reserved, poolSize)
		if len(evicted) > 0 {
			overflow = append(append(make([]Candidate, 0, len(evicted)+len(overflow)), evicted...), overflow...)
			sortCandidates(overflow)
		}
	}

	pool, stats.Capped = capNonInformative(pool, overflow, e.idx.Documents, e.cfg.NonInformativeCap)
	return branchPool{pool: pool, overflow: overflow, typeCands: typeCands}, stats, nil
}

// known drops candidates with no document.
func (e *Engine) known(c []Candidate) []Candidate {
	out := c[:0]
	for _, x := range c {
		if e.idx.Documents.Contains(x.DocID) {
			out = append(out, x)
		}
	}
	return out
}

func (e *Engine) channelContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.ChannelTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.ChannelTimeout)
	}
	return context.WithCancel(ctx)
}

// enrich collects the triples touching the selected documents, each once,
// in selection order.
func (e *Engine) enrich(selected []ScoredDocument) []corpus.Triple {
	var out []corpus.Triple
	seen := make(map[corpus.Triple]struct{})
	for _, s := range selected {
		for _, t := range e.idx.Triples.Touching(s.Document.ID) {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func (e *Engine) observe(qt analyze.QueryType, status string, start time.Time, poolSize, selected int) {
	if e.metrics != nil {
		e.metrics.ObserveRetrieval(qt, status, time.Since(start), poolSize, selected)
	}
}
