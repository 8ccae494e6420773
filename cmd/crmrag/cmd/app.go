package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/crmrag/internal/analyze"
	"github.com/Aman-CERP/crmrag/internal/config"
	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/embed"
	"github.com/Aman-CERP/crmrag/internal/errors"
	"github.com/Aman-CERP/crmrag/internal/resilience"
	"github.com/Aman-CERP/crmrag/internal/retrieval"
	"github.com/Aman-CERP/crmrag/internal/snapshot"
)

// engineStack is everything a query command needs besides the snapshot.
type engineStack struct {
	embedder embed.Embedder
	options  snapshot.Options
}

// newEngineStack builds the embedder and analyzer named by cfg. The
// recorder may be nil.
func newEngineStack(ctx context.Context, cfg *config.Config, recorder retrieval.Recorder) (*engineStack, error) {
	embedder, err := embed.New(ctx, cfg.EmbedConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	rc, err := cfg.RetrievalConfig()
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	opts := snapshot.DefaultOptions()
	opts.Dense = cfg.DenseConfig()
	opts.Embedder = embedder
	opts.Retrieval = rc

	if a := newAnalyzer(cfg); a != nil {
		opts.EngineOptions = append(opts.EngineOptions, retrieval.WithAnalyzer(a))
	}
	if recorder != nil {
		opts.EngineOptions = append(opts.EngineOptions, retrieval.WithMetrics(recorder))
	}

	slog.Debug("embedder_initialized",
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))

	return &engineStack{embedder: embedder, options: opts}, nil
}

func (s *engineStack) load(ctx context.Context, path string) (*snapshot.Snapshot, error) {
	return snapshot.Load(ctx, path, s.options)
}

func (s *engineStack) Close() error {
	return s.embedder.Close()
}

// newAnalyzer returns nil for mode none. The LLM analyzer is wrapped so a
// slow or failing model falls back to the pattern analyzer and, past that,
// to the default analysis.
func newAnalyzer(cfg *config.Config) analyze.Analyzer {
	switch strings.ToLower(cfg.Analyzer.Mode) {
	case config.AnalyzerNone:
		return nil
	case config.AnalyzerLLM:
		llm := analyze.NewLLMAnalyzer(cfg.AnalyzerLLMConfig())
		guard := resilience.DefaultConfig()
		guard.CallTimeout = cfg.Analyzer.Timeout
		return analyze.NewGuardedAnalyzer(analyze.NewHybridAnalyzer(llm, cfg.Analyzer.CacheSize), guard)
	default:
		return analyze.NewPatternAnalyzer()
	}
}

// requestAnalysis builds an explicit analysis from --type and --target.
// It returns nil when neither flag is set, leaving the analyzer in charge.
func requestAnalysis(queryType string, targets []string) (*analyze.Analysis, error) {
	if queryType == "" && len(targets) == 0 {
		return nil, nil
	}
	a := analyze.Default()
	if queryType != "" {
		t, err := analyze.ParseQueryType(queryType)
		if err != nil {
			return nil, errors.ValidationError("invalid --type", err)
		}
		a.Type = t
	}
	if len(targets) > 0 {
		cats, err := corpus.ParseCategorySet(targets)
		if err != nil {
			return nil, errors.ValidationError("invalid --target", err)
		}
		a.Targets = cats
	}
	return &a, nil
}
