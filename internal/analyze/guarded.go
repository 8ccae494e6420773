package analyze

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/crmrag/internal/errors"
	"github.com/Aman-CERP/crmrag/internal/resilience"
)

// GuardedAnalyzer bounds an analyzer with a timeout and a circuit breaker.
// It never fails: any error degrades to Default().
type GuardedAnalyzer struct {
	inner Analyzer
	guard *resilience.Guard
}

// NewGuardedAnalyzer wraps inner.
func NewGuardedAnalyzer(inner Analyzer, cfg resilience.Config) *GuardedAnalyzer {
	return &GuardedAnalyzer{
		inner: inner,
		guard: resilience.NewGuard("analyzer", cfg),
	}
}

// Analyze runs the inner analyzer under the guard.
func (g *GuardedAnalyzer) Analyze(ctx context.Context, query string, history []string) (Analysis, error) {
	a, err := resilience.Do(ctx, g.guard, func(ctx context.Context) (Analysis, error) {
		return g.inner.Analyze(ctx, query, history)
	})
	if err != nil {
		slog.Warn("query_analysis_failed",
			slog.String("code", errors.ErrCodeAnalysisFailed),
			slog.Bool("circuit_open", resilience.IsCircuitOpen(err)),
			slog.String("error", err.Error()))
		return Default(), nil
	}
	return a, nil
}

// State reports the breaker state.
func (g *GuardedAnalyzer) State() string { return g.guard.State() }

var _ Analyzer = (*GuardedAnalyzer)(nil)
