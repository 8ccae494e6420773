package embed

import (
	"context"

	"github.com/Aman-CERP/crmrag/internal/errors"
	"github.com/Aman-CERP/crmrag/internal/resilience"
)

// GuardedEmbedder stops calling a failing embedding service for a while
// instead of letting every query wait on it.
type GuardedEmbedder struct {
	inner Embedder
	guard *resilience.Guard
}

// NewGuardedEmbedder wraps inner with a circuit breaker and call timeout.
func NewGuardedEmbedder(inner Embedder, cfg resilience.Config) *GuardedEmbedder {
	return &GuardedEmbedder{
		inner: inner,
		guard: resilience.NewGuard("embed:"+inner.ModelName(), cfg),
	}
}

// Embed embeds text through the guard.
func (g *GuardedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := resilience.Do(ctx, g.guard, func(ctx context.Context) ([]float32, error) {
		return g.inner.Embed(ctx, text)
	})
	return v, g.wrap(err)
}

// EmbedBatch embeds texts through the guard.
func (g *GuardedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	v, err := resilience.Do(ctx, g.guard, func(ctx context.Context) ([][]float32, error) {
		return g.inner.EmbedBatch(ctx, texts)
	})
	return v, g.wrap(err)
}

func (g *GuardedEmbedder) wrap(err error) error {
	if err != nil && resilience.IsCircuitOpen(err) {
		return errors.New(errors.ErrCodeNetworkUnavailable, "embedding service circuit open", err)
	}
	return err
}

// Dimensions returns the inner embedder's dimension.
func (g *GuardedEmbedder) Dimensions() int { return g.inner.Dimensions() }

// ModelName returns the inner embedder's model.
func (g *GuardedEmbedder) ModelName() string { return g.inner.ModelName() }

// Close closes the inner embedder.
func (g *GuardedEmbedder) Close() error { return g.inner.Close() }

var _ Embedder = (*GuardedEmbedder)(nil)
