package embed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/crmrag/internal/resilience"
)

// Provider names accepted by New.
const (
	ProviderStatic = "static"
	ProviderOllama = "ollama"
)

// Config selects and tunes the query embedder.
type Config struct {
	Provider   string
	Model      string
	Host       string
	Dimensions int
	Timeout    time.Duration
	CacheSize  int
	Guard      resilience.Config
}

// New builds the embedder stack for cfg: the provider, a circuit breaker
// around remote providers, and an LRU cache on top.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	var inner Embedder

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderStatic:
		inner = NewStaticEmbedder(cfg.Dimensions)
	case ProviderOllama:
		oc := DefaultOllamaConfig()
		if cfg.Host != "" {
			oc.Host = cfg.Host
		}
		if cfg.Model != "" {
			oc.Model = cfg.Model
		}
		if cfg.Timeout > 0 {
			oc.Timeout = cfg.Timeout
		}
		oc.Dimensions = cfg.Dimensions

		ollama, err := NewOllamaEmbedder(ctx, oc)
		if err != nil {
			return nil, err
		}
		inner = NewGuardedEmbedder(ollama, cfg.Guard)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (use %s or %s)", cfg.Provider, ProviderStatic, ProviderOllama)
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
