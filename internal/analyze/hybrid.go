package analyze

import (
	"context"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// HybridAnalyzer tries the LLM first and falls back to patterns.
// Results are cached per question and conversation.
type HybridAnalyzer struct {
	llm      Analyzer
	patterns *PatternAnalyzer
	cache    *lru.Cache[string, Analysis]
}

// NewHybridAnalyzer creates an analyzer. A nil llm means patterns only.
func NewHybridAnalyzer(llm Analyzer, cacheSize int) *HybridAnalyzer {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, Analysis](cacheSize)
	return &HybridAnalyzer{
		llm:      llm,
		patterns: NewPatternAnalyzer(),
		cache:    cache,
	}
}

// Analyze returns the cached analysis or computes a new one.
func (h *HybridAnalyzer) Analyze(ctx context.Context, query string, history []string) (Analysis, error) {
	key := cacheKey(query, history)
	if key == "" {
		return Default(), nil
	}
	if a, ok := h.cache.Get(key); ok {
		return a, nil
	}

	if h.llm != nil {
		a, err := h.llm.Analyze(ctx, query, history)
		if err == nil {
			h.cache.Add(key, a)
			return a, nil
		}
		slog.Debug("llm_analysis_fallback", slog.String("error", err.Error()))
	}

	a, err := h.patterns.Analyze(ctx, query, history)
	if err == nil {
		h.cache.Add(key, a)
	}
	return a, err
}

// Len returns the number of cached analyses.
func (h *HybridAnalyzer) Len() int { return h.cache.Len() }

func cacheKey(query string, history []string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return ""
	}
	if len(history) == 0 {
		return q
	}
	return strings.ToLower(strings.Join(history, "\x1f")) + "\x1e" + q
}

var _ Analyzer = (*HybridAnalyzer)(nil)
