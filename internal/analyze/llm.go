package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Aman-CERP/crmrag/internal/corpus"
)

// Default analyzer configuration values.
const (
	DefaultModel      = "llama3.2:1b"
	DefaultTimeout    = 2 * time.Second
	DefaultCacheSize  = 10000
	DefaultOllamaHost = "http://localhost:11434"

	// historyTurnsInPrompt bounds how much conversation the LLM sees.
	historyTurnsInPrompt = 3
)

// Config holds configuration for the LLM analyzer.
type Config struct {
	// Model is the Ollama model used for classification.
	Model string

	// Timeout bounds a single classification call.
	Timeout time.Duration

	// CacheSize is the LRU size of HybridAnalyzer.
	CacheSize int

	// OllamaHost is the Ollama API base URL.
	OllamaHost string
}

// DefaultConfig returns sensible defaults for the analyzer.
func DefaultConfig() Config {
	return Config{
		Model:      DefaultModel,
		Timeout:    DefaultTimeout,
		CacheSize:  DefaultCacheSize,
		OllamaHost: DefaultOllamaHost,
	}
}

// LLMAnalyzer asks an Ollama model to classify the question.
type LLMAnalyzer struct {
	client *http.Client
	config Config
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// llmReply is the JSON object the model is asked to produce.
type llmReply struct {
	QueryType         string   `json:"query_type"`
	TargetCategories  []string `json:"target_categories"`
	ContextCategories []string `json:"context_categories"`
}

// NewLLMAnalyzer creates an LLM-backed analyzer.
func NewLLMAnalyzer(config Config) *LLMAnalyzer {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.OllamaHost == "" {
		config.OllamaHost = DefaultOllamaHost
	}
	config.OllamaHost = strings.TrimRight(config.OllamaHost, "/")

	return &LLMAnalyzer{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
	}
}

const analysisPrompt = `You classify questions about a cultural heritage knowledge graph.

Query types:
SPECIFIC - asks about one entity or fact ("Who painted the Night Watch?")
ENUMERATION - asks for a list ("Which paintings are in the Louvre?")
AGGREGATION - asks for a count or ranking ("Which artist has the most works?")

Entity categories: Thing, Actor, Place, Event, Concept, Time.

Answer with a JSON object with these keys:
"query_type": one of SPECIFIC, ENUMERATION, AGGREGATION
"target_categories": categories of the entities the answer consists of
"context_categories": categories mentioned in the conversation so far

Conversation so far:
%s

Question: %s`

// Analyze classifies query using the model.
func (l *LLMAnalyzer) Analyze(ctx context.Context, query string, history []string) (Analysis, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Default(), nil
	}

	body, err := json.Marshal(generateRequest{
		Model:  l.config.Model,
		Prompt: fmt.Sprintf(analysisPrompt, formatHistory(history), query),
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return Default(), fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.config.OllamaHost+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Default(), fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return Default(), fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Default(), fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Default(), fmt.Errorf("decode response: %w", err)
	}
	return parseReply(result.Response)
}

// parseReply converts the model's JSON answer. Unknown categories are
// dropped; an unknown query type is an error so callers can fall back.
func parseReply(raw string) (Analysis, error) {
	raw = strings.TrimSpace(raw)
	if start, end := strings.IndexByte(raw, '{'), strings.LastIndexByte(raw, '}'); start >= 0 && end > start {
		raw = raw[start : end+1]
	}

	var reply llmReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return Default(), fmt.Errorf("parse analysis: %w", err)
	}

	qt, err := ParseQueryType(reply.QueryType)
	if err != nil {
		return Default(), err
	}
	return Analysis{
		Type:    qt,
		Targets: lenientCategories(reply.TargetCategories),
		Context: lenientCategories(reply.ContextCategories),
	}, nil
}

func lenientCategories(labels []string) corpus.CategorySet {
	var set corpus.CategorySet
	for _, label := range labels {
		c, err := corpus.ParseCategory(label)
		if err != nil {
			slog.Debug("analysis_category_ignored", slog.String("label", label))
			continue
		}
		set = set.With(c)
	}
	return set
}

func formatHistory(history []string) string {
	if len(history) == 0 {
		return "(none)"
	}
	if len(history) > historyTurnsInPrompt {
		history = history[len(history)-historyTurnsInPrompt:]
	}
	var b strings.Builder
	for _, turn := range history {
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(turn))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// Available checks if Ollama is reachable.
func (l *LLMAnalyzer) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.config.OllamaHost+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

var _ Analyzer = (*LLMAnalyzer)(nil)
