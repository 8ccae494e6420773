package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/crmrag/internal/corpus"
)

const (
	// TextTokenizerName is the registered tokenizer splitting prose and ontology identifiers.
	TextTokenizerName = "crm_tokenizer"

	// TextStopFilterName is the registered English stop word filter.
	TextStopFilterName = "crm_stop"

	// TextAnalyzerName is the analyzer applied to document text.
	TextAnalyzerName = "crm_analyzer"

	fieldContent  = "content"
	fieldCategory = "category"

	// categoryFilterBoost keeps the category clause from reordering hits.
	categoryFilterBoost = 1e-6
)

func init() {
	_ = registry.RegisterTokenizer(TextTokenizerName, textTokenizerConstructor)
	_ = registry.RegisterTokenFilter(TextStopFilterName, textStopFilterConstructor)
}

// BleveLexicalIndex is an in-memory bleve index over document text with a
// keyword category field for filtered search.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	count  int
	closed bool
}

type bleveDocument struct {
	Content  string `json:"content"`
	Category string `json:"category"`
}

// NewBleveLexicalIndex indexes docs in memory.
func NewBleveLexicalIndex(ctx context.Context, docs []*corpus.Document) (*BleveLexicalIndex, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	const batchSize = 1000
	batch := idx.NewBatch()
	for i, d := range docs {
		if err := ctx.Err(); err != nil {
			_ = idx.Close()
			return nil, err
		}
		if err := batch.Index(d.ID, bleveDocument{Content: d.Text, Category: d.Category.String()}); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to index document %s: %w", d.ID, err)
		}
		if (i+1)%batchSize == 0 {
			if err := idx.Batch(batch); err != nil {
				_ = idx.Close()
				return nil, fmt.Errorf("failed to execute batch: %w", err)
			}
			batch = idx.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := idx.Batch(batch); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to execute batch: %w", err)
		}
	}

	return &BleveLexicalIndex{index: idx, count: len(docs)}, nil
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(TextAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": TextTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			TextStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = TextAnalyzerName

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = TextAnalyzerName
	contentField.Store = false
	contentField.IncludeTermVectors = false

	categoryField := bleve.NewKeywordFieldMapping()
	categoryField.Store = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt(fieldContent, contentField)
	docMapping.AddFieldMappingsAt(fieldCategory, categoryField)
	indexMapping.DefaultMapping = docMapping

	return indexMapping, nil
}

// Search returns documents matching q.
func (b *BleveLexicalIndex) Search(ctx context.Context, q string, k int) ([]Hit, error) {
	return b.search(ctx, q, k, 0)
}

// SearchFiltered returns documents matching q whose category is in cats.
func (b *BleveLexicalIndex) SearchFiltered(ctx context.Context, q string, k int, cats corpus.CategorySet) ([]Hit, error) {
	if cats.Empty() {
		return []Hit{}, nil
	}
	return b.search(ctx, q, k, cats)
}

func (b *BleveLexicalIndex) search(ctx context.Context, q string, k int, cats corpus.CategorySet) ([]Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(q) == "" || k <= 0 || b.count == 0 {
		return []Hit{}, nil
	}

	match := bleve.NewMatchQuery(q)
	match.SetField(fieldContent)

	var root query.Query = match
	if !cats.Empty() {
		terms := make([]query.Query, 0, len(cats.Slice()))
		for _, c := range cats.Slice() {
			tq := bleve.NewTermQuery(c.String())
			tq.SetField(fieldCategory)
			tq.SetBoost(categoryFilterBoost)
			terms = append(terms, tq)
		}
		root = bleve.NewConjunctionQuery(match, bleve.NewDisjunctionQuery(terms...))
	}

	req := bleve.NewSearchRequest(root)
	req.Size = k
	req.SortBy([]string{"-_score", "_id"})

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Len returns the number of indexed documents.
func (b *BleveLexicalIndex) Len() int { return b.count }

// Close releases the index.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)

func textTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveTextTokenizer{}, nil
}

// bleveTextTokenizer adapts Tokenize to bleve.
type bleveTextTokenizer struct{}

func (t *bleveTextTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	lower := strings.ToLower(text)
	tokens := Tokenize(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for pos, token := range tokens {
		start := strings.Index(lower[offset:], token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)
		if end > len(text) {
			end = len(text)
		}

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos + 1,
			Type:     analysis.AlphaNumeric,
		})
		offset = end
	}
	return result
}

func textStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &bleveStopFilter{stopWords: BuildStopWordMap(EnglishStopWords)}, nil
}

type bleveStopFilter struct {
	stopWords map[string]struct{}
}

func (f *bleveStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stopWords[strings.ToLower(string(token.Term))]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
