// Package retrieval implements graph-aware hybrid retrieval: dense and
// lexical candidate generation, reciprocal rank fusion, a category-aware
// type channel, non-informative capping, a pool-scoped weighted adjacency
// matrix, and greedy coherent selection.
package retrieval

import (
	"encoding/json"
	"time"

	"github.com/Aman-CERP/crmrag/internal/analyze"
	"github.com/Aman-CERP/crmrag/internal/corpus"
)

// Channel names the retrieval branch a candidate came from.
type Channel uint8

const (
	ChannelDense Channel = iota
	ChannelLexical
	ChannelType
	ChannelPageRank
)

// String returns the lower-case channel name.
func (c Channel) String() string {
	switch c {
	case ChannelDense:
		return "dense"
	case ChannelLexical:
		return "lexical"
	case ChannelType:
		return "type"
	case ChannelPageRank:
		return "pagerank"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (c Channel) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Candidate is a scored document reference. Lifetime is one query.
type Candidate struct {
	DocID   string
	Score   float64
	Channel Channel
}

// Request is one retrieval call.
type Request struct {
	Query   string
	History []string

	// K is the number of documents wanted; zero picks the default for the
	// query type.
	K int

	// Analysis overrides the analyzer when set.
	Analysis *analyze.Analysis
}

// ScoredDocument is a selected document with the scores that chose it.
type ScoredDocument struct {
	Document  *corpus.Document `json:"-"`
	Relevance float64          `json:"relevance"`
	Score     float64          `json:"score"`
	Channel   Channel          `json:"channel"`
}

// MarshalJSON flattens the document's id, category and text into the entry.
func (d ScoredDocument) MarshalJSON() ([]byte, error) {
	type scored struct {
		ID        string          `json:"id"`
		Category  corpus.Category `json:"category"`
		Text      string          `json:"text"`
		Relevance float64         `json:"relevance"`
		Score     float64         `json:"score"`
		Channel   Channel         `json:"channel"`
	}
	out := scored{Relevance: d.Relevance, Score: d.Score, Channel: d.Channel}
	if d.Document != nil {
		out.ID = d.Document.ID
		out.Category = d.Document.Category
		out.Text = d.Document.Text
	}
	return json.Marshal(out)
}

// Result is the ordered selection plus the triples touching it.
type Result struct {
	QueryID     string           `json:"query_id"`
	Documents   []ScoredDocument `json:"documents"`
	Triples     []corpus.Triple  `json:"triples"`
	Diagnostics Diagnostics      `json:"diagnostics"`
}

// IDs returns the selected document ids in order.
func (r *Result) IDs() []string {
	ids := make([]string, len(r.Documents))
	for i, d := range r.Documents {
		ids[i] = d.Document.ID
	}
	return ids
}

// Analysis source labels.
const (
	AnalysisFromRequest  = "request"
	AnalysisFromAnalyzer = "analyzer"
	AnalysisDefault      = "default"
)

// BranchStats describes one retrieval branch.
type BranchStats struct {
	Query        string   `json:"query"`
	DenseHits    int      `json:"dense_hits"`
	LexicalHits  int      `json:"lexical_hits"`
	TypeHits     int      `json:"type_hits"`
	PageRankHits int      `json:"pagerank_hits"`
	Inserted     int      `json:"type_inserted"`
	Capped       int      `json:"capped"`
	Errors       []string `json:"errors,omitempty"`
}

// Diagnostics explains how a result was produced.
type Diagnostics struct {
	Analysis       analyze.Analysis `json:"analysis"`
	AnalysisSource string           `json:"analysis_source"`
	K              int              `json:"k"`
	PoolSize       int              `json:"pool_size"`
	Reserved       int              `json:"reserved_slots"`
	Contextual     *BranchStats     `json:"contextual,omitempty"`
	Raw            *BranchStats     `json:"raw,omitempty"`
	MergeCapped    int              `json:"merge_capped,omitempty"`
	Pivot          bool             `json:"pivot"`
	Vague          bool             `json:"vague"`
	Duration       time.Duration    `json:"duration_ns"`
}
