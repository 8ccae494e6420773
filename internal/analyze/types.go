// Package analyze classifies a question into a query type and the entity
// categories it targets. The retrieval engine consumes the result; when
// analysis fails the engine falls back to Default().
package analyze

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/crmrag/internal/corpus"
)

// QueryType is the intent of a question.
type QueryType int

const (
	// Specific asks about one entity or fact.
	Specific QueryType = iota
	// Enumeration asks for a list of entities.
	Enumeration
	// Aggregation asks for a count or ranking.
	Aggregation
)

// String returns the upper-case label.
func (t QueryType) String() string {
	switch t {
	case Enumeration:
		return "ENUMERATION"
	case Aggregation:
		return "AGGREGATION"
	default:
		return "SPECIFIC"
	}
}

// ParseQueryType resolves a label case-insensitively.
func ParseQueryType(s string) (QueryType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SPECIFIC":
		return Specific, nil
	case "ENUMERATION":
		return Enumeration, nil
	case "AGGREGATION":
		return Aggregation, nil
	}
	return Specific, fmt.Errorf("unknown query type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t QueryType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *QueryType) UnmarshalText(b []byte) error {
	v, err := ParseQueryType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Analysis is the typed result of classifying a question.
type Analysis struct {
	Type    QueryType          `json:"query_type"`
	Targets corpus.CategorySet `json:"target_categories"`
	Context corpus.CategorySet `json:"context_categories"`
}

// Default is the analysis used when none is available: a specific lookup
// with no category preference.
func Default() Analysis {
	return Analysis{Type: Specific}
}

// Analyzer classifies a question given the prior turns of the conversation.
type Analyzer interface {
	Analyze(ctx context.Context, query string, history []string) (Analysis, error)
}
