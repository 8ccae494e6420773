package analyze

import (
	"context"
	"regexp"
	"strings"

	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/store"
)

var (
	aggregationPattern = regexp.MustCompile(`(?i)\b(how many|number of|count|counts|total|most|least|fewest|top \d+|rank(ed|ing)?|largest|biggest|greatest|majority)\b`)

	enumerationVerbPattern = regexp.MustCompile(`(?i)^\s*(list|name|enumerate|show|give me|find all|what are|which are|who are)\b`)

	enumerationAllPattern = regexp.MustCompile(`(?i)\b(all|every|each|various|several)\b`)

	pluralWhPattern = regexp.MustCompile(`(?i)\b(which|what)\s+([a-z]+)\b`)
)

// categoryLexicon maps singular cue words to the category they signal.
var categoryLexicon = map[string]corpus.Category{
	"who": corpus.CategoryActor, "person": corpus.CategoryActor, "people": corpus.CategoryActor,
	"artist": corpus.CategoryActor, "painter": corpus.CategoryActor, "sculptor": corpus.CategoryActor,
	"architect": corpus.CategoryActor, "author": corpus.CategoryActor, "creator": corpus.CategoryActor,
	"actor": corpus.CategoryActor, "group": corpus.CategoryActor, "organization": corpus.CategoryActor,
	"owner": corpus.CategoryActor, "collector": corpus.CategoryActor, "patron": corpus.CategoryActor,

	"where": corpus.CategoryPlace, "place": corpus.CategoryPlace, "city": corpus.CategoryPlace,
	"country": corpus.CategoryPlace, "location": corpus.CategoryPlace, "region": corpus.CategoryPlace,
	"site": corpus.CategoryPlace, "town": corpus.CategoryPlace, "museum": corpus.CategoryPlace,

	"event": corpus.CategoryEvent, "battle": corpus.CategoryEvent, "war": corpus.CategoryEvent,
	"siege": corpus.CategoryEvent, "exhibition": corpus.CategoryEvent, "production": corpus.CategoryEvent,
	"creation": corpus.CategoryEvent, "acquisition": corpus.CategoryEvent, "excavation": corpus.CategoryEvent,

	"when": corpus.CategoryTime, "date": corpus.CategoryTime, "year": corpus.CategoryTime,
	"century": corpus.CategoryTime, "period": corpus.CategoryTime, "era": corpus.CategoryTime,

	"painting": corpus.CategoryThing, "object": corpus.CategoryThing, "work": corpus.CategoryThing,
	"artwork": corpus.CategoryThing, "sculpture": corpus.CategoryThing, "artifact": corpus.CategoryThing,
	"artefact": corpus.CategoryThing, "manuscript": corpus.CategoryThing, "building": corpus.CategoryThing,
	"item": corpus.CategoryThing, "drawing": corpus.CategoryThing, "print": corpus.CategoryThing,

	"concept": corpus.CategoryConcept, "style": corpus.CategoryConcept, "material": corpus.CategoryConcept,
	"technique": corpus.CategoryConcept, "theme": corpus.CategoryConcept, "subject": corpus.CategoryConcept,
	"movement": corpus.CategoryConcept, "genre": corpus.CategoryConcept,
}

// PatternAnalyzer classifies questions with phrase patterns and a category
// lexicon. It never fails and is the fallback when no LLM is available.
type PatternAnalyzer struct{}

// NewPatternAnalyzer creates a pattern analyzer.
func NewPatternAnalyzer() *PatternAnalyzer {
	return &PatternAnalyzer{}
}

// Analyze classifies query. History contributes context categories only.
func (p *PatternAnalyzer) Analyze(_ context.Context, query string, history []string) (Analysis, error) {
	a := Default()
	query = strings.TrimSpace(query)
	if query == "" {
		return a, nil
	}

	a.Type = p.queryType(query)
	a.Targets = categoriesIn(query)
	for _, turn := range history {
		a.Context |= categoriesIn(turn)
	}
	return a, nil
}

func (p *PatternAnalyzer) queryType(query string) QueryType {
	if aggregationPattern.MatchString(query) {
		return Aggregation
	}
	if enumerationVerbPattern.MatchString(query) || enumerationAllPattern.MatchString(query) {
		return Enumeration
	}
	for _, m := range pluralWhPattern.FindAllStringSubmatch(query, -1) {
		word := strings.ToLower(m[2])
		if singular(word) != word {
			if _, ok := categoryLexicon[singular(word)]; ok {
				return Enumeration
			}
		}
	}
	return Specific
}

// categoriesIn returns the categories whose cue words appear in text.
func categoriesIn(text string) corpus.CategorySet {
	var set corpus.CategorySet
	for _, tok := range store.Tokenize(text) {
		if c, ok := categoryLexicon[tok]; ok {
			set = set.With(c)
			continue
		}
		if c, ok := categoryLexicon[singular(tok)]; ok {
			set = set.With(c)
		}
	}
	return set
}

// singular strips common English plural endings.
func singular(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "ss"):
		return word
	case strings.HasSuffix(word, "s") && len(word) > 3:
		return word[:len(word)-1]
	}
	return word
}

var _ Analyzer = (*PatternAnalyzer)(nil)
