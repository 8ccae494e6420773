package retrieval

import (
	"regexp"
	"strings"

	"github.com/Aman-CERP/crmrag/internal/store"
)

// pivotPattern marks a question that moves away from the conversation.
var pivotPattern = regexp.MustCompile(`(?i)\b(aside from|other than|apart from|besides|except for|excluding|instead of)\b`)

// fillerWords carry no retrievable content in a follow-up question.
var fillerWords = store.BuildStopWordMap([]string{
	"he", "him", "his", "she", "her", "hers", "they", "them", "their", "it", "its",
	"this", "that", "these", "those", "one", "ones", "someone", "something",
	"i", "you", "we", "us", "my", "your", "else", "another", "anything",
	"say", "know", "explain", "describe", "detail", "details", "info", "information",
	"yes", "ok", "okay", "thanks", "go", "on", "then", "so",
})

// isPivot reports whether the question explicitly leaves prior context.
func isPivot(query string) bool {
	return pivotPattern.MatchString(query)
}

// isVague reports whether the question has no content words of its own,
// e.g. "what about him?" or "tell me more".
func isVague(query string, maxTokens int) bool {
	tokens := store.Tokenize(query)
	if len(tokens) > maxTokens {
		return false
	}
	for _, tok := range store.FilterStopWords(tokens, fillerWords) {
		if !store.IsStopWord(tok) {
			return false
		}
	}
	return true
}

// contextualize prefixes the question with the last turns of history.
func contextualize(history []string, query string, turns int) string {
	if turns < len(history) {
		history = history[len(history)-turns:]
	}
	parts := make([]string, 0, len(history)+1)
	for _, h := range history {
		if h = strings.TrimSpace(h); h != "" {
			parts = append(parts, h)
		}
	}
	parts = append(parts, strings.TrimSpace(query))
	return strings.Join(parts, " ")
}

// interleave alternates a and b, starting with a, keeping the first
// occurrence of each id with the higher of its scores, and stops at limit.
func interleave(a, b []Candidate, limit int) []Candidate {
	out := make([]Candidate, 0, min(len(a)+len(b), limit))
	pos := make(map[string]int, cap(out))
	add := func(c Candidate) {
		if i, ok := pos[c.DocID]; ok {
			if c.Score > out[i].Score {
				out[i].Score = c.Score
			}
			return
		}
		if len(out) < limit {
			pos[c.DocID] = len(out)
			out = append(out, c)
		}
	}
	for i := 0; i < max(len(a), len(b)); i++ {
		if i < len(a) {
			add(a[i])
		}
		if i < len(b) {
			add(b[i])
		}
	}
	return out
}

// unionMax merges ranked lists, keeping each id once with its highest
// score, and returns them in rank order.
func unionMax(lists ...[]Candidate) []Candidate {
	var out []Candidate
	pos := make(map[string]int)
	for _, l := range lists {
		for _, c := range l {
			if i, ok := pos[c.DocID]; ok {
				if c.Score > out[i].Score {
					out[i] = c
				}
				continue
			}
			pos[c.DocID] = len(out)
			out = append(out, c)
		}
	}
	sortCandidates(out)
	return out
}
