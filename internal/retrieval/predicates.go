package retrieval

import (
	"regexp"
	"strings"
)

var propertyCodePattern = regexp.MustCompile(`(?i)(?:^|[/#:])(P\d+)i?(?:_|$)`)

// builtinPredicateWeights scores CIDOC-CRM properties by how strongly they
// tie two entities together. Spatial containment ranks highest.
var builtinPredicateWeights = map[string]float64{
	"P89":  1.0,  // falls within
	"P88":  1.0,  // consists of (place)
	"P7":   0.95, // took place at
	"P53":  0.9,  // has former or current location
	"P55":  0.9,  // has current location
	"P156": 0.9,  // occupies
	"P74":  0.85, // has current or former residence
	"P14":  0.9,  // carried out by
	"P108": 0.9,  // has produced
	"P94":  0.9,  // has created
	"P92":  0.85, // brought into existence
	"P98":  0.85, // brought into life
	"P100": 0.85, // was death of
	"P11":  0.85, // had participant
	"P12":  0.75, // occurred in presence of
	"P46":  0.85, // is composed of
	"P106": 0.8,  // is composed of (symbolic)
	"P107": 0.8,  // has current or former member
	"P62":  0.8,  // depicts
	"P65":  0.75, // shows visual item
	"P128": 0.75, // carries
	"P67":  0.7,  // refers to
	"P129": 0.7,  // is about
	"P9":   0.75, // consists of (period)
	"P10":  0.75, // falls within (period)
	"P4":   0.65, // has time-span
	"P45":  0.65, // consists of (material)
	"P32":  0.6,  // used general technique
	"P16":  0.6,  // used specific object
	"P1":   0.5,  // is identified by
	"P2":   0.5,  // has type
}

// PredicateWeights maps relationship predicates to edge weights.
type PredicateWeights struct {
	table map[string]float64
	def   float64
}

// NewPredicateWeights merges overrides over the built-in table. Override
// keys may be codes ("P89") or full names ("P89_falls_within").
func NewPredicateWeights(overrides map[string]float64, def float64) PredicateWeights {
	table := make(map[string]float64, len(builtinPredicateWeights)+len(overrides))
	for k, v := range builtinPredicateWeights {
		table[k] = v
	}
	for k, v := range overrides {
		table[predicateKey(k)] = v
	}
	return PredicateWeights{table: table, def: def}
}

// Weight returns the weight of predicate. Inverse properties ("P89i")
// share the weight of the forward one; unknown predicates get the default.
func (w PredicateWeights) Weight(predicate string) float64 {
	if v, ok := w.table[predicateKey(predicate)]; ok {
		return v
	}
	return w.def
}

// predicateKey extracts the upper-case property code, or falls back to the
// trimmed predicate itself for non-CRM vocabularies.
func predicateKey(predicate string) string {
	if m := propertyCodePattern.FindStringSubmatch(predicate); m != nil {
		return strings.ToUpper(m[1])
	}
	return strings.TrimSpace(predicate)
}
