// Package corpus holds the immutable, build-time data the retrieval engine
// reads: entity documents with their category index, the relationship
// triples, and the per-category centrality rankings.
package corpus

import (
	"fmt"
	"strings"
)

// Category is the coarse class of an entity document. The set is closed.
type Category uint8

const (
	CategoryThing Category = iota
	CategoryActor
	CategoryPlace
	CategoryEvent
	CategoryConcept
	CategoryTime
	// CategoryAppellation marks pure naming entities.
	CategoryAppellation
	// CategoryType marks generic type tags.
	CategoryType

	numCategories
)

var categoryNames = [numCategories]string{
	CategoryThing:       "Thing",
	CategoryActor:       "Actor",
	CategoryPlace:       "Place",
	CategoryEvent:       "Event",
	CategoryConcept:     "Concept",
	CategoryTime:        "Time",
	CategoryAppellation: "Appellation",
	CategoryType:        "Type",
}

// AllCategories returns every category in declaration order.
func AllCategories() []Category {
	out := make([]Category, numCategories)
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// String returns the canonical label.
func (c Category) String() string {
	if c.Valid() {
		return categoryNames[c]
	}
	return fmt.Sprintf("Category(%d)", uint8(c))
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	return c < numCategories
}

// Informative is false for the label-only categories, which carry little
// content per document.
func (c Category) Informative() bool {
	return c != CategoryAppellation && c != CategoryType
}

// ParseCategory resolves a label case-insensitively.
func ParseCategory(s string) (Category, error) {
	label := strings.TrimSpace(s)
	for i, name := range categoryNames {
		if strings.EqualFold(name, label) {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// CategorySet is a set of categories stored as a bitmask.
type CategorySet uint16

// NewCategorySet returns a set holding cats.
func NewCategorySet(cats ...Category) CategorySet {
	var s CategorySet
	for _, c := range cats {
		s = s.With(c)
	}
	return s
}

// ParseCategorySet parses labels into a set, failing on the first unknown one.
func ParseCategorySet(labels []string) (CategorySet, error) {
	var s CategorySet
	for _, l := range labels {
		c, err := ParseCategory(l)
		if err != nil {
			return 0, err
		}
		s = s.With(c)
	}
	return s, nil
}

// With returns s plus c.
func (s CategorySet) With(c Category) CategorySet {
	if !c.Valid() {
		return s
	}
	return s | 1<<c
}

// Has reports whether c is in s.
func (s CategorySet) Has(c Category) bool {
	return c.Valid() && s&(1<<c) != 0
}

// Empty reports whether s has no members.
func (s CategorySet) Empty() bool { return s == 0 }

// Slice lists the members in declaration order.
func (s CategorySet) Slice() []Category {
	var out []Category
	for c := Category(0); c < numCategories; c++ {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Strings lists the member labels in declaration order.
func (s CategorySet) Strings() []string {
	cats := s.Slice()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.String()
	}
	return out
}

func (s CategorySet) String() string {
	return "{" + strings.Join(s.Strings(), ",") + "}"
}

// MarshalJSON encodes the set as a list of labels.
func (s CategorySet) MarshalJSON() ([]byte, error) {
	labels := s.Strings()
	var b strings.Builder
	b.WriteByte('[')
	for i, l := range labels {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`"` + l + `"`)
	}
	b.WriteByte(']')
	return []byte(b.String()), nil
}
