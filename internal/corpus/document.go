package corpus

import (
	"fmt"
	"sort"

	"github.com/Aman-CERP/crmrag/internal/errors"
)

// Document is one entity rendered as text with its embedding.
type Document struct {
	ID             string
	Text           string
	Embedding      []float32
	Category       Category
	RawTripleCount int
}

// Store owns the corpus. It is immutable once built and safe for
// concurrent readers.
type Store struct {
	docs       []*Document // sorted by ID
	byID       map[string]int
	byCategory [numCategories][]int
	dimension  int
}

// NewStore validates docs and builds the id and category indices.
// Every document must have a unique non-empty id, a valid category and an
// embedding of the same length as all others.
func NewStore(docs []Document) (*Store, error) {
	s := &Store{
		docs: make([]*Document, 0, len(docs)),
		byID: make(map[string]int, len(docs)),
	}

	for i := range docs {
		d := docs[i]
		if d.ID == "" {
			return nil, errors.ValidationError(fmt.Sprintf("document %d has an empty id", i), nil)
		}
		if !d.Category.Valid() {
			return nil, errors.New(errors.ErrCodeUnknownCategory,
				fmt.Sprintf("document %s has an invalid category", d.ID), nil)
		}
		if len(s.docs) == 0 {
			s.dimension = len(d.Embedding)
		} else if len(d.Embedding) != s.dimension {
			return nil, errors.New(errors.ErrCodeDimensionMismatch,
				fmt.Sprintf("document %s has embedding dimension %d, corpus has %d", d.ID, len(d.Embedding), s.dimension), nil)
		}
		s.docs = append(s.docs, &d)
	}

	sort.Slice(s.docs, func(i, j int) bool { return s.docs[i].ID < s.docs[j].ID })

	for i, d := range s.docs {
		if _, dup := s.byID[d.ID]; dup {
			return nil, errors.ValidationError(fmt.Sprintf("duplicate document id %s", d.ID), nil)
		}
		s.byID[d.ID] = i
		s.byCategory[d.Category] = append(s.byCategory[d.Category], i)
	}

	return s, nil
}

// Len returns the number of documents.
func (s *Store) Len() int { return len(s.docs) }

// Dimension returns the embedding dimension, 0 for an empty corpus.
func (s *Store) Dimension() int { return s.dimension }

// Get looks a document up by id.
func (s *Store) Get(id string) (*Document, bool) {
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return s.docs[i], true
}

// Contains reports whether id is a document.
func (s *Store) Contains(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Documents returns all documents ordered by id. The slice must not be modified.
func (s *Store) Documents() []*Document { return s.docs }

// InCategories returns the documents whose category is in cats, ordered by id.
func (s *Store) InCategories(cats CategorySet) []*Document {
	var idx []int
	for _, c := range cats.Slice() {
		idx = append(idx, s.byCategory[c]...)
	}
	sort.Ints(idx)

	out := make([]*Document, len(idx))
	for i, di := range idx {
		out[i] = s.docs[di]
	}
	return out
}

// CountInCategories returns how many documents fall in cats.
func (s *Store) CountInCategories(cats CategorySet) int {
	n := 0
	for _, c := range cats.Slice() {
		n += len(s.byCategory[c])
	}
	return n
}

// CategoryCounts returns the number of documents per category.
func (s *Store) CategoryCounts() map[Category]int {
	out := make(map[Category]int, numCategories)
	for c := Category(0); c < numCategories; c++ {
		if n := len(s.byCategory[c]); n > 0 {
			out[c] = n
		}
	}
	return out
}

// ValidateDimension checks an embedder's output size against the corpus.
// An empty corpus accepts any dimension.
func (s *Store) ValidateDimension(dim int) error {
	if len(s.docs) == 0 || dim == s.dimension {
		return nil
	}
	return errors.DimensionMismatch(s.dimension, dim)
}
