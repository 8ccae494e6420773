package corpus

// Triple is one relationship between two entities. Labels are carried for
// enrichment only and never affect scoring.
type Triple struct {
	Subject        string `json:"subject"`
	Predicate      string `json:"predicate"`
	Object         string `json:"object"`
	SubjectLabel   string `json:"subject_label,omitempty"`
	PredicateLabel string `json:"predicate_label,omitempty"`
	ObjectLabel    string `json:"object_label,omitempty"`
}

// Edge is a triple seen from one of its endpoints.
type Edge struct {
	Neighbor  string
	Predicate string
}

// TriplesIndex maps every entity to the triples it takes part in, in either
// direction. Entities need not be documents.
type TriplesIndex struct {
	triples  []Triple
	byEntity map[string][]int
}

// NewTriplesIndex indexes triples by subject and object. Triples with an
// empty endpoint are dropped.
func NewTriplesIndex(triples []Triple) *TriplesIndex {
	idx := &TriplesIndex{
		triples:  make([]Triple, 0, len(triples)),
		byEntity: make(map[string][]int),
	}
	for _, t := range triples {
		if t.Subject == "" || t.Object == "" {
			continue
		}
		i := len(idx.triples)
		idx.triples = append(idx.triples, t)
		idx.byEntity[t.Subject] = append(idx.byEntity[t.Subject], i)
		if t.Object != t.Subject {
			idx.byEntity[t.Object] = append(idx.byEntity[t.Object], i)
		}
	}
	return idx
}

// Len returns the number of indexed triples.
func (x *TriplesIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.triples)
}

// All returns every triple in insertion order. The slice must not be modified.
func (x *TriplesIndex) All() []Triple {
	if x == nil {
		return nil
	}
	return x.triples
}

// Touching returns the triples whose subject or object is entity.
func (x *TriplesIndex) Touching(entity string) []Triple {
	if x == nil {
		return nil
	}
	ids := x.byEntity[entity]
	out := make([]Triple, len(ids))
	for i, ti := range ids {
		out[i] = x.triples[ti]
	}
	return out
}

// Edges returns the neighbours of entity with the connecting predicate,
// one per triple. Self-referencing triples are omitted.
func (x *TriplesIndex) Edges(entity string) []Edge {
	if x == nil {
		return nil
	}
	ids := x.byEntity[entity]
	out := make([]Edge, 0, len(ids))
	for _, ti := range ids {
		t := x.triples[ti]
		switch {
		case t.Subject == t.Object:
			continue
		case t.Subject == entity:
			out = append(out, Edge{Neighbor: t.Object, Predicate: t.Predicate})
		default:
			out = append(out, Edge{Neighbor: t.Subject, Predicate: t.Predicate})
		}
	}
	return out
}
