package retrieval

import (
	"math"
	"sort"

	"github.com/Aman-CERP/crmrag/internal/corpus"
)

// Adjacency is a symmetric N×N matrix over pool positions, stored flat.
type Adjacency struct {
	n     int
	cells []float64
}

// N returns the matrix order.
func (a *Adjacency) N() int { return a.n }

// At returns the cell (i, j).
func (a *Adjacency) At(i, j int) float64 { return a.cells[i*a.n+j] }

func (a *Adjacency) set(i, j int, v float64) {
	a.cells[i*a.n+j] = v
	a.cells[j*a.n+i] = v
}

// BuildAdjacency builds the normalized connectivity of ids from triples.
//
// Direct triples between two pool documents give the predicate weight
// (max over parallel triples). Every entity linked to two pool documents
// adds a virtual edge (w_a × w_b)/2 between them; direct and virtual
// weights add up and are capped at 1. The diagonal is 1 and the result is
// normalized as A[i,j]/sqrt(d_i·d_j). Work is bounded by the pool and the
// degrees of its documents; triples to unknown entities only matter as
// intermediates.
func BuildAdjacency(ids []string, triples *corpus.TriplesIndex, weights PredicateWeights) *Adjacency {
	n := len(ids)
	raw := &Adjacency{n: n, cells: make([]float64, n*n)}
	if n == 0 {
		return raw
	}

	index := make(map[string]int, n)
	for i, id := range ids {
		index[id] = i
	}

	direct := make([]float64, n*n)
	// via[m][i] is the strongest link from intermediate m to pool doc i.
	via := make(map[string]map[int]float64)
	for i, id := range ids {
		for _, e := range triples.Edges(id) {
			w := weights.Weight(e.Predicate)
			if j, ok := index[e.Neighbor]; ok && j != i {
				direct[i*n+j] = max(direct[i*n+j], w)
				direct[j*n+i] = max(direct[j*n+i], w)
			}
			links := via[e.Neighbor]
			if links == nil {
				links = make(map[int]float64)
				via[e.Neighbor] = links
			}
			links[i] = max(links[i], w)
		}
	}

	// Sorted iteration keeps floating-point sums reproducible.
	intermediates := make([]string, 0, len(via))
	for m, links := range via {
		if len(links) >= 2 {
			intermediates = append(intermediates, m)
		}
	}
	sort.Strings(intermediates)

	virtual := make([]float64, n*n)
	for _, m := range intermediates {
		links := via[m]
		members := make([]int, 0, len(links))
		for i := range links {
			members = append(members, i)
		}
		sort.Ints(members)
		for a := 0; a < len(members); a++ {
			for b := a + 1; b < len(members); b++ {
				i, j := members[a], members[b]
				v := links[i] * links[j] / 2
				virtual[i*n+j] += v
				virtual[j*n+i] += v
			}
		}
	}

	for i := 0; i < n; i++ {
		raw.cells[i*n+i] = 1
		for j := i + 1; j < n; j++ {
			raw.set(i, j, math.Min(1, direct[i*n+j]+virtual[i*n+j]))
		}
	}
	return normalizeAdjacency(raw)
}

// normalizeAdjacency applies D^-1/2 · A · D^-1/2. Rows with zero degree
// stay zero.
func normalizeAdjacency(a *Adjacency) *Adjacency {
	n := a.n
	deg := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			deg[i] += a.At(i, j)
		}
	}

	out := &Adjacency{n: n, cells: make([]float64, n*n)}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if deg[i] == 0 || deg[j] == 0 {
				continue
			}
			out.set(i, j, a.At(i, j)/math.Sqrt(deg[i]*deg[j]))
		}
	}
	return out
}
