package presence

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Clustering is the flat identity partition of one clip's embeddings.
type Clustering struct {
	// Labels maps embedding indices to cluster numbers. Numbering begins at 1
	// and follows the first appearance of each cluster in input order.
	Labels []int
	// Performed is false when fewer than two embeddings were supplied and no
	// linkage was computed.
	Performed bool
}

// Count returns the number of clusters.
func (c Clustering) Count() int {
	max := 0
	for _, l := range c.Labels {
		if l > max {
			max = l
		}
	}
	return max
}

// Sizes returns sizes of respective clusters, indexed by label-1.
func (c Clustering) Sizes() []int {
	sizes := make([]int, c.Count())
	for _, l := range c.Labels {
		sizes[l-1]++
	}
	return sizes
}

// Cluster groups embeddings into identities using complete linkage over
// Euclidean distances, cutting the dendrogram so that no cluster has a
// cophenetic distance above tolerance.
//
// Zero embeddings yield an empty result and a single embedding yields one
// cluster of size one; neither runs the linkage.
func Cluster(embeddings [][]float64, tolerance float64) (Clustering, error) {
	n := len(embeddings)
	switch n {
	case 0:
		return Clustering{}, nil
	case 1:
		return Clustering{Labels: []int{1}}, nil
	}

	dim := len(embeddings[0])
	for i, e := range embeddings {
		if len(e) != dim {
			return Clustering{}, fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(e), dim)
		}
	}

	dist := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dist.SetSym(i, j, floats.Distance(embeddings[i], embeddings[j], 2))
		}
	}

	// Complete-linkage heights never decrease towards the root, so the merges
	// at or below the cut are exactly the flat clusters.
	sets := newDisjointSet(n)
	for _, m := range completeLinkage(dist) {
		if m.height <= tolerance {
			sets.union(m.a, m.b)
		}
	}

	labels := make([]int, n)
	byRoot := make(map[int]int)
	for i := range labels {
		root := sets.find(i)
		label, ok := byRoot[root]
		if !ok {
			label = len(byRoot) + 1
			byRoot[root] = label
		}
		labels[i] = label
	}

	return Clustering{Labels: labels, Performed: true}, nil
}

type merge struct {
	a, b   int // slots of the merged clusters; the result keeps slot a
	height float64
}

// completeLinkage builds the full dendrogram with the nearest-neighbour chain
// algorithm in O(n²) time. dist is overwritten with Lance-Williams updates.
func completeLinkage(dist *mat.SymDense) []merge {
	n, _ := dist.Dims()
	active := make([]bool, n)
	for i := range active {
		active[i] = true
	}

	merges := make([]merge, 0, n-1)
	chain := make([]int, 0, n)

	for len(merges) < n-1 {
		if len(chain) == 0 {
			chain = append(chain, firstActive(active, -1))
		}

		a := chain[len(chain)-1]
		b, best := -1, math.Inf(1)
		// Ties resolve to the previous chain element, otherwise the chain cycles
		if len(chain) > 1 {
			b = chain[len(chain)-2]
			best = dist.At(a, b)
		}
		for k := 0; k < n; k++ {
			if !active[k] || k == a {
				continue
			}
			if d := dist.At(a, k); d < best {
				b, best = k, d
			}
		}
		if b == -1 {
			// Only NaN distances left
			b = firstActive(active, a)
			best = dist.At(a, b)
		}

		if len(chain) > 1 && b == chain[len(chain)-2] {
			chain = chain[:len(chain)-2]
			keep, drop := a, b
			if drop < keep {
				keep, drop = drop, keep
			}
			merges = append(merges, merge{a: keep, b: drop, height: best})
			active[drop] = false
			for k := 0; k < n; k++ {
				if !active[k] || k == keep {
					continue
				}
				dist.SetSym(keep, k, math.Max(dist.At(keep, k), dist.At(drop, k)))
			}
			continue
		}

		chain = append(chain, b)
	}

	return merges
}

func firstActive(active []bool, skip int) int {
	for i, ok := range active {
		if ok && i != skip {
			return i
		}
	}
	return -1
}

type disjointSet struct {
	parent []int
}

func newDisjointSet(n int) *disjointSet {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &disjointSet{parent: parent}
}

func (s *disjointSet) find(i int) int {
	for s.parent[i] != i {
		s.parent[i] = s.parent[s.parent[i]]
		i = s.parent[i]
	}
	return i
}

func (s *disjointSet) union(a, b int) {
	ra, rb := s.find(a), s.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	s.parent[rb] = ra
}
