package voctree

import (
	"errors"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/imgmatch/distance"
)

// ErrInvalidTree is returned for trees with an inconsistent shape.
var ErrInvalidTree = errors.New("voctree: invalid tree")

// maxCentroidFloats bounds the centroid array of a single tree.
const maxCentroidFloats = 1 << 31

// Tree is a vocabulary tree. The zero value is not usable; obtain one via
// Load or Build.
type Tree struct {
	levels int
	splits int
	dim    int

	// offsets[l] is the index of the first node of level l.
	offsets   []int
	centroids []float32
	valid     *bitset.BitSet
}

// centroidCount returns (splits^(levels+1) - splits) / (splits - 1), the
// number of non-root nodes.
func centroidCount(levels, splits int) (int, error) {
	if levels < 1 || splits < 2 {
		return 0, fmt.Errorf("%w: levels=%d splits=%d", ErrInvalidTree, levels, splits)
	}
	total, width := 0, 1
	for l := 0; l < levels; l++ {
		if width > math.MaxInt32/splits {
			return 0, fmt.Errorf("%w: %d^%d words overflow", ErrInvalidTree, splits, levels)
		}
		width *= splits
		total += width
	}
	return total, nil
}

// checkShape validates a tree shape and returns its centroid count.
func checkShape(levels, splits, dim int) (int, error) {
	if dim < 1 {
		return 0, fmt.Errorf("%w: dim=%d", ErrInvalidTree, dim)
	}
	count, err := centroidCount(levels, splits)
	if err != nil {
		return 0, err
	}
	if count > maxCentroidFloats/dim {
		return 0, fmt.Errorf("%w: %d centroids of dim %d", ErrInvalidTree, count, dim)
	}
	return count, nil
}

func newTree(levels, splits, dim int) (*Tree, error) {
	count, err := checkShape(levels, splits, dim)
	if err != nil {
		return nil, err
	}

	offsets := make([]int, levels+1)
	width := 1
	for l := 0; l < levels; l++ {
		width *= splits
		offsets[l+1] = offsets[l] + width
	}

	return &Tree{
		levels:    levels,
		splits:    splits,
		dim:       dim,
		offsets:   offsets,
		centroids: make([]float32, count*dim),
		valid:     bitset.New(uint(count)),
	}, nil
}

// Levels returns the depth of the tree.
func (t *Tree) Levels() int { return t.levels }

// Splits returns the branching factor.
func (t *Tree) Splits() int { return t.splits }

// Dim returns the descriptor dimension.
func (t *Tree) Dim() int { return t.dim }

// Words returns splits^levels, the size of the visual vocabulary.
func (t *Tree) Words() int {
	return t.offsets[t.levels] - t.offsets[t.levels-1]
}

// Centroids returns the number of non-root nodes.
func (t *Tree) Centroids() int { return t.offsets[t.levels] }

func (t *Tree) centroid(node int) []float32 {
	return t.centroids[node*t.dim : (node+1)*t.dim]
}

// Quantize maps a descriptor of length Dim() to its word id.
//
// At every level the nearest valid child by squared L2 is chosen; on equal
// distances the lowest child index wins.
func (t *Tree) Quantize(desc []float32) uint32 {
	idx := 0
	for l := 0; l < t.levels; l++ {
		first := t.offsets[l] + idx*t.splits
		best := -1
		bestDist := float32(math.MaxFloat32)
		for c := 0; c < t.splits; c++ {
			node := first + c
			if !t.valid.Test(uint(node)) {
				continue
			}
			if d := distance.SquaredL2(desc, t.centroid(node)); best < 0 || d < bestDist {
				best = c
				bestDist = d
			}
		}
		// Load and Build guarantee a valid child below every valid node.
		idx = idx*t.splits + best
	}
	return uint32(idx)
}

// QuantizeToSparse quantizes every descriptor and counts word occurrences.
func (t *Tree) QuantizeToSparse(descs [][]float32) SparseHistogram {
	h := make(SparseHistogram, len(descs))
	for _, d := range descs {
		h[t.Quantize(d)]++
	}
	return h
}

// validate checks that a descent can never get stuck: the root and every
// valid non-leaf node must have at least one valid child.
func (t *Tree) validate() error {
	if !t.hasValidChild(-1, 0) {
		return fmt.Errorf("%w: root has no valid child", ErrInvalidTree)
	}
	for l := 0; l < t.levels-1; l++ {
		for j := 0; j < t.offsets[l+1]-t.offsets[l]; j++ {
			if !t.valid.Test(uint(t.offsets[l] + j)) {
				continue
			}
			if !t.hasValidChild(l, j) {
				return fmt.Errorf("%w: node %d of level %d has no valid child", ErrInvalidTree, j, l)
			}
		}
	}
	return nil
}

// hasValidChild reports whether node j of level l has a valid child.
// Level -1 denotes the root.
func (t *Tree) hasValidChild(l, j int) bool {
	first := t.offsets[l+1] + j*t.splits
	for c := 0; c < t.splits; c++ {
		if t.valid.Test(uint(first + c)) {
			return true
		}
	}
	return false
}
