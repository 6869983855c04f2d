package voctree

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/imgmatch/internal/kmeans"
)

// BuildOptions configures vocabulary training.
type BuildOptions struct {
	// Levels is the tree depth (default 6).
	Levels int
	// Splits is the branching factor (default 10).
	Splits int
	// MaxIterations bounds the k-means iterations per node (default 20).
	MaxIterations int
	// Seed makes training reproducible.
	Seed int64
	// Workers bounds the number of nodes clustered in parallel
	// (default GOMAXPROCS).
	Workers int
}

// DefaultBuildOptions returns the options used when fields are left zero.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Levels:        6,
		Splits:        10,
		MaxIterations: 20,
		Workers:       runtime.GOMAXPROCS(0),
	}
}

// ErrNoDescriptors is returned when Build is called without training data.
var ErrNoDescriptors = errors.New("voctree: no training descriptors")

// frontier is a valid node whose children still need to be trained.
type frontier struct {
	index  int   // index within its level
	points []int // indices of the descriptors that reached it
}

// Build trains a tree by hierarchical k-means.
//
// Each node splits the descriptors that reached it into Splits clusters.
// A node reached by fewer descriptors than Splits gets one child per
// descriptor and the remaining children stay invalid; a node reached by no
// descriptor inherits its own centroid as its only child. Training is
// deterministic for a given seed regardless of Workers.
func Build(ctx context.Context, descs [][]float32, opts BuildOptions) (*Tree, error) {
	def := DefaultBuildOptions()
	if opts.Levels == 0 {
		opts.Levels = def.Levels
	}
	if opts.Splits == 0 {
		opts.Splits = def.Splits
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}

	if len(descs) == 0 {
		return nil, ErrNoDescriptors
	}
	dim := len(descs[0])

	t, err := newTree(opts.Levels, opts.Splits, dim)
	if err != nil {
		return nil, err
	}

	data := make([]float32, 0, len(descs)*dim)
	for i, d := range descs {
		if len(d) != dim {
			return nil, fmt.Errorf("voctree: descriptor %d has dim %d, want %d", i, len(d), dim)
		}
		data = append(data, d...)
	}

	all := make([]int, len(descs))
	for i := range all {
		all[i] = i
	}
	nodes := []frontier{{index: 0, points: all}}

	for l := 0; l < t.levels; l++ {
		children := make([][]frontier, len(nodes))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for i, nd := range nodes {
			g.Go(func() error {
				var parent []float32
				if l > 0 {
					parent = t.centroid(t.offsets[l-1] + nd.index)
				}
				next, err := t.split(gctx, data, l, nd, parent, opts)
				if err != nil {
					return err
				}
				children[i] = next
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []frontier
		for _, c := range children {
			for _, nd := range c {
				t.valid.Set(uint(t.offsets[l] + nd.index))
			}
			next = append(next, c...)
		}
		nodes = next
	}

	return t, nil
}

// split trains the children of node nd (at level l-1; the root for l == 0)
// and returns the children that became valid. Concurrent calls write
// disjoint centroid ranges; the caller marks the returned children valid.
func (t *Tree) split(ctx context.Context, data []float32, l int, nd frontier, parent []float32, opts BuildOptions) ([]frontier, error) {
	dim := t.dim
	first := t.offsets[l] + nd.index*t.splits
	n := len(nd.points)

	var out []frontier

	switch {
	case n == 0:
		copy(t.centroid(first), parent)
		out = append(out, frontier{index: nd.index * t.splits})
	case n < t.splits:
		for c, p := range nd.points {
			copy(t.centroid(first+c), data[p*dim:(p+1)*dim])
			out = append(out, frontier{index: nd.index*t.splits + c, points: []int{p}})
		}
	default:
		vecs := make([]float32, 0, n*dim)
		for _, p := range nd.points {
			vecs = append(vecs, data[p*dim:(p+1)*dim]...)
		}

		rng := rand.New(rand.NewSource(opts.Seed ^ int64(first)*0x9E3779B9))
		res, err := kmeans.Train(ctx, vecs, dim, t.splits, opts.MaxIterations, rng)
		if err != nil {
			return nil, err
		}
		copy(t.centroids[first*dim:(first+t.splits)*dim], res.Centroids)

		buckets := make([][]int, t.splits)
		for i, a := range res.Assignments {
			buckets[a] = append(buckets[a], nd.points[i])
		}
		for c := range buckets {
			out = append(out, frontier{index: nd.index*t.splits + c, points: buckets[c]})
		}
	}

	return out, nil
}
