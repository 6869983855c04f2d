package kmeans

import (
	"context"
	"errors"
	"math"
	"math/rand"

	"github.com/hupe1980/imgmatch/distance"
)

// ErrNotEnoughVectors is returned when fewer vectors than clusters are given.
var ErrNotEnoughVectors = errors.New("kmeans: not enough vectors")

// Result holds the outcome of a clustering run.
type Result struct {
	// Centroids are flattened, k * dim.
	Centroids []float32
	// Assignments maps every input vector to its centroid.
	Assignments []int
	// Iterations is the number of Lloyd iterations performed.
	Iterations int
}

// Train clusters the flattened vectors (n * dim) into k centroids.
//
// Centroids are seeded with k-means++ using rng.
// Training stops when no assignment changes or after maxIter iterations.
// The returned assignments always refer to the returned centroids.
// Clusters that become empty are re-seeded with a random input vector.
func Train(ctx context.Context, vectors []float32, dim, k, maxIter int, rng *rand.Rand) (*Result, error) {
	if dim <= 0 || k <= 0 {
		return nil, errors.New("kmeans: dim and k must be positive")
	}
	n := len(vectors) / dim
	if n < k {
		return nil, ErrNotEnoughVectors
	}
	if maxIter <= 0 {
		maxIter = 1
	}

	centroids := seedPlusPlus(vectors, n, dim, k, rng)

	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	iter := 0
	converged := false
	for iter < maxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iter++

		// Assignment step
		changed := false
		for i := 0; i < n; i++ {
			best := Assign(vectors[i*dim:(i+1)*dim], centroids, dim)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		if !changed {
			converged = true
			break
		}

		// Update step
		clear(sums)
		clear(counts)

		for i := 0; i < n; i++ {
			c := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			row := sums[c*dim : (c+1)*dim]
			for d := range vec {
				row[d] += vec[d]
			}
			counts[c]++
		}

		for j := 0; j < k; j++ {
			if counts[j] > 0 {
				scale := 1.0 / float32(counts[j])
				for d := 0; d < dim; d++ {
					centroids[j*dim+d] = sums[j*dim+d] * scale
				}
			} else {
				idx := rng.Intn(n)
				copy(centroids[j*dim:(j+1)*dim], vectors[idx*dim:(idx+1)*dim])
			}
		}
	}

	// The last update step moved the centroids after the last assignment.
	if !converged {
		for i := 0; i < n; i++ {
			assignments[i] = Assign(vectors[i*dim:(i+1)*dim], centroids, dim)
		}
	}

	return &Result{Centroids: centroids, Assignments: assignments, Iterations: iter}, nil
}

// Assign returns the index of the closest centroid to vec by squared L2.
// Ties resolve to the lowest index.
func Assign(vec, centroids []float32, dim int) int {
	k := len(centroids) / dim
	best := -1
	minDist := float32(math.MaxFloat32)

	for j := 0; j < k; j++ {
		d := distance.SquaredL2(vec, centroids[j*dim:(j+1)*dim])
		if d < minDist {
			minDist = d
			best = j
		}
	}

	return best
}

// seedPlusPlus picks the first centroid uniformly and every further one with
// probability proportional to its squared distance to the closest centroid
// chosen so far.
func seedPlusPlus(vectors []float32, n, dim, k int, rng *rand.Rand) []float32 {
	centroids := make([]float32, k*dim)
	first := rng.Intn(n)
	copy(centroids[:dim], vectors[first*dim:(first+1)*dim])

	closest := make([]float64, n)
	for i := range closest {
		closest[i] = float64(distance.SquaredL2(vectors[i*dim:(i+1)*dim], centroids[:dim]))
	}

	for c := 1; c < k; c++ {
		var total float64
		for _, d := range closest {
			total += d
		}

		pick := rng.Intn(n)
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range closest {
				target -= d
				if target < 0 {
					pick = i
					break
				}
			}
		}

		row := centroids[c*dim : (c+1)*dim]
		copy(row, vectors[pick*dim:(pick+1)*dim])
		for i := range closest {
			if d := float64(distance.SquaredL2(vectors[i*dim:(i+1)*dim], row)); d < closest[i] {
				closest[i] = d
			}
		}
	}

	return centroids
}
