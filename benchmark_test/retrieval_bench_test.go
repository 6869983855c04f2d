package benchmark_test

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"github.com/hupe1980/imgmatch/database"
	"github.com/hupe1980/imgmatch/pairs"
	"github.com/hupe1980/imgmatch/testutil"
	"github.com/hupe1980/imgmatch/voctree"
)

// ============================================================================
// BENCHMARK METHODOLOGY
// ============================================================================
//
// 1. Setup (tree training, database population) before the timer
// 2. WARMUP: a few untimed queries to warm caches
// 3. runtime.GC() to clear setup allocations
// 4. b.ResetTimer() and measure b.N iterations

const (
	dim            = 128
	descsPerImage  = 500
	warmupQueries  = 10
	trainingImages = 50
)

func trainTree(b *testing.B, rng *testutil.RNG, centers [][]float32, levels, splits int) *voctree.Tree {
	b.Helper()
	descs := rng.DescriptorsNear(centers, trainingImages*descsPerImage/10, 0.05)
	tree, err := voctree.Build(context.Background(), descs, voctree.BuildOptions{
		Levels:        levels,
		Splits:        splits,
		MaxIterations: 10,
		Seed:          1,
	})
	if err != nil {
		b.Fatalf("build: %v", err)
	}
	return tree
}

func BenchmarkQuantize(b *testing.B) {
	for _, shape := range []struct{ levels, splits int }{{2, 10}, {3, 10}} {
		b.Run(fmt.Sprintf("L%d_K%d", shape.levels, shape.splits), func(b *testing.B) {
			rng := testutil.NewRNG(1)
			centers := rng.UnitVectors(64, dim)
			tree := trainTree(b, rng, centers, shape.levels, shape.splits)
			descs := rng.DescriptorsNear(centers, descsPerImage, 0.05)

			runtime.GC()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = tree.QuantizeToSparse(descs)
			}
			b.ReportMetric(float64(b.N*len(descs))/b.Elapsed().Seconds(), "descs/s")
		})
	}
}

func BenchmarkFind(b *testing.B) {
	for _, images := range []int{1_000, 10_000} {
		for _, scoring := range []database.Scoring{database.ScoreCosine, database.ScoreIntersection} {
			b.Run(fmt.Sprintf("%s/images=%d", scoring, images), func(b *testing.B) {
				const words = 100_000
				rng := testutil.NewRNG(2)
				db := database.New(words, database.WithScoring(scoring))
				for id := range images {
					hist := make(voctree.SparseHistogram)
					for range 200 {
						hist[uint32(rng.Intn(words))]++
					}
					if err := db.Insert(uint32(id), hist); err != nil {
						b.Fatalf("insert: %v", err)
					}
				}
				if err := db.ComputeTfIdfWeights(); err != nil {
					b.Fatalf("weights: %v", err)
				}

				query, _ := db.Histogram(0)
				for range warmupQueries {
					_ = db.Find(query, 50)
				}

				runtime.GC()
				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					_ = db.Find(query, 50)
				}
			})
		}
	}
}

func BenchmarkReduce(b *testing.B) {
	const images = 5_000
	const numMatches = 50
	rng := testutil.NewRNG(3)

	all := make(pairs.PairList, images)
	for id := range images {
		matches := make([]pairs.ImageID, numMatches)
		matches[0] = uint32(id)
		for j := 1; j < numMatches; j++ {
			matches[j] = uint32(rng.Intn(images))
		}
		all[uint32(id)] = matches
	}

	runtime.GC()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = pairs.Reduce(all, numMatches)
	}
}
