package database

import (
	"bytes"
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imgmatch/blobstore"
	"github.com/hupe1980/imgmatch/persistence"
	"github.com/hupe1980/imgmatch/voctree"
)

func populated(t *testing.T, opts ...Option) *Database {
	t.Helper()
	db := New(8, opts...)
	require.NoError(t, db.Insert(1, voctree.SparseHistogram{0: 2, 1: 1}))
	require.NoError(t, db.Insert(2, voctree.SparseHistogram{0: 2, 1: 1, 2: 1}))
	require.NoError(t, db.Insert(3, voctree.SparseHistogram{5: 3}))
	require.NoError(t, db.Insert(4, voctree.SparseHistogram{1: 1, 5: 1}))
	return db
}

func TestNewUniformWeights(t *testing.T) {
	db := New(4)
	assert.Equal(t, []float32{1, 1, 1, 1}, db.Weights())
	assert.Equal(t, 4, db.Words())
	assert.Equal(t, ScoreCosine, db.Scoring())
	assert.Equal(t, StateEmpty, db.State())
}

func TestInsert(t *testing.T) {
	db := New(4)
	hist := voctree.SparseHistogram{1: 2}
	require.NoError(t, db.Insert(7, hist))
	hist[1] = 99

	h, ok := db.Histogram(7)
	require.True(t, ok)
	assert.Equal(t, voctree.SparseHistogram{1: 2}, h)

	require.NoError(t, db.Insert(7, voctree.SparseHistogram{3: 1}))
	h, _ = db.Histogram(7)
	assert.Equal(t, voctree.SparseHistogram{3: 1}, h)
	assert.Equal(t, 1, db.Size())
	assert.Equal(t, StatePopulated, db.State())

	err := db.Insert(8, voctree.SparseHistogram{4: 1})
	assert.ErrorIs(t, err, ErrWordOutOfRange)

	_, ok = db.Histogram(42)
	assert.False(t, ok)
}

func TestHistogramsAscending(t *testing.T) {
	db := New(4)
	for _, id := range []uint32{9, 3, 5} {
		require.NoError(t, db.Insert(id, voctree.SparseHistogram{0: id}))
	}

	var ids []uint32
	for id, h := range db.Histograms() {
		ids = append(ids, id)
		assert.Equal(t, id, h[0])
	}
	assert.Equal(t, []uint32{3, 5, 9}, ids)
}

func TestComputeTfIdfWeights(t *testing.T) {
	db := populated(t)
	require.NoError(t, db.ComputeTfIdfWeights())
	assert.Equal(t, StateWeighted, db.State())

	w := db.Weights()
	assert.InDelta(t, math.Log(4.0/2.0), w[0], 1e-6)
	assert.InDelta(t, math.Log(4.0/3.0), w[1], 1e-6)
	assert.InDelta(t, math.Log(4.0/1.0), w[2], 1e-6)
	assert.InDelta(t, math.Log(4.0/2.0), w[5], 1e-6)
	assert.Equal(t, float32(0), w[3])
	assert.Equal(t, float32(0), w[7])
}

func TestFindSelfIsBest(t *testing.T) {
	for _, s := range []Scoring{ScoreCosine, ScoreIntersection} {
		t.Run(s.String(), func(t *testing.T) {
			db := populated(t, WithScoring(s))
			require.NoError(t, db.ComputeTfIdfWeights())

			for id, h := range db.Histograms() {
				res := db.Find(h, 1)
				require.Len(t, res, 1)
				assert.Equal(t, id, res[0].ID)
				assert.InDelta(t, 1.0, res[0].Score, 1e-5)
			}
		})
	}
}

func TestFindRanking(t *testing.T) {
	db := populated(t)
	require.NoError(t, db.ComputeTfIdfWeights())

	res := db.Find(voctree.SparseHistogram{0: 2, 1: 1}, 0)
	require.Len(t, res, 4)
	assert.Equal(t, uint32(1), res[0].ID)
	assert.Equal(t, uint32(2), res[1].ID)
	assert.Equal(t, uint32(4), res[2].ID)
	assert.Equal(t, uint32(3), res[3].ID)
	assert.Equal(t, float32(0), res[3].Score)

	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}
	for _, m := range res {
		assert.GreaterOrEqual(t, m.Score, float32(0))
		assert.LessOrEqual(t, m.Score, float32(1))
	}
}

func TestFindK(t *testing.T) {
	db := populated(t)
	q := voctree.SparseHistogram{5: 1}

	assert.Len(t, db.Find(q, 0), db.Size())
	assert.Len(t, db.Find(q, 2), 2)
	assert.Len(t, db.Find(q, 4), 4)
	assert.Len(t, db.Find(q, 100), 4)
}

func TestFindTiesByAscendingID(t *testing.T) {
	db := New(4)
	for _, id := range []uint32{30, 10, 20} {
		require.NoError(t, db.Insert(id, voctree.SparseHistogram{1: 1}))
	}

	res := db.Find(voctree.SparseHistogram{2: 1}, 0)
	assert.Equal(t, []DocMatch{{ID: 10}, {ID: 20}, {ID: 30}}, res)

	res = db.Find(voctree.SparseHistogram{1: 5}, 2)
	require.Len(t, res, 2)
	assert.Equal(t, uint32(10), res[0].ID)
	assert.Equal(t, uint32(20), res[1].ID)
}

func TestFindEmpty(t *testing.T) {
	db := New(4)
	res := db.Find(voctree.SparseHistogram{1: 1}, 5)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestFrozenAfterFind(t *testing.T) {
	db := populated(t)
	db.Find(voctree.SparseHistogram{0: 1}, 1)
	assert.Equal(t, StateQueryable, db.State())

	assert.ErrorIs(t, db.Insert(9, voctree.SparseHistogram{0: 1}), ErrFrozen)
	assert.ErrorIs(t, db.ComputeTfIdfWeights(), ErrFrozen)
	assert.ErrorIs(t, db.SetWeights(make([]float32, 8)), ErrFrozen)
}

func TestFindConcurrent(t *testing.T) {
	db := populated(t)
	require.NoError(t, db.ComputeTfIdfWeights())
	want := db.Find(voctree.SparseHistogram{0: 1, 5: 1}, 0)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := db.Find(voctree.SparseHistogram{0: 1, 5: 1}, 0)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestWeightsRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := populated(t)
	require.NoError(t, src.ComputeTfIdfWeights())

	var buf bytes.Buffer
	require.NoError(t, src.SaveWeights(&buf, persistence.CompressionZSTD))

	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "w.bin", buf.Bytes()))

	dst := New(8)
	require.NoError(t, dst.LoadWeights(ctx, store, "w.bin"))
	assert.Equal(t, src.Weights(), dst.Weights())
	assert.Equal(t, StateWeighted, dst.State())
}

func TestSaveWeightsFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := New(3)
	require.NoError(t, src.SetWeights([]float32{0.5, 1.5, 2.5}))
	require.NoError(t, src.SaveWeightsFile(dir+"/weights.bin", persistence.CompressionNone))

	dst := New(3)
	require.NoError(t, dst.LoadWeights(ctx, blobstore.NewLocalStore(dir), "weights.bin"))
	assert.Equal(t, []float32{0.5, 1.5, 2.5}, dst.Weights())
}

func TestLoadWeightsErrors(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	db := New(4)
	assert.ErrorIs(t, db.LoadWeights(ctx, store, "missing"), blobstore.ErrNotFound)

	var buf bytes.Buffer
	require.NoError(t, New(3).SaveWeights(&buf, persistence.CompressionNone))
	require.NoError(t, store.Put(ctx, "three", buf.Bytes()))
	assert.ErrorIs(t, db.LoadWeights(ctx, store, "three"), ErrWeightsMismatch)

	corrupt := bytes.Clone(buf.Bytes())
	corrupt[len(corrupt)-6] ^= 0x01
	require.NoError(t, store.Put(ctx, "corrupt", corrupt))
	err := db.LoadWeights(ctx, store, "corrupt")
	assert.True(t, persistence.IsChecksumMismatch(err))
}

func TestParseScoring(t *testing.T) {
	s, err := ParseScoring("")
	require.NoError(t, err)
	assert.Equal(t, ScoreCosine, s)

	s, err = ParseScoring("intersection")
	require.NoError(t, err)
	assert.Equal(t, ScoreIntersection, s)
	assert.Equal(t, "intersection", s.String())

	_, err = ParseScoring("l2")
	assert.ErrorIs(t, err, ErrInvalidScoring)
}
