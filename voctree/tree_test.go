package voctree

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imgmatch/blobstore"
	"github.com/hupe1980/imgmatch/persistence"
	"github.com/hupe1980/imgmatch/testutil"
)

// lineTree builds a 2-level binary tree over 1-d descriptors:
// level 0 centroids {0, 10}, level 1 centroids {-1, 1, 9, 11}.
func lineTree(t *testing.T) *Tree {
	t.Helper()
	tr, err := newTree(2, 2, 1)
	require.NoError(t, err)
	copy(tr.centroids, []float32{0, 10, -1, 1, 9, 11})
	for i := 0; i < tr.Centroids(); i++ {
		tr.valid.Set(uint(i))
	}
	require.NoError(t, tr.validate())
	return tr
}

func TestCentroidCount(t *testing.T) {
	tests := []struct {
		levels, splits, want int
	}{
		{1, 2, 2},
		{2, 3, 12},
		{3, 10, 1110},
		{6, 10, 1111110},
	}
	for _, tt := range tests {
		got, err := centroidCount(tt.levels, tt.splits)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := centroidCount(0, 10)
	assert.ErrorIs(t, err, ErrInvalidTree)
	_, err = centroidCount(2, 1)
	assert.ErrorIs(t, err, ErrInvalidTree)
	_, err = centroidCount(40, 10)
	assert.ErrorIs(t, err, ErrInvalidTree)
}

func TestQuantize(t *testing.T) {
	tr := lineTree(t)

	assert.Equal(t, 2, tr.Levels())
	assert.Equal(t, 2, tr.Splits())
	assert.Equal(t, 1, tr.Dim())
	assert.Equal(t, 4, tr.Words())

	tests := []struct {
		x    float32
		want uint32
	}{
		{-3, 0},
		{0.5, 1},
		{8, 2},
		{12, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tr.Quantize([]float32{tt.x}), "x=%v", tt.x)
	}
}

func TestQuantizeTieGoesToLowestChild(t *testing.T) {
	tr := lineTree(t)
	// 5 is equidistant from 0 and 10, 0 is equidistant from -1 and 1.
	assert.Equal(t, uint32(1), tr.Quantize([]float32{5}))
	assert.Equal(t, uint32(0), tr.Quantize([]float32{0}))
}

func TestQuantizeSkipsInvalidChildren(t *testing.T) {
	tr := lineTree(t)
	tr.valid.Clear(2) // centroid -1

	assert.Equal(t, uint32(1), tr.Quantize([]float32{-3}))
}

func TestQuantizeToSparse(t *testing.T) {
	tr := lineTree(t)

	h := tr.QuantizeToSparse([][]float32{{-1}, {-2}, {11}, {1}})
	assert.Equal(t, SparseHistogram{0: 2, 1: 1, 3: 1}, h)
	assert.Equal(t, uint64(4), h.Total())
	assert.Equal(t, []uint32{0, 1, 3}, h.Words())

	assert.Empty(t, tr.QuantizeToSparse(nil))
}

func TestValidateRejectsDeadEnds(t *testing.T) {
	tr := lineTree(t)
	tr.valid.Clear(2)
	tr.valid.Clear(3)

	assert.ErrorIs(t, tr.validate(), ErrInvalidTree)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	tr := lineTree(t)
	tr.valid.Clear(5)

	for _, c := range []persistence.Compression{
		persistence.CompressionNone,
		persistence.CompressionLZ4,
		persistence.CompressionZSTD,
	} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, tr.Save(&buf, c))

			store := blobstore.NewMemoryStore()
			require.NoError(t, store.Put(ctx, "tree.voc", buf.Bytes()))

			loaded, err := Load(ctx, store, "tree.voc")
			require.NoError(t, err)

			assert.Equal(t, tr.Levels(), loaded.Levels())
			assert.Equal(t, tr.Splits(), loaded.Splits())
			assert.Equal(t, tr.centroids, loaded.centroids)
			assert.False(t, loaded.valid.Test(5))
			assert.True(t, loaded.valid.Test(4))

			for _, x := range []float32{-5, 0.3, 9.4, 20} {
				assert.Equal(t, tr.Quantize([]float32{x}), loaded.Quantize([]float32{x}))
			}
		})
	}
}

func TestSaveFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	tr := lineTree(t)

	require.NoError(t, tr.SaveFile(dir+"/sub/tree.voc", persistence.CompressionZSTD))

	loaded, err := Load(ctx, blobstore.NewLocalStore(dir), "sub/tree.voc")
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Words())
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	_, err := Load(ctx, store, "missing.voc")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	var buf bytes.Buffer
	require.NoError(t, lineTree(t).Save(&buf, persistence.CompressionNone))
	good := buf.Bytes()

	corrupt := bytes.Clone(good)
	corrupt[len(corrupt)/2] ^= 0xFF
	require.NoError(t, store.Put(ctx, "corrupt.voc", corrupt))
	_, err = Load(ctx, store, "corrupt.voc")
	assert.True(t, persistence.IsChecksumMismatch(err))

	require.NoError(t, store.Put(ctx, "short.voc", good[:6]))
	_, err = Load(ctx, store, "short.voc")
	assert.ErrorIs(t, err, persistence.ErrTruncated)

	// A huge declared shape backed by a few bytes fails before allocating.
	var hbuf bytes.Buffer
	hw := persistence.NewWriter(&hbuf)
	require.NoError(t, hw.WriteHeader(persistence.MagicTree))
	hw.WriteUint32(1)
	hw.WriteUint32(1 << 26)
	hw.WriteUint32(32)
	require.NoError(t, hw.Close())
	require.NoError(t, store.Put(ctx, "huge.voc", hbuf.Bytes()))
	_, err = Load(ctx, store, "huge.voc")
	assert.ErrorIs(t, err, persistence.ErrTruncated)

	// A weights file is not a tree.
	var wbuf bytes.Buffer
	pw := persistence.NewWriter(&wbuf)
	require.NoError(t, pw.WriteHeader(persistence.MagicWeights))
	require.NoError(t, pw.Close())
	require.NoError(t, store.Put(ctx, "weights.bin", wbuf.Bytes()))
	_, err = Load(ctx, store, "weights.bin")
	assert.ErrorIs(t, err, persistence.ErrInvalidMagic)
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(42)
	centers := rng.UnitVectors(4, 8)
	descs := rng.DescriptorsNear(centers, 400, 0.01)

	tr, err := Build(ctx, descs, BuildOptions{Levels: 1, Splits: 4, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, tr.Words())
	require.NoError(t, tr.validate())

	// Descriptors of the same center share a word, different centers do not.
	words := make(map[int]uint32)
	for i, d := range descs {
		w := tr.Quantize(d)
		c := i % len(centers)
		if prev, ok := words[c]; ok {
			assert.Equal(t, prev, w)
		} else {
			words[c] = w
		}
	}
	seen := make(map[uint32]bool)
	for _, w := range words {
		assert.False(t, seen[w])
		seen[w] = true
	}
}

func TestBuildDeterministic(t *testing.T) {
	ctx := context.Background()
	descs := testutil.NewRNG(7).ClusteredVectors(300, 4, 6, 0.2)

	a, err := Build(ctx, descs, BuildOptions{Levels: 3, Splits: 3, Seed: 99, Workers: 1})
	require.NoError(t, err)
	b, err := Build(ctx, descs, BuildOptions{Levels: 3, Splits: 3, Seed: 99, Workers: 8})
	require.NoError(t, err)

	var ba, bb bytes.Buffer
	require.NoError(t, a.Save(&ba, persistence.CompressionNone))
	require.NoError(t, b.Save(&bb, persistence.CompressionNone))
	assert.Equal(t, ba.Bytes(), bb.Bytes())
}

func TestBuildFewDescriptors(t *testing.T) {
	ctx := context.Background()
	descs := [][]float32{{0, 0}, {5, 5}}

	tr, err := Build(ctx, descs, BuildOptions{Levels: 3, Splits: 4, Seed: 1})
	require.NoError(t, err)
	require.NoError(t, tr.validate())

	assert.NotEqual(t, tr.Quantize(descs[0]), tr.Quantize(descs[1]))
}

func TestBuildErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Build(ctx, nil, BuildOptions{})
	assert.ErrorIs(t, err, ErrNoDescriptors)

	_, err = Build(ctx, [][]float32{{1, 2}, {1}}, BuildOptions{Levels: 1, Splits: 2})
	assert.Error(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	descs := testutil.NewRNG(1).UniformVectors(50, 4)
	_, err = Build(canceled, descs, BuildOptions{Levels: 2, Splits: 2})
	assert.ErrorIs(t, err, context.Canceled)
}
