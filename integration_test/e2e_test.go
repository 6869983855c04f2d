package imgmatch_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imgmatch"
	"github.com/hupe1980/imgmatch/blobstore"
	"github.com/hupe1980/imgmatch/descriptor"
	"github.com/hupe1980/imgmatch/pairs"
	"github.com/hupe1980/imgmatch/persistence"
	"github.com/hupe1980/imgmatch/sfmdata"
	"github.com/hupe1980/imgmatch/testutil"
	"github.com/hupe1980/imgmatch/voctree"
)

const (
	dim        = 16
	groups     = 3
	groupSize  = 4
	perCluster = 10
)

// group returns the scene group of an image id (ids start at 1).
func group(id uint32) int { return int(id-1) / groupSize }

// writeDataset writes a scene of groups*groupSize views to dir. Views of
// the same group see the same two descriptor clusters, stored as zstd
// framed uint8 descriptor files.
func writeDataset(t *testing.T, dir string) {
	t.Helper()
	rng := testutil.NewRNG(21)
	centers := rng.UnitVectors(2*groups, dim)

	s := sfmdata.New()
	s.FeaturesFolders = []string{"features"}
	for id := uint32(1); id <= groups*groupSize; id++ {
		s.Views[id] = sfmdata.NewView(id, fmt.Sprintf("images/%04d.jpg", id))

		g := group(id)
		descs := testutil.ByteDescriptors(rng.DescriptorsNear(centers[2*g:2*g+2], 2*perCluster, 0.02))
		path := filepath.Join(dir, "features", descriptor.Filename(id, "sift"))
		require.NoError(t, descriptor.WriteFile(path, descs, descriptor.KindUint8, persistence.CompressionZSTD))
	}
	require.NoError(t, sfmdata.Save(filepath.Join(dir, "sfm.json"), s, sfmdata.SectionAll))
}

func TestEndToEndLocal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeDataset(t, dir)

	cfg := imgmatch.DefaultConfig()
	cfg.Storage.Root = dir
	cfg.Resources.MaxConcurrentReads = 2
	cfg.Resources.IOLimitBytesPerSec = 64 << 20
	cfg.Input = "sfm.json"
	cfg.Tree = filepath.Join(dir, "vocab", "sift.tree")
	cfg.Weights = filepath.Join(dir, "vocab", "sift.weights")
	cfg.Output = filepath.Join(dir, "matches", "imageMatches.txt")
	cfg.Dimension = dim
	cfg.NumMatches = groupSize
	cfg.MinImages = groupSize

	trained, err := imgmatch.Train(ctx, cfg, imgmatch.TrainOptions{
		Build:       voctree.BuildOptions{Levels: 2, Splits: 3, Seed: 9},
		Compression: persistence.CompressionLZ4,
	})
	require.NoError(t, err)
	assert.Equal(t, groups*groupSize, trained.Images)
	assert.Equal(t, 9, trained.Tree.Words())

	metrics := &imgmatch.BasicMetricsCollector{}
	res, err := imgmatch.Run(ctx, cfg, imgmatch.WithMetricsCollector(metrics))
	require.NoError(t, err)
	assert.Equal(t, imgmatch.RunIndexed, res.Mode)
	assert.Equal(t, groups*groupSize*2*perCluster, res.Descriptors)

	f, err := os.Open(cfg.Output)
	require.NoError(t, err)
	defer f.Close()
	written, err := pairs.Read(f)
	require.NoError(t, err)

	// Every pair of a group, and nothing across groups.
	assert.Equal(t, uint64(groups*groupSize*(groupSize-1)/2), written.NumPairs())
	for _, id := range written.IDs() {
		for _, m := range written.Matches(id) {
			assert.Less(t, id, m)
			assert.Equal(t, group(id), group(m), "pair %d-%d", id, m)
		}
	}

	stats := metrics.GetStats()
	assert.Equal(t, int64(groups*groupSize), stats.QueryCount)
	assert.Zero(t, stats.QueryErrors)
}

func TestEndToEndCombinedCollections(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeDataset(t, dir)

	b := sfmdata.New()
	for id := uint32(101); id <= 103; id++ {
		b.Views[id] = sfmdata.NewView(id, fmt.Sprintf("other/%04d.jpg", id))
	}
	b.Intrinsics[7] = &sfmdata.Intrinsic{Type: "pinhole", Width: 640, Height: 480}
	require.NoError(t, sfmdata.Save(filepath.Join(dir, "other.json"), b, sfmdata.SectionAll))

	cfg := imgmatch.DefaultConfig()
	cfg.Input = filepath.Join(dir, "sfm.json")
	cfg.InputB = filepath.Join(dir, "other.json")
	cfg.Output = filepath.Join(dir, "pairs.txt")
	cfg.CombinedOutput = filepath.Join(dir, "combined.json")
	cfg.Dimension = dim

	res, err := imgmatch.Run(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, imgmatch.RunBruteForce, res.Mode)

	n := uint64(groups * groupSize)
	assert.Equal(t, n*(n-1)/2+n*3, res.Pairs.NumPairs())
	assert.True(t, res.Pairs.Contains(1, 101))
	assert.True(t, res.Pairs.Contains(12, 103))

	combined, err := sfmdata.Load(ctx, blobstore.NewLocalStore(""), cfg.CombinedOutput, sfmdata.SectionAll, sfmdata.LoadOptions{})
	require.NoError(t, err)
	assert.Len(t, combined.Views, int(n)+3)
	require.Contains(t, combined.Intrinsics, uint32(7))
	assert.Equal(t, "pinhole", combined.Intrinsics[7].Type)
}
