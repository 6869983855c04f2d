package imgmatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imgmatch/blobstore"
	s3store "github.com/hupe1980/imgmatch/blobstore/s3"
	"github.com/hupe1980/imgmatch/database"
	"github.com/hupe1980/imgmatch/sfmdata"
	"github.com/hupe1980/imgmatch/voctree"
)

// bucket is an in-memory S3 client. Multipart calls are not implemented;
// the uploader only uses them for blobs above its part size.
type bucket struct {
	manager.UploadAPIClient

	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	failPut string
}

func newBucket() *bucket {
	return &bucket{objects: make(map[string][]byte)}
}

func (b *bucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if key == b.failPut {
		return nil, errors.New("access denied")
	}
	var data []byte
	if in.Body != nil {
		var err error
		if data, err = io.ReadAll(in.Body); err != nil {
			return nil, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return &s3.PutObjectOutput{}, nil
}

func (b *bucket) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (b *bucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	var first, last int
	if _, err := fmt.Sscanf(aws.ToString(in.Range), "bytes=%d-%d", &first, &last); err != nil {
		return nil, err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data[first : last+1]))}, nil
}

func (b *bucket) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for key := range b.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	return out, nil
}

func (b *bucket) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := aws.ToString(in.Key)
	delete(b.objects, key)
	b.deleted = append(b.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

// s3Fixture copies the inputs of f into a bucket below the prefix "run".
func s3Fixture(t *testing.T, f *fixture) (*bucket, *s3store.Store) {
	t.Helper()
	ctx := context.Background()
	b := newBucket()
	store := s3store.NewStore(b, "inputs", "run")

	names, err := f.store.List(ctx, "")
	require.NoError(t, err)
	for _, name := range names {
		data, err := blobstore.ReadAll(ctx, f.store, name)
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, name, data))
	}
	return b, store
}

func s3Config(f *fixture) Config {
	cfg := f.config()
	cfg.Storage = StorageConfig{Kind: StorageS3, Bucket: "inputs", Prefix: "run"}
	return cfg
}

func TestRunWritesToObjectStorage(t *testing.T) {
	f := newFixture(t)
	f.scene("a.json", 1, 2, 3, 4)
	f.scene("b.json", 5)
	f.image(1, 0, 1)
	f.image(2, 0, 1)
	f.image(3, 2, 3)
	f.image(4, 2, 3)
	f.image(5, 0, 1)
	b, store := s3Fixture(t, f)

	cfg := s3Config(f)
	cfg.InputB = "b.json"
	cfg.Output = "matches/imageMatches.txt"
	cfg.CombinedOutput = "matches/combined.json"

	res, err := Run(context.Background(), cfg, WithBlobStore(store))
	require.NoError(t, err)
	assert.Equal(t, RunIndexed, res.Mode)

	assert.Equal(t, 1, res.ImagesB)
	assert.Equal(t, 100, res.Descriptors)
	assert.NotEmpty(t, res.Pairs.String())
	assert.Equal(t, res.Pairs.String(), string(b.objects["run/matches/imageMatches.txt"]))

	combined, err := sfmdata.Load(context.Background(), store, "matches/combined.json", sfmdata.SectionAll, sfmdata.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3, 4, 5}, combined.ViewIDs())

	_, statErr := os.Stat(cfg.Output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestTrainWritesToObjectStorage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.scene("a.json", 1, 2, 3, 4)
	for id := uint32(1); id <= 4; id++ {
		f.image(id, int(id-1))
	}
	_, store := s3Fixture(t, f)

	cfg := s3Config(f)
	cfg.Tree = "vocab/sift.tree"
	cfg.Weights = "vocab/sift.weights"

	res, err := Train(ctx, cfg, TrainOptions{Build: voctree.BuildOptions{Levels: 1, Splits: 4, Seed: 2}}, WithBlobStore(store))
	require.NoError(t, err)

	tree, err := voctree.Load(ctx, store, cfg.Tree)
	require.NoError(t, err)
	assert.Equal(t, res.Tree.Words(), tree.Words())

	db := database.New(tree.Words())
	require.NoError(t, db.LoadWeights(ctx, store, cfg.Weights))
	assert.InDeltaSlice(t, res.Weights, db.Weights(), 1e-6)
}

func TestTrainRemovesTreeWhenWeightsFail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.scene("a.json", 1, 2)
	f.image(1, 0, 1)
	f.image(2, 2, 3)

	topts := TrainOptions{Build: voctree.BuildOptions{Levels: 1, Splits: 2, Seed: 2}}

	t.Run("object storage", func(t *testing.T) {
		b, store := s3Fixture(t, f)
		b.failPut = "run/vocab/sift.weights"

		cfg := s3Config(f)
		cfg.Tree = "vocab/sift.tree"
		cfg.Weights = "vocab/sift.weights"

		_, err := Train(ctx, cfg, topts, WithBlobStore(store))
		require.ErrorIs(t, err, ErrIO)

		var ioErr *IOError
		require.ErrorAs(t, err, &ioErr)
		assert.Equal(t, "save weights", ioErr.Op)

		assert.Equal(t, []string{"run/vocab/sift.tree"}, b.deleted)
		assert.NotContains(t, b.objects, "run/vocab/sift.tree")
	})

	t.Run("local", func(t *testing.T) {
		blocker := filepath.Join(f.out, "blocker")
		require.NoError(t, os.WriteFile(blocker, nil, 0o644))

		cfg := f.config()
		cfg.Tree = filepath.Join(f.out, "vocab", "sift.tree")
		cfg.Weights = filepath.Join(blocker, "sift.weights")

		_, err := Train(ctx, cfg, topts, WithBlobStore(f.store))
		require.ErrorIs(t, err, ErrIO)

		_, statErr := os.Stat(cfg.Tree)
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestRunSearchesFeatureFolders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for id := uint32(1); id <= 4; id++ {
		f.image(id, int(id-1)/2*2, int(id-1)/2*2+1)
	}

	// Images 3 and 4 were extracted into a second folder.
	for _, name := range []string{"3.sift.desc", "4.sift.desc"} {
		data, err := blobstore.ReadAll(ctx, f.store, "features/"+name)
		require.NoError(t, err)
		f.put("more/"+name, data)
		require.NoError(t, f.store.Delete(ctx, "features/"+name))
	}

	s := sfmdata.New()
	s.FeaturesFolders = []string{"more"}
	for id := uint32(1); id <= 4; id++ {
		s.Views[id] = sfmdata.NewView(id, fmt.Sprintf("img%d.jpg", id))
	}
	data, err := sfmdata.Encode(s, sfmdata.SectionAll, nil)
	require.NoError(t, err)
	f.put("a.json", data)

	cfg := f.config()
	_, err = f.run(cfg)
	require.NoError(t, err)
	assert.Equal(t, "1 2\n3 4\n", readOutput(t, cfg.Output))
}
