package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/imgmatch/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store BlobStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Open(ctx, "missing.bin")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "features/1.sift.desc", []byte("one")))
	require.NoError(t, store.Put(ctx, "features/2.sift.desc", []byte("two!")))
	require.NoError(t, store.Put(ctx, "tree.bin", []byte("tree")))

	data, err := ReadAll(ctx, store, "features/2.sift.desc")
	require.NoError(t, err)
	assert.Equal(t, []byte("two!"), data)

	b, err := store.Open(ctx, "features/1.sift.desc")
	require.NoError(t, err)
	assert.Equal(t, int64(3), b.Size())

	buf := make([]byte, 2)
	n, err := b.ReadAt(ctx, buf, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("ne"), buf)
	require.NoError(t, b.Close())

	names, err := store.List(ctx, "features/")
	require.NoError(t, err)
	assert.Equal(t, []string{"features/1.sift.desc", "features/2.sift.desc"}, names)

	// Overwrite replaces content.
	require.NoError(t, store.Put(ctx, "tree.bin", []byte("tree v2")))
	data, err = ReadAll(ctx, store, "tree.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("tree v2"), data)

	require.NoError(t, store.Delete(ctx, "tree.bin"))
	_, err = store.Open(ctx, "tree.bin")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Delete(ctx, "tree.bin"))

	names, err = store.List(ctx, "missing/")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	testStore(t, NewLocalStore(t.TempDir()))
}

func TestLocalStoreWithoutRoot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	data, err := ReadAll(context.Background(), NewLocalStore(""), path)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
}

func TestLocalStoreAbsoluteName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abs.bin")
	require.NoError(t, os.WriteFile(path, []byte("xyz"), 0o644))

	data, err := ReadAll(context.Background(), NewLocalStore(t.TempDir()), path)
	require.NoError(t, err)
	assert.Equal(t, []byte("xyz"), data)
}

func TestLocalStoreListAbsolutePrefix(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewLocalStore(t.TempDir())
	for _, name := range []string{"feat/1.sift.desc", "feat/2.sift.desc", "other/3.sift.desc"} {
		require.NoError(t, store.Put(ctx, filepath.Join(dir, name), []byte("x")))
	}

	names, err := store.List(ctx, filepath.ToSlash(dir)+"/feat/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.ToSlash(filepath.Join(dir, "feat", "1.sift.desc")),
		filepath.ToSlash(filepath.Join(dir, "feat", "2.sift.desc")),
	}, names)
}

func TestReadAllEmptyBlob(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	require.NoError(t, store.Put(context.Background(), "empty", nil))

	data, err := ReadAll(context.Background(), store, "empty")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestThrottledStore(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	require.NoError(t, inner.Put(ctx, "a", []byte("payload")))

	rc := resource.NewController(resource.Config{MaxConcurrentReads: 1, IOLimitBytesPerSec: 1 << 20})
	store := NewThrottledStore(inner, rc)

	data, err := ReadAll(ctx, store, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, int64(len("payload")), rc.BytesRead())

	// The read slot was released by ReadAll's Close.
	b, err := store.Open(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err = store.Open(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// A failed open must not leak the slot.
	b, err = store.Open(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, b.Close())
}
