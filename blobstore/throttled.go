package blobstore

import (
	"context"
	"sync"

	"github.com/hupe1980/imgmatch/internal/resource"
)

// ThrottledStore bounds concurrent opens and read throughput of an inner
// store with a resource.Controller. Writes, listings and deletes pass
// through.
type ThrottledStore struct {
	inner BlobStore
	rc    *resource.Controller
}

// NewThrottledStore wraps inner. A nil controller disables throttling.
func NewThrottledStore(inner BlobStore, rc *resource.Controller) *ThrottledStore {
	return &ThrottledStore{inner: inner, rc: rc}
}

// Open acquires a read slot that is held until the blob is closed.
func (s *ThrottledStore) Open(ctx context.Context, name string) (Blob, error) {
	if err := s.rc.AcquireRead(ctx); err != nil {
		return nil, err
	}
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		s.rc.ReleaseRead()
		return nil, err
	}
	return &throttledBlob{Blob: b, rc: s.rc}, nil
}

func (s *ThrottledStore) Put(ctx context.Context, name string, data []byte) error {
	return s.inner.Put(ctx, name, data)
}

func (s *ThrottledStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func (s *ThrottledStore) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}

type throttledBlob struct {
	Blob
	rc   *resource.Controller
	once sync.Once
}

// ReadAt waits for IO budget before delegating. Mappable is not forwarded,
// so every byte goes through WaitIO.
func (b *throttledBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := b.rc.WaitIO(ctx, len(p)); err != nil {
		return 0, err
	}
	return b.Blob.ReadAt(ctx, p, off)
}

func (b *throttledBlob) Close() error {
	b.once.Do(b.rc.ReleaseRead)
	return b.Blob.Close()
}
