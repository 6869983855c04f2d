package blobstore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/imgmatch/internal/mmap"
	"github.com/hupe1980/imgmatch/persistence"
)

// LocalStore implements BlobStore using the local file system.
//
// Relative names are joined to the root directory. Absolute names, and all
// names when the root is empty, are used as plain file paths.
type LocalStore struct {
	root string
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) path(name string) string {
	if s.root == "" || filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(s.root, name)
}

// Open maps the file into memory for reading.
func (s *LocalStore) Open(ctx context.Context, name string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := mmap.Open(s.path(name))
	if err != nil {
		return nil, err
	}
	// Inputs are decoded front to back exactly once.
	_ = m.Advise(mmap.AccessSequential)
	return &localBlob{m: m}, nil
}

// Put atomically replaces the file.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return persistence.SaveToFile(s.path(name), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// List walks the directory of prefix and returns slash-separated names
// matching it. Names are absolute for absolute prefixes and relative to the
// root otherwise. A missing directory lists nothing.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	dir := s.path(prefix)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		dir = filepath.Dir(dir)
	}
	relative := s.root != "" && !filepath.IsAbs(prefix)
	prefix = filepath.ToSlash(prefix)

	var names []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := path
		if relative {
			if name, err = filepath.Rel(s.root, path); err != nil {
				return err
			}
		}
		name = filepath.ToSlash(name)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sort.Strings(names)
	return names, nil
}

// Delete removes the file.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

type localBlob struct {
	m *mmap.Mapping
}

func (b *localBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return b.m.ReadAt(p, off)
}

func (b *localBlob) Close() error {
	return b.m.Close()
}

func (b *localBlob) Size() int64 {
	return int64(b.m.Size())
}

func (b *localBlob) Bytes() ([]byte, error) {
	if data := b.m.Bytes(); data != nil || b.m.Size() == 0 {
		return data, nil
	}
	return nil, os.ErrClosed
}
