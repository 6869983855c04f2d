package voctree

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/imgmatch/blobstore"
	"github.com/hupe1980/imgmatch/persistence"
)

// Load reads a serialized tree from store.
func Load(ctx context.Context, store blobstore.BlobStore, name string) (*Tree, error) {
	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, fmt.Errorf("voctree: read %q: %w", name, err)
	}
	t, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("voctree: decode %q: %w", name, err)
	}
	return t, nil
}

// Decode parses a serialized tree, optionally wrapped in a compression frame.
func Decode(data []byte) (*Tree, error) {
	payload, err := persistence.Unframe(data)
	if err != nil {
		return nil, err
	}

	r, err := persistence.NewReader(payload)
	if err != nil {
		return nil, err
	}
	if err := r.ReadHeader(persistence.MagicTree); err != nil {
		return nil, err
	}

	var shape [3]uint32
	for i := range shape {
		if shape[i], err = r.ReadUint32(); err != nil {
			return nil, err
		}
	}
	levels, splits, dim := int(shape[0]), int(shape[1]), int(shape[2])
	count, err := checkShape(levels, splits, dim)
	if err != nil {
		return nil, err
	}
	// The payload must hold the whole declared tree before anything is
	// allocated for it.
	if need := 4 + 8*((count+63)/64) + 4*count*dim; r.Remaining() < need {
		return nil, fmt.Errorf("%w: %d bytes for %d centroids of dim %d, need %d",
			persistence.ErrTruncated, r.Remaining(), count, dim, need)
	}
	t, err := newTree(levels, splits, dim)
	if err != nil {
		return nil, err
	}

	nWords, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if want := len(t.valid.Words()); int(nWords) != want {
		return nil, fmt.Errorf("%w: %d validity words, want %d", ErrInvalidTree, nWords, want)
	}
	words, err := r.ReadUint64Slice(int(nWords))
	if err != nil {
		return nil, err
	}
	t.valid = bitset.FromWithLength(uint(t.Centroids()), words)

	if t.centroids, err = r.ReadFloat32Slice(t.Centroids() * t.dim); err != nil {
		return nil, err
	}
	if rem := r.Remaining(); rem != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidTree, rem)
	}

	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Save writes the tree to w using the given compression frame.
func (t *Tree) Save(w io.Writer, c persistence.Compression) error {
	var buf bytes.Buffer
	pw := persistence.NewWriter(&buf)
	if err := pw.WriteHeader(persistence.MagicTree); err != nil {
		return err
	}
	pw.WriteUint32(uint32(t.levels))
	pw.WriteUint32(uint32(t.splits))
	pw.WriteUint32(uint32(t.dim))

	words := t.valid.Words()
	pw.WriteUint32(uint32(len(words)))
	if err := pw.WriteUint64Slice(words); err != nil {
		return err
	}
	if err := pw.WriteFloat32Slice(t.centroids); err != nil {
		return err
	}
	if err := pw.Close(); err != nil {
		return err
	}

	framed, err := persistence.Frame(buf.Bytes(), c)
	if err != nil {
		return err
	}
	_, err = w.Write(framed)
	return err
}

// SaveFile atomically writes the tree to path.
func (t *Tree) SaveFile(path string, c persistence.Compression) error {
	return persistence.SaveToFile(path, func(w io.Writer) error {
		return t.Save(w, c)
	})
}
