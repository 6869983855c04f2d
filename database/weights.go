package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/imgmatch/blobstore"
	"github.com/hupe1980/imgmatch/persistence"
)

// ErrWeightsMismatch is returned when a weights file does not match the
// vocabulary size.
var ErrWeightsMismatch = errors.New("database: weight count does not match vocabulary")

// LoadWeights reads a weights file from store and installs it.
func (db *Database) LoadWeights(ctx context.Context, store blobstore.BlobStore, name string) error {
	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return fmt.Errorf("database: read weights %q: %w", name, err)
	}
	weights, err := DecodeWeights(data)
	if err != nil {
		return fmt.Errorf("database: decode weights %q: %w", name, err)
	}
	return db.SetWeights(weights)
}

// DecodeWeights parses a serialized weight vector, optionally wrapped in a
// compression frame.
func DecodeWeights(data []byte) ([]float32, error) {
	payload, err := persistence.Unframe(data)
	if err != nil {
		return nil, err
	}
	r, err := persistence.NewReader(payload)
	if err != nil {
		return nil, err
	}
	if err := r.ReadHeader(persistence.MagicWeights); err != nil {
		return nil, err
	}
	count, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	weights, err := r.ReadFloat32Slice(int(count))
	if err != nil {
		return nil, err
	}
	if rem := r.Remaining(); rem != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", persistence.ErrTruncated, rem)
	}
	return weights, nil
}

// SaveWeights writes the current word weights to w.
func (db *Database) SaveWeights(w io.Writer, c persistence.Compression) error {
	weights := db.Weights()

	var buf bytes.Buffer
	pw := persistence.NewWriter(&buf)
	if err := pw.WriteHeader(persistence.MagicWeights); err != nil {
		return err
	}
	pw.WriteUint32(uint32(len(weights)))
	if err := pw.WriteFloat32Slice(weights); err != nil {
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

// SaveWeightsFile atomically writes the word weights to path.
func (db *Database) SaveWeightsFile(path string, c persistence.Compression) error {
	return persistence.SaveToFile(path, func(w io.Writer) error {
		return db.SaveWeights(w, c)
	})
}
