package imgmatch

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imgmatch/blobstore"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Input = "a.json"
	cfg.Output = "out.txt"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 500, cfg.MaxDescriptors)
	assert.Equal(t, 50, cfg.NumMatches)
	assert.Equal(t, 200, cfg.MinImages)
	assert.Equal(t, "a_ab", cfg.Mode)
	assert.Equal(t, "sift", cfg.Describer)
	assert.Equal(t, 128, cfg.Dimension)
	assert.Equal(t, "uint8", cfg.DescriptorKind)
	assert.Equal(t, "cosine", cfg.Scoring)

	valid := validConfig()
	require.NoError(t, valid.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing input", func(c *Config) { c.Input = "" }, "input"},
		{"missing output", func(c *Config) { c.Output = "" }, "output"},
		{"unknown mode", func(c *Config) { c.Mode = "b_a" }, "mode"},
		{"a_b without b", func(c *Config) { c.Mode = "a_b" }, "mode"},
		{"unknown scoring", func(c *Config) { c.Scoring = "l1" }, "scoring"},
		{"unknown kind", func(c *Config) { c.DescriptorKind = "int16" }, "descriptor_kind"},
		{"zero dimension", func(c *Config) { c.Dimension = 0 }, "dimension"},
		{"negative max descriptors", func(c *Config) { c.MaxDescriptors = -1 }, "max_descriptors"},
		{"missing describer", func(c *Config) { c.Describer = "" }, "describer"},
		{"negative matches", func(c *Config) { c.NumMatches = -1 }, "num_matches"},
		{"negative workers", func(c *Config) { c.Workers = -2 }, "workers"},
		{"negative read limit", func(c *Config) { c.Resources.MaxConcurrentReads = -1 }, "resources.max_concurrent_reads"},
		{"unknown storage", func(c *Config) { c.Storage.Kind = "ftp" }, "storage.kind"},
		{"s3 without bucket", func(c *Config) { c.Storage.Kind = StorageS3 }, "storage.bucket"},
		{"minio without endpoint", func(c *Config) {
			c.Storage = StorageConfig{Kind: StorageMinIO, Bucket: "scenes"}
		}, "storage.endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)

			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	store, err := OpenStore(ctx, StorageConfig{})
	require.NoError(t, err)
	assert.IsType(t, &blobstore.LocalStore{}, store)

	store, err = OpenStore(ctx, StorageConfig{
		Kind:      StorageMinIO,
		Endpoint:  "localhost:9000",
		Bucket:    "scenes",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	require.NoError(t, err)
	assert.NotNil(t, store)

	_, err = OpenStore(ctx, StorageConfig{Kind: "ftp"})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestErrorMessages(t *testing.T) {
	err := &LoadError{What: "scene", Path: "a.json", cause: blobstore.ErrNotFound}
	assert.Contains(t, err.Error(), `load scene "a.json"`)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	assert.NotErrorIs(t, err, ErrIO)

	ioErr := &IOError{Op: "write pairs", Path: "out.txt", cause: assert.AnError}
	assert.ErrorIs(t, ioErr, ErrIO)
	assert.ErrorIs(t, ioErr, assert.AnError)

	assert.Equal(t, "no descriptors in collection B", (&EmptyCorpusError{Collection: "B"}).Error())
	assert.Equal(t, `invalid storage.kind "ftp"`, (&ConfigError{Field: "storage.kind", Value: "ftp"}).Error())
}

func TestLoggerRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, nil)).WithRunID().WithCollection("A")
	logger.LogOutput(context.Background(), "out.txt", 2, 3, nil)

	out := buf.String()
	assert.Contains(t, out, `"run":`)
	assert.Contains(t, out, `"collection":"A"`)
	assert.Contains(t, out, `"pairs":3`)

	NoopLogger().LogQuery(context.Background(), 1, 2, 2, nil)
}
