package imgmatch

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/imgmatch/blobstore"
	miniostore "github.com/hupe1980/imgmatch/blobstore/minio"
	s3store "github.com/hupe1980/imgmatch/blobstore/s3"
	"github.com/hupe1980/imgmatch/internal/resource"
)

// Storage kinds accepted by StorageConfig.Kind.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
	StorageMinIO = "minio"
)

func (s StorageConfig) validate() error {
	switch s.Kind {
	case "", StorageLocal:
		return nil
	case StorageS3:
		if s.Bucket == "" {
			return &ConfigError{Field: "storage.bucket", cause: fmt.Errorf("required for %s", s.Kind)}
		}
		return nil
	case StorageMinIO:
		if s.Bucket == "" {
			return &ConfigError{Field: "storage.bucket", cause: fmt.Errorf("required for %s", s.Kind)}
		}
		if s.Endpoint == "" {
			return &ConfigError{Field: "storage.endpoint", cause: fmt.Errorf("required for %s", s.Kind)}
		}
		return nil
	default:
		return &ConfigError{Field: "storage.kind", Value: s.Kind}
	}
}

// remote reports whether outputs are written to object storage.
func (s StorageConfig) remote() bool {
	return s.Kind == StorageS3 || s.Kind == StorageMinIO
}

// OpenStore creates the blob store described by cfg.
func OpenStore(ctx context.Context, cfg StorageConfig) (blobstore.BlobStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case StorageS3:
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, &ConfigError{Field: "storage", Value: cfg.Kind, cause: err}
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
		return s3store.NewStore(client, cfg.Bucket, cfg.Prefix), nil

	case StorageMinIO:
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, &ConfigError{Field: "storage.endpoint", Value: cfg.Endpoint, cause: err}
		}
		return miniostore.NewStore(client, cfg.Bucket, cfg.Prefix), nil

	default:
		return blobstore.NewLocalStore(cfg.Root), nil
	}
}

// openInputs resolves the input store and wraps it with the read
// limits, if any.
func openInputs(ctx context.Context, cfg *Config, o *options) (blobstore.BlobStore, error) {
	store := o.store
	if store == nil {
		var err error
		if store, err = OpenStore(ctx, cfg.Storage); err != nil {
			return nil, err
		}
	}

	rc := o.rc
	if rc == nil && (cfg.Resources.MaxConcurrentReads > 0 || cfg.Resources.IOLimitBytesPerSec > 0) {
		rc = resource.NewController(resource.Config{
			MaxConcurrentReads: cfg.Resources.MaxConcurrentReads,
			IOLimitBytesPerSec: cfg.Resources.IOLimitBytesPerSec,
		})
	}
	if rc != nil {
		store = blobstore.NewThrottledStore(store, rc)
	}
	return store, nil
}

// writeOutput stores one output of a run under name. With object storage
// the encoded bytes are put into the input store, otherwise saveFile writes
// the local file.
func writeOutput(ctx context.Context, cfg *Config, store blobstore.BlobStore, name string,
	encode func(io.Writer) error, saveFile func(string) error) error {
	if !cfg.Storage.remote() {
		return saveFile(name)
	}
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		return err
	}
	return store.Put(ctx, name, buf.Bytes())
}

// removeOutput deletes an output written by writeOutput.
func removeOutput(ctx context.Context, cfg *Config, store blobstore.BlobStore, name string) error {
	if !cfg.Storage.remote() {
		return blobstore.NewLocalStore("").Delete(ctx, name)
	}
	return store.Delete(ctx, name)
}
