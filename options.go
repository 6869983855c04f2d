package imgmatch

import (
	"log/slog"

	"github.com/hupe1980/imgmatch/blobstore"
	"github.com/hupe1980/imgmatch/codec"
	"github.com/hupe1980/imgmatch/internal/resource"
)

type options struct {
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	store            blobstore.BlobStore
	images           blobstore.BlobStore
	rc               *resource.Controller
}

// Option configures a Matcher.
type Option func(*options)

// WithCodec configures the codec used for decoding scene files.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithBlobStore sets the store scene files, the tree, weights and
// descriptor files are read from. It replaces the store described by
// Config.Storage.
func WithBlobStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithImageStore sets the store image headers are read from when
// completing incomplete views. Defaults to the local file system.
func WithImageStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.images = store
	}
}

// WithResourceController bounds concurrent reads and read throughput.
// It replaces the controller described by Config.Resources.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithMetricsCollector configures a metrics collector for monitoring runs.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &imgmatch.BasicMetricsCollector{}
//	res, _ := imgmatch.Run(ctx, cfg, imgmatch.WithMetricsCollector(metrics))
//	stats := metrics.GetStats()
//	fmt.Printf("Queries: %d, Avg latency: %dns\n", stats.QueryCount, stats.QueryAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for runs.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := imgmatch.NewJSONLogger(slog.LevelInfo)
//	res, _ := imgmatch.Run(ctx, cfg, imgmatch.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
