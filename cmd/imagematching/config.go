package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/imgmatch"
)

// logFlags are shared by every command.
type logFlags struct {
	level  string
	format string
}

func (l *logFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&l.level, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&l.format, "log-format", "text", "Log format (text, json)")
}

func (l *logFlags) logger() (*imgmatch.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", l.level)
	}
	switch l.format {
	case "text":
		return imgmatch.NewTextLogger(level), nil
	case "json":
		return imgmatch.NewJSONLogger(level), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", l.format)
	}
}

// registerConfigFlags binds the flags shared by matching and training to
// cfg. Defaults are the current values of cfg.
func registerConfigFlags(fs *pflag.FlagSet, cfg *imgmatch.Config) {
	fs.StringVarP(&cfg.Input, "input", "i", cfg.Input, "Scene file of collection A")
	fs.StringVarP(&cfg.FeaturesFolder, "features-folder", "f", cfg.FeaturesFolder, "Folder holding the descriptor files (default: folders of the scene file)")
	fs.StringVarP(&cfg.Tree, "tree", "t", cfg.Tree, "Vocabulary tree file")
	fs.StringVarP(&cfg.Weights, "weights", "w", cfg.Weights, "Word weights file")
	fs.StringVar(&cfg.Describer, "describer", cfg.Describer, "Describer type of the descriptor files")
	fs.IntVar(&cfg.Dimension, "dimension", cfg.Dimension, "Descriptor dimension")
	fs.StringVar(&cfg.DescriptorKind, "descriptor-kind", cfg.DescriptorKind, "Descriptor element type (uint8, float32)")
	fs.BoolVar(&cfg.NormalizeDescriptors, "normalize", cfg.NormalizeDescriptors, "Scale descriptors to unit length")
	fs.IntVar(&cfg.MaxDescriptors, "max-descriptors", cfg.MaxDescriptors, "Descriptors read per image (0 = all)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent workers (0 = number of CPUs)")
	fs.BoolVar(&cfg.IncompleteViews, "incomplete-views", cfg.IncompleteViews, "Read missing image sizes from the image files")

	fs.StringVar(&cfg.Storage.Kind, "storage", cfg.Storage.Kind, "Input storage (local, s3, minio)")
	fs.StringVar(&cfg.Storage.Root, "storage-root", cfg.Storage.Root, "Root directory of the local storage")
	fs.StringVar(&cfg.Storage.Bucket, "bucket", cfg.Storage.Bucket, "Bucket of the s3 or minio storage")
	fs.StringVar(&cfg.Storage.Prefix, "prefix", cfg.Storage.Prefix, "Key prefix of the s3 or minio storage")
	fs.StringVar(&cfg.Storage.Region, "region", cfg.Storage.Region, "Region of the s3 or minio storage")
	fs.StringVar(&cfg.Storage.Endpoint, "endpoint", cfg.Storage.Endpoint, "Endpoint of the s3 or minio storage")
	fs.StringVar(&cfg.Storage.AccessKey, "access-key", cfg.Storage.AccessKey, "Access key of the minio storage")
	fs.StringVar(&cfg.Storage.SecretKey, "secret-key", cfg.Storage.SecretKey, "Secret key of the minio storage")
	fs.BoolVar(&cfg.Storage.UseSSL, "use-ssl", cfg.Storage.UseSSL, "Use TLS for the minio storage")

	fs.Int64Var(&cfg.Resources.MaxConcurrentReads, "max-concurrent-reads", cfg.Resources.MaxConcurrentReads, "Concurrent storage reads (0 = unbounded)")
	fs.Int64Var(&cfg.Resources.IOLimitBytesPerSec, "io-limit", cfg.Resources.IOLimitBytesPerSec, "Storage read limit in bytes per second (0 = unlimited)")
}

// applyConfigFile loads the YAML file at path into cfg. Flags set on the
// command line take precedence over the file.
func applyConfigFile(cmd *cobra.Command, path string, cfg *imgmatch.Config) error {
	if path == "" {
		return nil
	}

	changed := make(map[string]string)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %q: %w", path, err)
	}

	for name, value := range changed {
		if err := cmd.Flags().Set(name, value); err != nil {
			return err
		}
	}
	return nil
}
