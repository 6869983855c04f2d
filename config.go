package imgmatch

import (
	"errors"
	"strconv"

	"github.com/hupe1980/imgmatch/database"
	"github.com/hupe1980/imgmatch/descriptor"
	"github.com/hupe1980/imgmatch/pairs"
)

// Defaults of DefaultConfig.
const (
	DefaultMaxDescriptors = 500
	DefaultNumMatches     = 50
	DefaultMinImages      = 200
	DefaultDescriber      = "sift"
	DefaultDimension      = 128

	// bruteForceWarnImages is the collection size above which running
	// without a vocabulary tree is logged as a warning.
	bruteForceWarnImages = 200
)

var (
	errRequired = errors.New("required")
	errNegative = errors.New("must not be negative")
)

// StorageConfig selects where inputs are read from.
type StorageConfig struct {
	// Kind is "local" (default), "s3" or "minio".
	Kind string `yaml:"kind"`
	// Root is the directory relative input paths are resolved against
	// by the local store. Empty means the working directory.
	Root string `yaml:"root"`

	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`

	// Region and Endpoint override the AWS defaults. An endpoint
	// switches the S3 client to path-style addressing.
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`

	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ResourceConfig bounds reads from the input store.
type ResourceConfig struct {
	MaxConcurrentReads int64 `yaml:"max_concurrent_reads"`
	IOLimitBytesPerSec int64 `yaml:"io_limit_bytes_per_sec"`
}

// Config describes one image matching run.
type Config struct {
	// Input is the scene file of collection A.
	Input string `yaml:"input"`
	// InputB is the optional scene file of collection B.
	InputB string `yaml:"input_b"`
	// FeaturesFolder holds the descriptor files. Empty means the
	// features folders recorded in each scene file.
	FeaturesFolder string `yaml:"features_folder"`
	// Tree is the vocabulary tree file. Empty forces brute force.
	Tree string `yaml:"tree"`
	// Weights is an optional word weights file. Empty computes TF-IDF
	// weights from the populated database.
	Weights string `yaml:"weights"`
	// Output is the local path of the pair list.
	Output string `yaml:"output"`
	// CombinedOutput is the local path the merged scene of B and A is
	// saved to. Only used with InputB.
	CombinedOutput string `yaml:"combined_output"`

	// MaxDescriptors caps descriptors read per image (0 = all).
	MaxDescriptors int `yaml:"max_descriptors"`
	// NumMatches caps retrieved matches per image (0 = all).
	NumMatches int `yaml:"num_matches"`
	// MinImages is the collection size below which brute force is used.
	MinImages int `yaml:"min_images"`

	Mode           string `yaml:"mode"`
	Describer      string `yaml:"describer"`
	Dimension      int    `yaml:"dimension"`
	DescriptorKind string `yaml:"descriptor_kind"`
	Scoring        string `yaml:"scoring"`

	// NormalizeDescriptors scales descriptors to unit L2 norm on load.
	NormalizeDescriptors bool `yaml:"normalize_descriptors"`

	// Workers bounds concurrent queries (0 = GOMAXPROCS).
	Workers int `yaml:"workers"`
	// IncompleteViews fills missing image sizes from the image headers.
	IncompleteViews bool `yaml:"incomplete_views"`

	Storage   StorageConfig  `yaml:"storage"`
	Resources ResourceConfig `yaml:"resources"`
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxDescriptors: DefaultMaxDescriptors,
		NumMatches:     DefaultNumMatches,
		MinImages:      DefaultMinImages,
		Mode:           pairs.ModeAAB.String(),
		Describer:      DefaultDescriber,
		Dimension:      DefaultDimension,
		DescriptorKind: descriptor.KindUint8.String(),
		Scoring:        database.ScoreCosine.String(),
		Storage:        StorageConfig{Kind: StorageLocal},
	}
}

// Validate checks every field and returns a *ConfigError for the first
// invalid one.
func (c *Config) Validate() error {
	if c.Input == "" {
		return &ConfigError{Field: "input", cause: errRequired}
	}
	if c.Output == "" {
		return &ConfigError{Field: "output", cause: errRequired}
	}

	mode, err := pairs.ParseMode(c.Mode)
	if err != nil {
		return translateError("mode", c.Mode, err)
	}
	if mode == pairs.ModeAB && c.InputB == "" {
		return &ConfigError{Field: "mode", Value: c.Mode, cause: errors.New("requires a second collection")}
	}
	if _, err := database.ParseScoring(c.Scoring); err != nil {
		return translateError("scoring", c.Scoring, err)
	}

	for _, f := range []struct {
		name  string
		value int
	}{
		{"max_descriptors", c.MaxDescriptors},
		{"num_matches", c.NumMatches},
		{"min_images", c.MinImages},
		{"workers", c.Workers},
	} {
		if f.value < 0 {
			return &ConfigError{Field: f.name, Value: strconv.Itoa(f.value), cause: errNegative}
		}
	}
	if _, err := c.descriptorOptions(); err != nil {
		return err
	}
	if c.Resources.MaxConcurrentReads < 0 {
		return &ConfigError{Field: "resources.max_concurrent_reads", Value: strconv.FormatInt(c.Resources.MaxConcurrentReads, 10)}
	}
	if c.Resources.IOLimitBytesPerSec < 0 {
		return &ConfigError{Field: "resources.io_limit_bytes_per_sec", Value: strconv.FormatInt(c.Resources.IOLimitBytesPerSec, 10)}
	}

	return c.Storage.validate()
}

func (c *Config) descriptorOptions() (descriptor.Options, error) {
	kind, err := descriptor.ParseKind(c.DescriptorKind)
	if err != nil {
		return descriptor.Options{}, translateError("descriptor_kind", c.DescriptorKind, err)
	}
	opts := descriptor.Options{
		Dim:            c.Dimension,
		Kind:           kind,
		MaxDescriptors: c.MaxDescriptors,
		Normalize:      c.NormalizeDescriptors,
	}
	if err := opts.Validate(); err != nil {
		return descriptor.Options{}, translateError("dimension", strconv.Itoa(c.Dimension), err)
	}
	if c.Describer == "" {
		return descriptor.Options{}, &ConfigError{Field: "describer", cause: errRequired}
	}
	return opts, nil
}
