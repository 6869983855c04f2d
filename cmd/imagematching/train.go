package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/imgmatch"
	"github.com/hupe1980/imgmatch/persistence"
	"github.com/hupe1980/imgmatch/voctree"
)

func newTrainCommand(logs *logFlags) *cobra.Command {
	cfg := imgmatch.DefaultConfig()
	build := voctree.DefaultBuildOptions()
	var (
		configPath  string
		compression string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a vocabulary tree",
		Long: `Train a vocabulary tree by hierarchical k-means over the descriptors of
every view of a scene, and optionally the TF-IDF weights of its words.

Examples:
  imagematching train -i sfm.json -f features/ -t vocab.tree
  imagematching train -i sfm.json -t vocab.tree -w vocab.weights --levels 3 --splits 80`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := applyConfigFile(cmd, configPath, &cfg); err != nil {
				return err
			}
			c, err := persistence.ParseCompression(compression)
			if err != nil {
				return err
			}
			logger, err := logs.logger()
			if err != nil {
				return err
			}
			if cfg.Workers > 0 {
				build.Workers = cfg.Workers
			}

			res, err := imgmatch.Train(cmd.Context(), cfg, imgmatch.TrainOptions{
				Build:       build,
				Compression: c,
			}, imgmatch.WithLogger(logger))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d words from %d descriptors of %d images written to %s\n",
				res.Tree.Words(), res.Descriptors, res.Images, cfg.Tree)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&configPath, "config", "c", "", "YAML config file (flags take precedence)")
	registerConfigFlags(fs, &cfg)
	fs.IntVar(&build.Levels, "levels", build.Levels, "Tree depth")
	fs.IntVar(&build.Splits, "splits", build.Splits, "Branching factor")
	fs.IntVar(&build.MaxIterations, "iterations", build.MaxIterations, "k-means iterations per node")
	fs.Int64Var(&build.Seed, "seed", build.Seed, "Random seed")
	fs.StringVar(&compression, "compression", "none", "Output compression (none, lz4, zstd)")

	return cmd
}
