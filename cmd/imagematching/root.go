package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/imgmatch"
)

func newRootCommand() *cobra.Command {
	cfg := imgmatch.DefaultConfig()
	var (
		configPath string
		logs       logFlags
	)

	cmd := &cobra.Command{
		Use:   "imagematching",
		Short: "Select the image pairs to feature-match",
		Long: `Select the image pairs to feature-match.

Small collections, or runs without a vocabulary tree, pair every image with
every other image. Larger collections are indexed with the vocabulary tree
and every image is paired with its most similar images only.

Examples:
  imagematching -i sfm.json -f features/ -t vocab.tree -o imageMatches.txt
  imagematching -i a.json --input-b b.json --mode a_b -t vocab.tree -o pairs.txt
  imagematching --config matching.yaml --num-matches 20`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := applyConfigFile(cmd, configPath, &cfg); err != nil {
				return err
			}
			logger, err := logs.logger()
			if err != nil {
				return err
			}

			res, err := imgmatch.Run(cmd.Context(), cfg, imgmatch.WithLogger(logger))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d images, %d pairs written to %s\n",
				res.Mode, res.Pairs.Len(), res.Pairs.NumPairs(), cfg.Output)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&configPath, "config", "c", "", "YAML config file (flags take precedence)")
	registerConfigFlags(fs, &cfg)
	fs.StringVar(&cfg.InputB, "input-b", cfg.InputB, "Scene file of collection B")
	fs.StringVarP(&cfg.Output, "output", "o", cfg.Output, "Pair list file")
	fs.StringVar(&cfg.CombinedOutput, "combined-output", cfg.CombinedOutput, "Scene file of collection B merged with A")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Multi-collection mode (a_ab, a_b)")
	fs.StringVar(&cfg.Scoring, "scoring", cfg.Scoring, "Similarity (cosine, intersection)")
	fs.IntVar(&cfg.NumMatches, "num-matches", cfg.NumMatches, "Matches kept per image (0 = all)")
	fs.IntVar(&cfg.MinImages, "min-images", cfg.MinImages, "Image count below which brute force is used")
	logs.register(cmd.PersistentFlags())

	cmd.AddCommand(newTrainCommand(&logs))
	return cmd
}
