package imgmatch

import (
	"context"
	"io"
	"time"

	"github.com/hupe1980/imgmatch/database"
	"github.com/hupe1980/imgmatch/persistence"
	"github.com/hupe1980/imgmatch/voctree"
)

// TrainOptions configures Train.
type TrainOptions struct {
	Build       voctree.BuildOptions
	Compression persistence.Compression
}

// TrainResult summarizes a successful Train.
type TrainResult struct {
	Tree        *voctree.Tree
	Images      int
	Descriptors int
	// Weights is nil unless Config.Weights was set.
	Weights []float32
}

// Train builds a vocabulary tree from the descriptors of every view of
// Config.Input and saves it to Config.Tree. When Config.Weights is set the
// TF-IDF weights of the same collection are saved there as well. Both are
// written like the outputs of Run, and nothing stays behind on failure.
//
// Only the input, descriptor and storage fields of cfg are used.
func Train(ctx context.Context, cfg Config, topts TrainOptions, optFns ...Option) (*TrainResult, error) {
	if cfg.Input == "" {
		return nil, &ConfigError{Field: "input", cause: errRequired}
	}
	if cfg.Tree == "" {
		return nil, &ConfigError{Field: "tree", cause: errRequired}
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	descOpts, err := cfg.descriptorOptions()
	if err != nil {
		return nil, err
	}

	r := &run{
		Matcher: &Matcher{cfg: cfg, opts: applyOptions(optFns), descOpts: descOpts},
		res:     &Result{},
	}
	r.log = r.opts.logger.WithRunID()

	if r.store, err = openInputs(ctx, &r.cfg, &r.opts); err != nil {
		return nil, err
	}
	a, err := r.loadCollection(ctx, "A", cfg.Input)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	perImage := make([][][]float32, len(a.ids))
	var all [][]float32
	for i, id := range a.ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		descs, err := r.loadDescriptors(ctx, a, id)
		if err != nil {
			return nil, err
		}
		perImage[i] = descs
		all = append(all, descs...)
	}
	r.opts.metricsCollector.RecordDescriptorLoad(len(a.ids), len(all), time.Since(start))
	if len(all) == 0 {
		return nil, &EmptyCorpusError{Collection: a.name}
	}

	start = time.Now()
	tree, err := voctree.Build(ctx, all, topts.Build)
	if err != nil {
		return nil, err
	}
	r.log.LogPhase(ctx, "build tree", time.Since(start),
		"features", len(all),
		"levels", tree.Levels(),
		"splits", tree.Splits(),
	)

	res := &TrainResult{Tree: tree, Images: len(a.ids), Descriptors: len(all)}

	// Weights are computed before anything is written.
	var db *database.Database
	if cfg.Weights != "" {
		db = database.New(tree.Words())
		for i, id := range a.ids {
			if err := db.Insert(id, tree.QuantizeToSparse(perImage[i])); err != nil {
				return nil, err
			}
		}
		if err := db.ComputeTfIdfWeights(); err != nil {
			return nil, err
		}
		r.log.DebugContext(ctx, "weights computed",
			"state", db.State().String(),
			"images", db.Size(),
		)
		res.Weights = db.Weights()
	}

	err = writeOutput(ctx, &r.cfg, r.store, cfg.Tree,
		func(w io.Writer) error { return tree.Save(w, topts.Compression) },
		func(path string) error { return tree.SaveFile(path, topts.Compression) },
	)
	if err != nil {
		return nil, &IOError{Op: "save tree", Path: cfg.Tree, cause: err}
	}
	if db == nil {
		return res, nil
	}

	err = writeOutput(ctx, &r.cfg, r.store, cfg.Weights,
		func(w io.Writer) error { return db.SaveWeights(w, topts.Compression) },
		func(path string) error { return db.SaveWeightsFile(path, topts.Compression) },
	)
	if err != nil {
		if rmErr := removeOutput(ctx, &r.cfg, r.store, cfg.Tree); rmErr != nil {
			r.log.WarnContext(ctx, "removing vocabulary tree failed", "path", cfg.Tree, "error", rmErr)
		}
		return nil, &IOError{Op: "save weights", Path: cfg.Weights, cause: err}
	}

	r.log.InfoContext(ctx, "vocabulary saved",
		"tree", cfg.Tree,
		"weights", cfg.Weights,
		"words", tree.Words(),
	)
	return res, nil
}
