package imgmatch

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/imgmatch/blobstore"
	"github.com/hupe1980/imgmatch/database"
	"github.com/hupe1980/imgmatch/descriptor"
	"github.com/hupe1980/imgmatch/pairs"
	"github.com/hupe1980/imgmatch/sfmdata"
	"github.com/hupe1980/imgmatch/voctree"
)

// RunMode tells how the pair list of a run was produced.
type RunMode int

const (
	// RunBruteForce pairs every image with every other image.
	RunBruteForce RunMode = iota
	// RunIndexed retrieves candidates from the vocabulary tree database.
	RunIndexed
)

func (m RunMode) String() string {
	switch m {
	case RunBruteForce:
		return "brute_force"
	case RunIndexed:
		return "indexed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// Timings holds the wall time of each phase of a run. Phases that did
// not run are zero.
type Timings struct {
	Load     time.Duration
	Populate time.Duration
	Query    time.Duration
	Write    time.Duration
}

// Result summarizes a successful run.
type Result struct {
	Pairs *pairs.OrderedPairList
	Mode  RunMode

	ImagesA int
	ImagesB int
	// Descriptors is the number of descriptors inserted into the
	// database. Zero for brute force.
	Descriptors int

	Timings Timings
}

// Matcher selects image pairs for one Config.
type Matcher struct {
	cfg      Config
	opts     options
	mode     pairs.Mode
	scoring  database.Scoring
	descOpts descriptor.Options
}

// NewMatcher validates cfg and creates a Matcher.
func NewMatcher(cfg Config, optFns ...Option) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mode, err := pairs.ParseMode(cfg.Mode)
	if err != nil {
		return nil, translateError("mode", cfg.Mode, err)
	}
	scoring, err := database.ParseScoring(cfg.Scoring)
	if err != nil {
		return nil, translateError("scoring", cfg.Scoring, err)
	}
	descOpts, err := cfg.descriptorOptions()
	if err != nil {
		return nil, err
	}

	return &Matcher{
		cfg:      cfg,
		opts:     applyOptions(optFns),
		mode:     mode,
		scoring:  scoring,
		descOpts: descOpts,
	}, nil
}

// Run is shorthand for NewMatcher followed by (*Matcher).Run.
func Run(ctx context.Context, cfg Config, optFns ...Option) (*Result, error) {
	m, err := NewMatcher(cfg, optFns...)
	if err != nil {
		return nil, err
	}
	return m.Run(ctx)
}

// collection is a loaded scene together with its descriptor files.
type collection struct {
	name  string
	scene *sfmdata.SfMData
	ids   []uint32
	files map[uint32]string
}

// run holds the state shared by the phases of one Run.
type run struct {
	*Matcher
	log   *Logger
	store blobstore.BlobStore
	res   *Result
}

// Run selects the image pairs and writes them to Config.Output. With a
// second collection and Config.CombinedOutput, the merged scene is saved
// as well. Nothing is written unless pair selection succeeded. Outputs go
// to local files, or into the bucket for s3 and minio storage.
func (m *Matcher) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	r := &run{
		Matcher: m,
		log:     m.opts.logger.WithRunID(),
		res:     &Result{},
	}

	err := r.execute(ctx)

	var numPairs uint64
	if r.res.Pairs != nil {
		numPairs = r.res.Pairs.NumPairs()
	}
	m.opts.metricsCollector.RecordRun(r.res.Mode, numPairs, time.Since(start), err)

	if err != nil {
		r.log.ErrorContext(ctx, "image matching failed", "error", err)
		return nil, err
	}
	r.log.LogPhase(ctx, "image matching", time.Since(start),
		"mode", r.res.Mode.String(),
		"images", r.res.Pairs.Len(),
		"pairs", numPairs,
	)
	return r.res, nil
}

func (r *run) execute(ctx context.Context) error {
	store, err := openInputs(ctx, &r.cfg, &r.opts)
	if err != nil {
		return err
	}
	r.store = store

	start := time.Now()
	a, err := r.loadCollection(ctx, "A", r.cfg.Input)
	if err != nil {
		return err
	}
	var b *collection
	if r.cfg.InputB != "" {
		if b, err = r.loadCollection(ctx, "B", r.cfg.InputB); err != nil {
			return err
		}
	}
	r.res.Timings.Load = time.Since(start)
	r.res.ImagesA = len(a.ids)
	if b != nil {
		r.res.ImagesB = len(b.ids)
	}

	count := r.res.ImagesA + r.res.ImagesB
	if r.cfg.Tree == "" && count > bruteForceWarnImages {
		r.log.WarnContext(ctx, "no vocabulary tree given, brute force matching of a large collection",
			"images", count,
		)
	}

	var selected *pairs.OrderedPairList
	if r.cfg.Tree == "" || count < r.cfg.MinImages {
		r.res.Mode = RunBruteForce
		selected = r.bruteForce(a, b)
	} else {
		r.res.Mode = RunIndexed
		if selected, err = r.retrieve(ctx, a, b); err != nil {
			return err
		}
	}
	r.res.Pairs = selected

	start = time.Now()
	err = writeOutput(ctx, &r.cfg, r.store, r.cfg.Output, selected.Write, selected.WriteFile)
	r.log.LogOutput(ctx, r.cfg.Output, selected.Len(), selected.NumPairs(), err)
	if err != nil {
		return &IOError{Op: "write pairs", Path: r.cfg.Output, cause: err}
	}

	if b != nil && r.cfg.CombinedOutput != "" {
		b.scene.Combine(a.scene)
		err := writeOutput(ctx, &r.cfg, r.store, r.cfg.CombinedOutput,
			func(w io.Writer) error { return sfmdata.Write(w, b.scene, sfmdata.SectionAll) },
			func(path string) error { return sfmdata.Save(path, b.scene, sfmdata.SectionAll) },
		)
		if err != nil {
			return &IOError{Op: "save scene", Path: r.cfg.CombinedOutput, cause: err}
		}
		r.log.InfoContext(ctx, "combined scene saved",
			"path", r.cfg.CombinedOutput,
			"views", len(b.scene.Views),
		)
	}
	r.res.Timings.Write = time.Since(start)

	return nil
}

func (r *run) loadCollection(ctx context.Context, name, path string) (*collection, error) {
	scene, err := sfmdata.Load(ctx, r.store, path, sfmdata.SectionAll, sfmdata.LoadOptions{
		IncompleteViews: r.cfg.IncompleteViews,
		Images:          r.opts.images,
		Workers:         r.cfg.Workers,
		Codec:           r.opts.codec,
	})
	if err != nil {
		return nil, &LoadError{What: "scene", Path: path, cause: err}
	}

	files, err := sfmdata.LocateDescriptorFiles(ctx, r.store, scene, r.cfg.FeaturesFolder, r.cfg.Describer)
	if err != nil {
		return nil, &LoadError{What: "features folders", Path: path, cause: err}
	}

	c := &collection{
		name:  name,
		scene: scene,
		ids:   scene.ViewIDs(),
		files: files,
	}
	r.log.WithCollection(name).InfoContext(ctx, "scene loaded",
		"path", path,
		"views", len(c.ids),
	)
	return c, nil
}

func (r *run) bruteForce(a, b *collection) *pairs.OrderedPairList {
	out := pairs.NewOrderedPairList()
	if r.mode == pairs.ModeAAB {
		pairs.AddBruteForce(out, a.ids)
	}
	if b != nil {
		pairs.BruteForceBetween(out, a.ids, b.ids)
	}
	return out
}

// retrieve builds the retrieval database and queries it with every image
// of collection A.
func (r *run) retrieve(ctx context.Context, a, b *collection) (*pairs.OrderedPairList, error) {
	start := time.Now()

	tree, err := voctree.Load(ctx, r.store, r.cfg.Tree)
	if err != nil {
		return nil, &LoadError{What: "vocabulary tree", Path: r.cfg.Tree, cause: err}
	}
	if tree.Dim() != r.descOpts.Dim {
		return nil, &ConfigError{
			Field: "dimension",
			Value: strconv.Itoa(r.descOpts.Dim),
			cause: fmt.Errorf("vocabulary tree has dimension %d", tree.Dim()),
		}
	}
	r.log.InfoContext(ctx, "vocabulary tree loaded",
		"path", r.cfg.Tree,
		"levels", tree.Levels(),
		"splits", tree.Splits(),
		"words", tree.Words(),
	)

	db := database.New(tree.Words(), database.WithScoring(r.scoring))
	if r.cfg.Weights != "" {
		if err := db.LoadWeights(ctx, r.store, r.cfg.Weights); err != nil {
			return nil, &LoadError{What: "weights", Path: r.cfg.Weights, cause: err}
		}
	}

	if r.mode == pairs.ModeAAB {
		n, err := r.populate(ctx, tree, db, a)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, &EmptyCorpusError{Collection: a.name}
		}
		r.res.Descriptors += n
	}
	if b != nil {
		n, err := r.populate(ctx, tree, db, b)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, &EmptyCorpusError{Collection: b.name}
		}
		r.res.Descriptors += n
	}

	if r.cfg.Weights == "" {
		if err := db.ComputeTfIdfWeights(); err != nil {
			return nil, err
		}
	}
	r.res.Timings.Populate = time.Since(start)
	r.log.LogPhase(ctx, "populate", r.res.Timings.Populate,
		"images", db.Size(),
		"features", r.res.Descriptors,
		"state", db.State().String(),
	)

	// Images without descriptors only ever score 0.
	var blank []uint32
	for id, hist := range db.Histograms() {
		if len(hist) == 0 {
			blank = append(blank, id)
		}
	}
	if len(blank) > 0 {
		r.log.WarnContext(ctx, "images without descriptors in the database",
			"images", len(blank),
			"ids", blank,
		)
	}

	numMatches := r.cfg.NumMatches
	if numMatches == 0 {
		numMatches = db.Size()
	}

	start = time.Now()
	all, err := r.query(ctx, tree, db, a, numMatches)
	if err != nil {
		return nil, err
	}
	selected := pairs.Reduce(all, numMatches)
	r.res.Timings.Query = time.Since(start)
	r.log.LogPhase(ctx, "query", r.res.Timings.Query,
		"queries", len(all),
		"images", selected.Len(),
	)

	return selected, nil
}

// populate inserts the histograms of every image of c, in ascending id
// order, and returns the number of descriptors read.
func (r *run) populate(ctx context.Context, tree *voctree.Tree, db *database.Database, c *collection) (int, error) {
	start := time.Now()
	total := 0
	for _, id := range c.ids {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		descs, err := r.loadDescriptors(ctx, c, id)
		if err != nil {
			return 0, err
		}
		hist := tree.QuantizeToSparse(descs)
		total += int(hist.Total())
		if err := db.Insert(id, hist); err != nil {
			return 0, err
		}
	}
	r.opts.metricsCollector.RecordDescriptorLoad(len(c.ids), total, time.Since(start))
	r.log.WithCollection(c.name).DebugContext(ctx, "collection inserted",
		"images", len(c.ids),
		"features", total,
	)
	return total, nil
}

func (r *run) loadDescriptors(ctx context.Context, c *collection, id uint32) ([][]float32, error) {
	path := c.files[id]
	descs, err := descriptor.Load(ctx, r.store, path, r.descOpts)
	if err != nil {
		return nil, &LoadError{What: "descriptors", Path: path, cause: err}
	}
	return descs, nil
}

// query retrieves the numMatches best database images for every image of
// a. Queries run concurrently; the first failure cancels the rest.
func (r *run) query(ctx context.Context, tree *voctree.Tree, db *database.Database, a *collection, numMatches int) (pairs.PairList, error) {
	workers := r.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	all := make(pairs.PairList, len(a.ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range a.ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()

			hist, err := r.queryHistogram(gctx, tree, db, a, id)
			if err != nil {
				r.opts.metricsCollector.RecordQuery(numMatches, 0, time.Since(start), err)
				r.log.LogQuery(gctx, id, numMatches, 0, err)
				return err
			}

			matches := pairs.FromMatches(db.Find(hist, numMatches))

			mu.Lock()
			all[id] = matches
			mu.Unlock()

			r.opts.metricsCollector.RecordQuery(numMatches, len(matches), time.Since(start), nil)
			r.log.LogQuery(gctx, id, numMatches, len(matches), nil)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

// queryHistogram returns the histogram an image of A is queried with:
// the stored one when A populated the database, otherwise a fresh
// quantization of its descriptors.
func (r *run) queryHistogram(ctx context.Context, tree *voctree.Tree, db *database.Database, a *collection, id uint32) (voctree.SparseHistogram, error) {
	if r.mode == pairs.ModeAAB {
		if hist, ok := db.Histogram(id); ok {
			return hist, nil
		}
	}
	descs, err := r.loadDescriptors(ctx, a, id)
	if err != nil {
		return nil, err
	}
	return tree.QuantizeToSparse(descs), nil
}
