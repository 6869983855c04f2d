package database

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"sort"
	"sync"

	"github.com/hupe1980/imgmatch/internal/queue"
	"github.com/hupe1980/imgmatch/voctree"
)

var (
	// ErrFrozen is returned when the database is modified after the first Find.
	ErrFrozen = errors.New("database: frozen after first query")
	// ErrWordOutOfRange is returned for histograms referencing unknown words.
	ErrWordOutOfRange = errors.New("database: word out of range")
)

// State is the lifecycle state of a Database.
type State int

const (
	StateEmpty State = iota
	StatePopulated
	StateWeighted
	StateQueryable
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePopulated:
		return "populated"
	case StateWeighted:
		return "weighted"
	case StateQueryable:
		return "queryable"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// DocMatch is a ranked retrieval result.
type DocMatch struct {
	ID    uint32
	Score float32
}

type posting struct {
	doc   int32
	value float32
}

// Database stores one sparse word histogram per image.
type Database struct {
	opts options

	mu       sync.RWMutex
	docs     map[uint32]voctree.SparseHistogram
	weights  []float32
	weighted bool
	frozen   bool

	freeze sync.Once
	ids    []uint32    // dense doc index -> image id, ascending
	index  [][]posting // word -> postings
}

// New creates an empty database over a vocabulary of the given size.
// All word weights start at 1.
func New(words int, optFns ...Option) *Database {
	opts := options{scoring: ScoreCosine}
	for _, fn := range optFns {
		fn(&opts)
	}

	weights := make([]float32, words)
	for i := range weights {
		weights[i] = 1
	}

	return &Database{
		opts:    opts,
		docs:    make(map[uint32]voctree.SparseHistogram),
		weights: weights,
	}
}

// Words returns the vocabulary size.
func (db *Database) Words() int { return len(db.weights) }

// Scoring returns the configured similarity.
func (db *Database) Scoring() Scoring { return db.opts.scoring }

// State returns the current lifecycle state.
func (db *Database) State() State {
	db.mu.RLock()
	defer db.mu.RUnlock()

	switch {
	case db.frozen:
		return StateQueryable
	case db.weighted:
		return StateWeighted
	case len(db.docs) > 0:
		return StatePopulated
	default:
		return StateEmpty
	}
}

// Insert stores hist for id, replacing any previous histogram.
// The histogram is copied.
func (db *Database) Insert(id uint32, hist voctree.SparseHistogram) error {
	for w := range hist {
		if int(w) >= len(db.weights) {
			return fmt.Errorf("%w: word %d, vocabulary %d", ErrWordOutOfRange, w, len(db.weights))
		}
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.frozen {
		return ErrFrozen
	}
	db.docs[id] = hist.Clone()
	return nil
}

// Size returns the number of images.
func (db *Database) Size() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.docs)
}

// Histogram returns the stored histogram of id.
// The returned map must not be modified.
func (db *Database) Histogram(id uint32) (voctree.SparseHistogram, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	h, ok := db.docs[id]
	return h, ok
}

// Histograms iterates over all images in ascending id order.
func (db *Database) Histograms() iter.Seq2[uint32, voctree.SparseHistogram] {
	return func(yield func(uint32, voctree.SparseHistogram) bool) {
		db.mu.RLock()
		ids := sortedIDs(db.docs)
		db.mu.RUnlock()

		for _, id := range ids {
			h, _ := db.Histogram(id)
			if !yield(id, h) {
				return
			}
		}
	}
}

// Weights returns a copy of the word weights.
func (db *Database) Weights() []float32 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]float32, len(db.weights))
	copy(out, db.weights)
	return out
}

// ComputeTfIdfWeights sets w[i] = ln(N / df[i]) where N is the number of
// images and df[i] the number of images containing word i. Words that occur
// in no image get weight 0.
func (db *Database) ComputeTfIdfWeights() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.frozen {
		return ErrFrozen
	}

	df := make([]uint32, len(db.weights))
	for _, h := range db.docs {
		for w, c := range h {
			if c > 0 {
				df[w]++
			}
		}
	}

	n := float64(len(db.docs))
	for i, d := range df {
		if d == 0 {
			db.weights[i] = 0
			continue
		}
		db.weights[i] = float32(math.Log(n / float64(d)))
	}
	db.weighted = true
	return nil
}

// SetWeights replaces the word weights.
func (db *Database) SetWeights(weights []float32) error {
	if len(weights) != len(db.weights) {
		return fmt.Errorf("%w: %d weights, vocabulary %d", ErrWeightsMismatch, len(weights), len(db.weights))
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.frozen {
		return ErrFrozen
	}
	copy(db.weights, weights)
	db.weighted = true
	return nil
}

// Find returns the k images most similar to query, best first. Ties are
// broken by ascending id. k == 0 or k >= Size() returns every image.
//
// The first call freezes the database.
func (db *Database) Find(query voctree.SparseHistogram, k int) []DocMatch {
	db.freeze.Do(db.buildIndex)

	n := len(db.ids)
	if n == 0 {
		return []DocMatch{}
	}
	if k <= 0 || k > n {
		k = n
	}

	q := db.normalized(query)
	scores := make([]float32, n)
	for w, qv := range q {
		for _, p := range db.index[w] {
			if db.opts.scoring == ScoreIntersection {
				scores[p.doc] += min(qv, p.value)
			} else {
				scores[p.doc] += qv * p.value
			}
		}
	}

	top := queue.NewTopK(k)
	for doc, s := range scores {
		top.Push(queue.Item{ID: db.ids[doc], Score: clamp01(s)})
	}

	items := top.Sorted()
	out := make([]DocMatch, len(items))
	for i, it := range items {
		out[i] = DocMatch{ID: it.ID, Score: it.Score}
	}
	return out
}

// buildIndex freezes the database and builds the inverted index.
func (db *Database) buildIndex() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.frozen = true
	db.ids = sortedIDs(db.docs)
	db.index = make([][]posting, len(db.weights))

	for doc, id := range db.ids {
		for w, v := range db.normalizedLocked(db.docs[id]) {
			db.index[w] = append(db.index[w], posting{doc: int32(doc), value: v})
		}
	}
}

func (db *Database) normalized(h voctree.SparseHistogram) map[uint32]float32 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.normalizedLocked(h)
}

// normalizedLocked weights h and scales it to unit L2 norm (cosine) or unit
// L1 norm (intersection). Words with zero weight and unknown words are
// dropped.
func (db *Database) normalizedLocked(h voctree.SparseHistogram) map[uint32]float32 {
	out := make(map[uint32]float32, len(h))
	var norm float64
	for w, c := range h {
		if int(w) >= len(db.weights) {
			continue
		}
		v := float32(c) * db.weights[w]
		if v <= 0 {
			continue
		}
		out[w] = v
		if db.opts.scoring == ScoreIntersection {
			norm += float64(v)
		} else {
			norm += float64(v) * float64(v)
		}
	}
	if norm == 0 {
		return nil
	}
	if db.opts.scoring != ScoreIntersection {
		norm = math.Sqrt(norm)
	}
	inv := float32(1 / norm)
	for w, v := range out {
		out[w] = v * inv
	}
	return out
}

func clamp01(s float32) float32 {
	return min(max(s, 0), 1)
}

func sortedIDs(docs map[uint32]voctree.SparseHistogram) []uint32 {
	ids := make([]uint32, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
