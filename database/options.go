package database

import (
	"errors"
	"fmt"
)

// ErrInvalidScoring is returned by ParseScoring for unknown names.
var ErrInvalidScoring = errors.New("database: invalid scoring")

// Scoring selects the similarity used by Find.
type Scoring int

const (
	// ScoreCosine is the cosine similarity of TF-IDF vectors.
	ScoreCosine Scoring = iota
	// ScoreIntersection is the histogram intersection of L1-normalized
	// TF-IDF vectors.
	ScoreIntersection
)

func (s Scoring) String() string {
	switch s {
	case ScoreCosine:
		return "cosine"
	case ScoreIntersection:
		return "intersection"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// ParseScoring parses "cosine" or "intersection".
func ParseScoring(s string) (Scoring, error) {
	switch s {
	case "", "cosine":
		return ScoreCosine, nil
	case "intersection":
		return ScoreIntersection, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidScoring, s)
	}
}

type options struct {
	scoring Scoring
}

// Option configures a Database.
type Option func(*options)

// WithScoring selects the similarity used by Find.
func WithScoring(s Scoring) Option {
	return func(o *options) {
		o.scoring = s
	}
}
