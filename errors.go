package imgmatch

import (
	"errors"
	"fmt"

	"github.com/hupe1980/imgmatch/database"
	"github.com/hupe1980/imgmatch/descriptor"
	"github.com/hupe1980/imgmatch/pairs"
	"github.com/hupe1980/imgmatch/sfmdata"
)

var (
	// ErrLoad is matched by every *LoadError.
	ErrLoad = errors.New("load failed")

	// ErrEmptyCorpus is matched by every *EmptyCorpusError.
	ErrEmptyCorpus = errors.New("empty corpus")

	// ErrConfig is matched by every *ConfigError.
	ErrConfig = errors.New("invalid configuration")

	// ErrIO is matched by every *IOError.
	ErrIO = errors.New("io failed")
)

// LoadError indicates that an input (scene file, tree, weights or
// descriptors) could not be read or decoded.
//
// The original underlying error can be accessed via errors.Unwrap.
type LoadError struct {
	What  string
	Path  string
	cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s %q: %v", e.What, e.Path, e.cause)
}

func (e *LoadError) Unwrap() error { return e.cause }

// Is reports whether target is ErrLoad.
func (e *LoadError) Is(target error) bool { return target == ErrLoad }

// EmptyCorpusError indicates that a collection that must populate the
// retrieval database contributed no descriptors at all.
type EmptyCorpusError struct {
	Collection string
}

func (e *EmptyCorpusError) Error() string {
	return fmt.Sprintf("no descriptors in collection %s", e.Collection)
}

// Is reports whether target is ErrEmptyCorpus.
func (e *EmptyCorpusError) Is(target error) bool { return target == ErrEmptyCorpus }

// ConfigError indicates an invalid configuration value.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ConfigError struct {
	Field string
	Value string
	cause error
}

func (e *ConfigError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.cause)
}

func (e *ConfigError) Unwrap() error { return e.cause }

// Is reports whether target is ErrConfig.
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// IOError indicates that an output could not be written.
type IOError struct {
	Op    string
	Path  string
	cause error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.cause)
}

func (e *IOError) Unwrap() error { return e.cause }

// Is reports whether target is ErrIO.
func (e *IOError) Is(target error) bool { return target == ErrIO }

// translateError maps parse failures of the lower packages onto
// ConfigError. Other errors pass through unchanged.
func translateError(field, value string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, pairs.ErrInvalidMode),
		errors.Is(err, sfmdata.ErrInvalidSections),
		errors.Is(err, descriptor.ErrInvalidOptions),
		errors.Is(err, database.ErrInvalidScoring):
		return &ConfigError{Field: field, Value: value, cause: err}
	}

	return err
}
