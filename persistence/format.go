package persistence

import "errors"

const (
	// MagicTree identifies vocabulary tree files (ASCII: "VOC0").
	MagicTree = 0x564F4330
	// MagicWeights identifies word-weight files (ASCII: "VOW0").
	MagicWeights = 0x564F5730
	// Version is the current container format version (v1.0.0).
	Version = 0x00010000

	headerSize  = 8
	trailerSize = 4
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrTruncated      = errors.New("truncated data")
)
