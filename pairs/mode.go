package pairs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMode is returned by ParseMode for unknown mode names.
var ErrInvalidMode = errors.New("pairs: invalid multi-collection mode")

// Mode selects which pairs are produced when two collections are given.
type Mode int

const (
	// ModeAAB pairs images within A and every image of A with every image of B.
	ModeAAB Mode = iota
	// ModeAB only pairs images of A with images of B.
	ModeAB
)

func (m Mode) String() string {
	switch m {
	case ModeAAB:
		return "a_ab"
	case ModeAB:
		return "a_b"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// ParseMode parses "a_ab" or "a_b", ignoring case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a_ab":
		return ModeAAB, nil
	case "a_b":
		return ModeAB, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
