package sfmdata

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSections is returned for section masks with unknown bits.
var ErrInvalidSections = errors.New("sfmdata: invalid sections")

// Sections is a bitmask selecting the parts of a scene file.
type Sections uint8

const (
	SectionViews Sections = 1 << iota
	SectionIntrinsics
	// SectionExtrinsics covers poses and rigs.
	SectionExtrinsics
	SectionStructure
	SectionControlPoints

	SectionAll = SectionViews | SectionIntrinsics | SectionExtrinsics | SectionStructure | SectionControlPoints
)

var sectionNames = []struct {
	s    Sections
	name string
}{
	{SectionViews, "views"},
	{SectionIntrinsics, "intrinsics"},
	{SectionExtrinsics, "extrinsics"},
	{SectionStructure, "structure"},
	{SectionControlPoints, "control_points"},
}

// Has reports whether every bit of other is set.
func (s Sections) Has(other Sections) bool { return s&other == other }

// Validate rejects masks with bits outside SectionAll.
func (s Sections) Validate() error {
	if s&^SectionAll != 0 {
		return fmt.Errorf("%w: 0x%02x", ErrInvalidSections, uint8(s))
	}
	return nil
}

func (s Sections) String() string {
	if s == SectionAll {
		return "all"
	}
	var parts []string
	for _, n := range sectionNames {
		if s.Has(n.s) {
			parts = append(parts, n.name)
		}
	}
	if rest := s &^ SectionAll; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%02x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseSections parses "all" or a "|"-separated list of section names.
func ParseSections(str string) (Sections, error) {
	var s Sections
	for _, part := range strings.Split(str, "|") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "all" {
			s |= SectionAll
			continue
		}
		found := false
		for _, n := range sectionNames {
			if n.name == part {
				s |= n.s
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: %q", ErrInvalidSections, part)
		}
	}
	return s, nil
}
