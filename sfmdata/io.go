package sfmdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"

	"github.com/hupe1980/imgmatch/blobstore"
	"github.com/hupe1980/imgmatch/codec"
	"github.com/hupe1980/imgmatch/persistence"
)

// ErrMalformed is returned for files that are not valid scene JSON.
var ErrMalformed = errors.New("sfmdata: malformed scene file")

// Version is the file format version written by Encode.
var Version = [3]float64{1, 0, 0}

// LoadOptions configures Load and Decode.
type LoadOptions struct {
	// IncompleteViews completes every view after parsing: missing image
	// dimensions are read from the image header.
	IncompleteViews bool
	// Images is the store image paths are opened from when completing
	// views. Defaults to the local file system.
	Images blobstore.BlobStore
	// Workers bounds concurrent view completion (default GOMAXPROCS).
	Workers int
	// Codec decodes the JSON (default codec.Default).
	Codec codec.Codec
}

// Load reads the scene file name from store.
func Load(ctx context.Context, store blobstore.BlobStore, name string, sections Sections, opts LoadOptions) (*SfMData, error) {
	if err := sections.Validate(); err != nil {
		return nil, err
	}
	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, fmt.Errorf("sfmdata: read %q: %w", name, err)
	}
	s, err := Decode(ctx, data, sections, opts)
	if err != nil {
		return nil, fmt.Errorf("sfmdata: decode %q: %w", name, err)
	}
	s.Dir = filepath.Dir(name)
	return s, nil
}

// Decode parses scene JSON. Only the selected sections are kept; feature
// and match folders are always read. When an id occurs more than once the
// first occurrence wins.
func Decode(ctx context.Context, data []byte, sections Sections, opts LoadOptions) (*SfMData, error) {
	if err := sections.Validate(); err != nil {
		return nil, err
	}
	c := opts.Codec
	if c == nil {
		c = codec.Default
	}

	var f fileJSON
	if err := c.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	s := New()
	s.FeaturesFolders = append(s.FeaturesFolders, f.FeaturesFolders...)
	s.MatchesFolders = append(s.MatchesFolders, f.MatchesFolders...)

	if sections.Has(SectionViews) {
		views := make([]*View, len(f.Views))
		for i, v := range f.Views {
			views[i] = v.decode()
		}
		if opts.IncompleteViews {
			if err := completeViews(ctx, views, opts); err != nil {
				return nil, err
			}
		}
		for _, v := range views {
			if _, ok := s.Views[v.ViewID]; !ok {
				s.Views[v.ViewID] = v
			}
		}
	}

	if sections.Has(SectionIntrinsics) {
		for _, in := range f.Intrinsics {
			intr, err := in.decode()
			if err != nil {
				return nil, fmt.Errorf("%w: intrinsic %d: %v", ErrMalformed, in.IntrinsicID, err)
			}
			if _, ok := s.Intrinsics[uint32(in.IntrinsicID)]; !ok {
				s.Intrinsics[uint32(in.IntrinsicID)] = intr
			}
		}
	}

	if sections.Has(SectionExtrinsics) {
		for _, p := range f.Poses {
			pose, err := p.Pose.decode("pose")
			if err != nil {
				return nil, fmt.Errorf("%w: pose %d: %v", ErrMalformed, p.PoseID, err)
			}
			if _, ok := s.Poses[uint32(p.PoseID)]; !ok {
				s.Poses[uint32(p.PoseID)] = pose
			}
		}
		for _, r := range f.Rigs {
			rig, err := r.decode()
			if err != nil {
				return nil, fmt.Errorf("%w: rig %d: %v", ErrMalformed, r.RigID, err)
			}
			if _, ok := s.Rigs[uint32(r.RigID)]; !ok {
				s.Rigs[uint32(r.RigID)] = rig
			}
		}
	}

	if sections.Has(SectionStructure) {
		if err := decodeLandmarks(s.Structure, f.Structure); err != nil {
			return nil, err
		}
	}
	if sections.Has(SectionControlPoints) {
		if err := decodeLandmarks(s.ControlPoints, f.ControlPoints); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func decodeLandmarks(dst map[uint32]*Landmark, src list[landmarkJSON]) error {
	for _, l := range src {
		lm, err := l.decode()
		if err != nil {
			return fmt.Errorf("%w: landmark %d: %v", ErrMalformed, l.LandmarkID, err)
		}
		if _, ok := dst[uint32(l.LandmarkID)]; !ok {
			dst[uint32(l.LandmarkID)] = lm
		}
	}
	return nil
}

// Encode serializes the selected sections as indented JSON.
func Encode(s *SfMData, sections Sections, c codec.Codec) ([]byte, error) {
	if err := sections.Validate(); err != nil {
		return nil, err
	}

	f := fileJSON{
		Version:         numbers(Version[:]),
		FeaturesFolders: s.FeaturesFolders,
		MatchesFolders:  s.MatchesFolders,
	}

	if sections.Has(SectionViews) {
		for _, id := range sortedKeys(s.Views) {
			f.Views = append(f.Views, encodeView(s.Views[id]))
		}
	}
	if sections.Has(SectionIntrinsics) {
		for _, id := range sortedKeys(s.Intrinsics) {
			f.Intrinsics = append(f.Intrinsics, encodeIntrinsic(id, s.Intrinsics[id]))
		}
	}
	if sections.Has(SectionExtrinsics) {
		for _, id := range sortedKeys(s.Poses) {
			f.Poses = append(f.Poses, poseJSON{PoseID: index(id), Pose: encodePose(s.Poses[id])})
		}
		for _, id := range sortedKeys(s.Rigs) {
			f.Rigs = append(f.Rigs, encodeRig(id, s.Rigs[id]))
		}
	}
	if sections.Has(SectionStructure) {
		for _, id := range sortedKeys(s.Structure) {
			f.Structure = append(f.Structure, encodeLandmark(id, s.Structure[id]))
		}
	}
	if sections.Has(SectionControlPoints) {
		for _, id := range sortedKeys(s.ControlPoints) {
			f.ControlPoints = append(f.ControlPoints, encodeLandmark(id, s.ControlPoints[id]))
		}
	}

	return codec.MarshalPretty(c, f)
}

// Write encodes the selected sections to w.
func Write(w io.Writer, s *SfMData, sections Sections) error {
	data, err := Encode(s, sections, nil)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Save atomically writes the selected sections to path.
func Save(path string, s *SfMData, sections Sections) error {
	if err := sections.Validate(); err != nil {
		return err
	}
	return persistence.SaveToFile(path, func(w io.Writer) error {
		return Write(w, s, sections)
	})
}

func workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}
