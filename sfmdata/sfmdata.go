package sfmdata

import (
	"math"
	"slices"
	"sort"
)

// UndefinedIndex marks an unset id.
const UndefinedIndex uint32 = math.MaxUint32

// View is one image of the scene.
type View struct {
	ViewID      uint32
	PoseID      uint32
	IntrinsicID uint32
	ResectionID uint32
	RigID       uint32
	SubPoseID   uint32
	Path        string
	Width       uint32
	Height      uint32
	Metadata    map[string]string
}

// NewView creates a view with every link unset.
func NewView(viewID uint32, path string) *View {
	return &View{
		ViewID:      viewID,
		PoseID:      UndefinedIndex,
		IntrinsicID: UndefinedIndex,
		ResectionID: UndefinedIndex,
		RigID:       UndefinedIndex,
		SubPoseID:   UndefinedIndex,
		Path:        path,
		Metadata:    map[string]string{},
	}
}

// IsPartOfRig reports whether the view belongs to a rig.
func (v *View) IsPartOfRig() bool { return v.RigID != UndefinedIndex }

// Intrinsic is a pinhole camera model.
type Intrinsic struct {
	Type                 string
	Width                uint32
	Height               uint32
	SerialNumber         string
	PxInitialFocalLength float64
	PxFocalLength        float64
	PrincipalPoint       [2]float64
	DistortionParams     []float64
}

// Pose is a rigid transform given by a 3x3 rotation and a camera center.
type Pose struct {
	Rotation [9]float64
	Center   [3]float64
}

// RigSubPose is the pose of one camera relative to its rig.
type RigSubPose struct {
	Status string
	Pose   Pose
}

// Rig is a set of cameras moving together.
type Rig struct {
	SubPoses []RigSubPose
}

// Observation is the projection of a landmark in one view.
type Observation struct {
	FeatureID uint32
	X         [2]float64
}

// Landmark is a reconstructed 3-D point with its observations keyed by view id.
type Landmark struct {
	DescType     string
	Color        [3]float64
	X            [3]float64
	Observations map[uint32]Observation
}

// SfMData is a scene description.
type SfMData struct {
	FeaturesFolders []string
	MatchesFolders  []string

	Views         map[uint32]*View
	Intrinsics    map[uint32]*Intrinsic
	Poses         map[uint32]Pose
	Rigs          map[uint32]*Rig
	Structure     map[uint32]*Landmark
	ControlPoints map[uint32]*Landmark

	// Dir is the directory of the file the scene was loaded from. Relative
	// feature and match folders resolve against it.
	Dir string
}

// New creates an empty scene.
func New() *SfMData {
	return &SfMData{
		Views:         make(map[uint32]*View),
		Intrinsics:    make(map[uint32]*Intrinsic),
		Poses:         make(map[uint32]Pose),
		Rigs:          make(map[uint32]*Rig),
		Structure:     make(map[uint32]*Landmark),
		ControlPoints: make(map[uint32]*Landmark),
	}
}

// ViewIDs returns the view ids in ascending order.
func (s *SfMData) ViewIDs() []uint32 {
	return sortedKeys(s.Views)
}

// Combine adds everything from other that s does not have yet. Entities
// already present in s are never replaced.
func (s *SfMData) Combine(other *SfMData) {
	s.FeaturesFolders = appendMissing(s.FeaturesFolders, other.FeaturesFolders)
	s.MatchesFolders = appendMissing(s.MatchesFolders, other.MatchesFolders)

	mergeMissing(s.Views, other.Views)
	mergeMissing(s.Intrinsics, other.Intrinsics)
	mergeMissing(s.Poses, other.Poses)
	mergeMissing(s.Rigs, other.Rigs)
	mergeMissing(s.Structure, other.Structure)
	mergeMissing(s.ControlPoints, other.ControlPoints)
}

func mergeMissing[V any](dst, src map[uint32]V) {
	for id, v := range src {
		if _, ok := dst[id]; !ok {
			dst[id] = v
		}
	}
}

func appendMissing(dst, src []string) []string {
	for _, s := range src {
		if !slices.Contains(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}

func sortedKeys[V any](m map[uint32]V) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
