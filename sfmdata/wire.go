package sfmdata

import (
	"bytes"
	"fmt"
	"strconv"

	gojson "github.com/goccy/go-json"
)

// unquote strips the quotes of a JSON string token. Other tokens are
// returned unchanged.
func unquote(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := gojson.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	return string(b), nil
}

func isEmpty(b []byte) bool {
	b = bytes.TrimSpace(b)
	return bytes.Equal(b, []byte(`""`)) || bytes.Equal(b, []byte("null"))
}

// index is an id or count encoded as a JSON number or numeric string.
type index uint32

func (i *index) UnmarshalJSON(b []byte) error {
	s, err := unquote(b)
	if err != nil {
		return err
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return fmt.Errorf("sfmdata: invalid index %s", b)
	}
	*i = index(v)
	return nil
}

func (i index) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, strconv.FormatUint(uint64(i), 10)), nil
}

// optIndex maps UndefinedIndex to an absent field.
func optIndex(v uint32) *index {
	if v == UndefinedIndex {
		return nil
	}
	i := index(v)
	return &i
}

func fromOpt(i *index) uint32 {
	if i == nil {
		return UndefinedIndex
	}
	return uint32(*i)
}

// number is a float encoded as a JSON number or numeric string.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s, err := unquote(b)
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("sfmdata: invalid number %s", b)
	}
	*n = number(v)
	return nil
}

func (n number) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, strconv.FormatFloat(float64(n), 'g', -1, 64)), nil
}

// list is a JSON array that may also be written as "" when empty.
type list[T any] []T

func (l *list[T]) UnmarshalJSON(b []byte) error {
	if isEmpty(b) {
		*l = nil
		return nil
	}
	var items []T
	if err := gojson.Unmarshal(b, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// metadata is a string map that may be written as "" when empty. Non-string
// values are kept in their JSON text form.
type metadata map[string]string

func (m *metadata) UnmarshalJSON(b []byte) error {
	if isEmpty(b) {
		*m = metadata{}
		return nil
	}
	var raw map[string]gojson.RawMessage
	if err := gojson.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(metadata, len(raw))
	for k, v := range raw {
		s, err := unquote(v)
		if err != nil {
			return err
		}
		out[k] = s
	}
	*m = out
	return nil
}

type fileJSON struct {
	Version         list[number]        `json:"version"`
	FeaturesFolders list[string]        `json:"featuresFolders,omitempty"`
	MatchesFolders  list[string]        `json:"matchesFolders,omitempty"`
	Views           list[viewJSON]      `json:"views,omitempty"`
	Intrinsics      list[intrinsicJSON] `json:"intrinsics,omitempty"`
	Poses           list[poseJSON]      `json:"poses,omitempty"`
	Rigs            list[rigJSON]       `json:"rigs,omitempty"`
	Structure       list[landmarkJSON]  `json:"structure,omitempty"`
	ControlPoints   list[landmarkJSON]  `json:"controlPoints,omitempty"`
}

type viewJSON struct {
	ViewID      *index   `json:"viewId,omitempty"`
	PoseID      *index   `json:"poseId,omitempty"`
	RigID       *index   `json:"rigId,omitempty"`
	SubPoseID   *index   `json:"subPoseId,omitempty"`
	IntrinsicID *index   `json:"intrinsicId,omitempty"`
	ResectionID *index   `json:"resectionId,omitempty"`
	Path        string   `json:"path"`
	Width       index    `json:"width"`
	Height      index    `json:"height"`
	Metadata    metadata `json:"metadata"`
}

type intrinsicJSON struct {
	IntrinsicID          index        `json:"intrinsicId"`
	Width                index        `json:"width"`
	Height               index        `json:"height"`
	Type                 string       `json:"type"`
	SerialNumber         string       `json:"serialNumber"`
	PxInitialFocalLength number       `json:"pxInitialFocalLength"`
	PxFocalLength        number       `json:"pxFocalLength"`
	PrincipalPoint       list[number] `json:"principalPoint"`
	DistortionParams     list[number] `json:"distortionParams"`
}

type pose3JSON struct {
	Rotation list[number] `json:"rotation"`
	Center   list[number] `json:"center"`
}

type poseJSON struct {
	PoseID index     `json:"poseId"`
	Pose   pose3JSON `json:"pose"`
}

type subPoseJSON struct {
	Status string    `json:"status"`
	Pose   pose3JSON `json:"pose"`
}

type rigJSON struct {
	RigID    index             `json:"rigId"`
	SubPoses list[subPoseJSON] `json:"subPoses"`
}

type observationJSON struct {
	ObservationID index        `json:"observationId"`
	FeatureID     index        `json:"featureId"`
	X             list[number] `json:"x"`
}

type landmarkJSON struct {
	LandmarkID   index                 `json:"landmarkId"`
	DescType     string                `json:"descType"`
	Color        list[number]          `json:"color"`
	X            list[number]          `json:"X"`
	Observations list[observationJSON] `json:"observations"`
}

// fill copies src into dst, failing when src has more values than dst.
// Missing trailing values stay zero.
func fill(field string, dst []float64, src list[number]) error {
	if len(src) > len(dst) {
		return fmt.Errorf("sfmdata: %s has %d values, want %d", field, len(src), len(dst))
	}
	for i, v := range src {
		dst[i] = float64(v)
	}
	return nil
}

func numbers(src []float64) list[number] {
	out := make(list[number], len(src))
	for i, v := range src {
		out[i] = number(v)
	}
	return out
}

func (p pose3JSON) decode(field string) (Pose, error) {
	var out Pose
	if err := fill(field+".rotation", out.Rotation[:], p.Rotation); err != nil {
		return out, err
	}
	if err := fill(field+".center", out.Center[:], p.Center); err != nil {
		return out, err
	}
	return out, nil
}

func encodePose(p Pose) pose3JSON {
	return pose3JSON{Rotation: numbers(p.Rotation[:]), Center: numbers(p.Center[:])}
}

func (v viewJSON) decode() *View {
	view := &View{
		ViewID:      fromOpt(v.ViewID),
		PoseID:      fromOpt(v.PoseID),
		IntrinsicID: fromOpt(v.IntrinsicID),
		ResectionID: fromOpt(v.ResectionID),
		RigID:       UndefinedIndex,
		SubPoseID:   UndefinedIndex,
		Path:        v.Path,
		Width:       uint32(v.Width),
		Height:      uint32(v.Height),
		Metadata:    map[string]string(v.Metadata),
	}
	if view.Metadata == nil {
		view.Metadata = map[string]string{}
	}
	if v.RigID != nil {
		view.RigID = uint32(*v.RigID)
		view.SubPoseID = fromOpt(v.SubPoseID)
	}
	return view
}

func encodeView(v *View) viewJSON {
	out := viewJSON{
		ViewID:      optIndex(v.ViewID),
		PoseID:      optIndex(v.PoseID),
		IntrinsicID: optIndex(v.IntrinsicID),
		ResectionID: optIndex(v.ResectionID),
		Path:        v.Path,
		Width:       index(v.Width),
		Height:      index(v.Height),
		Metadata:    metadata(v.Metadata),
	}
	if out.Metadata == nil {
		out.Metadata = metadata{}
	}
	if v.IsPartOfRig() {
		rig, sub := index(v.RigID), index(v.SubPoseID)
		out.RigID, out.SubPoseID = &rig, &sub
	}
	return out
}

func (in intrinsicJSON) decode() (*Intrinsic, error) {
	out := &Intrinsic{
		Type:                 in.Type,
		Width:                uint32(in.Width),
		Height:               uint32(in.Height),
		SerialNumber:         in.SerialNumber,
		PxInitialFocalLength: float64(in.PxInitialFocalLength),
		PxFocalLength:        float64(in.PxFocalLength),
	}
	if err := fill("principalPoint", out.PrincipalPoint[:], in.PrincipalPoint); err != nil {
		return nil, err
	}
	if len(in.DistortionParams) > 0 {
		out.DistortionParams = make([]float64, len(in.DistortionParams))
		_ = fill("distortionParams", out.DistortionParams, in.DistortionParams)
	}
	return out, nil
}

func encodeIntrinsic(id uint32, in *Intrinsic) intrinsicJSON {
	return intrinsicJSON{
		IntrinsicID:          index(id),
		Width:                index(in.Width),
		Height:               index(in.Height),
		Type:                 in.Type,
		SerialNumber:         in.SerialNumber,
		PxInitialFocalLength: number(in.PxInitialFocalLength),
		PxFocalLength:        number(in.PxFocalLength),
		PrincipalPoint:       numbers(in.PrincipalPoint[:]),
		DistortionParams:     numbers(in.DistortionParams),
	}
}

func (r rigJSON) decode() (*Rig, error) {
	rig := &Rig{SubPoses: make([]RigSubPose, len(r.SubPoses))}
	for i, sp := range r.SubPoses {
		pose, err := sp.Pose.decode("subPoses.pose")
		if err != nil {
			return nil, err
		}
		rig.SubPoses[i] = RigSubPose{Status: sp.Status, Pose: pose}
	}
	return rig, nil
}

func encodeRig(id uint32, r *Rig) rigJSON {
	out := rigJSON{RigID: index(id), SubPoses: make(list[subPoseJSON], len(r.SubPoses))}
	for i, sp := range r.SubPoses {
		out.SubPoses[i] = subPoseJSON{Status: sp.Status, Pose: encodePose(sp.Pose)}
	}
	return out
}

func (l landmarkJSON) decode() (*Landmark, error) {
	out := &Landmark{DescType: l.DescType, Observations: make(map[uint32]Observation, len(l.Observations))}
	if err := fill("color", out.Color[:], l.Color); err != nil {
		return nil, err
	}
	if err := fill("X", out.X[:], l.X); err != nil {
		return nil, err
	}
	for _, o := range l.Observations {
		obs := Observation{FeatureID: uint32(o.FeatureID)}
		if err := fill("observations.x", obs.X[:], o.X); err != nil {
			return nil, err
		}
		if _, ok := out.Observations[uint32(o.ObservationID)]; !ok {
			out.Observations[uint32(o.ObservationID)] = obs
		}
	}
	return out, nil
}

func encodeLandmark(id uint32, l *Landmark) landmarkJSON {
	out := landmarkJSON{
		LandmarkID:   index(id),
		DescType:     l.DescType,
		Color:        numbers(l.Color[:]),
		X:            numbers(l.X[:]),
		Observations: make(list[observationJSON], 0, len(l.Observations)),
	}
	for _, viewID := range sortedKeys(l.Observations) {
		o := l.Observations[viewID]
		out.Observations = append(out.Observations, observationJSON{
			ObservationID: index(viewID),
			FeatureID:     index(o.FeatureID),
			X:             numbers(o.X[:]),
		})
	}
	return out
}
