package pairs

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/imgmatch/database"
)

// ImageID identifies an image (a view of the scene).
type ImageID = uint32

// PairList maps a query image to its ranked candidate matches.
type PairList map[ImageID][]ImageID

// FromMatches extracts the ids of ranked database matches, keeping the rank
// order.
func FromMatches(matches []database.DocMatch) []ImageID {
	ids := make([]ImageID, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return ids
}

// sortedKeys returns the keys of pl in ascending order.
func (pl PairList) sortedKeys() []ImageID {
	keys := make([]ImageID, 0, len(pl))
	for id := range pl {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// OrderedPairList maps an image to the ascending set of images it should be
// matched against. The zero value is not usable; use NewOrderedPairList.
type OrderedPairList struct {
	sets map[ImageID]*roaring.Bitmap
}

// NewOrderedPairList creates an empty pair list.
func NewOrderedPairList() *OrderedPairList {
	return &OrderedPairList{sets: make(map[ImageID]*roaring.Bitmap)}
}

func (o *OrderedPairList) set(id ImageID) *roaring.Bitmap {
	bm, ok := o.sets[id]
	if !ok {
		bm = roaring.New()
		o.sets[id] = bm
	}
	return bm
}

// Add records match under id.
func (o *OrderedPairList) Add(id, match ImageID) {
	o.set(id).Add(match)
}

// AddAll records every match under id. Calling it with no matches leaves the
// list unchanged.
func (o *OrderedPairList) AddAll(id ImageID, matches ...ImageID) {
	if len(matches) == 0 {
		return
	}
	o.set(id).AddMany(matches)
}

// Contains reports whether match is recorded under id.
func (o *OrderedPairList) Contains(id, match ImageID) bool {
	bm, ok := o.sets[id]
	return ok && bm.Contains(match)
}

// Matches returns the ascending matches recorded under id.
func (o *OrderedPairList) Matches(id ImageID) []ImageID {
	bm, ok := o.sets[id]
	if !ok {
		return nil
	}
	return bm.ToArray()
}

// IDs returns the images that have at least one match, ascending.
func (o *OrderedPairList) IDs() []ImageID {
	ids := make([]ImageID, 0, len(o.sets))
	for id, bm := range o.sets {
		if !bm.IsEmpty() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of images that have at least one match.
func (o *OrderedPairList) Len() int {
	n := 0
	for _, bm := range o.sets {
		if !bm.IsEmpty() {
			n++
		}
	}
	return n
}

// NumPairs returns the number of recorded (id, match) entries.
func (o *OrderedPairList) NumPairs() uint64 {
	var n uint64
	for _, bm := range o.sets {
		n += bm.GetCardinality()
	}
	return n
}

// Map returns a plain copy of the list.
func (o *OrderedPairList) Map() map[ImageID][]ImageID {
	out := make(map[ImageID][]ImageID, len(o.sets))
	for id, bm := range o.sets {
		if !bm.IsEmpty() {
			out[id] = bm.ToArray()
		}
	}
	return out
}
