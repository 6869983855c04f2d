package voctree

import "sort"

// SparseHistogram maps a word id to its occurrence count in one image.
type SparseHistogram map[uint32]uint32

// Total returns the number of quantized descriptors.
func (h SparseHistogram) Total() uint64 {
	var n uint64
	for _, c := range h {
		n += uint64(c)
	}
	return n
}

// Words returns the word ids in ascending order.
func (h SparseHistogram) Words() []uint32 {
	words := make([]uint32, 0, len(h))
	for w := range h {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool { return words[i] < words[j] })
	return words
}

// Clone returns an independent copy.
func (h SparseHistogram) Clone() SparseHistogram {
	out := make(SparseHistogram, len(h))
	for w, c := range h {
		out[w] = c
	}
	return out
}
