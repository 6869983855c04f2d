// Package voctree implements a hierarchical vocabulary tree that maps local
// feature descriptors to visual words.
//
// A tree with L levels and K splits is a complete K-ary tree whose non-root
// nodes each carry a centroid. Centroids are stored level-major: the K
// children of the root first, then the K*K nodes of the second level, and so
// on. Node j of level l has its children at indices j*K ... j*K+K-1 of level
// l+1. Quantizing a descriptor descends greedily from the root, picking the
// nearest valid child at every level; the index of the leaf reached is the
// word id, so a tree has K^L words.
//
// Trees are immutable once loaded or built and are safe for concurrent use.
//
// # File Format
//
//	[Magic "VOC0"][Version]
//	[levels u32][splits u32][dim u32]
//	[validity word count u32][validity words u64...]
//	[centroids float32...]
//	[CRC32]
//
// The whole file may additionally be wrapped in a zstd or lz4 frame.
package voctree
