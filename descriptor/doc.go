// Package descriptor reads and writes per-image feature descriptor files.
//
// # File Format
//
//	[count u64 LE][count * dim elements]
//
// Elements are either bytes (SIFT-like describers) or little-endian float32
// values. The whole file may be wrapped in a zstd or lz4 frame. Unframed
// files are read with ranged reads, so a descriptor cap only transfers the
// bytes it needs.
package descriptor
