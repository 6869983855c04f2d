// Package persistence provides the binary container shared by the matcher's
// on-disk artifacts (vocabulary trees and word-weight vectors) plus atomic
// file replacement for everything the matcher writes.
//
// A container is laid out as
//
//	[Magic uint32][Version uint32][payload ...][CRC32 uint32]
//
// in little-endian byte order. The trailing CRC32 (IEEE) covers every byte
// before it. Containers may additionally be wrapped in a zstd or lz4 frame;
// that layer is handled by the callers.
package persistence
