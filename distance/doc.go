// Package distance provides the float32 vector kernels used for descriptor
// quantization and vocabulary training.
//
// Dot products and norms are delegated to vek32, which uses AVX2 kernels on
// x86-64 when available and falls back to pure Go elsewhere.
//
// # Usage
//
//	d := distance.SquaredL2(descriptor, centroid)
//	sim := distance.Dot(a, b)
//	ok := distance.NormalizeL2InPlace(descriptor)
package distance
