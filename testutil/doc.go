// Package testutil provides testing utilities for imgmatch.
//
// This package is intended for use in tests and benchmarks only.
// It provides seeded generators for descriptor-like vectors.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vec := make([]float32, 128)
//	rng.FillUniform(vec)      // uniform [0, 1)
//
// # Image-like Descriptor Sets
//
//	centers := rng.UnitVectors(8, 128)
//	descs := rng.DescriptorsNear(centers[:3], 50, 0.05)
package testutil
