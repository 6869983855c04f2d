// Package database implements the retrieval database: a bag-of-visual-words
// index over per-image word histograms with TF-IDF weighting.
//
// A Database moves through four states. It starts Empty, becomes Populated
// once images are inserted, Weighted after ComputeTfIdfWeights or
// LoadWeights, and Queryable on the first Find. The first Find freezes the
// database: it builds the inverted index and per-image norms exactly once.
// Afterwards the database is read-only and Find may be called concurrently;
// Insert and the weight setters return ErrFrozen.
//
// Scores are similarities in [0, 1], higher is better:
//
//   - ScoreCosine: dot product of the L2-normalized weighted histograms.
//   - ScoreIntersection: histogram intersection of the L1-normalized
//     weighted histograms.
//
// # Weights File Format
//
//	[Magic "VOW0"][Version][count u32][weights float32...][CRC32]
package database
