// Package pairs selects the image pairs handed to feature matching.
//
// A PairList holds, per query image, the ranked ids returned by the
// retrieval database. Reduce turns it into an OrderedPairList in which every
// unordered pair is recorded at most once, preferably under the smaller id.
// BruteForce and BruteForceBetween produce exhaustive pair lists when no
// retrieval is performed.
//
// # Text Format
//
// One line per image that has at least one match:
//
//	<id> <match1> <match2> ...
//
// Lines are ordered by ascending id and matches are ascending.
package pairs
