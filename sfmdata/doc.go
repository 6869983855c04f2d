// Package sfmdata reads and writes scene description files in the
// AliceVision JSON layout (version 1.0.0).
//
// A scene holds views (images with their pose, intrinsic and rig links),
// camera intrinsics, poses, rigs, the reconstructed structure, control
// points, and lists of feature and match folders. Files written by property
// tree serializers encode every number as a string and empty lists as "",
// so decoding accepts numbers, numeric strings and empty strings alike.
// Encoding always writes numbers as strings.
//
// Sections selects which parts of a file are loaded or saved.
package sfmdata
