// Package kmeans implements Lloyd's k-means clustering.
//
// Used by vocabulary tree training to split the descriptors reaching each
// node into the node's children.
package kmeans
