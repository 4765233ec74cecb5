// Package distance provides the float32 vector kernels used by the quantizer
// and the inverted-file index.
//
// Only squared Euclidean distance is supported as a search metric. Squared
// L2 preserves the ordering of plain L2 while avoiding the square root, and it
// is the value reported back to callers as the neighbor distance.
//
// # Usage
//
//	d := distance.SquaredL2(a, b)
//	j, dj := distance.ArgMin(query, centroids, dim)
package distance
