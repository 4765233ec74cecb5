// Package kmeans implements the coarse quantizer: k-means clustering used to
// learn the inverted-file centroids from a training sample.
package kmeans
