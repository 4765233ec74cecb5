// Package ivf implements an inverted-file (IVF) index over a fixed set of
// coarse centroids.
//
// Every inserted vector is appended to the list of its nearest centroid. A
// search visits only the nprobe centroids closest to the query and scans
// their lists exhaustively, so the work per query is roughly
// nprobe/nlist of a full scan. Recall is traded for speed through nprobe;
// with nprobe == nlist the result equals an exact linear scan.
//
// # Usage
//
//	idx, _ := ivf.New(centroids, dim)
//	_ = idx.Add(vectors, ids)
//	neighbors, _ := idx.Search(query, k, nprobe)
//
// # Concurrency
//
// Add is a single-writer operation. Search and BatchSearch are read-only and
// may run concurrently with each other; they are serialized against Add by an
// internal RWMutex.
package ivf
