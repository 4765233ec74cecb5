package kmeans

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/knnstore/distance"
)

// ErrInsufficientData is returned when the training sample holds fewer
// vectors than the requested number of centroids.
var ErrInsufficientData = errors.New("kmeans: not enough training vectors")

const (
	// DefaultMaxIter is the iteration cap used when Options.MaxIter is zero.
	DefaultMaxIter = 25

	minChunk = 256
)

// Options configures TrainKMeans.
type Options struct {
	// Seed drives centroid initialization and empty-cluster reseeding.
	Seed int64
	// MaxIter caps the number of Lloyd iterations.
	MaxIter int
	// Workers bounds the parallelism of the assignment step.
	// Defaults to GOMAXPROCS.
	Workers int
}

// TrainKMeans trains k centroids from the given vectors using Lloyd's algorithm.
// vectors is a flattened n*dim matrix. It returns the flattened centroids (k * dim).
//
// The result is a pure function of (vectors, dim, k, Seed, MaxIter): the
// assignment step runs in parallel but every point is assigned independently,
// and centroid sums are accumulated sequentially in point order.
func TrainKMeans(ctx context.Context, vectors []float32, dim int, k int, opts Options) ([]float32, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("kmeans: invalid dimension %d", dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("kmeans: invalid number of centroids %d", k)
	}
	if len(vectors)%dim != 0 {
		return nil, fmt.Errorf("kmeans: %d values do not form rows of dimension %d", len(vectors), dim)
	}

	n := len(vectors) / dim
	if n < k {
		return nil, fmt.Errorf("%w: have %d, need at least %d", ErrInsufficientData, n, k)
	}

	maxIter := opts.MaxIter
	if maxIter <= 0 {
		maxIter = DefaultMaxIter
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	centroids := make([]float32, k*dim)

	// Initialize centroids from k distinct data points.
	perm := rng.Perm(n)
	for i := 0; i < k; i++ {
		copy(centroids[i*dim:(i+1)*dim], vectors[perm[i]*dim:(perm[i]+1)*dim])
	}

	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}
	counts := make([]int, k)
	sums := make([]float64, k*dim)

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		changed, err := assign(ctx, vectors, dim, centroids, assignments, workers)
		if err != nil {
			return nil, err
		}
		if !changed {
			break
		}

		clear(sums)
		clear(counts)

		for i := 0; i < n; i++ {
			cluster := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			row := sums[cluster*dim : (cluster+1)*dim]
			for d, x := range vec {
				row[d] += float64(x)
			}
			counts[cluster]++
		}

		for j := 0; j < k; j++ {
			center := centroids[j*dim : (j+1)*dim]
			if counts[j] == 0 {
				// Re-initialize empty cluster with a random point.
				idx := rng.Intn(n)
				copy(center, vectors[idx*dim:(idx+1)*dim])
				continue
			}
			scale := 1.0 / float64(counts[j])
			row := sums[j*dim : (j+1)*dim]
			for d := range center {
				center[d] = float32(row[d] * scale)
			}
		}
	}

	return centroids, nil
}

// assign recomputes the nearest centroid of every vector and reports whether
// any assignment changed.
func assign(ctx context.Context, vectors []float32, dim int, centroids []float32, assignments []int, workers int) (bool, error) {
	n := len(assignments)
	chunk := (n + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}

	numChunks := (n + chunk - 1) / chunk
	changed := make([]bool, numChunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for c := 0; c < numChunks; c++ {
		start := c * chunk
		end := min(start+chunk, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				best, _ := distance.ArgMin(vectors[i*dim:(i+1)*dim], centroids, dim)
				if assignments[i] != best {
					assignments[i] = best
					changed[c] = true
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return false, err
	}

	return slices.Contains(changed, true), nil
}

// AssignPartition finds the closest centroid for a vector.
// Ties resolve to the lowest centroid index.
func AssignPartition(vec []float32, centroids []float32, dim int) (int, error) {
	if len(vec) != dim {
		return -1, fmt.Errorf("kmeans: vector dimension %d, want %d", len(vec), dim)
	}
	best, _ := distance.ArgMin(vec, centroids, dim)
	if best < 0 {
		return -1, errors.New("kmeans: no centroids")
	}
	return best, nil
}

type centroidDist struct {
	id   int
	dist float32
}

// FindClosestCentroids returns the indices of the n closest centroids to the query vector,
// nearest first. Equal distances are ordered by centroid index.
func FindClosestCentroids(query []float32, centroids []float32, dim int, n int) ([]int, error) {
	if len(query) != dim {
		return nil, fmt.Errorf("kmeans: query dimension %d, want %d", len(query), dim)
	}

	k := len(centroids) / dim
	if n > k {
		n = k
	}

	dists := make([]centroidDist, k)
	for i := 0; i < k; i++ {
		dists[i] = centroidDist{id: i, dist: distance.SquaredL2(query, centroids[i*dim:(i+1)*dim])}
	}

	slices.SortFunc(dists, func(a, b centroidDist) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	result := make([]int, n)
	for i := 0; i < n; i++ {
		result[i] = dists[i].id
	}

	return result, nil
}
