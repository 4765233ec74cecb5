package ivf

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/knnstore/distance"
	"github.com/hupe1980/knnstore/internal/kmeans"
)

// Neighbor is a single search hit.
type Neighbor struct {
	ID       uint64
	Distance float32 // squared L2
}

// List is the content of one inverted list: ids in insertion order and
// their vectors, flattened row-major.
type List struct {
	IDs     []uint64
	Vectors []float32
}

// Options configures an Index.
type Options struct {
	// Workers bounds the parallelism used to assign vectors to centroids
	// during Add. Defaults to GOMAXPROCS.
	Workers int
}

// SearchOptions tunes a single search.
type SearchOptions struct {
	// Exclude lists vector ids that must not be returned.
	Exclude *roaring64.Bitmap
}

// WithExclude skips the given ids while scanning lists.
func WithExclude(ids *roaring64.Bitmap) func(o *SearchOptions) {
	return func(o *SearchOptions) {
		o.Exclude = ids
	}
}

// Index is an inverted-file index.
type Index struct {
	mu        sync.RWMutex
	dim       int
	centroids []float32
	lists     []List
	nextID    uint64
	workers   int
}

// New builds an empty index with one list per centroid.
// centroids is a flattened nlist*dim matrix and is copied.
func New(centroids []float32, dim int, optFns ...func(o *Options)) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("ivf: invalid dimension %d", dim)
	}
	if len(centroids) == 0 {
		return nil, fmt.Errorf("%w: empty centroid set", ErrNotBuilt)
	}
	if len(centroids)%dim != 0 {
		return nil, &ErrDimensionMismatch{Expected: dim, Actual: len(centroids) % dim}
	}

	opts := Options{Workers: runtime.GOMAXPROCS(0)}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	nlist := len(centroids) / dim
	return &Index{
		dim:       dim,
		centroids: slices.Clone(centroids),
		lists:     make([]List, nlist),
		workers:   opts.Workers,
	}, nil
}

// Restore rebuilds an index from persisted lists. The ids across all lists
// must be exactly 0..n-1, strictly increasing within each list.
func Restore(centroids []float32, dim int, lists []List, optFns ...func(o *Options)) (*Index, error) {
	idx, err := New(centroids, dim, optFns...)
	if err != nil {
		return nil, err
	}
	if len(lists) != len(idx.lists) {
		return nil, fmt.Errorf("%w: %d lists for %d centroids", ErrCorruptLists, len(lists), len(idx.lists))
	}

	total := 0
	for i, l := range lists {
		if len(l.Vectors) != len(l.IDs)*dim {
			return nil, fmt.Errorf("%w: list %d holds %d ids and %d values", ErrCorruptLists, i, len(l.IDs), len(l.Vectors))
		}
		total += len(l.IDs)
	}

	seen := make([]bool, total)
	for i, l := range lists {
		for j, id := range l.IDs {
			if id >= uint64(total) || seen[id] {
				return nil, fmt.Errorf("%w: list %d has unexpected id %d", ErrCorruptLists, i, id)
			}
			if j > 0 && id <= l.IDs[j-1] {
				return nil, fmt.Errorf("%w: list %d is not in insertion order", ErrCorruptLists, i)
			}
			seen[id] = true
		}
		idx.lists[i] = List{IDs: slices.Clone(l.IDs), Vectors: slices.Clone(l.Vectors)}
	}
	idx.nextID = uint64(total)

	return idx, nil
}

// Add assigns each vector to its nearest centroid and appends it to that
// centroid's list. ids[i] must equal the current next id plus i.
// Either all vectors are inserted or, on a validation error, none.
func (idx *Index) Add(vectors [][]float32, ids []uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.centroids == nil {
		return ErrNotBuilt
	}
	if len(vectors) != len(ids) {
		return fmt.Errorf("ivf: %d vectors but %d ids", len(vectors), len(ids))
	}
	for i, v := range vectors {
		if len(v) != idx.dim {
			return &ErrDimensionMismatch{Expected: idx.dim, Actual: len(v)}
		}
		if ids[i] != idx.nextID+uint64(i) {
			return fmt.Errorf("%w: got %d at position %d, want %d", ErrNonContiguousIDs, ids[i], i, idx.nextID+uint64(i))
		}
	}

	assignments, err := idx.assign(vectors)
	if err != nil {
		return err
	}

	for i, v := range vectors {
		l := &idx.lists[assignments[i]]
		l.IDs = append(l.IDs, ids[i])
		l.Vectors = append(l.Vectors, v...)
	}
	idx.nextID += uint64(len(vectors))

	return nil
}

// assign computes the nearest centroid of every vector, in parallel chunks.
func (idx *Index) assign(vectors [][]float32) ([]int, error) {
	out := make([]int, len(vectors))

	const minChunk = 512
	chunk := max((len(vectors)+idx.workers-1)/idx.workers, minChunk)

	var g errgroup.Group
	g.SetLimit(idx.workers)
	for start := 0; start < len(vectors); start += chunk {
		end := min(start+chunk, len(vectors))
		g.Go(func() error {
			for i := start; i < end; i++ {
				p, err := kmeans.AssignPartition(vectors[i], idx.centroids, idx.dim)
				if err != nil {
					return err
				}
				out[i] = p
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// Search returns up to k nearest neighbors of query among the vectors of the
// nprobe closest lists, nearest first; equal distances are ordered by id.
// A result shorter than k means the scanned lists held fewer candidates.
func (idx *Index) Search(query []float32, k, nprobe int, optFns ...func(o *SearchOptions)) ([]Neighbor, error) {
	var opts SearchOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.search(query, k, nprobe, &opts)
}

// BatchSearch runs Search for every query using up to workers goroutines.
// Result i belongs to query i.
func (idx *Index) BatchSearch(ctx context.Context, queries [][]float32, k, nprobe, workers int, optFns ...func(o *SearchOptions)) ([][]Neighbor, error) {
	var opts SearchOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	results := make([][]Neighbor, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, q := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := idx.search(q, k, nprobe, &opts)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// search must be called with at least a read lock held.
func (idx *Index) search(query []float32, k, nprobe int, opts *SearchOptions) ([]Neighbor, error) {
	if idx.centroids == nil {
		return nil, ErrNotBuilt
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if nprobe <= 0 || nprobe > len(idx.lists) {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidNProbe, nprobe, len(idx.lists))
	}
	if len(query) != idx.dim {
		return nil, &ErrDimensionMismatch{Expected: idx.dim, Actual: len(query)}
	}

	nearest, err := kmeans.FindClosestCentroids(query, idx.centroids, idx.dim, nprobe)
	if err != nil {
		return nil, err
	}

	candidates := 0
	for _, p := range nearest {
		candidates += len(idx.lists[p].IDs)
	}

	q := newTopK(k, candidates)
	for _, p := range nearest {
		l := idx.lists[p]
		for j, id := range l.IDs {
			if opts.Exclude != nil && opts.Exclude.Contains(id) {
				continue
			}
			d := distance.SquaredL2(query, l.Vectors[j*idx.dim:(j+1)*idx.dim])
			q.Offer(Neighbor{ID: id, Distance: d})
		}
	}

	return q.Sorted(), nil
}

// Dim returns the vector dimension.
func (idx *Index) Dim() int {
	return idx.dim
}

// NList returns the number of inverted lists (centroids).
func (idx *Index) NList() int {
	return len(idx.lists)
}

// Len returns the total number of indexed vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return int(idx.nextID)
}

// NextID returns the id the next added vector must carry.
func (idx *Index) NextID() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.nextID
}

// Centroids returns a copy of the flattened centroid set.
func (idx *Index) Centroids() []float32 {
	return slices.Clone(idx.centroids)
}

// ListSizes returns sizes of all inverted lists.
func (idx *Index) ListSizes() []int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	sizes := make([]int, len(idx.lists))
	for i, l := range idx.lists {
		sizes[i] = len(l.IDs)
	}
	return sizes
}

// ForEachList calls fn for every list in centroid order while holding a read
// lock. fn must not retain or modify the slices.
func (idx *Index) ForEachList(fn func(listNo int, l List) error) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	for i, l := range idx.lists {
		if err := fn(i, l); err != nil {
			return err
		}
	}
	return nil
}
