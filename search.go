package knnstore

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/knnstore/ivf"
	"github.com/hupe1980/knnstore/score"
)

// SearchResult holds one row per query. Rows of IDs, Distances, Labels and
// InputIDs have up to k entries, nearest first; a shorter row means fewer
// candidates were found. Scores rows have VocabSize entries.
type SearchResult struct {
	Scores    [][]float32
	IDs       [][]uint64
	Distances [][]float32
	Labels    [][]int32
	InputIDs  [][]int32
}

type searchOptions struct {
	nprobe  int
	exclude *roaring64.Bitmap
}

// SearchOption tunes a single Search call.
type SearchOption func(*searchOptions)

// ScanLists overrides the number of lists scanned by this search.
func ScanLists(n int) SearchOption {
	return func(o *searchOptions) {
		o.nprobe = n
	}
}

// ExcludeIDs skips the given stored ids. Useful for leave-one-out evaluation
// with queries taken from the datastore itself.
func ExcludeIDs(ids *roaring64.Bitmap) SearchOption {
	return func(o *searchOptions) {
		o.exclude = ids
	}
}

// Search finds the k nearest stored keys of every query and aggregates
// softmax(-distance/temperature) over their labels.
//
// Example:
//
//	res, err := ds.Search(ctx, queries, 8, 10.0)
//	if err != nil {
//	    return err
//	}
//	next := res.Scores[0] // distribution over the vocabulary
func (ds *Datastore) Search(ctx context.Context, queries [][]float32, k int, temperature float64, optFns ...SearchOption) (res *SearchResult, err error) {
	start := time.Now()
	defer func() {
		ds.opts.logger.LogSearch(ctx, len(queries), k, time.Since(start), err)
		ds.opts.metricsCollector.RecordSearch(len(queries), k, time.Since(start), err)
	}()

	if err := ds.opts.resources.AcquireSearch(ctx); err != nil {
		return nil, err
	}
	defer ds.opts.resources.ReleaseSearch()

	ds.mu.RLock()
	defer ds.mu.RUnlock()

	switch ds.state {
	case StateUntrained:
		return nil, ErrNotTrained
	case StateTrained:
		return nil, ErrNotPopulated
	}
	if ds.vocabSize < 1 {
		return nil, ErrVocabNotSet
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if !(temperature > 0) || math.IsInf(temperature, 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemperature, temperature)
	}
	for _, q := range queries {
		if len(q) != ds.inDim {
			return nil, &ShapeMismatchError{Field: "query", Expected: ds.inDim, Actual: len(q)}
		}
	}

	opts := searchOptions{nprobe: ds.nprobe}
	for _, fn := range optFns {
		fn(&opts)
	}
	var ivfOpts []func(*ivf.SearchOptions)
	if opts.exclude != nil {
		ivfOpts = append(ivfOpts, ivf.WithExclude(opts.exclude))
	}

	res = &SearchResult{
		Scores:    make([][]float32, len(queries)),
		IDs:       make([][]uint64, len(queries)),
		Distances: make([][]float32, len(queries)),
		Labels:    make([][]int32, len(queries)),
		InputIDs:  make([][]int32, len(queries)),
	}

	vectors := queries
	if ds.whitening != nil {
		if vectors, err = ds.whitening.ApplyBatch(ctx, queries, ds.opts.workers); err != nil {
			return nil, err
		}
	}

	neighbors, err := ds.index.BatchSearch(ctx, vectors, k, opts.nprobe, ds.opts.workers, ivfOpts...)
	if err != nil {
		return nil, translateError(err)
	}

	for i, ns := range neighbors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := ds.fillRow(res, i, ns, temperature); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// fillRow turns the neighbors of query i into row i of res. Must be called
// with the read lock held.
func (ds *Datastore) fillRow(res *SearchResult, i int, neighbors []ivf.Neighbor, temperature float64) error {
	ids := make([]uint64, len(neighbors))
	distances := make([]float32, len(neighbors))
	for j, n := range neighbors {
		ids[j] = n.ID
		distances[j] = n.Distance
	}

	labels, inputs, err := ds.labels.LookupMany(ids)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptDatastore, err)
	}

	scores, err := score.Aggregate(distances, labels, ds.vocabSize, temperature)
	if err != nil {
		return fmt.Errorf("query %d: %w", i, err)
	}

	res.Scores[i] = scores
	res.IDs[i] = ids
	res.Distances[i] = distances
	res.Labels[i] = labels
	res.InputIDs[i] = inputs
	return nil
}
