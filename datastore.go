package knnstore

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/knnstore/internal/kmeans"
	"github.com/hupe1980/knnstore/ivf"
	"github.com/hupe1980/knnstore/labelstore"
	"github.com/hupe1980/knnstore/whiten"
)

// State is the lifecycle stage of a Datastore.
type State uint8

const (
	// StateUntrained has no centroids. Only Train and SetVocabSize succeed.
	StateUntrained State = iota
	// StateTrained has centroids but no vectors.
	StateTrained
	// StatePopulated holds at least one vector.
	StatePopulated
)

func (s State) String() string {
	switch s {
	case StateUntrained:
		return "untrained"
	case StateTrained:
		return "trained"
	case StatePopulated:
		return "populated"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

func parseState(s string) (State, error) {
	switch s {
	case "untrained":
		return StateUntrained, nil
	case "trained":
		return StateTrained, nil
	case "populated":
		return StatePopulated, nil
	default:
		return 0, fmt.Errorf("unknown state %q", s)
	}
}

// Datastore maps hidden states to next-token labels. It trains an IVF index
// over the keys, stores one (label, input) pair per key and turns the
// neighbors of a query into a score over the vocabulary.
//
// Add is serialized; Search runs concurrently with other searches.
type Datastore struct {
	mu   sync.RWMutex
	opts options

	state     State
	inDim     int // key dimension before whitening
	dim       int // indexed dimension
	nprobe    int
	vocabSize int
	nextID    uint64 // id assigned to the next added key

	index     *ivf.Index
	labels    *labelstore.Store
	whitening *whiten.Transform

	reserved int64 // bytes held in the resource controller
}

// New returns an untrained datastore.
func New(optFns ...Option) *Datastore {
	return &Datastore{
		opts: applyOptions(optFns),
	}
}

// State returns the lifecycle stage.
func (ds *Datastore) State() State {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.state
}

// Dim returns the dimension of keys accepted by Add and Search, or 0 before
// training.
func (ds *Datastore) Dim() int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.inDim
}

// Len returns the number of stored vectors.
func (ds *Datastore) Len() int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	if ds.labels == nil {
		return 0
	}
	return ds.labels.Len()
}

// Train fits the quantizer on keys and builds an empty index. When whitening
// is enabled the transform is fitted on all keys first. On failure the
// datastore stays untrained.
func (ds *Datastore) Train(ctx context.Context, keys [][]float32) (err error) {
	start := time.Now()
	samples := 0
	defer func() {
		ds.opts.logger.LogTrain(ctx, samples, ds.opts.nCentroids, time.Since(start), err)
		ds.opts.metricsCollector.RecordTrain(samples, time.Since(start), err)
	}()

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.state != StateUntrained {
		return ErrAlreadyTrained
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: no training keys", ErrInsufficientData)
	}
	inDim := len(keys[0])
	if inDim == 0 {
		return &ShapeMismatchError{Field: "keys", Expected: 1, Actual: 0}
	}
	for _, k := range keys {
		if len(k) != inDim {
			return &ShapeMismatchError{Field: "keys", Expected: inDim, Actual: len(k)}
		}
	}
	if ds.opts.nprobe <= 0 || ds.opts.nprobe > ds.opts.nCentroids {
		return fmt.Errorf("%w: nprobe %d with %d centroids", ErrInvalidNProbe, ds.opts.nprobe, ds.opts.nCentroids)
	}
	fraction := ds.opts.trainSample
	if math.IsNaN(fraction) || fraction <= 0 || fraction > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidTrainSample, fraction)
	}

	var transform *whiten.Transform
	vectors := keys
	if ds.opts.whitening {
		outDim := ds.opts.whiteningDim
		if ds.opts.whiteningClamp {
			outDim = min(outDim, inDim)
		}
		transform, err = whiten.Fit(keys, outDim, ds.opts.whiteningOrder)
		if err != nil {
			return err
		}
		vectors, err = transform.ApplyBatch(ctx, keys, ds.opts.workers)
		if err != nil {
			return err
		}
	}
	dim := len(vectors[0])

	sample := sampleRows(vectors, fraction, ds.opts.seed)
	samples = len(sample)

	centroids, err := kmeans.TrainKMeans(ctx, flatten(sample, dim), dim, ds.opts.nCentroids, kmeans.Options{
		Seed:    ds.opts.seed,
		MaxIter: ds.opts.maxIter,
		Workers: ds.opts.workers,
	})
	if err != nil {
		return err
	}

	index, err := ivf.New(centroids, dim, ds.ivfOptions)
	if err != nil {
		return err
	}

	ds.index = index
	ds.labels = labelstore.New(0)
	ds.nextID = 0
	ds.whitening = transform
	ds.inDim = inDim
	ds.dim = dim
	ds.nprobe = ds.opts.nprobe
	ds.state = StateTrained

	return nil
}

func (ds *Datastore) ivfOptions(o *ivf.Options) {
	o.Workers = ds.opts.workers
}

// sampleRows keeps ceil(n*fraction) rows chosen by a seeded permutation,
// in their original order.
func sampleRows(rows [][]float32, fraction float64, seed int64) [][]float32 {
	if fraction >= 1 {
		return rows
	}
	n := max(int(math.Ceil(float64(len(rows))*fraction)), 1)

	rng := rand.New(rand.NewSource(seed)) //nolint:gosec
	picked := rng.Perm(len(rows))[:n]
	slices.Sort(picked)

	out := make([][]float32, n)
	for i, p := range picked {
		out[i] = rows[p]
	}
	return out
}

func flatten(rows [][]float32, dim int) []float32 {
	flat := make([]float32, 0, len(rows)*dim)
	for _, r := range rows {
		flat = append(flat, r...)
	}
	return flat
}

// Add appends keys with their labels and input-token ids. The returned ids
// continue the datastore's id sequence. Either every key is stored or none.
func (ds *Datastore) Add(ctx context.Context, keys [][]float32, labels, inputs []int32) (ids []uint64, err error) {
	start := time.Now()
	defer func() {
		ds.opts.logger.LogAdd(ctx, len(keys), ds.Len(), time.Since(start), err)
		ds.opts.metricsCollector.RecordAdd(len(keys), time.Since(start), err)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.state == StateUntrained {
		return nil, ErrNotTrained
	}
	if len(labels) != len(keys) {
		return nil, &ShapeMismatchError{Field: "labels", Expected: len(keys), Actual: len(labels)}
	}
	if len(inputs) != len(keys) {
		return nil, &ShapeMismatchError{Field: "inputs", Expected: len(keys), Actual: len(inputs)}
	}
	for _, k := range keys {
		if len(k) != ds.inDim {
			return nil, &ShapeMismatchError{Field: "keys", Expected: ds.inDim, Actual: len(k)}
		}
	}
	if len(keys) == 0 {
		return []uint64{}, nil
	}

	vectors := keys
	if ds.whitening != nil {
		vectors, err = ds.whitening.ApplyBatch(ctx, keys, ds.opts.workers)
		if err != nil {
			return nil, err
		}
	}

	ids = make([]uint64, len(keys))
	for i := range ids {
		ids[i] = ds.nextID + uint64(i)
	}

	if err := ds.index.Add(vectors, ids); err != nil {
		return nil, translateError(err)
	}
	if _, err := ds.labels.AppendBatch(labels, inputs); err != nil {
		// Unreachable after the length checks above; the index would now be
		// ahead of the label store.
		return nil, fmt.Errorf("%w: %w", ErrCorruptDatastore, err)
	}
	ds.nextID += uint64(len(keys))
	ds.state = StatePopulated

	return ids, nil
}

// SetVocabSize sets the length of score vectors returned by Search.
func (ds *Datastore) SetVocabSize(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidVocabSize, n)
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.vocabSize = n
	return nil
}

// VocabSize returns the configured vocabulary size, or 0 when unset.
func (ds *Datastore) VocabSize() int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.vocabSize
}

// SetNProbe changes how many lists a search scans.
func (ds *Datastore) SetNProbe(n int) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.state == StateUntrained {
		return ErrNotTrained
	}
	if n <= 0 || n > ds.index.NList() {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidNProbe, n, ds.index.NList())
	}
	ds.nprobe = n
	return nil
}

// Stats describes a datastore.
type Stats struct {
	State      State
	Dim        int // key dimension
	IndexDim   int // dimension after whitening
	NCentroids int
	NProbe     int
	Count      int
	VocabSize  int
	MaxLabel   int32 // largest stored label, -1 when empty
	Whitened   bool
	ListSizes  []int
}

// Stats returns a snapshot of the datastore's shape.
func (ds *Datastore) Stats() Stats {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	s := Stats{
		State:     ds.state,
		Dim:       ds.inDim,
		IndexDim:  ds.dim,
		NProbe:    ds.nprobe,
		VocabSize: ds.vocabSize,
		MaxLabel:  -1,
		Whitened:  ds.whitening != nil,
	}
	if ds.index != nil {
		s.NCentroids = ds.index.NList()
		s.ListSizes = ds.index.ListSizes()
		s.Count = ds.labels.Len()
		s.MaxLabel = ds.labels.MaxLabel()
	}
	return s
}

// Close releases memory reserved in the resource controller by Load.
// The datastore stays usable.
func (ds *Datastore) Close() error {
	if ds == nil {
		return nil
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.opts.resources.ReleaseMemory(ds.reserved)
	ds.reserved = 0
	return nil
}
