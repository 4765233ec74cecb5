package features

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/knnstore/blobstore"
	"github.com/hupe1980/knnstore/persistence"
)

// File name suffixes of the three artifacts of a shard.
const (
	KeySuffix   = "_keys.bin"
	ValueSuffix = "_values.bin"
	InputSuffix = "_inputs.bin"
)

var (
	// ErrInvalidPercentage is returned for a percentage outside (0, 100].
	ErrInvalidPercentage = errors.New("features: percentage must be in (0, 100]")
	// ErrNoShards is returned when the selection contains no shard.
	ErrNoShards = errors.New("features: no shards selected")
	// ErrShardMismatch is returned when the artifacts of a shard disagree.
	ErrShardMismatch = errors.New("features: shard artifacts disagree")
)

// Set is the concatenation of one or more shards.
type Set struct {
	Dim    int
	Keys   [][]float32
	Labels []int32
	Inputs []int32
	Shards []string
}

// Len returns the number of rows.
func (s *Set) Len() int {
	return len(s.Keys)
}

// ReadOptions configures Read.
type ReadOptions struct {
	// Workers bounds the number of shards decoded at once.
	Workers int
}

// WithWorkers sets the number of shards decoded in parallel.
func WithWorkers(n int) func(o *ReadOptions) {
	return func(o *ReadOptions) {
		o.Workers = n
	}
}

// ListShards returns the sorted shard names found in store.
func ListShards(ctx context.Context, store blobstore.BlobStore) ([]string, error) {
	names, err := store.List(ctx, "")
	if err != nil {
		return nil, err
	}

	var shards []string
	for _, name := range names {
		if shard, ok := strings.CutSuffix(name, ValueSuffix); ok {
			shards = append(shards, shard)
		}
	}
	return shards, nil
}

// Select keeps the first floor(len(shards)*percentage/100) shards.
func Select(shards []string, percentage float64) ([]string, error) {
	if math.IsNaN(percentage) || percentage <= 0 || percentage > 100 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidPercentage, percentage)
	}
	n := int(math.Floor(float64(len(shards)) * percentage / 100))
	if n == 0 {
		return nil, fmt.Errorf("%w: %d shards at %v%%", ErrNoShards, len(shards), percentage)
	}
	return shards[:n], nil
}

// Read loads the selected percentage of shards from store.
func Read(ctx context.Context, store blobstore.BlobStore, percentage float64, optFns ...func(o *ReadOptions)) (*Set, error) {
	opts := ReadOptions{Workers: runtime.GOMAXPROCS(0)}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	all, err := ListShards(ctx, store)
	if err != nil {
		return nil, err
	}
	shards, err := Select(all, percentage)
	if err != nil {
		return nil, err
	}

	parts := make([]*Set, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, shard := range shards {
		g.Go(func() error {
			part, err := ReadShard(gctx, store, shard)
			if err != nil {
				return err
			}
			parts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return concat(parts)
}

// ReadDir is Read over a local directory.
func ReadDir(ctx context.Context, dir string, percentage float64, optFns ...func(o *ReadOptions)) (*Set, error) {
	return Read(ctx, blobstore.NewLocalStore(dir), percentage, optFns...)
}

// ReadShard loads a single shard.
func ReadShard(ctx context.Context, store blobstore.BlobStore, shard string) (*Set, error) {
	var (
		keys   [][]float32
		dim    int
		labels []int32
		inputs []int32
	)

	err := blobstore.View(ctx, store, shard+KeySuffix, func(data []byte) error {
		var err error
		keys, dim, err = persistence.ReadMatrix(data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("features: read %s%s: %w", shard, KeySuffix, err)
	}

	err = blobstore.View(ctx, store, shard+ValueSuffix, func(data []byte) error {
		var err error
		labels, err = persistence.ReadInt32Array(data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("features: read %s%s: %w", shard, ValueSuffix, err)
	}

	err = blobstore.View(ctx, store, shard+InputSuffix, func(data []byte) error {
		var err error
		inputs, err = persistence.ReadInt32Array(data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("features: read %s%s: %w", shard, InputSuffix, err)
	}

	if len(labels) != len(keys) || len(inputs) != len(keys) {
		return nil, fmt.Errorf("%w: shard %q has %d keys, %d values, %d inputs",
			ErrShardMismatch, shard, len(keys), len(labels), len(inputs))
	}

	return &Set{
		Dim:    dim,
		Keys:   keys,
		Labels: labels,
		Inputs: inputs,
		Shards: []string{shard},
	}, nil
}

func concat(parts []*Set) (*Set, error) {
	total := 0
	for _, p := range parts {
		total += p.Len()
	}

	out := &Set{
		Dim:    parts[0].Dim,
		Keys:   make([][]float32, 0, total),
		Labels: make([]int32, 0, total),
		Inputs: make([]int32, 0, total),
	}
	for _, p := range parts {
		if p.Dim != out.Dim {
			return nil, fmt.Errorf("%w: shard %q has dimension %d, want %d", ErrShardMismatch, p.Shards[0], p.Dim, out.Dim)
		}
		out.Keys = append(out.Keys, p.Keys...)
		out.Labels = append(out.Labels, p.Labels...)
		out.Inputs = append(out.Inputs, p.Inputs...)
		out.Shards = append(out.Shards, p.Shards...)
	}
	return out, nil
}

// WriteShard stores keys, labels and inputs as shard.
func WriteShard(ctx context.Context, store blobstore.BlobStore, shard string, keys [][]float32, labels, inputs []int32, c persistence.Compression) error {
	if len(keys) == 0 {
		return fmt.Errorf("%w: shard %q is empty", ErrShardMismatch, shard)
	}
	if len(labels) != len(keys) || len(inputs) != len(keys) {
		return fmt.Errorf("%w: %d keys, %d values, %d inputs", ErrShardMismatch, len(keys), len(labels), len(inputs))
	}

	var buf bytes.Buffer
	if _, err := persistence.WriteMatrix(&buf, keys, len(keys[0]), c); err != nil {
		return err
	}
	if err := store.Put(ctx, shard+KeySuffix, buf.Bytes()); err != nil {
		return err
	}

	buf.Reset()
	if _, err := persistence.WriteInt32Array(&buf, labels, c); err != nil {
		return err
	}
	if err := store.Put(ctx, shard+ValueSuffix, buf.Bytes()); err != nil {
		return err
	}

	buf.Reset()
	if _, err := persistence.WriteInt32Array(&buf, inputs, c); err != nil {
		return err
	}
	return store.Put(ctx, shard+InputSuffix, buf.Bytes())
}
