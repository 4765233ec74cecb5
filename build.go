package knnstore

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/knnstore/blobstore"
	"github.com/hupe1980/knnstore/features"
)

// BuildConfig describes an end-to-end datastore build.
type BuildConfig struct {
	// Features holds the raw feature shards.
	Features blobstore.BlobStore
	// Output receives the saved datastore. Nil skips saving.
	Output blobstore.BlobStore
	// SamplePercentage is the share of shards to read, in (0, 100].
	// Zero reads all shards.
	SamplePercentage float64
}

// Build reads feature shards, trains a datastore on their keys, adds every
// key and saves the result.
//
// Example:
//
//	ds, err := knnstore.Build(ctx, knnstore.BuildConfig{
//	    Features: blobstore.NewLocalStore("./features"),
//	    Output:   blobstore.NewLocalStore("./datastore"),
//	}, knnstore.WithNCentroids(1024), knnstore.WithSeed(42))
func Build(ctx context.Context, cfg BuildConfig, optFns ...Option) (*Datastore, error) {
	ds := New(optFns...)
	log := ds.opts.logger

	pct := cfg.SamplePercentage
	if pct == 0 {
		pct = 100
	}

	start := time.Now()
	set, err := features.Read(ctx, cfg.Features, pct, features.WithWorkers(ds.opts.workers))
	if err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}
	log.InfoContext(ctx, "read feature shards",
		"shards", len(set.Shards),
		"keys", set.Len(),
		"dimension", set.Dim,
		"seconds", time.Since(start).Seconds(),
	)

	if err := ds.Train(ctx, set.Keys); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	if _, err := ds.Add(ctx, set.Keys, set.Labels, set.Inputs); err != nil {
		return nil, fmt.Errorf("add keys: %w", err)
	}

	if cfg.Output != nil {
		if err := ds.Save(ctx, cfg.Output); err != nil {
			return nil, err
		}
	}

	return ds, nil
}

// BuildDir is Build over local directories.
func BuildDir(ctx context.Context, featureDir, outputDir string, samplePercentage float64, optFns ...Option) (*Datastore, error) {
	return Build(ctx, BuildConfig{
		Features:         blobstore.NewLocalStore(featureDir),
		Output:           blobstore.NewLocalStore(outputDir),
		SamplePercentage: samplePercentage,
	}, optFns...)
}
