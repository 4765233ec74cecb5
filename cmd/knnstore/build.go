package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/knnstore"
)

func newBuildCmd(a *app) *cobra.Command {
	var featureDir, outputDir string
	cfg := a.cfg

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Train a datastore on raw feature shards and save it",
		Long: `Read <shard>_keys.bin, <shard>_values.bin and <shard>_inputs.bin triples
from the feature location, train the coarse quantizer, add every key and save
the datastore to the output location.

Example:
  knnstore build --feature-dir ./features --output-dir ./datastore \
    --n-centroids 4096 --nprobe 32 --seed 42 --whitening --dim-reduction 256`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if cmd.Flags().Changed("dim-reduction") {
				cfg.DimReductionSet = true
			}

			optFns, err := a.datastoreOptions()
			if err != nil {
				return err
			}
			in, err := openStore(ctx, cfg, featureDir)
			if err != nil {
				return fmt.Errorf("feature location: %w", err)
			}
			out, err := openStore(ctx, cfg, outputDir)
			if err != nil {
				return fmt.Errorf("output location: %w", err)
			}

			start := time.Now()
			ds, err := knnstore.Build(ctx, knnstore.BuildConfig{
				Features:         in,
				Output:           out,
				SamplePercentage: cfg.SamplePercentage,
			}, optFns...)
			if err != nil {
				return err
			}
			defer ds.Close()

			s := ds.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "built datastore in %s: %d keys, dim %d -> %d, %d centroids, state %s\n",
				time.Since(start).Round(time.Millisecond), s.Count, s.Dim, s.IndexDim, s.NCentroids, s.State)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&featureDir, "feature-dir", "", "location of the raw feature shards")
	f.StringVar(&outputDir, "output-dir", "", "location to save the datastore to")
	f.Float64Var(&cfg.SamplePercentage, "sample-percentage", cfg.SamplePercentage, "percentage of shards to read, in (0, 100]")
	f.Int64Var(&cfg.Seed, "seed", cfg.Seed, "seed for centroid initialization and sampling")
	f.BoolVar(&cfg.Whitening, "whitening", cfg.Whitening, "whiten keys before indexing")
	f.IntVar(&cfg.DimReduction, "dim-reduction", cfg.DimReduction, "output dimension of the whitening transform")
	f.StringVar(&cfg.WhiteningOrder, "whitening-order", cfg.WhiteningOrder, "reduce-then-normalize or normalize-then-reduce")
	f.IntVar(&cfg.NCentroids, "n-centroids", cfg.NCentroids, "number of coarse centroids")
	f.IntVar(&cfg.NProbe, "nprobe", cfg.NProbe, "lists scanned per query")
	f.IntVar(&cfg.MaxIterations, "max-iterations", cfg.MaxIterations, "k-means iterations (0 = default)")
	f.Float64Var(&cfg.TrainSample, "train-sample", cfg.TrainSample, "fraction of keys used to train the quantizer")
	f.StringVar(&cfg.Compression, "compression", cfg.Compression, "artifact compression (none, lz4, zstd)")
	f.StringVar(&cfg.Codec, "codec", cfg.Codec, "manifest codec (json, go-json)")
	_ = cmd.MarkFlagRequired("feature-dir")
	_ = cmd.MarkFlagRequired("output-dir")

	return cmd
}
