package main

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/knnstore"
	"github.com/hupe1980/knnstore/features"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		dir, queries, shard string
		top, limit          int
	)
	cfg := a.cfg

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Score the keys of a feature shard against a saved datastore",
		Long: `Load a datastore, use the keys of one feature shard as queries and print
the highest scoring tokens per query next to the shard's target token.

Example:
  knnstore search --dir ./datastore --queries ./features --queries-shard valid_0 \
    --k 1024 --temperature 10 --vocab-size 50257`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			optFns, err := a.datastoreOptions()
			if err != nil {
				return err
			}
			store, err := openStore(ctx, cfg, dir)
			if err != nil {
				return err
			}
			ds, err := knnstore.Load(ctx, store, optFns...)
			if err != nil {
				return err
			}
			defer ds.Close()

			if cfg.VocabSize > 0 {
				if err := ds.SetVocabSize(cfg.VocabSize); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("nprobe") {
				if err := ds.SetNProbe(cfg.NProbe); err != nil {
					return err
				}
			}

			if queries == "" {
				queries = dir
			}
			qstore, err := openStore(ctx, cfg, queries)
			if err != nil {
				return err
			}
			set, err := features.ReadShard(ctx, qstore, shard)
			if err != nil {
				return err
			}
			keys, labels := set.Keys, set.Labels
			if limit > 0 && limit < len(keys) {
				keys, labels = keys[:limit], labels[:limit]
			}

			res, err := ds.Search(ctx, keys, cfg.K, cfg.Temperature)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			hits := 0
			for i, scores := range res.Scores {
				best := topTokens(scores, top)
				if len(best) > 0 && int32(best[0]) == labels[i] {
					hits++
				}
				parts := make([]string, len(best))
				for j, t := range best {
					parts[j] = fmt.Sprintf("%d:%.4f", t, scores[t])
				}
				fmt.Fprintf(out, "%d\ttarget=%d\tneighbors=%d\t%s\n", i, labels[i], len(res.IDs[i]), strings.Join(parts, " "))
			}
			if len(keys) > 0 {
				fmt.Fprintf(out, "top-1 accuracy: %.4f (%d/%d)\n", float64(hits)/float64(len(keys)), hits, len(keys))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&dir, "dir", "", "location of the saved datastore")
	f.StringVar(&queries, "queries", "", "location of the query shard (defaults to --dir)")
	f.StringVar(&shard, "queries-shard", "", "name of the feature shard holding the queries")
	f.IntVar(&cfg.K, "k", cfg.K, "neighbors per query")
	f.Float64Var(&cfg.Temperature, "temperature", cfg.Temperature, "softmax temperature")
	f.IntVar(&cfg.VocabSize, "vocab-size", cfg.VocabSize, "vocabulary size (0 keeps the saved value)")
	f.IntVar(&cfg.NProbe, "nprobe", cfg.NProbe, "lists scanned per query (defaults to the saved value)")
	f.IntVar(&top, "top", 5, "tokens printed per query")
	f.IntVar(&limit, "limit", 0, "maximum number of queries (0 = all)")
	_ = cmd.MarkFlagRequired("dir")
	_ = cmd.MarkFlagRequired("queries-shard")

	return cmd
}

// topTokens returns the n highest scoring token ids, best first. Equal
// scores are ordered by token id.
func topTokens(scores []float32, n int) []int {
	ids := make([]int, len(scores))
	for i := range ids {
		ids[i] = i
	}
	slices.SortStableFunc(ids, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})
	return ids[:min(n, len(ids))]
}
