package main

import (
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/knnstore"
)

func newInfoCmd(a *app) *cobra.Command {
	var (
		dir  string
		load bool
	)

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the manifest of a saved datastore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, a.cfg, dir)
			if err != nil {
				return err
			}
			m, err := knnstore.ReadManifest(ctx, store)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "STATE:\t%s\n", m.State)
			fmt.Fprintf(w, "KEYS:\t%d\n", m.Count)
			fmt.Fprintf(w, "DIM:\t%d\n", m.Dim)
			fmt.Fprintf(w, "INDEX DIM:\t%d\n", m.IndexDim)
			fmt.Fprintf(w, "CENTROIDS:\t%d\n", m.NCentroids)
			fmt.Fprintf(w, "NPROBE:\t%d\n", m.NProbe)
			fmt.Fprintf(w, "COMPRESSION:\t%s\n", m.Compression)
			fmt.Fprintf(w, "CODEC:\t%s\n", m.Codec)
			fmt.Fprintf(w, "CREATED:\t%s\n", m.CreatedAt.Format(time.RFC3339))
			fmt.Fprintln(w)
			fmt.Fprintln(w, "ARTIFACT\tSIZE\tCRC32")
			for _, art := range m.Artifacts {
				fmt.Fprintf(w, "%s\t%d\t%08x\n", art.Name, art.Size, art.CRC32)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if !load {
				return nil
			}

			optFns, err := a.datastoreOptions()
			if err != nil {
				return err
			}
			ds, err := knnstore.Load(ctx, store, optFns...)
			if err != nil {
				return err
			}
			defer ds.Close()

			s := ds.Stats()
			if len(s.ListSizes) == 0 {
				return nil
			}
			empty := 0
			for _, n := range s.ListSizes {
				if n == 0 {
					empty++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nlists: min %d, max %d, mean %.1f, empty %d\n",
				slices.Min(s.ListSizes), slices.Max(s.ListSizes),
				float64(s.Count)/float64(len(s.ListSizes)), empty)
			fmt.Fprintf(cmd.OutOrStdout(), "max label: %d\n", s.MaxLabel)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "location of the saved datastore")
	cmd.Flags().BoolVar(&load, "load", false, "load the datastore and report inverted list sizes")
	_ = cmd.MarkFlagRequired("dir")

	return cmd
}
