package knnstore_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/knnstore"
	"github.com/hupe1980/knnstore/blobstore"
)

func Example() {
	ctx := context.Background()

	keys := [][]float32{
		{0, 0, 0, 0},
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{10, 10, 10, 10},
		{11, 10, 10, 10},
		{10, 11, 10, 10},
	}
	labels := []int32{0, 1, 0, 2, 1, 0}
	inputs := []int32{7, 7, 7, 7, 7, 7}

	ds := knnstore.New(knnstore.WithNCentroids(2), knnstore.WithNProbe(2), knnstore.WithSeed(42))
	if err := ds.Train(ctx, keys); err != nil {
		log.Fatal(err)
	}
	if _, err := ds.Add(ctx, keys, labels, inputs); err != nil {
		log.Fatal(err)
	}
	if err := ds.SetVocabSize(3); err != nil {
		log.Fatal(err)
	}

	res, err := ds.Search(ctx, [][]float32{{10, 10, 10, 10}}, 3, 1.0)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(res.IDs[0])
	fmt.Printf("%.3f\n", res.Scores[0])
	// Output:
	// [3 4 5]
	// [0.212 0.212 0.576]
}

func ExampleLoad() {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	keys := [][]float32{{0, 0}, {0, 1}, {5, 5}, {5, 6}}
	ds := knnstore.New(knnstore.WithNCentroids(2), knnstore.WithNProbe(1))
	if err := ds.Train(ctx, keys); err != nil {
		log.Fatal(err)
	}
	if _, err := ds.Add(ctx, keys, []int32{0, 0, 1, 1}, []int32{0, 1, 2, 3}); err != nil {
		log.Fatal(err)
	}
	if err := ds.Save(ctx, store); err != nil {
		log.Fatal(err)
	}

	loaded, err := knnstore.Load(ctx, store)
	if err != nil {
		log.Fatal(err)
	}
	stats := loaded.Stats()
	fmt.Println(stats.State, stats.Count, stats.NCentroids)
	// Output:
	// populated 4 2
}
