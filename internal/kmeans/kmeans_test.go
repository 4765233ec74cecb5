package kmeans

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/knnstore/testutil"
)

func TestTrainKMeans(t *testing.T) {
	ctx := context.Background()
	// 2 clusters: (0,0) and (10,10)
	vecs := []float32{
		0, 0, 0, 1, 1, 0, // near 0,0
		10, 10, 10, 11, 11, 10, // near 10,10
	}
	k := 2
	dim := 2

	centroids, err := TrainKMeans(ctx, vecs, dim, k, Options{Seed: 1, MaxIter: 100})
	require.NoError(t, err)
	assert.Len(t, centroids, k*dim)

	p1, err := AssignPartition([]float32{0.5, 0.5}, centroids, dim)
	require.NoError(t, err)

	p2, err := AssignPartition([]float32{10.5, 10.5}, centroids, dim)
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
}

func TestTrainKMeans_NotEnoughVectors(t *testing.T) {
	ctx := context.Background()
	vecs := []float32{0, 0}
	centroids, err := TrainKMeans(ctx, vecs, 2, 2, Options{MaxIter: 10})
	require.ErrorIs(t, err, ErrInsufficientData)
	assert.Nil(t, centroids)
}

func TestTrainKMeans_InvalidShape(t *testing.T) {
	ctx := context.Background()

	_, err := TrainKMeans(ctx, []float32{0, 0, 0}, 2, 1, Options{})
	assert.Error(t, err)

	_, err = TrainKMeans(ctx, []float32{0, 0}, 0, 1, Options{})
	assert.Error(t, err)

	_, err = TrainKMeans(ctx, []float32{0, 0}, 2, 0, Options{})
	assert.Error(t, err)
}

func TestTrainKMeans_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	vecs := make([]float32, 1000*2)
	for i := range vecs {
		vecs[i] = float32(i)
	}

	_, err := TrainKMeans(ctx, vecs, 2, 10, Options{MaxIter: 1000})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainKMeans_Deterministic(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(7)
	data := testutil.Flatten(rng.ClusteredVectors(2000, 16, 8, 0.05))

	a, err := TrainKMeans(ctx, data, 16, 8, Options{Seed: 42, Workers: 4})
	require.NoError(t, err)

	b, err := TrainKMeans(ctx, data, 16, 8, Options{Seed: 42, Workers: 1})
	require.NoError(t, err)

	assert.Equal(t, a, b, "same seed and sample must yield identical centroids regardless of parallelism")

	c, err := TrainKMeans(ctx, data, 16, 8, Options{Seed: 43, Workers: 4})
	require.NoError(t, err)
	assert.Len(t, c, len(a))
}

func TestTrainKMeans_DoesNotMutateInput(t *testing.T) {
	ctx := context.Background()
	data := []float32{0, 0, 1, 1, 5, 5, 6, 6}
	orig := append([]float32(nil), data...)

	_, err := TrainKMeans(ctx, data, 2, 2, Options{Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, orig, data)
}

func TestFindClosestCentroids(t *testing.T) {
	centroids := []float32{
		0, 0, // 0
		10, 10, // 1
		20, 20, // 2
	}
	dim := 2

	res, err := FindClosestCentroids([]float32{1, 1}, centroids, dim, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, res)

	res, err = FindClosestCentroids([]float32{19, 19}, centroids, dim, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, res)

	// n larger than the centroid count is capped.
	res, err = FindClosestCentroids([]float32{19, 19}, centroids, dim, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, res)

	_, err = FindClosestCentroids([]float32{0}, centroids, dim, 1)
	assert.Error(t, err)
}

func TestFindClosestCentroids_TieBreak(t *testing.T) {
	// (5,5) is equidistant from all four corners.
	centroids := []float32{
		10, 10,
		0, 0,
		10, 0,
		0, 10,
	}

	res, err := FindClosestCentroids([]float32{5, 5}, centroids, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, res)
}

func TestAssignPartition_Error(t *testing.T) {
	_, err := AssignPartition([]float32{0, 0}, nil, 2)
	assert.Error(t, err)

	_, err = AssignPartition([]float32{0}, []float32{0, 0}, 2)
	assert.Error(t, err)
}
