package score

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/knnstore/testutil"
)

func sum(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x)
	}
	return s
}

func TestAggregate_MassConservation(t *testing.T) {
	rng := testutil.NewRNG(9)

	for _, k := range []int{1, 2, 8, 64} {
		dists := make([]float32, k)
		for i := range dists {
			dists[i] = float32(rng.Intn(1000)) / 10
		}
		labels := rng.Labels(k, 50)

		for _, temp := range []float64{0.1, 1, 10} {
			scores, err := Aggregate(dists, labels, 50, temp)
			require.NoError(t, err)
			assert.Len(t, scores, 50)
			assert.True(t, testutil.AlmostEqual(sum(scores), 1, 1e-6), "k=%d T=%v sum=%v", k, temp, sum(scores))
		}
	}
}

func TestAggregate_DuplicateLabelsAccumulate(t *testing.T) {
	dists := []float32{0, 1, 2}
	labels := []int32{4, 1, 4}

	w := Softmax(dists, 1)
	scores, err := Aggregate(dists, labels, 5, 1)
	require.NoError(t, err)

	assert.InDelta(t, w[0]+w[2], scores[4], 1e-6)
	assert.Greater(t, float64(scores[4]), w[0])
	assert.Greater(t, float64(scores[4]), w[2])
	assert.InDelta(t, w[1], scores[1], 1e-6)
	assert.Zero(t, scores[0])
}

func TestSoftmax(t *testing.T) {
	w := Softmax([]float32{0, 0}, 1)
	assert.InDelta(t, 0.5, w[0], 1e-12)
	assert.InDelta(t, 0.5, w[1], 1e-12)

	w = Softmax([]float32{1, 2}, 1)
	assert.InDelta(t, 1/(1+math.Exp(-1)), w[0], 1e-12)

	assert.Empty(t, Softmax(nil, 1))
}

func TestSoftmax_LargeDistancesStayFinite(t *testing.T) {
	w := Softmax([]float32{1e6, 1e6 + 1, 3e6}, 0.5)

	var total float64
	for _, x := range w {
		assert.False(t, math.IsNaN(x))
		assert.False(t, math.IsInf(x, 0))
		total += x
	}
	assert.InDelta(t, 1, total, 1e-12)
	assert.Greater(t, w[0], w[1])
}

func TestAggregate_TemperatureSharpens(t *testing.T) {
	dists := []float32{1, 2}
	labels := []int32{0, 1}

	hot, err := Aggregate(dists, labels, 2, 100)
	require.NoError(t, err)
	cold, err := Aggregate(dists, labels, 2, 0.01)
	require.NoError(t, err)

	assert.Greater(t, cold[0], hot[0])
	assert.InDelta(t, 1, cold[0], 1e-6)
}

func TestAggregate_Errors(t *testing.T) {
	for _, temp := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := Aggregate([]float32{1}, []int32{0}, 3, temp)
		assert.ErrorIs(t, err, ErrInvalidTemperature, "T=%v", temp)
	}

	_, err := Aggregate([]float32{1, 2}, []int32{0}, 3, 1)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Aggregate([]float32{1}, []int32{0}, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidVocabSize)

	for _, l := range []int32{-1, 3} {
		_, err = Aggregate([]float32{1, 2}, []int32{0, l}, 3, 1)
		var lre *LabelOutOfRangeError
		require.ErrorAs(t, err, &lre)
		assert.Equal(t, 1, lre.Position)
		assert.Equal(t, l, lre.Label)
		assert.Equal(t, 3, lre.VocabSize)
	}
}

func TestAggregateInto(t *testing.T) {
	dst := []float32{9, 9, 9}

	require.NoError(t, AggregateInto(dst, nil, nil, 1))
	assert.Equal(t, []float32{0, 0, 0}, dst)

	dst[2] = 5
	err := AggregateInto(dst, []float32{0}, []int32{7}, 1)
	var lre *LabelOutOfRangeError
	require.ErrorAs(t, err, &lre)
	assert.Equal(t, float32(5), dst[2], "dst must be untouched on validation errors")

	require.NoError(t, AggregateInto(dst, []float32{0}, []int32{1}, 1))
	assert.Equal(t, []float32{0, 1, 0}, dst)
}
