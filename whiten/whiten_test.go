package whiten

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/hupe1980/knnstore/distance"
	"github.com/hupe1980/knnstore/testutil"
)

// correlated returns vectors with strongly correlated, shifted coordinates.
func correlated(n int) [][]float32 {
	base := testutil.NewRNG(17).GaussianVectors(n, 4)
	out := make([][]float32, n)
	for i, b := range base {
		out[i] = []float32{
			3 + b[0],
			-1 + 2*b[0] + 0.5*b[1],
			b[2] - b[0],
			10 + 0.1*b[3],
		}
	}
	return out
}

func TestFit_DecorrelatesSample(t *testing.T) {
	vectors := correlated(4000)

	tr, err := Fit(vectors, 0, ReduceThenNormalize)
	require.NoError(t, err)
	assert.Equal(t, 4, tr.InDim())
	assert.Equal(t, 4, tr.OutDim())

	x := mat.NewDense(len(vectors), 4, nil)
	for i, v := range vectors {
		p := tr.project(v, 4)
		for j, f := range p {
			x.Set(i, j, float64(f))
		}
	}

	cov := mat.NewSymDense(4, nil)
	stat.CovarianceMatrix(cov, x, nil)
	for i := range 4 {
		for j := range 4 {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, cov.At(i, j), 1e-2, "cov[%d][%d]", i, j)
		}
	}

	col := make([]float64, len(vectors))
	for j := range 4 {
		mat.Col(col, j, x)
		assert.InDelta(t, 0, stat.Mean(col, nil), 1e-3)
	}
}

func TestApply_ReduceThenNormalize(t *testing.T) {
	vectors := correlated(500)

	tr, err := Fit(vectors, 2, ReduceThenNormalize)
	require.NoError(t, err)

	out, err := tr.Apply(vectors[0])
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 1, math.Sqrt(float64(distance.Dot(out, out))), 1e-5)
}

func TestApply_NormalizeThenReduce(t *testing.T) {
	vectors := correlated(500)

	full, err := Fit(vectors, 0, NormalizeThenReduce)
	require.NoError(t, err)
	reduced, err := New(full.Kernel(), full.Bias(), 2, NormalizeThenReduce)
	require.NoError(t, err)

	whole, err := full.Apply(vectors[3])
	require.NoError(t, err)
	part, err := reduced.Apply(vectors[3])
	require.NoError(t, err)

	require.Len(t, part, 2)
	assert.Equal(t, whole[:2], part)
	assert.LessOrEqual(t, float64(distance.Dot(part, part)), 1+1e-5)
}

func TestApply_OrdersAgreeWithoutReduction(t *testing.T) {
	vectors := correlated(300)

	a, err := Fit(vectors, 0, ReduceThenNormalize)
	require.NoError(t, err)
	b, err := New(a.Kernel(), a.Bias(), 4, NormalizeThenReduce)
	require.NoError(t, err)

	va, err := a.Apply(vectors[7])
	require.NoError(t, err)
	vb, err := b.Apply(vectors[7])
	require.NoError(t, err)
	assert.InDeltaSlice(t, va, vb, 1e-6)
}

func TestApplyBatch(t *testing.T) {
	vectors := correlated(1000)

	tr, err := Fit(vectors, 3, ReduceThenNormalize)
	require.NoError(t, err)

	batch, err := tr.ApplyBatch(context.Background(), vectors, 4)
	require.NoError(t, err)
	require.Len(t, batch, len(vectors))

	for _, i := range []int{0, 257, 999} {
		single, err := tr.Apply(vectors[i])
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}

	_, err = tr.ApplyBatch(context.Background(), [][]float32{{1, 2}}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFit_Errors(t *testing.T) {
	_, err := Fit([][]float32{{1, 2}}, 0, ReduceThenNormalize)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Fit([][]float32{{1, 2}, {3, 4}}, 3, ReduceThenNormalize)
	assert.ErrorIs(t, err, ErrInvalidOutDim)

	_, err = Fit([][]float32{{1, 2}, {3}}, 0, ReduceThenNormalize)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = Fit([][]float32{{}, {}}, 0, ReduceThenNormalize)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFit_RankDeficientStaysFinite(t *testing.T) {
	// Every vector lies on the same line.
	vectors := [][]float32{{1, 1, 1}, {2, 2, 2}, {3, 3, 3}}

	tr, err := Fit(vectors, 0, ReduceThenNormalize)
	require.NoError(t, err)
	for _, k := range tr.Kernel() {
		assert.False(t, math.IsNaN(float64(k)) || math.IsInf(float64(k), 0))
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(make([]float32, 3), make([]float32, 2), 1, ReduceThenNormalize)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = New(make([]float32, 4), make([]float32, 2), 3, ReduceThenNormalize)
	assert.ErrorIs(t, err, ErrInvalidOutDim)

	_, err = New(make([]float32, 4), make([]float32, 2), 2, Order(9))
	assert.Error(t, err)
}

func TestParseOrder(t *testing.T) {
	for _, o := range []Order{ReduceThenNormalize, NormalizeThenReduce} {
		got, err := ParseOrder(o.String())
		require.NoError(t, err)
		assert.Equal(t, o, got)
	}

	got, err := ParseOrder("")
	require.NoError(t, err)
	assert.Equal(t, ReduceThenNormalize, got)

	_, err = ParseOrder("sideways")
	assert.Error(t, err)
}
