package whiten

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/hupe1980/knnstore/distance"
)

// Epsilon is added to every singular value before taking the inverse square
// root, keeping rank-deficient samples finite.
const Epsilon = 1e-8

var (
	// ErrInsufficientData is returned when fewer than two vectors are given to Fit.
	ErrInsufficientData = errors.New("whiten: need at least two vectors")

	// ErrInvalidOutDim is returned when the requested output dimension is not
	// in [1, input dimension].
	ErrInvalidOutDim = errors.New("whiten: invalid output dimension")

	// ErrDimensionMismatch is returned when a vector does not match the input
	// dimension of the transform.
	ErrDimensionMismatch = errors.New("whiten: dimension mismatch")
)

// Order selects how dimension reduction interacts with normalization.
type Order uint8

const (
	// ReduceThenNormalize keeps the leading kernel columns, projects and then
	// normalizes. Outputs have unit length.
	ReduceThenNormalize Order = iota
	// NormalizeThenReduce projects onto every component, normalizes and then
	// truncates. Outputs keep the share of the norm their components carry.
	NormalizeThenReduce
)

func (o Order) String() string {
	switch o {
	case ReduceThenNormalize:
		return "reduce-then-normalize"
	case NormalizeThenReduce:
		return "normalize-then-reduce"
	default:
		return fmt.Sprintf("Order(%d)", o)
	}
}

// ParseOrder parses the String form of an Order.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "reduce-then-normalize":
		return ReduceThenNormalize, nil
	case "normalize-then-reduce":
		return NormalizeThenReduce, nil
	default:
		return 0, fmt.Errorf("whiten: unknown order %q", s)
	}
}

// Transform is a fitted whitening map.
type Transform struct {
	inDim  int
	outDim int
	order  Order
	kernel []float32 // inDim x inDim, row-major
	bias   []float32 // -mean
}

// New restores a transform from its parts. kernel is an inDim x inDim
// row-major matrix and bias has length inDim. Slices are not copied.
func New(kernel, bias []float32, outDim int, order Order) (*Transform, error) {
	inDim := len(bias)
	if inDim == 0 || len(kernel) != inDim*inDim {
		return nil, fmt.Errorf("%w: kernel has %d values for bias of %d", ErrDimensionMismatch, len(kernel), inDim)
	}
	if outDim <= 0 || outDim > inDim {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidOutDim, outDim, inDim)
	}
	if order > NormalizeThenReduce {
		return nil, fmt.Errorf("whiten: unknown order %d", order)
	}
	return &Transform{
		inDim:  inDim,
		outDim: outDim,
		order:  order,
		kernel: kernel,
		bias:   bias,
	}, nil
}

// Fit estimates a transform from vectors. outDim of zero keeps every
// component.
func Fit(vectors [][]float32, outDim int, order Order) (*Transform, error) {
	if len(vectors) < 2 {
		return nil, ErrInsufficientData
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: empty vectors", ErrDimensionMismatch)
	}
	if outDim == 0 {
		outDim = dim
	}
	if outDim < 0 || outDim > dim {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidOutDim, outDim, dim)
	}

	x := mat.NewDense(len(vectors), dim, nil)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		for j, f := range v {
			x.Set(i, j, float64(f))
		}
	}

	bias := make([]float32, dim)
	col := make([]float64, len(vectors))
	for j := range dim {
		mat.Col(col, j, x)
		bias[j] = float32(-stat.Mean(col, nil))
	}

	cov := mat.NewSymDense(dim, nil)
	stat.CovarianceMatrix(cov, x, nil)

	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDThin); !ok {
		return nil, errors.New("whiten: SVD of covariance did not converge")
	}
	var u mat.Dense
	svd.UTo(&u)
	s := svd.Values(nil)

	kernel := make([]float32, dim*dim)
	for j := range dim {
		scale := 1 / math.Sqrt(s[j]+Epsilon)
		for i := range dim {
			kernel[i*dim+j] = float32(u.At(i, j) * scale)
		}
	}

	return &Transform{
		inDim:  dim,
		outDim: outDim,
		order:  order,
		kernel: kernel,
		bias:   bias,
	}, nil
}

// InDim returns the dimension of vectors accepted by Apply.
func (t *Transform) InDim() int { return t.inDim }

// OutDim returns the dimension of vectors produced by Apply.
func (t *Transform) OutDim() int { return t.outDim }

// Order returns the reduction order.
func (t *Transform) Order() Order { return t.order }

// Kernel returns the full inDim x inDim kernel, row-major. Do not modify.
func (t *Transform) Kernel() []float32 { return t.kernel }

// Bias returns the bias vector (the negated sample mean). Do not modify.
func (t *Transform) Bias() []float32 { return t.bias }

// Apply maps v into the whitened space.
func (t *Transform) Apply(v []float32) ([]float32, error) {
	if len(v) != t.inDim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), t.inDim)
	}

	switch t.order {
	case NormalizeThenReduce:
		out := t.project(v, t.inDim)
		distance.NormalizeL2InPlace(out)
		return out[:t.outDim:t.outDim], nil
	default:
		out := t.project(v, t.outDim)
		distance.NormalizeL2InPlace(out)
		return out, nil
	}
}

// ApplyBatch maps every vector using up to workers goroutines.
func (t *Transform) ApplyBatch(ctx context.Context, vectors [][]float32, workers int) ([][]float32, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := make([][]float32, len(vectors))

	const minChunk = 256
	chunk := max((len(vectors)+workers-1)/workers, minChunk)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(vectors); start += chunk {
		end := min(start+chunk, len(vectors))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				w, err := t.Apply(vectors[i])
				if err != nil {
					return fmt.Errorf("vector %d: %w", i, err)
				}
				out[i] = w
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// project computes the first cols components of (v + bias) * kernel.
func (t *Transform) project(v []float32, cols int) []float32 {
	centered := make([]float32, t.inDim)
	for i := range v {
		centered[i] = v[i] + t.bias[i]
	}

	out := make([]float32, cols)
	for i, c := range centered {
		if c == 0 {
			continue
		}
		row := t.kernel[i*t.inDim : i*t.inDim+cols]
		for j, k := range row {
			out[j] += c * k
		}
	}
	return out
}
