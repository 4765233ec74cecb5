package ivf

import (
	"errors"
	"fmt"
)

var (
	// ErrNotBuilt is returned when an operation is attempted on an index that
	// has no centroid set.
	ErrNotBuilt = errors.New("ivf: index not built")

	// ErrNonContiguousIDs is returned when Add receives ids that do not
	// continue the index's id sequence.
	ErrNonContiguousIDs = errors.New("ivf: ids must be contiguous and increasing")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("ivf: k must be positive")

	// ErrInvalidNProbe is returned when nprobe is outside [1, nlist].
	ErrInvalidNProbe = errors.New("ivf: nprobe out of range")

	// ErrCorruptLists is returned by Restore when persisted lists do not
	// describe every id exactly once.
	ErrCorruptLists = errors.New("ivf: inconsistent inverted lists")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("ivf: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
