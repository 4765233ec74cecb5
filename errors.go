package knnstore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/knnstore/internal/kmeans"
	"github.com/hupe1980/knnstore/ivf"
	"github.com/hupe1980/knnstore/labelstore"
	"github.com/hupe1980/knnstore/score"
)

var (
	// ErrNotTrained is returned when an operation needs a trained datastore.
	ErrNotTrained = errors.New("datastore is not trained")

	// ErrAlreadyTrained is returned by Train on a trained datastore.
	ErrAlreadyTrained = errors.New("datastore is already trained")

	// ErrNotPopulated is returned by Search on a datastore without vectors.
	ErrNotPopulated = errors.New("datastore holds no vectors")

	// ErrVocabNotSet is returned by Search before SetVocabSize was called.
	ErrVocabNotSet = errors.New("vocabulary size is not set")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidNProbe is returned when nprobe is outside [1, n_centroids].
	ErrInvalidNProbe = errors.New("nprobe must be in [1, n_centroids]")

	// ErrInvalidTrainSample is returned when the training sample fraction is
	// outside (0, 1].
	ErrInvalidTrainSample = errors.New("training sample fraction must be in (0, 1]")

	// ErrCorruptDatastore is returned when persisted artifacts disagree with
	// each other or with the manifest.
	ErrCorruptDatastore = errors.New("persisted datastore is inconsistent")
)

// Component errors, re-exported so callers can match them against this package.
var (
	ErrInsufficientData   = kmeans.ErrInsufficientData
	ErrInvalidTemperature = score.ErrInvalidTemperature
	ErrInvalidVocabSize   = score.ErrInvalidVocabSize
	ErrUnknownID          = labelstore.ErrUnknownID
	ErrNotBuilt           = ivf.ErrNotBuilt
	ErrNonContiguousIDs   = ivf.ErrNonContiguousIDs
)

// LabelOutOfRangeError reports a stored label outside the vocabulary.
type LabelOutOfRangeError = score.LabelOutOfRangeError

// ShapeMismatchError reports an input whose length or dimension does not fit.
type ShapeMismatchError struct {
	// Field names the offending input, e.g. "keys", "labels" or "query".
	Field    string
	Expected int
	Actual   int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch in %s: expected %d, got %d", e.Field, e.Expected, e.Actual)
}

// PersistenceError wraps a failure to read or write a datastore artifact.
type PersistenceError struct {
	Artifact string
	Location string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s at %s: %v", e.Artifact, e.Location, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// translateError maps component errors onto this package's typed errors.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *ivf.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ShapeMismatchError{Field: "vector", Expected: dm.Expected, Actual: dm.Actual}
	}
	if errors.Is(err, ivf.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}
	if errors.Is(err, ivf.ErrInvalidNProbe) {
		return fmt.Errorf("%w: %w", ErrInvalidNProbe, err)
	}

	return err
}
