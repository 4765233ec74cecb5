package score

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidTemperature is returned when the temperature is not a
	// positive finite number.
	ErrInvalidTemperature = errors.New("score: temperature must be positive")

	// ErrShapeMismatch is returned when distances and labels differ in length
	// or the destination does not match the vocabulary size.
	ErrShapeMismatch = errors.New("score: shape mismatch")

	// ErrInvalidVocabSize is returned for a vocabulary size below one.
	ErrInvalidVocabSize = errors.New("score: vocabulary size must be positive")
)

// LabelOutOfRangeError reports a label outside [0, VocabSize).
type LabelOutOfRangeError struct {
	Position  int
	Label     int32
	VocabSize int
}

func (e *LabelOutOfRangeError) Error() string {
	return fmt.Sprintf("score: label %d at position %d outside [0, %d)", e.Label, e.Position, e.VocabSize)
}

// Aggregate returns a fresh score vector of length vocabSize.
func Aggregate(distances []float32, labels []int32, vocabSize int, temperature float64) ([]float32, error) {
	if vocabSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVocabSize, vocabSize)
	}
	dst := make([]float32, vocabSize)
	if err := AggregateInto(dst, distances, labels, temperature); err != nil {
		return nil, err
	}
	return dst, nil
}

// AggregateInto zeroes dst and scatter-adds the softmax weights of the
// neighbors into it. len(dst) is the vocabulary size. All inputs are
// validated before dst is touched.
func AggregateInto(dst []float32, distances []float32, labels []int32, temperature float64) error {
	if !(temperature > 0) || math.IsInf(temperature, 1) {
		return fmt.Errorf("%w: %v", ErrInvalidTemperature, temperature)
	}
	if len(dst) == 0 {
		return ErrInvalidVocabSize
	}
	if len(distances) != len(labels) {
		return fmt.Errorf("%w: %d distances, %d labels", ErrShapeMismatch, len(distances), len(labels))
	}
	for i, l := range labels {
		if l < 0 || int(l) >= len(dst) {
			return &LabelOutOfRangeError{Position: i, Label: l, VocabSize: len(dst)}
		}
	}

	clear(dst)
	if len(distances) == 0 {
		return nil
	}

	weights := Softmax(distances, temperature)
	for i, l := range labels {
		dst[l] += float32(weights[i])
	}
	return nil
}

// Softmax returns softmax(-distances/T) computed in float64 with the maximum
// logit subtracted before exponentiation.
func Softmax(distances []float32, temperature float64) []float64 {
	w := make([]float64, len(distances))
	if len(w) == 0 {
		return w
	}

	maxLogit := math.Inf(-1)
	for i, d := range distances {
		w[i] = -float64(d) / temperature
		if w[i] > maxLogit {
			maxLogit = w[i]
		}
	}

	var sum float64
	for i := range w {
		w[i] = math.Exp(w[i] - maxLogit)
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}
