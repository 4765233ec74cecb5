package labelstore

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrUnknownID is returned when looking up an id that was never appended.
	ErrUnknownID = errors.New("labelstore: unknown id")

	// ErrLengthMismatch is returned when label and input arrays differ in length.
	ErrLengthMismatch = errors.New("labelstore: labels and inputs differ in length")
)

// Entry is the pair stored for one vector.
type Entry struct {
	Label int32
	Input int32
}

// Store maps vector ids to entries. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	labels []int32
	inputs []int32
}

// New returns an empty store with room for capacity entries.
func New(capacity int) *Store {
	return &Store{
		labels: make([]int32, 0, capacity),
		inputs: make([]int32, 0, capacity),
	}
}

// FromArrays builds a store over persisted arrays. The slices are copied.
func FromArrays(labels, inputs []int32) (*Store, error) {
	if len(labels) != len(inputs) {
		return nil, fmt.Errorf("%w: %d labels, %d inputs", ErrLengthMismatch, len(labels), len(inputs))
	}
	return &Store{
		labels: slices.Clone(labels),
		inputs: slices.Clone(inputs),
	}, nil
}

// Append stores one entry and returns its id.
func (s *Store) Append(label, input int32) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uint64(len(s.labels))
	s.labels = append(s.labels, label)
	s.inputs = append(s.inputs, input)
	return id
}

// AppendBatch stores entries in order and returns the id of the first one.
// Nothing is stored when the lengths differ.
func (s *Store) AppendBatch(labels, inputs []int32) (uint64, error) {
	if len(labels) != len(inputs) {
		return 0, fmt.Errorf("%w: %d labels, %d inputs", ErrLengthMismatch, len(labels), len(inputs))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	first := uint64(len(s.labels))
	s.labels = append(s.labels, labels...)
	s.inputs = append(s.inputs, inputs...)
	return first, nil
}

// Lookup returns the entry of id.
func (s *Store) Lookup(id uint64) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id >= uint64(len(s.labels)) {
		return Entry{}, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return Entry{Label: s.labels[id], Input: s.inputs[id]}, nil
}

// LookupMany resolves ids into parallel label and input slices, preserving
// order and duplicates. It fails on the first unknown id.
func (s *Store) LookupMany(ids []uint64) (labels, inputs []int32, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	labels = make([]int32, len(ids))
	inputs = make([]int32, len(ids))
	for i, id := range ids {
		if id >= uint64(len(s.labels)) {
			return nil, nil, fmt.Errorf("%w: %d at position %d", ErrUnknownID, id, i)
		}
		labels[i] = s.labels[id]
		inputs[i] = s.inputs[id]
	}
	return labels, inputs, nil
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.labels)
}

// Labels returns a copy of the label array indexed by id.
func (s *Store) Labels() []int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.labels)
}

// Inputs returns a copy of the input-token array indexed by id.
func (s *Store) Inputs() []int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.inputs)
}

// MaxLabel returns the largest stored label, or -1 when empty.
func (s *Store) MaxLabel() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.labels) == 0 {
		return -1
	}
	return slices.Max(s.labels)
}
