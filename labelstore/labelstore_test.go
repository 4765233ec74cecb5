package labelstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendLookup(t *testing.T) {
	s := New(0)

	assert.Equal(t, uint64(0), s.Append(7, 100))
	assert.Equal(t, uint64(1), s.Append(3, 101))
	assert.Equal(t, 2, s.Len())

	e, err := s.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, Entry{Label: 3, Input: 101}, e)

	_, err = s.Lookup(2)
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestAppendBatch(t *testing.T) {
	s := New(4)
	s.Append(1, 1)

	first, err := s.AppendBatch([]int32{4, 5, 6}, []int32{40, 50, 60})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)
	assert.Equal(t, 4, s.Len())

	_, err = s.AppendBatch([]int32{1}, nil)
	assert.ErrorIs(t, err, ErrLengthMismatch)
	assert.Equal(t, 4, s.Len())

	assert.Equal(t, []int32{1, 4, 5, 6}, s.Labels())
	assert.Equal(t, []int32{1, 40, 50, 60}, s.Inputs())
	assert.Equal(t, int32(6), s.MaxLabel())
}

func TestLookupMany_PreservesOrderAndDuplicates(t *testing.T) {
	s, err := FromArrays([]int32{0, 1, 0, 2}, []int32{10, 11, 12, 13})
	require.NoError(t, err)

	labels, inputs, err := s.LookupMany([]uint64{3, 0, 3, 1})
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 0, 2, 1}, labels)
	assert.Equal(t, []int32{13, 10, 13, 11}, inputs)

	_, _, err = s.LookupMany([]uint64{0, 9})
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestFromArrays(t *testing.T) {
	_, err := FromArrays([]int32{1, 2}, []int32{1})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	labels := []int32{1, 2}
	s, err := FromArrays(labels, []int32{3, 4})
	require.NoError(t, err)

	labels[0] = 99
	e, err := s.Lookup(0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), e.Label, "store must not alias caller slices")

	assert.Equal(t, int32(-1), New(0).MaxLabel())
}

func TestConcurrentAppend(t *testing.T) {
	s := New(0)

	const n = 1000
	var wg sync.WaitGroup
	ids := make([]uint64, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i] = s.Append(int32(i), int32(i))
		}()
	}
	wg.Wait()

	assert.Equal(t, n, s.Len())

	seen := make(map[uint64]bool, n)
	for i, id := range ids {
		assert.False(t, seen[id])
		seen[id] = true

		e, err := s.Lookup(id)
		require.NoError(t, err)
		assert.Equal(t, int32(i), e.Label)
	}
}
