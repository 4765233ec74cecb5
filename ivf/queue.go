package ivf

import (
	"container/heap"
	"slices"
)

// Compile time check to ensure topK satisfies the heap interface.
var _ heap.Interface = (*topK)(nil)

// topK is a bounded max-heap keeping the k best neighbors seen so far.
// The root is the worst retained neighbor: largest distance, and on equal
// distance the largest id.
type topK struct {
	items    []Neighbor
	capacity int
}

// newTopK keeps up to capacity neighbors. candidates bounds the initial
// allocation, so a k far beyond the stored vectors costs nothing.
func newTopK(capacity, candidates int) *topK {
	return &topK{
		items:    make([]Neighbor, 0, max(min(capacity, candidates), 0)),
		capacity: capacity,
	}
}

// worse reports whether a ranks behind b.
func worse(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.ID > b.ID
}

// Offer inserts n if the heap has room or n beats the current worst.
func (q *topK) Offer(n Neighbor) {
	if len(q.items) < q.capacity {
		heap.Push(q, n)
		return
	}
	if worse(q.items[0], n) {
		q.items[0] = n
		heap.Fix(q, 0)
	}
}

// Sorted returns the retained neighbors ordered best first.
func (q *topK) Sorted() []Neighbor {
	out := slices.Clone(q.items)
	slices.SortFunc(out, func(a, b Neighbor) int {
		switch {
		case worse(b, a):
			return -1
		case worse(a, b):
			return 1
		default:
			return 0
		}
	})
	return out
}

func (q *topK) Len() int { return len(q.items) }

func (q *topK) Less(i, j int) bool { return worse(q.items[i], q.items[j]) }

func (q *topK) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *topK) Push(x any) { q.items = append(q.items, x.(Neighbor)) }

func (q *topK) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}
