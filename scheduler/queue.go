package scheduler

import "container/heap"

// Compile time check to ensure slotQueue satisfies the heap interface.
var _ heap.Interface = (*slotQueue)(nil)

// slotQueue orders free slot candidates by load, then by slot ID.
// It implements heap.Interface so the best candidate is always at the top.
type slotQueue struct {
	items []*slotState
}

// Len returns the number of candidates in the queue.
func (q *slotQueue) Len() int { return len(q.items) }

// Less reports whether candidate i should sort before candidate j.
func (q *slotQueue) Less(i, j int) bool {
	if q.items[i].load != q.items[j].load {
		return q.items[i].load < q.items[j].load
	}
	return q.items[i].slot.ID < q.items[j].slot.ID
}

// Swap swaps the candidates with indexes i and j.
func (q *slotQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

// Push adds x to the queue.
func (q *slotQueue) Push(x any) {
	item, _ := x.(*slotState)
	q.items = append(q.items, item)
}

// Pop removes and returns the last element (heap.Pop moves the best there).
func (q *slotQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // Avoid memory leak
	q.items = old[:n-1]
	return item
}

// best returns the minimum candidate without disturbing the heap.
func pickBest(candidates []*slotState) *slotState {
	q := &slotQueue{items: candidates}
	heap.Init(q)
	return q.items[0]
}
