package alerts

import (
	"container/heap"
	"sort"
)

// higherPriority orders alerts by severity rank, then most recent first.
// The id breaks remaining ties so iteration order is stable.
func higherPriority(a, b *Alert) bool {
	if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
		return ra < rb
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID < b.ID
}

// alertHeap implements heap.Interface and tracks each alert's slot so
// removal by id is O(log n).
type alertHeap struct {
	items []*Alert
	index map[string]int
}

func (h *alertHeap) Len() int { return len(h.items) }

func (h *alertHeap) Less(i, j int) bool { return higherPriority(h.items[i], h.items[j]) }

func (h *alertHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.index[h.items[i].ID] = i
	h.index[h.items[j].ID] = j
}

func (h *alertHeap) Push(x any) {
	a := x.(*Alert)
	h.index[a.ID] = len(h.items)
	h.items = append(h.items, a)
}

func (h *alertHeap) Pop() any {
	n := len(h.items)
	a := h.items[n-1]
	h.items[n-1] = nil
	h.items = h.items[:n-1]
	delete(h.index, a.ID)
	return a
}

// PriorityQueue holds active alerts ordered by (severity rank, -timestamp).
// It is not safe for concurrent use; the engine serializes access.
type PriorityQueue struct {
	h *alertHeap
}

// NewPriorityQueue creates an empty queue
func NewPriorityQueue() *PriorityQueue {
	return &PriorityQueue{h: &alertHeap{index: make(map[string]int)}}
}

// Enqueue inserts an alert, replacing any queued alert with the same id
func (q *PriorityQueue) Enqueue(a *Alert) {
	if i, ok := q.h.index[a.ID]; ok {
		q.h.items[i] = a
		heap.Fix(q.h, i)
		return
	}
	heap.Push(q.h, a)
}

// Dequeue removes and returns the highest-priority alert, or nil when empty
func (q *PriorityQueue) Dequeue() *Alert {
	if q.h.Len() == 0 {
		return nil
	}
	return heap.Pop(q.h).(*Alert)
}

// Remove deletes the alert with the given id and returns it, or nil if absent
func (q *PriorityQueue) Remove(id string) *Alert {
	i, ok := q.h.index[id]
	if !ok {
		return nil
	}
	return heap.Remove(q.h, i).(*Alert)
}

// PeekHighest returns the highest-priority alert without removing it
func (q *PriorityQueue) PeekHighest() *Alert {
	if q.h.Len() == 0 {
		return nil
	}
	return q.h.items[0]
}

// Contains reports whether an alert with id is queued
func (q *PriorityQueue) Contains(id string) bool {
	_, ok := q.h.index[id]
	return ok
}

// Len returns the number of queued alerts
func (q *PriorityQueue) Len() int {
	return q.h.Len()
}

// All returns the queued alerts accepted by keep, in priority order.
// A nil keep accepts everything.
func (q *PriorityQueue) All(keep func(*Alert) bool) []*Alert {
	out := make([]*Alert, 0, q.h.Len())
	for _, a := range q.h.items {
		if keep == nil || keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return higherPriority(out[i], out[j]) })
	return out
}
