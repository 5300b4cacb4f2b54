package search

import (
	"container/heap"
	"sort"
)

// topK keeps the k best results in a bounded min-heap. Once full, a
// candidate is admitted only by strictly beating the current minimum,
// so equal-score candidates keep their original entry order.
type topK struct {
	keep  int
	items resultHeap
}

type heapItem struct {
	score  float64
	tie    int
	result Result
}

type resultHeap []heapItem

func (h resultHeap) Len() int { return len(h) }
func (h resultHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	// Worst-first among equals: later entries evict before earlier ones.
	return h[i].tie > h[j].tie
}
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func newTopK(keep int) *topK {
	return &topK{keep: keep, items: make(resultHeap, 0, keep)}
}

func (t *topK) offer(result Result, tie int) {
	item := heapItem{score: result.Score, tie: tie, result: result}
	if len(t.items) < t.keep {
		heap.Push(&t.items, item)
		return
	}
	if item.score <= t.items[0].score {
		return
	}
	t.items[0] = item
	heap.Fix(&t.items, 0)
}

// ranked drains the heap into a slice sorted descending by score,
// breaking ties by original entry order.
func (t *topK) ranked() []Result {
	items := make([]heapItem, len(t.items))
	copy(items, t.items)
	sort.Slice(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].tie < items[j].tie
	})
	out := make([]Result, len(items))
	for i, item := range items {
		out[i] = item.result
	}
	return out
}
