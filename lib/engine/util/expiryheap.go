// Package util
//
// This file provides a deadline queue for entry expiration.
//
// The queue combines a binary min-heap (ordered by deadline) with a map from
// entry key to heap slot. Engines use it to find entries whose TTL has run
// out without scanning the whole key space, and to cancel or move a deadline
// in O(log n) when an entry is overwritten or deleted.
//
//   - O(log n) for Schedule, Cancel and PopExpired
//   - O(1) for Deadline lookups
//
// Note: The queue is not thread-safe. Engines guard it with the lock that
// protects the entries it refers to.
//
// Example usage:
//
//	q := NewExpiryHeap[string]()
//	q.Schedule("pool/1/key", 1700000000)
//	for _, key := range q.PopExpired(now) {
//	    // drop the entry for key
//	}
package util

import (
	"container/heap"
	"fmt"
)

// deadline is one scheduled expiration
type deadline[K comparable] struct {
	Key   K      // Entry the deadline belongs to
	At    uint32 // Expiration time (unix seconds)
	index int    // Index in the heap, maintained by heap package
}

func (d *deadline[K]) String() string {
	return fmt.Sprintf("{Key: %v, At: %d}", d.Key, d.At)
}

// deadlines is the heap.Interface implementation backing ExpiryHeap
type deadlines[K comparable] struct {
	items []*deadline[K]
	byKey map[K]*deadline[K]
}

func (d *deadlines[K]) Len() int { return len(d.items) }

func (d *deadlines[K]) Less(i, j int) bool { return d.items[i].At < d.items[j].At }

func (d *deadlines[K]) Swap(i, j int) {
	d.items[i], d.items[j] = d.items[j], d.items[i]
	d.items[i].index = i
	d.items[j].index = j
}

func (d *deadlines[K]) Push(x any) {
	item := x.(*deadline[K])
	item.index = len(d.items)
	d.items = append(d.items, item)
	d.byKey[item.Key] = item
}

func (d *deadlines[K]) Pop() any {
	old := d.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.index = -1 // For safety
	d.items = old[:n-1]
	delete(d.byKey, item.Key)
	return item
}

// ExpiryHeap is a min-heap of expiration deadlines with key-based access
type ExpiryHeap[K comparable] struct {
	h deadlines[K]
}

// NewExpiryHeap creates an empty deadline queue
func NewExpiryHeap[K comparable]() *ExpiryHeap[K] {
	return &ExpiryHeap[K]{
		h: deadlines[K]{
			items: make([]*deadline[K], 0),
			byKey: make(map[K]*deadline[K]),
		},
	}
}

// Len returns the number of scheduled deadlines
func (q *ExpiryHeap[K]) Len() int { return q.h.Len() }

// Schedule sets the deadline of key, replacing a previous one
func (q *ExpiryHeap[K]) Schedule(key K, at uint32) {
	if item, exists := q.h.byKey[key]; exists {
		item.At = at
		heap.Fix(&q.h, item.index)
		return
	}
	heap.Push(&q.h, &deadline[K]{Key: key, At: at})
}

// Cancel removes the deadline of key and reports whether one was scheduled
func (q *ExpiryHeap[K]) Cancel(key K) bool {
	item, exists := q.h.byKey[key]
	if !exists {
		return false
	}
	heap.Remove(&q.h, item.index)
	return true
}

// Deadline returns the deadline scheduled for key
func (q *ExpiryHeap[K]) Deadline(key K) (uint32, bool) {
	item, exists := q.h.byKey[key]
	if !exists {
		return 0, false
	}
	return item.At, true
}

// Next returns the earliest deadline without removing it
func (q *ExpiryHeap[K]) Next() (K, uint32, bool) {
	if len(q.h.items) == 0 {
		var zero K
		return zero, 0, false
	}
	item := q.h.items[0]
	return item.Key, item.At, true
}

// PopExpired removes and returns all keys whose deadline is <= now,
// earliest deadline first
func (q *ExpiryHeap[K]) PopExpired(now uint32) []K {
	var expired []K
	for len(q.h.items) > 0 && q.h.items[0].At <= now {
		item := heap.Pop(&q.h).(*deadline[K])
		expired = append(expired, item.Key)
	}
	return expired
}

// Clear drops all deadlines
func (q *ExpiryHeap[K]) Clear() {
	q.h.items = q.h.items[:0]
	clear(q.h.byKey)
}
