// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package worklist provides the single-cursor work queue that drives
// model resolution.
package worklist

// Queue is a FIFO with a single forward cursor.
//
// Description:
//
//	Items pushed while iterating are visited later in the same traversal,
//	which lets one pass resolve nested structures without recursion. The
//	queue keeps every pushed item; Next only advances the cursor. Queue
//	never deduplicates: each Push is a distinct position.
//
// Thread Safety:
//
//	Not safe for concurrent use. A queue belongs to one traversal.
//
// Example:
//
//	q := worklist.New[int]()
//	q.Push(1, 2)
//	for v, ok := q.Next(); ok; v, ok = q.Next() {
//	    if v == 1 {
//	        q.Push(3)
//	    }
//	}
type Queue[T any] struct {
	items  []T
	cursor int
}

// New creates an empty queue.
func New[T any](initial ...T) *Queue[T] {
	q := &Queue[T]{}
	q.Push(initial...)
	return q
}

// Push appends items in order.
func (q *Queue[T]) Push(items ...T) {
	q.items = append(q.items, items...)
}

// Next returns the item under the cursor and advances it. ok is false
// once every pushed item has been visited.
func (q *Queue[T]) Next() (item T, ok bool) {
	if q.cursor >= len(q.items) {
		return item, false
	}
	item = q.items[q.cursor]
	q.cursor++
	return item, true
}

// Len returns the number of items not yet visited.
func (q *Queue[T]) Len() int {
	return len(q.items) - q.cursor
}

// Visited returns the number of items already returned by Next.
func (q *Queue[T]) Visited() int {
	return q.cursor
}

// Total returns the number of items ever pushed.
func (q *Queue[T]) Total() int {
	return len(q.items)
}
