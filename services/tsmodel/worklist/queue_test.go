// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package worklist

import (
	"reflect"
	"testing"
)

func TestQueue_FIFO(t *testing.T) {
	q := New(1, 2, 3)
	var got []int
	for v, ok := q.Next(); ok; v, ok = q.Next() {
		got = append(got, v)
	}
	if !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Errorf("expected [1 2 3], got %v", got)
	}
	if q.Len() != 0 || q.Visited() != 3 {
		t.Errorf("unexpected counters len=%d visited=%d", q.Len(), q.Visited())
	}
}

func TestQueue_PushDuringIteration(t *testing.T) {
	q := New("root")
	var order []string
	for v, ok := q.Next(); ok; v, ok = q.Next() {
		order = append(order, v)
		switch v {
		case "root":
			q.Push("a", "b")
		case "a":
			q.Push("a.1")
		}
	}
	want := []string{"root", "a", "b", "a.1"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("expected breadth-first order %v, got %v", want, order)
	}
	if q.Total() != 4 {
		t.Errorf("expected 4 pushed items, got %d", q.Total())
	}
}

func TestQueue_NoDeduplication(t *testing.T) {
	q := New[int]()
	q.Push(7)
	q.Push(7)
	if q.Len() != 2 {
		t.Errorf("expected both pushes to be kept, got %d", q.Len())
	}
}

func TestQueue_Empty(t *testing.T) {
	var q Queue[*struct{}]
	if v, ok := q.Next(); ok || v != nil {
		t.Error("expected empty queue to return zero value and false")
	}
	q.Push()
	if q.Len() != 0 {
		t.Error("expected empty push to add nothing")
	}
}
