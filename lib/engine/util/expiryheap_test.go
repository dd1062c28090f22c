package util

import (
	"testing"
)

// TestNewExpiryHeap tests the creation of a new ExpiryHeap
func TestNewExpiryHeap(t *testing.T) {
	q := NewExpiryHeap[string]()

	if q == nil {
		t.Fatal("NewExpiryHeap() returned nil")
	}

	if q.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", q.Len())
	}

	if _, _, ok := q.Next(); ok {
		t.Error("Next() on an empty heap should report false")
	}
}

// TestSchedule tests that the earliest deadline is always on top
func TestSchedule(t *testing.T) {
	q := NewExpiryHeap[string]()

	q.Schedule("a", 100)
	q.Schedule("b", 200)
	q.Schedule("c", 50)

	if q.Len() != 3 {
		t.Errorf("Heap should have 3 items, but has %d", q.Len())
	}

	key, at, ok := q.Next()
	if !ok {
		t.Fatal("Next() should return an item")
	}
	if key != "c" || at != 50 {
		t.Errorf("Expected earliest deadline to be (c,50), got (%s,%d)", key, at)
	}
}

// TestReschedule tests that scheduling an existing key moves its deadline
func TestReschedule(t *testing.T) {
	q := NewExpiryHeap[string]()

	q.Schedule("a", 100)
	q.Schedule("b", 200)
	q.Schedule("a", 300)

	if q.Len() != 2 {
		t.Errorf("Rescheduling must not add a second entry, len=%d", q.Len())
	}

	at, ok := q.Deadline("a")
	if !ok || at != 300 {
		t.Errorf("Expected deadline 300 for a, got %d (ok=%v)", at, ok)
	}

	key, _, _ := q.Next()
	if key != "b" {
		t.Errorf("Expected b to be next after rescheduling a, got %s", key)
	}
}

// TestCancel tests removing deadlines by key
func TestCancel(t *testing.T) {
	q := NewExpiryHeap[string]()

	q.Schedule("a", 100)
	q.Schedule("b", 200)

	if !q.Cancel("a") {
		t.Error("Cancel(a) should report true")
	}
	if q.Cancel("a") {
		t.Error("Cancel(a) twice should report false")
	}
	if _, ok := q.Deadline("a"); ok {
		t.Error("Deadline(a) should be gone after Cancel")
	}
	if q.Len() != 1 {
		t.Errorf("Expected 1 remaining item, got %d", q.Len())
	}
}

// TestPopExpired tests that only due deadlines are removed, in order
func TestPopExpired(t *testing.T) {
	q := NewExpiryHeap[int]()

	for i := 10; i > 0; i-- {
		q.Schedule(i, uint32(i*10))
	}

	expired := q.PopExpired(50)
	if len(expired) != 5 {
		t.Fatalf("Expected 5 expired keys, got %d (%v)", len(expired), expired)
	}
	for i, key := range expired {
		if key != i+1 {
			t.Errorf("Expected key %d at position %d, got %d", i+1, i, key)
		}
	}

	if q.Len() != 5 {
		t.Errorf("Expected 5 remaining keys, got %d", q.Len())
	}

	if got := q.PopExpired(0); len(got) != 0 {
		t.Errorf("Nothing should expire at 0, got %v", got)
	}

	q.Clear()
	if q.Len() != 0 {
		t.Errorf("Clear() should empty the heap, len=%d", q.Len())
	}
}
