package queue

import (
	"testing"

	"mcn/jsonx"
)

func TestPushPopOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		q.PushBack(i)
	}
	if q.Len() != 5 {
		t.Fatalf("len %d, want 5", q.Len())
	}
	for i := 0; i < 5; i++ {
		head, ok := q.PopFront()
		if !ok || head != i {
			t.Fatalf("pop %d: got %d ok=%v", i, head, ok)
		}
	}
	if _, ok := q.PopFront(); ok {
		t.Error("pop on empty queue succeeded")
	}
	if q.Front() != nil {
		t.Error("front on empty queue not nil")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	q := New[string]()
	q.PushBack("a")
	clone := q.Clone()
	clone.PopFront()
	clone.PushBack("b")
	if q.Len() != 1 || *q.Front() != "a" {
		t.Error("mutating the clone touched the original")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	q := New[uint64]()
	q.PushBack(1)
	q.PushBack(2)
	data, err := jsonx.Marshal(q)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "[1,2]" {
		t.Errorf("unexpected encoding %s", data)
	}
	var back Queue[uint64]
	if err := jsonx.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Len() != 2 {
		t.Errorf("round trip lost items: %d", back.Len())
	}

	empty := New[uint64]()
	data, err = jsonx.Marshal(empty)
	if err != nil {
		t.Fatalf("marshal empty: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("empty queue must encode as [], got %s", data)
	}
}
