package queue

import "mcn/jsonx"

// Queue is an append/pop-front FIFO used by inboxes and outboxes. It
// marshals as a plain JSON array so queue contents stay part of the
// content-addressed chain state.
type Queue[T any] struct {
	items []T
}

func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

func (q *Queue[T]) Len() int {
	return len(q.items)
}

func (q *Queue[T]) PushBack(item T) {
	q.items = append(q.items, item)
}

// Front returns a pointer to the head without removing it, or nil when empty.
func (q *Queue[T]) Front() *T {
	if len(q.items) == 0 {
		return nil
	}
	return &q.items[0]
}

// PopFront removes and returns the head; ok is false when the queue is empty.
func (q *Queue[T]) PopFront() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}

// At returns a pointer to the i-th item in queue order.
func (q *Queue[T]) At(i int) *T {
	return &q.items[i]
}

// InsertAt inserts item before position i; i == Len() appends.
func (q *Queue[T]) InsertAt(i int, item T) {
	var zero T
	q.items = append(q.items, zero)
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = item
}

// Items returns a copy of the queued items in order.
func (q *Queue[T]) Items() []T {
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}

// Clone returns an independent copy of the queue.
func (q *Queue[T]) Clone() *Queue[T] {
	return &Queue[T]{items: q.Items()}
}

func (q *Queue[T]) MarshalJSON() ([]byte, error) {
	if q.items == nil {
		return []byte("[]"), nil
	}
	return jsonx.Marshal(q.items)
}

func (q *Queue[T]) UnmarshalJSON(data []byte) error {
	return jsonx.Unmarshal(data, &q.items)
}
