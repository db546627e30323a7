package outbox

import (
	"mcn/queue"
)

// OutboxState tracks, for one destination chain, the certified block heights
// whose bundles still await acknowledgment of delivery. Heights are queued in
// certification order; marking a height received acknowledges it together
// with everything below it.
type OutboxState struct {
	NextHeightToSchedule uint64               `json:"next_height_to_schedule"`
	Queue                *queue.Queue[uint64] `json:"queue"`
}

func NewOutboxState() *OutboxState {
	return &OutboxState{Queue: queue.New[uint64]()}
}

// Schedule enqueues a certified height for (re)transmission. Stale heights
// are a silent no-op so replaying certificates cannot duplicate deliveries.
// Returns true when the height was newly scheduled.
func (s *OutboxState) Schedule(height uint64) bool {
	if height < s.NextHeightToSchedule {
		return false
	}
	s.Queue.PushBack(height)
	s.NextHeightToSchedule = height + 1
	return true
}

// MarkReceived acknowledges delivery of every queued height <= height and
// returns the heights dequeued. Calling it again with the same or a lower
// height is a no-op.
func (s *OutboxState) MarkReceived(height uint64) []uint64 {
	var acked []uint64
	for {
		head := s.Queue.Front()
		if head == nil || *head > height {
			break
		}
		h, _ := s.Queue.PopFront()
		acked = append(acked, h)
	}
	return acked
}

// MarkDelivered acknowledges one delivered height. The ack only takes effect
// while no earlier scheduled height is still pending: acking past an
// undelivered height would discard it before it was ever delivered, so the
// out-of-order ack is ignored and the earlier height keeps its slot for
// retransmission.
func (s *OutboxState) MarkDelivered(height uint64) bool {
	head := s.Queue.Front()
	if head == nil || *head != height {
		return false
	}
	s.Queue.PopFront()
	return true
}

// PendingHeights returns the heights still awaiting acknowledgment, oldest
// first.
func (s *OutboxState) PendingHeights() []uint64 {
	return s.Queue.Items()
}
