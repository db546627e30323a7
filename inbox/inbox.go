package inbox

import (
	"fmt"

	"mcn/errors"
	"mcn/queue"
	"mcn/types"
)

// InboxState tracks, for one origin chain, the bundles that were added by
// certified sender blocks versus the bundles that local blocks have consumed.
// Adds and removes arrive asynchronously and in either order; the two queues
// reconcile them:
//
//   - Added holds bundles received but not yet consumed by a local block.
//   - Removed holds bundles consumed "by anticipation", before delivery.
//
// At steady state at most one of the two queues is non-empty. Additions may
// arrive out of order and slot into Added in cursor position; removals skip
// only skippable bundles. That asymmetry keeps delivery exactly-once without
// blocking on ordering between chains.
type InboxState struct {
	NextToAdd    types.Cursor                    `json:"next_to_add"`
	NextToRemove types.Cursor                    `json:"next_to_remove"`
	Added        *queue.Queue[types.MessageBundle] `json:"added"`
	Removed      *queue.Queue[types.MessageBundle] `json:"removed"`
}

func NewInboxState() *InboxState {
	return &InboxState{
		Added:   queue.New[types.MessageBundle](),
		Removed: queue.New[types.MessageBundle](),
	}
}

// Clone returns an independent copy, used to keep rejected block applications
// side-effect-free: mutations run on the clone and are swapped in on success.
func (s *InboxState) Clone() *InboxState {
	return &InboxState{
		NextToAdd:    s.NextToAdd,
		NextToRemove: s.NextToRemove,
		Added:        s.Added.Clone(),
		Removed:      s.Removed.Clone(),
	}
}

// AddStatus classifies what AddBundle did with a delivered bundle.
type AddStatus int

const (
	// ADD_PENDING means the bundle is newly available for consumption.
	ADD_PENDING AddStatus = iota
	// ADD_RECONCILED means the bundle matched an anticipated removal and
	// was consumed on arrival.
	ADD_RECONCILED
	// ADD_STALE means the bundle was already buffered or already consumed;
	// routine redelivery under at-least-once transport.
	ADD_STALE
)

// AddBundle records a bundle delivered from the origin chain's outbox.
// A bundle already consumed by anticipation must match the head of Removed
// exactly, and reconciliation pops it. Deliveries can arrive out of order:
// a bundle below the high-water cursor that was never buffered slots into
// Added in cursor position, in front of later bundles, so a lost-then-resent
// delivery is never dropped as a redelivery.
func (s *InboxState) AddBundle(bundle types.MessageBundle) (AddStatus, error) {
	cursor := bundle.Cursor()
	if head := s.Removed.Front(); head != nil {
		headCursor := head.Cursor()
		switch {
		case cursor.Cmp(headCursor) > 0:
			// An anticipated removal below this cursor can never be matched
			// by a later addition: removals are never skipped.
			return ADD_STALE, errors.NewError(errors.ErrCodeUnexpectedBundle,
				fmt.Sprintf("add cursor %s skips anticipated removal %s", cursor, headCursor))
		case cursor.Cmp(headCursor) == 0:
			if !bundle.Equal(head) {
				return ADD_STALE, errors.NewError(errors.ErrCodeUnexpectedBundle,
					fmt.Sprintf("added bundle at %s differs from anticipated removal", cursor))
			}
			s.Removed.PopFront()
			s.bumpNextToAdd(cursor)
			return ADD_RECONCILED, nil
		}
	}
	if cursor.Less(s.NextToRemove) {
		// Below the consumption frontier: consumed or skipped already.
		return ADD_STALE, nil
	}
	pos := s.Added.Len()
	for i := 0; i < s.Added.Len(); i++ {
		queued := s.Added.At(i)
		cmp := cursor.Cmp(queued.Cursor())
		if cmp == 0 {
			if !bundle.Equal(queued) {
				return ADD_STALE, errors.NewError(errors.ErrCodeUnexpectedBundle,
					fmt.Sprintf("redelivered bundle at %s differs from buffered bundle", cursor))
			}
			return ADD_STALE, nil
		}
		if cmp < 0 {
			pos = i
			break
		}
	}
	s.Added.InsertAt(pos, bundle)
	s.bumpNextToAdd(cursor)
	return ADD_PENDING, nil
}

// bumpNextToAdd keeps NextToAdd at the high-water successor; a late add below
// it must not move the cursor backward.
func (s *InboxState) bumpNextToAdd(cursor types.Cursor) {
	if next := cursor.Successor(); s.NextToAdd.Less(next) {
		s.NextToAdd = next
	}
}

// RemoveBundle records that a local block consumed the bundle. Skippable
// bundles sitting in front of it in Added are discarded (the block skipped
// them); an unskippable bundle in front is an ordering violation. If the
// bundle has not arrived yet it is queued on Removed as an anticipated
// removal to be reconciled by a later AddBundle.
func (s *InboxState) RemoveBundle(bundle types.MessageBundle) error {
	cursor := bundle.Cursor()
	if cursor.Less(s.NextToRemove) {
		return errors.NewError(errors.ErrCodeUnexpectedBundle,
			fmt.Sprintf("remove cursor %s below next_to_remove %s", cursor, s.NextToRemove))
	}
	for {
		head := s.Added.Front()
		if head == nil {
			break
		}
		headCursor := head.Cursor()
		if headCursor.Cmp(cursor) > 0 {
			break
		}
		if headCursor.Cmp(cursor) == 0 {
			if !bundle.Equal(head) {
				return errors.NewError(errors.ErrCodeUnexpectedBundle,
					fmt.Sprintf("removed bundle at %s differs from delivered bundle", cursor))
			}
			s.Added.PopFront()
			s.NextToRemove = cursor.Successor()
			return nil
		}
		// headCursor < cursor: the block skipped this bundle.
		if !head.IsSkippable() {
			return errors.NewError(errors.ErrCodeUnexpectedBundle,
				fmt.Sprintf("cannot skip unskippable bundle at %s", headCursor))
		}
		s.Added.PopFront()
	}
	s.Removed.PushBack(bundle)
	s.NextToRemove = cursor.Successor()
	return nil
}

// PendingBundles returns the bundles available for the next local block, in
// cursor order.
func (s *InboxState) PendingBundles() []types.MessageBundle {
	return s.Added.Items()
}

// OldestUnskippable returns the timestamp of the oldest pending bundle that a
// block cannot skip, feeding the manager's fallback-duration check. The
// second return is false when every pending bundle is skippable.
func (s *InboxState) OldestUnskippable() (uint64, bool) {
	for _, bundle := range s.Added.Items() {
		if !bundle.IsSkippable() {
			return bundle.Timestamp, true
		}
	}
	return 0, false
}
