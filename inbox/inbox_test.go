package inbox

import (
	"testing"

	fuzz "github.com/google/gofuzz"

	"mcn/errors"
	"mcn/types"
)

func simpleBundle(height uint64, txIndex uint32, payload string) types.MessageBundle {
	return types.MessageBundle{
		Height:    height,
		Timestamp: height * 1000,
		TxIndex:   txIndex,
		Messages: []types.PostedMessage{
			{Kind: types.SIMPLE_MESSAGE, Payload: []byte(payload)},
		},
	}
}

func trackedBundle(height uint64, txIndex uint32, payload string) types.MessageBundle {
	b := simpleBundle(height, txIndex, payload)
	b.Messages[0].Kind = types.TRACKED_MESSAGE
	return b
}

func TestAddThenRemove(t *testing.T) {
	s := NewInboxState()
	b := simpleBundle(1, 0, "hello")

	status, err := s.AddBundle(b)
	if err != nil {
		t.Fatalf("AddBundle failed: %v", err)
	}
	if status != ADD_PENDING {
		t.Errorf("expected bundle to be pending, got %d", status)
	}
	if pending := s.PendingBundles(); len(pending) != 1 {
		t.Fatalf("expected 1 pending bundle, got %d", len(pending))
	}

	if err := s.RemoveBundle(b); err != nil {
		t.Fatalf("RemoveBundle failed: %v", err)
	}
	if pending := s.PendingBundles(); len(pending) != 0 {
		t.Errorf("expected no pending bundles, got %d", len(pending))
	}
	want := types.Cursor{Height: 1, Index: 1}
	if s.NextToAdd != want || s.NextToRemove != want {
		t.Errorf("cursors not advanced: add=%s remove=%s", s.NextToAdd, s.NextToRemove)
	}
}

// A block can consume a bundle before the bundle's cross-chain delivery
// arrives. The removal is queued by anticipation and the late addition
// reconciles against it without ever becoming available for consumption.
func TestRemoveBeforeAdd(t *testing.T) {
	s := NewInboxState()
	b := trackedBundle(3, 1, "early consumption")

	if err := s.RemoveBundle(b); err != nil {
		t.Fatalf("anticipated RemoveBundle failed: %v", err)
	}
	if s.Removed.Len() != 1 {
		t.Fatalf("expected 1 anticipated removal, got %d", s.Removed.Len())
	}

	status, err := s.AddBundle(b)
	if err != nil {
		t.Fatalf("reconciling AddBundle failed: %v", err)
	}
	if status != ADD_RECONCILED {
		t.Errorf("expected reconciliation, got %d", status)
	}
	if s.Removed.Len() != 0 || s.Added.Len() != 0 {
		t.Errorf("queues not reconciled: added=%d removed=%d", s.Added.Len(), s.Removed.Len())
	}
}

// Out-of-order anticipation: the receiver consumes bundles from heights 1 and
// 2 by anticipation, then the deliveries arrive in order and drain the
// removal queue one by one.
func TestAnticipatedRemovalsDrainInOrder(t *testing.T) {
	s := NewInboxState()
	b1 := trackedBundle(1, 0, "first")
	b2 := trackedBundle(2, 0, "second")

	if err := s.RemoveBundle(b1); err != nil {
		t.Fatalf("remove b1: %v", err)
	}
	if err := s.RemoveBundle(b2); err != nil {
		t.Fatalf("remove b2: %v", err)
	}

	// Delivery of b2 before b1 must fail: it would skip the anticipated
	// removal of b1, which is never allowed.
	if _, err := s.AddBundle(b2); !errors.Is(err, errors.ErrCodeUnexpectedBundle) {
		t.Fatalf("expected unexpected_bundle for out-of-order delivery, got %v", err)
	}

	if _, err := s.AddBundle(b1); err != nil {
		t.Fatalf("add b1: %v", err)
	}
	if _, err := s.AddBundle(b2); err != nil {
		t.Fatalf("add b2 after b1: %v", err)
	}
	if s.Removed.Len() != 0 {
		t.Errorf("removal queue should be drained, has %d", s.Removed.Len())
	}
}

func TestRedeliveredAddIsStale(t *testing.T) {
	s := NewInboxState()
	b := simpleBundle(5, 2, "x")
	if _, err := s.AddBundle(b); err != nil {
		t.Fatalf("first add: %v", err)
	}
	status, err := s.AddBundle(b)
	if err != nil || status != ADD_STALE {
		t.Errorf("replayed add: status=%d err=%v", status, err)
	}
	if s.Added.Len() != 1 {
		t.Errorf("replayed add duplicated the bundle, %d buffered", s.Added.Len())
	}

	// Same cursor, different content is a violation, not a redelivery.
	forged := simpleBundle(5, 2, "forged")
	if _, err := s.AddBundle(forged); !errors.Is(err, errors.ErrCodeUnexpectedBundle) {
		t.Errorf("expected unexpected_bundle for forged redelivery, got %v", err)
	}

	// A bundle already consumed resolves stale too.
	if err := s.RemoveBundle(b); err != nil {
		t.Fatalf("remove: %v", err)
	}
	status, err = s.AddBundle(b)
	if err != nil || status != ADD_STALE {
		t.Errorf("post-consumption redelivery: status=%d err=%v", status, err)
	}
}

// Spec ordering scenario: deliveries arrive 2, 1, 1, 3. The early bundle 2 is
// buffered, the late bundle 1 slots in front of it instead of being dropped
// as a redelivery, the true redelivery of 1 is ignored, and consumption
// drains all three in cursor order exactly once.
func TestOutOfOrderAdditionsBuffer(t *testing.T) {
	s := NewInboxState()
	b1 := trackedBundle(1, 0, "one")
	b2 := trackedBundle(2, 0, "two")
	b3 := trackedBundle(3, 0, "three")

	if status, err := s.AddBundle(b2); err != nil || status != ADD_PENDING {
		t.Fatalf("add b2 first: status=%d err=%v", status, err)
	}
	if status, err := s.AddBundle(b1); err != nil || status != ADD_PENDING {
		t.Fatalf("late add b1: status=%d err=%v", status, err)
	}
	if status, err := s.AddBundle(b1); err != nil || status != ADD_STALE {
		t.Fatalf("redelivered b1: status=%d err=%v", status, err)
	}
	if status, err := s.AddBundle(b3); err != nil || status != ADD_PENDING {
		t.Fatalf("add b3: status=%d err=%v", status, err)
	}

	pending := s.PendingBundles()
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending bundles, got %d", len(pending))
	}
	for i, want := range []uint64{1, 2, 3} {
		if pending[i].Height != want {
			t.Errorf("pending[%d] height %d, want %d", i, pending[i].Height, want)
		}
	}
	if want := (types.Cursor{Height: 3, Index: 1}); s.NextToAdd != want {
		t.Errorf("next_to_add %s, want %s", s.NextToAdd, want)
	}

	for _, b := range []types.MessageBundle{b1, b2, b3} {
		if err := s.RemoveBundle(b); err != nil {
			t.Fatalf("remove height %d: %v", b.Height, err)
		}
	}
	if s.Added.Len() != 0 || s.Removed.Len() != 0 {
		t.Errorf("queues not empty: added=%d removed=%d", s.Added.Len(), s.Removed.Len())
	}
}

func TestAnticipationContentMismatch(t *testing.T) {
	s := NewInboxState()
	if err := s.RemoveBundle(trackedBundle(1, 0, "consumed")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	forged := trackedBundle(1, 0, "different payload")
	if _, err := s.AddBundle(forged); !errors.Is(err, errors.ErrCodeUnexpectedBundle) {
		t.Errorf("expected unexpected_bundle for content mismatch, got %v", err)
	}
	// The failed add must leave the anticipation in place for the real bundle.
	if _, err := s.AddBundle(trackedBundle(1, 0, "consumed")); err != nil {
		t.Errorf("genuine bundle rejected after forged attempt: %v", err)
	}
}

func TestRemoveSkipsSkippableBundles(t *testing.T) {
	s := NewInboxState()
	skip := simpleBundle(1, 0, "skippable")
	keep := trackedBundle(2, 0, "kept")
	if _, err := s.AddBundle(skip); err != nil {
		t.Fatalf("add skip: %v", err)
	}
	if _, err := s.AddBundle(keep); err != nil {
		t.Fatalf("add keep: %v", err)
	}

	// Consuming keep directly discards the skippable bundle in front of it.
	if err := s.RemoveBundle(keep); err != nil {
		t.Fatalf("remove keep: %v", err)
	}
	if s.Added.Len() != 0 {
		t.Errorf("skippable bundle not discarded, %d left", s.Added.Len())
	}
}

func TestRemoveCannotSkipUnskippable(t *testing.T) {
	s := NewInboxState()
	protected := trackedBundle(1, 0, "must handle")
	later := simpleBundle(2, 0, "later")
	if _, err := s.AddBundle(protected); err != nil {
		t.Fatalf("add protected: %v", err)
	}
	if _, err := s.AddBundle(later); err != nil {
		t.Fatalf("add later: %v", err)
	}
	if err := s.RemoveBundle(later); !errors.Is(err, errors.ErrCodeUnexpectedBundle) {
		t.Errorf("expected unexpected_bundle when skipping tracked bundle, got %v", err)
	}
	// The failed removal must not have consumed anything.
	if s.Added.Len() != 2 {
		t.Errorf("failed removal mutated the queue, %d left", s.Added.Len())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewInboxState()
	if _, err := s.AddBundle(simpleBundle(1, 0, "a")); err != nil {
		t.Fatalf("add: %v", err)
	}
	clone := s.Clone()
	if err := clone.RemoveBundle(simpleBundle(1, 0, "a")); err != nil {
		t.Fatalf("remove on clone: %v", err)
	}
	if s.Added.Len() != 1 {
		t.Error("mutating the clone touched the original")
	}
	if clone.Added.Len() != 0 {
		t.Error("clone removal had no effect")
	}
}

func TestOldestUnskippable(t *testing.T) {
	s := NewInboxState()
	if _, ok := s.OldestUnskippable(); ok {
		t.Error("empty inbox should have no unskippable bundle")
	}
	if _, err := s.AddBundle(simpleBundle(1, 0, "skippable")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, ok := s.OldestUnskippable(); ok {
		t.Error("all-skippable inbox should report none")
	}
	tracked := trackedBundle(2, 0, "tracked")
	if _, err := s.AddBundle(tracked); err != nil {
		t.Fatalf("add: %v", err)
	}
	ts, ok := s.OldestUnskippable()
	if !ok || ts != tracked.Timestamp {
		t.Errorf("expected timestamp %d, got %d ok=%v", tracked.Timestamp, ts, ok)
	}
}

// Randomized exactly-once check: every bundle added in cursor order and then
// removed in the same order is consumed exactly once, and the queues end
// empty no matter the payload contents.
func TestFuzzedAddRemoveSequence(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(1, 4)
	s := NewInboxState()
	var bundles []types.MessageBundle
	for height := uint64(1); height <= 50; height++ {
		var payload []byte
		f.Fuzz(&payload)
		b := types.MessageBundle{
			Height:    height,
			Timestamp: height,
			TxIndex:   uint32(height % 3),
			Messages: []types.PostedMessage{
				{Kind: types.TRACKED_MESSAGE, Payload: payload},
			},
		}
		bundles = append(bundles, b)
		status, err := s.AddBundle(b)
		if err != nil {
			t.Fatalf("add height %d: %v", height, err)
		}
		if status != ADD_PENDING {
			t.Fatalf("bundle at height %d not pending", height)
		}
	}
	for _, b := range bundles {
		if err := s.RemoveBundle(b); err != nil {
			t.Fatalf("remove height %d: %v", b.Height, err)
		}
	}
	if s.Added.Len() != 0 || s.Removed.Len() != 0 {
		t.Errorf("queues not empty: added=%d removed=%d", s.Added.Len(), s.Removed.Len())
	}
}
