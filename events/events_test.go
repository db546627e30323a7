package events

import (
	"testing"
	"time"

	"mcn/types"
)

func TestEventBus(t *testing.T) {
	eventBus := NewEventBus()

	id, ch := eventBus.Subscribe()
	if count := eventBus.GetTotalSubscriptions(); count != 1 {
		t.Errorf("Expected 1 subscriber, got %d", count)
	}

	chainID := types.ChainID{1}
	blockHash := types.Hash{2}
	go func() {
		eventBus.Publish(NewTipChanged(chainID, 5, blockHash))
	}()

	select {
	case ev := <-ch:
		if ev.Type() != EventTipChanged {
			t.Errorf("Expected TipChanged, got %s", ev.Type())
		}
		tip, ok := ev.(*TipChanged)
		if !ok {
			t.Fatalf("wrong event type %T", ev)
		}
		if tip.Height() != 5 || tip.BlockHash() != blockHash || tip.ChainID() != chainID {
			t.Errorf("event fields wrong: height=%d", tip.Height())
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event")
	}

	if !eventBus.Unsubscribe(id) {
		t.Error("Unsubscribe failed")
	}
	if eventBus.HasSubscriber(id) {
		t.Error("Subscriber still registered after unsubscribe")
	}
	if eventBus.Unsubscribe(id) {
		t.Error("Double unsubscribe succeeded")
	}
}

func TestPublishDoesNotBlockOnFullChannel(t *testing.T) {
	eventBus := NewEventBus()
	_, _ = eventBus.Subscribe()

	// Nobody drains the channel; publishing past the buffer must not stall.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			eventBus.Publish(NewRoundAdvanced(types.ChainID{1}, types.MultiLeaderRound(uint32(i))))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
}
