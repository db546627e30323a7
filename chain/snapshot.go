package chain

import (
	"time"

	"mcn/committee"
	"mcn/inbox"
	"mcn/manager"
	"mcn/outbox"
	"mcn/types"
)

// Snapshot is the persisted form of a chain. Inbox/outbox maps are keyed by
// the base58 chain id so the snapshot serializes deterministically.
type Snapshot struct {
	ID           types.ChainID                `json:"id"`
	Epoch        types.Epoch                  `json:"epoch"`
	Tip          Tip                          `json:"tip"`
	Closed       bool                         `json:"closed"`
	Seed         uint64                       `json:"seed"`
	ConfirmedLog []types.Hash                 `json:"confirmed_log"`
	ReceivedLog  []ReceivedMessage            `json:"received_log"`
	Inboxes      map[string]*inbox.InboxState  `json:"inboxes"`
	Outboxes     map[string]*outbox.OutboxState `json:"outboxes"`
}

// Snapshot captures the chain state for an atomic batch write.
func (c *Chain) Snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &Snapshot{
		ID:           c.id,
		Epoch:        c.epoch,
		Tip:          c.tip,
		Closed:       c.closed,
		Seed:         c.manager.Seed(),
		ConfirmedLog: append([]types.Hash(nil), c.confirmedLog...),
		ReceivedLog:  append([]ReceivedMessage(nil), c.receivedLog...),
		Inboxes:      make(map[string]*inbox.InboxState, len(c.inboxes)),
		Outboxes:     make(map[string]*outbox.OutboxState, len(c.outboxes)),
	}
	for origin, state := range c.inboxes {
		snap.Inboxes[origin.String()] = state.Clone()
	}
	for dest, state := range c.outboxes {
		snap.Outboxes[dest.String()] = &outbox.OutboxState{
			NextHeightToSchedule: state.NextHeightToSchedule,
			Queue:                state.Queue.Clone(),
		}
	}
	return snap
}

// FromSnapshot rebuilds a chain from its persisted form. Ownership and the
// fallback owner set come from configuration, not the snapshot; the round
// machine restarts at the first round of the tip height with the persisted
// seed.
func FromSnapshot(snap *Snapshot, ownership manager.Ownership,
	fallbackOwners []committee.ValidatorInfo, now time.Time) (*Chain, error) {
	c := NewChain(snap.ID, snap.Epoch, ownership, fallbackOwners, snap.Seed, now)
	c.tip = snap.Tip
	c.closed = snap.Closed
	c.confirmedLog = append([]types.Hash(nil), snap.ConfirmedLog...)
	c.receivedLog = append([]ReceivedMessage(nil), snap.ReceivedLog...)
	for origin, state := range snap.Inboxes {
		var id types.ChainID
		if err := id.UnmarshalText([]byte(origin)); err != nil {
			return nil, err
		}
		c.inboxes[id] = state
	}
	for dest, state := range snap.Outboxes {
		var id types.ChainID
		if err := id.UnmarshalText([]byte(dest)); err != nil {
			return nil, err
		}
		c.outboxes[id] = state
	}
	return c, nil
}
