package chain

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"mcn/block"
	"mcn/committee"
	"mcn/consensus"
	"mcn/errors"
	"mcn/inbox"
	"mcn/logx"
	"mcn/manager"
	"mcn/outbox"
	"mcn/types"
)

// Tip is a chain's running head state.
type Tip struct {
	LastBlockHash types.Hash `json:"last_block_hash"`
	NextHeight    uint64     `json:"next_height"`
	BlockCount    uint64     `json:"block_count"`
	MessageCount  uint64     `json:"message_count"`
}

// ReceivedMessage is one received-log entry: a bundle and where it came from.
type ReceivedMessage struct {
	Origin types.ChainID       `json:"origin"`
	Bundle types.MessageBundle `json:"bundle"`
}

// OpenedChain describes a child chain created by an open-chain operation.
type OpenedChain struct {
	ID     types.ChainID
	Owners []types.Address
}

// ApplyOutcome is everything a confirmed block application produced for the
// synchronizer: bundles to deliver, chains to create, whether this chain
// closed.
type ApplyOutcome struct {
	OutgoingBundles map[types.ChainID][]types.MessageBundle
	OpenedChains    []OpenedChain
	Closed          bool
}

// Chain owns one microchain's mutable state. All mutation happens under the
// chain mutex: one in-flight proposal/certification sequence at a time, and
// every rejection leaves the state byte-identical to before the attempt.
// Different chains share nothing mutable but the committee registry.
type Chain struct {
	mu sync.Mutex

	id      types.ChainID
	epoch   types.Epoch
	tip     Tip
	closed  bool
	manager *manager.ChainManager

	confirmedLog []types.Hash
	receivedLog  []ReceivedMessage
	inboxes      map[types.ChainID]*inbox.InboxState
	outboxes     map[types.ChainID]*outbox.OutboxState
}

func NewChain(id types.ChainID, epoch types.Epoch, ownership manager.Ownership,
	fallbackOwners []committee.ValidatorInfo, seed uint64, now time.Time) *Chain {
	return &Chain{
		id:       id,
		epoch:    epoch,
		manager:  manager.NewChainManager(id, epoch, ownership, fallbackOwners, seed, now),
		inboxes:  make(map[types.ChainID]*inbox.InboxState),
		outboxes: make(map[types.ChainID]*outbox.OutboxState),
	}
}

func (c *Chain) ID() types.ChainID {
	return c.id
}

func (c *Chain) Epoch() types.Epoch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

func (c *Chain) Tip() Tip {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tip
}

func (c *Chain) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Chain) Manager() *manager.ChainManager {
	return c.manager
}

// HandleProposal validates a proposal against the chain position and body
// hashes, then feeds it to the round state machine. On success it returns the
// value this validator should vote on: confirmed directly in the fast round,
// validated otherwise.
func (c *Chain) HandleProposal(p *block.Proposal, now time.Time) (*consensus.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.NewError(errors.ErrCodeChainClosed,
			fmt.Sprintf("chain %s is closed", c.id))
	}
	if p.Block.Header.ChainID != c.id {
		return nil, errors.NewError(errors.ErrCodeChainNotFound,
			fmt.Sprintf("proposal for chain %s handled by chain %s", p.Block.Header.ChainID, c.id))
	}
	if p.Block.Header.Epoch != c.epoch {
		return nil, errors.NewError(errors.ErrCodeUnknownEpoch,
			fmt.Sprintf("proposal epoch %d, chain epoch %d", p.Block.Header.Epoch, c.epoch))
	}
	if err := block.ValidateAgainstTip(p.Block, c.tip.LastBlockHash, c.tip.NextHeight); err != nil {
		return nil, err
	}
	if err := block.ValidateBody(p.Block); err != nil {
		return nil, err
	}
	pub, err := consensus.PublicKeyOf(p.Owner)
	if err != nil || !p.VerifySignature(pub) {
		return nil, errors.NewError(errors.ErrCodeInvalidSignature,
			fmt.Sprintf("bad proposal signature from %s", p.Owner))
	}
	if err := c.checkProposedBundles(p.Block); err != nil {
		return nil, err
	}
	if err := c.manager.HandleProposal(p, now); err != nil {
		return nil, err
	}

	blockHash := p.Block.Hash()
	var value consensus.Value
	if p.Round.IsFast() {
		value = consensus.ConfirmedValue(c.id, c.epoch, p.Block.Header.Height, p.Round, blockHash)
	} else {
		value = consensus.ValidatedValue(c.id, c.epoch, p.Block.Header.Height, p.Round, blockHash)
	}
	return &value, nil
}

// checkProposedBundles dry-runs the inbox removals the block implies on
// cloned state, so an invalid proposal cannot disturb the real queues.
func (c *Chain) checkProposedBundles(b *block.Block) error {
	clones := make(map[types.ChainID]*inbox.InboxState)
	for i := range b.Body.IncomingBundles {
		incoming := &b.Body.IncomingBundles[i]
		clone, ok := clones[incoming.Origin]
		if !ok {
			clone = c.inboxState(incoming.Origin).Clone()
			clones[incoming.Origin] = clone
		}
		if err := clone.RemoveBundle(incoming.Bundle); err != nil {
			return err
		}
	}
	return nil
}

// ApplyConfirmed applies the block certified by a confirmed certificate:
// consumes its incoming bundles from the inboxes, schedules its outgoing
// bundles in the outboxes, appends to the confirmed log, bumps the tip and
// resets the round machine for the next height. Inbox mutation happens on
// clones swapped in atomically, so a failing application leaves the chain
// untouched.
func (c *Chain) ApplyConfirmed(cert *consensus.Cert, b *block.Block, now time.Time) (*ApplyOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.NewError(errors.ErrCodeChainClosed,
			fmt.Sprintf("chain %s is closed", c.id))
	}
	if !cert.IsConfirmed() {
		return nil, errors.NewError(errors.ErrCodeMissingCertificate, "certificate is not a confirmation")
	}
	blockHash := b.Hash()
	if cert.Value.BlockHash != blockHash {
		return nil, errors.NewError(errors.ErrCodeInvalidBlockHash,
			fmt.Sprintf("certificate is for %s, block is %s", cert.Value.BlockHash, blockHash))
	}
	if b.Header.Height != c.tip.NextHeight {
		return nil, errors.NewError(errors.ErrCodeStaleHeight,
			fmt.Sprintf("confirmed height %d, chain expects %d", b.Header.Height, c.tip.NextHeight))
	}
	if err := block.ValidateBody(b); err != nil {
		return nil, err
	}

	// Stage inbox removals on clones.
	staged := make(map[types.ChainID]*inbox.InboxState)
	for i := range b.Body.IncomingBundles {
		incoming := &b.Body.IncomingBundles[i]
		clone, ok := staged[incoming.Origin]
		if !ok {
			clone = c.inboxState(incoming.Origin).Clone()
			staged[incoming.Origin] = clone
		}
		if err := clone.RemoveBundle(incoming.Bundle); err != nil {
			return nil, err
		}
	}
	for origin, clone := range staged {
		c.inboxes[origin] = clone
	}

	certHash := cert.Hash()
	outgoing := b.OutgoingBundles(certHash)
	for dest := range outgoing {
		c.outboxState(dest).Schedule(b.Header.Height)
	}

	outcome := &ApplyOutcome{OutgoingBundles: outgoing}
	c.applySystemOperations(b, outcome)

	c.confirmedLog = append(c.confirmedLog, blockHash)
	c.tip.LastBlockHash = blockHash
	c.tip.NextHeight = b.Header.Height + 1
	c.tip.BlockCount++
	for _, msgs := range b.Body.Messages {
		c.tip.MessageCount += uint64(len(msgs))
	}
	c.manager.ResetForHeight(c.tip.NextHeight, now)

	logx.Info("CHAIN", fmt.Sprintf("chain %s confirmed height %d hash %s", c.id, b.Header.Height, blockHash))
	return outcome, nil
}

// applySystemOperations handles the protocol-fixed effects of system
// operations on chain topology; everything else happened in the execution
// oracle at build time.
func (c *Chain) applySystemOperations(b *block.Block, outcome *ApplyOutcome) {
	for i := range b.Body.Operations {
		op := &b.Body.Operations[i]
		if !op.IsSystem() {
			continue
		}
		switch op.System.Kind {
		case types.OP_OPEN_CHAIN:
			child := types.DeriveChainID(c.id, b.Header.Height, uint32(i))
			outcome.OpenedChains = append(outcome.OpenedChains, OpenedChain{
				ID:     child,
				Owners: op.System.NewOwners,
			})
		case types.OP_CLOSE_CHAIN:
			c.closed = true
			outcome.Closed = true
		}
	}
}

// ReceiveBundles feeds bundles certified by the origin chain into this
// chain's inbox and the received log. Deliveries arriving out of order are
// buffered in cursor position; redeliveries of bundles already buffered or
// consumed are skipped, so delivery stays exactly-once under at-least-once
// transport.
func (c *Chain) ReceiveBundles(origin types.ChainID, bundles []types.MessageBundle) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.inboxState(origin)
	added := 0
	for _, bundle := range bundles {
		status, err := state.AddBundle(bundle)
		if err != nil {
			return added, err
		}
		if status == inbox.ADD_STALE {
			continue
		}
		c.receivedLog = append(c.receivedLog, ReceivedMessage{Origin: origin, Bundle: bundle})
		if status == inbox.ADD_PENDING {
			added++
		}
	}
	return added, nil
}

// AckDelivered acknowledges that the destination chain received this height's
// bundles from our outbox. An ack for a later height while an earlier one is
// still pending is ignored; the earlier height stays queued for
// retransmission and the later one is acked after it.
func (c *Chain) AckDelivered(dest types.ChainID, height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state, ok := c.outboxes[dest]; ok {
		state.MarkDelivered(height)
	}
}

// PendingIncoming collects the bundles every inbox holds for the next block,
// grouped by origin in stable order.
func (c *Chain) PendingIncoming() []types.IncomingBundle {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []types.IncomingBundle
	for _, origin := range c.sortedInboxOrigins() {
		for _, bundle := range c.inboxes[origin].PendingBundles() {
			out = append(out, types.IncomingBundle{
				Origin: origin,
				Bundle: bundle,
				Action: types.ACTION_ACCEPT,
			})
		}
	}
	return out
}

// PendingOutbound returns, per destination, the certified heights still
// awaiting delivery acknowledgment.
func (c *Chain) PendingOutbound() map[types.ChainID][]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[types.ChainID][]uint64)
	for dest, state := range c.outboxes {
		if heights := state.PendingHeights(); len(heights) > 0 {
			out[dest] = heights
		}
	}
	return out
}

// OldestUnskippable returns the oldest pending bundle timestamp that a block
// cannot skip, across all inboxes; ok is false when there is none.
func (c *Chain) OldestUnskippable() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var oldest uint64
	found := false
	for _, state := range c.inboxes {
		if ts, ok := state.OldestUnskippable(); ok && (!found || ts < oldest) {
			oldest = ts
			found = true
		}
	}
	return oldest, found
}

// ConfirmedLog returns the ordered confirmed block hashes.
func (c *Chain) ConfirmedLog() []types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Hash, len(c.confirmedLog))
	copy(out, c.confirmedLog)
	return out
}

// ReceivedLog returns the received-message log entries for an origin, all
// origins when origin is zero.
func (c *Chain) ReceivedLog(origin types.ChainID) []ReceivedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []ReceivedMessage
	for _, entry := range c.receivedLog {
		if origin.IsZero() || entry.Origin == origin {
			out = append(out, entry)
		}
	}
	return out
}

func (c *Chain) inboxState(origin types.ChainID) *inbox.InboxState {
	state, ok := c.inboxes[origin]
	if !ok {
		state = inbox.NewInboxState()
		c.inboxes[origin] = state
	}
	return state
}

func (c *Chain) outboxState(dest types.ChainID) *outbox.OutboxState {
	state, ok := c.outboxes[dest]
	if !ok {
		state = outbox.NewOutboxState()
		c.outboxes[dest] = state
	}
	return state
}

func (c *Chain) sortedInboxOrigins() []types.ChainID {
	origins := make([]types.ChainID, 0, len(c.inboxes))
	for origin := range c.inboxes {
		origins = append(origins, origin)
	}
	// Stable order; inbox iteration order must not leak map randomness into
	// proposals.
	sort.Slice(origins, func(i, j int) bool {
		return bytes.Compare(origins[i][:], origins[j][:]) < 0
	})
	return origins
}
