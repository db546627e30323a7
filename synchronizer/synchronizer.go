package synchronizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mcn/block"
	"mcn/chain"
	"mcn/committee"
	"mcn/consensus"
	"mcn/errors"
	"mcn/events"
	"mcn/logx"
	"mcn/store"
	"mcn/types"
)

// ValidatorEndpoint pairs a validator's address with how to reach it.
type ValidatorEndpoint struct {
	Address  types.Address
	Endpoint string
}

// Synchronizer drives the chains this node tracks: it certifies proposals
// against the committee, delivers certified outgoing bundles into destination
// inboxes (local or remote), retries pending proposals once per round
// advance, and surfaces tip-change notifications on the event bus.
type Synchronizer struct {
	mu sync.Mutex

	chains     map[types.ChainID]*chain.Chain
	registry   *committee.Registry
	chainStore *store.ChainStore
	bus        *events.EventBus
	client     ValidatorClient
	validators []ValidatorEndpoint

	// pending tracks the unconfirmed proposal per chain together with the
	// last round a retry went out in. Retries are bounded by round
	// progression, never by a timer.
	pending map[types.ChainID]*pendingProposal
}

type pendingProposal struct {
	proposal  *block.Proposal
	lastRetry types.Round
}

func NewSynchronizer(registry *committee.Registry, chainStore *store.ChainStore,
	bus *events.EventBus, client ValidatorClient, validators []ValidatorEndpoint) *Synchronizer {
	return &Synchronizer{
		chains:     make(map[types.ChainID]*chain.Chain),
		registry:   registry,
		chainStore: chainStore,
		bus:        bus,
		client:     client,
		validators: validators,
		pending:    make(map[types.ChainID]*pendingProposal),
	}
}

// TrackChain adds a chain to the set this node maintains.
func (s *Synchronizer) TrackChain(c *chain.Chain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains[c.ID()] = c
}

// Chain returns a tracked chain, nil when untracked.
func (s *Synchronizer) Chain(id types.ChainID) *chain.Chain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chains[id]
}

// Certify runs the full certification sequence for a proposal: collect
// validate votes into a validated certificate, collect confirm votes into a
// confirmed certificate, then apply and deliver. In the fast round the first
// phase is skipped. When quorum cannot be reached the proposal stays pending
// and is retried on the next round advance.
func (s *Synchronizer) Certify(ctx context.Context, p *block.Proposal) (*consensus.Cert, error) {
	c := s.Chain(p.Block.Header.ChainID)
	if c == nil {
		return nil, errors.NewError(errors.ErrCodeChainNotFound,
			fmt.Sprintf("chain %s is not tracked", p.Block.Header.ChainID))
	}
	cm, err := s.registry.Get(p.Block.Header.Epoch)
	if err != nil {
		return nil, err
	}
	logx.Debug("SYNC", fmt.Sprintf("certifying chain %s height %d round %s charge %s",
		p.Block.Header.ChainID, p.Block.Header.Height, p.Round, block.ChargeOf(cm.Pricing, p.Block)))

	var confirmed *consensus.Cert
	if p.Round.IsFast() {
		confirmed, err = s.collectProposalVotes(ctx, cm, p)
	} else {
		var validated *consensus.Cert
		validated, err = s.collectProposalVotes(ctx, cm, p)
		if err == nil {
			confirmed, err = s.collectConfirmVotes(ctx, cm, p, validated)
		}
	}
	if err != nil {
		if errors.Is(err, errors.ErrCodeQuorumUnreachable) {
			s.rememberPending(p)
		}
		return nil, err
	}

	s.forgetPending(p.Block.Header.ChainID)
	if err := s.DeliverConfirmed(ctx, confirmed, p.Block); err != nil {
		return confirmed, err
	}
	return confirmed, nil
}

// collectProposalVotes fans the proposal out and aggregates the returned
// votes until quorum. Vote aggregation is a monotonic accumulator: late,
// duplicate and failed responses cannot corrupt it.
func (s *Synchronizer) collectProposalVotes(ctx context.Context, cm *committee.Committee, p *block.Proposal) (*consensus.Cert, error) {
	agg := consensus.NewAggregator(cm, p.Round)
	for _, v := range s.validators {
		vote, err := s.client.ProposeBlock(ctx, v.Endpoint, p)
		if err != nil {
			logx.Warn("SYNC", fmt.Sprintf("validator %s unreachable for proposal: %v", v.Address, err))
			continue
		}
		cert, err := agg.AddVote(vote)
		if err != nil {
			logx.Error("SYNC", fmt.Sprintf("vote from %s rejected: %v", vote.Validator, err))
			continue
		}
		if cert != nil {
			return cert, nil
		}
	}
	return nil, errors.NewError(errors.ErrCodeQuorumUnreachable,
		fmt.Sprintf("cannot certify chain %s height %d round %s yet",
			p.Block.Header.ChainID, p.Block.Header.Height, p.Round))
}

// collectConfirmVotes distributes a validated certificate and aggregates the
// confirm votes it earns.
func (s *Synchronizer) collectConfirmVotes(ctx context.Context, cm *committee.Committee, p *block.Proposal, validated *consensus.Cert) (*consensus.Cert, error) {
	agg := consensus.NewAggregator(cm, p.Round)
	for _, v := range s.validators {
		vote, err := s.client.HandleBlockCertificate(ctx, v.Endpoint, validated, p.Block)
		if err != nil {
			logx.Warn("SYNC", fmt.Sprintf("validator %s unreachable for certificate: %v", v.Address, err))
			continue
		}
		if vote == nil {
			continue
		}
		cert, err := agg.AddVote(vote)
		if err != nil {
			logx.Error("SYNC", fmt.Sprintf("confirm vote from %s rejected: %v", vote.Validator, err))
			continue
		}
		if cert != nil {
			return cert, nil
		}
	}
	return nil, errors.NewError(errors.ErrCodeQuorumUnreachable,
		fmt.Sprintf("cannot confirm chain %s height %d round %s yet",
			p.Block.Header.ChainID, p.Block.Header.Height, p.Round))
}

// DeliverConfirmed applies a confirmed certificate to its chain, persists the
// result atomically, publishes the tip change and routes the block's
// outgoing bundles to their destination inboxes.
func (s *Synchronizer) DeliverConfirmed(ctx context.Context, cert *consensus.Cert, b *block.Block) error {
	c := s.Chain(cert.Value.ChainID)
	if c == nil {
		return errors.NewError(errors.ErrCodeChainNotFound,
			fmt.Sprintf("chain %s is not tracked", cert.Value.ChainID))
	}
	outcome, err := c.ApplyConfirmed(cert, b, time.Now())
	if err != nil {
		return err
	}
	if err := s.chainStore.SaveConfirmed(c.Snapshot(), b, cert); err != nil {
		return errors.NewError(errors.ErrCodeStorage, err.Error())
	}
	s.bus.Publish(events.NewTipChanged(c.ID(), b.Header.Height, b.Hash()))
	if outcome.Closed {
		logx.Info("SYNC", fmt.Sprintf("chain %s closed at height %d", c.ID(), b.Header.Height))
	}

	for dest, bundles := range outcome.OutgoingBundles {
		s.routeBundles(ctx, c, dest, b.Header.Height, bundles)
	}
	return nil
}

// routeBundles delivers one destination's bundles: directly into a local
// chain's inbox, or over the wire for remote chains. Local delivery
// acknowledges the outbox immediately; remote delivery acknowledges whatever
// height the farthest validator confirmed.
func (s *Synchronizer) routeBundles(ctx context.Context, source *chain.Chain, dest types.ChainID, height uint64, bundles []types.MessageBundle) {
	if local := s.Chain(dest); local != nil {
		added, err := local.ReceiveBundles(source.ID(), bundles)
		if err != nil {
			logx.Error("SYNC", fmt.Sprintf("local delivery %s -> %s failed: %v", source.ID(), dest, err))
			return
		}
		source.AckDelivered(dest, height)
		if err := s.chainStore.SaveChain(local.Snapshot()); err != nil {
			logx.Error("SYNC", fmt.Sprintf("failed to persist chain %s: %v", dest, err))
		}
		s.bus.Publish(events.NewBundlesReceived(dest, source.ID(), added))
		return
	}

	var bestAck uint64
	acked := false
	for _, v := range s.validators {
		ack, err := s.client.CrossChainRequest(ctx, v.Endpoint, dest, source.ID(), bundles)
		if err != nil {
			logx.Warn("SYNC", fmt.Sprintf("cross-chain request to %s failed: %v", v.Address, err))
			continue
		}
		if !acked || ack > bestAck {
			bestAck = ack
			acked = true
		}
	}
	if acked {
		source.AckDelivered(dest, bestAck)
	}
}

// RetransmitPending resends every unacknowledged outbox height of a chain.
// Used on startup and when a destination reports a gap.
func (s *Synchronizer) RetransmitPending(ctx context.Context, id types.ChainID) error {
	c := s.Chain(id)
	if c == nil {
		return errors.NewError(errors.ErrCodeChainNotFound, fmt.Sprintf("chain %s is not tracked", id))
	}
	for dest, heights := range c.PendingOutbound() {
		for _, height := range heights {
			blockHash, certHash, err := s.confirmedHashAt(id, height)
			if err != nil {
				return err
			}
			b, err := s.chainStore.Block(blockHash)
			if err != nil {
				return err
			}
			if b == nil {
				return errors.NewError(errors.ErrCodeStorage,
					fmt.Sprintf("missing confirmed block %s at height %d", blockHash, height))
			}
			bundles := b.OutgoingBundles(certHash)[dest]
			if len(bundles) > 0 {
				s.routeBundles(ctx, c, dest, height, bundles)
			}
		}
	}
	return nil
}

func (s *Synchronizer) confirmedHashAt(id types.ChainID, height uint64) (types.Hash, types.Hash, error) {
	var foundBlock, foundCert types.Hash
	err := s.chainStore.ConfirmedRange(id, height, func(h uint64, blockHash, certHash types.Hash) bool {
		if h == height {
			foundBlock = blockHash
			foundCert = certHash
			return false
		}
		return true
	})
	if err != nil {
		return types.Hash{}, types.Hash{}, err
	}
	if foundBlock.IsZero() {
		return types.Hash{}, types.Hash{}, errors.NewError(errors.ErrCodeStorage,
			fmt.Sprintf("no confirmed block at height %d for chain %s", height, id))
	}
	return foundBlock, foundCert, nil
}

func (s *Synchronizer) rememberPending(p *block.Proposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[p.Block.Header.ChainID] = &pendingProposal{proposal: p, lastRetry: p.Round}
}

func (s *Synchronizer) forgetPending(id types.ChainID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// PendingProposal returns the unconfirmed proposal for a chain, if any.
func (s *Synchronizer) PendingProposal(id types.ChainID) *block.Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.pending[id]; ok {
		return entry.proposal
	}
	return nil
}

// OnRoundAdvance retries the pending proposal of a chain after its round
// moved. The retry happens at most once per round advance: a superseded
// proposal is abandoned, not cancelled, and its late completion is ignored.
func (s *Synchronizer) OnRoundAdvance(ctx context.Context, id types.ChainID, round types.Round) {
	s.mu.Lock()
	entry, ok := s.pending[id]
	if !ok || !entry.lastRetry.Less(round) {
		s.mu.Unlock()
		return
	}
	entry.lastRetry = round
	proposal := entry.proposal
	s.mu.Unlock()

	s.bus.Publish(events.NewRoundAdvanced(id, round))
	logx.Info("SYNC", fmt.Sprintf("retrying pending proposal for chain %s in round %s", id, round))
	if _, err := s.Certify(ctx, proposal); err != nil {
		logx.Warn("SYNC", fmt.Sprintf("retry for chain %s round %s failed: %v", id, round, err))
	}
}
