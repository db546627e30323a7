package synchronizer

import (
	"context"
	"fmt"
	"time"

	"mcn/chain"
	"mcn/consensus"
	"mcn/logx"
)

// Run drives liveness for every tracked chain until ctx ends. On startup it
// retransmits unacknowledged outbox heights; on every tick it checks each
// chain for an aged unskippable bundle, collects timeout votes for expired
// round deadlines, and retries the pending proposal after a round advance.
func (s *Synchronizer) Run(ctx context.Context, interval time.Duration) {
	for _, c := range s.trackedChains() {
		if err := s.RetransmitPending(ctx, c.ID()); err != nil {
			logx.Warn("SYNC", fmt.Sprintf("startup retransmission for chain %s: %v", c.ID(), err))
		}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, time.Now())
		}
	}
}

// Tick runs one liveness pass over the tracked chains.
func (s *Synchronizer) Tick(ctx context.Context, now time.Time) {
	for _, c := range s.trackedChains() {
		m := c.Manager()
		before := m.CurrentRound()
		if ts, ok := c.OldestUnskippable(); ok {
			m.CheckFallback(now, ts)
		}
		if m.TimedOut(now) {
			s.requestTimeout(ctx, c, now)
		}
		if after := m.CurrentRound(); before.Less(after) {
			s.OnRoundAdvance(ctx, c.ID(), after)
		}
	}
}

func (s *Synchronizer) trackedChains() []*chain.Chain {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*chain.Chain, 0, len(s.chains))
	for _, c := range s.chains {
		out = append(out, c)
	}
	return out
}

// requestTimeout collects timeout votes on the chain's expired round into a
// timeout certificate and distributes it, so the whole committee leaves the
// dead round together.
func (s *Synchronizer) requestTimeout(ctx context.Context, c *chain.Chain, now time.Time) {
	cm, err := s.registry.Get(c.Epoch())
	if err != nil {
		logx.Error("SYNC", fmt.Sprintf("no committee for chain %s epoch %d: %v", c.ID(), c.Epoch(), err))
		return
	}
	round := c.Manager().CurrentRound()
	agg := consensus.NewAggregator(cm, round)
	var cert *consensus.Cert
	for _, v := range s.validators {
		vote, err := s.client.RequestTimeout(ctx, v.Endpoint, c.ID())
		if err != nil {
			logx.Warn("SYNC", fmt.Sprintf("timeout vote from %s failed: %v", v.Address, err))
			continue
		}
		quorum, err := agg.AddVote(vote)
		if err != nil {
			logx.Error("SYNC", fmt.Sprintf("timeout vote from %s rejected: %v", vote.Validator, err))
			continue
		}
		if quorum != nil {
			cert = quorum
			break
		}
	}
	if cert == nil {
		logx.Warn("SYNC", fmt.Sprintf("no timeout quorum for chain %s round %s", c.ID(), round))
		return
	}
	c.Manager().HandleTimeoutCert(cert, now)
	for _, v := range s.validators {
		if _, err := s.client.HandleBlockCertificate(ctx, v.Endpoint, cert, nil); err != nil {
			logx.Warn("SYNC", fmt.Sprintf("timeout certificate to %s failed: %v", v.Address, err))
		}
	}
}
