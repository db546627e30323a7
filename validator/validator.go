package validator

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"mcn/block"
	"mcn/chain"
	"mcn/committee"
	"mcn/consensus"
	"mcn/errors"
	"mcn/logx"
	"mcn/types"
)

// ChainSet resolves the chains a validator maintains.
type ChainSet interface {
	Chain(id types.ChainID) *chain.Chain
}

// Applier applies a confirmed certificate to its chain and routes the
// resulting bundles; the synchronizer implements it.
type Applier interface {
	DeliverConfirmed(ctx context.Context, cert *consensus.Cert, b *block.Block) error
}

// Validator implements the server side of the protocol: it turns proposals
// into votes, certificates into confirm votes or block applications, and
// cross-chain requests into inbox additions. Every handler is idempotent;
// the transport may deliver each request more than once.
type Validator struct {
	address  types.Address
	priv     ed25519.PrivateKey
	registry *committee.Registry
	chains   ChainSet
	applier  Applier
}

func NewValidator(priv ed25519.PrivateKey, registry *committee.Registry, chains ChainSet, applier Applier) *Validator {
	return &Validator{
		address:  consensus.AddressOf(priv.Public().(ed25519.PublicKey)),
		priv:     priv,
		registry: registry,
		chains:   chains,
		applier:  applier,
	}
}

func (v *Validator) Address() types.Address {
	return v.address
}

// HandleProposal validates a proposal against the committee's charge cap and
// the chain and round state, then returns this validator's vote: confirm in
// the fast round, validate otherwise. Re-sent proposals earn the same vote
// again.
func (v *Validator) HandleProposal(ctx context.Context, p *block.Proposal) (*consensus.Vote, error) {
	c := v.chains.Chain(p.Block.Header.ChainID)
	if c == nil {
		return nil, errors.NewError(errors.ErrCodeChainNotFound,
			fmt.Sprintf("chain %s not tracked", p.Block.Header.ChainID))
	}
	cm, err := v.registry.Get(p.Block.Header.Epoch)
	if err != nil {
		return nil, err
	}
	if charge := block.ChargeOf(cm.Pricing, p.Block); cm.Pricing.ExceedsCap(charge) {
		return nil, errors.NewError(errors.ErrCodeChargeExceeded,
			fmt.Sprintf("block charge %s over cap %s", charge, cm.Pricing.MaximumBlockCharge))
	}
	value, err := c.HandleProposal(p, time.Now())
	if err != nil {
		logx.Warn("VALIDATOR", fmt.Sprintf("proposal for chain %s height %d rejected: %v",
			p.Block.Header.ChainID, p.Block.Header.Height, err))
		return nil, err
	}
	return consensus.NewVote(*value, v.address, v.priv), nil
}

// HandleCertificate processes a certificate. A timeout certificate advances
// the round machine; a validated certificate locks the block and earns a
// confirm vote; a confirmed certificate is applied to the chain. All three
// are idempotent on redelivery.
func (v *Validator) HandleCertificate(ctx context.Context, cert *consensus.Cert, b *block.Block) (*consensus.Vote, error) {
	cm, err := v.registry.Get(cert.Value.Epoch)
	if err != nil {
		return nil, err
	}
	if err := cert.Verify(cm); err != nil {
		return nil, err
	}
	c := v.chains.Chain(cert.Value.ChainID)
	if c == nil {
		return nil, errors.NewError(errors.ErrCodeChainNotFound,
			fmt.Sprintf("chain %s not tracked", cert.Value.ChainID))
	}

	switch cert.Value.Kind {
	case consensus.TIMEOUT_VALUE:
		c.Manager().HandleTimeoutCert(cert, time.Now())
		return nil, nil

	case consensus.VALIDATED_VALUE:
		if b == nil {
			return nil, errors.NewError(errors.ErrCodeMissingCertificate,
				"validated certificate without its block")
		}
		if b.Hash() != cert.Value.BlockHash {
			return nil, errors.NewError(errors.ErrCodeInvalidBlockHash,
				fmt.Sprintf("block %s does not match certificate %s", b.Hash(), cert.Value.BlockHash))
		}
		if err := c.Manager().HandleValidatedCert(cert, time.Now()); err != nil {
			return nil, err
		}
		confirm := consensus.ConfirmedValue(cert.Value.ChainID, cert.Value.Epoch,
			cert.Value.Height, cert.Value.Round, cert.Value.BlockHash)
		return consensus.NewVote(confirm, v.address, v.priv), nil

	case consensus.CONFIRMED_VALUE:
		if b == nil {
			return nil, errors.NewError(errors.ErrCodeMissingCertificate,
				"confirmed certificate without its block")
		}
		if err := v.applier.DeliverConfirmed(ctx, cert, b); err != nil {
			// An already-applied height is a redelivery, not a failure.
			if errors.Is(err, errors.ErrCodeStaleHeight) {
				return nil, nil
			}
			return nil, err
		}
		return nil, nil

	default:
		return nil, errors.NewError(errors.ErrCodeInternal,
			fmt.Sprintf("unknown certificate kind %d", cert.Value.Kind))
	}
}

// HandleCrossChain adds bundles from an origin chain into the recipient's
// inbox and returns the highest height this delivery landed. Out-of-order
// deliveries are buffered by the inbox and redeliveries skipped; the sender's
// outbox only dequeues a height once every earlier height was acknowledged
// too, so a height never dies to an ack for a later one.
func (v *Validator) HandleCrossChain(ctx context.Context, recipient, origin types.ChainID, bundles []types.MessageBundle) (uint64, error) {
	c := v.chains.Chain(recipient)
	if c == nil {
		return 0, errors.NewError(errors.ErrCodeChainNotFound,
			fmt.Sprintf("chain %s not tracked", recipient))
	}
	if _, err := c.ReceiveBundles(origin, bundles); err != nil {
		return 0, err
	}
	var ack uint64
	for _, bundle := range bundles {
		if bundle.Height > ack {
			ack = bundle.Height
		}
	}
	return ack, nil
}

// HandleTimeoutRequest returns this validator's timeout vote on a chain's
// current round once the round deadline expired. The vote is deterministic,
// so repeated requests within the same round earn the same vote.
func (v *Validator) HandleTimeoutRequest(ctx context.Context, chainID types.ChainID) (*consensus.Vote, error) {
	c := v.chains.Chain(chainID)
	if c == nil {
		return nil, errors.NewError(errors.ErrCodeChainNotFound,
			fmt.Sprintf("chain %s not tracked", chainID))
	}
	m := c.Manager()
	if !m.TimedOut(time.Now()) {
		return nil, errors.NewError(errors.ErrCodeWrongRound,
			fmt.Sprintf("round %s of chain %s has not timed out", m.CurrentRound(), chainID))
	}
	value := consensus.TimeoutValue(chainID, c.Epoch(), c.Tip().NextHeight, m.CurrentRound())
	return consensus.NewVote(value, v.address, v.priv), nil
}
