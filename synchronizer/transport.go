package synchronizer

import (
	"context"

	"mcn/block"
	"mcn/consensus"
	"mcn/types"
)

// ValidatorClient is the request/response channel to one or more validators.
// Delivery is at-least-once; every handler behind it is idempotent, so the
// synchronizer retries freely on transport errors.
type ValidatorClient interface {
	// ProposeBlock submits a proposal and returns the validator's vote:
	// a confirm vote in the fast round, a validate vote otherwise.
	ProposeBlock(ctx context.Context, endpoint string, p *block.Proposal) (*consensus.Vote, error)

	// HandleBlockCertificate hands a certificate to a validator. For a
	// validated certificate the response is the validator's confirm vote;
	// for a confirmed certificate the response is nil and the validator
	// applies the block. Timeout certificates carry no block.
	HandleBlockCertificate(ctx context.Context, endpoint string, cert *consensus.Cert, b *block.Block) (*consensus.Vote, error)

	// CrossChainRequest delivers bundles from origin to recipient on the
	// remote validator and returns the highest origin height acknowledged.
	CrossChainRequest(ctx context.Context, endpoint string, recipient types.ChainID, origin types.ChainID, bundles []types.MessageBundle) (uint64, error)

	// RequestTimeout asks a validator for its timeout vote on a chain's
	// current round. Validators only sign once their own round deadline
	// expired.
	RequestTimeout(ctx context.Context, endpoint string, chainID types.ChainID) (*consensus.Vote, error)
}
