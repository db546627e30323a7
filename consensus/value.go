package consensus

import (
	"mcn/jsonx"
	"mcn/types"
)

// ValueKind separates the three things a committee can certify.
type ValueKind int

const (
	// VALIDATED_VALUE proves a quorum voted to validate a block in a round.
	VALIDATED_VALUE ValueKind = iota
	// CONFIRMED_VALUE proves a quorum saw a validated certificate and voted
	// to confirm. Confirmed certificates are terminal: they trigger
	// application of the block to the chain.
	CONFIRMED_VALUE
	// TIMEOUT_VALUE proves a quorum gave up on the round's leader; it moves
	// the chain manager to the next round.
	TIMEOUT_VALUE
)

func (k ValueKind) String() string {
	switch k {
	case VALIDATED_VALUE:
		return "validated"
	case CONFIRMED_VALUE:
		return "confirmed"
	case TIMEOUT_VALUE:
		return "timeout"
	default:
		return "unknown"
	}
}

// Value is what a vote signs and a certificate proves. BlockHash is zero for
// timeout values.
type Value struct {
	Kind      ValueKind     `json:"kind"`
	ChainID   types.ChainID `json:"chain_id"`
	Epoch     types.Epoch   `json:"epoch"`
	Height    uint64        `json:"height"`
	Round     types.Round   `json:"round"`
	BlockHash types.Hash    `json:"block_hash"`
}

// Hash is the value's content address over the canonical encoding.
func (v *Value) Hash() types.Hash {
	return types.NewHash(jsonx.MustMarshal(v))
}

func ValidatedValue(chainID types.ChainID, epoch types.Epoch, height uint64, round types.Round, blockHash types.Hash) Value {
	return Value{Kind: VALIDATED_VALUE, ChainID: chainID, Epoch: epoch, Height: height, Round: round, BlockHash: blockHash}
}

func ConfirmedValue(chainID types.ChainID, epoch types.Epoch, height uint64, round types.Round, blockHash types.Hash) Value {
	return Value{Kind: CONFIRMED_VALUE, ChainID: chainID, Epoch: epoch, Height: height, Round: round, BlockHash: blockHash}
}

func TimeoutValue(chainID types.ChainID, epoch types.Epoch, height uint64, round types.Round) Value {
	return Value{Kind: TIMEOUT_VALUE, ChainID: chainID, Epoch: epoch, Height: height, Round: round}
}
