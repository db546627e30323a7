package network

import (
	"mcn/block"
	"mcn/consensus"
	"mcn/types"
)

const serviceName = "mcn.Validator"

type ProposeBlockRequest struct {
	Proposal *block.Proposal `json:"proposal"`
}

type VoteResponse struct {
	// Vote is nil when the handler had nothing to sign (confirmed
	// certificates, timeout certificates).
	Vote *consensus.Vote `json:"vote,omitempty"`
}

type HandleCertificateRequest struct {
	Cert  *consensus.Cert `json:"cert"`
	Block *block.Block    `json:"block,omitempty"`
}

type TimeoutRequest struct {
	ChainID types.ChainID `json:"chain_id"`
}

type CrossChainRequest struct {
	Recipient types.ChainID         `json:"recipient"`
	Origin    types.ChainID         `json:"origin"`
	Bundles   []types.MessageBundle `json:"bundles"`
}

type CrossChainResponse struct {
	AckHeight uint64 `json:"ack_height"`
}
