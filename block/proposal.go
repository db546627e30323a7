package block

import (
	"crypto/ed25519"

	"mcn/jsonx"
	"mcn/types"
)

// Proposal is a signed block proposal for one round. The signature covers the
// block hash and the round so a proposal cannot be replayed into another
// round.
type Proposal struct {
	Block     *Block        `json:"block"`
	Round     types.Round   `json:"round"`
	Owner     types.Address `json:"owner"`
	Signature []byte        `json:"signature"`
}

func (p *Proposal) signedPayload() []byte {
	hash := p.Block.Hash()
	return jsonx.MustMarshal(struct {
		BlockHash types.Hash  `json:"block_hash"`
		Round     types.Round `json:"round"`
	}{
		BlockHash: hash,
		Round:     p.Round,
	})
}

func NewProposal(b *Block, round types.Round, owner types.Address, priv ed25519.PrivateKey) *Proposal {
	p := &Proposal{Block: b, Round: round, Owner: owner}
	p.Signature = ed25519.Sign(priv, p.signedPayload())
	return p
}

func (p *Proposal) VerifySignature(pub ed25519.PublicKey) bool {
	return ed25519.Verify(pub, p.signedPayload(), p.Signature)
}
