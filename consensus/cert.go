package consensus

import (
	"fmt"

	"mcn/committee"
	"mcn/errors"
	"mcn/jsonx"
	"mcn/types"
)

// CertSignature is one contributing (validator, signature) pair.
type CertSignature struct {
	Validator types.Address `json:"validator"`
	Signature []byte        `json:"signature"`
}

// Cert is a quorum certificate: a value plus the signatures whose summed
// committee weight met the quorum threshold. Certificates are immutable and
// content-addressed.
type Cert struct {
	Value      Value           `json:"value"`
	Signatures []CertSignature `json:"signatures"`
}

// Hash is the certificate's content address.
func (c *Cert) Hash() types.Hash {
	return types.NewHash(jsonx.MustMarshal(c))
}

// Verify checks every signature and that the contributing weight reaches the
// committee's quorum threshold.
func (c *Cert) Verify(cm *committee.Committee) error {
	if c.Value.Epoch != cm.Epoch {
		return errors.NewError(errors.ErrCodeUnknownEpoch,
			fmt.Sprintf("certificate epoch %d, committee epoch %d", c.Value.Epoch, cm.Epoch))
	}
	hash := c.Value.Hash()
	seen := make(map[types.Address]bool, len(c.Signatures))
	var weight uint64
	for _, sig := range c.Signatures {
		if seen[sig.Validator] {
			return errors.NewError(errors.ErrCodeInvalidSignature,
				fmt.Sprintf("duplicate signer %s", sig.Validator))
		}
		seen[sig.Validator] = true
		w := cm.Weight(sig.Validator)
		if w == 0 {
			return errors.NewError(errors.ErrCodeInvalidSignature,
				fmt.Sprintf("signer %s not in committee", sig.Validator))
		}
		vote := Vote{Value: c.Value, Validator: sig.Validator, Signature: sig.Signature}
		if !vote.VerifySignature() {
			return errors.NewError(errors.ErrCodeInvalidSignature,
				fmt.Sprintf("bad signature from %s over %s", sig.Validator, hash))
		}
		weight += w
	}
	if weight < cm.QuorumThreshold() {
		return errors.NewError(errors.ErrCodeQuorumUnreachable,
			fmt.Sprintf("certificate weight %d below quorum %d", weight, cm.QuorumThreshold()))
	}
	return nil
}

// IsConfirmed reports whether the certificate is terminal and should be
// applied to the chain.
func (c *Cert) IsConfirmed() bool {
	return c.Value.Kind == CONFIRMED_VALUE
}
