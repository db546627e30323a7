package consensus

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"

	"mcn/types"
)

// Vote is one validator's signature over a value.
type Vote struct {
	Value     Value         `json:"value"`
	Validator types.Address `json:"validator"` // base58 ed25519 public key
	Signature []byte        `json:"signature"`
}

func NewVote(value Value, validator types.Address, priv ed25519.PrivateKey) *Vote {
	v := &Vote{Value: value, Validator: validator}
	hash := v.Value.Hash()
	v.Signature = ed25519.Sign(priv, hash.Bytes())
	return v
}

// VerifySignature checks the vote signature against the validator's key
// embedded in its address.
func (v *Vote) VerifySignature() bool {
	pub, err := PublicKeyOf(v.Validator)
	if err != nil {
		return false
	}
	hash := v.Value.Hash()
	return ed25519.Verify(pub, hash.Bytes(), v.Signature)
}

// Validate runs the structural checks that do not need committee context.
func (v *Vote) Validate() error {
	if len(v.Signature) == 0 {
		return fmt.Errorf("missing signature")
	}
	if v.Validator == "" {
		return fmt.Errorf("missing validator")
	}
	return nil
}

// PublicKeyOf decodes a validator address back to its ed25519 public key.
func PublicKeyOf(addr types.Address) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(string(addr))
	if err != nil {
		return nil, fmt.Errorf("invalid validator address: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key length %d", len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// AddressOf renders an ed25519 public key as a validator address.
func AddressOf(pub ed25519.PublicKey) types.Address {
	return types.Address(base58.Encode(pub))
}
