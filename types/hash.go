package types

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// Hash is a 32-byte BLAKE2b-256 content address.
type Hash [32]byte

func NewHash(data []byte) Hash {
	return Hash(blake2b.Sum256(data))
}

func (h Hash) Bytes() []byte {
	return h[:]
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText keeps hashes hex on the wire; the encoding is part of the
// protocol contract, so certified entities must serialize the same bytes on
// every node.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

func (h *Hash) UnmarshalText(data []byte) error {
	raw, err := hex.DecodeString(string(data))
	if err != nil {
		return err
	}
	if len(raw) != 32 {
		return fmt.Errorf("invalid hash length %d", len(raw))
	}
	copy(h[:], raw)
	return nil
}

// ChainID is a content-derived chain identifier: the hash of the chain's
// origin description (parent chain, block height and open-chain index).
type ChainID Hash

func (c ChainID) String() string {
	return base58.Encode(c[:])
}

func (c ChainID) IsZero() bool {
	return c == ChainID{}
}

func (c ChainID) MarshalText() ([]byte, error) {
	return []byte(base58.Encode(c[:])), nil
}

func (c *ChainID) UnmarshalText(data []byte) error {
	raw, err := base58.Decode(string(data))
	if err != nil {
		return err
	}
	if len(raw) != 32 {
		return fmt.Errorf("invalid chain id length %d", len(raw))
	}
	copy(c[:], raw)
	return nil
}

// DeriveChainID computes the identifier of a chain opened at the given parent
// block, disambiguated by the index of the open-chain operation inside it.
func DeriveChainID(parent ChainID, height uint64, index uint32) ChainID {
	var buf bytes.Buffer
	buf.Write(parent[:])
	buf.Write(uint64ToBytes(height))
	buf.Write(uint32ToBytes(index))
	return ChainID(NewHash(buf.Bytes()))
}

func uint64ToBytes(v uint64) []byte {
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func uint32ToBytes(v uint32) []byte {
	out := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}
