package committee

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	"golang.org/x/crypto/blake2b"

	"mcn/types"
)

// ValidatorInfo is one committee member with its voting weight.
type ValidatorInfo struct {
	PubKey types.Address `json:"pub_key"`
	Weight uint64        `json:"weight"`
}

// PricingPolicy is the committee's resource cost table, consulted when
// building blocks. Charges are flat per unit; the execution sandbox owns the
// finer-grained metering.
type PricingPolicy struct {
	OperationCharge *uint256.Int `json:"operation_charge"`
	MessageCharge   *uint256.Int `json:"message_charge"`
	ByteCharge      *uint256.Int `json:"byte_charge"`

	// MaximumBlockCharge caps the total charge a single block may incur.
	// Nil or zero means uncapped.
	MaximumBlockCharge *uint256.Int `json:"maximum_block_charge,omitempty"`
}

// ExceedsCap reports whether a block charge is over the policy's cap.
func (p PricingPolicy) ExceedsCap(charge *uint256.Int) bool {
	return p.MaximumBlockCharge != nil && !p.MaximumBlockCharge.IsZero() &&
		charge.Gt(p.MaximumBlockCharge)
}

// Charge prices a unit mix under the policy. Nil charges count as zero.
func (p PricingPolicy) Charge(operations, messages, payloadBytes uint64) *uint256.Int {
	total := new(uint256.Int)
	add := func(unit *uint256.Int, count uint64) {
		if unit == nil || count == 0 {
			return
		}
		var cost uint256.Int
		cost.Mul(unit, uint256.NewInt(count))
		total.Add(total, &cost)
	}
	add(p.OperationCharge, operations)
	add(p.MessageCharge, messages)
	add(p.ByteCharge, payloadBytes)
	return total
}

// Committee is the weighted validator set of one epoch. Validators are kept
// sorted by public key so the committee serializes deterministically.
type Committee struct {
	Epoch      types.Epoch     `json:"epoch"`
	Validators []ValidatorInfo `json:"validators"`
	Pricing    PricingPolicy   `json:"pricing"`

	totalWeight uint64
	weights     map[types.Address]uint64
}

// NewCommittee builds a committee for the epoch. Quorum and validity
// thresholds are derived from the total weight: a quorum needs strictly more
// than two thirds, validity strictly more than one third.
func NewCommittee(epoch types.Epoch, validators []ValidatorInfo, pricing PricingPolicy) (*Committee, error) {
	if len(validators) == 0 {
		return nil, fmt.Errorf("empty committee for epoch %d", epoch)
	}
	sorted := make([]ValidatorInfo, len(validators))
	copy(sorted, validators)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PubKey < sorted[j].PubKey })

	c := &Committee{
		Epoch:      epoch,
		Validators: sorted,
		Pricing:    pricing,
		weights:    make(map[types.Address]uint64, len(sorted)),
	}
	for _, v := range sorted {
		if v.Weight == 0 {
			return nil, fmt.Errorf("validator %s has zero weight", v.PubKey)
		}
		if _, exists := c.weights[v.PubKey]; exists {
			return nil, fmt.Errorf("duplicate validator %s", v.PubKey)
		}
		c.weights[v.PubKey] = v.Weight
		c.totalWeight += v.Weight
	}
	return c, nil
}

func (c *Committee) TotalWeight() uint64 {
	return c.totalWeight
}

// QuorumThreshold is the minimum summed weight to certify a value.
func (c *Committee) QuorumThreshold() uint64 {
	return 2*c.totalWeight/3 + 1
}

// ValidityThreshold is the minimum summed weight for a value to be possibly
// valid (at least one honest validator vouches for it).
func (c *Committee) ValidityThreshold() uint64 {
	return c.totalWeight/3 + 1
}

// Weight returns the voting weight of a validator, zero for non-members.
func (c *Committee) Weight(pubKey types.Address) uint64 {
	return c.weights[pubKey]
}

func (c *Committee) IsMember(pubKey types.Address) bool {
	_, ok := c.weights[pubKey]
	return ok
}

// PickOwner deterministically samples an owner from a weighted set, seeded by
// (seed, round). Selection probability is proportional to weight: the sample
// point is a BLAKE2b digest of the seed material reduced modulo the total
// weight, walked through the cumulative weights in sorted-key order. Every
// validator derives the same leader for the same inputs; the algorithm is
// part of the protocol contract.
func PickOwner(owners []ValidatorInfo, seed uint64, round types.Round) (types.Address, error) {
	if len(owners) == 0 {
		return "", fmt.Errorf("no owners to pick from")
	}
	sorted := make([]ValidatorInfo, len(owners))
	copy(sorted, owners)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PubKey < sorted[j].PubKey })

	var total uint64
	for _, o := range sorted {
		total += o.Weight
	}
	if total == 0 {
		return "", fmt.Errorf("owner set has zero total weight")
	}

	var material [24]byte
	binary.BigEndian.PutUint64(material[0:8], seed)
	binary.BigEndian.PutUint64(material[8:16], uint64(round.Kind))
	binary.BigEndian.PutUint64(material[16:24], uint64(round.Number))
	digest := blake2b.Sum256(material[:])
	point := binary.BigEndian.Uint64(digest[:8]) % total

	var cumulative uint64
	for _, o := range sorted {
		cumulative += o.Weight
		if point < cumulative {
			return o.PubKey, nil
		}
	}
	return sorted[len(sorted)-1].PubKey, nil
}
