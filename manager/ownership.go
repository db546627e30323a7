package manager

import (
	"time"

	"mcn/committee"
	"mcn/types"
)

// Ownership configures who may propose blocks on a chain and how rounds
// rotate between them.
type Ownership struct {
	// SuperOwners may propose in the fast round without a validated
	// certificate.
	SuperOwners []committee.ValidatorInfo `yaml:"super_owners" json:"super_owners"`
	// Owners is the weighted set rotating through multi- and single-leader
	// rounds.
	Owners []committee.ValidatorInfo `yaml:"owners" json:"owners"`
	// MultiLeaderRounds is how many multi-leader rounds run before leader
	// rotation becomes single-leader.
	MultiLeaderRounds uint32 `yaml:"multi_leader_rounds" json:"multi_leader_rounds"`
	// MaxSingleLeaderRounds caps single-leader rounds before the chain drops
	// into fallback; zero means unlimited.
	MaxSingleLeaderRounds uint32 `yaml:"max_single_leader_rounds" json:"max_single_leader_rounds"`

	// BaseTimeout is the deadline of the first timed round;
	// TimeoutIncrement is added per later round.
	BaseTimeout      time.Duration `yaml:"base_timeout" json:"base_timeout"`
	TimeoutIncrement time.Duration `yaml:"timeout_increment" json:"timeout_increment"`
	// FallbackDuration is how long an unskippable incoming bundle may age
	// without progress before the fallback owner set takes over.
	FallbackDuration time.Duration `yaml:"fallback_duration" json:"fallback_duration"`
}

// FirstRound is where a fresh height starts: the fast round when super owners
// exist, otherwise the first rotating round.
func (o *Ownership) FirstRound() types.Round {
	if len(o.SuperOwners) > 0 {
		return types.FastRound()
	}
	if o.MultiLeaderRounds > 0 {
		return types.MultiLeaderRound(0)
	}
	return types.SingleLeaderRound(0)
}

// NextRound is the round entered after a leader timeout of the given round.
// The second return is false when the configured rounds are exhausted and the
// chain must fall back.
func (o *Ownership) NextRound(r types.Round) (types.Round, bool) {
	switch r.Kind {
	case types.FAST_ROUND:
		if o.MultiLeaderRounds > 0 {
			return types.MultiLeaderRound(0), true
		}
		return types.SingleLeaderRound(0), true
	case types.MULTI_LEADER_ROUND:
		if r.Number+1 < o.MultiLeaderRounds {
			return types.MultiLeaderRound(r.Number + 1), true
		}
		return types.SingleLeaderRound(0), true
	case types.SINGLE_LEADER_ROUND:
		if o.MaxSingleLeaderRounds > 0 && r.Number+1 >= o.MaxSingleLeaderRounds {
			return types.Round{}, false
		}
		return types.SingleLeaderRound(r.Number + 1), true
	default: // fallback rounds rotate forever
		return types.FallbackRound(r.Number + 1), true
	}
}

// RoundTimeout is the wall-clock budget of a round; later rounds get longer.
func (o *Ownership) RoundTimeout(r types.Round) time.Duration {
	return o.BaseTimeout + time.Duration(r.Number)*o.TimeoutIncrement
}

// IsSuperOwner reports membership in the fast-round owner set.
func (o *Ownership) IsSuperOwner(addr types.Address) bool {
	for _, owner := range o.SuperOwners {
		if owner.PubKey == addr {
			return true
		}
	}
	return false
}

// IsOwner reports membership in the rotating owner set.
func (o *Ownership) IsOwner(addr types.Address) bool {
	for _, owner := range o.Owners {
		if owner.PubKey == addr {
			return true
		}
	}
	return false
}
