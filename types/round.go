package types

import "fmt"

// Epoch versions the validator committee. Only one committee is authoritative
// per epoch; old epochs stay valid until their remove-committee message lands.
type Epoch uint64

// RoundKind orders the phases a chain's certification can go through.
// Fast < MultiLeader(n) < SingleLeader(n) < Fallback(n).
type RoundKind int

const (
	FAST_ROUND RoundKind = iota
	MULTI_LEADER_ROUND
	SINGLE_LEADER_ROUND
	FALLBACK_ROUND
)

// Round identifies one voting round of the chain manager. Rounds are totally
// ordered; the manager's current round never moves backward.
type Round struct {
	Kind   RoundKind `json:"kind"`
	Number uint32    `json:"number"`
}

func FastRound() Round {
	return Round{Kind: FAST_ROUND}
}

func MultiLeaderRound(n uint32) Round {
	return Round{Kind: MULTI_LEADER_ROUND, Number: n}
}

func SingleLeaderRound(n uint32) Round {
	return Round{Kind: SINGLE_LEADER_ROUND, Number: n}
}

func FallbackRound(n uint32) Round {
	return Round{Kind: FALLBACK_ROUND, Number: n}
}

func (r Round) Cmp(other Round) int {
	if r.Kind != other.Kind {
		if r.Kind < other.Kind {
			return -1
		}
		return 1
	}
	switch {
	case r.Number < other.Number:
		return -1
	case r.Number > other.Number:
		return 1
	default:
		return 0
	}
}

func (r Round) Less(other Round) bool {
	return r.Cmp(other) < 0
}

// IsFast reports whether the round allows single-shot certification without a
// preceding validated certificate.
func (r Round) IsFast() bool {
	return r.Kind == FAST_ROUND
}

// MultiLeader rounds accept proposals from every owner at once; proposals in
// other rounds must come from the round leader.
func (r Round) IsMultiLeader() bool {
	return r.Kind == FAST_ROUND || r.Kind == MULTI_LEADER_ROUND
}

func (r Round) String() string {
	switch r.Kind {
	case FAST_ROUND:
		return "fast"
	case MULTI_LEADER_ROUND:
		return fmt.Sprintf("multi(%d)", r.Number)
	case SINGLE_LEADER_ROUND:
		return fmt.Sprintf("single(%d)", r.Number)
	case FALLBACK_ROUND:
		return fmt.Sprintf("fallback(%d)", r.Number)
	default:
		return fmt.Sprintf("unknown(%d,%d)", int(r.Kind), r.Number)
	}
}
