package consensus

import (
	"fmt"
	"sync"

	"mcn/committee"
	"mcn/errors"
	"mcn/logx"
	"mcn/types"
)

// Aggregator accumulates votes for one (chain, height, round). Votes arrive
// out of order, duplicated, and from partially failing peers; the aggregator
// is a monotonic accumulator, never a rendezvous. Once some value crosses the
// quorum threshold the certificate is fixed and further votes are ignored.
type Aggregator struct {
	mu        sync.Mutex
	committee *committee.Committee
	round     types.Round
	votes     map[types.Address]types.Hash    // validator -> value hash voted
	weights   map[types.Hash]uint64           // value hash -> accumulated weight
	values    map[types.Hash]Value            // value hash -> value
	sigs      map[types.Hash][]CertSignature  // value hash -> contributing signatures
	cert      *Cert
}

func NewAggregator(cm *committee.Committee, round types.Round) *Aggregator {
	return &Aggregator{
		committee: cm,
		round:     round,
		votes:     make(map[types.Address]types.Hash),
		weights:   make(map[types.Hash]uint64),
		values:    make(map[types.Hash]Value),
		sigs:      make(map[types.Hash][]CertSignature),
	}
}

// AddVote accumulates one vote. It returns the quorum certificate the first
// time the threshold is crossed and nil afterwards. A validator signing two
// different values for the round fails with ConflictingVote on the second
// vote; duplicates and post-quorum votes are ignored.
func (a *Aggregator) AddVote(v *Vote) (*Cert, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if v.Value.Round != a.round {
		return nil, errors.NewError(errors.ErrCodeWrongRound,
			fmt.Sprintf("vote for round %s, aggregating round %s", v.Value.Round, a.round))
	}
	weight := a.committee.Weight(v.Validator)
	if weight == 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidSignature,
			fmt.Sprintf("validator %s not in committee for epoch %d", v.Validator, a.committee.Epoch))
	}
	if !v.VerifySignature() {
		return nil, errors.NewError(errors.ErrCodeInvalidSignature,
			fmt.Sprintf("bad vote signature from %s", v.Validator))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	valueHash := v.Value.Hash()
	if prior, voted := a.votes[v.Validator]; voted {
		if prior != valueHash {
			return nil, errors.NewError(errors.ErrCodeConflictingVote,
				fmt.Sprintf("validator %s already voted %s in round %s", v.Validator, prior, a.round))
		}
		return nil, nil
	}
	if a.cert != nil {
		// Late vote after finalization; record the voter for equivocation
		// detection above, then drop it.
		a.votes[v.Validator] = valueHash
		return nil, nil
	}

	a.votes[v.Validator] = valueHash
	a.values[valueHash] = v.Value
	a.weights[valueHash] += weight
	a.sigs[valueHash] = append(a.sigs[valueHash], CertSignature{Validator: v.Validator, Signature: v.Signature})

	if a.weights[valueHash] >= a.committee.QuorumThreshold() {
		value := a.values[valueHash]
		a.cert = &Cert{Value: value, Signatures: a.sigs[valueHash]}
		logx.Info("CONSENSUS", fmt.Sprintf("quorum reached | chain=%s height=%d round=%s kind=%s weight=%d/%d",
			value.ChainID, value.Height, a.round, value.Kind, a.weights[valueHash], a.committee.TotalWeight()))
		return a.cert, nil
	}
	return nil, nil
}

// Certificate returns the finalized certificate, nil while below quorum.
func (a *Aggregator) Certificate() *Cert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cert
}

// Weight returns the weight accumulated so far for a value hash.
func (a *Aggregator) Weight(valueHash types.Hash) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.weights[valueHash]
}

// HasValidityWeight reports whether any single value reached the committee's
// validity threshold, i.e. at least one honest validator stands behind it.
func (a *Aggregator) HasValidityWeight() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, w := range a.weights {
		if w >= a.committee.ValidityThreshold() {
			return true
		}
	}
	return false
}
