package manager

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"mcn/block"
	"mcn/committee"
	"mcn/consensus"
	"mcn/errors"
	"mcn/logx"
	"mcn/types"
)

// ChainManager is the per-chain round state machine. It tracks the current
// round, the proposal and validated certificate seen in it, the round
// deadline, published blobs awaiting their block, and the fallback switch.
// The current round only ever moves forward: timeout certificates advance it,
// proposals and validated certificates for higher rounds pull it up, and
// nothing moves it back.
type ChainManager struct {
	mu sync.Mutex

	chainID   types.ChainID
	epoch     types.Epoch
	ownership Ownership
	// fallbackOwners is the committee-designated owner set activated when the
	// chain stops making progress.
	fallbackOwners []committee.ValidatorInfo
	// seed drives deterministic weighted leader selection. It is threaded
	// explicitly through every round-advance call and re-derived per height;
	// ambient randomness would break cross-validator determinism.
	seed uint64

	current  types.Round
	deadline time.Time

	proposal *block.Proposal
	// locked is the highest validated certificate seen; a block is only
	// confirmable once a quorum validated it in the current round.
	locked   *consensus.Cert
	fallback bool

	// pendingBlobs arena: owner id -> blob hash -> blob, for publish-or-read
	// blobs awaiting the block that completes them.
	pendingBlobs map[types.Address]map[types.Hash]types.Blob
}

func NewChainManager(chainID types.ChainID, epoch types.Epoch, ownership Ownership,
	fallbackOwners []committee.ValidatorInfo, seed uint64, now time.Time) *ChainManager {
	m := &ChainManager{
		chainID:        chainID,
		epoch:          epoch,
		ownership:      ownership,
		fallbackOwners: fallbackOwners,
		seed:           seed,
		current:        ownership.FirstRound(),
		pendingBlobs:   make(map[types.Address]map[types.Hash]types.Blob),
	}
	m.deadline = now.Add(ownership.RoundTimeout(m.current))
	return m
}

func (m *ChainManager) CurrentRound() types.Round {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *ChainManager) RoundDeadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deadline
}

// TimedOut reports whether the current round's wall-clock deadline passed.
// A timed-out round still needs a timeout certificate to advance; there is no
// active polling loop behind this.
func (m *ChainManager) TimedOut(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.After(m.deadline)
}

func (m *ChainManager) InFallback() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fallback
}

// LeaderFor returns the proposer the round expects. Multi-leader rounds
// accept any owner, so the second return is false for them.
func (m *ChainManager) LeaderFor(round types.Round) (types.Address, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaderFor(round)
}

func (m *ChainManager) leaderFor(round types.Round) (types.Address, bool, error) {
	switch round.Kind {
	case types.FAST_ROUND, types.MULTI_LEADER_ROUND:
		return "", false, nil
	case types.SINGLE_LEADER_ROUND:
		leader, err := committee.PickOwner(m.ownership.Owners, m.seed, round)
		return leader, true, err
	default:
		leader, err := committee.PickOwner(m.fallbackOwners, m.seed, round)
		return leader, true, err
	}
}

// HandleProposal accepts a proposal into the round state. Stale rounds are
// rejected with WrongRound, proposals from the wrong owner with
// InvalidProposer, and a second, different block for the same height and
// round with Equivocation. Rejections leave the manager untouched. A valid
// proposal for a higher round pulls the current round up to it.
func (m *ChainManager) HandleProposal(p *block.Proposal, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.Round.Less(m.current) {
		return errors.NewError(errors.ErrCodeWrongRound,
			fmt.Sprintf("proposal round %s below current %s", p.Round, m.current))
	}
	if err := m.verifyProposer(p); err != nil {
		return err
	}
	if m.proposal != nil && m.proposal.Round == p.Round &&
		m.proposal.Block.Header.Height == p.Block.Header.Height &&
		m.proposal.Block.Hash() != p.Block.Hash() {
		return errors.NewError(errors.ErrCodeEquivocation,
			fmt.Sprintf("owner %s proposed two blocks at height %d round %s",
				p.Owner, p.Block.Header.Height, p.Round))
	}
	m.advanceTo(p.Round, now)
	m.proposal = p
	return nil
}

func (m *ChainManager) verifyProposer(p *block.Proposal) error {
	switch p.Round.Kind {
	case types.FAST_ROUND:
		if !m.ownership.IsSuperOwner(p.Owner) {
			return errors.NewError(errors.ErrCodeInvalidProposer,
				fmt.Sprintf("%s is not a super owner", p.Owner))
		}
	case types.MULTI_LEADER_ROUND:
		if !m.ownership.IsOwner(p.Owner) {
			return errors.NewError(errors.ErrCodeInvalidProposer,
				fmt.Sprintf("%s is not an owner", p.Owner))
		}
	default:
		leader, _, err := m.leaderFor(p.Round)
		if err != nil {
			return err
		}
		if p.Owner != leader {
			return errors.NewError(errors.ErrCodeInvalidProposer,
				fmt.Sprintf("round %s leader is %s, not %s", p.Round, leader, p.Owner))
		}
	}
	return nil
}

// HandleTimeoutCert processes a leader-timeout certificate for round R: the
// current round moves to R's successor, or into fallback when R was the last
// configured round. Timeout certificates for rounds already left behind are
// ignored.
func (m *ChainManager) HandleTimeoutCert(cert *consensus.Cert, now time.Time) {
	if cert.Value.Kind != consensus.TIMEOUT_VALUE {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if cert.Value.Round.Less(m.current) {
		return
	}
	next, ok := m.ownership.NextRound(cert.Value.Round)
	if !ok {
		m.enterFallback(now)
		return
	}
	m.advanceTo(next, now)
}

// HandleValidatedCert records a validated-block certificate. The round moves
// up to the certificate's round when it is not lower than the current one;
// it never moves backward. The highest validated certificate stays locked:
// later proposals must re-propose its block.
func (m *ChainManager) HandleValidatedCert(cert *consensus.Cert, now time.Time) error {
	if cert.Value.Kind != consensus.VALIDATED_VALUE {
		return errors.NewError(errors.ErrCodeInternal, "not a validated certificate")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locked == nil || m.locked.Value.Round.Less(cert.Value.Round) {
		m.locked = cert
	}
	if !cert.Value.Round.Less(m.current) {
		m.advanceTo(cert.Value.Round, now)
	}
	return nil
}

// LockedCert returns the highest validated certificate seen this height.
func (m *ChainManager) LockedCert() *consensus.Cert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// Proposal returns the proposal accepted in the current round, if any.
func (m *ChainManager) Proposal() *block.Proposal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proposal
}

// CheckFallback enters fallback mode once an unskippable incoming bundle has
// aged past the configured fallback duration without progress. oldestMicros
// is the bundle timestamp in Unix microseconds.
func (m *ChainManager) CheckFallback(now time.Time, oldestMicros uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fallback || m.ownership.FallbackDuration <= 0 {
		return m.fallback
	}
	age := now.Sub(time.UnixMicro(int64(oldestMicros)))
	if age >= m.ownership.FallbackDuration {
		m.enterFallback(now)
	}
	return m.fallback
}

func (m *ChainManager) enterFallback(now time.Time) {
	if !m.fallback {
		m.fallback = true
		logx.Warn("MANAGER", fmt.Sprintf("chain %s entering fallback mode at round %s", m.chainID, m.current))
	}
	if m.current.Kind != types.FALLBACK_ROUND {
		m.advanceTo(types.FallbackRound(0), now)
	}
}

// advanceTo moves the current round forward, never backward, resetting the
// deadline and dropping any proposal stranded in an older round.
func (m *ChainManager) advanceTo(round types.Round, now time.Time) {
	if round.Less(m.current) {
		return
	}
	if m.current.Less(round) {
		m.current = round
		m.deadline = now.Add(m.ownership.RoundTimeout(round))
		if m.proposal != nil && m.proposal.Round.Less(round) {
			m.proposal = nil
		}
	}
}

// ResetForHeight starts a fresh height after a confirmed block applied. The
// leader seed is re-derived from the previous seed and the new height so
// every validator computes the same rotation.
func (m *ChainManager) ResetForHeight(height uint64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seed = deriveSeed(m.seed, height)
	m.current = m.ownership.FirstRound()
	m.deadline = now.Add(m.ownership.RoundTimeout(m.current))
	m.proposal = nil
	m.locked = nil
	m.fallback = false
}

func deriveSeed(seed, height uint64) uint64 {
	var material [16]byte
	binary.BigEndian.PutUint64(material[0:8], seed)
	binary.BigEndian.PutUint64(material[8:16], height)
	digest := blake2b.Sum256(material[:])
	return binary.BigEndian.Uint64(digest[:8])
}

// Seed exposes the current leader seed (protocol state, persisted with the
// chain).
func (m *ChainManager) Seed() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seed
}

// PublishBlob parks a blob under its publisher until a block reads or
// confirms it.
func (m *ChainManager) PublishBlob(owner types.Address, blob types.Blob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingBlobs[owner] == nil {
		m.pendingBlobs[owner] = make(map[types.Hash]types.Blob)
	}
	m.pendingBlobs[owner][blob.Hash] = blob
}

// TakeBlob removes and returns a pending blob of the owner.
func (m *ChainManager) TakeBlob(owner types.Address, hash types.Hash) (types.Blob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.pendingBlobs[owner][hash]
	if ok {
		delete(m.pendingBlobs[owner], hash)
		if len(m.pendingBlobs[owner]) == 0 {
			delete(m.pendingBlobs, owner)
		}
	}
	return blob, ok
}
