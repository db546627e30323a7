package validator

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"mcn/block"
	"mcn/chain"
	"mcn/committee"
	"mcn/consensus"
	"mcn/errors"
	"mcn/interfaces"
	"mcn/manager"
	"mcn/types"
)

type nopOracle struct{}

func (nopOracle) Apply(ctx context.Context, chainID types.ChainID, height uint64, tx interfaces.Transaction) (*interfaces.TransactionOutcome, error) {
	return &interfaces.TransactionOutcome{}, nil
}

type mapChains map[types.ChainID]*chain.Chain

func (m mapChains) Chain(id types.ChainID) *chain.Chain { return m[id] }

type signer struct {
	priv ed25519.PrivateKey
	addr types.Address
}

func newSigner(t *testing.T) signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	return signer{priv: priv, addr: consensus.AddressOf(pub)}
}

func testChain(id types.ChainID, owner committee.ValidatorInfo, now time.Time) *chain.Chain {
	ownership := manager.Ownership{
		SuperOwners: []committee.ValidatorInfo{owner},
		Owners:      []committee.ValidatorInfo{owner},
		BaseTimeout: 10 * time.Second,
	}
	return chain.NewChain(id, 1, ownership, []committee.ValidatorInfo{owner}, 1, now)
}

func setup(t *testing.T) (*Validator, mapChains, []signer, *committee.Committee) {
	t.Helper()
	signers := make([]signer, 4)
	infos := make([]committee.ValidatorInfo, 4)
	for i := range signers {
		signers[i] = newSigner(t)
		infos[i] = committee.ValidatorInfo{PubKey: signers[i].addr, Weight: 1}
	}
	cm, err := committee.NewCommittee(1, infos, committee.PricingPolicy{})
	if err != nil {
		t.Fatalf("NewCommittee: %v", err)
	}
	registry := committee.NewRegistry()
	if err := registry.Add(cm); err != nil {
		t.Fatalf("registry.Add: %v", err)
	}

	owner := newSigner(t)
	now := time.Now()
	chains := mapChains{
		types.ChainID{1}: testChain(types.ChainID{1}, committee.ValidatorInfo{PubKey: owner.addr, Weight: 1}, now),
	}
	// The validator under test is signers[0]; the applier is unused in these
	// scenarios because no confirmed certificates are delivered.
	v := NewValidator(signers[0].priv, registry, chains, nil)
	return v, chains, signers, cm
}

func quorumCert(t *testing.T, signers []signer, value consensus.Value) *consensus.Cert {
	t.Helper()
	var sigs []consensus.CertSignature
	for i := 0; i < 3; i++ {
		vote := consensus.NewVote(value, signers[i].addr, signers[i].priv)
		sigs = append(sigs, consensus.CertSignature{Validator: vote.Validator, Signature: vote.Signature})
	}
	return &consensus.Cert{Value: value, Signatures: sigs}
}

func TestHandleCrossChainAck(t *testing.T) {
	v, _, _, _ := setup(t)
	origin := types.ChainID{9}
	bundles := []types.MessageBundle{
		{Height: 3, Timestamp: 1, Messages: []types.PostedMessage{{Kind: types.SIMPLE_MESSAGE}}},
		{Height: 7, Timestamp: 2, Messages: []types.PostedMessage{{Kind: types.SIMPLE_MESSAGE}}},
	}
	ack, err := v.HandleCrossChain(context.Background(), types.ChainID{1}, origin, bundles)
	if err != nil {
		t.Fatalf("HandleCrossChain: %v", err)
	}
	if ack != 7 {
		t.Errorf("ack %d, want 7", ack)
	}

	// Redelivery acks the same height and adds nothing.
	ack, err = v.HandleCrossChain(context.Background(), types.ChainID{1}, origin, bundles)
	if err != nil || ack != 7 {
		t.Errorf("redelivery: ack=%d err=%v", ack, err)
	}
}

func TestHandleCrossChainUnknownChain(t *testing.T) {
	v, _, _, _ := setup(t)
	_, err := v.HandleCrossChain(context.Background(), types.ChainID{99}, types.ChainID{9}, nil)
	if !errors.Is(err, errors.ErrCodeChainNotFound) {
		t.Errorf("expected chain_not_found, got %v", err)
	}
}

func TestTimeoutCertificateAdvancesRound(t *testing.T) {
	v, chains, signers, _ := setup(t)
	c := chains[types.ChainID{1}]
	if got := c.Manager().CurrentRound(); !got.IsFast() {
		t.Fatalf("expected fast round, got %s", got)
	}

	value := consensus.TimeoutValue(types.ChainID{1}, 1, 0, types.FastRound())
	vote, err := v.HandleCertificate(context.Background(), quorumCert(t, signers, value), nil)
	if err != nil {
		t.Fatalf("HandleCertificate: %v", err)
	}
	if vote != nil {
		t.Error("timeout certificate should not earn a vote")
	}
	if got := c.Manager().CurrentRound(); got.IsFast() {
		t.Error("timeout certificate did not advance the round")
	}
}

func TestCertificateBadQuorumRejected(t *testing.T) {
	v, _, signers, _ := setup(t)
	value := consensus.TimeoutValue(types.ChainID{1}, 1, 0, types.FastRound())
	vote := consensus.NewVote(value, signers[0].addr, signers[0].priv)
	thin := &consensus.Cert{Value: value, Signatures: []consensus.CertSignature{
		{Validator: vote.Validator, Signature: vote.Signature},
	}}
	_, err := v.HandleCertificate(context.Background(), thin, nil)
	if !errors.Is(err, errors.ErrCodeQuorumUnreachable) {
		t.Errorf("expected quorum_unreachable for under-weight certificate, got %v", err)
	}
}

func TestHandleTimeoutRequest(t *testing.T) {
	v, chains, _, _ := setup(t)

	// Round deadline not reached yet.
	_, err := v.HandleTimeoutRequest(context.Background(), types.ChainID{1})
	if !errors.Is(err, errors.ErrCodeWrongRound) {
		t.Fatalf("expected wrong_round before the deadline, got %v", err)
	}
	if _, err := v.HandleTimeoutRequest(context.Background(), types.ChainID{99}); !errors.Is(err, errors.ErrCodeChainNotFound) {
		t.Errorf("expected chain_not_found, got %v", err)
	}

	// A chain whose round expired earns a timeout vote on the current round.
	owner := newSigner(t)
	expired := testChain(types.ChainID{2}, committee.ValidatorInfo{PubKey: owner.addr, Weight: 1},
		time.Now().Add(-time.Minute))
	chains[types.ChainID{2}] = expired

	vote, err := v.HandleTimeoutRequest(context.Background(), types.ChainID{2})
	if err != nil {
		t.Fatalf("HandleTimeoutRequest: %v", err)
	}
	if vote.Value.Kind != consensus.TIMEOUT_VALUE {
		t.Errorf("expected timeout vote, got %s", vote.Value.Kind)
	}
	if vote.Value.Round != expired.Manager().CurrentRound() || vote.Value.Height != 0 {
		t.Errorf("vote on wrong position: round=%s height=%d", vote.Value.Round, vote.Value.Height)
	}

	// Repeated requests within the round earn the identical vote.
	again, err := v.HandleTimeoutRequest(context.Background(), types.ChainID{2})
	if err != nil || again.Value != vote.Value || !bytes.Equal(again.Signature, vote.Signature) {
		t.Errorf("timeout vote not deterministic: %v", err)
	}
}

func TestProposalOverChargeCapRejected(t *testing.T) {
	signers := make([]signer, 4)
	infos := make([]committee.ValidatorInfo, 4)
	for i := range signers {
		signers[i] = newSigner(t)
		infos[i] = committee.ValidatorInfo{PubKey: signers[i].addr, Weight: 1}
	}
	cm, err := committee.NewCommittee(1, infos, committee.PricingPolicy{
		ByteCharge:         uint256.NewInt(1),
		MaximumBlockCharge: uint256.NewInt(10),
	})
	if err != nil {
		t.Fatalf("NewCommittee: %v", err)
	}
	registry := committee.NewRegistry()
	if err := registry.Add(cm); err != nil {
		t.Fatalf("registry.Add: %v", err)
	}

	owner := newSigner(t)
	now := time.Now()
	chains := mapChains{
		types.ChainID{1}: testChain(types.ChainID{1}, committee.ValidatorInfo{PubKey: owner.addr, Weight: 1}, now),
	}
	v := NewValidator(signers[0].priv, registry, chains, nil)

	build := func(payload []byte) *block.Proposal {
		b, err := block.NewBuilder(nopOracle{}).Build(context.Background(), block.BuildInput{
			ChainID:    types.ChainID{1},
			Epoch:      1,
			Height:     0,
			Timestamp:  uint64(now.UnixMicro()),
			Signer:     owner.addr,
			Operations: []types.Operation{{User: payload}},
		})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		return block.NewProposal(b, types.FastRound(), owner.addr, owner.priv)
	}

	// 20 payload bytes at 1 each is over the cap of 10.
	_, err = v.HandleProposal(context.Background(), build(bytes.Repeat([]byte{7}, 20)))
	if !errors.Is(err, errors.ErrCodeChargeExceeded) {
		t.Fatalf("expected charge_exceeded, got %v", err)
	}
	// A block within the cap passes the charge check and earns a vote.
	vote, err := v.HandleProposal(context.Background(), build([]byte("ok")))
	if err != nil || vote == nil {
		t.Errorf("proposal within cap rejected: %v", err)
	}
}

func TestValidatedCertificateWithoutBlockRejected(t *testing.T) {
	v, _, signers, _ := setup(t)
	value := consensus.ValidatedValue(types.ChainID{1}, 1, 0, types.MultiLeaderRound(0), types.Hash{5})
	_, err := v.HandleCertificate(context.Background(), quorumCert(t, signers, value), nil)
	if !errors.Is(err, errors.ErrCodeMissingCertificate) {
		t.Errorf("expected missing_certificate, got %v", err)
	}
}
