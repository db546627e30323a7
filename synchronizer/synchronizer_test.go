package synchronizer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"testing"
	"time"

	"mcn/block"
	"mcn/chain"
	"mcn/committee"
	"mcn/consensus"
	"mcn/db"
	"mcn/errors"
	"mcn/events"
	"mcn/interfaces"
	"mcn/manager"
	"mcn/store"
	"mcn/types"
	"mcn/validator"
)

var (
	chainA = types.ChainID{1}
	chainB = types.ChainID{2}
)

// loopbackClient dispatches requests to in-process validators by endpoint,
// standing in for the gRPC transport.
type loopbackClient struct {
	nodes map[string]*validator.Validator
	down  map[string]bool
}

func (c *loopbackClient) ProposeBlock(ctx context.Context, endpoint string, p *block.Proposal) (*consensus.Vote, error) {
	if c.down[endpoint] {
		return nil, fmt.Errorf("%s unreachable", endpoint)
	}
	return c.nodes[endpoint].HandleProposal(ctx, p)
}

func (c *loopbackClient) HandleBlockCertificate(ctx context.Context, endpoint string, cert *consensus.Cert, b *block.Block) (*consensus.Vote, error) {
	if c.down[endpoint] {
		return nil, fmt.Errorf("%s unreachable", endpoint)
	}
	return c.nodes[endpoint].HandleCertificate(ctx, cert, b)
}

func (c *loopbackClient) CrossChainRequest(ctx context.Context, endpoint string, recipient, origin types.ChainID, bundles []types.MessageBundle) (uint64, error) {
	if c.down[endpoint] {
		return 0, fmt.Errorf("%s unreachable", endpoint)
	}
	return c.nodes[endpoint].HandleCrossChain(ctx, recipient, origin, bundles)
}

func (c *loopbackClient) RequestTimeout(ctx context.Context, endpoint string, chainID types.ChainID) (*consensus.Vote, error) {
	if c.down[endpoint] {
		return nil, fmt.Errorf("%s unreachable", endpoint)
	}
	return c.nodes[endpoint].HandleTimeoutRequest(ctx, chainID)
}

type crossChainOracle struct{}

func (o *crossChainOracle) Apply(ctx context.Context, chainID types.ChainID, height uint64, tx interfaces.Transaction) (*interfaces.TransactionOutcome, error) {
	return &interfaces.TransactionOutcome{
		Messages: []types.OutgoingMessage{
			{Destination: chainB, Message: types.PostedMessage{Kind: types.TRACKED_MESSAGE, Payload: []byte("ping")}},
		},
	}, nil
}

type network struct {
	syncs   []*Synchronizer
	client  *loopbackClient
	owner   types.Address
	priv    ed25519.PrivateKey
	bus     *events.EventBus
	now     time.Time
	builder *block.Builder
}

// newNetwork builds count in-process validator nodes, each tracking chain A;
// node 0 also tracks the destination chain B.
func newNetwork(t *testing.T, count int, superOwner bool) *network {
	return newNetworkAt(t, count, superOwner, time.Now())
}

// newNetworkAt creates the chains as of the given time, so tests can start
// with round deadlines already in the past.
func newNetworkAt(t *testing.T, count int, superOwner bool, now time.Time) *network {
	t.Helper()

	ownerPub, ownerPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	owner := consensus.AddressOf(ownerPub)
	ownerInfo := committee.ValidatorInfo{PubKey: owner, Weight: 1}
	ownership := manager.Ownership{
		Owners:            []committee.ValidatorInfo{ownerInfo},
		MultiLeaderRounds: 2,
		BaseTimeout:       10 * time.Second,
		TimeoutIncrement:  time.Second,
		FallbackDuration:  time.Hour,
	}
	if superOwner {
		ownership.SuperOwners = []committee.ValidatorInfo{ownerInfo}
	}

	privs := make([]ed25519.PrivateKey, count)
	infos := make([]committee.ValidatorInfo, count)
	endpoints := make([]ValidatorEndpoint, count)
	for i := 0; i < count; i++ {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("keygen: %v", err)
		}
		privs[i] = priv
		addr := consensus.AddressOf(pub)
		infos[i] = committee.ValidatorInfo{PubKey: addr, Weight: 1}
		endpoints[i] = ValidatorEndpoint{Address: addr, Endpoint: fmt.Sprintf("node-%d", i)}
	}

	client := &loopbackClient{nodes: make(map[string]*validator.Validator), down: make(map[string]bool)}
	bus := events.NewEventBus()
	var syncs []*Synchronizer
	for i := 0; i < count; i++ {
		registry := committee.NewRegistry()
		cm, err := committee.NewCommittee(1, infos, committee.PricingPolicy{})
		if err != nil {
			t.Fatalf("NewCommittee: %v", err)
		}
		if err := registry.Add(cm); err != nil {
			t.Fatalf("registry.Add: %v", err)
		}
		chainStore, err := store.NewChainStore(db.NewMemoryProvider())
		if err != nil {
			t.Fatalf("NewChainStore: %v", err)
		}
		s := NewSynchronizer(registry, chainStore, bus, client, endpoints)
		s.TrackChain(chain.NewChain(chainA, 1, ownership, infos, 7, now))
		if i == 0 {
			s.TrackChain(chain.NewChain(chainB, 1, ownership, infos, 7, now))
		}
		client.nodes[endpoints[i].Endpoint] = validator.NewValidator(privs[i], registry, s, s)
		syncs = append(syncs, s)
	}

	return &network{
		syncs:   syncs,
		client:  client,
		owner:   owner,
		priv:    ownerPriv,
		bus:     bus,
		now:     now,
		builder: block.NewBuilder(&crossChainOracle{}),
	}
}

func (n *network) buildProposal(t *testing.T, round types.Round) *block.Proposal {
	t.Helper()
	tip := n.syncs[0].Chain(chainA).Tip()
	b, err := n.builder.Build(context.Background(), block.BuildInput{
		ChainID:           chainA,
		Epoch:             1,
		Height:            tip.NextHeight,
		Timestamp:         uint64(n.now.UnixMicro()),
		PreviousBlockHash: tip.LastBlockHash,
		Signer:            n.owner,
		Operations:        []types.Operation{{User: []byte("op")}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return block.NewProposal(b, round, n.owner, n.priv)
}

func TestCertifyFastRound(t *testing.T) {
	n := newNetwork(t, 4, true)
	_, ch := n.bus.Subscribe()

	cert, err := n.syncs[0].Certify(context.Background(), n.buildProposal(t, types.FastRound()))
	if err != nil {
		t.Fatalf("Certify: %v", err)
	}
	if !cert.IsConfirmed() {
		t.Fatal("fast-round certificate is not confirmed")
	}

	// Node 0 applied the block and routed the outgoing bundle into chain B.
	if tip := n.syncs[0].Chain(chainA).Tip(); tip.NextHeight != 1 {
		t.Errorf("chain A tip not advanced: %+v", tip)
	}
	pending := n.syncs[0].Chain(chainB).PendingIncoming()
	if len(pending) != 1 || pending[0].Origin != chainA {
		t.Fatalf("chain B inbox wrong: %+v", pending)
	}
	if string(pending[0].Bundle.Messages[0].Payload) != "ping" {
		t.Errorf("bundle payload wrong: %+v", pending[0].Bundle)
	}

	// Local delivery acknowledged the outbox immediately.
	if out := n.syncs[0].Chain(chainA).PendingOutbound(); len(out) != 0 {
		t.Errorf("outbox not acknowledged: %v", out)
	}

	// Tip change and bundle delivery surfaced on the bus.
	seen := make(map[events.EventType]bool)
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			seen[ev.Type()] = true
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for events")
		}
	}
	if !seen[events.EventTipChanged] || !seen[events.EventBundlesReceived] {
		t.Errorf("missing events: %v", seen)
	}
}

func TestCertifyTwoPhase(t *testing.T) {
	n := newNetwork(t, 4, false)

	cert, err := n.syncs[0].Certify(context.Background(), n.buildProposal(t, types.MultiLeaderRound(0)))
	if err != nil {
		t.Fatalf("Certify: %v", err)
	}
	if !cert.IsConfirmed() {
		t.Fatal("two-phase certification did not produce a confirmed certificate")
	}
	if tip := n.syncs[0].Chain(chainA).Tip(); tip.NextHeight != 1 {
		t.Errorf("chain A tip not advanced: %+v", tip)
	}
}

func TestCertifyRetriesOnRoundAdvance(t *testing.T) {
	n := newNetwork(t, 4, true)
	// Two of four validators down: weight 2 < quorum 3.
	n.client.down["node-2"] = true
	n.client.down["node-3"] = true

	p := n.buildProposal(t, types.FastRound())
	_, err := n.syncs[0].Certify(context.Background(), p)
	if !errors.Is(err, errors.ErrCodeQuorumUnreachable) {
		t.Fatalf("expected quorum_unreachable, got %v", err)
	}
	if n.syncs[0].PendingProposal(chainA) == nil {
		t.Fatal("failed proposal not remembered")
	}

	// Retrying in the same round is a no-op.
	n.syncs[0].OnRoundAdvance(context.Background(), chainA, types.FastRound())
	if tip := n.syncs[0].Chain(chainA).Tip(); tip.NextHeight != 0 {
		t.Fatal("same-round retry should not have run")
	}

	// Network heals; a round advance triggers exactly one retry.
	n.client.down = make(map[string]bool)
	n.syncs[0].OnRoundAdvance(context.Background(), chainA, types.MultiLeaderRound(0))
	if tip := n.syncs[0].Chain(chainA).Tip(); tip.NextHeight != 1 {
		t.Errorf("retry did not certify: %+v", tip)
	}
	if n.syncs[0].PendingProposal(chainA) != nil {
		t.Error("pending proposal not cleared after success")
	}
}

func TestDeliverConfirmedRedelivery(t *testing.T) {
	n := newNetwork(t, 4, true)
	p := n.buildProposal(t, types.FastRound())
	cert, err := n.syncs[0].Certify(context.Background(), p)
	if err != nil {
		t.Fatalf("Certify: %v", err)
	}
	// Redelivering the confirmed certificate must fail with stale height and
	// leave the tip alone.
	err = n.syncs[0].DeliverConfirmed(context.Background(), cert, p.Block)
	if !errors.Is(err, errors.ErrCodeStaleHeight) {
		t.Errorf("expected stale_height, got %v", err)
	}
	if tip := n.syncs[0].Chain(chainA).Tip(); tip.NextHeight != 1 {
		t.Errorf("redelivery moved the tip: %+v", tip)
	}
}
