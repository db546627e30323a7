package block

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"testing"

	"mcn/errors"
	"mcn/interfaces"
	"mcn/types"
)

// echoOracle emits one message per transaction so builder output is easy to
// inspect.
type echoOracle struct {
	dest types.ChainID
	fail bool
}

func (o *echoOracle) Apply(ctx context.Context, chainID types.ChainID, height uint64, tx interfaces.Transaction) (*interfaces.TransactionOutcome, error) {
	if o.fail {
		return nil, fmt.Errorf("boom")
	}
	return &interfaces.TransactionOutcome{
		Messages: []types.OutgoingMessage{
			{Destination: o.dest, Message: types.PostedMessage{Kind: types.SIMPLE_MESSAGE, Payload: []byte("out")}},
		},
		Result: types.OperationResult{Bytes: []byte("ok")},
	}, nil
}

func testInput() BuildInput {
	return BuildInput{
		ChainID:   types.ChainID{1},
		Epoch:     1,
		Height:    4,
		Timestamp: 99,
		IncomingBundles: []types.IncomingBundle{
			{
				Origin: types.ChainID{2},
				Bundle: types.MessageBundle{
					Height:  10,
					TxIndex: 0,
					Messages: []types.PostedMessage{
						{Kind: types.SIMPLE_MESSAGE, Payload: []byte("in")},
					},
				},
				Action: types.ACTION_ACCEPT,
			},
		},
		Operations: []types.Operation{{User: []byte("do-something")}},
	}
}

func TestBuildAndValidate(t *testing.T) {
	builder := NewBuilder(&echoOracle{dest: types.ChainID{3}})
	b, err := builder.Build(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := b.Body.TransactionCount(); got != 2 {
		t.Fatalf("expected 2 transactions, got %d", got)
	}
	if err := ValidateBody(b); err != nil {
		t.Fatalf("freshly built block fails validation: %v", err)
	}
	if got := b.Body.PreviousMessageBlocks[types.ChainID{2}.String()]; got != 10 {
		t.Errorf("previous message block height %d, want 10", got)
	}
}

func TestBuildFailureAbortsBlock(t *testing.T) {
	builder := NewBuilder(&echoOracle{fail: true})
	_, err := builder.Build(context.Background(), testInput())
	if !errors.Is(err, errors.ErrCodeExecutionFailed) {
		t.Errorf("expected execution_failed, got %v", err)
	}
}

func TestValidateBodyDetectsTampering(t *testing.T) {
	builder := NewBuilder(&echoOracle{dest: types.ChainID{3}})
	b, err := builder.Build(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b.Body.Operations[0].User = []byte("tampered")
	if err := ValidateBody(b); !errors.Is(err, errors.ErrCodeInvalidBlockHash) {
		t.Errorf("expected invalid_block_hash for tampered body, got %v", err)
	}
}

func TestValidateBodyBundleOrder(t *testing.T) {
	builder := NewBuilder(&echoOracle{dest: types.ChainID{3}})
	in := testInput()
	in.Operations = nil
	in.IncomingBundles = append(in.IncomingBundles, types.IncomingBundle{
		Origin: types.ChainID{2},
		Bundle: types.MessageBundle{Height: 9, TxIndex: 0},
		Action: types.ACTION_ACCEPT,
	})
	b, err := builder.Build(context.Background(), in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := ValidateBody(b); !errors.Is(err, errors.ErrCodeInvalidBundleOrder) {
		t.Errorf("expected invalid_bundle_order, got %v", err)
	}
}

func TestValidateAgainstTip(t *testing.T) {
	b := &Block{Header: Header{Height: 4, PreviousBlockHash: types.Hash{8}}}
	if err := ValidateAgainstTip(b, types.Hash{8}, 4); err != nil {
		t.Errorf("valid position rejected: %v", err)
	}
	if err := ValidateAgainstTip(b, types.Hash{8}, 5); !errors.Is(err, errors.ErrCodeStaleHeight) {
		t.Errorf("expected stale_height, got %v", err)
	}
	if err := ValidateAgainstTip(b, types.Hash{9}, 4); !errors.Is(err, errors.ErrCodeInvalidBlockHash) {
		t.Errorf("expected invalid_block_hash, got %v", err)
	}
}

func TestHashCommitsToBody(t *testing.T) {
	builder := NewBuilder(&echoOracle{dest: types.ChainID{3}})
	b1, err := builder.Build(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	in := testInput()
	in.Operations[0].User = []byte("something-else")
	b2, err := builder.Build(context.Background(), in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if b1.Hash() == b2.Hash() {
		t.Error("different bodies hash to the same block")
	}
	if b1.Hash() != b1.Hash() {
		t.Error("hash is not stable")
	}
}

func TestOutgoingBundlesGrouping(t *testing.T) {
	destA := types.ChainID{10}
	destB := types.ChainID{11}
	b := &Block{
		Header: Header{Height: 3, Timestamp: 50},
		Body: Body{
			Messages: [][]types.OutgoingMessage{
				{
					{Destination: destA, Message: types.PostedMessage{Payload: []byte("a1")}},
					{Destination: destB, Message: types.PostedMessage{Payload: []byte("b1")}},
					{Destination: destA, Message: types.PostedMessage{Payload: []byte("a2")}},
				},
				{
					{Destination: destA, Message: types.PostedMessage{Payload: []byte("a3")}},
				},
			},
		},
	}
	certHash := types.Hash{77}
	out := b.OutgoingBundles(certHash)

	bundlesA := out[destA]
	if len(bundlesA) != 2 {
		t.Fatalf("expected 2 bundles for destA, got %d", len(bundlesA))
	}
	// First transaction's messages to A stay together, in emission order.
	first := bundlesA[0]
	if first.Height != 3 || first.TxIndex != 0 || first.Certificate != certHash {
		t.Errorf("bundle metadata wrong: %+v", first)
	}
	if len(first.Messages) != 2 || string(first.Messages[0].Payload) != "a1" || string(first.Messages[1].Payload) != "a2" {
		t.Errorf("emission order lost: %+v", first.Messages)
	}
	if bundlesA[1].TxIndex != 1 {
		t.Errorf("second bundle tx index %d, want 1", bundlesA[1].TxIndex)
	}
	if len(out[destB]) != 1 || string(out[destB][0].Messages[0].Payload) != "b1" {
		t.Errorf("destB bundle wrong: %+v", out[destB])
	}
}

func TestProposalSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	b := &Block{Header: Header{ChainID: types.ChainID{1}, Height: 2}}
	p := NewProposal(b, types.MultiLeaderRound(1), "owner", priv)
	if !p.VerifySignature(pub) {
		t.Fatal("signature does not verify")
	}
	// The signature binds the round; replaying into another round must fail.
	p.Round = types.MultiLeaderRound(2)
	if p.VerifySignature(pub) {
		t.Error("signature verified for a different round")
	}
}
