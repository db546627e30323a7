package block

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"mcn/committee"
	"mcn/errors"
	"mcn/interfaces"
	"mcn/types"
)

// Builder assembles a block body by running every transaction through the
// execution oracle in order: incoming bundles first, grouped by (origin,
// height) in arrival order, then operations in array order. Any execution
// failure aborts the whole build; a block that fails to build never reaches
// certification.
type Builder struct {
	oracle interfaces.ExecutionOracle
}

func NewBuilder(oracle interfaces.ExecutionOracle) *Builder {
	return &Builder{oracle: oracle}
}

// Inputs for one block proposal, everything below the header.
type BuildInput struct {
	ChainID           types.ChainID
	Epoch             types.Epoch
	Height            uint64
	Timestamp         uint64
	StateHash         types.Hash
	PreviousBlockHash types.Hash
	Signer            types.Address
	IncomingBundles   []types.IncomingBundle
	Operations        []types.Operation
}

// Build executes the transactions and assembles the content-addressed block.
func (bb *Builder) Build(ctx context.Context, in BuildInput) (*Block, error) {
	txCount := len(in.IncomingBundles) + len(in.Operations)
	body := Body{
		IncomingBundles:       in.IncomingBundles,
		Operations:            in.Operations,
		Messages:              make([][]types.OutgoingMessage, 0, txCount),
		PreviousMessageBlocks: make(map[string]uint64),
		PreviousEventBlocks:   make(map[string]uint64),
		OracleResponses:       make([][]types.OracleResponse, 0, txCount),
		Events:                make([][]types.Event, 0, txCount),
		OperationResults:      make([]types.OperationResult, 0, txCount),
	}

	apply := func(tx interfaces.Transaction) error {
		outcome, err := bb.oracle.Apply(ctx, in.ChainID, in.Height, tx)
		if err != nil {
			return errors.NewError(errors.ErrCodeExecutionFailed,
				fmt.Sprintf("chain %s height %d: %v", in.ChainID, in.Height, err))
		}
		body.Messages = append(body.Messages, emptyIfNil(outcome.Messages))
		body.OracleResponses = append(body.OracleResponses, emptyIfNilResponses(outcome.OracleResponses))
		body.Events = append(body.Events, emptyIfNilEvents(outcome.Events))
		body.Blobs = append(body.Blobs, outcome.Blobs...)
		body.OperationResults = append(body.OperationResults, outcome.Result)
		return nil
	}

	for i := range in.IncomingBundles {
		bundle := &in.IncomingBundles[i]
		if err := apply(interfaces.Transaction{Bundle: bundle}); err != nil {
			return nil, err
		}
		origin := bundle.Origin.String()
		if prev, ok := body.PreviousMessageBlocks[origin]; !ok || bundle.Bundle.Height > prev {
			body.PreviousMessageBlocks[origin] = bundle.Bundle.Height
		}
	}
	for i := range in.Operations {
		if err := apply(interfaces.Transaction{Operation: &in.Operations[i]}); err != nil {
			return nil, err
		}
	}
	for _, events := range body.Events {
		for _, ev := range events {
			body.PreviousEventBlocks[ev.StreamName] = in.Height
		}
	}

	header := Header{
		ChainID:             in.ChainID,
		Epoch:               in.Epoch,
		Height:              in.Height,
		Timestamp:           in.Timestamp,
		StateHash:           in.StateHash,
		PreviousBlockHash:   in.PreviousBlockHash,
		AuthenticatedSigner: in.Signer,
		Sections:            ComputeSectionHashes(&body),
	}
	return &Block{Header: header, Body: body}, nil
}

// ChargeOf prices a built block under a committee's policy: flat charges per
// operation, per emitted message, and per byte of user payload and published
// blob data.
func ChargeOf(pricing committee.PricingPolicy, b *Block) *uint256.Int {
	var messages, payload uint64
	for _, msgs := range b.Body.Messages {
		messages += uint64(len(msgs))
	}
	for i := range b.Body.Operations {
		payload += uint64(len(b.Body.Operations[i].User))
	}
	for i := range b.Body.Blobs {
		payload += uint64(len(b.Body.Blobs[i].Bytes))
	}
	return pricing.Charge(uint64(len(b.Body.Operations)), messages, payload)
}

func emptyIfNil(msgs []types.OutgoingMessage) []types.OutgoingMessage {
	if msgs == nil {
		return []types.OutgoingMessage{}
	}
	return msgs
}

func emptyIfNilResponses(rs []types.OracleResponse) []types.OracleResponse {
	if rs == nil {
		return []types.OracleResponse{}
	}
	return rs
}

func emptyIfNilEvents(evs []types.Event) []types.Event {
	if evs == nil {
		return []types.Event{}
	}
	return evs
}
