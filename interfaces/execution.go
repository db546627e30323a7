package interfaces

import (
	"context"

	"mcn/types"
)

// Transaction is one unit handed to the execution oracle: either an incoming
// bundle or an operation, never both.
type Transaction struct {
	Bundle    *types.IncomingBundle
	Operation *types.Operation
}

// TransactionOutcome is everything one executed transaction produced.
type TransactionOutcome struct {
	Messages        []types.OutgoingMessage
	Events          []types.Event
	OracleResponses []types.OracleResponse
	Blobs           []types.Blob
	Result          types.OperationResult
}

// ExecutionOracle is the opaque execution sandbox. The core never interprets
// operation payloads; it only sequences transactions and records outcomes.
// A failed transaction rejects the whole block before certification, so no
// partial state ever reaches the log.
type ExecutionOracle interface {
	Apply(ctx context.Context, chainID types.ChainID, height uint64, tx Transaction) (*TransactionOutcome, error)
}
