package execution

import (
	"context"
	"fmt"

	"mcn/committee"
	"mcn/interfaces"
	"mcn/jsonx"
	"mcn/types"
)

// SystemExecutor applies the protocol-fixed system operations natively and
// treats incoming bundles as accepted transfers. User operations are not its
// business; wrap it with a Wasm executor for those.
type SystemExecutor struct {
	registry *committee.Registry
}

func NewSystemExecutor(registry *committee.Registry) *SystemExecutor {
	return &SystemExecutor{registry: registry}
}

// CreditPayload is the payload of a transfer message.
type CreditPayload struct {
	Owner types.Address `json:"owner,omitempty"`
}

func (e *SystemExecutor) Apply(ctx context.Context, chainID types.ChainID, height uint64,
	tx interfaces.Transaction) (*interfaces.TransactionOutcome, error) {
	switch {
	case tx.Bundle != nil:
		return e.applyBundle(tx.Bundle)
	case tx.Operation != nil:
		return e.applyOperation(chainID, tx.Operation)
	default:
		return nil, fmt.Errorf("empty transaction")
	}
}

func (e *SystemExecutor) applyBundle(incoming *types.IncomingBundle) (*interfaces.TransactionOutcome, error) {
	outcome := &interfaces.TransactionOutcome{}
	for i := range incoming.Bundle.Messages {
		msg := &incoming.Bundle.Messages[i]
		if incoming.Action == types.ACTION_REJECT && msg.Kind == types.TRACKED_MESSAGE {
			// Rejected tracked messages bounce back to the sender.
			outcome.Messages = append(outcome.Messages, types.OutgoingMessage{
				Destination: incoming.Origin,
				Message: types.PostedMessage{
					Kind:     types.BOUNCING_MESSAGE,
					Grant:    msg.Grant,
					RefundTo: msg.RefundTo,
					Payload:  msg.Payload,
				},
			})
		}
	}
	return outcome, nil
}

func (e *SystemExecutor) applyOperation(chainID types.ChainID, op *types.Operation) (*interfaces.TransactionOutcome, error) {
	if !op.IsSystem() {
		return nil, fmt.Errorf("system executor cannot apply user operations")
	}
	outcome := &interfaces.TransactionOutcome{}
	sys := op.System
	switch sys.Kind {
	case types.OP_TRANSFER:
		if sys.Amount == nil || sys.Amount.IsZero() {
			return nil, fmt.Errorf("transfer of zero amount")
		}
		outcome.Messages = append(outcome.Messages, types.OutgoingMessage{
			Destination: sys.Recipient,
			Message: types.PostedMessage{
				Kind:    types.TRACKED_MESSAGE,
				Grant:   sys.Amount,
				Payload: jsonx.MustMarshal(CreditPayload{Owner: sys.Owner}),
			},
		})
	case types.OP_OPEN_CHAIN, types.OP_CLOSE_CHAIN:
		// Topology effects are applied by the chain when the block confirms.
	case types.OP_ADD_COMMITTEE:
		outcome.Events = append(outcome.Events, types.Event{
			StreamName: "committees",
			Payload:    jsonx.MustMarshal(struct{ Epoch types.Epoch }{sys.Epoch}),
		})
	case types.OP_REMOVE_COMMITTEE:
		e.registry.Remove(sys.Epoch)
	case types.OP_PUBLISH_BLOB, types.OP_READ_BLOB:
		outcome.OracleResponses = append(outcome.OracleResponses, types.OracleResponse{
			Bytes: sys.BlobHash.Bytes(),
		})
	default:
		return nil, fmt.Errorf("unknown system operation %d", sys.Kind)
	}
	return outcome, nil
}
