package types

import "github.com/holiman/uint256"

// SystemOpKind enumerates the protocol-fixed system operations. The variant
// set is closed; dispatch is an explicit switch, not an open hierarchy.
type SystemOpKind int

const (
	OP_TRANSFER SystemOpKind = iota
	OP_OPEN_CHAIN
	OP_CLOSE_CHAIN
	OP_ADD_COMMITTEE
	OP_REMOVE_COMMITTEE
	OP_PUBLISH_BLOB
	OP_READ_BLOB
)

// SystemOperation is one tagged variant; exactly the fields for its kind are
// set.
type SystemOperation struct {
	Kind SystemOpKind `json:"kind"`

	// OP_TRANSFER
	Recipient ChainID      `json:"recipient,omitempty"`
	Owner     Address      `json:"owner,omitempty"`
	Amount    *uint256.Int `json:"amount,omitempty"`

	// OP_OPEN_CHAIN
	NewOwners []Address `json:"new_owners,omitempty"`

	// OP_ADD_COMMITTEE / OP_REMOVE_COMMITTEE
	Epoch Epoch `json:"epoch,omitempty"`

	// OP_PUBLISH_BLOB / OP_READ_BLOB
	BlobHash Hash `json:"blob_hash,omitempty"`
}

// Operation is either a system operation or an opaque user operation handed
// to the execution oracle.
type Operation struct {
	System *SystemOperation `json:"system,omitempty"`
	User   []byte           `json:"user,omitempty"`
}

func (op *Operation) IsSystem() bool {
	return op.System != nil
}

// OutgoingMessage is a message emitted by one transaction, addressed to a
// destination chain. Certified sender blocks turn these into bundles.
type OutgoingMessage struct {
	Destination ChainID       `json:"destination"`
	Message     PostedMessage `json:"message"`
}

// OracleResponse records one answer the execution oracle gave during a
// transaction; responses are replayed byte-identical during validation.
type OracleResponse struct {
	Bytes []byte `json:"bytes"`
}

// Event is an indexed record emitted by a transaction into a named stream.
type Event struct {
	StreamName string `json:"stream_name"`
	Index      uint32 `json:"index"`
	Payload    []byte `json:"payload"`
}

// Blob is opaque content-addressed data published or read by a block.
type Blob struct {
	Hash  Hash   `json:"hash"`
	Bytes []byte `json:"bytes"`
}

// OperationResult is the opaque return value of one executed operation.
type OperationResult struct {
	Bytes []byte `json:"bytes"`
}
