package types

import (
	"fmt"

	"github.com/holiman/uint256"
)

// MessageKind controls how a posted message may be handled by the receiver.
type MessageKind int

const (
	// SIMPLE_MESSAGE may be skipped or rejected freely by the receiver.
	SIMPLE_MESSAGE MessageKind = iota
	// TRACKED_MESSAGE is bounced back to the sender when rejected.
	TRACKED_MESSAGE
	// PROTECTED_MESSAGE cannot be skipped or rejected while the sender chain
	// is still active.
	PROTECTED_MESSAGE
	// BOUNCING_MESSAGE is a tracked message travelling back to its sender.
	BOUNCING_MESSAGE
)

func (k MessageKind) String() string {
	switch k {
	case SIMPLE_MESSAGE:
		return "simple"
	case TRACKED_MESSAGE:
		return "tracked"
	case PROTECTED_MESSAGE:
		return "protected"
	case BOUNCING_MESSAGE:
		return "bouncing"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Address identifies an owner (a base58 ed25519 public key).
type Address string

// PostedMessage is one message inside a bundle.
type PostedMessage struct {
	Kind                MessageKind  `json:"kind"`
	AuthenticatedSigner Address      `json:"authenticated_signer,omitempty"`
	Grant               *uint256.Int `json:"grant,omitempty"`
	RefundTo            Address      `json:"refund_to,omitempty"`
	Payload             []byte       `json:"payload"`
}

// IsSkippable reports whether a receiver block may silently skip the message.
func (m *PostedMessage) IsSkippable() bool {
	return m.Kind == SIMPLE_MESSAGE
}

// Cursor totally orders bundles within one inbox or outbox: the height of the
// sender block, then the transaction index inside it.
type Cursor struct {
	Height uint64 `json:"height"`
	Index  uint32 `json:"index"`
}

func (c Cursor) Cmp(other Cursor) int {
	switch {
	case c.Height < other.Height:
		return -1
	case c.Height > other.Height:
		return 1
	case c.Index < other.Index:
		return -1
	case c.Index > other.Index:
		return 1
	default:
		return 0
	}
}

func (c Cursor) Less(other Cursor) bool {
	return c.Cmp(other) < 0
}

// Successor is the smallest cursor strictly greater than c; a bundle at the
// next height always compares above it.
func (c Cursor) Successor() Cursor {
	return Cursor{Height: c.Height, Index: c.Index + 1}
}

func (c Cursor) String() string {
	return fmt.Sprintf("%d.%d", c.Height, c.Index)
}

// MessageBundle groups the messages posted by one transaction of one certified
// sender block. Bundles are delivered atomically.
type MessageBundle struct {
	Height      uint64          `json:"height"`
	Timestamp   uint64          `json:"timestamp"`
	Certificate Hash            `json:"certificate"`
	TxIndex     uint32          `json:"tx_index"`
	Messages    []PostedMessage `json:"messages"`
}

func (b *MessageBundle) Cursor() Cursor {
	return Cursor{Height: b.Height, Index: b.TxIndex}
}

// IsSkippable reports whether every message in the bundle is skippable.
func (b *MessageBundle) IsSkippable() bool {
	for i := range b.Messages {
		if !b.Messages[i].IsSkippable() {
			return false
		}
	}
	return true
}

// Equal compares bundles by content; reconciliation between anticipated
// removals and late additions relies on exact equality.
func (b *MessageBundle) Equal(other *MessageBundle) bool {
	if b.Height != other.Height || b.TxIndex != other.TxIndex ||
		b.Timestamp != other.Timestamp || b.Certificate != other.Certificate ||
		len(b.Messages) != len(other.Messages) {
		return false
	}
	for i := range b.Messages {
		if !postedMessageEqual(&b.Messages[i], &other.Messages[i]) {
			return false
		}
	}
	return true
}

func postedMessageEqual(a, b *PostedMessage) bool {
	if a.Kind != b.Kind || a.AuthenticatedSigner != b.AuthenticatedSigner || a.RefundTo != b.RefundTo {
		return false
	}
	if (a.Grant == nil) != (b.Grant == nil) {
		return false
	}
	if a.Grant != nil && a.Grant.Cmp(b.Grant) != 0 {
		return false
	}
	if len(a.Payload) != len(b.Payload) {
		return false
	}
	for i := range a.Payload {
		if a.Payload[i] != b.Payload[i] {
			return false
		}
	}
	return true
}

// IncomingBundle is a bundle as seen by the receiver chain, tagged with its
// origin and the action the receiving block takes.
type IncomingBundle struct {
	Origin ChainID       `json:"origin"`
	Bundle MessageBundle `json:"bundle"`
	Action MessageAction `json:"action"`
}

// MessageAction is what the receiving block does with a bundle.
type MessageAction int

const (
	ACTION_ACCEPT MessageAction = iota
	ACTION_REJECT
)
