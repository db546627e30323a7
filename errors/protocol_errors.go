package errors

import (
	"errors"

	"mcn/jsonx"
)

// ProtocolErrorCode classifies every deterministic rejection the core can
// emit. Protocol violations are evidence of an adversarial or buggy peer and
// are never retried; ordering violations reject a single bundle; transient
// transport failures are retried round-bounded by the synchronizer.
type ProtocolErrorCode string

const (
	// Protocol violations
	ErrCodeWrongRound       ProtocolErrorCode = "wrong_round"
	ErrCodeEquivocation     ProtocolErrorCode = "equivocation"
	ErrCodeStaleHeight      ProtocolErrorCode = "stale_height"
	ErrCodeInvalidBlockHash ProtocolErrorCode = "invalid_block_hash"
	ErrCodeConflictingVote  ProtocolErrorCode = "conflicting_vote"
	ErrCodeInvalidSignature ProtocolErrorCode = "invalid_signature"
	ErrCodeInvalidProposer  ProtocolErrorCode = "invalid_proposer"

	// Ordering violations
	ErrCodeInvalidBundleOrder ProtocolErrorCode = "invalid_bundle_order"
	ErrCodeUnexpectedBundle   ProtocolErrorCode = "unexpected_bundle"

	// Chain state
	ErrCodeChainClosed     ProtocolErrorCode = "chain_closed"
	ErrCodeChainNotFound   ProtocolErrorCode = "chain_not_found"
	ErrCodeUnknownEpoch    ProtocolErrorCode = "unknown_epoch"
	ErrCodeExecutionFailed ProtocolErrorCode = "execution_failed"
	ErrCodeChargeExceeded  ProtocolErrorCode = "charge_exceeded"

	// Certification
	ErrCodeQuorumUnreachable ProtocolErrorCode = "quorum_unreachable"
	ErrCodeMissingCertificate ProtocolErrorCode = "missing_certificate"

	// Transport / storage
	ErrCodeTransport ProtocolErrorCode = "transport_error"
	ErrCodeStorage   ProtocolErrorCode = "storage_error"
	ErrCodeInternal  ProtocolErrorCode = "internal_error"
)

// ProtocolError is the standardized error envelope; it renders as canonical
// JSON so rejections look the same in logs and on the wire.
type ProtocolError struct {
	Code    ProtocolErrorCode `json:"code"`
	Message string            `json:"message"`
}

func (e *ProtocolError) Error() string {
	out, _ := jsonx.Marshal(e)
	return string(out)
}

// NewError creates a new ProtocolError and returns it as error interface
func NewError(code ProtocolErrorCode, message string) error {
	return &ProtocolError{
		Code:    code,
		Message: message,
	}
}

// CodeOf extracts the protocol code from an error, or ErrCodeInternal for
// errors that did not originate in the core.
func CodeOf(err error) ProtocolErrorCode {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given protocol code.
func Is(err error, code ProtocolErrorCode) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Code == code
}

// Retriable reports whether the synchronizer may retry the failed call.
// Only transient transport and storage failures qualify; every deterministic
// rejection must surface to the caller unchanged.
func Retriable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeTransport, ErrCodeStorage, ErrCodeQuorumUnreachable:
		return true
	default:
		return false
	}
}
