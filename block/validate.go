package block

import (
	"fmt"

	"mcn/errors"
	"mcn/types"
)

// ValidateBody recomputes every section hash from the received body and
// compares against the header. Validation never mutates anything; a mismatch
// is adversarial or corrupt and is rejected deterministically.
func ValidateBody(b *Block) error {
	recomputed := ComputeSectionHashes(&b.Body)
	if recomputed != b.Header.Sections {
		return errors.NewError(errors.ErrCodeInvalidBlockHash,
			fmt.Sprintf("section hashes do not match header for block %s", b.Hash()))
	}
	txCount := b.Body.TransactionCount()
	if len(b.Body.Messages) != txCount ||
		len(b.Body.OracleResponses) != txCount ||
		len(b.Body.Events) != txCount ||
		len(b.Body.OperationResults) != txCount {
		return errors.NewError(errors.ErrCodeInvalidBlockHash,
			fmt.Sprintf("per-transaction sections disagree with %d transactions", txCount))
	}
	return validateBundleOrder(b)
}

// validateBundleOrder checks the grouping invariant: bundles are grouped by
// (origin, height) preserving arrival order, with strictly increasing cursors
// per origin.
func validateBundleOrder(b *Block) error {
	lastCursor := make(map[types.ChainID]types.Cursor)
	seenCursor := make(map[types.ChainID]bool)
	for i := range b.Body.IncomingBundles {
		incoming := &b.Body.IncomingBundles[i]
		cursor := incoming.Bundle.Cursor()
		if seenCursor[incoming.Origin] && !lastCursor[incoming.Origin].Less(cursor) {
			return errors.NewError(errors.ErrCodeInvalidBundleOrder,
				fmt.Sprintf("bundle cursors for origin %s not increasing: %s then %s",
					incoming.Origin, lastCursor[incoming.Origin], cursor))
		}
		lastCursor[incoming.Origin] = cursor
		seenCursor[incoming.Origin] = true
	}
	return nil
}

// ValidateAgainstTip checks the chain-position invariants of a proposed
// block: the height must equal the chain's next height and the previous hash
// must equal the current tip.
func ValidateAgainstTip(b *Block, tipHash types.Hash, nextHeight uint64) error {
	if b.Header.Height != nextHeight {
		return errors.NewError(errors.ErrCodeStaleHeight,
			fmt.Sprintf("block height %d, chain expects %d", b.Header.Height, nextHeight))
	}
	if b.Header.PreviousBlockHash != tipHash {
		return errors.NewError(errors.ErrCodeInvalidBlockHash,
			fmt.Sprintf("previous hash %s does not match tip %s", b.Header.PreviousBlockHash, tipHash))
	}
	return nil
}
