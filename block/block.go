package block

import (
	"crypto/ed25519"

	"mcn/jsonx"
	"mcn/types"
)

// SectionHashes carries one content hash per body section. The header commits
// to the body only through these, so a certificate over a header certifies
// every section independently.
type SectionHashes struct {
	IncomingBundles       types.Hash `json:"incoming_bundles"`
	Operations            types.Hash `json:"operations"`
	Messages              types.Hash `json:"messages"`
	PreviousMessageBlocks types.Hash `json:"previous_message_blocks"`
	PreviousEventBlocks   types.Hash `json:"previous_event_blocks"`
	OracleResponses       types.Hash `json:"oracle_responses"`
	Events                types.Hash `json:"events"`
	Blobs                 types.Hash `json:"blobs"`
	OperationResults      types.Hash `json:"operation_results"`
}

// Header identifies a block position in its chain and commits to the body.
type Header struct {
	ChainID             types.ChainID `json:"chain_id"`
	Epoch               types.Epoch   `json:"epoch"`
	Height              uint64        `json:"height"`
	Timestamp           uint64        `json:"timestamp"`
	StateHash           types.Hash    `json:"state_hash"`
	PreviousBlockHash   types.Hash    `json:"previous_block_hash"`
	AuthenticatedSigner types.Address `json:"authenticated_signer,omitempty"`
	Sections            SectionHashes `json:"sections"`
}

// Body holds the block content. Transactions are the incoming bundles in
// order followed by the operations in order; the per-transaction sections
// (Messages, OracleResponses, Events, OperationResults) are indexed the same
// way.
type Body struct {
	IncomingBundles       []types.IncomingBundle    `json:"incoming_bundles"`
	Operations            []types.Operation         `json:"operations"`
	Messages              [][]types.OutgoingMessage `json:"messages"`
	PreviousMessageBlocks map[string]uint64         `json:"previous_message_blocks"`
	PreviousEventBlocks   map[string]uint64         `json:"previous_event_blocks"`
	OracleResponses       [][]types.OracleResponse  `json:"oracle_responses"`
	Events                [][]types.Event           `json:"events"`
	Blobs                 []types.Blob              `json:"blobs"`
	OperationResults      []types.OperationResult   `json:"operation_results"`
}

// TransactionCount is the number of executed transactions in the body.
func (b *Body) TransactionCount() int {
	return len(b.IncomingBundles) + len(b.Operations)
}

// Block is an immutable, content-addressed header + body pair.
type Block struct {
	Header Header `json:"header"`
	Body   Body   `json:"body"`
}

// Hash is the block's content address: the hash of its canonical header
// encoding. The header commits to the body via the section hashes.
func (b *Block) Hash() types.Hash {
	return types.NewHash(jsonx.MustMarshal(&b.Header))
}

func hashSection(v interface{}) types.Hash {
	return types.NewHash(jsonx.MustMarshal(v))
}

// ComputeSectionHashes recomputes the content hash of every body section.
func ComputeSectionHashes(body *Body) SectionHashes {
	return SectionHashes{
		IncomingBundles:       hashSection(body.IncomingBundles),
		Operations:            hashSection(body.Operations),
		Messages:              hashSection(body.Messages),
		PreviousMessageBlocks: hashSection(body.PreviousMessageBlocks),
		PreviousEventBlocks:   hashSection(body.PreviousEventBlocks),
		OracleResponses:       hashSection(body.OracleResponses),
		Events:                hashSection(body.Events),
		Blobs:                 hashSection(body.Blobs),
		OperationResults:      hashSection(body.OperationResults),
	}
}

// OutgoingBundles groups the block's outgoing messages by destination into
// message bundles, preserving emission order per transaction. certHash is the
// hash of the confirmed certificate carrying this block.
func (b *Block) OutgoingBundles(certHash types.Hash) map[types.ChainID][]types.MessageBundle {
	out := make(map[types.ChainID][]types.MessageBundle)
	for txIndex, messages := range b.Body.Messages {
		perDest := make(map[types.ChainID][]types.PostedMessage)
		var destOrder []types.ChainID
		for _, msg := range messages {
			if _, seen := perDest[msg.Destination]; !seen {
				destOrder = append(destOrder, msg.Destination)
			}
			perDest[msg.Destination] = append(perDest[msg.Destination], msg.Message)
		}
		for _, dest := range destOrder {
			out[dest] = append(out[dest], types.MessageBundle{
				Height:      b.Header.Height,
				Timestamp:   b.Header.Timestamp,
				Certificate: certHash,
				TxIndex:     uint32(txIndex),
				Messages:    perDest[dest],
			})
		}
	}
	return out
}

// Sign signs the block hash with the proposer key.
func Sign(b *Block, priv ed25519.PrivateKey) []byte {
	hash := b.Hash()
	return ed25519.Sign(priv, hash.Bytes())
}

// VerifySignature checks a proposer signature over the block hash.
func VerifySignature(b *Block, pub ed25519.PublicKey, sig []byte) bool {
	hash := b.Hash()
	return ed25519.Verify(pub, hash.Bytes(), sig)
}
