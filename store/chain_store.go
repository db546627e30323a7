package store

import (
	"encoding/binary"
	"fmt"
	"sync"

	"mcn/block"
	"mcn/chain"
	"mcn/consensus"
	"mcn/db"
	"mcn/jsonx"
	"mcn/logx"
	"mcn/types"
)

// ChainStore persists chain snapshots, blocks and certificates on any
// DatabaseProvider. A confirmed block, its certificate and the updated chain
// snapshot commit in a single atomic batch; a crash never leaves a certified
// block without the state that justified it.
type ChainStore struct {
	provider db.IterableProvider
	mu       sync.RWMutex
	// chainIndex caches the ids of every chain this node tracks.
	chainIndex map[types.ChainID]bool
}

func NewChainStore(provider db.IterableProvider) (*ChainStore, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	s := &ChainStore{
		provider:   provider,
		chainIndex: make(map[types.ChainID]bool),
	}
	if err := s.loadChainIndex(); err != nil {
		return nil, fmt.Errorf("failed to load chain index: %w", err)
	}
	return s, nil
}

func (s *ChainStore) loadChainIndex() error {
	value, err := s.provider.Get([]byte(PrefixMeta + MetaKeyChainIndex))
	if err != nil {
		return err
	}
	if value == nil {
		return nil
	}
	var ids []types.ChainID
	if err := jsonx.Unmarshal(value, &ids); err != nil {
		return err
	}
	for _, id := range ids {
		s.chainIndex[id] = true
	}
	return nil
}

func chainKey(id types.ChainID) []byte {
	return []byte(PrefixChain + id.String())
}

func blockKey(hash types.Hash) []byte {
	return []byte(PrefixBlock + hash.String())
}

func certKey(hash types.Hash) []byte {
	return []byte(PrefixCert + hash.String())
}

func confirmedKey(id types.ChainID, height uint64) []byte {
	key := make([]byte, 0, len(PrefixConfirmed)+len(id.String())+9)
	key = append(key, PrefixConfirmed...)
	key = append(key, id.String()...)
	key = append(key, ':')
	var heightBytes [8]byte
	binary.BigEndian.PutUint64(heightBytes[:], height)
	return append(key, heightBytes[:]...)
}

// SaveConfirmed atomically persists a confirmed block, its certificate, the
// confirmed-log entry and the post-application chain snapshot.
func (s *ChainStore) SaveConfirmed(snap *chain.Snapshot, b *block.Block, cert *consensus.Cert) error {
	batch := s.provider.Batch()
	defer batch.Close()

	blockHash := b.Hash()
	certHash := cert.Hash()
	batch.Put(chainKey(snap.ID), jsonx.MustMarshal(snap))
	batch.Put(blockKey(blockHash), jsonx.MustMarshal(b))
	batch.Put(certKey(certHash), jsonx.MustMarshal(cert))
	// The confirmed-log entry carries both hashes so retransmission can
	// rebuild bundles with the certificate that scheduled them.
	batch.Put(confirmedKey(snap.ID, b.Header.Height), append(blockHash.Bytes(), certHash.Bytes()...))

	if err := s.indexChainLocked(batch, snap.ID); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("failed to commit confirmed block: %w", err)
	}
	logx.Debug("STORE", fmt.Sprintf("persisted chain %s height %d block %s", snap.ID, b.Header.Height, blockHash))
	return nil
}

// SaveChain persists a chain snapshot alone (chain creation, received
// bundles).
func (s *ChainStore) SaveChain(snap *chain.Snapshot) error {
	batch := s.provider.Batch()
	defer batch.Close()
	batch.Put(chainKey(snap.ID), jsonx.MustMarshal(snap))
	if err := s.indexChainLocked(batch, snap.ID); err != nil {
		return err
	}
	return batch.Write()
}

func (s *ChainStore) indexChainLocked(batch db.DatabaseBatch, id types.ChainID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chainIndex[id] {
		return nil
	}
	s.chainIndex[id] = true
	ids := make([]types.ChainID, 0, len(s.chainIndex))
	for chainID := range s.chainIndex {
		ids = append(ids, chainID)
	}
	batch.Put([]byte(PrefixMeta+MetaKeyChainIndex), jsonx.MustMarshal(ids))
	return nil
}

// Chain loads a chain snapshot, nil when unknown.
func (s *ChainStore) Chain(id types.ChainID) (*chain.Snapshot, error) {
	value, err := s.provider.Get(chainKey(id))
	if err != nil || value == nil {
		return nil, err
	}
	var snap chain.Snapshot
	if err := jsonx.Unmarshal(value, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ChainIDs lists every chain this node tracks.
func (s *ChainStore) ChainIDs() []types.ChainID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]types.ChainID, 0, len(s.chainIndex))
	for id := range s.chainIndex {
		ids = append(ids, id)
	}
	return ids
}

// Block loads a block by content hash, nil when unknown.
func (s *ChainStore) Block(hash types.Hash) (*block.Block, error) {
	value, err := s.provider.Get(blockKey(hash))
	if err != nil || value == nil {
		return nil, err
	}
	var b block.Block
	if err := jsonx.Unmarshal(value, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Cert loads a certificate by content hash, nil when unknown.
func (s *ChainStore) Cert(hash types.Hash) (*consensus.Cert, error) {
	value, err := s.provider.Get(certKey(hash))
	if err != nil || value == nil {
		return nil, err
	}
	var cert consensus.Cert
	if err := jsonx.Unmarshal(value, &cert); err != nil {
		return nil, err
	}
	return &cert, nil
}

// ConfirmedRange iterates the confirmed log of a chain from fromHeight
// upward, in height order, yielding the block and certificate hashes.
func (s *ChainStore) ConfirmedRange(id types.ChainID, fromHeight uint64, visit func(height uint64, blockHash, certHash types.Hash) bool) error {
	prefix := []byte(PrefixConfirmed + id.String() + ":")
	return s.provider.IteratePrefix(prefix, func(key, value []byte) bool {
		if len(key) < len(prefix)+8 || len(value) != 64 {
			return true
		}
		height := binary.BigEndian.Uint64(key[len(prefix):])
		if height < fromHeight {
			return true
		}
		var blockHash, certHash types.Hash
		copy(blockHash[:], value[:32])
		copy(certHash[:], value[32:])
		return visit(height, blockHash, certHash)
	})
}
