package events

import (
	"time"

	"mcn/types"
)

// EventType is an enum-like string type for chain events
type EventType string

const (
	EventTipChanged      EventType = "TipChanged"
	EventRoundAdvanced   EventType = "RoundAdvanced"
	EventFallbackEntered EventType = "FallbackEntered"
	EventBundlesReceived EventType = "BundlesReceived"
)

// ChainEvent represents any cross-chain notification a node surfaces
type ChainEvent interface {
	Type() EventType
	Timestamp() time.Time
	ChainID() types.ChainID
}

// TipChanged fires when a chain confirms a block and its tip moves.
type TipChanged struct {
	chainID   types.ChainID
	height    uint64
	blockHash types.Hash
	timestamp time.Time
}

func NewTipChanged(chainID types.ChainID, height uint64, blockHash types.Hash) *TipChanged {
	return &TipChanged{chainID: chainID, height: height, blockHash: blockHash, timestamp: time.Now()}
}

func (e *TipChanged) Type() EventType        { return EventTipChanged }
func (e *TipChanged) Timestamp() time.Time   { return e.timestamp }
func (e *TipChanged) ChainID() types.ChainID { return e.chainID }
func (e *TipChanged) Height() uint64         { return e.height }
func (e *TipChanged) BlockHash() types.Hash  { return e.blockHash }

// RoundAdvanced fires when a chain's manager moves to a higher round; the
// synchronizer uses it to retry pending proposals, once per advance.
type RoundAdvanced struct {
	chainID   types.ChainID
	round     types.Round
	timestamp time.Time
}

func NewRoundAdvanced(chainID types.ChainID, round types.Round) *RoundAdvanced {
	return &RoundAdvanced{chainID: chainID, round: round, timestamp: time.Now()}
}

func (e *RoundAdvanced) Type() EventType        { return EventRoundAdvanced }
func (e *RoundAdvanced) Timestamp() time.Time   { return e.timestamp }
func (e *RoundAdvanced) ChainID() types.ChainID { return e.chainID }
func (e *RoundAdvanced) Round() types.Round     { return e.round }

// FallbackEntered fires when a chain activates its fallback owner set.
type FallbackEntered struct {
	chainID   types.ChainID
	timestamp time.Time
}

func NewFallbackEntered(chainID types.ChainID) *FallbackEntered {
	return &FallbackEntered{chainID: chainID, timestamp: time.Now()}
}

func (e *FallbackEntered) Type() EventType        { return EventFallbackEntered }
func (e *FallbackEntered) Timestamp() time.Time   { return e.timestamp }
func (e *FallbackEntered) ChainID() types.ChainID { return e.chainID }

// BundlesReceived fires when bundles land in a chain's inbox.
type BundlesReceived struct {
	chainID   types.ChainID
	origin    types.ChainID
	count     int
	timestamp time.Time
}

func NewBundlesReceived(chainID, origin types.ChainID, count int) *BundlesReceived {
	return &BundlesReceived{chainID: chainID, origin: origin, count: count, timestamp: time.Now()}
}

func (e *BundlesReceived) Type() EventType        { return EventBundlesReceived }
func (e *BundlesReceived) Timestamp() time.Time   { return e.timestamp }
func (e *BundlesReceived) ChainID() types.ChainID { return e.chainID }
func (e *BundlesReceived) Origin() types.ChainID  { return e.origin }
func (e *BundlesReceived) Count() int             { return e.count }
