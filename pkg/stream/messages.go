// Package stream implements C10, the indexer feed decoder: it turns raw
// per-block wire messages into BlockUpdate values carrying typed
// protocol.ProtocolSim states, by dispatching each component to the
// protocol family's registered C9 snapshot decoder.
package stream

import (
	"github.com/dexsim/protosim/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ChangeType discriminates the shape of an AccountUpdate, matching the
// indexer's four-way account change enum.
type ChangeType int

const (
	ChangeUnspecified ChangeType = iota
	ChangeCreation
	ChangeUpdate
	ChangeDeletion
)

// AccountUpdate is one entry of a message's account_updates: a full or
// partial state change for a contract the VM engine tracks.
type AccountUpdate struct {
	Address common.Address
	Chain   string
	Slots   map[common.Hash]common.Hash
	Balance *uint256.Int
	Code    []byte
	Change  ChangeType
}

// ResponseAccount is a full account snapshot, as carried by a message's
// vm_storage map.
type ResponseAccount struct {
	Address common.Address
	Slots   map[common.Hash]common.Hash
	Balance *uint256.Int
	Code    []byte
}

// Snapshots is the state-snapshot half of a ProtocolMsg.
type Snapshots struct {
	States    map[string]protocol.ComponentWithState
	VMStorage map[common.Address]ResponseAccount
}

// Deltas is the optional incremental-update half of a ProtocolMsg.
type Deltas struct {
	NewTokens         map[common.Address]protocol.TokenMeta
	RemovedComponents map[string]protocol.ProtocolComponent
	StateUpdates      map[string]protocol.ProtocolStateDelta
	AccountUpdates    map[common.Address]AccountUpdate
}

// ProtocolMsg is a single protocol's contribution to one block's feed
// message: a block header, its snapshots, and an optional delta batch.
type ProtocolMsg struct {
	Header    protocol.BlockHeader
	Snapshots Snapshots
	Deltas    *Deltas
}

// FeedMessage is one block's worth of indexer output, keyed by protocol id
// (e.g. "uniswap_v2", "vm:balancer_v2").
type FeedMessage struct {
	StateMsgs map[string]ProtocolMsg
}

// BlockUpdate is Decode's result: every pool state touched this block, the
// newly admitted components, and the components that were removed.
type BlockUpdate struct {
	BlockNumber  uint64
	States       map[string]protocol.ProtocolSim
	NewPairs     map[string]protocol.ProtocolComponent
	RemovedPairs map[string]protocol.ProtocolComponent
}

// DecoderFunc is a registered C9 snapshot decoder, bound to a single
// protocol id.
type DecoderFunc func(snapshot protocol.ComponentWithState, header protocol.BlockHeader, knownTokens map[common.Address]protocol.Token) (protocol.ProtocolSim, error)

// FilterFunc is a client-side inclusion predicate: components it rejects
// are skipped before decoding is even attempted.
type FilterFunc func(snapshot protocol.ComponentWithState) bool
