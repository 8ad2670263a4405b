package protocol

import (
	"github.com/dexsim/protosim/pkg/evmdb"
	"github.com/ethereum/go-ethereum/common"
)

// ComponentState is the state half of a ComponentWithState: the raw
// attribute bag a C9 decoder interprets into typed fields.
type ComponentState struct {
	Attributes map[string][]byte
}

// ComponentWithState pairs a component's static shape with its raw state
// attributes, the unit every C9 snapshot decoder consumes.
type ComponentWithState struct {
	Component ProtocolComponent
	State     ComponentState
}

// TokenMeta is the wire shape of a newly observed token; only tokens at or
// above a decoder's configured quality threshold are admitted.
type TokenMeta struct {
	Quality      uint8
	Decimals     uint8
	Symbol       string
	GasEstimates []uint64
}

// BlockHeader is reused from evmdb: both the RPC-backed cache and the
// indexer feed pin reads/decodes to the same { number, hash, timestamp }
// identity.
type BlockHeader = evmdb.BlockHeader

// SnapshotDecoder is the per-protocol C9 constructor every family package
// implements: decode a snapshot into a concrete ProtocolSim, or fail with
// an InvalidSnapshotError.
type SnapshotDecoder func(snapshot ComponentWithState, header BlockHeader, knownTokens map[common.Address]Token) (ProtocolSim, error)
