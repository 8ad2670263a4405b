// Package protocol holds the shared vocabulary every concrete pool
// implementation (constant-product, concentrated-liquidity, VM-backed)
// speaks: the ProtocolSim contract, the shared data model, and the error
// taxonomy callers switch on.
package protocol

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is a single ERC20 known to the engine.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
	Gas      uint64
	// Quality gates admission into the known-token registry; tokens below
	// the stream decoder's configured threshold are never ingested.
	Quality uint8
}

// Capability flags a behaviour a protocol component supports, discovered
// (for VM pools) by probing the adapter contract.
type Capability int

const (
	CapabilitySellSide Capability = iota
	CapabilityBuySide
	CapabilityPriceFunction
	CapabilityFeeOnTransfer
	CapabilityConstantPrice
	CapabilityScaledPrice
	CapabilityHardLimits
	CapabilityTokenBalanceIndependent
	CapabilityShareErrors
	CapabilityMarginalPrice
)

// ProtocolComponent is the static shape of a pool: its id, the protocol
// that owns it, and the tokens it trades.
type ProtocolComponent struct {
	ID              string
	ProtocolSystem  string
	Tokens          []common.Address
	StaticAttribute map[string][]byte
}

// ProtocolStateDelta is the wire-level delta applied to a pool's attribute
// map between two blocks.
type ProtocolStateDelta struct {
	UpdatedAttributes map[string][]byte
	DeletedAttributes map[string]struct{}
}

// GetAmountOutResult is the outcome of a successful (or partially clamped)
// swap quote.
type GetAmountOutResult struct {
	AmountOut *uint256.Int
	GasUsed   uint64
	NewState  ProtocolSim
}

// ProtocolSim is the contract every concrete pool state implements: spot
// pricing, swap quoting, delta application, and value-semantics cloning.
type ProtocolSim interface {
	// SpotPrice returns the price of base denominated in quote.
	SpotPrice(base, quote common.Address) (float64, error)
	// GetAmountOut quotes a swap of amountIn of tokenIn for tokenOut,
	// returning the resulting state as a new value (never mutates self).
	GetAmountOut(amountIn *uint256.Int, tokenIn, tokenOut common.Address) (GetAmountOutResult, error)
	// DeltaTransition applies a state delta, returning the updated state.
	DeltaTransition(delta ProtocolStateDelta, tokens []Token) (ProtocolSim, error)
	// Clone returns a deep, independent copy.
	Clone() ProtocolSim
	// Equals reports value equality with another ProtocolSim of the same
	// concrete type.
	Equals(other ProtocolSim) bool
}
