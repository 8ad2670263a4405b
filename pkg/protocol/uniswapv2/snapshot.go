package uniswapv2

import (
	"github.com/dexsim/protosim/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// FromSnapshot decodes a constant-product pool snapshot (C9): reserve0 and
// reserve1 are mandatory big-endian attributes, and the pool's tokens must
// already be known to the caller.
func FromSnapshot(snapshot protocol.ComponentWithState, _ protocol.BlockHeader, knownTokens map[common.Address]protocol.Token) (protocol.ProtocolSim, error) {
	comp := snapshot.Component
	if len(comp.Tokens) != 2 {
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.ValueError, Message: "uniswap_v2 pool must have exactly two tokens"}
	}
	tokenA, ok := knownTokens[comp.Tokens[0]]
	if !ok {
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.ValueError, Message: "unknown token " + comp.Tokens[0].Hex()}
	}
	tokenB, ok := knownTokens[comp.Tokens[1]]
	if !ok {
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.ValueError, Message: "unknown token " + comp.Tokens[1].Hex()}
	}

	reserve0, ok := snapshot.State.Attributes["reserve0"]
	if !ok {
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.MissingAttribute, Message: "reserve0"}
	}
	reserve1, ok := snapshot.State.Attributes["reserve1"]
	if !ok {
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.MissingAttribute, Message: "reserve1"}
	}

	return New(
		comp.ID,
		tokenA.Address, tokenB.Address,
		tokenA.Decimals, tokenB.Decimals,
		new(uint256.Int).SetBytes(reserve0),
		new(uint256.Int).SetBytes(reserve1),
	), nil
}
