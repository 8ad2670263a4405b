package uniswapv3

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/dexsim/protosim/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
)

// FromSnapshot decodes a concentrated-liquidity pool snapshot (C9),
// including tycho's documented 32-byte zero-value hotfix for liquidity and
// tick attributes that were never updated after pool creation, and the
// "ticks/<index>" attribute family for per-tick net liquidity.
func FromSnapshot(snapshot protocol.ComponentWithState, _ protocol.BlockHeader, knownTokens map[common.Address]protocol.Token) (protocol.ProtocolSim, error) {
	comp := snapshot.Component
	attrs := snapshot.State.Attributes

	if len(comp.Tokens) != 2 {
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.ValueError, Message: "uniswap_v3 pool must have exactly two tokens"}
	}
	tokenA, ok := knownTokens[comp.Tokens[0]]
	if !ok {
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.ValueError, Message: "unknown token " + comp.Tokens[0].Hex()}
	}
	tokenB, ok := knownTokens[comp.Tokens[1]]
	if !ok {
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.ValueError, Message: "unknown token " + comp.Tokens[1].Hex()}
	}

	liqRaw, ok := attrs["liquidity"]
	if !ok {
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.MissingAttribute, Message: "liquidity"}
	}
	liquidity, err := dehotfix(liqRaw, 16)
	if err != nil {
		return nil, err
	}

	sqrtPriceRaw, ok := attrs["sqrt_price_x96"]
	if !ok {
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.MissingAttribute, Message: "sqrt_price"}
	}
	sqrtPrice := new(big.Int).SetBytes(sqrtPriceRaw)

	feeRaw, ok := comp.StaticAttribute["fee"]
	if !ok {
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.MissingAttribute, Message: "fee"}
	}
	fee := FeeAmount(new(big.Int).SetBytes(feeRaw).Uint64())
	switch fee {
	case FeeLowest, FeeLow, FeeMedium, FeeHigh:
	default:
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.ValueError, Message: "unsupported fee amount"}
	}

	tickRaw, ok := attrs["tick"]
	if !ok {
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.MissingAttribute, Message: "tick"}
	}
	tickBig, err := dehotfix(tickRaw, 4)
	if err != nil {
		return nil, err
	}
	tick := int32(tickBig.Int64())

	var ticks []TickInfo
	for key, raw := range attrs {
		rest, ok := strings.CutPrefix(key, "ticks/")
		if !ok {
			continue
		}
		idx, _, _ := strings.Cut(rest, "/")
		tickIndex, perr := strconv.ParseInt(idx, 10, 32)
		if perr != nil {
			return nil, &protocol.InvalidSnapshotError{Kind: protocol.ValueError, Message: perr.Error()}
		}
		netLiquidity := new(big.Int).SetBytes(raw)
		if netLiquidity.Sign() == 0 {
			continue
		}
		info, terr := NewTickInfo(int32(tickIndex), netLiquidity)
		if terr != nil {
			return nil, &protocol.InvalidSnapshotError{Kind: protocol.ValueError, Message: terr.Error()}
		}
		ticks = append(ticks, info)
	}
	if len(ticks) == 0 {
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.MissingAttribute, Message: "tick_liquidities"}
	}

	return New(comp.ID, tokenA.Address, tokenB.Address, tokenA.Decimals, tokenB.Decimals, liquidity, sqrtPrice, fee, tick, ticks), nil
}

// dehotfix applies tycho's documented zero-value encoding hotfix: a never-
// updated attribute arrives as a 32-byte zero word instead of its natural
// width.
func dehotfix(raw []byte, expectedLen int) (*big.Int, error) {
	if len(raw) == 32 {
		allZero := true
		for _, b := range raw {
			if b != 0 {
				allZero = false
				break
			}
		}
		if !allZero {
			return nil, &protocol.InvalidSnapshotError{Kind: protocol.ValueError, Message: fmt.Sprintf("value too long, expected %d bytes, got 32", expectedLen)}
		}
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(raw), nil
}
