// Package uniswapv3 implements the concentrated-liquidity pool state
// (C7.2/C7.3): tick-indexed liquidity, Q64.96 sqrt-price bookkeeping and the
// tick-crossing swap loop, ported from the teacher's market-making math and
// grounded on the reference tick_list/swap_math/sqrt_price_math algorithms.
package uniswapv3

import (
	"fmt"
	"math/big"

	"github.com/dexsim/protosim/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// FeeAmount is one of the four standard Uniswap v3 fee tiers, each bound to
// a fixed tick spacing.
type FeeAmount uint32

const (
	FeeLowest FeeAmount = 100
	FeeLow    FeeAmount = 500
	FeeMedium FeeAmount = 3000
	FeeHigh   FeeAmount = 10000
)

// uint256FromBig converts a non-negative big.Int into a uint256.Int,
// reporting overflow if it does not fit in 256 bits.
func uint256FromBig(v *big.Int) (*uint256.Int, bool) {
	u, overflow := uint256.FromBig(v)
	return u, overflow
}

func spacingForFee(fee FeeAmount) int32 {
	switch fee {
	case FeeLowest:
		return 1
	case FeeLow:
		return 10
	case FeeMedium:
		return 60
	case FeeHigh:
		return 200
	default:
		return 60
	}
}

// gasBase and gasPerStep are the concentrated-liquidity swap's gas-accounting
// constants: a fixed base cost plus a per-tick-crossing increment.
const (
	gasBase    uint64 = 130_000
	gasPerStep uint64 = 2_000
)

// State is a concentrated-liquidity pool: current liquidity, sqrt price and
// tick, plus the full set of initialised ticks either side of the current
// price.
type State struct {
	ID        string
	Token0    common.Address
	Token1    common.Address
	Dec0      uint8
	Dec1      uint8
	Liquidity *big.Int
	SqrtPrice *big.Int
	Fee       FeeAmount
	Tick      int32
	Ticks     *TickList
}

var _ protocol.ProtocolSim = (*State)(nil)

// New builds a concentrated-liquidity pool state from its current liquidity,
// sqrt price, fee tier, tick and the initialised ticks either side of it.
func New(id string, token0, token1 common.Address, dec0, dec1 uint8, liquidity, sqrtPrice *big.Int, fee FeeAmount, tick int32, ticks []TickInfo) *State {
	return &State{
		ID:        id,
		Token0:    token0,
		Token1:    token1,
		Dec0:      dec0,
		Dec1:      dec1,
		Liquidity: new(big.Int).Set(liquidity),
		SqrtPrice: new(big.Int).Set(sqrtPrice),
		Fee:       fee,
		Tick:      tick,
		Ticks:     NewTickList(spacingForFee(fee), ticks),
	}
}

// SpotPrice returns the price of base denominated in quote.
func (s *State) SpotPrice(base, quote common.Address) (float64, error) {
	switch {
	case base == s.Token0 && quote == s.Token1:
		return SqrtPriceX96ToFloat(s.SqrtPrice, s.Dec0, s.Dec1), nil
	case base == s.Token1 && quote == s.Token0:
		return 1.0 / SqrtPriceX96ToFloat(s.SqrtPrice, s.Dec0, s.Dec1), nil
	default:
		return 0, &protocol.FatalError{Reason: "spot_price: unknown token pair"}
	}
}

type swapState struct {
	amountRemaining  *big.Int
	amountCalculated *big.Int
	sqrtPrice        *big.Int
	tick             int32
	liquidity        *big.Int
}

type swapResult struct {
	amountCalculated *big.Int
	sqrtPrice        *big.Int
	liquidity        *big.Int
	tick             int32
	gasUsed          uint64
}

// swap runs the tick-crossing swap loop. amountSpecified positive means
// exact-input, negative means exact-output. On running out of initialised
// ticks within the safe search range it returns an InvalidInputError
// carrying the partial fill as a GetAmountOutResult.
func (s *State) swap(zeroForOne bool, amountSpecified *big.Int) (*swapResult, error) {
	if s.Liquidity.Sign() == 0 {
		return nil, &protocol.RecoverableError{Reason: "no liquidity"}
	}

	var priceLimit *big.Int
	if zeroForOne {
		priceLimit = new(big.Int).Add(MinSqrtRatio, big.NewInt(1))
	} else {
		priceLimit = new(big.Int).Sub(MaxSqrtRatio, big.NewInt(1))
	}

	exactIn := amountSpecified.Sign() >= 0

	st := &swapState{
		amountRemaining:  new(big.Int).Set(amountSpecified),
		amountCalculated: big.NewInt(0),
		sqrtPrice:        new(big.Int).Set(s.SqrtPrice),
		tick:             s.Tick,
		liquidity:        new(big.Int).Set(s.Liquidity),
	}
	gasUsed := gasBase

	zero := big.NewInt(0)
	for st.amountRemaining.Cmp(zero) != 0 && st.sqrtPrice.Cmp(priceLimit) != 0 {
		nextTick, initialized, err := s.Ticks.NextInitializedTickWithinOneWord(st.tick, zeroForOne)
		if err != nil {
			tlErr, ok := err.(*TickListError)
			if !ok || tlErr.Kind != TicksExceeded {
				return nil, &protocol.FatalError{Reason: "tick search failed: " + err.Error()}
			}
			partial := s.Clone().(*State)
			partial.Liquidity = st.liquidity
			partial.Tick = st.tick
			partial.SqrtPrice = st.sqrtPrice
			partialOut, _ := uint256FromBig(new(big.Int).Abs(st.amountCalculated))
			return nil, &protocol.InvalidInputError{
				Reason: "ticks exceeded",
				Partial: &protocol.GetAmountOutResult{
					AmountOut: partialOut,
					GasUsed:   gasUsed,
					NewState:  partial,
				},
			}
		}

		if nextTick < MinTick {
			nextTick = MinTick
		} else if nextTick > MaxTick {
			nextTick = MaxTick
		}

		sqrtPriceNext, err := SqrtRatioAtTick(nextTick)
		if err != nil {
			return nil, &protocol.FatalError{Reason: err.Error()}
		}

		target := sqrtRatioTarget(sqrtPriceNext, priceLimit, zeroForOne)
		step := computeSwapStep(st.sqrtPrice, target, st.liquidity, st.amountRemaining, uint32(s.Fee))
		st.sqrtPrice = step.SqrtRatioNext

		if exactIn {
			st.amountRemaining.Sub(st.amountRemaining, new(big.Int).Add(step.AmountIn, step.FeeAmount))
			st.amountCalculated.Sub(st.amountCalculated, step.AmountOut)
		} else {
			st.amountRemaining.Add(st.amountRemaining, step.AmountOut)
			st.amountCalculated.Add(st.amountCalculated, new(big.Int).Add(step.AmountIn, step.FeeAmount))
		}

		if st.sqrtPrice.Cmp(sqrtPriceNext) == 0 {
			if initialized {
				tickInfo, err := s.Ticks.GetTick(nextTick)
				if err != nil {
					return nil, &protocol.FatalError{Reason: err.Error()}
				}
				liquidityNet := tickInfo.NetLiquidity
				if zeroForOne {
					liquidityNet = new(big.Int).Neg(liquidityNet)
				}
				st.liquidity = addLiquidityDelta(st.liquidity, liquidityNet)
			}
			if zeroForOne {
				st.tick = nextTick - 1
			} else {
				st.tick = nextTick
			}
		} else if st.sqrtPrice.Cmp(s.SqrtPrice) != 0 {
			tick, err := TickAtSqrtRatio(st.sqrtPrice)
			if err != nil {
				return nil, &protocol.FatalError{Reason: err.Error()}
			}
			st.tick = tick
		}
		gasUsed += gasPerStep
	}

	return &swapResult{
		amountCalculated: st.amountCalculated,
		sqrtPrice:        st.sqrtPrice,
		liquidity:        st.liquidity,
		tick:             st.tick,
		gasUsed:          gasUsed,
	}, nil
}

func sqrtRatioTarget(sqrtPriceNext, sqrtPriceLimit *big.Int, zeroForOne bool) *big.Int {
	if zeroForOne {
		if sqrtPriceNext.Cmp(sqrtPriceLimit) < 0 {
			return sqrtPriceLimit
		}
	} else if sqrtPriceNext.Cmp(sqrtPriceLimit) > 0 {
		return sqrtPriceLimit
	}
	return sqrtPriceNext
}

// GetAmountOut quotes amountIn of tokenIn for tokenOut, running the full
// tick-crossing swap loop.
func (s *State) GetAmountOut(amountIn *uint256.Int, tokenIn, tokenOut common.Address) (protocol.GetAmountOutResult, error) {
	var zeroForOne bool
	switch {
	case tokenIn == s.Token0 && tokenOut == s.Token1:
		zeroForOne = true
	case tokenIn == s.Token1 && tokenOut == s.Token0:
		zeroForOne = false
	default:
		return protocol.GetAmountOutResult{}, &protocol.FatalError{Reason: "get_amount_out: unknown token pair"}
	}

	amountSpecified := new(big.Int).SetBytes(amountIn.Bytes())

	res, err := s.swap(zeroForOne, amountSpecified)
	if err != nil {
		return protocol.GetAmountOutResult{}, err
	}

	next := s.Clone().(*State)
	next.Liquidity = res.liquidity
	next.Tick = res.tick
	next.SqrtPrice = res.sqrtPrice

	out := new(big.Int).Abs(res.amountCalculated)
	outU256, overflow := uint256FromBig(out)
	if overflow {
		return protocol.GetAmountOutResult{}, &protocol.FatalError{Reason: "get_amount_out: output exceeds 256 bits"}
	}

	return protocol.GetAmountOutResult{AmountOut: outU256, GasUsed: res.gasUsed, NewState: next}, nil
}

// DeltaTransition applies liquidity/sqrt_price/tick attribute changes and
// per-tick liquidity updates, matching tycho's attribute wire format
// including its documented 32-byte zero-value hotfix for never-updated
// liquidity/tick fields.
func (s *State) DeltaTransition(delta protocol.ProtocolStateDelta, _ []protocol.Token) (protocol.ProtocolSim, error) {
	next := s.Clone().(*State)

	if raw, ok := delta.UpdatedAttributes["liquidity"]; ok {
		liq, err := decodeHotfixedUint(raw, 16)
		if err != nil {
			return nil, &protocol.TransitionError{Message: "liquidity: " + err.Error()}
		}
		next.Liquidity = liq
	}
	if raw, ok := delta.UpdatedAttributes["sqrt_price_x96"]; ok {
		next.SqrtPrice = new(big.Int).SetBytes(raw)
	}
	if raw, ok := delta.UpdatedAttributes["tick"]; ok {
		t, err := decodeHotfixedUint(raw, 4)
		if err != nil {
			return nil, &protocol.TransitionError{Message: "tick: " + err.Error()}
		}
		next.Tick = int32(t.Int64())
	}

	for key, raw := range delta.UpdatedAttributes {
		idx, ok := parseTickAttributeKey(key, "ticks/")
		if !ok {
			continue
		}
		netLiquidity := new(big.Int).SetBytes(raw)
		if err := next.Ticks.upsertTick(idx, new(big.Int).Sub(netLiquidity, currentNetLiquidity(next.Ticks, idx))); err != nil {
			return nil, &protocol.TransitionError{Message: err.Error()}
		}
	}
	for key := range delta.DeletedAttributes {
		idx, ok := parseTickAttributeKey(key, "ticks/")
		if !ok {
			continue
		}
		if err := next.Ticks.upsertTick(idx, new(big.Int).Neg(currentNetLiquidity(next.Ticks, idx))); err != nil {
			return nil, &protocol.TransitionError{Message: err.Error()}
		}
	}

	return next, nil
}

func currentNetLiquidity(tl *TickList, index int32) *big.Int {
	info, err := tl.GetTick(index)
	if err != nil {
		return big.NewInt(0)
	}
	return info.NetLiquidity
}

func parseTickAttributeKey(key, prefix string) (int32, bool) {
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return 0, false
	}
	rest := key[len(prefix):]
	slash := -1
	for i, c := range rest {
		if c == '/' {
			slash = i
			break
		}
	}
	if slash < 0 {
		return 0, false
	}
	idxStr := rest[:slash]
	var idx int32
	_, err := fmt.Sscanf(idxStr, "%d", &idx)
	if err != nil {
		return 0, false
	}
	return idx, true
}

func decodeHotfixedUint(raw []byte, expectedLen int) (*big.Int, error) {
	if len(raw) == 32 {
		allZero := true
		for _, b := range raw {
			if b != 0 {
				allZero = false
				break
			}
		}
		if !allZero {
			return nil, fmt.Errorf("value too long, expected %d bytes, got 32", expectedLen)
		}
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(raw), nil
}

// Clone returns a deep, independent copy.
func (s *State) Clone() protocol.ProtocolSim {
	ticksCopy := make([]TickInfo, len(s.Ticks.Ticks()))
	for i, t := range s.Ticks.Ticks() {
		ticksCopy[i] = TickInfo{
			Index:        t.Index,
			NetLiquidity: new(big.Int).Set(t.NetLiquidity),
			SqrtPriceX96: new(big.Int).Set(t.SqrtPriceX96),
		}
	}
	return &State{
		ID:        s.ID,
		Token0:    s.Token0,
		Token1:    s.Token1,
		Dec0:      s.Dec0,
		Dec1:      s.Dec1,
		Liquidity: new(big.Int).Set(s.Liquidity),
		SqrtPrice: new(big.Int).Set(s.SqrtPrice),
		Fee:       s.Fee,
		Tick:      s.Tick,
		Ticks:     NewTickList(s.Ticks.Spacing(), ticksCopy),
	}
}

// Equals reports value equality with another concentrated-liquidity state.
func (s *State) Equals(other protocol.ProtocolSim) bool {
	o, ok := other.(*State)
	if !ok {
		return false
	}
	if s.ID != o.ID || s.Token0 != o.Token0 || s.Token1 != o.Token1 || s.Fee != o.Fee || s.Tick != o.Tick {
		return false
	}
	if s.Liquidity.Cmp(o.Liquidity) != 0 || s.SqrtPrice.Cmp(o.SqrtPrice) != 0 {
		return false
	}
	ticksA, ticksB := s.Ticks.Ticks(), o.Ticks.Ticks()
	if len(ticksA) != len(ticksB) {
		return false
	}
	for i := range ticksA {
		if ticksA[i].Index != ticksB[i].Index || ticksA[i].NetLiquidity.Cmp(ticksB[i].NetLiquidity) != 0 {
			return false
		}
	}
	return true
}
