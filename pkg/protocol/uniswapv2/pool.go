// Package uniswapv2 implements the constant-product closed-form pool state
// (C7.1): x*y=k pricing with a fixed 0.3% fee, ported from the teacher's
// market-making math and grounded on the canonical Uniswap v2 formulas.
package uniswapv2

import (
	"math"
	"math/big"

	"github.com/dexsim/protosim/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// FeeGas is the constant gas cost attributed to a constant-product swap.
const FeeGas uint64 = 120_000

var (
	feeNumerator   = uint256.NewInt(997)
	feeDenominator = uint256.NewInt(1000)
)

// State is a constant-product pool's reserves, keyed by token address
// order (token0 < token1 lexicographically).
type State struct {
	ID       string
	Token0   common.Address
	Token1   common.Address
	Dec0     uint8
	Dec1     uint8
	Reserve0 *uint256.Int
	Reserve1 *uint256.Int
}

var _ protocol.ProtocolSim = (*State)(nil)

// New builds a State, canonicalising token order the way every constant-
// product pair contract does (token0 is the lexicographically smaller
// address).
func New(id string, tokenA, tokenB common.Address, decA, decB uint8, reserveA, reserveB *uint256.Int) *State {
	if bytesLess(tokenB.Bytes(), tokenA.Bytes()) {
		tokenA, tokenB = tokenB, tokenA
		decA, decB = decB, decA
		reserveA, reserveB = reserveB, reserveA
	}
	return &State{
		ID:       id,
		Token0:   tokenA,
		Token1:   tokenB,
		Dec0:     decA,
		Dec1:     decB,
		Reserve0: reserveA,
		Reserve1: reserveB,
	}
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (s *State) reservesFor(tokenIn common.Address) (in, out *uint256.Int, decIn, decOut uint8, ok bool) {
	switch tokenIn {
	case s.Token0:
		return s.Reserve0, s.Reserve1, s.Dec0, s.Dec1, true
	case s.Token1:
		return s.Reserve1, s.Reserve0, s.Dec1, s.Dec0, true
	default:
		return nil, nil, 0, 0, false
	}
}

// SpotPrice returns the price of base denominated in quote, scaled for
// each token's decimals and oriented by address order.
func (s *State) SpotPrice(base, quote common.Address) (float64, error) {
	rBase, rQuote, decBase, decQuote, ok := s.reservesFor(base)
	if !ok || (quote != s.Token0 && quote != s.Token1) || quote == base {
		return 0, &protocol.FatalError{Reason: "spot_price: unknown token pair"}
	}
	price := ratioFloat(rQuote, rBase) * math.Pow(10, float64(int(decBase)-int(decQuote)))
	return price, nil
}

func ratioFloat(a, b *uint256.Int) float64 {
	af, _ := new(big.Float).SetInt(a.ToBig()).Float64()
	bf, _ := new(big.Float).SetInt(b.ToBig()).Float64()
	if bf == 0 {
		return 0
	}
	return af / bf
}

// GetAmountOut quotes amountIn of tokenIn for tokenOut using the constant-
// product formula with a 0.3% fee. The returned state is a clone whose
// reserves reflect the trade (input reserve up by amountIn, output reserve
// down by the amount out); the receiver is not modified.
func (s *State) GetAmountOut(amountIn *uint256.Int, tokenIn, tokenOut common.Address) (protocol.GetAmountOutResult, error) {
	rIn, rOut, _, _, ok := s.reservesFor(tokenIn)
	if !ok {
		return protocol.GetAmountOutResult{}, &protocol.FatalError{Reason: "get_amount_out: unknown input token"}
	}
	if (tokenOut != s.Token0 && tokenOut != s.Token1) || tokenOut == tokenIn {
		return protocol.GetAmountOutResult{}, &protocol.FatalError{Reason: "get_amount_out: unknown output token"}
	}

	amountInAfterFee, err := protocol.CheckedMul(amountIn, feeNumerator)
	if err != nil {
		return protocol.GetAmountOutResult{}, err
	}
	numerator, err := protocol.CheckedMul(amountInAfterFee, rOut)
	if err != nil {
		return protocol.GetAmountOutResult{}, err
	}
	scaledReserveIn, err := protocol.CheckedMul(rIn, feeDenominator)
	if err != nil {
		return protocol.GetAmountOutResult{}, err
	}
	denominator, err := protocol.CheckedAdd(scaledReserveIn, amountInAfterFee)
	if err != nil {
		return protocol.GetAmountOutResult{}, err
	}
	amountOut, err := protocol.CheckedDiv(numerator, denominator)
	if err != nil {
		return protocol.GetAmountOutResult{}, err
	}

	newReserveIn, err := protocol.CheckedAdd(rIn, amountIn)
	if err != nil {
		return protocol.GetAmountOutResult{}, err
	}
	newReserveOut, err := protocol.CheckedSub(rOut, amountOut)
	if err != nil {
		return protocol.GetAmountOutResult{}, err
	}

	next := s.Clone().(*State)
	if tokenIn == s.Token0 {
		next.Reserve0, next.Reserve1 = newReserveIn, newReserveOut
	} else {
		next.Reserve1, next.Reserve0 = newReserveIn, newReserveOut
	}

	return protocol.GetAmountOutResult{AmountOut: amountOut, GasUsed: FeeGas, NewState: next}, nil
}

// DeltaTransition replaces reserve0/reserve1 from the delta's updated
// attributes; all other attributes are ignored.
func (s *State) DeltaTransition(delta protocol.ProtocolStateDelta, _ []protocol.Token) (protocol.ProtocolSim, error) {
	next := s.Clone().(*State)
	if raw, ok := delta.UpdatedAttributes["reserve0"]; ok {
		next.Reserve0 = new(uint256.Int).SetBytes(raw)
	}
	if raw, ok := delta.UpdatedAttributes["reserve1"]; ok {
		next.Reserve1 = new(uint256.Int).SetBytes(raw)
	}
	return next, nil
}

// Clone returns a deep, independent copy.
func (s *State) Clone() protocol.ProtocolSim {
	return &State{
		ID:       s.ID,
		Token0:   s.Token0,
		Token1:   s.Token1,
		Dec0:     s.Dec0,
		Dec1:     s.Dec1,
		Reserve0: new(uint256.Int).Set(s.Reserve0),
		Reserve1: new(uint256.Int).Set(s.Reserve1),
	}
}

// Equals reports value equality with another constant-product state.
func (s *State) Equals(other protocol.ProtocolSim) bool {
	o, ok := other.(*State)
	if !ok {
		return false
	}
	return s.ID == o.ID && s.Token0 == o.Token0 && s.Token1 == o.Token1 &&
		s.Reserve0.Cmp(o.Reserve0) == 0 && s.Reserve1.Cmp(o.Reserve1) == 0
}
