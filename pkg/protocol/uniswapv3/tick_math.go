package uniswapv3

import (
	"fmt"
	"math/big"
)

// MinTick and MaxTick bound the tick range representable at Q64.96
// precision, matching the canonical Uniswap v3 constants.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	minSqrtRatio, _ = new(big.Int).SetString("4295128739", 10)
	maxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	sqrtRatioFactors = []struct {
		bit int32
		hex string
	}{
		{0x2, "fff97272373d413259a46990580e213a"},
		{0x4, "fff2e50f5f656932ef12357cf3c7fdcc"},
		{0x8, "ffe5caca7e10e4e61c3624eaa0941cd0"},
		{0x10, "ffcb9843d60f6159c9db58835c926644"},
		{0x20, "ff973b41fa98c081472e6896dfb254c0"},
		{0x40, "ff2ea16466c96a3843ec78b326b52861"},
		{0x80, "fe5dee046a99a2a811c461f1969c3053"},
		{0x100, "fcbe86c7900a88aedcffc83b479aa3a4"},
		{0x200, "f987a7253ac413176f2b074cf7815e54"},
		{0x400, "f3392b0822b70005940c7a398e4b70f3"},
		{0x800, "e7159475a2c29b7443b29c7fa6e889d9"},
		{0x1000, "d097f3bdfd2022b8845ad8f792aa5825"},
		{0x2000, "a9f746462d870fdf8a65dc1f90e061e5"},
		{0x4000, "70d869a156d2a1b890bb3df62baf32f7"},
		{0x8000, "31be135f97d08fd981231505542fcfa6"},
		{0x10000, "9aa508b5b7a84e1c677de54f3e99bc9"},
		{0x20000, "5d6af8dedb81196699c329225ee604"},
		{0x40000, "2216e584f5fa1ea926041bedfe98"},
		{0x80000, "48a170391f7dc42444e8fa2"},
	}
)

// SqrtRatioAtTick computes sqrt(1.0001^tick) * 2^96, the Q64.96 sqrt price
// at a given tick, ported from the canonical bit-decomposition algorithm.
func SqrtRatioAtTick(tick int32) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("tick %d out of bounds [%d, %d]", tick, MinTick, MaxTick)
	}
	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}

	var ratio *big.Int
	if absTick&0x1 != 0 {
		ratio, _ = new(big.Int).SetString("fffcb933bd6fad37aa2d162d1a594001", 16)
	} else {
		ratio, _ = new(big.Int).SetString("100000000000000000000000000000000", 16)
	}

	for _, f := range sqrtRatioFactors {
		if int32(absTick)&f.bit != 0 {
			factor, _ := new(big.Int).SetString(f.hex, 16)
			ratio.Mul(ratio, factor)
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio = new(big.Int).Div(maxUint256, ratio)
	}

	// ratio is Q128.128; convert to Q64.96, rounding up on a nonzero
	// remainder the way the reference implementation does.
	shifted := new(big.Int).Rsh(ratio, 32)
	remainderMask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 32), big.NewInt(1))
	remainder := new(big.Int).And(ratio, remainderMask)
	if remainder.Sign() != 0 {
		shifted.Add(shifted, big.NewInt(1))
	}
	return shifted, nil
}

// logShifts is the (shift amount, bit position) table walked by
// TickAtSqrtRatio's iterative log2 refinement, bit positions 63 down to 50.
var logShifts = []uint{63, 62, 61, 60, 59, 58, 57, 56, 55, 54, 53, 52, 51, 50}

// TickAtSqrtRatio inverts SqrtRatioAtTick: given a Q64.96 sqrt price, finds
// the greatest tick whose sqrt price is less than or equal to it.
func TickAtSqrtRatio(sqrtPriceX96 *big.Int) (int32, error) {
	if sqrtPriceX96.Cmp(minSqrtRatio) < 0 || sqrtPriceX96.Cmp(maxSqrtRatio) >= 0 {
		return 0, fmt.Errorf("sqrt ratio %s out of bounds", sqrtPriceX96)
	}
	ratio := new(big.Int).Lsh(sqrtPriceX96, 32)

	msb := ratio.BitLen() - 1

	var r *big.Int
	if msb >= 128 {
		r = new(big.Int).Rsh(ratio, uint(msb-127))
	} else {
		r = new(big.Int).Lsh(ratio, uint(127-msb))
	}

	logBase2 := new(big.Int).Lsh(big.NewInt(int64(msb-128)), 64)

	for _, shift := range logShifts {
		r = new(big.Int).Rsh(new(big.Int).Mul(r, r), 127)
		f := new(big.Int).Rsh(r, 128)
		logBase2.Or(logBase2, new(big.Int).Lsh(f, shift))
		r.Rsh(r, uint(f.Uint64()))
	}

	logSqrt10001Const, _ := new(big.Int).SetString("255738958999603826347141", 10)
	logSqrt10001 := new(big.Int).Mul(logBase2, logSqrt10001Const)

	lowConst, _ := new(big.Int).SetString("3402992956809132418596140100660247210", 10)
	highConst, _ := new(big.Int).SetString("291339464771989622907027621153398088495", 10)

	tickLow := new(big.Int).Rsh(new(big.Int).Sub(logSqrt10001, lowConst), 128)
	tickHigh := new(big.Int).Rsh(new(big.Int).Add(logSqrt10001, highConst), 128)

	lowI := int32(tickLow.Int64())
	highI := int32(tickHigh.Int64())

	if lowI == highI {
		return lowI, nil
	}
	highSqrt, err := SqrtRatioAtTick(highI)
	if err != nil {
		return lowI, nil
	}
	if highSqrt.Cmp(sqrtPriceX96) <= 0 {
		return highI, nil
	}
	return lowI, nil
}
