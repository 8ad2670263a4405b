package uniswapv3

import "math/big"

// Q96 is 2^96, the fixed-point scale of a Q64.96 sqrt price.
var Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// MinSqrtRatio and MaxSqrtRatio bound the sqrt-price range, matching
// SqrtRatioAtTick(MinTick) and SqrtRatioAtTick(MaxTick).
var (
	MinSqrtRatio = new(big.Int).Set(minSqrtRatio)
	MaxSqrtRatio = new(big.Int).Set(maxSqrtRatio)
)

func mulDiv(a, b, denominator *big.Int) *big.Int {
	z := new(big.Int).Mul(a, b)
	return z.Div(z, denominator)
}

func mulDivRoundingUp(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(product, denominator, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

func divRoundingUp(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// getAmount0Delta computes the amount of token0 owed for a liquidity
// position spanning [sqrtA, sqrtB].
func getAmount0Delta(sqrtA, sqrtB *big.Int, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(sqrtB, sqrtA)

	if roundUp {
		return divRoundingUp(mulDivRoundingUp(numerator1, numerator2, sqrtB), sqrtA)
	}
	return new(big.Int).Div(mulDiv(numerator1, numerator2, sqrtB), sqrtA)
}

// getAmount1Delta computes the amount of token1 owed for a liquidity
// position spanning [sqrtA, sqrtB].
func getAmount1Delta(sqrtA, sqrtB *big.Int, liquidity *big.Int, roundUp bool) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		return mulDivRoundingUp(liquidity, diff, Q96)
	}
	return mulDiv(liquidity, diff, Q96)
}

func getNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amount *big.Int, add bool) *big.Int {
	if amount.Sign() == 0 {
		return new(big.Int).Set(sqrtPX96)
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)

	if add {
		product := new(big.Int).Mul(amount, sqrtPX96)
		denominator := new(big.Int).Add(numerator1, product)
		if denominator.Cmp(numerator1) >= 0 {
			return mulDivRoundingUp(numerator1, sqrtPX96, denominator)
		}
		return divRoundingUp(numerator1, new(big.Int).Add(new(big.Int).Div(numerator1, sqrtPX96), amount))
	}
	product := new(big.Int).Mul(amount, sqrtPX96)
	denominator := new(big.Int).Sub(numerator1, product)
	return mulDivRoundingUp(numerator1, sqrtPX96, denominator)
}

func getNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amount *big.Int, add bool) *big.Int {
	if add {
		quotient := mulDiv(amount, Q96, liquidity)
		return new(big.Int).Add(sqrtPX96, quotient)
	}
	quotient := mulDivRoundingUp(amount, Q96, liquidity)
	return new(big.Int).Sub(sqrtPX96, quotient)
}

func getNextSqrtPriceFromInput(sqrtPX96, liquidity, amountIn *big.Int, zeroForOne bool) *big.Int {
	if zeroForOne {
		return getNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountIn, true)
	}
	return getNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountIn, true)
}

func getNextSqrtPriceFromOutput(sqrtPX96, liquidity, amountOut *big.Int, zeroForOne bool) *big.Int {
	if zeroForOne {
		return getNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountOut, false)
	}
	return getNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountOut, false)
}

// SqrtPriceX96ToFloat converts a Q64.96 sqrt price into the price of token
// with decBase decimals denominated in a token with decQuote decimals.
func SqrtPriceX96ToFloat(sqrtPriceX96 *big.Int, decBase, decQuote uint8) float64 {
	sqrtF := new(big.Float).SetInt(sqrtPriceX96)
	q96F := new(big.Float).SetInt(Q96)
	ratio := new(big.Float).Quo(sqrtF, q96F)
	price := new(big.Float).Mul(ratio, ratio)

	scale := new(big.Float).SetFloat64(1.0)
	exp := int(decBase) - int(decQuote)
	if exp != 0 {
		pow := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(absInt(exp))), nil))
		if exp > 0 {
			scale = pow
		} else {
			scale = new(big.Float).Quo(big.NewFloat(1), pow)
		}
	}
	price.Mul(price, scale)
	f, _ := price.Float64()
	return f
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// addLiquidityDelta adds a signed liquidity delta (net_liquidity at a tick,
// which may be negative) to an unsigned liquidity value, the way a swap
// crossing a tick always does.
func addLiquidityDelta(liquidity, delta *big.Int) *big.Int {
	return new(big.Int).Add(liquidity, delta)
}
