package uniswapv3

import "math/big"

// swapStep is the result of computing one step of a swap across a single
// price range: the resulting sqrt price, and the input/output/fee amounts
// consumed by that step.
type swapStep struct {
	SqrtRatioNext *big.Int
	AmountIn      *big.Int
	AmountOut     *big.Int
	FeeAmount     *big.Int
}

// computeSwapStep advances the price from sqrtRatioCurrent towards
// sqrtRatioTarget by as much of amountRemaining as fits (amountRemaining
// positive means exact-input, negative means exact-output), ported from the
// canonical Uniswap v3 SwapMath.computeSwapStep.
func computeSwapStep(sqrtRatioCurrent, sqrtRatioTarget, liquidity, amountRemaining *big.Int, feePips uint32) swapStep {
	zeroForOne := sqrtRatioCurrent.Cmp(sqrtRatioTarget) >= 0
	exactIn := amountRemaining.Sign() >= 0

	amountIn := big.NewInt(0)
	amountOut := big.NewInt(0)
	var sqrtRatioNext *big.Int

	millionMinusFee := big.NewInt(int64(1_000_000 - feePips))
	million := big.NewInt(1_000_000)
	feePipsBig := big.NewInt(int64(feePips))

	if exactIn {
		amountRemainingLessFee := mulDiv(amountRemaining, millionMinusFee, million)
		if zeroForOne {
			amountIn = getAmount0Delta(sqrtRatioTarget, sqrtRatioCurrent, liquidity, true)
		} else {
			amountIn = getAmount1Delta(sqrtRatioCurrent, sqrtRatioTarget, liquidity, true)
		}
		if amountRemainingLessFee.Cmp(amountIn) >= 0 {
			sqrtRatioNext = sqrtRatioTarget
		} else {
			sqrtRatioNext = getNextSqrtPriceFromInput(sqrtRatioCurrent, liquidity, amountRemainingLessFee, zeroForOne)
		}
	} else {
		absRemaining := new(big.Int).Abs(amountRemaining)
		if zeroForOne {
			amountOut = getAmount1Delta(sqrtRatioTarget, sqrtRatioCurrent, liquidity, false)
		} else {
			amountOut = getAmount0Delta(sqrtRatioCurrent, sqrtRatioTarget, liquidity, false)
		}
		if absRemaining.Cmp(amountOut) >= 0 {
			sqrtRatioNext = sqrtRatioTarget
		} else {
			sqrtRatioNext = getNextSqrtPriceFromOutput(sqrtRatioCurrent, liquidity, absRemaining, zeroForOne)
		}
	}

	max := sqrtRatioTarget.Cmp(sqrtRatioNext) == 0

	if zeroForOne {
		if max && exactIn {
			// amountIn already set
		} else {
			amountIn = getAmount0Delta(sqrtRatioNext, sqrtRatioCurrent, liquidity, true)
		}
		if max && !exactIn {
			// amountOut already set
		} else {
			amountOut = getAmount1Delta(sqrtRatioNext, sqrtRatioCurrent, liquidity, false)
		}
	} else {
		if max && exactIn {
			// amountIn already set
		} else {
			amountIn = getAmount1Delta(sqrtRatioCurrent, sqrtRatioNext, liquidity, true)
		}
		if max && !exactIn {
			// amountOut already set
		} else {
			amountOut = getAmount0Delta(sqrtRatioCurrent, sqrtRatioNext, liquidity, false)
		}
	}

	if !exactIn {
		absRemaining := new(big.Int).Abs(amountRemaining)
		if amountOut.Cmp(absRemaining) > 0 {
			amountOut = absRemaining
		}
	}

	var feeAmount *big.Int
	if exactIn && sqrtRatioNext.Cmp(sqrtRatioTarget) != 0 {
		feeAmount = new(big.Int).Sub(new(big.Int).Abs(amountRemaining), amountIn)
	} else {
		feeAmount = mulDivRoundingUp(amountIn, feePipsBig, millionMinusFee)
	}

	return swapStep{
		SqrtRatioNext: sqrtRatioNext,
		AmountIn:      amountIn,
		AmountOut:     amountOut,
		FeeAmount:     feeAmount,
	}
}
