package protocol

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Uint512 is an unsigned 512-bit integer represented as two 256-bit limbs,
// used by the concentrated-liquidity math where a 256x256 multiplication
// can overflow a single word (e.g. full-precision mulDiv).
type Uint512 struct {
	Hi, Lo uint256.Int
}

// errOverflow, errDivByZero and errSignedOverflow are the failure modes the
// checked operations in this file can produce; all map to a fatal,
// non-retryable error per §4.11.
func errOverflow() error      { return &FatalError{Reason: "arithmetic overflow"} }
func errDivByZero() error     { return &FatalError{Reason: "division by zero"} }
func errSignedOverflow() error { return &FatalError{Reason: "signed arithmetic overflow"} }

// CheckedAdd returns x+y, or errOverflow if the result does not fit in 256
// bits.
func CheckedAdd(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, errOverflow()
	}
	return z, nil
}

// CheckedSub returns x-y, or errOverflow if y > x.
func CheckedSub(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).SubOverflow(x, y)
	if overflow {
		return nil, errOverflow()
	}
	return z, nil
}

// CheckedMul returns x*y, or errOverflow if the result does not fit in 256
// bits.
func CheckedMul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, errOverflow()
	}
	return z, nil
}

// CheckedDiv returns x/y, or errDivByZero if y is zero.
func CheckedDiv(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, errDivByZero()
	}
	return new(uint256.Int).Div(x, y), nil
}

// CheckedDivMod returns (x/y, x%y), or errDivByZero if y is zero.
func CheckedDivMod(x, y *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if y.IsZero() {
		return nil, nil, errDivByZero()
	}
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(x, y, r)
	return q, r, nil
}

// CheckedMulDiv512 computes floor(x*y/denominator) with a full 512-bit
// intermediate product, as the concentrated-liquidity swap math requires to
// avoid overflowing in the middle of a quote.
func CheckedMulDiv512(x, y, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, errDivByZero()
	}
	product := mul512(x, y)
	if product.Hi.IsZero() {
		return CheckedDiv(&product.Lo, denominator)
	}
	if product.Hi.Cmp(denominator) >= 0 {
		return nil, errOverflow()
	}
	// Hi < denominator guarantees the quotient fits in 256 bits.
	q := new(big.Int).Mul(x.ToBig(), y.ToBig())
	q.Quo(q, denominator.ToBig())
	return uint256.MustFromBig(q), nil
}

// mul512 computes the full 512-bit product of two 256-bit unsigned
// integers using the standard double-width schoolbook decomposition.
func mul512(x, y *uint256.Int) Uint512 {
	lo, overflow := new(uint256.Int).MulOverflow(x, y)
	if !overflow {
		return Uint512{Lo: *lo}
	}
	// Decompose into 128-bit halves and combine via the standard
	// schoolbook algorithm; uint256 provides Lsh/Rsh for the shifts.
	mask := new(uint256.Int).SetAllOne()
	mask.Rsh(mask, 128)

	x0 := new(uint256.Int).And(x, mask)
	x1 := new(uint256.Int).Rsh(x, 128)
	y0 := new(uint256.Int).And(y, mask)
	y1 := new(uint256.Int).Rsh(y, 128)

	x0y0 := new(uint256.Int).Mul(x0, y0)
	x0y1 := new(uint256.Int).Mul(x0, y1)
	x1y0 := new(uint256.Int).Mul(x1, y0)
	x1y1 := new(uint256.Int).Mul(x1, y1)

	mid := new(uint256.Int).Add(x0y1, x1y0)
	midOverflowUnits := uint256.NewInt(0)
	if mid.Cmp(x0y1) < 0 { // mid wrapped when adding x1y0
		midOverflowUnits = uint256.NewInt(1)
	}

	midLo := new(uint256.Int).Lsh(mid, 128)
	midHi := new(uint256.Int).Rsh(mid, 128)

	lo = new(uint256.Int)
	loOverflow := lo.AddOverflow(x0y0, midLo)
	if loOverflow {
		midHi = new(uint256.Int).Add(midHi, uint256.NewInt(1))
	}

	hi := new(uint256.Int).Add(x1y1, midHi)
	hi = new(uint256.Int).Add(hi, new(uint256.Int).Lsh(midOverflowUnits, 128))

	return Uint512{Hi: *hi, Lo: *lo}
}

// CheckedSAdd, CheckedSSub and CheckedSMul treat x, y as 256-bit
// two's-complement signed integers (the EVM's representation). Overflow is
// detected the classical way: same-sign operands producing a
// different-signed result.

// CheckedSAdd returns the signed sum x+y, or errSignedOverflow on overflow.
func CheckedSAdd(x, y *uint256.Int) (*uint256.Int, error) {
	z := new(uint256.Int).Add(x, y)
	if x.Sign() == y.Sign() && z.Sign() != x.Sign() {
		return nil, errSignedOverflow()
	}
	return z, nil
}

// CheckedSSub returns the signed difference x-y, or errSignedOverflow on
// overflow.
func CheckedSSub(x, y *uint256.Int) (*uint256.Int, error) {
	z := new(uint256.Int).Sub(x, y)
	negY := new(uint256.Int).Neg(y)
	if x.Sign() == negY.Sign() && z.Sign() != x.Sign() {
		return nil, errSignedOverflow()
	}
	return z, nil
}

// CheckedSMul returns the signed product x*y, or errSignedOverflow if the
// magnitude does not fit in 256 bits.
func CheckedSMul(x, y *uint256.Int) (*uint256.Int, error) {
	if x.IsZero() || y.IsZero() {
		return uint256.NewInt(0), nil
	}
	z := new(uint256.Int).Mul(x, y)
	back, err := CheckedSDiv(z, y)
	if err != nil || back.Cmp(x) != 0 {
		return nil, errSignedOverflow()
	}
	return z, nil
}

// CheckedSDiv returns the signed quotient x/y (EVM SDIV semantics), or
// errDivByZero if y is zero.
func CheckedSDiv(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, errDivByZero()
	}
	return new(uint256.Int).SDiv(x, y), nil
}

// CheckedSMod returns the signed remainder x%y (EVM SMOD semantics), or
// errDivByZero if y is zero.
func CheckedSMod(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, errDivByZero()
	}
	return new(uint256.Int).SMod(x, y), nil
}
