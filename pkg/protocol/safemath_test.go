package protocol

import (
	"testing"

	"github.com/holiman/uint256"
)

func mustUint256(s string) *uint256.Int {
	v, err := uint256.FromHex(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestCheckedAddOverflows(t *testing.T) {
	maxU256 := new(uint256.Int).Not(uint256.NewInt(0))
	if _, err := CheckedAdd(maxU256, uint256.NewInt(1)); err == nil {
		t.Fatalf("expected overflow error")
	}
	got, err := CheckedAdd(uint256.NewInt(1), uint256.NewInt(2))
	if err != nil || got.Uint64() != 3 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestCheckedSubUnderflows(t *testing.T) {
	if _, err := CheckedSub(uint256.NewInt(1), uint256.NewInt(2)); err == nil {
		t.Fatalf("expected underflow error")
	}
	got, err := CheckedSub(uint256.NewInt(5), uint256.NewInt(2))
	if err != nil || got.Uint64() != 3 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestCheckedDivByZero(t *testing.T) {
	if _, err := CheckedDiv(uint256.NewInt(1), uint256.NewInt(0)); err == nil {
		t.Fatalf("expected div-by-zero error")
	}
}

func TestCheckedDivMod(t *testing.T) {
	q, r, err := CheckedDivMod(uint256.NewInt(7), uint256.NewInt(2))
	if err != nil || q.Uint64() != 3 || r.Uint64() != 1 {
		t.Fatalf("got q=%v r=%v err=%v", q, r, err)
	}
}

func TestCheckedMulDiv512SingleWord(t *testing.T) {
	got, err := CheckedMulDiv512(uint256.NewInt(1000), uint256.NewInt(2000), uint256.NewInt(500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Uint64() != 4000 {
		t.Fatalf("got %v, want 4000", got)
	}
}
