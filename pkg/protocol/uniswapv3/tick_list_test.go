package uniswapv3

import (
	"math/big"
	"testing"
)

func simpleTick(index int32, netLiquidity int64) TickInfo {
	return TickInfo{Index: index, NetLiquidity: big.NewInt(netLiquidity), SqrtPriceX96: big.NewInt(0)}
}

func smallFixture() *TickList {
	return NewTickList(10, []TickInfo{
		simpleTick(10, 10),
		simpleTick(20, -5),
		simpleTick(40, -5),
	})
}

func minMaxFixture() *TickList {
	return NewTickList(1, []TickInfo{
		simpleTick(MinTick+1, 1),
		simpleTick(0, 1),
		simpleTick(MaxTick-1, 1),
	})
}

func TestTickListFromRejectsMisalignedIndex(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic on misaligned tick index")
		}
	}()
	NewTickList(10, []TickInfo{simpleTick(15, 1)})
}

func TestTickListFromRejectsUnorderedTicks(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic on unordered ticks")
		}
	}()
	NewTickList(10, []TickInfo{simpleTick(20, 1), simpleTick(10, 1)})
}

func TestIsBelowSmallest(t *testing.T) {
	tl := smallFixture()
	if !tl.isBelowSmallest(5) {
		t.Fatalf("5 should be below the smallest tick (10)")
	}
	if tl.isBelowSmallest(10) {
		t.Fatalf("10 is the smallest tick, not below it")
	}
}

func TestIsAtOrAboveLargest(t *testing.T) {
	tl := smallFixture()
	if !tl.isAtOrAboveLargest(40) {
		t.Fatalf("40 is the largest tick")
	}
	if !tl.isAtOrAboveLargest(41) {
		t.Fatalf("41 is above the largest tick")
	}
	if tl.isAtOrAboveLargest(39) {
		t.Fatalf("39 is below the largest tick")
	}
}

func TestGetTickSuccess(t *testing.T) {
	tl := smallFixture()
	info, err := tl.GetTick(20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.NetLiquidity.Int64() != -5 {
		t.Fatalf("net_liquidity = %s, want -5", info.NetLiquidity)
	}
}

func TestGetTickNotFound(t *testing.T) {
	tl := smallFixture()
	_, err := tl.GetTick(15)
	tlErr, ok := err.(*TickListError)
	if !ok || tlErr.Kind != NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestUpsertTickInsertsAndRemovesOnZero(t *testing.T) {
	tl := smallFixture()
	if err := tl.upsertTick(30, big.NewInt(7)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tl.GetTick(30); err != nil {
		t.Fatalf("expected tick 30 to be present: %v", err)
	}
	if err := tl.upsertTick(30, big.NewInt(-7)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tl.GetTick(30); err == nil {
		t.Fatalf("expected tick 30 to be removed once net liquidity reaches zero")
	}
}

func TestApplyLiquidityChange(t *testing.T) {
	tl := smallFixture()
	if err := tl.ApplyLiquidityChange(20, 40, big.NewInt(3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lower, _ := tl.GetTick(20)
	upper, _ := tl.GetTick(40)
	if lower.NetLiquidity.Int64() != -2 {
		t.Fatalf("lower net_liquidity = %s, want -2", lower.NetLiquidity)
	}
	if upper.NetLiquidity.Int64() != -8 {
		t.Fatalf("upper net_liquidity = %s, want -8", upper.NetLiquidity)
	}
}

func TestNextInitializedTickBoundaries(t *testing.T) {
	tl := smallFixture()

	if _, err := tl.NextInitializedTick(5, true); err == nil {
		t.Fatalf("expected BelowSmallest")
	} else if tlErr := err.(*TickListError); tlErr.Kind != BelowSmallest {
		t.Fatalf("expected BelowSmallest, got %v", err)
	}

	if _, err := tl.NextInitializedTick(40, false); err == nil {
		t.Fatalf("expected AtOrAboveLargest")
	} else if tlErr := err.(*TickListError); tlErr.Kind != AtOrAboveLargest {
		t.Fatalf("expected AtOrAboveLargest, got %v", err)
	}

	got, err := tl.NextInitializedTick(25, true)
	if err != nil || got.Index != 20 {
		t.Fatalf("next<=25 = %v, err=%v, want 20", got, err)
	}
	got, err = tl.NextInitializedTick(25, false)
	if err != nil || got.Index != 40 {
		t.Fatalf("next>25 = %v, err=%v, want 40", got, err)
	}
	got, err = tl.NextInitializedTick(5, false)
	if err != nil || got.Index != 10 {
		t.Fatalf("next>5 = %v, err=%v, want 10", got, err)
	}
}

func TestNextInitializedTickWithinOneWord(t *testing.T) {
	tl := minMaxFixture()

	cases := []struct {
		tick int32
		lte  bool
		want int32
		init bool
	}{
		{-257, true, -512, false},
		{-256, true, -256, false},
		{-1, true, -256, false},
	}

	for _, c := range cases {
		got, init, err := tl.NextInitializedTickWithinOneWord(c.tick, c.lte)
		if err != nil {
			t.Fatalf("tick=%d lte=%v: unexpected error: %v", c.tick, c.lte, err)
		}
		if got != c.want || init != c.init {
			t.Fatalf("tick=%d lte=%v: got (%d,%v), want (%d,%v)", c.tick, c.lte, got, init, c.want, c.init)
		}
	}
}

func TestNextInitializedTickWithinOneWordTicksExceeded(t *testing.T) {
	tl := smallFixture()
	if _, _, err := tl.NextInitializedTickWithinOneWord(-5, true); err == nil {
		t.Fatalf("expected TicksExceeded")
	} else if tlErr := err.(*TickListError); tlErr.Kind != TicksExceeded {
		t.Fatalf("expected TicksExceeded, got %v", err)
	}
}

func TestDivFloor(t *testing.T) {
	cases := []struct{ lhs, rhs, want int32 }{
		{7, 2, 3},
		{-7, 2, -4},
		{7, -2, -4},
		{-7, -2, 3},
		{-256, 1, -256},
		{-257, 1, -257},
	}
	for _, c := range cases {
		if got := divFloor(c.lhs, c.rhs); got != c.want {
			t.Fatalf("divFloor(%d,%d) = %d, want %d", c.lhs, c.rhs, got, c.want)
		}
	}
}
