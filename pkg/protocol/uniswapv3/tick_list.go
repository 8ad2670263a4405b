package uniswapv3

import (
	"fmt"
	"math/big"
	"sort"
)

// TickInfo is one initialised tick: its index, the net liquidity that
// crosses it, and its pre-computed sqrt price (Q64.96).
type TickInfo struct {
	Index         int32
	NetLiquidity  *big.Int
	SqrtPriceX96  *big.Int
}

// NewTickInfo builds a TickInfo, pre-computing its sqrt price the way the
// teacher's tick construction always does, so hot-path lookups never
// recompute it.
func NewTickInfo(index int32, netLiquidity *big.Int) (TickInfo, error) {
	sqrtPrice, err := SqrtRatioAtTick(index)
	if err != nil {
		return TickInfo{}, err
	}
	return TickInfo{Index: index, NetLiquidity: netLiquidity, SqrtPriceX96: sqrtPrice}, nil
}

// TickListErrorKind discriminates the boundary conditions TickList search
// operations can hit.
type TickListErrorKind int

const (
	NotFound TickListErrorKind = iota
	BelowSmallest
	AtOrAboveLargest
	TicksExceeded
)

// TickListError is returned by TickList's search operations.
type TickListError struct {
	Kind TickListErrorKind
}

func (e *TickListError) Error() string {
	switch e.Kind {
	case NotFound:
		return "tick not found"
	case BelowSmallest:
		return "tick below smallest"
	case AtOrAboveLargest:
		return "tick at or above largest"
	case TicksExceeded:
		return "ticks exceeded safe search range"
	default:
		return "tick list error"
	}
}

// TickList is a sorted-by-index collection of initialised ticks, aligned to
// a fixed spacing. Non-empty ticks are always sorted ascending; every
// index is a multiple of spacing.
type TickList struct {
	spacing int32
	ticks   []TickInfo
}

// NewTickList validates and wraps ticks, panicking on a malformed input the
// way the teacher's constructors do for invariant violations discovered at
// construction time (never for data later mutated through the API, which
// the mutators keep valid by construction).
func NewTickList(spacing int32, ticks []TickInfo) *TickList {
	tl := &TickList{spacing: spacing, ticks: ticks}
	if err := tl.validate(); err != nil {
		panic(err.Error())
	}
	return tl
}

func (tl *TickList) validate() error {
	if tl.spacing <= 0 {
		return fmt.Errorf("tick spacing must be > 0, got %d", tl.spacing)
	}
	for _, t := range tl.ticks {
		if t.Index%tl.spacing != 0 {
			return fmt.Errorf("tick index %d not aligned with spacing %d", t.Index, tl.spacing)
		}
	}
	for i := 0; i+1 < len(tl.ticks); i++ {
		if tl.ticks[i].Index > tl.ticks[i+1].Index {
			return fmt.Errorf("ticks not ordered at position %d", i)
		}
	}
	return nil
}

// Spacing returns the tick spacing this list is aligned to.
func (tl *TickList) Spacing() int32 { return tl.spacing }

// Ticks returns the underlying slice. Callers must not mutate it.
func (tl *TickList) Ticks() []TickInfo { return tl.ticks }

func (tl *TickList) search(index int32) (int, bool) {
	i := sort.Search(len(tl.ticks), func(i int) bool { return tl.ticks[i].Index >= index })
	if i < len(tl.ticks) && tl.ticks[i].Index == index {
		return i, true
	}
	return i, false
}

// ApplyLiquidityChange upserts +delta at lower and -delta at upper,
// removing any tick whose net liquidity becomes exactly zero.
func (tl *TickList) ApplyLiquidityChange(lower, upper int32, delta *big.Int) error {
	if err := tl.upsertTick(lower, delta); err != nil {
		return err
	}
	return tl.upsertTick(upper, new(big.Int).Neg(delta))
}

func (tl *TickList) upsertTick(index int32, delta *big.Int) error {
	idx, found := tl.search(index)
	if found {
		tl.ticks[idx].NetLiquidity = new(big.Int).Add(tl.ticks[idx].NetLiquidity, delta)
		if tl.ticks[idx].NetLiquidity.Sign() == 0 {
			tl.ticks = append(tl.ticks[:idx], tl.ticks[idx+1:]...)
		}
		return nil
	}
	info, err := NewTickInfo(index, new(big.Int).Set(delta))
	if err != nil {
		return err
	}
	tl.ticks = append(tl.ticks, TickInfo{})
	copy(tl.ticks[idx+1:], tl.ticks[idx:])
	tl.ticks[idx] = info
	return nil
}

func (tl *TickList) isBelowSmallest(tick int32) bool {
	return tick < tl.ticks[0].Index
}

func (tl *TickList) isBelowSafeTick(tick int32) bool {
	return tick < tl.ticks[0].Index-tl.spacing
}

func (tl *TickList) isAtOrAboveLargest(tick int32) bool {
	return tick >= tl.ticks[len(tl.ticks)-1].Index
}

func (tl *TickList) isAtOrAboveSafeTick(tick int32) bool {
	return tick >= tl.ticks[len(tl.ticks)-1].Index+tl.spacing
}

// GetTick returns the tick at exactly index, or NotFound.
func (tl *TickList) GetTick(index int32) (*TickInfo, error) {
	idx, found := tl.search(index)
	if !found {
		return nil, &TickListError{Kind: NotFound}
	}
	return &tl.ticks[idx], nil
}

// NextInitializedTick returns the nearest initialised tick ≤ index (lte) or
// > index (!lte), erroring at the boundaries.
func (tl *TickList) NextInitializedTick(index int32, lte bool) (*TickInfo, error) {
	if lte {
		if tl.isBelowSmallest(index) {
			return nil, &TickListError{Kind: BelowSmallest}
		}
		if tl.isAtOrAboveLargest(index) {
			return &tl.ticks[len(tl.ticks)-1], nil
		}
		idx, found := tl.search(index)
		if !found {
			idx--
		}
		return &tl.ticks[idx], nil
	}
	if tl.isAtOrAboveLargest(index) {
		return nil, &TickListError{Kind: AtOrAboveLargest}
	}
	if tl.isBelowSmallest(index) {
		return &tl.ticks[0], nil
	}
	idx, found := tl.search(index)
	if found {
		idx++
	}
	return &tl.ticks[idx], nil
}

// NextInitializedTickWithinOneWord clamps NextInitializedTick's result to
// the 256-tick-index word containing tick, returning (bounded_index,
// is_initialised). Returns TicksExceeded once the search would need to
// leave the safe range [smallest-spacing, largest+spacing].
func (tl *TickList) NextInitializedTickWithinOneWord(tick int32, lte bool) (int32, bool, error) {
	spacing := tl.spacing
	compressed := divFloor(tick, spacing)

	if lte {
		wordPos := compressed >> 8
		minInWord := (wordPos << 8) * spacing

		if tl.isBelowSafeTick(tick) {
			return 0, false, &TickListError{Kind: TicksExceeded}
		}
		if tl.isBelowSmallest(tick) {
			minimum := maxInt32(tl.ticks[0].Index-spacing, minInWord)
			return minimum, false, nil
		}
		next, err := tl.NextInitializedTick(tick, lte)
		if err != nil {
			return 0, false, err
		}
		nextIdx := maxInt32(next.Index, minInWord)
		return nextIdx, nextIdx == next.Index, nil
	}

	wordPos := (compressed + 1) >> 8
	maxInWord := (((wordPos + 1) << 8) - 1) * spacing

	if tl.isAtOrAboveSafeTick(tick) {
		return 0, false, &TickListError{Kind: TicksExceeded}
	}
	if tl.isAtOrAboveLargest(tick) {
		maximum := minInt32(tl.ticks[len(tl.ticks)-1].Index+spacing, maxInWord)
		return maximum, false, nil
	}
	next, err := tl.NextInitializedTick(tick, lte)
	if err != nil {
		return 0, false, err
	}
	nextIdx := minInt32(maxInWord, next.Index)
	return nextIdx, nextIdx == next.Index, nil
}

func divFloor(lhs, rhs int32) int32 {
	d := lhs / rhs
	r := lhs % rhs
	if (r > 0 && rhs < 0) || (r < 0 && rhs > 0) {
		return d - 1
	}
	return d
}

func maxInt32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func minInt32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
