package erc20

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// OverwriteFactory accumulates storage overrides for a single token
// contract, keyed by the slots discovered for its balance/allowance
// mappings and the fixed total-supply slot.
type OverwriteFactory struct {
	token      common.Address
	slots      Slots
	compiler   Compiler
	overwrites map[common.Hash]common.Hash
}

// NewOverwriteFactory builds an OverwriteFactory for token using the given
// discovered slot layout and compiler.
func NewOverwriteFactory(token common.Address, slots Slots, compiler Compiler) *OverwriteFactory {
	return &OverwriteFactory{
		token:      token,
		slots:      slots,
		compiler:   compiler,
		overwrites: make(map[common.Hash]common.Hash),
	}
}

// SetBalance overrides owner's balance.
func (f *OverwriteFactory) SetBalance(balance *uint256.Int, owner common.Address) {
	slot := BalanceSlot(f.slots, f.compiler, owner)
	f.overwrites[slot] = common.BigToHash(balance.ToBig())
}

// SetAllowance overrides the allowance owner has granted spender.
func (f *OverwriteFactory) SetAllowance(allowance *uint256.Int, spender, owner common.Address) {
	slot := AllowanceSlot(f.slots, f.compiler, owner, spender)
	f.overwrites[slot] = common.BigToHash(allowance.ToBig())
}

// SetTotalSupply overrides the token's total supply.
func (f *OverwriteFactory) SetTotalSupply(supply *uint256.Int) {
	f.overwrites[TotalSupplySlot] = common.BigToHash(supply.ToBig())
}

// GetOverwrites returns the accumulated overrides keyed by this token's
// address, ready to merge into a simulation.Params.Overrides map.
func (f *OverwriteFactory) GetOverwrites() map[common.Address]map[common.Hash]common.Hash {
	copied := make(map[common.Hash]common.Hash, len(f.overwrites))
	for k, v := range f.overwrites {
		copied[k] = v
	}
	return map[common.Address]map[common.Hash]common.Hash{f.token: copied}
}
