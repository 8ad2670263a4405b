// Package erc20 locates and manipulates the storage slots of an ERC20
// token contract (C5): the two compiler-specific mapping-slot hashing rules,
// brute-force slot discovery against a simulation engine, and an overwrite
// factory building the per-account storage overrides a swap quote needs.
package erc20

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Compiler distinguishes the two storage layouts this engine knows how to
// brute-force: Solidity and Vyper hash a mapping's key and base slot in
// opposite order.
type Compiler int

const (
	Solidity Compiler = iota
	Vyper
)

// MapSlot computes the storage slot holding mapping[key], given the
// mapping's own base slot, following each compiler's keccak256 rule.
func (c Compiler) MapSlot(baseSlot, key common.Hash) common.Hash {
	var concatenated []byte
	switch c {
	case Vyper:
		concatenated = append(append([]byte{}, baseSlot.Bytes()...), key.Bytes()...)
	default:
		concatenated = append(append([]byte{}, key.Bytes()...), baseSlot.Bytes()...)
	}
	return crypto.Keccak256Hash(concatenated)
}

// Slots records the base storage slots an ERC20's balanceOf and allowance
// mappings live at (slot 2 is always total supply, by the mocked contract's
// fixed layout).
type Slots struct {
	Balance   common.Hash
	Allowance common.Hash
}

// TotalSupplySlot is the fixed slot used by the engine's mocked ERC20
// contract for totalSupply; it is never brute-forced since every mocked
// token is deployed with the same layout at this slot.
var TotalSupplySlot = common.BigToHash(uint256.NewInt(2).ToBig())

// BalanceSlot returns the storage slot holding owner's balance.
func BalanceSlot(slots Slots, compiler Compiler, owner common.Address) common.Hash {
	return compiler.MapSlot(slots.Balance, common.BytesToHash(owner.Bytes()))
}

// AllowanceSlot returns the storage slot holding the allowance owner has
// granted spender, applying the mapping-slot rule twice for the nested map.
func AllowanceSlot(slots Slots, compiler Compiler, owner, spender common.Address) common.Hash {
	ownerSlot := compiler.MapSlot(slots.Allowance, common.BytesToHash(owner.Bytes()))
	return compiler.MapSlot(ownerSlot, common.BytesToHash(spender.Bytes()))
}
