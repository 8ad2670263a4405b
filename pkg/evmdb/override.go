package evmdb

import (
	"github.com/dexsim/protosim/pkg/account"
	"github.com/ethereum/go-ethereum/common"
)

// ReadThroughDB is the read contract every DB tier (CachedDB, PrecachedDB)
// exposes to a short-lived override view or to the simulation adapter.
type ReadThroughDB interface {
	BasicRef(addr common.Address) (account.Info, error)
	StorageRef(addr common.Address, slot common.Hash) (common.Hash, error)
	BlockHashRef(number uint64) common.Hash
	CodeByHashRef(hash common.Hash) ([]byte, error)
}

// OverriddenDB is a short-lived per-simulation view that layers storage
// overwrites (e.g. ERC20 balance/allowance overwrites from C5, or caller-
// supplied state overrides) on top of an inner DB tier. It never mutates
// the inner tier.
type OverriddenDB struct {
	inner     ReadThroughDB
	overrides map[common.Address]map[common.Hash]common.Hash
}

// NewOverriddenDB wraps inner with the given per-address slot overwrites.
func NewOverriddenDB(inner ReadThroughDB, overrides map[common.Address]map[common.Hash]common.Hash) *OverriddenDB {
	if overrides == nil {
		overrides = make(map[common.Address]map[common.Hash]common.Hash)
	}
	return &OverriddenDB{inner: inner, overrides: overrides}
}

// BasicRef delegates unconditionally to the inner tier.
func (o *OverriddenDB) BasicRef(addr common.Address) (account.Info, error) {
	return o.inner.BasicRef(addr)
}

// StorageRef consults the override map first; on miss it delegates to the
// inner tier.
func (o *OverriddenDB) StorageRef(addr common.Address, slot common.Hash) (common.Hash, error) {
	if slots, ok := o.overrides[addr]; ok {
		if v, ok := slots[slot]; ok {
			return v, nil
		}
	}
	return o.inner.StorageRef(addr, slot)
}

// BlockHashRef delegates unconditionally to the inner tier.
func (o *OverriddenDB) BlockHashRef(number uint64) common.Hash {
	return o.inner.BlockHashRef(number)
}

// CodeByHashRef delegates unconditionally to the inner tier.
func (o *OverriddenDB) CodeByHashRef(hash common.Hash) ([]byte, error) {
	return o.inner.CodeByHashRef(hash)
}
