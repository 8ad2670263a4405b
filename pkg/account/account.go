// Package account implements C1, the permanent/temporary account cache that
// every DB tier (node-backed, indexer-backed, overridden) builds on.
package account

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// EmptyCodeHash is the canonical keccak256 of an empty byte string, the
// code hash every externally-owned account (no code) carries.
var EmptyCodeHash = crypto.Keccak256Hash(nil)

// Info is the account data a DB tier reads through to: balance, nonce, and
// optionally deployed bytecode. CodeHash must equal keccak256(Code) when
// Code is present, and EmptyCodeHash otherwise.
type Info struct {
	Balance  *uint256.Int
	Nonce    uint64
	Code     []byte
	CodeHash common.Hash
}

// NewInfo builds an Info, computing CodeHash from Code (or EmptyCodeHash if
// code is nil/empty).
func NewInfo(balance *uint256.Int, nonce uint64, code []byte) Info {
	info := Info{Balance: balance, Nonce: nonce}
	if balance == nil {
		info.Balance = uint256.NewInt(0)
	}
	if len(code) > 0 {
		info.Code = code
		info.CodeHash = crypto.Keccak256Hash(code)
	} else {
		info.CodeHash = EmptyCodeHash
	}
	return info
}

// Clone returns a deep copy safe to hand to a caller that may mutate it.
func (i Info) Clone() Info {
	out := Info{Nonce: i.Nonce, CodeHash: i.CodeHash}
	if i.Balance != nil {
		out.Balance = new(uint256.Int).Set(i.Balance)
	}
	if i.Code != nil {
		out.Code = append([]byte(nil), i.Code...)
	}
	return out
}

// StateUpdate is a delta applied to an account: any listed slot and the
// balance (if present) overwrite the prior value.
type StateUpdate struct {
	Storage map[common.Hash]common.Hash
	Balance *uint256.Int
}

// account is the full record AccountStore keeps per address. temp_storage
// shadows permanent_storage for reads; mocked accounts never fall back to a
// node and treat an absent slot as zero.
type account struct {
	info             Info
	permanentStorage map[common.Hash]common.Hash
	tempStorage      map[common.Hash]common.Hash
	mocked           bool
}
