package simulation

import (
	"github.com/dexsim/protosim/pkg/account"
	"github.com/dexsim/protosim/pkg/evmdb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// stateObject is the per-call working copy of one account: lazily loaded
// from the DB reference on first touch, mutated in place for the rest of
// the call, and diffed against the loaded snapshot at the end to produce
// state_updates.
type stateObject struct {
	loaded          bool
	exists          bool
	balance         *uint256.Int
	originalBalance *uint256.Int
	nonce           uint64
	code            []byte
	codeHash        common.Hash
	originalStorage map[common.Hash]common.Hash
	dirtyStorage    map[common.Hash]common.Hash
	selfDestructed  bool
	created         bool
}

func newStateObject() *stateObject {
	return &stateObject{
		balance:         uint256.NewInt(0),
		originalStorage: make(map[common.Hash]common.Hash),
		dirtyStorage:    make(map[common.Hash]common.Hash),
	}
}

// journalEntry undoes one mutation recorded since the last snapshot.
type journalEntry func(*StateDB)

// StateDB adapts an evmdb.ReadThroughDB (CachedDB/PrecachedDB, optionally
// wrapped in an OverriddenDB) into go-ethereum's core/vm.StateDB, giving the
// interpreter the same lazy, read-through semantics revm's DatabaseRef gave
// the original engine. One StateDB is built fresh per call (C4 never
// retains mutable EVM state across calls).
type StateDB struct {
	db      evmdb.ReadThroughDB
	objects map[common.Address]*stateObject

	journal        []journalEntry
	refund         uint64
	logs           []*types.Log
	accessedAddrs  map[common.Address]bool
	accessedSlots  map[common.Address]map[common.Hash]bool
	transientState map[common.Address]map[common.Hash]common.Hash

	dbErr error
}

// NewStateDB builds a fresh adapter over db.
func NewStateDB(db evmdb.ReadThroughDB) *StateDB {
	return &StateDB{
		db:             db,
		objects:        make(map[common.Address]*stateObject),
		accessedAddrs:  make(map[common.Address]bool),
		accessedSlots:  make(map[common.Address]map[common.Hash]bool),
		transientState: make(map[common.Address]map[common.Hash]common.Hash),
	}
}

// Err returns the first DB-tier error observed during this call, if any.
// The engine checks this after Run() returns to distinguish a StorageError
// from a genuine EVM revert/halt.
func (s *StateDB) Err() error { return s.dbErr }

func (s *StateDB) recordErr(err error) {
	if err != nil && s.dbErr == nil {
		s.dbErr = err
	}
}

func (s *StateDB) object(addr common.Address) *stateObject {
	obj, ok := s.objects[addr]
	if !ok {
		obj = newStateObject()
		s.objects[addr] = obj
	}
	if !obj.loaded {
		obj.loaded = true
		info, err := s.db.BasicRef(addr)
		if err != nil {
			if _, isMissing := err.(*evmdb.MissingAccount); !isMissing {
				s.recordErr(err)
			}
			return obj
		}
		obj.exists = true
		obj.balance = info.Balance
		obj.originalBalance = new(uint256.Int).Set(info.Balance)
		obj.nonce = info.Nonce
		obj.code = info.Code
		obj.codeHash = info.CodeHash
	}
	return obj
}

// CreateAccount marks addr as existing with zero balance/nonce/code, as the
// EVM does when a CREATE target has no prior account.
func (s *StateDB) CreateAccount(addr common.Address) {
	obj := s.object(addr)
	existed := obj.exists
	s.journal = append(s.journal, func(sd *StateDB) { sd.objects[addr].exists = existed })
	obj.exists = true
}

// CreateContract marks addr as having had code deployed into it during this
// call, per EIP-6780: only contracts created and self-destructed within the
// same call actually wipe their storage on SelfDestruct6780.
func (s *StateDB) CreateContract(addr common.Address) {
	obj := s.object(addr)
	existed := obj.created
	s.journal = append(s.journal, func(sd *StateDB) { sd.objects[addr].created = existed })
	obj.created = true
}

func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) uint256.Int {
	obj := s.object(addr)
	prev := new(uint256.Int).Set(obj.balance)
	s.journal = append(s.journal, func(sd *StateDB) { sd.objects[addr].balance = prev })
	obj.balance = new(uint256.Int).Sub(obj.balance, amount)
	return *prev
}

func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) uint256.Int {
	obj := s.object(addr)
	prev := new(uint256.Int).Set(obj.balance)
	s.journal = append(s.journal, func(sd *StateDB) { sd.objects[addr].balance = prev })
	obj.balance = new(uint256.Int).Add(obj.balance, amount)
	return *prev
}

func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	return s.object(addr).balance
}

func (s *StateDB) GetNonce(addr common.Address) uint64 {
	return s.object(addr).nonce
}

func (s *StateDB) SetNonce(addr common.Address, nonce uint64, reason tracing.NonceChangeReason) {
	obj := s.object(addr)
	prev := obj.nonce
	s.journal = append(s.journal, func(sd *StateDB) { sd.objects[addr].nonce = prev })
	obj.nonce = nonce
}

func (s *StateDB) GetCodeHash(addr common.Address) common.Hash {
	obj := s.object(addr)
	if !obj.exists {
		return common.Hash{}
	}
	return obj.codeHash
}

func (s *StateDB) GetCode(addr common.Address) []byte {
	return s.object(addr).code
}

func (s *StateDB) SetCode(addr common.Address, code []byte) []byte {
	obj := s.object(addr)
	prevCode, prevHash := obj.code, obj.codeHash
	s.journal = append(s.journal, func(sd *StateDB) {
		sd.objects[addr].code = prevCode
		sd.objects[addr].codeHash = prevHash
	})
	info := account.NewInfo(nil, 0, code)
	obj.code = code
	obj.codeHash = info.CodeHash
	return prevCode
}

func (s *StateDB) GetCodeSize(addr common.Address) int {
	return len(s.object(addr).code)
}

func (s *StateDB) AddRefund(gas uint64) {
	prev := s.refund
	s.journal = append(s.journal, func(sd *StateDB) { sd.refund = prev })
	s.refund += gas
}

func (s *StateDB) SubRefund(gas uint64) {
	prev := s.refund
	s.journal = append(s.journal, func(sd *StateDB) { sd.refund = prev })
	if gas > s.refund {
		panic("evmdb: refund counter below zero")
	}
	s.refund -= gas
}

func (s *StateDB) GetRefund() uint64 { return s.refund }

func (s *StateDB) GetCommittedState(addr common.Address, slot common.Hash) common.Hash {
	obj := s.object(addr)
	if v, ok := obj.originalStorage[slot]; ok {
		return v
	}
	v, err := s.db.StorageRef(addr, slot)
	if err != nil {
		s.recordErr(err)
		return common.Hash{}
	}
	obj.originalStorage[slot] = v
	return v
}

func (s *StateDB) GetState(addr common.Address, slot common.Hash) common.Hash {
	obj := s.object(addr)
	if v, ok := obj.dirtyStorage[slot]; ok {
		return v
	}
	return s.GetCommittedState(addr, slot)
}

func (s *StateDB) SetState(addr common.Address, slot, value common.Hash) common.Hash {
	obj := s.object(addr)
	prev, had := obj.dirtyStorage[slot]
	s.journal = append(s.journal, func(sd *StateDB) {
		if had {
			sd.objects[addr].dirtyStorage[slot] = prev
		} else {
			delete(sd.objects[addr].dirtyStorage, slot)
		}
	})
	obj.dirtyStorage[slot] = value
	if !had {
		return s.GetCommittedState(addr, slot)
	}
	return prev
}

func (s *StateDB) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	if m, ok := s.transientState[addr]; ok {
		return m[key]
	}
	return common.Hash{}
}

func (s *StateDB) SetTransientState(addr common.Address, key, value common.Hash) {
	if s.transientState[addr] == nil {
		s.transientState[addr] = make(map[common.Hash]common.Hash)
	}
	s.transientState[addr][key] = value
}

func (s *StateDB) SelfDestruct(addr common.Address) uint256.Int {
	obj := s.object(addr)
	prevDestructed, prevBalance := obj.selfDestructed, new(uint256.Int).Set(obj.balance)
	s.journal = append(s.journal, func(sd *StateDB) {
		sd.objects[addr].selfDestructed = prevDestructed
		sd.objects[addr].balance = prevBalance
	})
	obj.selfDestructed = true
	obj.balance = uint256.NewInt(0)
	return *prevBalance
}

func (s *StateDB) HasSelfDestructed(addr common.Address) bool {
	return s.object(addr).selfDestructed
}

func (s *StateDB) SelfDestruct6780(addr common.Address) (uint256.Int, bool) {
	obj := s.object(addr)
	if obj.created {
		return s.SelfDestruct(addr), true
	}
	return *obj.balance, false
}

func (s *StateDB) Exist(addr common.Address) bool {
	return s.object(addr).exists
}

func (s *StateDB) Empty(addr common.Address) bool {
	obj := s.object(addr)
	return !obj.exists || (obj.nonce == 0 && obj.balance.IsZero() && obj.codeHash == account.EmptyCodeHash)
}

func (s *StateDB) AddressInAccessList(addr common.Address) bool {
	return s.accessedAddrs[addr]
}

func (s *StateDB) SlotInAccessList(addr common.Address, slot common.Hash) (bool, bool) {
	addrOK := s.accessedAddrs[addr]
	slotOK := false
	if m, ok := s.accessedSlots[addr]; ok {
		slotOK = m[slot]
	}
	return addrOK, slotOK
}

func (s *StateDB) AddAddressToAccessList(addr common.Address) {
	if s.accessedAddrs[addr] {
		return
	}
	s.journal = append(s.journal, func(sd *StateDB) { delete(sd.accessedAddrs, addr) })
	s.accessedAddrs[addr] = true
}

func (s *StateDB) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	s.AddAddressToAccessList(addr)
	if s.accessedSlots[addr] == nil {
		s.accessedSlots[addr] = make(map[common.Hash]bool)
	}
	if s.accessedSlots[addr][slot] {
		return
	}
	s.journal = append(s.journal, func(sd *StateDB) { delete(sd.accessedSlots[addr], slot) })
	s.accessedSlots[addr][slot] = true
}

// Prepare primes the access list per EIP-2930/3651 ahead of a call. The
// simulator only needs sender/dest/precompile warmth, not the full tx
// access list semantics of a consensus client.
func (s *StateDB) Prepare(rules params.Rules, sender, coinbase common.Address, dst *common.Address, precompiles []common.Address, txAccesses types.AccessList) {
	s.AddAddressToAccessList(sender)
	if dst != nil {
		s.AddAddressToAccessList(*dst)
	}
	for _, p := range precompiles {
		s.AddAddressToAccessList(p)
	}
	if rules.IsBerlin {
		s.AddAddressToAccessList(coinbase)
	}
	for _, entry := range txAccesses {
		s.AddAddressToAccessList(entry.Address)
		for _, slot := range entry.StorageKeys {
			s.AddSlotToAccessList(entry.Address, slot)
		}
	}
}

func (s *StateDB) RevertToSnapshot(id int) {
	for i := len(s.journal) - 1; i >= id; i-- {
		s.journal[i](s)
	}
	s.journal = s.journal[:id]
}

func (s *StateDB) Snapshot() int { return len(s.journal) }

func (s *StateDB) AddLog(log *types.Log) { s.logs = append(s.logs, log) }

func (s *StateDB) AddPreimage(common.Hash, []byte) {}

// Logs returns every log emitted during this call.
func (s *StateDB) Logs() []*types.Log { return s.logs }

// StateUpdates computes the per-account deltas touched by this call, in the
// shape §4.4 asks for: new balance, plus only the storage slots that were
// actually written and ended up differing from their original value. An
// account with no changed slots gets a nil Storage map.
func (s *StateDB) StateUpdates() map[common.Address]account.StateUpdate {
	out := make(map[common.Address]account.StateUpdate)
	for addr, obj := range s.objects {
		if !obj.loaded {
			continue
		}
		var changed map[common.Hash]common.Hash
		for slot, v := range obj.dirtyStorage {
			if orig, ok := obj.originalStorage[slot]; !ok || orig != v {
				if changed == nil {
					changed = make(map[common.Hash]common.Hash)
				}
				changed[slot] = v
			}
		}
		balanceChanged := obj.originalBalance == nil || obj.originalBalance.Cmp(obj.balance) != 0
		if changed == nil && !obj.created && !balanceChanged {
			continue
		}
		out[addr] = account.StateUpdate{Balance: obj.balance, Storage: changed}
	}
	return out
}
