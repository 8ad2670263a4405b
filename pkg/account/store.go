package account

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Store is the permanent/temporary account cache (C1). It never returns an
// error: every anomaly (double init, update/set on an absent account) is a
// warning, because the store is a dumb cache and must never block a caller.
//
// Locking follows the teacher's AccountManager convention: one RWMutex,
// held for the shortest span needed. Read-through callers (CachedDB) must
// release the read lock before recursing into a write, since storage_ref
// can call basic_ref which in turn calls init_account.
type Store struct {
	mu       sync.RWMutex
	accounts map[common.Address]*account
	log      *zap.SugaredLogger
}

// NewStore creates an empty account store.
func NewStore(log *zap.SugaredLogger) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{accounts: make(map[common.Address]*account), log: log}
}

// InitAccount inserts a new account. If addr is already present this is a
// no-op (the existing account is never overwritten); a warning is logged.
func (s *Store) InitAccount(addr common.Address, info Info, permanentStorage map[common.Hash]common.Hash, mocked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[addr]; ok {
		s.log.Warnw("tried to init account that was already initialized", "address", addr)
		return
	}
	if permanentStorage == nil {
		permanentStorage = make(map[common.Hash]common.Hash)
	}
	s.accounts[addr] = &account{
		info:             info,
		permanentStorage: permanentStorage,
		tempStorage:      make(map[common.Hash]common.Hash),
		mocked:           mocked,
	}
	s.log.Debugw("inserted account", "address", addr, "mocked", mocked)
}

// UpdateAccount merges update.Balance and every slot in update.Storage into
// the account's permanent storage. Never touches temp storage. No-ops with
// a warning if addr is absent.
func (s *Store) UpdateAccount(addr common.Address, update StateUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[addr]
	if !ok {
		s.log.Warnw("tried to update account that was not initialized", "address", addr)
		return
	}
	if update.Balance != nil {
		acc.info.Balance = update.Balance
	}
	for slot, value := range update.Storage {
		acc.permanentStorage[slot] = value
	}
}

// GetAccountInfo returns a copy of the account's info, or false if absent.
func (s *Store) GetAccountInfo(addr common.Address) (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[addr]
	if !ok {
		return Info{}, false
	}
	return acc.info.Clone(), true
}

// AccountPresent reports whether addr has been initialized.
func (s *Store) AccountPresent(addr common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.accounts[addr]
	return ok
}

// IsMocked reports whether addr is mocked; the second return is false if
// the account is absent.
func (s *Store) IsMocked(addr common.Address) (mocked bool, present bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[addr]
	if !ok {
		return false, false
	}
	return acc.mocked, true
}

// GetStorage returns temp_storage[slot] if set, else permanent_storage[slot],
// else (zero, false). An absent account always yields (zero, false).
func (s *Store) GetStorage(addr common.Address, slot common.Hash) (common.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[addr]
	if !ok {
		return common.Hash{}, false
	}
	if v, ok := acc.tempStorage[slot]; ok {
		return v, true
	}
	if v, ok := acc.permanentStorage[slot]; ok {
		return v, true
	}
	return common.Hash{}, false
}

// GetPermanentStorage consults the permanent tier only, bypassing any temp
// override.
func (s *Store) GetPermanentStorage(addr common.Address, slot common.Hash) (common.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[addr]
	if !ok {
		return common.Hash{}, false
	}
	v, ok := acc.permanentStorage[slot]
	return v, ok
}

// SetTempStorage writes to the temp tier. No-ops with a warning if addr is
// absent.
func (s *Store) SetTempStorage(addr common.Address, slot, value common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[addr]
	if !ok {
		s.log.Warnw("trying to set storage on uninitialized account", "address", addr)
		return
	}
	acc.tempStorage[slot] = value
}

// ClearTempStorage clears the temp tier for every account; the permanent
// tier is untouched.
func (s *Store) ClearTempStorage() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acc := range s.accounts {
		acc.tempStorage = make(map[common.Hash]common.Hash)
	}
}
