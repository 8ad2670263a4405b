package evmdb

import (
	"fmt"

	"github.com/dexsim/protosim/pkg/account"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// MissingAccount is returned by PrecachedDB.StorageRef when the queried
// address was never seen in an indexer update. Unlike CachedDB, there is no
// node to fall back to, so this is a hard error.
type MissingAccount struct {
	Address common.Address
}

func (e *MissingAccount) Error() string {
	return fmt.Sprintf("evmdb: account %s is missing from the precached store", e.Address)
}

// UpdateKind discriminates the three shapes an indexer-sourced AccountUpdate
// can take.
type UpdateKind int

const (
	// UpdateKindCreation introduces a brand new account with bytecode.
	UpdateKindCreation UpdateKind = iota
	// UpdateKindUpdate applies a storage/balance delta to a known account.
	UpdateKindUpdate
	// UpdateKindDeletion is reserved; see PrecachedDB.Update.
	UpdateKindDeletion
)

// AccountUpdate is one typed entry in an indexer batch.
type AccountUpdate struct {
	Kind    UpdateKind
	Address common.Address
	Code    []byte
	Balance *uint256.Int
	Storage map[common.Hash]common.Hash
}

// PrecachedDB is the indexer-backed read-through cache (C3): strictly
// offline, every account it knows about is mocked, and an unseen address is
// a hard error rather than a zero value.
type PrecachedDB struct {
	store       *account.Store
	blockNumber *uint64
	log         *zap.SugaredLogger
}

// NewPrecachedDB builds an empty indexer-backed cache.
func NewPrecachedDB(log *zap.SugaredLogger) *PrecachedDB {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &PrecachedDB{store: account.NewStore(log), log: log}
}

// BasicRef returns the cached info for addr, or MissingAccount if it was
// never seen in an update.
func (db *PrecachedDB) BasicRef(addr common.Address) (account.Info, error) {
	info, ok := db.store.GetAccountInfo(addr)
	if !ok {
		return account.Info{}, &MissingAccount{Address: addr}
	}
	return info, nil
}

// StorageRef implements the three-way branch from §4.3: known slot wins,
// present-but-absent-slot yields zero (a mocked account is "fully
// materialised"), and an unseen account is a hard error.
func (db *PrecachedDB) StorageRef(addr common.Address, slot common.Hash) (common.Hash, error) {
	if v, ok := db.store.GetStorage(addr, slot); ok {
		return v, nil
	}
	if db.store.AccountPresent(addr) {
		return common.Hash{}, nil
	}
	return common.Hash{}, &MissingAccount{Address: addr}
}

// BlockHashRef always returns the zero hash: PrecachedDB does not track
// block headers or hashes, only the trailing block number.
func (db *PrecachedDB) BlockHashRef(uint64) common.Hash {
	return common.Hash{}
}

// CodeByHashRef is unsupported for the same reason as CachedDB.
func (db *PrecachedDB) CodeByHashRef(common.Hash) ([]byte, error) {
	return nil, fmt.Errorf("evmdb: code_by_hash is not supported on PrecachedDB")
}

// Update applies a batch of typed indexer updates and advances the trailing
// block number.
func (db *PrecachedDB) Update(updates []AccountUpdate, block *uint64) {
	if block != nil {
		db.blockNumber = block
	}
	for _, u := range updates {
		switch u.Kind {
		case UpdateKindCreation:
			info := account.NewInfo(u.Balance, 0, u.Code)
			db.store.InitAccount(u.Address, info, u.Storage, true)
		case UpdateKindUpdate:
			db.store.UpdateAccount(u.Address, account.StateUpdate{
				Storage: u.Storage,
				Balance: u.Balance,
			})
		case UpdateKindDeletion:
			db.log.Warnw("account deletion updates are not applied (documented divergence)", "address", u.Address)
		}
	}
}

// BlockNumber returns the most recently applied block number, if any.
func (db *PrecachedDB) BlockNumber() (uint64, bool) {
	if db.blockNumber == nil {
		return 0, false
	}
	return *db.blockNumber, true
}

// Store exposes the underlying account store.
func (db *PrecachedDB) Store() *account.Store { return db.store }
