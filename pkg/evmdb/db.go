// Package evmdb implements C2 and C3: read-through caches that sit between
// the simulation engine and a source of chain truth (an RPC node, or an
// indexer feed), both exposing the same read contract the EVM adapter
// expects.
package evmdb

import (
	"context"
	"fmt"

	"github.com/dexsim/protosim/pkg/account"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// RPCClient is the minimal surface CachedDB reads through to. Implementations
// wrap a concrete JSON-RPC client (e.g. ethclient.Client); block is nil for
// "latest".
type RPCClient interface {
	BalanceAt(ctx context.Context, addr common.Address, block *uint64) (*uint256.Int, error)
	NonceAt(ctx context.Context, addr common.Address, block *uint64) (uint64, error)
	CodeAt(ctx context.Context, addr common.Address, block *uint64) ([]byte, error)
	StorageAt(ctx context.Context, addr common.Address, slot common.Hash, block *uint64) (common.Hash, error)
	BlockHashByNumber(ctx context.Context, number uint64) (common.Hash, error)
}

// BlockHeader is the minimal block identity CachedDB pins reads to.
type BlockHeader struct {
	Number    uint64
	Hash      common.Hash
	Timestamp uint64
}

// CachedDB is the node-backed read-through cache (C2): an AccountStore in
// front of an RPCClient, pinned to an optional query block for historical
// reads. It satisfies go-ethereum's core/vm.StateDB via the adapter in
// pkg/simulation; this type only owns the read-through/caching semantics.
type CachedDB struct {
	client RPCClient
	store  *account.Store
	block  *BlockHeader
	log    *zap.SugaredLogger
}

// New builds a CachedDB. block may be nil, meaning reads target the chain
// head.
func New(client RPCClient, block *BlockHeader, log *zap.SugaredLogger) *CachedDB {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &CachedDB{client: client, store: account.NewStore(log), block: block, log: log}
}

// BasicRef returns an account's balance/nonce/code, fetching and caching it
// from the RPC client on first access. The bytecode is never re-analysed
// here (go-ethereum's vm package handles jumpdest analysis internally on
// first execution, unlike revm which needs it pre-computed).
func (db *CachedDB) BasicRef(addr common.Address) (account.Info, error) {
	if info, ok := db.store.GetAccountInfo(addr); ok {
		return info, nil
	}

	ctx := context.Background()
	blockNum := db.blockNumberPtr()

	balance, err := db.client.BalanceAt(ctx, addr, blockNum)
	if err != nil {
		return account.Info{}, fmt.Errorf("fetching balance for %s: %w", addr, err)
	}
	nonce, err := db.client.NonceAt(ctx, addr, blockNum)
	if err != nil {
		return account.Info{}, fmt.Errorf("fetching nonce for %s: %w", addr, err)
	}
	code, err := db.client.CodeAt(ctx, addr, blockNum)
	if err != nil {
		return account.Info{}, fmt.Errorf("fetching code for %s: %w", addr, err)
	}

	info := account.NewInfo(balance, nonce, code)
	db.store.InitAccount(addr, info, nil, false)
	return info, nil
}

// StorageRef reads a single storage slot, consulting the cache first, then
// falling through to the mocked/non-mocked branching the account is
// flagged with, exactly as database.rs's DatabaseRef::storage does.
func (db *CachedDB) StorageRef(addr common.Address, slot common.Hash) (common.Hash, error) {
	if v, ok := db.store.GetStorage(addr, slot); ok {
		return v, nil
	}

	mocked, present := db.store.IsMocked(addr)
	switch {
	case present && mocked:
		return common.Hash{}, nil
	case present && !mocked:
		v, err := db.fetchAndCacheStorage(addr, slot)
		return v, err
	default:
		if _, err := db.BasicRef(addr); err != nil {
			return common.Hash{}, err
		}
		return db.fetchAndCacheStorage(addr, slot)
	}
}

func (db *CachedDB) fetchAndCacheStorage(addr common.Address, slot common.Hash) (common.Hash, error) {
	v, err := db.client.StorageAt(context.Background(), addr, slot, db.blockNumberPtr())
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetching storage %s[%s]: %w", addr, slot, err)
	}
	db.store.SetTempStorage(addr, slot, v)
	return v, nil
}

// BlockHashRef returns the pinned block's hash, or the zero hash if no
// block is pinned.
func (db *CachedDB) BlockHashRef(number uint64) common.Hash {
	if db.block != nil && db.block.Number == number {
		return db.block.Hash
	}
	return common.Hash{}
}

// CodeByHashRef is unsupported: CachedDB always resolves code via BasicRef,
// which ties code to an address rather than a bare hash. Callers that hit
// this indicate a missing code-analysis step upstream.
func (db *CachedDB) CodeByHashRef(common.Hash) ([]byte, error) {
	return nil, fmt.Errorf("evmdb: code_by_hash is not supported, resolve code via BasicRef instead")
}

// InitAccount seeds an account directly, bypassing the RPC fetch path.
func (db *CachedDB) InitAccount(addr common.Address, info account.Info, permanentStorage map[common.Hash]common.Hash, mocked bool) {
	db.store.InitAccount(addr, info, permanentStorage, mocked)
}

// UpdateState applies a batch of updates and advances the pinned block,
// returning the reverse updates needed to undo this call.
func (db *CachedDB) UpdateState(updates map[common.Address]account.StateUpdate, newBlock BlockHeader) map[common.Address]account.StateUpdate {
	reverse := make(map[common.Address]account.StateUpdate, len(updates))
	db.block = &newBlock

	for addr, update := range updates {
		var revertEntry account.StateUpdate
		if info, ok := db.store.GetAccountInfo(addr); ok {
			revertEntry.Balance = info.Balance
		}
		if update.Storage != nil {
			revertStorage := make(map[common.Hash]common.Hash, len(update.Storage))
			for slot := range update.Storage {
				if v, ok := db.store.GetPermanentStorage(addr, slot); ok {
					revertStorage[slot] = v
				}
			}
			revertEntry.Storage = revertStorage
		}
		reverse[addr] = revertEntry
		db.store.UpdateAccount(addr, update)
	}

	return reverse
}

// ClearTempStorage drops the temp tier across all cached accounts.
func (db *CachedDB) ClearTempStorage() {
	db.store.ClearTempStorage()
}

// Store exposes the underlying account store, e.g. so an override layer or
// the simulation adapter can query mocked-ness directly.
func (db *CachedDB) Store() *account.Store { return db.store }

func (db *CachedDB) blockNumberPtr() *uint64 {
	if db.block == nil {
		return nil
	}
	n := db.block.Number
	return &n
}
