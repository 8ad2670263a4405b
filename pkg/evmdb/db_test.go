package evmdb

import (
	"context"
	"testing"

	"github.com/dexsim/protosim/pkg/account"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func newZeroInfo() account.Info {
	return account.NewInfo(uint256.NewInt(0), 0, nil)
}

func newZeroInfoWithBalance(balance uint64) account.Info {
	return account.NewInfo(uint256.NewInt(balance), 0, nil)
}

type fakeClient struct {
	balances map[common.Address]*uint256.Int
	nonces   map[common.Address]uint64
	code     map[common.Address][]byte
	storage  map[common.Address]map[common.Hash]common.Hash
	calls    int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		balances: make(map[common.Address]*uint256.Int),
		nonces:   make(map[common.Address]uint64),
		code:     make(map[common.Address][]byte),
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
	}
}

func (c *fakeClient) BalanceAt(ctx context.Context, addr common.Address, block *uint64) (*uint256.Int, error) {
	c.calls++
	if b, ok := c.balances[addr]; ok {
		return b, nil
	}
	return uint256.NewInt(0), nil
}

func (c *fakeClient) NonceAt(ctx context.Context, addr common.Address, block *uint64) (uint64, error) {
	return c.nonces[addr], nil
}

func (c *fakeClient) CodeAt(ctx context.Context, addr common.Address, block *uint64) ([]byte, error) {
	return c.code[addr], nil
}

func (c *fakeClient) StorageAt(ctx context.Context, addr common.Address, slot common.Hash, block *uint64) (common.Hash, error) {
	c.calls++
	if slots, ok := c.storage[addr]; ok {
		return slots[slot], nil
	}
	return common.Hash{}, nil
}

func (c *fakeClient) BlockHashByNumber(ctx context.Context, number uint64) (common.Hash, error) {
	return common.Hash{}, nil
}

func TestCachedDBBasicRefFetchesAndCaches(t *testing.T) {
	client := newFakeClient()
	addr := common.HexToAddress("0x1")
	client.balances[addr] = uint256.NewInt(500)
	client.nonces[addr] = 3

	db := New(client, nil, nil)

	info, err := db.BasicRef(addr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Balance.Uint64() != 500 || info.Nonce != 3 {
		t.Fatalf("unexpected info: %+v", info)
	}

	calls := client.calls
	if _, err := db.BasicRef(addr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != calls {
		t.Fatalf("expected second BasicRef to hit the cache, calls went from %d to %d", calls, client.calls)
	}
}

func TestCachedDBStorageRefMockedNeverCallsProvider(t *testing.T) {
	client := newFakeClient()
	addr := common.HexToAddress("0x1")
	slot := common.HexToHash("0x1")
	client.storage[addr] = map[common.Hash]common.Hash{slot: common.HexToHash("0xdead")}

	db := New(client, nil, nil)
	db.InitAccount(addr, newZeroInfo(), nil, true)

	v, err := db.StorageRef(addr, slot)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != (common.Hash{}) {
		t.Fatalf("mocked account must never consult the provider, got %v", v)
	}
	if client.calls != 0 {
		t.Fatalf("expected zero provider calls, got %d", client.calls)
	}
}

func TestCachedDBStorageRefNonMockedFetchesAndTempCaches(t *testing.T) {
	client := newFakeClient()
	addr := common.HexToAddress("0x1")
	slot := common.HexToHash("0x1")
	want := common.HexToHash("0xdead")
	client.storage[addr] = map[common.Hash]common.Hash{slot: want}

	db := New(client, nil, nil)
	db.InitAccount(addr, newZeroInfo(), nil, false)

	v, err := db.StorageRef(addr, slot)
	if err != nil || v != want {
		t.Fatalf("got %v, %v, want %v", v, err, want)
	}

	calls := client.calls
	if v2, err := db.StorageRef(addr, slot); err != nil || v2 != want {
		t.Fatalf("second read failed: %v, %v", v2, err)
	}
	if client.calls != calls {
		t.Fatalf("expected second read to hit temp cache")
	}
}

func TestCachedDBStorageRefUnknownAccountInitialisesNonMocked(t *testing.T) {
	client := newFakeClient()
	addr := common.HexToAddress("0x2")
	slot := common.HexToHash("0x1")
	client.balances[addr] = uint256.NewInt(10)
	client.storage[addr] = map[common.Hash]common.Hash{slot: common.HexToHash("0x7")}

	db := New(client, nil, nil)
	v, err := db.StorageRef(addr, slot)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != common.HexToHash("0x7") {
		t.Fatalf("got %v", v)
	}
	mocked, present := db.Store().IsMocked(addr)
	if !present || mocked {
		t.Fatalf("expected account to be initialised non-mocked, mocked=%v present=%v", mocked, present)
	}
}

func TestCachedDBUpdateStateReturnsReverseUpdates(t *testing.T) {
	client := newFakeClient()
	addr := common.HexToAddress("0x1")
	slot := common.HexToHash("0x1")
	oldVal := common.HexToHash("0x1")
	newVal := common.HexToHash("0x2")

	db := New(client, nil, nil)
	db.InitAccount(addr, newZeroInfoWithBalance(100), map[common.Hash]common.Hash{slot: oldVal}, false)

	reverse := db.UpdateState(map[common.Address]account.StateUpdate{
		addr: {
			Balance: uint256.NewInt(200),
			Storage: map[common.Hash]common.Hash{slot: newVal},
		},
	}, BlockHeader{Number: 1})

	revert, ok := reverse[addr]
	if !ok {
		t.Fatalf("expected a reverse entry for %s", addr)
	}
	if revert.Balance.Uint64() != 100 {
		t.Fatalf("reverse balance = %v, want 100", revert.Balance)
	}
	if revert.Storage[slot] != oldVal {
		t.Fatalf("reverse storage = %v, want %v", revert.Storage[slot], oldVal)
	}

	info, _ := db.Store().GetAccountInfo(addr)
	if info.Balance.Uint64() != 200 {
		t.Fatalf("balance not applied, got %v", info.Balance)
	}
}
