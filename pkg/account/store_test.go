package account

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func testAddr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func testSlot(b byte) common.Hash {
	var h common.Hash
	h[31] = b
	return h
}

func TestInitAccountInsertsNewAccount(t *testing.T) {
	s := NewStore(nil)
	addr := testAddr(1)
	info := NewInfo(uint256.NewInt(100), 0, nil)

	s.InitAccount(addr, info, nil, false)

	got, ok := s.GetAccountInfo(addr)
	if !ok {
		t.Fatalf("expected account present")
	}
	if got.Balance.Uint64() != 100 {
		t.Fatalf("balance = %v, want 100", got.Balance)
	}
	if !s.AccountPresent(addr) {
		t.Fatalf("expected AccountPresent true")
	}
}

func TestInitAccountTwiceIsNoop(t *testing.T) {
	s := NewStore(nil)
	addr := testAddr(1)
	s.InitAccount(addr, NewInfo(uint256.NewInt(100), 0, nil), nil, false)
	s.InitAccount(addr, NewInfo(uint256.NewInt(999), 0, nil), nil, false)

	got, _ := s.GetAccountInfo(addr)
	if got.Balance.Uint64() != 100 {
		t.Fatalf("second init must not overwrite: balance = %v, want 100", got.Balance)
	}
}

func TestUpdateAccountMergesBalanceAndStorage(t *testing.T) {
	s := NewStore(nil)
	addr := testAddr(1)
	slot := testSlot(1)
	s.InitAccount(addr, NewInfo(uint256.NewInt(100), 0, nil), map[common.Hash]common.Hash{
		slot: common.BigToHash(common.Big1),
	}, false)

	newVal := common.BigToHash(common.Big2)
	s.UpdateAccount(addr, StateUpdate{
		Balance: uint256.NewInt(200),
		Storage: map[common.Hash]common.Hash{slot: newVal},
	})

	info, _ := s.GetAccountInfo(addr)
	if info.Balance.Uint64() != 200 {
		t.Fatalf("balance = %v, want 200", info.Balance)
	}
	v, ok := s.GetPermanentStorage(addr, slot)
	if !ok || v != newVal {
		t.Fatalf("permanent storage = %v, want %v", v, newVal)
	}
}

func TestUpdateAccountAbsentIsNoop(t *testing.T) {
	s := NewStore(nil)
	addr := testAddr(1)
	s.UpdateAccount(addr, StateUpdate{Balance: uint256.NewInt(1)})

	if s.AccountPresent(addr) {
		t.Fatalf("update must not create the account")
	}
}

func TestGetStorageTempShadowsPermanent(t *testing.T) {
	s := NewStore(nil)
	addr := testAddr(1)
	slot := testSlot(1)
	permVal := common.BigToHash(common.Big1)
	tempVal := common.BigToHash(common.Big2)

	s.InitAccount(addr, NewInfo(uint256.NewInt(0), 0, nil), map[common.Hash]common.Hash{
		slot: permVal,
	}, false)

	v, ok := s.GetStorage(addr, slot)
	if !ok || v != permVal {
		t.Fatalf("expected permanent value before temp write, got %v", v)
	}

	s.SetTempStorage(addr, slot, tempVal)
	v, ok = s.GetStorage(addr, slot)
	if !ok || v != tempVal {
		t.Fatalf("expected temp value to shadow permanent, got %v", v)
	}

	permOnly, ok := s.GetPermanentStorage(addr, slot)
	if !ok || permOnly != permVal {
		t.Fatalf("GetPermanentStorage must bypass temp tier, got %v", permOnly)
	}
}

func TestGetStorageAbsentSlotAndAccount(t *testing.T) {
	s := NewStore(nil)
	addr := testAddr(1)
	slot := testSlot(1)

	if _, ok := s.GetStorage(addr, slot); ok {
		t.Fatalf("expected absent account to yield not-ok")
	}

	s.InitAccount(addr, NewInfo(uint256.NewInt(0), 0, nil), nil, false)
	if _, ok := s.GetStorage(addr, slot); ok {
		t.Fatalf("expected absent slot to yield not-ok")
	}
}

func TestSetTempStorageOnAbsentAccountIsNoop(t *testing.T) {
	s := NewStore(nil)
	addr := testAddr(1)
	slot := testSlot(1)

	s.SetTempStorage(addr, slot, common.BigToHash(common.Big1))

	if s.AccountPresent(addr) {
		t.Fatalf("SetTempStorage must not create the account")
	}
}

func TestClearTempStorageClearsAllAccountsTempTierOnly(t *testing.T) {
	s := NewStore(nil)
	addr1 := testAddr(1)
	addr2 := testAddr(2)
	slot := testSlot(1)
	permVal := common.BigToHash(common.Big1)
	tempVal := common.BigToHash(common.Big2)

	s.InitAccount(addr1, NewInfo(uint256.NewInt(0), 0, nil), map[common.Hash]common.Hash{slot: permVal}, false)
	s.InitAccount(addr2, NewInfo(uint256.NewInt(0), 0, nil), map[common.Hash]common.Hash{slot: permVal}, false)
	s.SetTempStorage(addr1, slot, tempVal)
	s.SetTempStorage(addr2, slot, tempVal)

	s.ClearTempStorage()

	for _, addr := range []common.Address{addr1, addr2} {
		v, ok := s.GetStorage(addr, slot)
		if !ok || v != permVal {
			t.Fatalf("addr %v: expected permanent value after clear, got %v", addr, v)
		}
	}
}

func TestIsMocked(t *testing.T) {
	s := NewStore(nil)
	mockedAddr := testAddr(1)
	realAddr := testAddr(2)
	absentAddr := testAddr(3)

	s.InitAccount(mockedAddr, NewInfo(uint256.NewInt(0), 0, nil), nil, true)
	s.InitAccount(realAddr, NewInfo(uint256.NewInt(0), 0, nil), nil, false)

	if m, ok := s.IsMocked(mockedAddr); !ok || !m {
		t.Fatalf("expected mocked=true, ok=true")
	}
	if m, ok := s.IsMocked(realAddr); !ok || m {
		t.Fatalf("expected mocked=false, ok=true")
	}
	if _, ok := s.IsMocked(absentAddr); ok {
		t.Fatalf("expected ok=false for absent account")
	}
}

func TestAccountInfoIsClonedOnRead(t *testing.T) {
	s := NewStore(nil)
	addr := testAddr(1)
	s.InitAccount(addr, NewInfo(uint256.NewInt(100), 0, nil), nil, false)

	got, _ := s.GetAccountInfo(addr)
	got.Balance.SetUint64(999)

	again, _ := s.GetAccountInfo(addr)
	if again.Balance.Uint64() != 100 {
		t.Fatalf("mutating a returned Info must not affect the store, balance = %v", again.Balance)
	}
}
