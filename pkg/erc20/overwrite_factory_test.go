package erc20

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func testSlots() Slots {
	return Slots{
		Balance:   common.BigToHash(uint256.NewInt(5).ToBig()),
		Allowance: common.BigToHash(uint256.NewInt(6).ToBig()),
	}
}

func TestSetBalanceAddsOneOverride(t *testing.T) {
	token := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	f := NewOverwriteFactory(token, testSlots(), Solidity)
	owner := common.HexToAddress("0x6F4Feb566b0f29e2edC231aDF88Fe7e1169D7c05")

	f.SetBalance(uint256.NewInt(1000), owner)

	overwrites := f.GetOverwrites()
	if len(overwrites[token]) != 1 {
		t.Fatalf("expected 1 override, got %d", len(overwrites[token]))
	}
}

func TestSetAllowanceAddsOneOverride(t *testing.T) {
	token := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	f := NewOverwriteFactory(token, testSlots(), Solidity)
	owner := common.HexToAddress("0x6F4Feb566b0f29e2edC231aDF88Fe7e1169D7c05")
	spender := common.HexToAddress("0xC63135E4bF73F637AF616DFd64cf701866BB2628")

	f.SetAllowance(uint256.NewInt(500), spender, owner)

	overwrites := f.GetOverwrites()
	if len(overwrites[token]) != 1 {
		t.Fatalf("expected 1 override, got %d", len(overwrites[token]))
	}
}

func TestSetTotalSupplyUsesFixedSlot(t *testing.T) {
	token := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	f := NewOverwriteFactory(token, testSlots(), Solidity)

	f.SetTotalSupply(uint256.NewInt(1_000_000))

	overwrites := f.GetOverwrites()
	got, ok := overwrites[token][TotalSupplySlot]
	if !ok {
		t.Fatalf("expected an override at the total supply slot")
	}
	want := common.BigToHash(uint256.NewInt(1_000_000).ToBig())
	if got != want {
		t.Fatalf("total supply override = %s, want %s", got, want)
	}
}

func TestGetOverwritesReturnsIndependentCopy(t *testing.T) {
	token := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	f := NewOverwriteFactory(token, testSlots(), Solidity)
	f.SetTotalSupply(uint256.NewInt(1))

	overwrites := f.GetOverwrites()
	overwrites[token][TotalSupplySlot] = common.Hash{}

	fresh := f.GetOverwrites()
	if fresh[token][TotalSupplySlot] == (common.Hash{}) {
		t.Fatalf("GetOverwrites must return an independent copy")
	}
}
