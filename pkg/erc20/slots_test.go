package erc20

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestMapSlotSolidityVsVyperOrderDiffers(t *testing.T) {
	base := common.BigToHash(uint256.NewInt(0).ToBig())
	key := common.BytesToHash(common.HexToAddress("0xC63135E4bF73F637AF616DFd64cf701866BB2628").Bytes())

	sol := Solidity.MapSlot(base, key)
	vy := Vyper.MapSlot(base, key)

	if sol == vy {
		t.Fatalf("solidity and vyper slot hashing must disagree on ordering")
	}
}

func TestMapSlotIsDeterministic(t *testing.T) {
	base := common.BigToHash(uint256.NewInt(5).ToBig())
	key := common.BytesToHash(common.HexToAddress("0x6F4Feb566b0f29e2edC231aDF88Fe7e1169D7c05").Bytes())

	a := Solidity.MapSlot(base, key)
	b := Solidity.MapSlot(base, key)
	if a != b {
		t.Fatalf("MapSlot must be deterministic")
	}
}

func TestAllowanceSlotAppliesMapRuleTwice(t *testing.T) {
	slots := Slots{
		Balance:   common.BigToHash(uint256.NewInt(0).ToBig()),
		Allowance: common.BigToHash(uint256.NewInt(1).ToBig()),
	}
	owner := common.HexToAddress("0x6F4Feb566b0f29e2edC231aDF88Fe7e1169D7c05")
	spender := common.HexToAddress("0xC63135E4bF73F637AF616DFd64cf701866BB2628")

	ownerSlot := Solidity.MapSlot(slots.Allowance, common.BytesToHash(owner.Bytes()))
	want := Solidity.MapSlot(ownerSlot, common.BytesToHash(spender.Bytes()))

	got := AllowanceSlot(slots, Solidity, owner, spender)
	if got != want {
		t.Fatalf("AllowanceSlot = %s, want %s", got, want)
	}
}
