package adapter

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestSelectorGetCapabilitiesMatchesKnownValue(t *testing.T) {
	got := selector(capabilitiesSignature)
	want, _ := hex.DecodeString("48bd7dfd")
	if hex.EncodeToString(got) != hex.EncodeToString(want) {
		t.Fatalf("selector(getCapabilities) = %x, want %x", got, want)
	}
}

func TestEncodeCallPlacesSelectorAndArgsInOrder(t *testing.T) {
	id, err := poolIDBytes32("0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcd")
	if err != nil {
		t.Fatalf("poolIDBytes32: %v", err)
	}
	sell := common.HexToAddress("0x0000000000000000000000000000000000000002")
	buy := common.HexToAddress("0x0000000000000000000000000000000000000003")

	data, err := encodeCall(capabilitiesSignature, capsArgs, id, sell, buy)
	if err != nil {
		t.Fatalf("encodeCall: %v", err)
	}

	if len(data) != 4+32*3 {
		t.Fatalf("encoded call length = %d, want %d", len(data), 4+32*3)
	}
	if hex.EncodeToString(data[:4]) != "48bd7dfd" {
		t.Fatalf("selector mismatch: %x", data[:4])
	}
	if data[67] != 0x02 {
		t.Fatalf("sell token word did not encode to address 2")
	}
	if data[99] != 0x03 {
		t.Fatalf("buy token word did not encode to address 3")
	}
}

func TestPoolIDBytes32RejectsOversizedInput(t *testing.T) {
	_, err := poolIDBytes32("0x" + hex.EncodeToString(make([]byte, 33)))
	if err == nil {
		t.Fatalf("expected an error for an oversized pool id")
	}
}

func TestPoolIDBytes32LeftPadsShortInput(t *testing.T) {
	got, err := poolIDBytes32("0x0102")
	if err != nil {
		t.Fatalf("poolIDBytes32: %v", err)
	}
	want := common.Hash{30: 0x01, 31: 0x02}
	if got != want {
		t.Fatalf("poolIDBytes32 = %s, want %s", got, want)
	}
}

func TestCapabilityFromUintKnownValues(t *testing.T) {
	for v := uint64(1); v <= 9; v++ {
		if _, err := capabilityFromUint(v); err != nil {
			t.Fatalf("capabilityFromUint(%d) = %v, want no error", v, err)
		}
	}
}

func TestCapabilityFromUintRejectsUnknown(t *testing.T) {
	if _, err := capabilityFromUint(42); err == nil {
		t.Fatalf("expected an error for an unknown capability id")
	}
}

func TestMaxBalanceIsHalfOfMaxUint256(t *testing.T) {
	if MaxBalance.BitLen() != 255 {
		t.Fatalf("MaxBalance bit length = %d, want 255", MaxBalance.BitLen())
	}
}
