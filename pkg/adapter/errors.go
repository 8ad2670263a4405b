package adapter

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/dexsim/protosim/pkg/protocol"
	"github.com/dexsim/protosim/pkg/simulation"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// solidityErrorSelector is the 4-byte selector for `Error(string)`.
var solidityErrorSelector = [4]byte{0x08, 0xc3, 0x79, 0xa0}

// solidityPanicSelector is the 4-byte selector for `Panic(uint256)`.
var solidityPanicSelector = [4]byte{0x4e, 0x48, 0x7b, 0x71}

var solidityPanicCodes = map[uint64]string{
	0:    "GenericCompilerPanic",
	1:    "AssertionError",
	17:   "ArithmeticOver/Underflow",
	18:   "ZeroDivisionError",
	33:   "UnknownEnumMember",
	34:   "BadStorageByteArrayEncoding",
	51:   "EmptyArray",
	0x32: "OutOfBounds",
	0x41: "OutOfMemory",
	0x51: "BadFunctionPointer",
}

// parseRevertReason decodes a revert payload (without the leading "0x") into
// a human-readable reason string, trying Error(string), Panic(uint256), and
// finally a bare ABI-encoded string in that order.
func parseRevertReason(data []byte) string {
	if len(data) >= 4 {
		switch {
		case hasSelector(data, solidityErrorSelector):
			if s, err := decodeABIString(data[4:]); err == nil {
				return s
			}
		case hasSelector(data, solidityPanicSelector):
			if code, err := decodeABIUint(data[4:]); err == nil {
				if name, ok := solidityPanicCodes[code]; ok {
					return name
				}
				return fmt.Sprintf("Panic(%d)", code)
			}
		}
	}
	if s, err := decodeABIString(data); err == nil {
		return s
	}
	if len(data) >= 4 {
		if s, err := decodeABIString(data[4:]); err == nil {
			return s
		}
	}
	return fmt.Sprintf("failed to decode: 0x%x", data)
}

func hasSelector(data []byte, sel [4]byte) bool {
	return len(data) >= 4 && data[0] == sel[0] && data[1] == sel[1] && data[2] == sel[2] && data[3] == sel[3]
}

func decodeABIString(data []byte) (string, error) {
	out, err := abi.Arguments{{Type: mustType("string")}}.Unpack(data)
	if err != nil || len(out) != 1 {
		return "", fmt.Errorf("abi: not a string")
	}
	s, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("abi: not a string")
	}
	return s, nil
}

func decodeABIUint(data []byte) (uint64, error) {
	out, err := abi.Arguments{{Type: typeUint256}}.Unpack(data)
	if err != nil || len(out) != 1 {
		return 0, fmt.Errorf("abi: not a uint256")
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("abi: not a uint256")
	}
	return v.Uint64(), nil
}

// coerceError classifies a simulation-layer failure into the protocol
// error taxonomy (§7): reverts decode their reason and escalate to
// recoverable "likely out-of-gas" above the 97% gas-used threshold,
// out-of-gas halts are always recoverable, storage failures are always
// recoverable, and everything else is fatal.
func coerceError(err error, poolID string, gasLimit uint64) error {
	var txErr *simulation.TransactionError
	if as, ok := err.(*simulation.TransactionError); ok {
		txErr = as
	}
	if txErr != nil && strings.HasPrefix(txErr.Data, "0x") {
		reason := parseRevertReason(common.FromHex(txErr.Data))
		if txErr.GasUsed != nil && gasLimit > 0 {
			usage := float64(*txErr.GasUsed) / float64(gasLimit)
			if usage >= 0.97 {
				return &protocol.RecoverableError{Reason: fmt.Sprintf(
					"likely out-of-gas: used %.2f%% of gas limit (revert reason: %s, pool %s)",
					usage*100, reason, poolID)}
			}
		}
		return &protocol.FatalError{Reason: fmt.Sprintf("revert: %s", reason)}
	}
	if txErr != nil && strings.Contains(txErr.Data, "OutOfGas") {
		usage := ""
		if txErr.GasUsed != nil && gasLimit > 0 {
			usage = fmt.Sprintf("used %.2f%% of gas limit, ", float64(*txErr.GasUsed)/float64(gasLimit)*100)
		}
		return &protocol.RecoverableError{Reason: fmt.Sprintf("out-of-gas: %soriginal error: %s, pool %s", usage, txErr.Data, poolID)}
	}
	if txErr != nil {
		return &protocol.FatalError{Reason: fmt.Sprintf("transaction error: %s", txErr.Data)}
	}
	if _, ok := err.(*simulation.StorageError); ok {
		return &protocol.RecoverableError{Reason: err.Error()}
	}
	return &protocol.FatalError{Reason: err.Error()}
}
