// Package adapter implements C6, the wrapper around a per-protocol "swap
// adapter" contract: ABI encoding of the four well-known entry points
// (price, swap, getCapabilities, getLimits) plus the error taxonomy that
// classifies whatever C4 reports back into C11/protocol's error bands.
package adapter

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

var (
	typeBytes32   = mustType("bytes32")
	typeAddress   = mustType("address")
	typeBool      = mustType("bool")
	typeUint256   = mustType("uint256")
	typeUint256s  = mustType("uint256[]")

	priceArgs      = abi.Arguments{{Type: typeBytes32}, {Type: typeAddress}, {Type: typeAddress}, {Type: typeUint256s}}
	priceReturns   = abi.Arguments{{Type: typeUint256s}}
	swapArgs       = abi.Arguments{{Type: typeBytes32}, {Type: typeAddress}, {Type: typeAddress}, {Type: typeBool}, {Type: typeUint256}}
	capsArgs       = abi.Arguments{{Type: typeBytes32}, {Type: typeAddress}, {Type: typeAddress}}
	capsReturns    = abi.Arguments{{Type: typeUint256s}}
	limitsArgs     = abi.Arguments{{Type: typeBytes32}, {Type: typeAddress}, {Type: typeAddress}}
	limitsReturns  = abi.Arguments{{Type: typeUint256}, {Type: typeUint256}}
	tradeReturns   = abi.Arguments{{Type: typeUint256}, {Type: typeUint256}, {Type: typeUint256}}
)

// selector returns the 4-byte function selector for a canonical Solidity
// signature string, e.g. "price(bytes32,address,address,uint256[])".
func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

// encodeCall builds call data for a top-level function call: selector
// followed by the Solidity calldata encoding of args. go-ethereum's
// abi.Arguments.Pack already emits top-level tuples in calldata form (no
// leading dynamic-offset word to strip, unlike a standalone ABI-encoded
// single dynamic value).
func encodeCall(sig string, args abi.Arguments, values ...interface{}) ([]byte, error) {
	packed, err := args.Pack(values...)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, 4+len(packed))
	data = append(data, selector(sig)...)
	data = append(data, packed...)
	return data, nil
}
