package erc20

import (
	"errors"
	"math/big"

	"github.com/dexsim/protosim/pkg/simulation"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// maxCandidateSlot bounds how many base storage slots discovery probes
// before giving up; every ERC20 in practice keeps its balance/allowance
// mappings well within this range.
const maxCandidateSlot = 100

// sentinelValue is written into a candidate slot and checked for on the
// call's return value; it is large enough that a false positive from an
// unrelated zero-initialised slot is effectively impossible.
var sentinelValue = uint256.NewInt(0x1337c0debeef)

// ErrSlotsNotFound is returned once every candidate slot and compiler has
// been exhausted without locating the mapping.
var ErrSlotsNotFound = errors.New("erc20: exhausted candidate storage slots")

var (
	balanceOfSelector  = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	allowanceSelector  = crypto.Keccak256([]byte("allowance(address,address)"))[:4]
)

func encodeAddress(addr common.Address) []byte {
	var padded [32]byte
	copy(padded[12:], addr.Bytes())
	return padded[:]
}

func encodeBalanceOf(owner common.Address) []byte {
	return append(append([]byte{}, balanceOfSelector...), encodeAddress(owner)...)
}

func encodeAllowance(owner, spender common.Address) []byte {
	data := append([]byte{}, allowanceSelector...)
	data = append(data, encodeAddress(owner)...)
	data = append(data, encodeAddress(spender)...)
	return data
}

// Finder brute-forces a token's storage layout by overriding candidate
// slots and observing whether a read function call reflects the override.
type Finder struct {
	engine *simulation.Engine
	log    *zap.SugaredLogger
}

// NewFinder builds a Finder driving probe calls through engine.
func NewFinder(engine *simulation.Engine, log *zap.SugaredLogger) *Finder {
	return &Finder{engine: engine, log: log}
}

func slotForCandidate(i uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(i))
}

// FindBalanceSlot locates the base slot and compiler of token's balances
// mapping by overriding balanceOf(probeOwner)'s storage slot with a
// sentinel and checking which candidate reflects it back.
func (f *Finder) FindBalanceSlot(token, probeOwner common.Address) (common.Hash, Compiler, error) {
	data := encodeBalanceOf(probeOwner)
	for i := uint64(0); i < maxCandidateSlot; i++ {
		base := slotForCandidate(i)
		for _, compiler := range []Compiler{Solidity, Vyper} {
			storageSlot := compiler.MapSlot(base, common.BytesToHash(probeOwner.Bytes()))
			if f.probes(token, data, storageSlot) {
				return base, compiler, nil
			}
		}
	}
	f.log.Warnw("erc20: balance slot discovery exhausted candidates", "token", token)
	return common.Hash{}, 0, ErrSlotsNotFound
}

// FindAllowanceSlot locates the base slot and compiler of token's
// allowances mapping the same way, using the nested-mapping slot rule.
func (f *Finder) FindAllowanceSlot(token, probeOwner, probeSpender common.Address) (common.Hash, Compiler, error) {
	data := encodeAllowance(probeOwner, probeSpender)
	for i := uint64(0); i < maxCandidateSlot; i++ {
		base := slotForCandidate(i)
		for _, compiler := range []Compiler{Solidity, Vyper} {
			ownerSlot := compiler.MapSlot(base, common.BytesToHash(probeOwner.Bytes()))
			storageSlot := compiler.MapSlot(ownerSlot, common.BytesToHash(probeSpender.Bytes()))
			if f.probes(token, data, storageSlot) {
				return base, compiler, nil
			}
		}
	}
	f.log.Warnw("erc20: allowance slot discovery exhausted candidates", "token", token)
	return common.Hash{}, 0, ErrSlotsNotFound
}

func (f *Finder) probes(token common.Address, callData []byte, storageSlot common.Hash) bool {
	res, err := f.engine.Simulate(simulation.Params{
		To:   token,
		Data: callData,
		Overrides: map[common.Address]map[common.Hash]common.Hash{
			token: {storageSlot: common.BigToHash(sentinelValue.ToBig())},
		},
	})
	if err != nil || len(res.Output) != 32 {
		return false
	}
	return new(uint256.Int).SetBytes(res.Output).Cmp(sentinelValue) == 0
}
