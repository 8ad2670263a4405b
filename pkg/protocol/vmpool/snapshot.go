package vmpool

import (
	"fmt"

	"github.com/dexsim/protosim/pkg/adapter"
	"github.com/dexsim/protosim/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// FromSnapshot decodes a VM-backed pool snapshot (C9). Unlike the
// closed-form families, a VM pool's pricing logic lives entirely in the
// adapter contract, so construction also discovers its capabilities by
// probing through a (bytes32,address,address) -> uint256[] exactly as
// New+DiscoverCapabilities would at live init; per-token storage slots are
// left undiscovered here and fall back to State's default layout, since
// eager discovery for every snapshot would mean one engine simulation per
// candidate slot per token on every decode.
//
// balance_owner and manual_updates are optional attributes; per-token
// balances are required, keyed "balance0".."balanceN-1" by the token's
// position in the component's token list (mirroring the reserve0/reserve1
// convention of the constant-product family).
func FromSnapshot(
	snapshot protocol.ComponentWithState,
	header protocol.BlockHeader,
	knownTokens map[common.Address]protocol.Token,
	adapterContract *adapter.Adapter,
	log *zap.SugaredLogger,
) (protocol.ProtocolSim, error) {
	comp := snapshot.Component
	attrs := snapshot.State.Attributes

	if len(comp.Tokens) < 2 {
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.ValueError, Message: "vm pool must have at least two tokens"}
	}
	for _, t := range comp.Tokens {
		if _, ok := knownTokens[t]; !ok {
			return nil, &protocol.InvalidSnapshotError{Kind: protocol.ValueError, Message: "unknown token " + t.Hex()}
		}
	}

	balances := make(map[common.Address]*uint256.Int, len(comp.Tokens))
	for i, t := range comp.Tokens {
		raw, ok := attrs[fmt.Sprintf("balance%d", i)]
		if !ok {
			return nil, &protocol.InvalidSnapshotError{Kind: protocol.MissingAttribute, Message: fmt.Sprintf("balance%d", i)}
		}
		balances[t] = new(uint256.Int).SetBytes(raw)
	}

	var balanceOwner *common.Address
	if raw, ok := attrs["balance_owner"]; ok {
		if len(raw) != 20 {
			return nil, &protocol.InvalidSnapshotError{Kind: protocol.ValueError, Message: "balance_owner must be 20 bytes"}
		}
		owner := common.BytesToAddress(raw)
		balanceOwner = &owner
	}

	manualUpdates := false
	if raw, ok := attrs["manual_updates"]; ok && len(raw) > 0 && raw[len(raw)-1] != 0 {
		manualUpdates = true
	}

	if adapterContract == nil {
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.VMError, Message: "no adapter contract bound for capability discovery"}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	capabilities, err := DiscoverCapabilities(adapterContract, comp.ID, comp.Tokens, header.Number, log)
	if err != nil {
		return nil, &protocol.InvalidSnapshotError{Kind: protocol.VMError, Message: err.Error()}
	}

	state := New(
		comp.ID,
		comp.Tokens,
		header.Number,
		balances,
		balanceOwner,
		capabilities,
		map[common.Address]TokenSlots{},
		manualUpdates,
		adapterContract,
		log,
	)

	tokens := make([]protocol.Token, 0, len(comp.Tokens))
	for _, t := range comp.Tokens {
		tokens = append(tokens, knownTokens[t])
	}
	if state.hasCapability(protocol.CapabilityPriceFunction) {
		if err := state.SetSpotPrices(tokens); err != nil {
			return nil, &protocol.InvalidSnapshotError{Kind: protocol.VMError, Message: err.Error()}
		}
	}

	return state, nil
}
