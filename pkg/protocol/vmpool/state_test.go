package vmpool

import (
	"testing"

	"github.com/dexsim/protosim/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func testTokens() []common.Address {
	return []common.Address{
		common.HexToAddress("0x0000000000000000000000000000000000000001"),
		common.HexToAddress("0x0000000000000000000000000000000000000002"),
	}
}

func newTestState(manualUpdates bool) *State {
	tokens := testTokens()
	balances := map[common.Address]*uint256.Int{
		tokens[0]: uint256.NewInt(1000),
		tokens[1]: uint256.NewInt(2000),
	}
	caps := map[protocol.Capability]struct{}{
		protocol.CapabilitySellSide: {},
		protocol.CapabilityBuySide:  {},
	}
	return New("0x000000000000000000000000000000000000ff", tokens, 1, balances, nil, caps, nil, manualUpdates, nil, nil)
}

func TestCloneIsIndependentCopy(t *testing.T) {
	s := newTestState(false)
	clone := s.Clone().(*State)

	clone.Balances[s.Tokens[0]] = uint256.NewInt(999)
	if s.Balances[s.Tokens[0]].Uint64() != 1000 {
		t.Fatalf("mutating the clone's balances mutated the original")
	}
	if !s.Equals(clone) {
		t.Fatalf("clone should still be Equals (identity is by pool id)")
	}
}

func TestDeltaTransitionUnconditionalWithoutManualUpdates(t *testing.T) {
	s := newTestState(false)
	s.BlockLastingOverwrites[s.Tokens[0]] = map[common.Hash]common.Hash{{}: {1}}

	// No PriceFunction capability, so clearAllCache's SetSpotPrices call
	// fails fast and DeltaTransition reports it as a TransitionError. That
	// error is what shows invalidation ran even without an update_marker.
	_, err := s.DeltaTransition(protocol.ProtocolStateDelta{}, nil)
	if err == nil {
		t.Fatalf("expected an error from SetSpotPrices lacking PriceFunction")
	}
	if _, ok := err.(*protocol.TransitionError); !ok {
		t.Fatalf("expected a *protocol.TransitionError, got %T", err)
	}
}

func TestDeltaTransitionManualUpdatesGatedOnMarker(t *testing.T) {
	s := newTestState(true)

	// No update_marker attribute: should not invalidate, so no capability
	// error even though PriceFunction is unsupported.
	next, err := s.DeltaTransition(protocol.ProtocolStateDelta{}, nil)
	if err != nil {
		t.Fatalf("unexpected error with manual_updates and no marker: %v", err)
	}
	if next == nil {
		t.Fatalf("expected a non-nil next state")
	}

	// A truthy marker should trigger invalidation, which fails fast on the
	// missing PriceFunction capability.
	delta := protocol.ProtocolStateDelta{UpdatedAttributes: map[string][]byte{"update_marker": {1}}}
	if _, err := s.DeltaTransition(delta, nil); err == nil {
		t.Fatalf("expected invalidation (and its capability error) when update_marker is truthy")
	}
}

func TestSpotPriceErrorsWhenUncached(t *testing.T) {
	s := newTestState(false)
	if _, err := s.SpotPrice(s.Tokens[0], s.Tokens[1]); err == nil {
		t.Fatalf("expected an error for an unset spot price")
	}
}
