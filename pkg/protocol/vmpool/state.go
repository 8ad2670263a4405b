// Package vmpool implements C8, the VM-backed protocol state: a pool whose
// pricing and swap logic is not a closed-form formula but an actual
// contract, simulated through C4 via the C6 adapter wrapper, with its
// balance/allowance preconditions seeded by C5's overwrite factory.
package vmpool

import (
	"fmt"
	"math"
	"math/big"

	"github.com/dexsim/protosim/pkg/adapter"
	"github.com/dexsim/protosim/pkg/erc20"
	"github.com/dexsim/protosim/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// TokenSlots pairs a token's discovered balance/allowance storage slots
// with the compiler convention used to hash them.
type TokenSlots struct {
	Slots    erc20.Slots
	Compiler erc20.Compiler
}

// pairKey orders a spot-price lookup by (sell, buy) token address.
type pairKey struct {
	sell, buy common.Address
}

// State is a VM-backed pool: its static shape (tokens, balances, declared
// capabilities) plus the live adapter handle used to answer quotes.
type State struct {
	ID                     string
	Tokens                 []common.Address
	Block                  uint64
	Balances               map[common.Address]*uint256.Int
	BalanceOwner           *common.Address
	SpotPrices             map[pairKey]float64
	Capabilities           map[protocol.Capability]struct{}
	BlockLastingOverwrites map[common.Address]map[common.Hash]common.Hash
	InvolvedContracts      map[common.Address]struct{}
	TokenStorageSlots      map[common.Address]TokenSlots
	ManualUpdates          bool

	adapter *adapter.Adapter
	log     *zap.SugaredLogger
}

var _ protocol.ProtocolSim = (*State)(nil)

// New builds a State. Callers are expected to have already populated
// SpotPrices for every ordered token pair (e.g. via SetSpotPrices) before
// handing the state to a consumer.
func New(
	id string,
	tokens []common.Address,
	block uint64,
	balances map[common.Address]*uint256.Int,
	balanceOwner *common.Address,
	capabilities map[protocol.Capability]struct{},
	tokenStorageSlots map[common.Address]TokenSlots,
	manualUpdates bool,
	adapterContract *adapter.Adapter,
	log *zap.SugaredLogger,
) *State {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &State{
		ID:                     id,
		Tokens:                 tokens,
		Block:                  block,
		Balances:               balances,
		BalanceOwner:           balanceOwner,
		SpotPrices:             make(map[pairKey]float64),
		Capabilities:           capabilities,
		BlockLastingOverwrites: make(map[common.Address]map[common.Hash]common.Hash),
		InvolvedContracts:      map[common.Address]struct{}{},
		TokenStorageSlots:      tokenStorageSlots,
		ManualUpdates:          manualUpdates,
		adapter:                adapterContract,
		log:                    log,
	}
}

func (s *State) hasCapability(c protocol.Capability) bool {
	_, ok := s.Capabilities[c]
	return ok
}

func (s *State) ensureCapability(c protocol.Capability) error {
	if !s.hasCapability(c) {
		return &protocol.FatalError{Reason: fmt.Sprintf("capability %d not supported", c)}
	}
	return nil
}

// SpotPrice returns the cached price of base denominated in quote.
func (s *State) SpotPrice(base, quote common.Address) (float64, error) {
	price, ok := s.SpotPrices[pairKey{sell: base, buy: quote}]
	if !ok {
		return 0, &protocol.FatalError{Reason: fmt.Sprintf("spot price not found for %s -> %s", base, quote)}
	}
	return price, nil
}

// slotsFor returns the discovered slot layout for token, defaulting to
// balance slot 0 / allowance slot 1 when nothing was discovered for it
// (the layout the engine's own mocked ERC20 contract uses).
func (s *State) slotsFor(token common.Address) TokenSlots {
	if ts, ok := s.TokenStorageSlots[token]; ok {
		return ts
	}
	return TokenSlots{
		Slots:    erc20.Slots{Balance: common.Hash{}, Allowance: common.BigToHash(big.NewInt(1))},
		Compiler: erc20.Solidity,
	}
}

func mergeOverwrites(target, source map[common.Address]map[common.Hash]common.Hash) map[common.Address]map[common.Hash]common.Hash {
	merged := make(map[common.Address]map[common.Hash]common.Hash, len(target))
	for addr, slots := range target {
		copied := make(map[common.Hash]common.Hash, len(slots))
		for k, v := range slots {
			copied[k] = v
		}
		merged[addr] = copied
	}
	for addr, slots := range source {
		dst, ok := merged[addr]
		if !ok {
			dst = make(map[common.Hash]common.Hash, len(slots))
			merged[addr] = dst
		}
		for k, v := range slots {
			dst[k] = v
		}
	}
	return merged
}

// getBalanceOverwrites seeds the pool's own reported balance for each of
// tokens at the address balances are actually held (BalanceOwner, falling
// back to the pool id parsed as an address).
func (s *State) getBalanceOverwrites(tokens []common.Address) (map[common.Address]map[common.Hash]common.Hash, error) {
	owner := common.Address{}
	if s.BalanceOwner != nil {
		owner = *s.BalanceOwner
	} else if common.IsHexAddress(s.ID) {
		owner = common.HexToAddress(s.ID)
	} else {
		return nil, &protocol.FatalError{Reason: "pool id is not an address and no balance owner was set"}
	}

	out := map[common.Address]map[common.Hash]common.Hash{}
	for _, token := range tokens {
		ts := s.slotsFor(token)
		balance := s.Balances[token]
		if balance == nil {
			balance = uint256.NewInt(0)
		}
		factory := erc20.NewOverwriteFactory(token, ts.Slots, ts.Compiler)
		factory.SetBalance(balance, owner)
		for addr, slots := range factory.GetOverwrites() {
			dst, ok := out[addr]
			if !ok {
				dst = map[common.Hash]common.Hash{}
				out[addr] = dst
			}
			for k, v := range slots {
				dst[k] = v
			}
		}
	}
	return out, nil
}

// getTokenOverwrites seeds the external account's balance/allowance for
// tokens[0] (the sell token) at maxAmount, enough to satisfy any transfer
// the adapter attempts during the probe.
func (s *State) getTokenOverwrites(tokens []common.Address, maxAmount *uint256.Int) (map[common.Address]map[common.Hash]common.Hash, error) {
	var out map[common.Address]map[common.Hash]common.Hash
	if !s.hasCapability(protocol.CapabilityTokenBalanceIndependent) {
		balanceOverwrites, err := s.getBalanceOverwrites(tokens)
		if err != nil {
			return nil, err
		}
		out = balanceOverwrites
	} else {
		out = map[common.Address]map[common.Hash]common.Hash{}
	}

	sellToken := tokens[0]
	ts := s.slotsFor(sellToken)
	factory := erc20.NewOverwriteFactory(sellToken, ts.Slots, ts.Compiler)
	factory.SetBalance(maxAmount, adapter.ExternalAccount)
	factory.SetAllowance(maxAmount, s.adapter.Address, adapter.ExternalAccount)
	return mergeOverwrites(out, factory.GetOverwrites()), nil
}

// getOverwrites merges block-lasting overwrites with fresh token overwrites
// sized to maxAmount.
func (s *State) getOverwrites(tokens []common.Address, maxAmount *uint256.Int) (map[common.Address]map[common.Hash]common.Hash, error) {
	tokenOverwrites, err := s.getTokenOverwrites(tokens, maxAmount)
	if err != nil {
		return nil, err
	}
	return mergeOverwrites(s.BlockLastingOverwrites, tokenOverwrites), nil
}

func (s *State) getSellAmountLimit(tokens []common.Address, overwrites map[common.Address]map[common.Hash]common.Hash) (*uint256.Int, error) {
	sellLimit, _, err := s.adapter.GetLimits(s.ID, tokens[0], tokens[1], s.Block, overwrites)
	if err != nil {
		return nil, err
	}
	return sellLimit, nil
}

// GetAmountOut quotes a swap through the adapter contract: probing a sell
// limit at a half-max-balance seed, clamping to it when the pool declares
// HardLimits, then invoking the real swap with the (possibly clamped)
// amount and token overwrites sized to the sell limit.
func (s *State) GetAmountOut(amountIn *uint256.Int, tokenIn, tokenOut common.Address) (protocol.GetAmountOutResult, error) {
	tokens := []common.Address{tokenIn, tokenOut}
	probeOverwrites, err := s.getOverwrites(tokens, adapter.MaxBalance)
	if err != nil {
		return protocol.GetAmountOutResult{}, err
	}
	sellLimit, err := s.getSellAmountLimit(tokens, probeOverwrites)
	if err != nil {
		return protocol.GetAmountOutResult{}, err
	}

	amount := amountIn
	exceedsLimit := false
	if s.hasCapability(protocol.CapabilityHardLimits) && sellLimit.Cmp(amountIn) < 0 {
		amount = sellLimit
		exceedsLimit = true
		s.log.Warnw("sell amount exceeds adapter-reported limit, clamping",
			"pool_id", s.ID, "requested", amountIn.String(), "limit", sellLimit.String())
	}

	sizedOverwrites, err := s.getOverwrites(tokens, sellLimit)
	if err != nil {
		return protocol.GetAmountOutResult{}, err
	}
	completeOverwrites := mergeOverwrites(probeOverwrites, sizedOverwrites)

	trade, stateChanges, err := s.adapter.Swap(s.ID, tokenIn, tokenOut, false, amount, s.Block, completeOverwrites)
	if err != nil {
		return protocol.GetAmountOutResult{}, err
	}

	newState := s.Clone().(*State)
	for addr, update := range stateChanges {
		if len(update.Storage) == 0 {
			continue
		}
		dst, ok := newState.BlockLastingOverwrites[addr]
		if !ok {
			dst = map[common.Hash]common.Hash{}
			newState.BlockLastingOverwrites[addr] = dst
		}
		for slot, value := range update.Storage {
			dst[slot] = value
		}
	}

	if trade.Price != 0 {
		newState.SpotPrices[pairKey{sell: tokenIn, buy: tokenOut}] = trade.Price
		newState.SpotPrices[pairKey{sell: tokenOut, buy: tokenIn}] = 1.0 / trade.Price
	}

	result := protocol.GetAmountOutResult{
		AmountOut: trade.Received,
		GasUsed:   trade.GasUsed,
		NewState:  newState,
	}
	if exceedsLimit {
		return protocol.GetAmountOutResult{}, &protocol.InvalidInputError{
			Reason:  fmt.Sprintf("sell amount exceeds limit %s", sellLimit.String()),
			Partial: &result,
		}
	}
	return result, nil
}

// clearAllCache invalidates the engine-level state this pool's quotes
// depend on: block-lasting storage overwrites and cached spot prices.
// Callers must separately clear the simulation engine's own temp storage
// (the DB-tier cache vmpool does not own).
func (s *State) clearAllCache(tokens []protocol.Token) error {
	s.BlockLastingOverwrites = map[common.Address]map[common.Hash]common.Hash{}
	return s.SetSpotPrices(tokens)
}

// SetSpotPrices requires PriceFunction and recomputes the cached price for
// every ordered pair of tokens by probing the adapter at one-hundredth of
// the pair's current sell limit.
func (s *State) SetSpotPrices(tokens []protocol.Token) error {
	if err := s.ensureCapability(protocol.CapabilityPriceFunction); err != nil {
		return err
	}
	for _, sell := range tokens {
		for _, buy := range tokens {
			if sell.Address == buy.Address {
				continue
			}
			pair := []common.Address{sell.Address, buy.Address}
			overwrites, err := s.getOverwrites(pair, new(uint256.Int).Div(adapter.MaxBalance, uint256.NewInt(100)))
			if err != nil {
				return err
			}
			sellLimit, err := s.getSellAmountLimit(pair, overwrites)
			if err != nil {
				return err
			}
			probeAmount := new(uint256.Int).Div(sellLimit, uint256.NewInt(100))
			prices, err := s.adapter.Price(s.ID, sell.Address, buy.Address, []*uint256.Int{probeAmount}, s.Block, overwrites)
			if err != nil {
				return err
			}
			if len(prices) == 0 {
				return &protocol.FatalError{Reason: "spot price function returned no values"}
			}
			price := prices[0]
			if !s.hasCapability(protocol.CapabilityScaledPrice) {
				price *= math.Pow(10, float64(sell.Decimals)) / math.Pow(10, float64(buy.Decimals))
			}
			s.SpotPrices[pairKey{sell: sell.Address, buy: buy.Address}] = price
		}
	}
	return nil
}

// DeltaTransition invalidates the pool's cached pricing state: under
// manual_updates, only when updated_attributes carries a truthy
// "update_marker"; otherwise on every delta.
func (s *State) DeltaTransition(delta protocol.ProtocolStateDelta, tokens []protocol.Token) (protocol.ProtocolSim, error) {
	newState := s.Clone().(*State)
	shouldInvalidate := !s.ManualUpdates
	if s.ManualUpdates {
		if marker, ok := delta.UpdatedAttributes["update_marker"]; ok && len(marker) > 0 && marker[0] != 0 {
			shouldInvalidate = true
		}
	}
	if shouldInvalidate {
		if err := newState.clearAllCache(tokens); err != nil {
			return nil, &protocol.TransitionError{Message: err.Error()}
		}
	}
	return newState, nil
}

// Clone returns a deep, independent copy sharing the read-only adapter
// handle (the adapter itself carries no mutable per-pool state).
func (s *State) Clone() protocol.ProtocolSim {
	clone := &State{
		ID:                s.ID,
		Tokens:            append([]common.Address(nil), s.Tokens...),
		Block:             s.Block,
		ManualUpdates:     s.ManualUpdates,
		adapter:           s.adapter,
		log:               s.log,
		BalanceOwner:      s.BalanceOwner,
		InvolvedContracts: map[common.Address]struct{}{},
	}
	clone.Balances = make(map[common.Address]*uint256.Int, len(s.Balances))
	for k, v := range s.Balances {
		clone.Balances[k] = new(uint256.Int).Set(v)
	}
	clone.SpotPrices = make(map[pairKey]float64, len(s.SpotPrices))
	for k, v := range s.SpotPrices {
		clone.SpotPrices[k] = v
	}
	clone.Capabilities = make(map[protocol.Capability]struct{}, len(s.Capabilities))
	for k := range s.Capabilities {
		clone.Capabilities[k] = struct{}{}
	}
	clone.BlockLastingOverwrites = mergeOverwrites(s.BlockLastingOverwrites, nil)
	for k := range s.InvolvedContracts {
		clone.InvolvedContracts[k] = struct{}{}
	}
	clone.TokenStorageSlots = make(map[common.Address]TokenSlots, len(s.TokenStorageSlots))
	for k, v := range s.TokenStorageSlots {
		clone.TokenStorageSlots[k] = v
	}
	return clone
}

// Equals reports id equality with another vmpool.State, matching the
// original's identity-by-pool-id comparison.
func (s *State) Equals(other protocol.ProtocolSim) bool {
	o, ok := other.(*State)
	if !ok {
		return false
	}
	return s.ID == o.ID
}
