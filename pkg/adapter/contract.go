package adapter

import (
	"fmt"
	"math/big"

	"github.com/dexsim/protosim/pkg/account"
	"github.com/dexsim/protosim/pkg/protocol"
	"github.com/dexsim/protosim/pkg/simulation"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ExternalAccount is the fixed caller every adapter call is made from; its
// address is chosen to be unlikely to collide with a real owner address a
// test or probe might also use.
var ExternalAccount = common.HexToAddress("0xf847a638E44186F3287ee9F8cAF73FF4d4B80784")

// MaxBalance is the half-of-max-uint256 sentinel balance/allowance seeded
// into token overrides before an amount-dependent probe (get_limits, the
// first pass of get_amount_out).
var MaxBalance = func() *uint256.Int {
	max := new(uint256.Int).Not(uint256.NewInt(0))
	return new(uint256.Int).Rsh(max, 1)
}()

// Trade is the result of a swap call: the amount of buy_token received, the
// gas the adapter call consumed, and the post-swap price it reports.
type Trade struct {
	Received *uint256.Int
	GasUsed  uint64
	Price    float64
}

// Adapter wraps a single swap-adapter contract deployed at Address,
// executing its price/swap/getCapabilities/getLimits entry points through
// a simulation.Engine.
type Adapter struct {
	Address common.Address
	engine  *simulation.Engine
}

// New builds an Adapter bound to the contract at address, calling through
// engine.
func New(address common.Address, engine *simulation.Engine) *Adapter {
	return &Adapter{Address: address, engine: engine}
}

func (a *Adapter) call(
	poolID string,
	signature string,
	args []interface{},
	overrides map[common.Address]map[common.Hash]common.Hash,
	block uint64,
) ([]byte, *simulation.Result, error) {
	var (
		data []byte
		err  error
	)
	switch signature {
	case priceSignature:
		data, err = encodeCall(signature, priceArgs, args...)
	case swapSignature:
		data, err = encodeCall(signature, swapArgs, args...)
	case capabilitiesSignature:
		data, err = encodeCall(signature, capsArgs, args...)
	case limitsSignature:
		data, err = encodeCall(signature, limitsArgs, args...)
	default:
		return nil, nil, fmt.Errorf("adapter: unknown call signature %q", signature)
	}
	if err != nil {
		return nil, nil, &protocol.FatalError{Reason: fmt.Sprintf("adapter: encoding %s: %s", signature, err)}
	}

	gasLimit := simulation.DefaultGasLimit
	res, simErr := a.engine.Simulate(simulation.Params{
		Caller:      ExternalAccount,
		To:          a.Address,
		Data:        data,
		Overrides:   overrides,
		GasLimit:    gasLimit,
		BlockNumber: block,
	})
	if simErr != nil {
		return nil, nil, coerceError(simErr, poolID, gasLimit)
	}
	return res.Output, res, nil
}

const (
	priceSignature        = "price(bytes32,address,address,uint256[])"
	swapSignature         = "swap(bytes32,address,address,bool,uint256)"
	capabilitiesSignature = "getCapabilities(bytes32,address,address)"
	limitsSignature       = "getLimits(bytes32,address,address)"
)

func poolIDBytes32(poolID string) (common.Hash, error) {
	raw := common.FromHex(poolID)
	if len(raw) == 0 || len(raw) > 32 {
		return common.Hash{}, fmt.Errorf("adapter: pool id %q does not fit in bytes32", poolID)
	}
	var h common.Hash
	copy(h[32-len(raw):], raw)
	return h, nil
}

// Price quotes the price of sellToken in terms of buyToken at each of the
// given amounts.
func (a *Adapter) Price(
	poolID string, sellToken, buyToken common.Address, amounts []*uint256.Int,
	block uint64, overrides map[common.Address]map[common.Hash]common.Hash,
) ([]float64, error) {
	id, err := poolIDBytes32(poolID)
	if err != nil {
		return nil, &protocol.FatalError{Reason: err.Error()}
	}
	amountsBig := make([]*big.Int, len(amounts))
	for i, amt := range amounts {
		amountsBig[i] = amt.ToBig()
	}
	output, _, err := a.call(poolID, priceSignature, []interface{}{id, sellToken, buyToken, amountsBig}, overrides, block)
	if err != nil {
		return nil, err
	}
	decoded, err := priceReturns.Unpack(output)
	if err != nil || len(decoded) != 1 {
		return nil, &protocol.FatalError{Reason: fmt.Sprintf("adapter: decoding price() return: %v", err)}
	}
	raw, ok := decoded[0].([]*big.Int)
	if !ok {
		return nil, &protocol.FatalError{Reason: "adapter: price() did not return uint256[]"}
	}
	prices := make([]float64, len(raw))
	for i, v := range raw {
		f := new(big.Float).SetInt(v)
		prices[i], _ = f.Float64()
	}
	return prices, nil
}

// Swap executes a swap of amount of sellToken for buyToken (or vice versa
// when isBuy is true), returning the trade result and the raw per-account
// state changes the adapter call produced.
func (a *Adapter) Swap(
	poolID string, sellToken, buyToken common.Address, isBuy bool, amount *uint256.Int,
	block uint64, overrides map[common.Address]map[common.Hash]common.Hash,
) (Trade, map[common.Address]account.StateUpdate, error) {
	id, err := poolIDBytes32(poolID)
	if err != nil {
		return Trade{}, nil, &protocol.FatalError{Reason: err.Error()}
	}
	output, res, err := a.call(poolID, swapSignature, []interface{}{id, sellToken, buyToken, isBuy, amount.ToBig()}, overrides, block)
	if err != nil {
		return Trade{}, nil, err
	}
	decoded, err := tradeReturns.Unpack(output)
	if err != nil || len(decoded) != 3 {
		return Trade{}, nil, &protocol.FatalError{Reason: fmt.Sprintf("adapter: decoding swap() return: %v", err)}
	}
	received, ok1 := decoded[0].(*big.Int)
	gasUsed, ok2 := decoded[1].(*big.Int)
	priceRaw, ok3 := decoded[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return Trade{}, nil, &protocol.FatalError{Reason: "adapter: swap() returned unexpected types"}
	}
	priceFloat := new(big.Float).Quo(new(big.Float).SetInt(priceRaw), big.NewFloat(1e18))
	price, _ := priceFloat.Float64()
	trade := Trade{
		Received: uint256.MustFromBig(received),
		GasUsed:  gasUsed.Uint64(),
		Price:    price,
	}
	return trade, res.StateUpdates, nil
}

// GetCapabilities returns the set of capability ids the adapter reports for
// the ordered token pair (a, b).
func (a *Adapter) GetCapabilities(poolID string, tokenA, tokenB common.Address, block uint64) ([]protocol.Capability, error) {
	id, err := poolIDBytes32(poolID)
	if err != nil {
		return nil, &protocol.FatalError{Reason: err.Error()}
	}
	output, _, err := a.call(poolID, capabilitiesSignature, []interface{}{id, tokenA, tokenB}, nil, block)
	if err != nil {
		return nil, err
	}
	decoded, err := capsReturns.Unpack(output)
	if err != nil || len(decoded) != 1 {
		return nil, &protocol.FatalError{Reason: fmt.Sprintf("adapter: decoding getCapabilities() return: %v", err)}
	}
	raw, ok := decoded[0].([]*big.Int)
	if !ok {
		return nil, &protocol.FatalError{Reason: "adapter: getCapabilities() did not return uint256[]"}
	}
	caps := make([]protocol.Capability, 0, len(raw))
	for _, v := range raw {
		c, err := capabilityFromUint(v.Uint64())
		if err != nil {
			return nil, &protocol.FatalError{Reason: err.Error()}
		}
		caps = append(caps, c)
	}
	return caps, nil
}

// GetLimits returns the (sell_limit, buy_limit) the adapter reports for the
// ordered token pair (sellToken, buyToken) under the given overrides.
func (a *Adapter) GetLimits(
	poolID string, sellToken, buyToken common.Address, block uint64,
	overrides map[common.Address]map[common.Hash]common.Hash,
) (*uint256.Int, *uint256.Int, error) {
	id, err := poolIDBytes32(poolID)
	if err != nil {
		return nil, nil, &protocol.FatalError{Reason: err.Error()}
	}
	output, _, err := a.call(poolID, limitsSignature, []interface{}{id, sellToken, buyToken}, overrides, block)
	if err != nil {
		return nil, nil, err
	}
	decoded, err := limitsReturns.Unpack(output)
	if err != nil || len(decoded) != 2 {
		return nil, nil, &protocol.FatalError{Reason: fmt.Sprintf("adapter: decoding getLimits() return: %v", err)}
	}
	sellLimit, ok1 := decoded[0].(*big.Int)
	buyLimit, ok2 := decoded[1].(*big.Int)
	if !ok1 || !ok2 {
		return nil, nil, &protocol.FatalError{Reason: "adapter: getLimits() returned unexpected types"}
	}
	return uint256.MustFromBig(sellLimit), uint256.MustFromBig(buyLimit), nil
}

// capabilityFromUint maps the on-chain capability id (1..9) to protocol's
// Capability enum. The wire ids match models.rs's Capability::from_u256.
func capabilityFromUint(v uint64) (protocol.Capability, error) {
	switch v {
	case 1:
		return protocol.CapabilitySellSide, nil
	case 2:
		return protocol.CapabilityBuySide, nil
	case 3:
		return protocol.CapabilityPriceFunction, nil
	case 4:
		return protocol.CapabilityFeeOnTransfer, nil
	case 5:
		return protocol.CapabilityConstantPrice, nil
	case 6:
		return protocol.CapabilityTokenBalanceIndependent, nil
	case 7:
		return protocol.CapabilityScaledPrice, nil
	case 8:
		return protocol.CapabilityHardLimits, nil
	case 9:
		return protocol.CapabilityMarginalPrice, nil
	default:
		return 0, fmt.Errorf("adapter: unexpected capability id %d", v)
	}
}
