package uniswapv3

import (
	"math/big"
	"testing"

	"github.com/dexsim/protosim/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func tick(index int32, netLiquidity string) TickInfo {
	nl := bi(netLiquidity)
	info, err := NewTickInfo(index, nl)
	if err != nil {
		panic(err)
	}
	return info
}

func TestGetAmountOutFullRangeLiquidity(t *testing.T) {
	tokenX := common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	tokenY := common.HexToAddress("0xf1ca9cb74685755965c7458528a36934df52a3ef")

	pool := New("pool-1", tokenX, tokenY, 18, 18,
		bi("8330443394424070888454257"),
		bi("188562464004052255423565206602"),
		FeeMedium, 17342,
		[]TickInfo{tick(0, "0"), tick(46080, "0")},
	)

	amountIn, _ := uint256.FromDecimal("11000000000000000000000")
	want := bi("61927070842678722935941")

	res, err := pool.GetAmountOut(amountIn, tokenX, tokenY)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AmountOut.ToBig().Cmp(want) != 0 {
		t.Fatalf("amount_out = %s, want %s", res.AmountOut, want)
	}
}

func TestGetAmountOutWithTickCrossings(t *testing.T) {
	wbtc := common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	ticks := []TickInfo{
		tick(255760, "1759015528199933"),
		tick(255770, "6393138051835308"),
		tick(255780, "228206673808681"),
		tick(255820, "1319490609195820"),
		tick(255830, "678916926147901"),
		tick(255840, "12208947683433103"),
		tick(255850, "1177970713095301"),
		tick(255860, "8752304680520407"),
		tick(255880, "1486478248067104"),
		tick(255890, "1878744276123248"),
		tick(255900, "77340284046725227"),
	}
	pool := New("pool-2", wbtc, weth, 8, 18,
		bi("377952820878029838"),
		bi("28437325270877025820973479874632004"),
		FeeLow, 255830, ticks,
	)

	cases := []struct {
		sellWBTC bool
		sell     string
		want     string
	}{
		{true, "500000000", "64352395915550406461"},
		{true, "550000000", "70784271504035662865"},
		{true, "600000000", "77215534856185613494"},
		{true, "1000000000", "128643569649663616249"},
		{true, "3000000000", "385196519076234662939"},
		{false, "64000000000000000000", "496294784"},
		{false, "70000000000000000000", "542798479"},
		{false, "77000000000000000000", "597047757"},
		{false, "128000000000000000000", "992129037"},
		{false, "385000000000000000000", "2978713582"},
	}

	for _, c := range cases {
		tokenIn, tokenOut := wbtc, weth
		if !c.sellWBTC {
			tokenIn, tokenOut = weth, wbtc
		}
		sell, _ := uint256.FromDecimal(c.sell)
		res, err := pool.GetAmountOut(sell, tokenIn, tokenOut)
		if err != nil {
			t.Fatalf("sell=%s: unexpected error: %v", c.sell, err)
		}
		want := bi(c.want)
		if res.AmountOut.ToBig().Cmp(want) != 0 {
			t.Fatalf("sell=%s: amount_out = %s, want %s", c.sell, res.AmountOut, want)
		}
	}
}

func TestGetAmountOutPartialFillOnTicksExceeded(t *testing.T) {
	dai := common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	usdc := common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")

	ticks := []TickInfo{
		tick(-269600, "3612326326695492"),
		tick(-268800, "1487613939516867"),
		tick(-267800, "1557587121322546"),
		tick(-267400, "424592076717375"),
		tick(-267200, "11691597431643916"),
		tick(-266800, "-218742815100986"),
		tick(-266600, "1118947532495477"),
		tick(-266200, "1233064286622365"),
		tick(-265000, "4252603063356107"),
		tick(-263200, "-351282010325232"),
		tick(-262800, "-2352011819117842"),
		tick(-262600, "-424592076717375"),
		tick(-262200, "-11923662433672566"),
		tick(-261600, "-2432911749667741"),
		tick(-260200, "-4032727022572273"),
		tick(-260000, "-22889492064625028"),
		tick(-259400, "-1557587121322546"),
		tick(-259200, "-1487613939516867"),
		tick(-258400, "-400137022888262"),
	}
	pool := New("pool-3", dai, usdc, 18, 6,
		bi("73015811375239994"),
		bi("148273042406850898575413"),
		FeeHigh, -263789, ticks,
	)

	amountIn, _ := uint256.FromDecimal("50000000000")
	wantPartial := bi("6820591625999718100883")

	_, err := pool.GetAmountOut(amountIn, usdc, dai)
	if err == nil {
		t.Fatalf("expected InvalidInputError on ticks exceeded")
	}
	invalidInput, ok := err.(*protocol.InvalidInputError)
	if !ok {
		t.Fatalf("expected *protocol.InvalidInputError, got %T: %v", err, err)
	}
	if invalidInput.Partial == nil {
		t.Fatalf("expected a partial result")
	}
	if invalidInput.Partial.AmountOut.ToBig().Cmp(wantPartial) != 0 {
		t.Fatalf("partial amount = %s, want %s", invalidInput.Partial.AmountOut, wantPartial)
	}
	newState := invalidInput.Partial.NewState.(*State)
	if newState.Tick == pool.Tick {
		t.Fatalf("partial result tick must differ from the pre-swap tick")
	}
	if newState.Liquidity.Cmp(pool.Liquidity) == 0 {
		t.Fatalf("partial result liquidity must differ from the pre-swap liquidity")
	}
}

func TestDeltaTransitionAppliesAttributesAndTickLiquidity(t *testing.T) {
	a := common.HexToAddress("0x1000000000000000000000000000000000000001")
	b := common.HexToAddress("0x2000000000000000000000000000000000000002")

	pool := New("pool-4", a, b, 18, 18,
		big.NewInt(1000), big.NewInt(1000), FeeLow, 100,
		[]TickInfo{tick(255760, "10000"), tick(255900, "-10000")},
	)

	delta := protocol.ProtocolStateDelta{
		UpdatedAttributes: map[string][]byte{
			"liquidity":                       big.NewInt(2000).Bytes(),
			"sqrt_price_x96":                  big.NewInt(1001).Bytes(),
			"tick":                            big.NewInt(120).Bytes(),
			"ticks/255760/net_liquidity":      big.NewInt(10200).Bytes(),
			"ticks/255900/net_liquidity":      big.NewInt(9800).Bytes(),
		},
	}

	next, err := pool.DeltaTransition(delta, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updated := next.(*State)

	if updated.Liquidity.Int64() != 2000 {
		t.Fatalf("liquidity = %s, want 2000", updated.Liquidity)
	}
	if updated.SqrtPrice.Int64() != 1001 {
		t.Fatalf("sqrt_price = %s, want 1001", updated.SqrtPrice)
	}
	if updated.Tick != 120 {
		t.Fatalf("tick = %d, want 120", updated.Tick)
	}
	info, err := updated.Ticks.GetTick(255760)
	if err != nil || info.NetLiquidity.Int64() != 10200 {
		t.Fatalf("tick 255760 net_liquidity = %v, err=%v, want 10200", info, err)
	}
	info, err = updated.Ticks.GetTick(255900)
	if err != nil || info.NetLiquidity.Int64() != 9800 {
		t.Fatalf("tick 255900 net_liquidity = %v, err=%v, want 9800", info, err)
	}

	if pool.Liquidity.Int64() != 1000 {
		t.Fatalf("DeltaTransition must not mutate the receiver")
	}
}
