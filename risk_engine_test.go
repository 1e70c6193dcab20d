package core

import (
	"testing"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tokenUSDC uint16 = 0
	tokenBTC  uint16 = 1
)

func scenarioGroup(t *testing.T) (*Group, PriceMap) {
	t.Helper()

	group := NewGroup(clock.NewMock(), "admin", "main", "")

	usdc := newTestBank(t, tokenUSDC, "USDC")
	usdc.AssetWeightInit = mustFixed(t, "0.8")
	usdc.AssetWeightMaint = mustFixed(t, "0.9")
	usdc.LiabilityWeightInit = mustFixed(t, "1.1")
	usdc.LiabilityWeightMaint = mustFixed(t, "1.05")
	require.NoError(t, group.AddBank(usdc))

	btc := newTestBank(t, tokenBTC, "BTC")
	btc.AssetWeightInit = mustFixed(t, "0.7")
	btc.AssetWeightMaint = mustFixed(t, "0.8")
	btc.LiabilityWeightInit = mustFixed(t, "1.4")
	btc.LiabilityWeightMaint = mustFixed(t, "1.2")
	require.NoError(t, group.AddBank(btc))

	prices := PriceMap{
		tokenUSDC: NewFixedFromInt(1),
		tokenBTC:  NewFixedFromInt(1),
	}
	return group, prices
}

func scenarioEngine(t *testing.T, balances map[uint16]int64) (*RiskEngine, *Account) {
	t.Helper()

	group, prices := scenarioGroup(t)
	account := newTestAccount()
	for tokenIndex, native := range balances {
		account.EnsureToken(tokenIndex).IndexedValue = NewFixedFromInt(native)
	}
	engine, err := NewRiskEngine(account, group, prices)
	require.NoError(t, err)
	return engine, account
}

func TestRiskEngineDepositOnly(t *testing.T) {
	engine, _ := scenarioEngine(t, map[uint16]int64{tokenUSDC: 100})

	assets, liabs, err := engine.HealthComponents(Maintenance)
	require.NoError(t, err)
	assert.InDelta(t, 90, assets.InexactFloat64(), 1e-9)
	assert.True(t, liabs.IsZero())

	health, err := engine.Health(Maintenance)
	require.NoError(t, err)
	assert.InDelta(t, 90, health.InexactFloat64(), 1e-9)

	// health equals weighted assets, so the ratio is exactly 100
	ratio, err := engine.HealthRatio(Maintenance)
	require.NoError(t, err)
	assert.True(t, ratio.Equal(HUNDRED), "expected 100, got %s", ratio)
}

func TestRiskEngineMixedBalances(t *testing.T) {
	engine, _ := scenarioEngine(t, map[uint16]int64{tokenUSDC: 100, tokenBTC: -50})

	assets, liabs, err := engine.HealthComponents(Maintenance)
	require.NoError(t, err)
	assert.InDelta(t, 90, assets.InexactFloat64(), 1e-9)
	assert.InDelta(t, 60, liabs.InexactFloat64(), 1e-9)

	health, err := engine.Health(Maintenance)
	require.NoError(t, err)
	assert.InDelta(t, 30, health.InexactFloat64(), 1e-9)

	ratio, err := engine.HealthRatio(Maintenance)
	require.NoError(t, err)
	assert.InDelta(t, 100.0/3.0, ratio.InexactFloat64(), 1e-9)

	equity, err := engine.Equity()
	require.NoError(t, err)
	assert.InDelta(t, 50, equity.InexactFloat64(), 1e-9)
	assert.True(t, equity.GreaterThan(health))
}

func TestRiskEngineRequirementOrdering(t *testing.T) {
	engine, _ := scenarioEngine(t, map[uint16]int64{tokenUSDC: 100, tokenBTC: -50})

	initial, err := engine.Health(Initial)
	require.NoError(t, err)
	maintenance, err := engine.Health(Maintenance)
	require.NoError(t, err)
	equity, err := engine.Equity()
	require.NoError(t, err)

	// the initial regime is the strictest, equity the loosest
	assert.True(t, initial.LessThanOrEqual(maintenance))
	assert.True(t, maintenance.LessThanOrEqual(equity))
}

func TestRiskEngineHealthRatioEdges(t *testing.T) {
	// no balances at all: vacuously healthy
	engine, _ := scenarioEngine(t, nil)
	ratio, err := engine.HealthRatio(Maintenance)
	require.NoError(t, err)
	assert.True(t, ratio.Equal(MaxHealthRatio))

	// liabilities with no assets: no finite ratio exists
	engine, _ = scenarioEngine(t, map[uint16]int64{tokenBTC: -50})
	_, err = engine.HealthRatio(Maintenance)
	assert.ErrorIs(t, err, ErrUndefined)
}

func TestRiskEngineCheckAccountHealth(t *testing.T) {
	engine, _ := scenarioEngine(t, map[uint16]int64{tokenUSDC: 100, tokenBTC: -50})
	assert.NoError(t, engine.CheckAccountHealth(Initial))

	engine, _ = scenarioEngine(t, map[uint16]int64{tokenUSDC: 100, tokenBTC: -60})
	// 80 assets vs 84 liabilities under the initial regime
	assert.ErrorIs(t, engine.CheckAccountHealth(Initial), RiskEngineInitRejected)
	// 90 vs 72: still above maintenance
	assert.NoError(t, engine.CheckAccountHealth(Maintenance))
}

func TestRiskEngineUnknownAsset(t *testing.T) {
	group, prices := scenarioGroup(t)
	account := newTestAccount()
	account.EnsureToken(42).IndexedValue = NewFixedFromInt(10)

	_, err := NewRiskEngine(account, group, prices)
	assert.ErrorIs(t, err, UnknownAsset)
}

func TestRiskEngineAuxContributions(t *testing.T) {
	group, prices := scenarioGroup(t)
	account := newTestAccount()
	account.EnsureToken(tokenUSDC).IndexedValue = NewFixedFromInt(100)
	account.Aux = []AuxContribution{
		{TokenIndex: tokenUSDC, Value: NewFixedFromInt(20)},
		{TokenIndex: tokenBTC, Value: NewFixedFromInt(-10)},
	}

	engine, err := NewRiskEngine(account, group, prices)
	require.NoError(t, err)

	assets, liabs, err := engine.HealthComponents(Maintenance)
	require.NoError(t, err)
	// 100*0.9 + 20*0.9 assets, 10*1.2 liabs
	assert.InDelta(t, 108, assets.InexactFloat64(), 1e-9)
	assert.InDelta(t, 12, liabs.InexactFloat64(), 1e-9)
}

func TestSimulateHealth(t *testing.T) {
	engine, account := scenarioEngine(t, map[uint16]int64{tokenUSDC: 100, tokenBTC: -50})

	health, err := engine.Health(Maintenance)
	require.NoError(t, err)

	// no deltas reproduces health exactly
	simulated, err := engine.SimulateHealth(Maintenance, nil)
	require.NoError(t, err)
	assert.True(t, simulated.Equal(health))

	// repaying the whole borrow removes its weighted liability
	simulated, err = engine.SimulateHealth(Maintenance, []TokenDelta{
		{TokenIndex: tokenBTC, NativeDelta: NewFixedFromInt(50)},
	})
	require.NoError(t, err)
	assert.InDelta(t, 90, simulated.InexactFloat64(), 1e-9)

	// the evaluated account is untouched
	p, ok := account.FindToken(tokenBTC)
	require.True(t, ok)
	assert.True(t, p.IndexedValue.Equal(NewFixedFromInt(-50)))
	recomputed, err := engine.Health(Maintenance)
	require.NoError(t, err)
	assert.True(t, recomputed.Equal(health))
}

func TestMaxWithdrawWithBorrowDepositOnly(t *testing.T) {
	engine, _ := scenarioEngine(t, map[uint16]int64{tokenUSDC: 100})

	// the whole deposit drains health to exactly zero: withdraw stops there
	max, err := engine.MaxWithdrawWithBorrow(Maintenance, tokenUSDC)
	require.NoError(t, err)
	assert.True(t, max.Equal(NewFixedFromInt(100)), "expected 100, got %s", max)
}

func TestMaxWithdrawWithBorrowCrossesIntoBorrow(t *testing.T) {
	engine, _ := scenarioEngine(t, map[uint16]int64{tokenUSDC: 100})

	// no BTC deposit: the full amount is borrowed against USDC collateral
	max, err := engine.MaxWithdrawWithBorrow(Maintenance, tokenBTC)
	require.NoError(t, err)
	assert.True(t, max.IsPositive())
	assert.InDelta(t, 75, max.InexactFloat64(), 1e-9) // 90 / 1.2

	negMax, err := max.Neg()
	require.NoError(t, err)
	post, err := engine.SimulateHealth(Maintenance, []TokenDelta{
		{TokenIndex: tokenBTC, NativeDelta: negMax},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0, post.InexactFloat64(), 1e-9)
	assert.False(t, post.IsNegative())
}

func TestMaxWithdrawWithBorrowEdges(t *testing.T) {
	// unhealthy account: nothing can come out
	engine, _ := scenarioEngine(t, map[uint16]int64{tokenBTC: -50})
	max, err := engine.MaxWithdrawWithBorrow(Maintenance, tokenUSDC)
	require.NoError(t, err)
	assert.True(t, max.IsZero())

	// a zero-priced token has no health-bounded limit
	group, prices := scenarioGroup(t)
	prices[tokenBTC] = Fixed{}
	account := newTestAccount()
	account.EnsureToken(tokenUSDC).IndexedValue = NewFixedFromInt(100)
	healthy, err := NewRiskEngine(account, group, prices)
	require.NoError(t, err)
	_, err = healthy.MaxWithdrawWithBorrow(Maintenance, tokenBTC)
	assert.ErrorIs(t, err, ErrUndefined)
}

func TestMaxSourceForTokenSwap(t *testing.T) {
	engine, _ := scenarioEngine(t, map[uint16]int64{tokenUSDC: 100})

	max, err := engine.MaxSourceForTokenSwap(Maintenance, tokenUSDC, tokenBTC, ONE)
	require.NoError(t, err)
	assert.True(t, max.IsPositive())

	// selling the computed maximum lands health at zero
	negMax, err := max.Neg()
	require.NoError(t, err)
	post, err := engine.SimulateHealth(Maintenance, []TokenDelta{
		{TokenIndex: tokenUSDC, NativeDelta: negMax},
		{TokenIndex: tokenBTC, NativeDelta: max},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0, post.InexactFloat64(), 1e-6)
}

func TestMaxSourceForTokenSwapRepaysBorrowFirst(t *testing.T) {
	// swapping into a borrowed token repays the borrow first; that segment
	// gains health (liability weight above asset weight), and the solver
	// must credit the gain or it stops short of the true root
	engine, _ := scenarioEngine(t, map[uint16]int64{tokenUSDC: 100, tokenBTC: -10})

	max, err := engine.MaxSourceForTokenSwap(Maintenance, tokenUSDC, tokenBTC, ONE)
	require.NoError(t, err)

	// start 78, +0.3/unit to 10, -0.1/unit to 100, -0.25/unit after
	assert.InDelta(t, 388, max.InexactFloat64(), 1e-9)

	negMax, err := max.Neg()
	require.NoError(t, err)
	post, err := engine.SimulateHealth(Maintenance, []TokenDelta{
		{TokenIndex: tokenUSDC, NativeDelta: negMax},
		{TokenIndex: tokenBTC, NativeDelta: max},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0, post.InexactFloat64(), 1e-6)
}

func TestMaxSourceForTokenSwapSlippage(t *testing.T) {
	engine, _ := scenarioEngine(t, map[uint16]int64{tokenUSDC: 100})

	full, err := engine.MaxSourceForTokenSwap(Maintenance, tokenUSDC, tokenBTC, ONE)
	require.NoError(t, err)
	degraded, err := engine.MaxSourceForTokenSwap(Maintenance, tokenUSDC, tokenBTC, mustFixed(t, "0.5"))
	require.NoError(t, err)

	// worse execution means less can be sold before health runs out
	assert.True(t, degraded.LessThan(full))
}

func TestMaxSourceForTokenSwapValidation(t *testing.T) {
	engine, _ := scenarioEngine(t, map[uint16]int64{tokenUSDC: 100})

	_, err := engine.MaxSourceForTokenSwap(Maintenance, tokenUSDC, tokenUSDC, ONE)
	assert.ErrorIs(t, err, InvalidConfig)

	_, err = engine.MaxSourceForTokenSwap(Maintenance, tokenUSDC, tokenBTC, Fixed{})
	assert.ErrorIs(t, err, InvalidConfig)

	_, err = engine.MaxSourceForTokenSwap(Maintenance, tokenUSDC, tokenBTC, mustFixed(t, "1.5"))
	assert.ErrorIs(t, err, InvalidConfig)
}
