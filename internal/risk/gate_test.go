package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiller/internal/broker"
	"tiller/internal/scorer"
	"tiller/internal/session"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxPositionDollars = 100000
	cfg.MaxPositionPctEquity = 20.0
	return cfg
}

func account(equity, buyingPower, dayPnLPct float64) broker.AccountSnapshot {
	return broker.AccountSnapshot{
		Equity:      equity,
		Cash:        buyingPower,
		BuyingPower: buyingPower,
		DayPnLPct:   dayPnLPct,
	}
}

func candidate(ticker string, entry float64, qty int) scorer.Candidate {
	return scorer.Candidate{
		Ticker:     ticker,
		EntryPrice: entry,
		Qty:        qty,
		StopLoss:   entry * 0.95,
		Score:      80,
		PassesGate: true,
	}
}

func TestBuyingPowerShrink(t *testing.T) {
	g := NewGate(testConfig(), nil, nil)

	// 1000 shares at $50 wants $50,000 against $10,000 of buying power.
	res := g.Evaluate(time.Now(), false, candidate("NVDA", 50, 1000), account(1_000_000, 10_000, 0.5), nil)

	require.True(t, res.Approved)
	assert.Equal(t, ActionEnter, res.Action)
	assert.Equal(t, 190, res.Candidate.Qty, "95 percent of $10k at $50/share")
	require.NotEmpty(t, res.Adjustments)
	last := res.Adjustments[len(res.Adjustments)-1]
	assert.Equal(t, "qty", last.Field)
	assert.Equal(t, float64(190), last.New)
}

func TestDailyLossHalt(t *testing.T) {
	g := NewGate(testConfig(), nil, nil)

	res := g.Evaluate(time.Now(), false, candidate("AAPL", 100, 10), account(100_000, 50_000, -3.1), nil)

	assert.False(t, res.Approved)
	assert.True(t, res.TripsBreaker)
	require.Len(t, res.Reasons, 1)
	assert.Contains(t, res.Reasons[0], "halt threshold")
}

func TestHaltedAlwaysRejects(t *testing.T) {
	g := NewGate(testConfig(), nil, nil)

	// Even a perfect candidate on a healthy account is rejected while the
	// breaker is latched.
	cands := []scorer.Candidate{
		candidate("AAPL", 100, 10),
		candidate("MSFT", 500, 1),
		{Ticker: "SPY", EntryPrice: 600, Qty: 5, Score: 100, PassesGate: true},
	}
	for _, c := range cands {
		res := g.Evaluate(time.Now(), true, c, account(1_000_000, 500_000, 2.0), nil)
		assert.False(t, res.Approved, c.Ticker)
		assert.False(t, res.TripsBreaker)
		assert.Contains(t, res.Reasons[0], "circuit breaker")
	}
}

func TestTradingBlocked(t *testing.T) {
	g := NewGate(testConfig(), nil, nil)
	acct := account(100_000, 50_000, 0)
	acct.TradingBlocked = true

	res := g.Evaluate(time.Now(), false, candidate("AAPL", 100, 10), acct, nil)
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reasons[0], "trading-blocked")
}

func TestMaxPositionsFreshEntryOnly(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPositions = 2
	g := NewGate(cfg, nil, nil)
	positions := []broker.Position{
		{Ticker: "AAPL", Qty: 10, MarketValue: 1000},
		{Ticker: "MSFT", Qty: 5, MarketValue: 2500},
	}
	acct := account(100_000, 50_000, 0)

	res := g.Evaluate(time.Now(), false, candidate("NVDA", 50, 10), acct, positions)
	assert.False(t, res.Approved, "fresh entry blocked at max positions")

	res = g.Evaluate(time.Now(), false, candidate("AAPL", 100, 5), acct, positions)
	assert.True(t, res.Approved, "add to an existing holding is not a fresh entry")
	assert.Equal(t, ActionScaleIn, res.Action)
}

func TestScaleInConversion(t *testing.T) {
	g := NewGate(testConfig(), nil, nil)
	acct := account(100_000, 50_000, 0)

	// Cap is min(20% of 100k, 100k) = 20k; threshold is 60% = 12k.
	light := []broker.Position{{Ticker: "AAPL", Qty: 50, MarketValue: 5000}}
	res := g.Evaluate(time.Now(), false, candidate("AAPL", 100, 10), acct, light)
	require.True(t, res.Approved)
	assert.Equal(t, ActionScaleIn, res.Action)

	heavy := []broker.Position{{Ticker: "AAPL", Qty: 150, MarketValue: 15000}}
	res = g.Evaluate(time.Now(), false, candidate("AAPL", 100, 10), acct, heavy)
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reasons[0], "exposure")
}

func TestAutoStop(t *testing.T) {
	g := NewGate(testConfig(), nil, nil)
	cand := candidate("AAPL", 100, 10)
	cand.StopLoss = 0

	res := g.Evaluate(time.Now(), false, cand, account(100_000, 50_000, 0), nil)
	require.True(t, res.Approved)
	assert.Equal(t, 95.0, res.Candidate.StopLoss, "5 percent below entry")
	require.Len(t, res.Adjustments, 1)
	assert.Equal(t, "stop_loss", res.Adjustments[0].Field)
}

func TestSizeCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPositionDollars = 5000
	g := NewGate(cfg, nil, nil)

	res := g.Evaluate(time.Now(), false, candidate("AAPL", 100, 100), account(100_000, 50_000, 0), nil)
	require.True(t, res.Approved)
	assert.Equal(t, 50, res.Candidate.Qty)
}

func TestMinNotional(t *testing.T) {
	g := NewGate(testConfig(), nil, nil)

	res := g.Evaluate(time.Now(), false, candidate("AAPL", 100, 2), account(100_000, 50_000, 0), nil)
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reasons[0], "floor")
}

func TestSectorCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSectorPct = 10
	sectors := map[string]string{"AAPL": "tech", "MSFT": "tech"}
	g := NewGate(cfg, nil, func(t string) string { return sectors[t] })

	positions := []broker.Position{{Ticker: "MSFT", Qty: 20, MarketValue: 9000}}
	cand := candidate("AAPL", 100, 20)
	cand.Sector = "tech"

	// 10% of 100k equity leaves $1,000 of tech headroom but the order wants
	// $2,000 on top of $9,000 already deployed.
	res := g.Evaluate(time.Now(), false, cand, account(100_000, 50_000, 0), positions)
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reasons[0], "sector tech")
}

func TestEntryWindow(t *testing.T) {
	clock, err := session.NewClock("America/New_York", session.Windows{NoEntryOpenMins: 15, NoEntryCloseMins: 15})
	require.NoError(t, err)
	g := NewGate(testConfig(), clock, nil)

	loc := clock.Location()
	embargo := time.Date(2026, 3, 4, 9, 35, 0, 0, loc)
	res := g.Evaluate(embargo, false, candidate("AAPL", 100, 10), account(100_000, 50_000, 0), nil)
	assert.False(t, res.Approved)

	midday := time.Date(2026, 3, 4, 12, 0, 0, 0, loc)
	res = g.Evaluate(midday, false, candidate("AAPL", 100, 10), account(100_000, 50_000, 0), nil)
	assert.True(t, res.Approved)
}

func TestHealthWarnings(t *testing.T) {
	g := NewGate(testConfig(), nil, func(string) string { return "tech" })
	positions := []broker.Position{
		{Ticker: "AAPL", MarketValue: 5000, UnrealizedPnLPct: -6.0},
	}
	warnings := g.Health(account(100_000, 50_000, -2.0), positions)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "day P&L")
}
