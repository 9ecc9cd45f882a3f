package allocator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func swingProfile() Profile {
	return Profile{
		ID:             "swing",
		Name:           "Pipeline Swing",
		Capital:        20000,
		MaxPositions:   3,
		MaxPositionPct: 40,
		MaxRiskPct:     2,
		MaxHold:        72 * time.Hour,
		Reinvest:       true,
	}
}

func newTestAllocator(t *testing.T, profiles ...Profile) *Allocator {
	t.Helper()
	if len(profiles) == 0 {
		profiles = []Profile{swingProfile()}
	}
	a, err := New(profiles, NewMemoryRepository())
	require.NoError(t, err)
	return a
}

func TestCanOpenLimits(t *testing.T) {
	a := newTestAllocator(t)

	ok, _ := a.CanOpen("swing", 5000)
	assert.True(t, ok)

	ok, reason := a.CanOpen("swing", 9000)
	assert.False(t, ok, "40 percent of 20k caps a single position at 8k")
	assert.Contains(t, reason, "per-position cap")

	ok, reason = a.CanOpen("nope", 100)
	assert.False(t, ok)
	assert.Contains(t, reason, "unknown bucket")
}

func TestNeverOverCommitted(t *testing.T) {
	p := swingProfile()
	p.MaxPositions = 10
	p.MaxPositionPct = 40
	a := newTestAllocator(t, p)

	// Keep opening until the bucket refuses; deployed capital must never
	// pass bucket capital.
	tickers := []string{"AAPL", "MSFT", "NVDA", "AMZN", "GOOG", "META"}
	opened := 0
	for _, tk := range tickers {
		if _, err := a.Open("swing", tk, 60, 100, t0); err == nil {
			opened++
		}
	}
	assert.Equal(t, 3, opened, "three 6k positions fit in 20k, a fourth does not")

	report := a.Report()
	require.Len(t, report, 1)
	assert.LessOrEqual(t, report[0].Deployed, report[0].Capital)
	assert.InDelta(t, 18000, report[0].Deployed, 0.001)
}

func TestCloseRealizesPnLAndReinvests(t *testing.T) {
	a := newTestAllocator(t)
	_, err := a.Open("swing", "AAPL", 50, 100, t0)
	require.NoError(t, err)

	closed, err := a.Close("AAPL", 110, 0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, closed.Status)
	assert.InDelta(t, 500, closed.RealizedPnL, 0.001)

	report := a.Report()[0]
	assert.InDelta(t, 20500, report.Capital, 0.001, "reinvesting bucket folds profit back in")
	assert.Equal(t, 1, report.WinCount)
	assert.Zero(t, report.OpenCount)
	assert.InDelta(t, 20500, report.PeakCapital, 0.001)
}

func TestPartialClose(t *testing.T) {
	a := newTestAllocator(t)
	_, err := a.Open("swing", "AAPL", 100, 50, t0)
	require.NoError(t, err)

	partial, err := a.Close("AAPL", 55, 75, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, partial.Status)
	assert.Equal(t, 25, partial.RemainingQty)
	assert.InDelta(t, 375, partial.RealizedPnL, 0.001)

	// Closing the rest moves the record to history with cumulative P&L.
	closed, err := a.Close("AAPL", 45, 0, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, closed.Status)
	assert.InDelta(t, 375-125, closed.RealizedPnL, 0.001)
	assert.Equal(t, 1, a.Report()[0].WinCount, "net positive trade counts as a win")
}

func TestRemoveUnwindsExactTranche(t *testing.T) {
	a := newTestAllocator(t)
	first, err := a.Open("swing", "AAPL", 50, 100, t0)
	require.NoError(t, err)
	scaleIn, err := a.Open("swing", "AAPL", 10, 120, t0.Add(time.Hour))
	require.NoError(t, err)

	// The scale-in order never filled; removing its id must not touch the
	// earlier tranche, realize P&L, or count a trade.
	require.NoError(t, a.Remove(scaleIn.ID))

	tracked, ok := a.Tracked("AAPL")
	require.True(t, ok)
	assert.Equal(t, first.ID, tracked.ID)
	assert.Equal(t, 50, tracked.Qty)
	assert.InDelta(t, 100, tracked.EntryPrice, 0.001)

	report := a.Report()[0]
	assert.Zero(t, report.RealizedPnL)
	assert.InDelta(t, 20000, report.Capital, 0.001)
	assert.Equal(t, 1, report.TradeCount)
	assert.Equal(t, 1, report.OpenCount)

	assert.Error(t, a.Remove(scaleIn.ID), "already removed")
}

func TestLosingCloseTracksDrawdown(t *testing.T) {
	a := newTestAllocator(t)
	_, err := a.Open("swing", "AAPL", 50, 100, t0)
	require.NoError(t, err)

	_, err = a.Close("AAPL", 80, 0, t0.Add(time.Hour))
	require.NoError(t, err)

	report := a.Report()[0]
	assert.InDelta(t, 19000, report.Capital, 0.001)
	assert.Zero(t, report.WinCount)
	assert.InDelta(t, 5.0, report.MaxDrawdown, 0.001, "1k loss off a 20k peak")
}

func TestSizeFromRisk(t *testing.T) {
	a := newTestAllocator(t)

	// Capital cap: 40% of 20k / $100 = 80 shares. Risk cap: 2% of 20k /
	// $5 stop distance = 80 shares. Tighten the stop and risk wins.
	assert.Equal(t, 80, a.SizeFromRisk("swing", 100, 95))
	assert.Equal(t, 40, a.SizeFromRisk("swing", 100, 90), "wider stop, risk cap binds")
	assert.Equal(t, 0, a.SizeFromRisk("swing", 0, 0))
	assert.Equal(t, 0, a.SizeFromRisk("nope", 100, 95))
}

func TestTimeExits(t *testing.T) {
	a := newTestAllocator(t)
	_, err := a.Open("swing", "AAPL", 10, 100, t0)
	require.NoError(t, err)
	_, err = a.Open("swing", "MSFT", 10, 100, t0.Add(48*time.Hour))
	require.NoError(t, err)

	assert.Empty(t, a.TimeExits(t0.Add(71*time.Hour)))

	due := a.TimeExits(t0.Add(73 * time.Hour))
	require.Len(t, due, 1)
	assert.Equal(t, "AAPL", due[0].Ticker)
}

func TestStateSurvivesRestart(t *testing.T) {
	repo := NewMemoryRepository()
	a, err := New([]Profile{swingProfile()}, repo)
	require.NoError(t, err)
	_, err = a.Open("swing", "AAPL", 50, 100, t0)
	require.NoError(t, err)
	_, err = a.Close("AAPL", 110, 0, t0.Add(time.Hour))
	require.NoError(t, err)

	// New instance over the same repository: capital and history carry
	// over, profile rules come from the fresh config.
	fresh := swingProfile()
	fresh.MaxPositions = 5
	b, err := New([]Profile{fresh}, repo)
	require.NoError(t, err)

	report := b.Report()[0]
	assert.InDelta(t, 20500, report.Capital, 0.001)
	assert.Equal(t, 1, report.TradeCount)
	profiles := b.Profiles()
	require.Len(t, profiles, 1)
	assert.Equal(t, 5, profiles[0].MaxPositions)
}

func TestUpdateProfilesHotReload(t *testing.T) {
	a := newTestAllocator(t)
	_, err := a.Open("swing", "AAPL", 50, 100, t0)
	require.NoError(t, err)

	retuned := swingProfile()
	retuned.MaxPositions = 1
	a.UpdateProfiles([]Profile{
		retuned,
		{ID: "scalp", Name: "Scalp", Capital: 5000, MaxPositions: 2, MaxPositionPct: 50},
	})

	// Existing bucket keeps its ledger and picks up the new rules.
	ok, reason := a.CanOpen("swing", 1000)
	assert.False(t, ok)
	assert.Contains(t, reason, "max 1 positions")

	ok, _ = a.CanOpen("scalp", 1000)
	assert.True(t, ok)

	// Dropping a bucket with an open position keeps it until it drains.
	a.UpdateProfiles([]Profile{{ID: "scalp", Name: "Scalp", Capital: 5000, MaxPositions: 2, MaxPositionPct: 50}})
	_, stillOpen := a.Tracked("AAPL")
	assert.True(t, stillOpen)

	_, err = a.Close("AAPL", 110, 0, t0.Add(time.Hour))
	require.NoError(t, err)
	a.UpdateProfiles([]Profile{{ID: "scalp", Name: "Scalp", Capital: 5000, MaxPositions: 2, MaxPositionPct: 50}})
	ok, _ = a.CanOpen("swing", 1000)
	assert.False(t, ok)
}
