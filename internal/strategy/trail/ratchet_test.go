package trail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func TestInitGeometry(t *testing.T) {
	rec := Init("AAPL", 100, DefaultPhaseConfig(), t0)

	assert.Equal(t, 95.0, rec.Stop, "initial stop 5 percent below entry")
	assert.Equal(t, 103.0, rec.T1Target)
	assert.Equal(t, 106.0, rec.T2Target)
	assert.Equal(t, 112.0, rec.RunawayTrigger, "entry plus twice the T2 gain")
	assert.Equal(t, PhaseInitial, rec.Phase)
	assert.Equal(t, 100.0, rec.HighestPrice)
}

func TestBreakevenAtT1(t *testing.T) {
	rec := Init("AAPL", 100, DefaultPhaseConfig(), t0)

	rec, changes := Update(rec, 103.0, t0)
	assert.Equal(t, PhaseT1Hit, rec.Phase)
	assert.Equal(t, 100.20, rec.Stop, "breakeven plus 0.2 percent")
	require.Len(t, changes, 1)
	assert.Equal(t, "phase", changes[0].Kind)
	assert.Equal(t, 95.0, changes[0].OldStop)
	assert.Equal(t, 100.20, changes[0].NewStop)
}

func TestT2TrailsHalfTheGain(t *testing.T) {
	rec := Init("AAPL", 100, DefaultPhaseConfig(), t0)
	rec, _ = Update(rec, 103.0, t0)

	rec, _ = Update(rec, 106.0, t0)
	assert.Equal(t, PhaseT2Hit, rec.Phase)
	assert.Equal(t, 103.0, rec.Stop, "entry plus half of a 6 dollar gain")

	// High keeps rising inside T2_HIT, the trail floor follows it.
	rec, _ = Update(rec, 110.0, t0)
	assert.Equal(t, PhaseT2Hit, rec.Phase)
	assert.Equal(t, 105.0, rec.Stop)
}

func TestRunaway(t *testing.T) {
	rec := Init("AAPL", 100, DefaultPhaseConfig(), t0)
	rec, _ = Update(rec, 103.0, t0)
	rec, _ = Update(rec, 106.0, t0)

	rec, _ = Update(rec, 112.0, t0)
	assert.Equal(t, PhaseRunaway, rec.Phase)
	assert.Equal(t, 108.40, rec.Stop, "entry plus 70 percent of a 12 dollar gain")

	rec, _ = Update(rec, 120.0, t0)
	assert.Equal(t, 114.0, rec.Stop)
}

func TestGapClearsSeveralRungs(t *testing.T) {
	rec := Init("AAPL", 100, DefaultPhaseConfig(), t0)

	// A single print through every target settles in RUNAWAY, not T1_HIT.
	rec, changes := Update(rec, 115.0, t0)
	assert.Equal(t, PhaseRunaway, rec.Phase)
	assert.Equal(t, 110.50, rec.Stop)
	assert.GreaterOrEqual(t, len(changes), 3)
}

func TestStopNeverMovesDown(t *testing.T) {
	rec := Init("AAPL", 100, DefaultPhaseConfig(), t0)
	path := []float64{101, 103, 104, 106, 110, 104, 99, 112, 108, 120, 96}

	prev := rec.Stop
	for _, price := range path {
		rec, _ = Update(rec, price, t0)
		assert.GreaterOrEqual(t, rec.Stop, prev, "price %.2f", price)
		prev = rec.Stop
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	rec := Init("AAPL", 100, DefaultPhaseConfig(), t0)
	rec, _ = Update(rec, 106.0, t0)

	again, changes := Update(rec, 106.0, t0)
	assert.Equal(t, rec, again)
	assert.Empty(t, changes)
}

func TestFallingPriceEmitsNothing(t *testing.T) {
	rec := Init("AAPL", 100, DefaultPhaseConfig(), t0)

	next, changes := Update(rec, 98.0, t0)
	assert.Empty(t, changes)
	assert.Equal(t, rec.Stop, next.Stop)
	assert.Equal(t, 100.0, next.HighestPrice)
}

func TestStopHit(t *testing.T) {
	rec := Init("AAPL", 100, DefaultPhaseConfig(), t0)
	assert.False(t, StopHit(rec, 95.01))
	assert.True(t, StopHit(rec, 95.0))
	assert.True(t, StopHit(rec, 90.0))
}

func TestBookLifecycle(t *testing.T) {
	b := NewBook()
	b.Track("AAPL", 100, DefaultPhaseConfig(), t0)
	b.Track("MSFT", 400, DefaultPhaseConfig(), t0)

	rec, changes, ok := b.Advance("AAPL", 103.0, t0)
	require.True(t, ok)
	assert.Equal(t, PhaseT1Hit, rec.Phase)
	require.Len(t, changes, 1)

	_, _, ok = b.Advance("NVDA", 50.0, t0)
	assert.False(t, ok, "untracked ticker")

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "AAPL", snap[0].Ticker)

	b.Drop("AAPL")
	_, ok = b.Get("AAPL")
	assert.False(t, ok)
}
