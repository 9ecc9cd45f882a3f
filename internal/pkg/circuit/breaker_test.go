package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObserveTripsOnceAtLimit(t *testing.T) {
	var events []bool
	b := New(3.0, func(tripped bool, _ string) { events = append(events, tripped) })
	now := time.Now()

	assert.False(t, b.Observe(-1.2, now))
	assert.False(t, b.Tripped())

	assert.True(t, b.Observe(-3.1, now), "crossing the limit reports newly tripped")
	assert.True(t, b.Tripped())

	assert.False(t, b.Observe(-4.0, now), "already latched, not newly tripped")
	assert.Equal(t, []bool{true}, events)

	reason, at := b.Reason()
	assert.Contains(t, reason, "daily loss limit")
	assert.Equal(t, now, at)
}

func TestNoAutomaticRecovery(t *testing.T) {
	b := New(3.0, nil)
	now := time.Now()
	b.Observe(-3.5, now)

	// A later recovery in P&L must not clear the latch.
	assert.False(t, b.Observe(1.0, now.Add(time.Hour)))
	assert.True(t, b.Tripped())
}

func TestResetClearsLatch(t *testing.T) {
	var events []bool
	b := New(3.0, func(tripped bool, _ string) { events = append(events, tripped) })
	now := time.Now()

	b.Trip(now, "account blocked by brokerage")
	assert.True(t, b.Tripped())

	b.Reset()
	assert.False(t, b.Tripped())
	reason, at := b.Reason()
	assert.Empty(t, reason)
	assert.True(t, at.IsZero())
	assert.Equal(t, []bool{true, false}, events)

	// Reset on an untripped breaker is a no-op.
	b.Reset()
	assert.Equal(t, []bool{true, false}, events)
}
