// Package circuit implements a latching daily-loss breaker. Once tripped it
// stays tripped until an operator resets it; there is no automatic recovery.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// Breaker latches when the observed daily loss crosses the configured limit.
type Breaker struct {
	mu        sync.Mutex
	limitPct  float64 // positive number, e.g. 3.0 means halt at -3.0%
	tripped   bool
	reason    string
	trippedAt time.Time
	onChange  func(tripped bool, reason string)
}

// New builds a breaker that trips when daily P&L drops to -limitPct or below.
// onChange, if non-nil, fires on every trip and reset.
func New(limitPct float64, onChange func(tripped bool, reason string)) *Breaker {
	return &Breaker{limitPct: limitPct, onChange: onChange}
}

// Observe feeds the current daily P&L percentage (negative means a loss) and
// reports whether this observation newly tripped the breaker.
func (b *Breaker) Observe(dayPnLPct float64, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tripped {
		return false
	}
	if dayPnLPct <= -b.limitPct {
		b.trip(now, reasonFor(dayPnLPct, b.limitPct))
		return true
	}
	return false
}

// Trip latches the breaker for an external reason, e.g. the brokerage flagged
// the account as blocked.
func (b *Breaker) Trip(now time.Time, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tripped {
		return
	}
	b.trip(now, reason)
}

func (b *Breaker) trip(now time.Time, reason string) {
	b.tripped = true
	b.reason = reason
	b.trippedAt = now
	if b.onChange != nil {
		b.onChange(true, reason)
	}
}

// Reset clears the latch. Only operator action or the daily session rollover
// should call this.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.tripped {
		return
	}
	b.tripped = false
	b.reason = ""
	b.trippedAt = time.Time{}
	if b.onChange != nil {
		b.onChange(false, "")
	}
}

func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// Reason returns the trip reason and time, valid only while tripped.
func (b *Breaker) Reason() (string, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason, b.trippedAt
}

func reasonFor(dayPnLPct, limitPct float64) string {
	return fmt.Sprintf("daily loss limit reached: %.2f%% <= -%.2f%%", dayPnLPct, limitPct)
}
