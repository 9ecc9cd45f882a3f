// Package scheduler abstracts the loop cadence so the engine can be driven
// by wall-clock ticks in production and by hand in tests.
package scheduler

import "time"

// Ticker is the minimal tick source the engine consumes.
type Ticker interface {
	C() <-chan time.Time
	// Reset changes the cadence, used to slow the loop while the market
	// is closed.
	Reset(interval time.Duration)
	Stop()
}

// IntervalTicker wraps time.Ticker.
type IntervalTicker struct {
	t        *time.Ticker
	interval time.Duration
}

func NewIntervalTicker(interval time.Duration) *IntervalTicker {
	return &IntervalTicker{t: time.NewTicker(interval), interval: interval}
}

func (it *IntervalTicker) C() <-chan time.Time { return it.t.C }

func (it *IntervalTicker) Reset(interval time.Duration) {
	if interval == it.interval {
		return
	}
	it.interval = interval
	it.t.Reset(interval)
}

func (it *IntervalTicker) Stop() { it.t.Stop() }

// ManualTicker is driven by Tick calls, for deterministic engine tests.
type ManualTicker struct {
	ch       chan time.Time
	Interval time.Duration
}

func NewManualTicker() *ManualTicker {
	return &ManualTicker{ch: make(chan time.Time, 1)}
}

func (mt *ManualTicker) C() <-chan time.Time { return mt.ch }

func (mt *ManualTicker) Reset(interval time.Duration) { mt.Interval = interval }

func (mt *ManualTicker) Stop() {}

// Tick delivers one tick, blocking until the consumer takes it.
func (mt *ManualTicker) Tick(at time.Time) { mt.ch <- at }
