// Package engine runs the trading cycle: refresh broker state, advance the
// circuit breaker, run every exit before any entry, then route approved
// candidates into bucket capital and broker orders.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"tiller/internal/allocator"
	"tiller/internal/audit"
	"tiller/internal/broker"
	"tiller/internal/notifier"
	"tiller/internal/pkg/circuit"
	"tiller/internal/profile"
	"tiller/internal/risk"
	"tiller/internal/scheduler"
	"tiller/internal/scorer"
	"tiller/internal/strategy/breakdown"
	"tiller/internal/strategy/trail"
)

// TrailStore persists ratchet records across restarts.
type TrailStore interface {
	SaveTrail(trail.Record) error
	DeleteTrail(ticker string) error
	LoadTrails() ([]trail.Record, error)
}

// Options carries the loop's own knobs; strategy parameters live with their
// components.
type Options struct {
	Interval       time.Duration
	ClosedInterval time.Duration
	StaleOrderAge  time.Duration
	MaxBackoff     time.Duration
}

type Engine struct {
	opts        Options
	brk         broker.Broker
	scr         scorer.Scorer
	gate        *risk.Gate
	book        *trail.Book
	alloc       *allocator.Allocator
	breaker     *circuit.Breaker
	ticker      scheduler.Ticker
	recorder    audit.Recorder
	notify      notifier.Notifier
	registry    *profile.Registry
	trails      TrailStore
	pattern     *breakdown.Engine
	patternExec *PatternExecutor

	retry *backoff.Backoff
	nowFn func() time.Time

	mu          sync.RWMutex
	lastAccount broker.AccountSnapshot
	lastHealth  []string
	lastCycleAt time.Time
}

func New(opts Options, brk broker.Broker, scr scorer.Scorer, gate *risk.Gate, book *trail.Book,
	alloc *allocator.Allocator, breaker *circuit.Breaker, ticker scheduler.Ticker,
	recorder audit.Recorder, notify notifier.Notifier, registry *profile.Registry, trails TrailStore,
	pattern *breakdown.Engine, patternExec *PatternExecutor) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.ClosedInterval <= 0 {
		opts.ClosedInterval = 5 * time.Minute
	}
	if opts.StaleOrderAge <= 0 {
		opts.StaleOrderAge = 10 * time.Minute
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 2 * time.Minute
	}
	return &Engine{
		opts:        opts,
		brk:         brk,
		scr:         scr,
		gate:        gate,
		book:        book,
		alloc:       alloc,
		breaker:     breaker,
		ticker:      ticker,
		recorder:    recorder,
		notify:      notify,
		registry:    registry,
		trails:      trails,
		pattern:     pattern,
		patternExec: patternExec,
		retry: &backoff.Backoff{
			Min:    opts.Interval,
			Max:    opts.MaxBackoff,
			Factor: 2,
			Jitter: true,
		},
		nowFn: time.Now,
	}
}

// Halted reports the breaker latch, for the gate input and the admin API.
func (e *Engine) Halted() bool { return e.breaker.Tripped() }

// ResumeTrading clears the halt on explicit operator request.
func (e *Engine) ResumeTrading(operator string) {
	e.breaker.Reset()
	e.record(audit.KindResume, "", "trading resumed by operator "+operator)
}

// ResetDaily rolls session-scoped state at the configured boundary: the
// halt latch, the pattern machine's trade counters.
func (e *Engine) ResetDaily() {
	e.breaker.Reset()
	if e.pattern != nil {
		e.pattern.ResetDaily()
	}
	e.record(audit.KindNote, "", "daily session reset")
}

// Account returns the last refreshed snapshot.
func (e *Engine) Account() broker.AccountSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastAccount
}

// Health returns the warnings from the last portfolio health pass.
func (e *Engine) Health() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.lastHealth...)
}

// LastCycleAt reports when a cycle last completed.
func (e *Engine) LastCycleAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastCycleAt
}

// PatternStatus exposes the breakdown machine for the admin API.
func (e *Engine) PatternStatus() (breakdown.Status, bool) {
	if e.pattern == nil {
		return breakdown.Status{}, false
	}
	return e.pattern.Status(), true
}

func (e *Engine) record(kind audit.Kind, ticker, detail string) {
	if e.recorder == nil {
		return
	}
	e.recorder.Record(audit.NewEvent(kind, ticker, detail, e.nowFn()))
}

func (e *Engine) push(ctx context.Context, title, body string) {
	if e.notify == nil {
		return
	}
	// Delivery failures are logged by the notifier itself.
	_ = e.notify.Notify(ctx, title, body)
}
