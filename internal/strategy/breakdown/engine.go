// Package breakdown implements a single-instrument, session-scoped machine
// that trades the failed-breakdown pattern: price pierces a reference support
// level by a bounded amount, then reclaims it within a time window. Order
// routing goes through a narrow Executor port so the execution loop keeps
// ownership of every broker mutation.
package breakdown

import (
	"context"
	"fmt"
	"math"
	"time"

	"tiller/internal/logger"
	"tiller/internal/pkg/prices"
	"tiller/internal/session"
)

// Executor is the slice of order capability the machine needs. The execution
// loop implements it over the broker.
type Executor interface {
	BuyMarket(ctx context.Context, ticker string, qty int) (orderID string, err error)
	SellMarket(ctx context.Context, ticker string, qty int) (orderID string, err error)
	SellLimit(ctx context.Context, ticker string, qty int, limitPrice float64) (orderID string, err error)
	SellTrailing(ctx context.Context, ticker string, qty int, trailAmount float64) (orderID string, err error)
	Cancel(ctx context.Context, orderID string) error
	OrderFilled(ctx context.Context, orderID string) (bool, error)
}

// Params sets the pattern geometry in instrument points.
type Params struct {
	Ticker          string
	NearLevelBuffer float64 // within this of the reference low counts as near
	MinFlush        float64 // smaller pierces are noise
	DeepThreshold   float64 // flush at or beyond this is "deep"
	MaxFlush        float64 // beyond this the breakdown is genuine, stand down
	StopBuffer      float64 // stop sits this far under the flush low
	RipThreshold    float64 // this far above the flush low with no reclaim counts as acceptance
	MinRewardRisk   float64
	Tier1ExitPct    float64 // fraction of shares sold at the first target
	Tier1TargetMult float64 // target = entry + mult * risk
	RiskPerTrade    float64 // dollars risked per entry

	AcceptanceShallow int           // confirming bars for a shallow flush
	AcceptanceDeep    int           // confirming bars for a deep flush
	AcceptanceBar     time.Duration // bar length for acceptance counting

	MaxTradesPerDay int
}

func DefaultParams(ticker string) Params {
	return Params{
		Ticker:            ticker,
		NearLevelBuffer:   2.00,
		MinFlush:          1.00,
		DeepThreshold:     3.00,
		MaxFlush:          8.00,
		StopBuffer:        0.50,
		RipThreshold:      5.00,
		MinRewardRisk:     2.0,
		Tier1ExitPct:      0.75,
		Tier1TargetMult:   2.0,
		RiskPerTrade:      500,
		AcceptanceShallow: 2,
		AcceptanceDeep:    12,
		AcceptanceBar:     time.Minute,
		MaxTradesPerDay:   2,
	}
}

// Engine is not safe for concurrent use; the execution loop ticks it from a
// single goroutine.
type Engine struct {
	params Params
	clock  *session.Clock
	exec   Executor

	state  State
	refLow float64

	flushLow       float64
	acceptCount    int
	acceptRequired int
	lastAcceptBar  time.Time

	entryPrice    float64
	stopPrice     float64
	targetPrice   float64
	qty           int
	runnerQty     int
	targetOrderID string
	trailOrderID  string

	tradesToday int
	fatalToday  bool
}

func NewEngine(params Params, clock *session.Clock, exec Executor) *Engine {
	return &Engine{params: params, clock: clock, exec: exec, state: StateIdle}
}

// SetReferenceLevel installs the support level the machine watches. Changing
// it mid-pattern resets to IDLE.
func (e *Engine) SetReferenceLevel(low float64) {
	if e.state != StateIdle && e.state != StateEntered && e.state != StateTier1Hit {
		e.reset("reference level changed")
	}
	e.refLow = low
}

// ResetDaily clears session counters at the day rollover.
func (e *Engine) ResetDaily() {
	e.tradesToday = 0
	e.fatalToday = false
	if e.state != StateEntered && e.state != StateTier1Hit {
		e.reset("new session")
	}
}

func (e *Engine) State() State { return e.state }

func (e *Engine) Status() Status {
	return Status{
		Ticker:         e.params.Ticker,
		State:          e.state,
		ReferenceLow:   e.refLow,
		FlushLow:       e.flushLow,
		AcceptCount:    e.acceptCount,
		AcceptRequired: e.acceptRequired,
		EntryPrice:     e.entryPrice,
		StopPrice:      e.stopPrice,
		TargetPrice:    e.targetPrice,
		Qty:            e.qty,
		RunnerQty:      e.runnerQty,
		TradesToday:    e.tradesToday,
		FatalToday:     e.fatalToday,
	}
}

// Tick advances the machine one observation. Broker failures inside a tick
// reset the machine to IDLE rather than leaving partial state behind.
func (e *Engine) Tick(ctx context.Context, now time.Time, price float64) error {
	if e.refLow <= 0 {
		return nil
	}

	// Positions are managed regardless of the session window; only fresh
	// pattern-watching stops outside it.
	switch e.state {
	case StateEntered, StateTier1Hit:
		return e.manage(ctx, now, price)
	case StateExited:
		e.reset("pattern complete")
		return nil
	}

	if e.clock != nil && !e.clock.BreakdownEntryAllowed(now) {
		if e.state != StateIdle {
			e.reset("outside entry window")
		}
		return nil
	}
	if e.fatalToday || (e.params.MaxTradesPerDay > 0 && e.tradesToday >= e.params.MaxTradesPerDay) {
		return nil
	}

	switch e.state {
	case StateIdle:
		if prices.LTE(price, e.refLow+e.params.NearLevelBuffer) {
			e.state = StateNearLevel
			logger.Debugf("breakdown: %s near level %.2f at %.2f", e.params.Ticker, e.refLow, price)
		}
	case StateNearLevel:
		e.tickNearLevel(price)
	case StateFlushDetected:
		// The flush is on record; from here the machine counts reclaims.
		e.state = StateAcceptanceWait
		return e.tickAcceptance(ctx, now, price)
	case StateAcceptanceWait:
		return e.tickAcceptance(ctx, now, price)
	}
	return nil
}

func (e *Engine) tickNearLevel(price float64) {
	if prices.GT(price, e.refLow+e.params.NearLevelBuffer) {
		e.reset("drifted away from level")
		return
	}
	flush := e.refLow - price
	if prices.LT(flush, e.params.MinFlush) {
		return
	}
	if prices.GT(flush, e.params.MaxFlush) {
		e.reset(fmt.Sprintf("flush %.2f beyond max, genuine breakdown", flush))
		return
	}
	e.flushLow = price
	e.acceptCount = 0
	e.lastAcceptBar = time.Time{}
	if prices.GTE(flush, e.params.DeepThreshold) {
		e.acceptRequired = e.params.AcceptanceDeep
	} else {
		e.acceptRequired = e.params.AcceptanceShallow
	}
	e.state = StateFlushDetected
	logger.Infof("breakdown: %s flushed %.2f under %.2f, waiting for %d confirming bars", e.params.Ticker, flush, e.refLow, e.acceptRequired)
}

func (e *Engine) tickAcceptance(ctx context.Context, now time.Time, price float64) error {
	if prices.LT(price, e.flushLow) {
		e.flushLow = price
		if prices.GT(e.refLow-e.flushLow, e.params.MaxFlush) {
			e.reset("flush deepened beyond max while unconfirmed")
			return nil
		}
	}

	// A rip well clear of the flush low without a clean reclaim sequence is
	// treated as acceptance in its own right.
	if prices.GTE(price, e.flushLow+e.params.RipThreshold) {
		logger.Infof("breakdown: %s ripped %.2f off the flush low, accepting immediately", e.params.Ticker, price-e.flushLow)
		return e.enter(ctx, now, price)
	}

	if prices.GT(price, e.refLow) {
		// Confirmations count once per bar so poll cadence cannot change
		// how fast acceptance accrues.
		bar := now.Truncate(e.params.AcceptanceBar)
		if !bar.Equal(e.lastAcceptBar) {
			e.lastAcceptBar = bar
			e.acceptCount++
			logger.Debugf("breakdown: %s acceptance %d/%d", e.params.Ticker, e.acceptCount, e.acceptRequired)
		}
		if e.acceptCount >= e.acceptRequired {
			return e.enter(ctx, now, price)
		}
	}
	return nil
}

func (e *Engine) enter(ctx context.Context, now time.Time, price float64) error {
	stop := prices.RoundCents(e.flushLow - e.params.StopBuffer)
	risk := price - stop
	if risk <= 0 {
		e.reset("no stop distance at entry price")
		return nil
	}
	target := prices.MulFrac(price, risk, e.params.Tier1TargetMult)
	if (target-price)/risk < e.params.MinRewardRisk {
		e.reset(fmt.Sprintf("reward:risk %.2f below %.2f", (target-price)/risk, e.params.MinRewardRisk))
		return nil
	}
	qty := int(e.params.RiskPerTrade / risk)
	if qty <= 0 {
		e.reset("risk budget too small for one share")
		return nil
	}

	entryID, err := e.exec.BuyMarket(ctx, e.params.Ticker, qty)
	if err != nil {
		e.reset("entry submission failed")
		return fmt.Errorf("breakdown: enter %s: %w", e.params.Ticker, err)
	}
	if entryID == "" {
		// Shares may be live with no handle to manage them by. Do not
		// retry blind for the rest of the session.
		e.fatalToday = true
		e.reset("entry filled without an order id")
		return fmt.Errorf("breakdown: enter %s: no order id returned", e.params.Ticker)
	}

	tier1 := int(math.Round(float64(qty) * e.params.Tier1ExitPct))
	if tier1 <= 0 {
		tier1 = qty
	}
	targetID, err := e.exec.SellLimit(ctx, e.params.Ticker, tier1, target)
	if err != nil {
		// Unwind the fill rather than carry an unprotected position.
		if _, closeErr := e.exec.SellMarket(ctx, e.params.Ticker, qty); closeErr != nil {
			logger.Errorf("breakdown: %s unwind after failed target submit: %v", e.params.Ticker, closeErr)
		}
		e.reset("target submission failed")
		return fmt.Errorf("breakdown: target %s: %w", e.params.Ticker, err)
	}

	e.entryPrice = price
	e.stopPrice = stop
	e.targetPrice = target
	e.qty = qty
	e.runnerQty = qty - tier1
	e.targetOrderID = targetID
	e.trailOrderID = ""
	e.tradesToday++
	e.state = StateEntered
	logger.Infof("breakdown: %s entered %d @ %.2f, stop %.2f, target %.2f x%d", e.params.Ticker, qty, price, stop, target, tier1)
	return nil
}

func (e *Engine) manage(ctx context.Context, now time.Time, price float64) error {
	if e.clock != nil && e.clock.ForceExitDue(now) {
		return e.ForceExit(ctx, "end-of-day cutoff")
	}

	if prices.LTE(price, e.stopPrice) {
		return e.exitAtStop(ctx)
	}

	switch e.state {
	case StateEntered:
		filled, err := e.exec.OrderFilled(ctx, e.targetOrderID)
		if err != nil {
			return fmt.Errorf("breakdown: poll target %s: %w", e.targetOrderID, err)
		}
		if !filled {
			return nil
		}
		e.targetOrderID = ""
		if e.runnerQty <= 0 {
			e.state = StateExited
			logger.Infof("breakdown: %s target filled, no runner, flat", e.params.Ticker)
			return nil
		}
		trail := e.entryPrice - e.stopPrice
		trailID, err := e.exec.SellTrailing(ctx, e.params.Ticker, e.runnerQty, trail)
		if err != nil {
			if _, closeErr := e.exec.SellMarket(ctx, e.params.Ticker, e.runnerQty); closeErr != nil {
				logger.Errorf("breakdown: %s unwind runner: %v", e.params.Ticker, closeErr)
			}
			e.state = StateExited
			return fmt.Errorf("breakdown: trail %s: %w", e.params.Ticker, err)
		}
		e.trailOrderID = trailID
		e.state = StateTier1Hit
		logger.Infof("breakdown: %s tier1 filled, trailing %d by %.2f", e.params.Ticker, e.runnerQty, trail)
	case StateTier1Hit:
		filled, err := e.exec.OrderFilled(ctx, e.trailOrderID)
		if err != nil {
			return fmt.Errorf("breakdown: poll trail %s: %w", e.trailOrderID, err)
		}
		if filled {
			e.state = StateExited
			logger.Infof("breakdown: %s runner trailed out, flat", e.params.Ticker)
		}
	}
	return nil
}

func (e *Engine) exitAtStop(ctx context.Context) error {
	remaining := e.qty
	if e.state == StateTier1Hit {
		remaining = e.runnerQty
	}
	if e.targetOrderID != "" {
		if err := e.exec.Cancel(ctx, e.targetOrderID); err != nil {
			logger.Warnf("breakdown: %s cancel target: %v", e.params.Ticker, err)
		}
		e.targetOrderID = ""
	}
	if e.trailOrderID != "" {
		if err := e.exec.Cancel(ctx, e.trailOrderID); err != nil {
			logger.Warnf("breakdown: %s cancel trail: %v", e.params.Ticker, err)
		}
		e.trailOrderID = ""
	}
	if remaining > 0 {
		if _, err := e.exec.SellMarket(ctx, e.params.Ticker, remaining); err != nil {
			e.state = StateExited
			return fmt.Errorf("breakdown: stop out %s: %w", e.params.Ticker, err)
		}
	}
	e.state = StateExited
	logger.Infof("breakdown: %s stopped out, sold %d", e.params.Ticker, remaining)
	return nil
}

// ForceExit flattens any open pattern position and cancels resting orders,
// used at the session cutoff and during shutdown.
func (e *Engine) ForceExit(ctx context.Context, reason string) error {
	if e.state != StateEntered && e.state != StateTier1Hit {
		return nil
	}
	logger.Infof("breakdown: %s force exit (%s)", e.params.Ticker, reason)
	return e.exitAtStop(ctx)
}

func (e *Engine) reset(reason string) {
	if e.state != StateIdle {
		logger.Debugf("breakdown: %s reset to idle (%s)", e.params.Ticker, reason)
	}
	e.state = StateIdle
	e.flushLow = 0
	e.acceptCount = 0
	e.acceptRequired = 0
	e.lastAcceptBar = time.Time{}
	e.entryPrice = 0
	e.stopPrice = 0
	e.targetPrice = 0
	e.qty = 0
	e.runnerQty = 0
	e.targetOrderID = ""
	e.trailOrderID = ""
}
