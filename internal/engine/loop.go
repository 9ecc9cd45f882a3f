package engine

import (
	"context"
	"fmt"
	"time"

	"tiller/internal/audit"
	"tiller/internal/broker"
	"tiller/internal/logger"
)

// Run drives the cycle until the context is cancelled, then winds the book
// down: resting orders are cancelled and a final snapshot is logged.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.restore(); err != nil {
		return err
	}
	e.reconcile(ctx)
	e.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()
		case <-e.ticker.C():
			e.cycle(ctx)
		}
	}
}

// restore reloads persisted ratchet records so stops keep their levels
// across a restart.
func (e *Engine) restore() error {
	if e.trails == nil {
		return nil
	}
	records, err := e.trails.LoadTrails()
	if err != nil {
		return fmt.Errorf("engine: restore trail records: %w", err)
	}
	for _, rec := range records {
		e.book.Restore(rec)
	}
	if len(records) > 0 {
		logger.Infof("engine: restored %d trailing-stop records", len(records))
	}
	return nil
}

// reconcile squares the restored ledger and trail book with what the broker
// actually holds. A position closed broker-side while the process was down
// would otherwise sit in its bucket consuming capital forever.
func (e *Engine) reconcile(ctx context.Context) {
	positions, err := e.brk.GetPositions(ctx)
	if err != nil {
		logger.Warnf("engine: reconcile skipped, positions unavailable: %v", err)
		return
	}
	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[p.Ticker] = true
	}

	now := e.nowFn()
	done := make(map[string]bool)
	for _, pos := range e.alloc.OpenPositions() {
		if held[pos.Ticker] || done[pos.Ticker] {
			continue
		}
		done[pos.Ticker] = true

		// Best effort on the settlement price; the actual exit price is
		// lost with the fill we never saw.
		price, err := e.brk.GetLatestPrice(ctx, pos.Ticker)
		if err != nil {
			price = pos.EntryPrice
		}
		var pnl float64
		for {
			if _, tracked := e.alloc.Tracked(pos.Ticker); !tracked {
				break
			}
			closed, err := e.alloc.Close(pos.Ticker, price, 0, now)
			if err != nil {
				logger.Warnf("engine: reconcile ledger %s: %v", pos.Ticker, err)
				break
			}
			pnl += closed.RealizedPnL
		}
		e.dropTrail(pos.Ticker)
		detail := fmt.Sprintf("settled at %.2f, pnl $%.2f: broker no longer holds the position", price, pnl)
		logger.Warnf("engine: reconcile %s: %s", pos.Ticker, detail)
		e.record(audit.KindExit, pos.Ticker, detail)
	}

	for _, rec := range e.book.Snapshot() {
		if held[rec.Ticker] {
			continue
		}
		e.dropTrail(rec.Ticker)
		logger.Infof("engine: reconcile %s: trail record retired, no broker position", rec.Ticker)
	}
}

func (e *Engine) cycle(ctx context.Context) {
	now := e.nowFn()

	acct, err := e.brk.GetAccount(ctx)
	if err != nil {
		e.backOff("account refresh", err)
		return
	}
	positions, err := e.brk.GetPositions(ctx)
	if err != nil {
		e.backOff("position refresh", err)
		return
	}
	e.retry.Reset()

	e.mu.Lock()
	e.lastAccount = acct
	e.lastCycleAt = now
	e.mu.Unlock()

	// Circuit breaker first: a halt set this cycle still lets exit logic
	// run below, it only blocks entries.
	if e.breaker.Observe(acct.DayPnLPct, now) {
		detail := fmt.Sprintf("daily P&L %.2f%%, halting entries for the session", acct.DayPnLPct)
		e.record(audit.KindHalt, "", detail)
		e.push(ctx, "Trading halted", detail)
	}
	if acct.TradingBlocked && !e.breaker.Tripped() {
		e.breaker.Trip(now, "account flagged trading-blocked by brokerage")
		e.record(audit.KindHalt, "", "brokerage reports trading blocked")
	}

	e.runExits(ctx, now, positions)

	open, err := e.brk.IsMarketOpen(ctx)
	if err != nil {
		e.backOff("market clock", err)
		return
	}
	if !open {
		e.ticker.Reset(e.opts.ClosedInterval)
		return
	}
	e.ticker.Reset(e.opts.Interval)

	if !e.breaker.Tripped() {
		e.runEntries(ctx, now, acct, positions)
	}

	e.cancelStaleOrders(ctx, now)

	health := e.gate.Health(acct, positions)
	e.mu.Lock()
	e.lastHealth = health
	e.mu.Unlock()
	for _, w := range health {
		logger.Warnf("health: %s", w)
	}
}

// backOff stretches the tick interval after a transient failure so a flaky
// broker connection is not hammered.
func (e *Engine) backOff(op string, err error) {
	d := e.retry.Duration()
	if broker.IsTransient(err) {
		logger.Warnf("engine: %s failed, next attempt in %s: %v", op, d, err)
	} else {
		logger.Errorf("engine: %s failed, next attempt in %s: %v", op, d, err)
	}
	e.ticker.Reset(d)
}

// shutdown cancels every resting order and flattens the pattern position.
// Regular positions stay open; their stops are persisted and the broker
// keeps working them.
func (e *Engine) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if e.pattern != nil {
		if err := e.pattern.ForceExit(ctx, "shutdown"); err != nil {
			logger.Errorf("engine: pattern force exit: %v", err)
		}
	}

	orders, err := e.brk.GetOpenOrders(ctx)
	if err != nil {
		logger.Errorf("engine: list open orders at shutdown: %v", err)
		return
	}
	for _, o := range orders {
		if err := e.brk.CancelOrder(ctx, o.ID); err != nil {
			logger.Errorf("engine: cancel %s at shutdown: %v", o.ID, err)
			continue
		}
		e.record(audit.KindCancel, o.Ticker, "cancelled at shutdown: "+o.ID)
	}

	acct := e.Account()
	snapshot := fmt.Sprintf(
		"equity=%.2f cash=%.2f day_pnl=%.2f%% halted=%v open_orders_cancelled=%d",
		acct.Equity, acct.Cash, acct.DayPnLPct, e.breaker.Tripped(), len(orders))
	logger.InfoBlock("shutdown snapshot\n" + snapshot)
	e.push(ctx, "Shutdown", snapshot)
}

func (e *Engine) cancelStaleOrders(ctx context.Context, now time.Time) {
	orders, err := e.brk.GetOpenOrders(ctx)
	if err != nil {
		logger.Warnf("engine: list open orders: %v", err)
		return
	}
	for _, o := range orders {
		if o.SubmittedAt.IsZero() || now.Sub(o.SubmittedAt) < e.opts.StaleOrderAge {
			continue
		}
		if e.patternExec != nil && e.patternExec.owns(o.ID) {
			continue
		}
		if err := e.brk.CancelOrder(ctx, o.ID); err != nil {
			logger.Warnf("engine: cancel stale %s: %v", o.ID, err)
			continue
		}
		e.record(audit.KindCancel, o.Ticker, fmt.Sprintf("stale order %s cancelled after %s", o.ID, now.Sub(o.SubmittedAt).Round(time.Second)))
	}
}
