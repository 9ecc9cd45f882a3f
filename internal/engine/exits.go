package engine

import (
	"context"
	"fmt"
	"time"

	"tiller/internal/audit"
	"tiller/internal/broker"
	"tiller/internal/logger"
	"tiller/internal/strategy/breakdown"
	"tiller/internal/strategy/trail"
)

// runExits handles every way a position leaves the book. Exits always run
// before entries so freed capital and position slots are visible to the
// entry pass in the same cycle.
func (e *Engine) runExits(ctx context.Context, now time.Time, positions []broker.Position) {
	e.advanceTrails(ctx, now, positions)
	e.scoreExits(ctx, now, positions)
	e.timeExits(ctx, now)
	e.tickPattern(ctx, now)
}

// advanceTrails feeds current prices into the ratchet book and closes
// anything whose stop has been touched.
func (e *Engine) advanceTrails(ctx context.Context, now time.Time, positions []broker.Position) {
	for _, pos := range positions {
		price := pos.CurrentPrice
		if price <= 0 {
			var err error
			price, err = e.brk.GetLatestPrice(ctx, pos.Ticker)
			if err != nil {
				logger.Warnf("engine: no quote for %s: %v", pos.Ticker, err)
				continue
			}
		}

		rec, changes, tracked := e.book.Advance(pos.Ticker, price, now)
		if !tracked {
			continue
		}
		for _, ch := range changes {
			e.record(audit.KindStopMove, ch.Ticker, ch.String())
		}
		if len(changes) > 0 && e.trails != nil {
			if err := e.trails.SaveTrail(rec); err != nil {
				logger.Errorf("engine: persist trail %s: %v", rec.Ticker, err)
			}
		}

		if trail.StopHit(rec, price) {
			e.closePosition(ctx, now, pos.Ticker, price,
				fmt.Sprintf("stop %.2f hit at %.2f in phase %s", rec.Stop, price, rec.Phase))
		}
	}
}

// scoreExits closes holdings whose latest scored row lost its trend gate or
// fell under the owning bucket's score floor. A missing row is not an exit
// signal; the scanner may simply have rotated the ticker out of its output.
func (e *Engine) scoreExits(ctx context.Context, now time.Time, positions []broker.Position) {
	for _, pos := range positions {
		tracked, ok := e.alloc.Tracked(pos.Ticker)
		if !ok {
			continue
		}
		cand, found := e.scr.Lookup(pos.Ticker)
		if !found {
			continue
		}
		if !cand.PassesGate {
			e.closePosition(ctx, now, pos.Ticker, pos.CurrentPrice, "trend gate failed on latest scan")
			continue
		}
		if floor := e.bucketMinScore(tracked.BucketID); floor > 0 && cand.Score < floor {
			e.closePosition(ctx, now, pos.Ticker, pos.CurrentPrice,
				fmt.Sprintf("score %.1f fell under bucket %s floor %.1f", cand.Score, tracked.BucketID, floor))
		}
	}
}

func (e *Engine) bucketMinScore(bucketID string) float64 {
	for _, p := range e.alloc.Profiles() {
		if p.ID == bucketID {
			return p.MinScore
		}
	}
	return 0
}

func (e *Engine) timeExits(ctx context.Context, now time.Time) {
	for _, pos := range e.alloc.TimeExits(now) {
		price, err := e.brk.GetLatestPrice(ctx, pos.Ticker)
		if err != nil {
			logger.Warnf("engine: time exit %s, no quote: %v", pos.Ticker, err)
			continue
		}
		e.closePosition(ctx, now, pos.Ticker, price,
			fmt.Sprintf("held %s, past bucket %s limit", pos.HeldFor(now).Round(time.Minute), pos.BucketID))
	}
}

func (e *Engine) tickPattern(ctx context.Context, now time.Time) {
	if e.pattern == nil {
		return
	}
	status := e.pattern.Status()
	price, err := e.brk.GetLatestPrice(ctx, status.Ticker)
	if err != nil {
		logger.Warnf("engine: pattern quote %s: %v", status.Ticker, err)
		return
	}
	before := status.State
	if err := e.pattern.Tick(ctx, now, price); err != nil {
		logger.Errorf("engine: pattern tick: %v", err)
	}
	if after := e.pattern.State(); after != before {
		e.recordPatternTransition(ctx, before, after)
	}
}

func (e *Engine) recordPatternTransition(ctx context.Context, before, after breakdown.State) {
	status := e.pattern.Status()
	detail := fmt.Sprintf("pattern %s -> %s", before, after)
	switch after {
	case breakdown.StateEntered:
		detail = fmt.Sprintf("pattern entered %d shares at %.2f, stop %.2f, target %.2f",
			status.Qty, status.EntryPrice, status.StopPrice, status.TargetPrice)
		e.record(audit.KindEntry, status.Ticker, detail)
		e.push(ctx, "Breakdown entry "+status.Ticker, detail)
	case breakdown.StateExited:
		e.record(audit.KindExit, status.Ticker, detail)
		e.push(ctx, "Breakdown exit "+status.Ticker, detail)
	default:
		e.record(audit.KindNote, status.Ticker, detail)
	}
}

// closePosition sells the whole holding, settles the bucket ledger, and
// retires the trail record.
func (e *Engine) closePosition(ctx context.Context, now time.Time, ticker string, price float64, reason string) {
	if err := e.brk.ClosePosition(ctx, ticker); err != nil {
		// A rejection means the broker does not hold the position, so the
		// ledger entry is stale and gets settled below rather than retried
		// every cycle. Transient failures retry next cycle.
		if !broker.IsRejection(err) {
			logger.Errorf("engine: close %s: %v", ticker, err)
			return
		}
		logger.Warnf("engine: close %s rejected, settling ledger: %v", ticker, err)
	}
	e.dropTrail(ticker)

	// A scale-in leaves more than one ledger tranche under the same ticker;
	// settle them all.
	var pnl float64
	settled := 0
	for {
		if _, tracked := e.alloc.Tracked(ticker); !tracked {
			break
		}
		closed, err := e.alloc.Close(ticker, price, 0, now)
		if err != nil {
			logger.Warnf("engine: ledger close %s: %v", ticker, err)
			break
		}
		pnl += closed.RealizedPnL
		settled++
	}
	detail := fmt.Sprintf("closed at %.2f: %s", price, reason)
	if settled > 0 {
		detail = fmt.Sprintf("closed at %.2f, pnl $%.2f: %s", price, pnl, reason)
	}
	e.record(audit.KindExit, ticker, detail)
	e.push(ctx, "Exit "+ticker, detail)
}

// dropTrail retires a ticker's ratchet record in memory and in storage.
func (e *Engine) dropTrail(ticker string) {
	e.book.Drop(ticker)
	if e.trails != nil {
		if err := e.trails.DeleteTrail(ticker); err != nil {
			logger.Warnf("engine: delete trail %s: %v", ticker, err)
		}
	}
}
