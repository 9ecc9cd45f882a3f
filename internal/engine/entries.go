package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tiller/internal/allocator"
	"tiller/internal/audit"
	"tiller/internal/broker"
	"tiller/internal/logger"
	"tiller/internal/pkg/prices"
	"tiller/internal/risk"
	"tiller/internal/scorer"
)

// runEntries pulls ranked candidates and works down the list until buying
// power or bucket capital runs out.
func (e *Engine) runEntries(ctx context.Context, now time.Time, acct broker.AccountSnapshot, positions []broker.Position) {
	candidates, err := e.scr.RankedCandidates(ctx)
	if err != nil {
		logger.Warnf("engine: ranked candidates: %v", err)
		return
	}

	remaining := acct.BuyingPower
	for i, cand := range candidates {
		if !cand.PassesGate {
			continue
		}
		if prices.LT(remaining, cand.EntryPrice) {
			logger.Infof("engine: buying power exhausted, %d candidates unprocessed", len(candidates)-i)
			break
		}

		bucket, ok := e.routeBucket(cand)
		if !ok {
			continue
		}

		if cand.Qty <= 0 {
			cand.Qty = e.alloc.SizeFromRisk(bucket.ID, cand.EntryPrice, cand.StopLoss)
			if cand.Qty <= 0 {
				continue
			}
		}

		// The gate sizes against what is left after earlier fills this
		// cycle, not the stale start-of-cycle figure.
		acct.BuyingPower = remaining
		res := e.gate.Evaluate(now, e.breaker.Tripped(), cand, acct, positions)
		if res.TripsBreaker {
			e.breaker.Trip(now, res.Reasons[0])
			e.record(audit.KindHalt, "", res.Reasons[0])
			e.push(ctx, "Trading halted", res.Reasons[0])
			if skipped := len(candidates) - i - 1; skipped > 0 {
				e.record(audit.KindNote, "", fmt.Sprintf("%d candidates skipped, circuit breaker tripped mid-cycle", skipped))
			}
			return
		}
		if !res.Approved {
			e.record(audit.KindRejection, cand.Ticker, strings.Join(res.Reasons, "; "))
			continue
		}
		for _, adj := range res.Adjustments {
			e.record(audit.KindAdjustment, cand.Ticker,
				fmt.Sprintf("%s %.2f -> %.2f (%s)", adj.Field, adj.Old, adj.New, adj.Reason))
		}

		if spent, ok := e.submitEntry(ctx, now, bucket, res); ok {
			remaining -= spent
			positions = append(positions, broker.Position{
				Ticker:        res.Candidate.Ticker,
				Qty:           res.Candidate.Qty,
				Side:          broker.SideBuy,
				AvgEntryPrice: res.Candidate.EntryPrice,
				CurrentPrice:  res.Candidate.EntryPrice,
				MarketValue:   spent,
			})
		}
	}
}

// routeBucket picks the first bucket, in id order, whose profile accepts the
// candidate.
func (e *Engine) routeBucket(cand scorer.Candidate) (allocator.Profile, bool) {
	for _, p := range e.alloc.Profiles() {
		if cand.Score < p.MinScore {
			continue
		}
		if p.WhaleOnly && cand.Flow != scorer.FlowWhale {
			continue
		}
		if p.ETFOnly != cand.IsETF {
			continue
		}
		if !structureAllowed(p.AllowedStructures, cand.Structure) {
			continue
		}
		if ok, _ := e.alloc.CanOpen(p.ID, cand.Notional()); !ok {
			continue
		}
		return p, true
	}
	return allocator.Profile{}, false
}

// structureAllowed applies the bucket's structural-label filter. An empty
// list accepts everything; a restricted bucket never takes an unlabeled row.
func structureAllowed(allowed []string, structure string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, s := range allowed {
		if strings.EqualFold(s, structure) {
			return true
		}
	}
	return false
}

// submitEntry admits the position into its bucket, submits the order, and
// arms the trailing ratchet. A broker rejection unwinds the ledger entry.
func (e *Engine) submitEntry(ctx context.Context, now time.Time, bucket allocator.Profile, res risk.CheckResult) (float64, bool) {
	cand := res.Candidate
	pos, err := e.alloc.Open(bucket.ID, cand.Ticker, cand.Qty, cand.EntryPrice, now)
	if err != nil {
		e.record(audit.KindRejection, cand.Ticker, err.Error())
		return 0, false
	}

	order, err := e.brk.SubmitMarketOrder(ctx, cand.Ticker, cand.Qty, broker.SideBuy)
	if err != nil {
		// Unwind exactly the tranche just admitted; on a scale-in the
		// ticker's earlier tranches must stay untouched.
		if undoErr := e.alloc.Remove(pos.ID); undoErr != nil {
			logger.Errorf("engine: unwind ledger for %s: %v", cand.Ticker, undoErr)
		}
		if broker.IsRejection(err) {
			e.record(audit.KindRejection, cand.Ticker, "broker rejected: "+err.Error())
		} else {
			logger.Errorf("engine: submit %s: %v", cand.Ticker, err)
		}
		return 0, false
	}

	action := "entry"
	if res.Action == risk.ActionScaleIn {
		action = "scale-in"
	}
	if res.Action != risk.ActionScaleIn {
		cfg := e.registry.TrailConfig(bucket.TrailProfile)
		rec := e.book.Track(cand.Ticker, cand.EntryPrice, cfg, now)
		if rec.Stop < cand.StopLoss {
			// The scorer's stop is tighter than the profile's; keep it.
			rec.Stop = cand.StopLoss
			e.book.Restore(rec)
		}
		if e.trails != nil {
			if err := e.trails.SaveTrail(rec); err != nil {
				logger.Errorf("engine: persist trail %s: %v", rec.Ticker, err)
			}
		}
	}

	detail := fmt.Sprintf("%s %d @ %.2f in bucket %s (order %s, score %.0f)",
		action, cand.Qty, cand.EntryPrice, bucket.ID, order.ID, cand.Score)
	e.record(audit.KindEntry, cand.Ticker, detail)
	e.push(ctx, "Entry "+cand.Ticker, detail)
	return prices.Notional(cand.Qty, cand.EntryPrice), true
}
