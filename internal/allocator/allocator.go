// Package allocator subdivides the account into independent capital buckets,
// each with its own rule profile, and guarantees no bucket can exceed its
// own limits regardless of what the others do.
package allocator

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tiller/internal/logger"
	"tiller/internal/pkg/prices"
)

type Allocator struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	repo    Repository
}

// New builds an allocator over the given profiles, restoring any persisted
// ledger first. Profiles present in the restored state keep their live
// capital; new profiles start from their configured capital.
func New(profiles []Profile, repo Repository) (*Allocator, error) {
	a := &Allocator{buckets: make(map[string]*bucket), repo: repo}

	if repo != nil {
		state, ok, err := repo.Load()
		if err != nil {
			return nil, fmt.Errorf("allocator: load state: %w", err)
		}
		if ok {
			for id, b := range state.Buckets {
				a.buckets[id] = b
			}
		}
	}

	for _, p := range profiles {
		if existing, ok := a.buckets[p.ID]; ok {
			// Rules can change between runs; capital and history carry over.
			existing.Profile = p
			continue
		}
		a.buckets[p.ID] = &bucket{
			Profile:     p,
			Capital:     p.Capital,
			PeakCapital: p.Capital,
		}
	}
	return a, nil
}

// UpdateProfiles applies a hot-reloaded profile set. Existing buckets keep
// their capital and history and pick up the new rules; unseen profiles get
// fresh buckets. Buckets whose profile disappeared stay until their open
// positions drain, then get dropped.
func (a *Allocator) UpdateProfiles(profiles []Profile) {
	a.mu.Lock()
	defer a.mu.Unlock()

	seen := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		seen[p.ID] = true
		if existing, ok := a.buckets[p.ID]; ok {
			existing.Profile = p
			continue
		}
		a.buckets[p.ID] = &bucket{
			Profile:     p,
			Capital:     p.Capital,
			PeakCapital: p.Capital,
		}
		logger.Infof("allocator: new bucket %s ($%.0f)", p.ID, p.Capital)
	}
	for id, b := range a.buckets {
		if !seen[id] && len(b.Open) == 0 {
			delete(a.buckets, id)
			logger.Infof("allocator: retired bucket %s", id)
		}
	}
	a.persistLocked()
}

// CanOpen checks whether a bucket can absorb a new position of the given
// cost without breaching its count, capital or per-position limits.
func (a *Allocator) CanOpen(bucketID string, cost float64) (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canOpenLocked(bucketID, cost)
}

func (a *Allocator) canOpenLocked(bucketID string, cost float64) (bool, string) {
	b, ok := a.buckets[bucketID]
	if !ok {
		return false, fmt.Sprintf("unknown bucket %q", bucketID)
	}
	if b.Profile.MaxPositions > 0 && len(b.Open) >= b.Profile.MaxPositions {
		return false, fmt.Sprintf("bucket %s at max %d positions", bucketID, b.Profile.MaxPositions)
	}
	if prices.GT(cost, b.available()) {
		return false, fmt.Sprintf("bucket %s has $%.2f available, needs $%.2f", bucketID, b.available(), cost)
	}
	if b.Profile.MaxPositionPct > 0 {
		limit := b.Capital * b.Profile.MaxPositionPct / 100
		if prices.GT(cost, limit) {
			return false, fmt.Sprintf("cost $%.2f over bucket %s per-position cap $%.2f", cost, bucketID, limit)
		}
	}
	return true, ""
}

// Open admits a position into its bucket. It re-validates before mutating;
// on rejection the ledger is untouched.
func (a *Allocator) Open(bucketID, ticker string, qty int, entryPrice float64, now time.Time) (TrackedPosition, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cost := prices.Notional(qty, entryPrice)
	if ok, reason := a.canOpenLocked(bucketID, cost); !ok {
		return TrackedPosition{}, fmt.Errorf("allocator: open %s in %s: %s", ticker, bucketID, reason)
	}

	b := a.buckets[bucketID]
	pos := TrackedPosition{
		ID:           uuid.NewString(),
		BucketID:     bucketID,
		Ticker:       ticker,
		Qty:          qty,
		RemainingQty: qty,
		EntryPrice:   entryPrice,
		Cost:         cost,
		Status:       StatusOpen,
		OpenedAt:     now,
	}
	b.Open = append(b.Open, pos)
	b.TradeCount++
	a.persistLocked()
	logger.Infof("allocator: %s opened %d %s @ %.2f ($%.2f) in bucket %s", pos.ID[:8], qty, ticker, entryPrice, cost, bucketID)
	return pos, nil
}

// Remove deletes a single ledger entry by id as if Open had never happened.
// It exists for unwinding admissions whose order never reached the broker:
// no P&L is realized, nothing goes to history, and the trade count rolls
// back. With scale-ins a ticker can hold several tranches, so the unwind
// must target the exact entry Open returned rather than the ticker.
func (a *Allocator) Remove(positionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, b := range a.buckets {
		for i, p := range b.Open {
			if p.ID != positionID {
				continue
			}
			b.Open = append(b.Open[:i], b.Open[i+1:]...)
			b.TradeCount--
			a.persistLocked()
			logger.Infof("allocator: removed unfilled %s %s from bucket %s", p.ID[:8], p.Ticker, b.Profile.ID)
			return nil
		}
	}
	return fmt.Errorf("allocator: remove %s: not tracked", positionID)
}

// Close realizes P&L for up to qty shares of a ticker. qty <= 0 or beyond
// the remainder closes the whole position. The closed record moves to
// history on a full close; a partial close shrinks the remainder in place.
func (a *Allocator) Close(ticker string, exitPrice float64, qty int, now time.Time) (TrackedPosition, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, idx := a.findOpenLocked(ticker)
	if b == nil {
		return TrackedPosition{}, fmt.Errorf("allocator: close %s: not tracked", ticker)
	}
	pos := &b.Open[idx]

	closeQty := qty
	if closeQty <= 0 || closeQty >= pos.RemainingQty {
		closeQty = pos.RemainingQty
	}
	pnl := prices.Notional(closeQty, exitPrice) - prices.Notional(closeQty, pos.EntryPrice)
	pos.RealizedPnL += pnl
	b.RealizedPnL += pnl
	if b.Profile.Reinvest {
		b.Capital += pnl
	}

	var out TrackedPosition
	if closeQty == pos.RemainingQty {
		pos.RemainingQty = 0
		pos.Status = StatusClosed
		pos.ExitPrice = exitPrice
		pos.ClosedAt = now
		if pos.RealizedPnL > 0 {
			b.WinCount++
		}
		out = *pos
		b.History = append(b.History, out)
		b.Open = append(b.Open[:idx], b.Open[idx+1:]...)
	} else {
		pos.RemainingQty -= closeQty
		pos.Status = StatusPartial
		out = *pos
	}

	b.markCapital()
	a.persistLocked()
	logger.Infof("allocator: closed %d %s @ %.2f, pnl $%.2f, bucket %s capital $%.2f", closeQty, ticker, exitPrice, pnl, b.Profile.ID, b.Capital)
	return out, nil
}

// SizeFromRisk returns a share count bounded by both the bucket's
// per-position capital cap and its per-trade risk cap, floored at zero.
func (a *Allocator) SizeFromRisk(bucketID string, entryPrice, stopPrice float64) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buckets[bucketID]
	if !ok || entryPrice <= 0 {
		return 0
	}
	byCapital := math.MaxFloat64
	if b.Profile.MaxPositionPct > 0 {
		byCapital = b.Capital * b.Profile.MaxPositionPct / 100 / entryPrice
	}
	byRisk := math.MaxFloat64
	if dist := math.Abs(entryPrice - stopPrice); dist > 0 && b.Profile.MaxRiskPct > 0 {
		byRisk = b.Capital * b.Profile.MaxRiskPct / 100 / dist
	}
	limit := math.Min(byCapital, byRisk)
	if limit == math.MaxFloat64 || limit < 0 {
		return 0
	}
	return int(limit)
}

// TimeExits returns every open position held past its bucket's limit.
func (a *Allocator) TimeExits(now time.Time) []TrackedPosition {
	a.mu.Lock()
	defer a.mu.Unlock()

	var due []TrackedPosition
	for _, b := range a.buckets {
		if b.Profile.MaxHold <= 0 {
			continue
		}
		for _, p := range b.Open {
			if p.HeldFor(now) > b.Profile.MaxHold {
				due = append(due, p)
			}
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].OpenedAt.Before(due[j].OpenedAt) })
	return due
}

// Tracked returns the open ledger entry for a ticker, if any.
func (a *Allocator) Tracked(ticker string) (TrackedPosition, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, idx := a.findOpenLocked(ticker); b != nil {
		return b.Open[idx], true
	}
	return TrackedPosition{}, false
}

// OpenPositions returns every open entry across all buckets.
func (a *Allocator) OpenPositions() []TrackedPosition {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []TrackedPosition
	for _, b := range a.buckets {
		out = append(out, b.Open...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// Profiles returns the live profiles ordered by bucket id.
func (a *Allocator) Profiles() []Profile {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Profile, 0, len(a.buckets))
	for _, b := range a.buckets {
		out = append(out, b.Profile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Report summarizes every bucket for the admin API.
func (a *Allocator) Report() []BucketReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]BucketReport, 0, len(a.buckets))
	for id, b := range a.buckets {
		r := BucketReport{
			ID:          id,
			Name:        b.Profile.Name,
			Capital:     b.Capital,
			Deployed:    b.deployed(),
			Available:   b.available(),
			RealizedPnL: b.RealizedPnL,
			TradeCount:  b.TradeCount,
			WinCount:    b.WinCount,
			OpenCount:   len(b.Open),
			PeakCapital: b.PeakCapital,
			MaxDrawdown: b.MaxDrawdown,
		}
		closed := b.TradeCount - len(b.Open)
		if closed > 0 {
			r.WinRate = float64(b.WinCount) / float64(closed) * 100
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (a *Allocator) findOpenLocked(ticker string) (*bucket, int) {
	for _, b := range a.buckets {
		for i, p := range b.Open {
			if p.Ticker == ticker {
				return b, i
			}
		}
	}
	return nil, -1
}

func (a *Allocator) persistLocked() {
	if a.repo == nil {
		return
	}
	if err := a.repo.Save(State{Buckets: a.buckets}); err != nil {
		logger.Errorf("allocator: persist state: %v", err)
	}
}
