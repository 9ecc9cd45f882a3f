// Package risk implements the pre-trade gate. Evaluate is pure over the
// snapshots it is handed: it performs no I/O and never mutates its inputs,
// which keeps every check replayable in tests.
package risk

import (
	"fmt"
	"math"
	"time"

	"tiller/internal/broker"
	"tiller/internal/logger"
	"tiller/internal/pkg/prices"
	"tiller/internal/scorer"
	"tiller/internal/session"
)

type Config struct {
	DailyLossHaltPct     float64 // halt when day P&L <= -this
	MaxPositions         int
	MaxPositionPctEquity float64 // per-position cap as % of equity
	MaxPositionDollars   float64 // per-position absolute dollar cap
	ScaleInThresholdPct  float64 // scale in only while exposure < this % of the cap
	DefaultStopPct       float64 // auto stop distance when the scorer gave none
	BuyingPowerFrac      float64 // fraction of buying power usable after a shrink
	MinNotional          float64 // reject positions smaller than this
	MaxSectorPct         float64 // sector exposure cap as % of equity, 0 disables
}

func DefaultConfig() Config {
	return Config{
		DailyLossHaltPct:     3.0,
		MaxPositions:         8,
		MaxPositionPctEquity: 10.0,
		MaxPositionDollars:   25000,
		ScaleInThresholdPct:  60.0,
		DefaultStopPct:       5.0,
		BuyingPowerFrac:      0.95,
		MinNotional:          500,
		MaxSectorPct:         30.0,
	}
}

// Gate runs the ordered pre-trade checks. SectorOf maps a held ticker to its
// sector for the exposure check; when nil the gate falls back to treating
// unknown holdings as outside every sector.
type Gate struct {
	cfg      Config
	clock    *session.Clock
	sectorOf func(ticker string) string
}

func NewGate(cfg Config, clock *session.Clock, sectorOf func(string) string) *Gate {
	return &Gate{cfg: cfg, clock: clock, sectorOf: sectorOf}
}

// Evaluate runs every check in order, short-circuiting on the first
// rejection. halted is the latched circuit-breaker state owned by the
// execution loop.
func (g *Gate) Evaluate(now time.Time, halted bool, cand scorer.Candidate, acct broker.AccountSnapshot, positions []broker.Position) CheckResult {
	res := CheckResult{Approved: true, Action: ActionEnter, Candidate: cand}

	// 1. Latched halt.
	if halted {
		res.reject("trading halted by daily-loss circuit breaker")
		return res
	}

	// 2. Daily loss limit. The gate only reports the trip; the loop owns
	// the breaker state.
	if acct.DayPnLPct <= -g.cfg.DailyLossHaltPct {
		res.TripsBreaker = true
		res.reject(fmt.Sprintf("daily P&L %.2f%% breaches -%.2f%% halt threshold", acct.DayPnLPct, g.cfg.DailyLossHaltPct))
		return res
	}

	// 3. Brokerage-side block.
	if acct.TradingBlocked {
		res.reject("account flagged trading-blocked by brokerage")
		return res
	}

	held, holding := findPosition(positions, cand.Ticker)

	// 4. Position count cap applies to fresh entries only.
	if !holding && g.cfg.MaxPositions > 0 && len(positions) >= g.cfg.MaxPositions {
		res.reject(fmt.Sprintf("open positions %d at max %d", len(positions), g.cfg.MaxPositions))
		return res
	}

	perPositionCap := g.positionCap(acct.Equity)

	// 5. Already held: scale in while exposure is well under the cap,
	// otherwise reject.
	if holding {
		threshold := perPositionCap * g.cfg.ScaleInThresholdPct / 100
		if prices.GTE(held.MarketValue, threshold) {
			res.reject(fmt.Sprintf("%s exposure $%.2f already at %.0f%%+ of per-position cap", cand.Ticker, held.MarketValue, g.cfg.ScaleInThresholdPct))
			return res
		}
		res.Action = ActionScaleIn
	}

	// 6. Per-position size cap. A scale-in only gets the headroom left
	// under the cap.
	capLeft := perPositionCap
	if holding {
		capLeft = perPositionCap - held.MarketValue
	}
	if prices.GT(res.Candidate.Notional(), capLeft) {
		allowed := int(capLeft / cand.EntryPrice)
		if allowed <= 0 {
			res.reject(fmt.Sprintf("per-position cap $%.2f leaves no room at $%.2f/share", capLeft, cand.EntryPrice))
			return res
		}
		old := float64(res.Candidate.Qty)
		res.Candidate.Qty = allowed
		res.adjust("qty", old, float64(allowed), fmt.Sprintf("shrunk to fit per-position cap $%.2f", capLeft))
	}

	// 7. Entries never go out without a stop.
	if res.Candidate.StopLoss <= 0 {
		stop := prices.PctBelow(cand.EntryPrice, g.cfg.DefaultStopPct)
		res.Candidate.StopLoss = stop
		res.adjust("stop_loss", 0, stop, fmt.Sprintf("auto stop %.1f%% below entry", g.cfg.DefaultStopPct))
	}

	// 8. Buying power: shrink to a safe fraction of what cash allows.
	if prices.GT(res.Candidate.Notional(), acct.BuyingPower) {
		allowed := int(acct.BuyingPower * g.cfg.BuyingPowerFrac / cand.EntryPrice)
		if allowed <= 0 {
			res.reject(fmt.Sprintf("buying power $%.2f cannot cover a single share at $%.2f", acct.BuyingPower, cand.EntryPrice))
			return res
		}
		old := float64(res.Candidate.Qty)
		res.Candidate.Qty = allowed
		res.adjust("qty", old, float64(allowed), fmt.Sprintf("shrunk to %.0f%% of $%.2f buying power", g.cfg.BuyingPowerFrac*100, acct.BuyingPower))
	}

	// 9. Position floor.
	if prices.LT(res.Candidate.Notional(), g.cfg.MinNotional) {
		res.reject(fmt.Sprintf("final notional $%.2f below $%.2f floor", res.Candidate.Notional(), g.cfg.MinNotional))
		return res
	}

	// 10. Session entry window.
	if g.clock != nil {
		if ok, reason := g.clock.EntryWindowOpen(now); !ok {
			res.reject(reason)
			return res
		}
	}

	// Sector concentration, a soft-structure check that runs last so its
	// math sees the final shrunk quantity.
	if g.cfg.MaxSectorPct > 0 && cand.Sector != "" && acct.Equity > 0 {
		exposure := g.sectorExposure(positions, cand.Sector) + res.Candidate.Notional()
		limit := acct.Equity * g.cfg.MaxSectorPct / 100
		if prices.GT(exposure, limit) {
			res.reject(fmt.Sprintf("sector %s exposure $%.2f would exceed $%.2f cap", cand.Sector, exposure, limit))
			return res
		}
	}

	for _, adj := range res.Adjustments {
		logger.Infof("risk: %s %s adjusted %.2f -> %.2f (%s)", cand.Ticker, adj.Field, adj.Old, adj.New, adj.Reason)
	}
	return res
}

func (g *Gate) positionCap(equity float64) float64 {
	limit := equity * g.cfg.MaxPositionPctEquity / 100
	if g.cfg.MaxPositionDollars > 0 {
		limit = math.Min(limit, g.cfg.MaxPositionDollars)
	}
	return limit
}

func (g *Gate) sectorExposure(positions []broker.Position, sector string) float64 {
	if g.sectorOf == nil {
		return 0
	}
	var total float64
	for _, p := range positions {
		if g.sectorOf(p.Ticker) == sector {
			total += p.MarketValue
		}
	}
	return total
}

func findPosition(positions []broker.Position, ticker string) (broker.Position, bool) {
	for _, p := range positions {
		if p.Ticker == ticker {
			return p, true
		}
	}
	return broker.Position{}, false
}
