// Package trail implements the profit-protection state machine that ratchets
// a position's stop upward as price hits tiered targets. Update is a pure
// function of (record, price); the engine owns persistence and order routing.
package trail

import (
	"fmt"
	"time"

	"tiller/internal/pkg/prices"
)

// Phase is the ratchet's position in its one-way ladder.
type Phase string

const (
	PhaseInitial Phase = "INITIAL"
	PhaseT1Hit   Phase = "T1_HIT"
	PhaseT2Hit   Phase = "T2_HIT"
	PhaseRunaway Phase = "RUNAWAY"
)

// PhaseConfig sets the ladder geometry. Percentages are whole numbers
// (5 means 5%), fractions are 0..1.
type PhaseConfig struct {
	InitialStopPct   float64 // initial stop distance below entry
	T1Pct            float64 // first target gain
	T2Pct            float64 // second target gain
	BreakevenBufPct  float64 // stop above entry after T1, e.g. 0.2
	T2TrailFrac      float64 // fraction of open gain kept after T2
	RunawayTrailFrac float64 // fraction of open gain kept in runaway
	RunawayMult      float64 // runaway triggers at entry + mult * T2 gain
}

func DefaultPhaseConfig() PhaseConfig {
	return PhaseConfig{
		InitialStopPct:   5.0,
		T1Pct:            3.0,
		T2Pct:            6.0,
		BreakevenBufPct:  0.2,
		T2TrailFrac:      0.5,
		RunawayTrailFrac: 0.7,
		RunawayMult:      2.0,
	}
}

// Record is the per-ticker ratchet state. It is a value; Update returns a new
// one and never mutates its input.
type Record struct {
	Ticker         string
	EntryPrice     float64
	Stop           float64
	HighestPrice   float64
	Phase          Phase
	T1Target       float64
	T2Target       float64
	RunawayTrigger float64
	Config         PhaseConfig
	OpenedAt       time.Time
}

// Change describes one stop or phase movement, for the audit trail.
type Change struct {
	Ticker  string
	Kind    string // "stop" or "phase"
	OldStop float64
	NewStop float64
	Phase   Phase
	At      time.Time
}

func (c Change) String() string {
	return fmt.Sprintf("%s %s stop %.2f -> %.2f (%s)", c.Ticker, c.Kind, c.OldStop, c.NewStop, c.Phase)
}

// Init builds the record for a fresh entry.
func Init(ticker string, entryPrice float64, cfg PhaseConfig, now time.Time) Record {
	t2 := prices.PctAbove(entryPrice, cfg.T2Pct)
	t2Gain := t2 - entryPrice
	return Record{
		Ticker:         ticker,
		EntryPrice:     entryPrice,
		Stop:           prices.PctBelow(entryPrice, cfg.InitialStopPct),
		HighestPrice:   entryPrice,
		Phase:          PhaseInitial,
		T1Target:       prices.PctAbove(entryPrice, cfg.T1Pct),
		T2Target:       t2,
		RunawayTrigger: prices.MulFrac(entryPrice, t2Gain, cfg.RunawayMult),
		Config:         cfg,
		OpenedAt:       now,
	}
}

// Update advances the record for one observed price. The returned changes
// list every stop or phase movement this price caused. The stop is monotone:
// whatever the phase logic proposes, the final stop is max(proposed, old).
// One price can clear several rungs at once, so the ladder is walked until
// the phase settles.
func Update(rec Record, price float64, now time.Time) (Record, []Change) {
	next := rec
	var changes []Change

	if prices.GT(price, next.HighestPrice) {
		next.HighestPrice = price
	}
	gain := next.HighestPrice - next.EntryPrice

	for {
		proposed := next.Stop
		transitioned := false

		switch next.Phase {
		case PhaseInitial:
			if prices.GTE(price, next.T1Target) {
				next.Phase = PhaseT1Hit
				proposed = prices.PctAbove(next.EntryPrice, next.Config.BreakevenBufPct)
				transitioned = true
			}
		case PhaseT1Hit:
			if prices.GTE(price, next.T2Target) {
				next.Phase = PhaseT2Hit
				proposed = prices.MulFrac(next.EntryPrice, gain, next.Config.T2TrailFrac)
				transitioned = true
			}
		case PhaseT2Hit:
			if prices.GTE(price, next.RunawayTrigger) {
				next.Phase = PhaseRunaway
				proposed = prices.MulFrac(next.EntryPrice, gain, next.Config.RunawayTrailFrac)
				transitioned = true
			} else {
				proposed = prices.MulFrac(next.EntryPrice, gain, next.Config.T2TrailFrac)
			}
		case PhaseRunaway:
			proposed = prices.MulFrac(next.EntryPrice, gain, next.Config.RunawayTrailFrac)
		}

		if prices.GT(proposed, next.Stop) {
			kind := "stop"
			if transitioned {
				kind = "phase"
			}
			changes = append(changes, Change{Ticker: next.Ticker, Kind: kind, OldStop: next.Stop, NewStop: proposed, Phase: next.Phase, At: now})
			next.Stop = proposed
		} else if transitioned {
			changes = append(changes, Change{Ticker: next.Ticker, Kind: "phase", OldStop: next.Stop, NewStop: next.Stop, Phase: next.Phase, At: now})
		}

		if !transitioned {
			return next, changes
		}
	}
}

// StopHit reports whether the observed price has reached the stop.
func StopHit(rec Record, price float64) bool {
	return prices.LTE(price, rec.Stop)
}
