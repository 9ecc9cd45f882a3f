// Package scorer defines the ranked-candidate source the core consumes. How
// a score is computed is someone else's problem; the core only sees the
// ranked output with its trend gate and flow conviction attached.
package scorer

import "context"

type FlowConviction string

const (
	FlowWhale    FlowConviction = "whale"
	FlowModerate FlowConviction = "moderate"
	FlowLight    FlowConviction = "light"
)

// Candidate is one scored trade idea. The risk gate may shrink Qty or fill in
// StopLoss on its own copy; everything else is immutable once produced.
type Candidate struct {
	Ticker     string
	EntryPrice float64
	Qty        int
	StopLoss   float64
	Target1    float64
	Target2    float64
	Score      float64
	Structure  string
	Sector     string
	Flow       FlowConviction
	PassesGate bool
	IsETF      bool
}

// Notional returns the dollar value of the proposed position.
func (c Candidate) Notional() float64 {
	return float64(c.Qty) * c.EntryPrice
}

type Scorer interface {
	// RankedCandidates returns candidates best-first. A candidate whose trend
	// gate failed is never returned as an entry candidate.
	RankedCandidates(ctx context.Context) ([]Candidate, error)

	// Lookup returns the latest scored row for a ticker, gate failures
	// included, so exit logic can react to a holding losing its gate.
	Lookup(ticker string) (Candidate, bool)
}
