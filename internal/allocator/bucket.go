package allocator

import "time"

// Profile is a bucket's immutable rule set, loaded from the profile
// registry. Capital limits are dollars, percentages are whole numbers. An
// empty AllowedStructures list accepts any structural label.
type Profile struct {
	ID                string        `json:"id" yaml:"id"`
	Name              string        `json:"name" yaml:"name"`
	Capital           float64       `json:"capital" yaml:"capital"`
	MaxPositions      int           `json:"max_positions" yaml:"max_positions"`
	MaxPositionPct    float64       `json:"max_position_pct" yaml:"max_position_pct"`
	MaxRiskPct        float64       `json:"max_risk_pct" yaml:"max_risk_pct"`
	MaxHold           time.Duration `json:"max_hold" yaml:"max_hold"`
	Reinvest          bool          `json:"reinvest" yaml:"reinvest"`
	MinScore          float64       `json:"min_score" yaml:"min_score"`
	WhaleOnly         bool          `json:"whale_only" yaml:"whale_only"`
	ETFOnly           bool          `json:"etf_only" yaml:"etf_only"`
	AllowedStructures []string      `json:"allowed_structures" yaml:"allowed_structures"`
	TrailProfile      string        `json:"trail_profile" yaml:"trail_profile"`
}

// PositionStatus tracks a position through its bucket lifecycle.
type PositionStatus string

const (
	StatusOpen    PositionStatus = "open"
	StatusPartial PositionStatus = "partial"
	StatusClosed  PositionStatus = "closed"
)

// TrackedPosition is the allocator's ledger entry for one holding. The
// broker stays the source of truth for fills; this records which bucket's
// capital the position consumes.
type TrackedPosition struct {
	ID           string         `json:"id"`
	BucketID     string         `json:"bucket_id"`
	Ticker       string         `json:"ticker"`
	Qty          int            `json:"qty"`
	RemainingQty int            `json:"remaining_qty"`
	EntryPrice   float64        `json:"entry_price"`
	Cost         float64        `json:"cost"`
	Status       PositionStatus `json:"status"`
	OpenedAt     time.Time      `json:"opened_at"`
	ClosedAt     time.Time      `json:"closed_at,omitempty"`
	ExitPrice    float64        `json:"exit_price,omitempty"`
	RealizedPnL  float64        `json:"realized_pnl"`
}

// HeldFor reports how long the position has been open.
func (p TrackedPosition) HeldFor(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// bucket is the live per-bucket ledger.
type bucket struct {
	Profile     Profile           `json:"profile"`
	Capital     float64           `json:"capital"`
	PeakCapital float64           `json:"peak_capital"`
	MaxDrawdown float64           `json:"max_drawdown"`
	RealizedPnL float64           `json:"realized_pnl"`
	TradeCount  int               `json:"trade_count"`
	WinCount    int               `json:"win_count"`
	Open        []TrackedPosition `json:"open"`
	History     []TrackedPosition `json:"history"`
}

func (b *bucket) deployed() float64 {
	var total float64
	for _, p := range b.Open {
		total += p.Cost * float64(p.RemainingQty) / float64(p.Qty)
	}
	return total
}

func (b *bucket) available() float64 {
	return b.Capital - b.deployed()
}

// markCapital refreshes peak capital and max drawdown after any change.
func (b *bucket) markCapital() {
	if b.Capital > b.PeakCapital {
		b.PeakCapital = b.Capital
	}
	if b.PeakCapital > 0 {
		dd := (b.PeakCapital - b.Capital) / b.PeakCapital * 100
		if dd > b.MaxDrawdown {
			b.MaxDrawdown = dd
		}
	}
}

// BucketReport is the admin-facing summary of one bucket.
type BucketReport struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Capital     float64 `json:"capital"`
	Deployed    float64 `json:"deployed"`
	Available   float64 `json:"available"`
	RealizedPnL float64 `json:"realized_pnl"`
	TradeCount  int     `json:"trade_count"`
	WinCount    int     `json:"win_count"`
	WinRate     float64 `json:"win_rate"`
	OpenCount   int     `json:"open_count"`
	PeakCapital float64 `json:"peak_capital"`
	MaxDrawdown float64 `json:"max_drawdown"`
}
