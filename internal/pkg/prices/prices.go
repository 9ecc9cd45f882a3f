// Package prices centralizes money arithmetic. Equity prices are quoted in
// cents, and comparisons around stop/target levels must not depend on float
// noise, so everything here goes through shopspring/decimal.
package prices

import (
	"math"

	"github.com/shopspring/decimal"
)

var decHundred = decimal.NewFromInt(100)

func fromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func toFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// RoundCents rounds a price to the nearest cent.
func RoundCents(val float64) float64 {
	return toFloat(fromFloat(val).Round(2))
}

// Compare returns -1, 0 or 1 comparing a against b exactly.
func Compare(a, b float64) int {
	return fromFloat(a).Cmp(fromFloat(b))
}

func GTE(a, b float64) bool { return Compare(a, b) >= 0 }
func LTE(a, b float64) bool { return Compare(a, b) <= 0 }
func GT(a, b float64) bool  { return Compare(a, b) > 0 }
func LT(a, b float64) bool  { return Compare(a, b) < 0 }

// PctBelow returns base reduced by pct percent, rounded to cents.
func PctBelow(base, pct float64) float64 {
	factor := decimal.NewFromInt(1).Sub(fromFloat(pct).Div(decHundred))
	return toFloat(fromFloat(base).Mul(factor).Round(2))
}

// PctAbove returns base raised by pct percent, rounded to cents.
func PctAbove(base, pct float64) float64 {
	factor := decimal.NewFromInt(1).Add(fromFloat(pct).Div(decHundred))
	return toFloat(fromFloat(base).Mul(factor).Round(2))
}

// MulFrac returns base + gain*frac rounded to cents. Used by the trailing
// phases where the stop floor is entry plus a fraction of the open gain.
func MulFrac(base, gain, frac float64) float64 {
	return toFloat(fromFloat(base).Add(fromFloat(gain).Mul(fromFloat(frac))).Round(2))
}

// Notional returns qty*price without float drift.
func Notional(qty int, price float64) float64 {
	return toFloat(decimal.NewFromInt(int64(qty)).Mul(fromFloat(price)))
}
