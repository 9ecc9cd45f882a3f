package profile

import (
	"time"

	"tiller/internal/allocator"
)

// DefaultProfiles is the built-in bucket lineup used when no profile file is
// configured. Capital figures are starting allocations, not account totals.
var DefaultProfiles = []allocator.Profile{
	{
		ID:                "short_momentum",
		Name:              "Short-Term Momentum",
		Capital:           10000,
		MaxPositions:      3,
		MaxPositionPct:    35,
		MaxRiskPct:        2,
		MaxHold:           48 * time.Hour,
		Reinvest:          true,
		MinScore:          75,
		WhaleOnly:         true,
		AllowedStructures: []string{"Momentum", "Breakout"},
		TrailProfile:      "tight",
	},
	{
		ID:                "pipeline_swing",
		Name:              "Pipeline Swing",
		Capital:           20000,
		MaxPositions:      4,
		MaxPositionPct:    30,
		MaxRiskPct:        2,
		MaxHold:           10 * 24 * time.Hour,
		Reinvest:          true,
		MinScore:          65,
		AllowedStructures: []string{"Momentum", "Breakout", "Reversal", "Uptrend"},
		TrailProfile:      "default",
	},
	{
		ID:                "mean_reversion",
		Name:              "Mean Reversion",
		Capital:           10000,
		MaxPositions:      3,
		MaxPositionPct:    35,
		MaxRiskPct:        1.5,
		MaxHold:           5 * 24 * time.Hour,
		MinScore:          60,
		AllowedStructures: []string{"Reversal", "Consolidation"},
		TrailProfile:      "tight",
	},
	{
		ID:                "sector_etf",
		Name:              "Sector ETF Rotation",
		Capital:           15000,
		MaxPositions:      2,
		MaxPositionPct:    50,
		MaxRiskPct:        1.5,
		MaxHold:           20 * 24 * time.Hour,
		Reinvest:          true,
		MinScore:          55,
		ETFOnly:           true,
		AllowedStructures: []string{"Momentum", "Breakout", "Uptrend"},
		TrailProfile:      "wide",
	},
	{
		ID:                "sector_stocks",
		Name:              "Sector Leaders",
		Capital:           15000,
		MaxPositions:      3,
		MaxPositionPct:    35,
		MaxRiskPct:        2,
		MaxHold:           15 * 24 * time.Hour,
		Reinvest:          true,
		MinScore:          70,
		AllowedStructures: []string{"Momentum", "Breakout", "Reversal", "Uptrend"},
		TrailProfile:      "default",
	},
}
