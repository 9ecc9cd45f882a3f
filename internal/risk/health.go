package risk

import (
	"fmt"

	"tiller/internal/broker"
)

// Health inspects the live portfolio and returns human-readable warnings.
// It never blocks trading on its own; the execution loop logs the warnings
// and the admin API exposes them.
func (g *Gate) Health(acct broker.AccountSnapshot, positions []broker.Position) []string {
	var warnings []string

	if acct.DayPnLPct <= -g.cfg.DailyLossHaltPct/2 {
		warnings = append(warnings, fmt.Sprintf("day P&L %.2f%% past half the halt threshold", acct.DayPnLPct))
	}

	perPositionCap := g.positionCap(acct.Equity)
	for _, p := range positions {
		if p.UnrealizedPnLPct <= -g.cfg.DefaultStopPct {
			warnings = append(warnings, fmt.Sprintf("%s down %.2f%%, beyond the default stop distance", p.Ticker, -p.UnrealizedPnLPct))
		}
		if perPositionCap > 0 && p.MarketValue > perPositionCap {
			warnings = append(warnings, fmt.Sprintf("%s $%.2f over the per-position cap $%.2f", p.Ticker, p.MarketValue, perPositionCap))
		}
	}

	if g.cfg.MaxSectorPct > 0 && g.sectorOf != nil && acct.Equity > 0 {
		limit := acct.Equity * g.cfg.MaxSectorPct / 100
		bySector := map[string]float64{}
		for _, p := range positions {
			if sector := g.sectorOf(p.Ticker); sector != "" {
				bySector[sector] += p.MarketValue
			}
		}
		for sector, exposure := range bySector {
			if exposure > limit {
				warnings = append(warnings, fmt.Sprintf("sector %s exposure $%.2f over $%.2f cap", sector, exposure, limit))
			}
		}
	}
	return warnings
}
