package config

import "time"

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Broker.Driver == "" {
		c.Broker.Driver = "paper"
	}
	if c.Broker.StartingEquity <= 0 {
		c.Broker.StartingEquity = 100000
	}
	if c.Scorer.MinScore <= 0 {
		c.Scorer.MinScore = 60
	}
	if c.Scorer.MaxRows <= 0 {
		c.Scorer.MaxRows = 25
	}

	if c.Risk.DailyLossHaltPct <= 0 {
		c.Risk.DailyLossHaltPct = 3.0
	}
	if c.Risk.MaxPositions <= 0 {
		c.Risk.MaxPositions = 8
	}
	if c.Risk.MaxPositionPctEquity <= 0 {
		c.Risk.MaxPositionPctEquity = 10.0
	}
	if c.Risk.MaxPositionDollars <= 0 {
		c.Risk.MaxPositionDollars = 25000
	}
	if c.Risk.ScaleInThresholdPct <= 0 {
		c.Risk.ScaleInThresholdPct = 60.0
	}
	if c.Risk.DefaultStopPct <= 0 {
		c.Risk.DefaultStopPct = 5.0
	}
	if c.Risk.BuyingPowerFrac <= 0 || c.Risk.BuyingPowerFrac > 1 {
		c.Risk.BuyingPowerFrac = 0.95
	}
	if c.Risk.MinNotional <= 0 {
		c.Risk.MinNotional = 500
	}

	if c.Session.Timezone == "" {
		c.Session.Timezone = "America/New_York"
	}
	if c.Session.NoEntryOpenMins <= 0 {
		c.Session.NoEntryOpenMins = 15
	}
	if c.Session.NoEntryCloseMins <= 0 {
		c.Session.NoEntryCloseMins = 15
	}
	if c.Session.PrimaryStartHour <= 0 {
		c.Session.PrimaryStartHour = 10
	}
	if c.Session.ChopStartHour <= 0 {
		c.Session.ChopStartHour = 11
	}
	if c.Session.ChopEndHour <= 0 {
		c.Session.ChopEndHour = 14
	}
	if c.Session.EntryCutoffHour <= 0 {
		c.Session.EntryCutoffHour = 15
	}
	if c.Session.ForceExitHour <= 0 {
		c.Session.ForceExitHour = 15
	}
	if c.Session.ForceExitMinute <= 0 {
		c.Session.ForceExitMinute = 50
	}

	if c.Loop.Interval <= 0 {
		c.Loop.Interval = 30 * time.Second
	}
	if c.Loop.ClosedInterval <= 0 {
		c.Loop.ClosedInterval = 5 * time.Minute
	}
	if c.Loop.StaleOrderAge <= 0 {
		c.Loop.StaleOrderAge = 10 * time.Minute
	}
	if c.Loop.MaxBackoff <= 0 {
		c.Loop.MaxBackoff = 2 * time.Minute
	}
	if c.Loop.DailyResetCron == "" {
		// 08:00 exchange time, before the open.
		c.Loop.DailyResetCron = "0 8 * * 1-5"
	}

	if c.Pattern.Enabled {
		if c.Pattern.NearLevelBuffer <= 0 {
			c.Pattern.NearLevelBuffer = 2.00
		}
		if c.Pattern.MinFlush <= 0 {
			c.Pattern.MinFlush = 1.00
		}
		if c.Pattern.DeepThreshold <= 0 {
			c.Pattern.DeepThreshold = 3.00
		}
		if c.Pattern.MaxFlush <= 0 {
			c.Pattern.MaxFlush = 8.00
		}
		if c.Pattern.StopBuffer <= 0 {
			c.Pattern.StopBuffer = 0.50
		}
		if c.Pattern.RipThreshold <= 0 {
			c.Pattern.RipThreshold = 5.00
		}
		if c.Pattern.MinRewardRisk <= 0 {
			c.Pattern.MinRewardRisk = 2.0
		}
		if c.Pattern.Tier1ExitPct <= 0 {
			c.Pattern.Tier1ExitPct = 0.75
		}
		if c.Pattern.Tier1TargetMult <= 0 {
			c.Pattern.Tier1TargetMult = 2.0
		}
		if c.Pattern.RiskPerTrade <= 0 {
			c.Pattern.RiskPerTrade = 500
		}
		if c.Pattern.AcceptanceShallow <= 0 {
			c.Pattern.AcceptanceShallow = 2
		}
		if c.Pattern.AcceptanceDeep <= 0 {
			c.Pattern.AcceptanceDeep = 12
		}
		if c.Pattern.AcceptanceBar <= 0 {
			c.Pattern.AcceptanceBar = time.Minute
		}
		if c.Pattern.MaxTradesPerDay <= 0 {
			c.Pattern.MaxTradesPerDay = 2
		}
	}

	if c.Store.StatePath == "" {
		c.Store.StatePath = "data/state.db"
	}
	if c.Store.AuditPath == "" {
		c.Store.AuditPath = "data/audit.db"
	}
	if c.Admin.Listen == "" {
		c.Admin.Listen = "127.0.0.1:8787"
	}
}
