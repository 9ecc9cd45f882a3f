package config

import (
	"fmt"
	"time"
)

func validate(c *Config) error {
	switch c.Broker.Driver {
	case "paper":
	default:
		return fmt.Errorf("config: unknown broker driver %q", c.Broker.Driver)
	}
	if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
		return fmt.Errorf("config: session timezone: %w", err)
	}
	if c.Risk.DailyLossHaltPct > 100 {
		return fmt.Errorf("config: daily_loss_halt_pct %.1f out of range", c.Risk.DailyLossHaltPct)
	}
	if c.Session.ChopStartHour >= c.Session.ChopEndHour {
		return fmt.Errorf("config: chop window start %d not before end %d", c.Session.ChopStartHour, c.Session.ChopEndHour)
	}
	if c.Pattern.Enabled {
		if c.Pattern.Ticker == "" {
			return fmt.Errorf("config: pattern enabled without a ticker")
		}
		if c.Pattern.MinFlush > c.Pattern.MaxFlush {
			return fmt.Errorf("config: pattern min_flush %.2f above max_flush %.2f", c.Pattern.MinFlush, c.Pattern.MaxFlush)
		}
	}
	if c.Loop.Interval < time.Second {
		return fmt.Errorf("config: loop interval %s too short", c.Loop.Interval)
	}
	return nil
}
