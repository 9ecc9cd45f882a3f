// Package session knows what time it is on the exchange. All window checks
// take an explicit time so callers (and tests) control the clock.
package session

import (
	"fmt"
	"time"
)

const (
	openMinute  = 9*60 + 30 // 09:30 exchange time
	closeMinute = 16 * 60   // 16:00 exchange time
)

// Windows holds the configurable session boundaries.
type Windows struct {
	// Entry embargo around the open/close.
	NoEntryOpenMins  int
	NoEntryCloseMins int

	// Failed-breakdown trade windows, in exchange-local hours.
	PrimaryStartHour int
	ChopStartHour    int
	ChopEndHour      int
	EntryCutoffHour  int
	ForceExitHour    int
	ForceExitMinute  int
}

type Clock struct {
	loc     *time.Location
	windows Windows
}

func NewClock(tz string, w Windows) (*Clock, error) {
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("session: load timezone %q: %w", tz, err)
	}
	return &Clock{loc: loc, windows: w}, nil
}

func (c *Clock) Location() *time.Location { return c.loc }

func (c *Clock) local(now time.Time) time.Time { return now.In(c.loc) }

// EntryWindowOpen reports whether new entries are allowed right now, with a
// human-readable reason when they are not.
func (c *Clock) EntryWindowOpen(now time.Time) (bool, string) {
	local := c.local(now)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false, "market closed (weekend)"
	}
	minute := local.Hour()*60 + local.Minute()
	if c.windows.NoEntryOpenMins > 0 && minute < openMinute+c.windows.NoEntryOpenMins {
		return false, fmt.Sprintf("no entries in first %d minutes after open", c.windows.NoEntryOpenMins)
	}
	if c.windows.NoEntryCloseMins > 0 && minute > closeMinute-c.windows.NoEntryCloseMins {
		return false, fmt.Sprintf("no entries in last %d minutes before close", c.windows.NoEntryCloseMins)
	}
	return true, ""
}

// BreakdownEntryAllowed reports whether the failed-breakdown engine may open
// a new trade: inside the primary or secondary window, outside midday chop,
// before the cutoff.
func (c *Clock) BreakdownEntryAllowed(now time.Time) bool {
	local := c.local(now)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	h := local.Hour()
	if h < c.windows.PrimaryStartHour {
		return false
	}
	if h >= c.windows.EntryCutoffHour {
		return false
	}
	if h >= c.windows.ChopStartHour && h < c.windows.ChopEndHour {
		return false
	}
	return true
}

// ForceExitDue reports whether the end-of-day flatten time has been reached.
func (c *Clock) ForceExitDue(now time.Time) bool {
	local := c.local(now)
	if local.Hour() > c.windows.ForceExitHour {
		return true
	}
	return local.Hour() == c.windows.ForceExitHour && local.Minute() >= c.windows.ForceExitMinute
}

// SameSession reports whether two instants fall on the same exchange-local
// trading day.
func (c *Clock) SameSession(a, b time.Time) bool {
	la, lb := c.local(a), c.local(b)
	return la.Year() == lb.Year() && la.YearDay() == lb.YearDay()
}
