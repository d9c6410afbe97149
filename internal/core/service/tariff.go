package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/berfenger/chargepilot/internal/core/domain"
)

const defaultScanHorizon = 48 * time.Hour

// TariffCalendar answers period and low-cost window queries over a
// validated period table. The table must partition every weekday: for
// each day, periods sorted by start must begin at 00:00, abut with no
// gaps or overlaps, and end at 24:00.
type TariffCalendar struct {
	periods []domain.TariffPeriod
	horizon time.Duration
}

func NewTariffCalendar(periods []domain.TariffPeriod, horizon time.Duration) (*TariffCalendar, error) {
	if horizon <= 0 {
		horizon = defaultScanHorizon
	}
	if err := validatePartition(periods); err != nil {
		return nil, err
	}
	return &TariffCalendar{
		periods: periods,
		horizon: horizon,
	}, nil
}

func validatePartition(periods []domain.TariffPeriod) error {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		var dayPeriods []domain.TariffPeriod
		for _, p := range periods {
			if p.StartMin >= p.EndMin {
				return domain.ConfigError{Reason: fmt.Sprintf("period %q: start must precede end", p.Name)}
			}
			if p.Days.Contains(wd) {
				dayPeriods = append(dayPeriods, p)
			}
		}
		if len(dayPeriods) == 0 {
			return domain.ConfigError{Reason: fmt.Sprintf("no tariff periods cover %s", wd)}
		}
		sort.Slice(dayPeriods, func(i, j int) bool {
			return dayPeriods[i].StartMin < dayPeriods[j].StartMin
		})
		if dayPeriods[0].StartMin != 0 {
			return domain.ConfigError{Reason: fmt.Sprintf("%s does not start at 00:00", wd)}
		}
		for i := 1; i < len(dayPeriods); i++ {
			prev, cur := dayPeriods[i-1], dayPeriods[i]
			if cur.StartMin < prev.EndMin {
				return domain.ConfigError{Reason: fmt.Sprintf("periods %q and %q overlap on %s", prev.Name, cur.Name, wd)}
			}
			if cur.StartMin > prev.EndMin {
				return domain.ConfigError{Reason: fmt.Sprintf("gap between periods %q and %q on %s", prev.Name, cur.Name, wd)}
			}
		}
		if dayPeriods[len(dayPeriods)-1].EndMin != 24*60 {
			return domain.ConfigError{Reason: fmt.Sprintf("%s does not end at 24:00", wd)}
		}
	}
	return nil
}

// ActivePeriod returns the period covering the given instant.
func (c *TariffCalendar) ActivePeriod(at time.Time) domain.TariffPeriod {
	minute := at.Hour()*60 + at.Minute()
	for _, p := range c.periods {
		if p.Days.Contains(at.Weekday()) && minute >= p.StartMin && minute < p.EndMin {
			return p
		}
	}
	// unreachable on a validated table
	return domain.TariffPeriod{}
}

// NextLowCostWindow finds the next maximal run of low-cost time at or
// after from. When from is already inside a low-cost run the window
// starts exactly at from, so repeated calls during the same run agree.
// Returns domain.ErrNoLowCostWindow if the scan horizon holds none.
func (c *TariffCalendar) NextLowCostWindow(from time.Time) (domain.LowCostWindow, error) {
	limit := from.Add(c.horizon)
	t := from
	for t.Before(limit) {
		p := c.ActivePeriod(t)
		if p.LowCost {
			return domain.LowCostWindow{
				Start: t,
				End:   c.extendLowCost(periodEnd(t, p), limit),
			}, nil
		}
		t = periodEnd(t, p)
	}
	return domain.LowCostWindow{}, domain.ErrNoLowCostWindow
}

// extendLowCost pushes end forward through abutting low-cost periods,
// including across midnight. Capped at limit so a table that is
// low-cost around the clock still terminates.
func (c *TariffCalendar) extendLowCost(end time.Time, limit time.Time) time.Time {
	for end.Before(limit) {
		next := c.ActivePeriod(end)
		if !next.LowCost {
			break
		}
		end = periodEnd(end, next)
	}
	if end.After(limit) {
		end = limit
	}
	return end
}

// periodEnd is the instant the period containing t finishes, in t's
// location.
func periodEnd(t time.Time, p domain.TariffPeriod) time.Time {
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return dayStart.Add(time.Duration(p.EndMin) * time.Minute)
}
